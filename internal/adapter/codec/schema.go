package codec

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"warrior/internal/domain"
)

// Field types and their payload widths in bytes.
var fieldWidths = map[string]int{
	"u8":    1,
	"u16":   2,
	"u24":   3,
	"u32":   4,
	"i16":   2,
	"i32":   4,
	"enum":  1,
	"board": 1,
}

var reservedFields = map[string]bool{
	domain.KeyMsgType: true,
	domain.KeyBoardID: true,
	domain.KeyTime:    true,
}

const (
	timestampWidth = 3
	maxPayload     = 8
	boardMask      = 0x1F
	maxID          = 0x7FF
)

// Schema describes the boards and message types on the bus.
type Schema struct {
	Boards   map[string]uint8    `yaml:"boards"`
	Enums    map[string][]string `yaml:"enums"`
	Messages []MessageDef        `yaml:"messages"`
}

// MessageDef is one message type.
type MessageDef struct {
	Name   string     `yaml:"name"`
	ID     uint16     `yaml:"id"`
	Fields []FieldDef `yaml:"fields"`
}

// FieldDef is one payload field. Enum names the value list for enum fields.
type FieldDef struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Enum string `yaml:"enum,omitempty"`
}

//go:embed default.yaml
var defaultSchema []byte

// ParseSchema decodes a YAML schema.
func ParseSchema(data []byte) (Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Schema{}, fmt.Errorf("parse schema: %w", err)
	}
	return s, nil
}

// Load builds a codec from the schema file at path.
func Load(path string) (*Codec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	s, err := ParseSchema(data)
	if err != nil {
		return nil, err
	}
	return New(s)
}

// Default returns a codec for the built-in schema.
func Default() *Codec {
	s, err := ParseSchema(defaultSchema)
	if err != nil {
		panic(err)
	}
	c, err := New(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (s Schema) validate() error {
	seenBoard := make(map[uint8]string, len(s.Boards))
	for name, id := range s.Boards {
		if id > boardMask {
			return fmt.Errorf("board %s: id 0x%02X exceeds 5 bits", name, id)
		}
		if other, ok := seenBoard[id]; ok {
			return fmt.Errorf("boards %s and %s share id 0x%02X", name, other, id)
		}
		seenBoard[id] = name
	}
	seenName := make(map[string]bool, len(s.Messages))
	seenID := make(map[uint16]string, len(s.Messages))
	for _, m := range s.Messages {
		if m.Name == "" {
			return fmt.Errorf("message 0x%03X has no name", m.ID)
		}
		if seenName[m.Name] {
			return fmt.Errorf("message %s defined twice", m.Name)
		}
		seenName[m.Name] = true
		if m.ID > maxID || m.ID&boardMask != 0 {
			return fmt.Errorf("message %s: id 0x%03X must be 11 bits with the low 5 clear", m.Name, m.ID)
		}
		if other, ok := seenID[m.ID]; ok {
			return fmt.Errorf("messages %s and %s share id 0x%03X", m.Name, other, m.ID)
		}
		seenID[m.ID] = m.Name
		size := timestampWidth
		for _, f := range m.Fields {
			w, ok := fieldWidths[f.Type]
			if !ok {
				return fmt.Errorf("message %s field %s: unknown type %q", m.Name, f.Name, f.Type)
			}
			if reservedFields[f.Name] {
				return fmt.Errorf("message %s: field name %s is reserved", m.Name, f.Name)
			}
			if f.Type == "enum" {
				if _, ok := s.Enums[f.Enum]; !ok {
					return fmt.Errorf("message %s field %s: unknown enum %q", m.Name, f.Name, f.Enum)
				}
			}
			size += w
		}
		if size > maxPayload {
			return fmt.Errorf("message %s: payload is %d bytes, max %d", m.Name, size, maxPayload)
		}
	}
	for name, values := range s.Enums {
		if len(values) > 256 {
			return fmt.Errorf("enum %s has %d values, max 256", name, len(values))
		}
	}
	return nil
}
