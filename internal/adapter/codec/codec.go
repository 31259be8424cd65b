// Package codec converts structured bus messages to and from the 11-bit
// identifier and byte payload carried on the field bus.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"warrior/internal/domain"
)

// Codec encodes and decodes messages against a Schema.
type Codec struct {
	byName     map[string]*MessageDef
	byID       map[uint16]*MessageDef
	boards     map[string]uint8
	boardNames map[uint8]string
	enums      map[string][]string
}

// New validates s and builds a codec for it.
func New(s Schema) (*Codec, error) {
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	c := &Codec{
		byName:     make(map[string]*MessageDef, len(s.Messages)),
		byID:       make(map[uint16]*MessageDef, len(s.Messages)),
		boards:     s.Boards,
		boardNames: make(map[uint8]string, len(s.Boards)),
		enums:      s.Enums,
	}
	for i := range s.Messages {
		m := &s.Messages[i]
		c.byName[m.Name] = m
		c.byID[m.ID] = m
	}
	for name, id := range s.Boards {
		c.boardNames[id] = name
	}
	return c, nil
}

// Encode returns the identifier and payload for msg. Every schema field must
// be present in msg.Data and no others.
func (c *Codec) Encode(msg domain.BusMessage) (uint16, []byte, error) {
	def, ok := c.byName[msg.Type]
	if !ok {
		return 0, nil, fmt.Errorf("%w: %s", domain.ErrUnknownMessage, msg.Type)
	}
	board, ok := c.boards[msg.BoardID]
	if !ok {
		return 0, nil, fmt.Errorf("%w: unknown board %q", domain.ErrInvalidInput, msg.BoardID)
	}
	if msg.Time < 0 {
		return 0, nil, fmt.Errorf("%w: negative time %v", domain.ErrInvalidInput, msg.Time)
	}

	buf := make([]byte, timestampWidth, maxPayload)
	ms := uint32(math.Round(msg.Time*1000)) & 0xFFFFFF
	buf[0], buf[1], buf[2] = byte(ms>>16), byte(ms>>8), byte(ms)

	for _, f := range def.Fields {
		v, ok := msg.Data[f.Name]
		if !ok {
			return 0, nil, fmt.Errorf("%w: %s missing field %s", domain.ErrInvalidInput, msg.Type, f.Name)
		}
		var err error
		if buf, err = c.appendField(buf, f, v); err != nil {
			return 0, nil, fmt.Errorf("%w: %s.%s: %v", domain.ErrInvalidInput, msg.Type, f.Name, err)
		}
	}
	if len(msg.Data) != len(def.Fields) {
		for k := range msg.Data {
			if !hasField(def, k) {
				return 0, nil, fmt.Errorf("%w: %s has no field %s", domain.ErrInvalidInput, msg.Type, k)
			}
		}
	}
	return def.ID | uint16(board), buf, nil
}

// Decode parses a payload received under id.
func (c *Codec) Decode(id uint16, data []byte) (domain.BusMessage, error) {
	def, ok := c.byID[id&^boardMask]
	if !ok {
		return domain.BusMessage{}, fmt.Errorf("%w: id 0x%03X", domain.ErrUnknownMessage, id)
	}
	board, ok := c.boardNames[uint8(id&boardMask)]
	if !ok {
		return domain.BusMessage{}, fmt.Errorf("%w: %s from unknown board 0x%02X", domain.ErrInvalidInput, def.Name, id&boardMask)
	}
	want := timestampWidth
	for _, f := range def.Fields {
		want += fieldWidths[f.Type]
	}
	if len(data) != want {
		return domain.BusMessage{}, fmt.Errorf("%w: %s payload is %d bytes, want %d", domain.ErrMalformedFrame, def.Name, len(data), want)
	}

	ms := uint32(data[0])<<16 | uint32(data[1])<<8 | uint32(data[2])
	msg := domain.BusMessage{
		Type:    def.Name,
		BoardID: board,
		Time:    float64(ms) / 1000,
		Data:    make(map[string]any, len(def.Fields)),
	}
	off := timestampWidth
	for _, f := range def.Fields {
		w := fieldWidths[f.Type]
		v, err := c.readField(f, data[off:off+w])
		if err != nil {
			return domain.BusMessage{}, fmt.Errorf("%w: %s.%s: %v", domain.ErrMalformedFrame, def.Name, f.Name, err)
		}
		msg.Data[f.Name] = v
		off += w
	}
	return msg, nil
}

// Format renders msg on one line with fields in schema order.
func (c *Codec) Format(msg domain.BusMessage) string {
	def, ok := c.byName[msg.Type]
	if !ok {
		return msg.Summary()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[ %-24s %-14s %9.3f ]", msg.Type, msg.BoardID, msg.Time)
	for _, f := range def.Fields {
		if v, ok := msg.Data[f.Name]; ok {
			fmt.Fprintf(&b, " %s: %v", f.Name, v)
		}
	}
	return b.String()
}

// Messages returns the names of every message type in the schema.
func (c *Codec) Messages() []string {
	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	return names
}

func (c *Codec) appendField(buf []byte, f FieldDef, v any) ([]byte, error) {
	switch f.Type {
	case "enum":
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", v)
		}
		for i, name := range c.enums[f.Enum] {
			if name == s {
				return append(buf, byte(i)), nil
			}
		}
		return nil, fmt.Errorf("%q is not in enum %s", s, f.Enum)
	case "board":
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("want board name, got %T", v)
		}
		id, ok := c.boards[s]
		if !ok {
			return nil, fmt.Errorf("unknown board %q", s)
		}
		return append(buf, id), nil
	}

	n, err := integer(v)
	if err != nil {
		return nil, err
	}
	switch f.Type {
	case "u8":
		if n < 0 || n > math.MaxUint8 {
			return nil, fmt.Errorf("%d out of range for u8", n)
		}
		return append(buf, byte(n)), nil
	case "u16":
		if n < 0 || n > math.MaxUint16 {
			return nil, fmt.Errorf("%d out of range for u16", n)
		}
		return binary.BigEndian.AppendUint16(buf, uint16(n)), nil
	case "u24":
		if n < 0 || n > 0xFFFFFF {
			return nil, fmt.Errorf("%d out of range for u24", n)
		}
		return append(buf, byte(n>>16), byte(n>>8), byte(n)), nil
	case "u32":
		if n < 0 || n > math.MaxUint32 {
			return nil, fmt.Errorf("%d out of range for u32", n)
		}
		return binary.BigEndian.AppendUint32(buf, uint32(n)), nil
	case "i16":
		if n < math.MinInt16 || n > math.MaxInt16 {
			return nil, fmt.Errorf("%d out of range for i16", n)
		}
		return binary.BigEndian.AppendUint16(buf, uint16(int16(n))), nil
	case "i32":
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("%d out of range for i32", n)
		}
		return binary.BigEndian.AppendUint32(buf, uint32(int32(n))), nil
	}
	return nil, fmt.Errorf("unknown type %q", f.Type)
}

func (c *Codec) readField(f FieldDef, b []byte) (any, error) {
	switch f.Type {
	case "enum":
		values := c.enums[f.Enum]
		if int(b[0]) >= len(values) {
			return nil, fmt.Errorf("value %d is not in enum %s", b[0], f.Enum)
		}
		return values[b[0]], nil
	case "board":
		name, ok := c.boardNames[b[0]]
		if !ok {
			return nil, fmt.Errorf("unknown board 0x%02X", b[0])
		}
		return name, nil
	case "u8":
		return int64(b[0]), nil
	case "u16":
		return int64(binary.BigEndian.Uint16(b)), nil
	case "u24":
		return int64(b[0])<<16 | int64(b[1])<<8 | int64(b[2]), nil
	case "u32":
		return int64(binary.BigEndian.Uint32(b)), nil
	case "i16":
		return int64(int16(binary.BigEndian.Uint16(b))), nil
	case "i32":
		return int64(int32(binary.BigEndian.Uint32(b))), nil
	}
	return nil, fmt.Errorf("unknown type %q", f.Type)
}

func integer(v any) (int64, error) {
	f, ok := domain.AsFloat(v)
	if !ok {
		return 0, fmt.Errorf("want number, got %T", v)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	return int64(f), nil
}

func hasField(def *MessageDef, name string) bool {
	for _, f := range def.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}
