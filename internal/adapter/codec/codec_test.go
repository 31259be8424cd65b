package codec

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warrior/internal/domain"
)

func boardStatus() domain.BusMessage {
	return domain.BusMessage{
		Type:    "GENERAL_BOARD_STATUS",
		BoardID: "ACTUATOR_INJ",
		Time:    1.5,
		Data: map[string]any{
			"status":    "E_NOMINAL",
			"voltage":   12000,
			"cur_state": "ACTUATOR_OFF",
		},
	}
}

func TestEncodeBoardStatus(t *testing.T) {
	c := Default()

	id, data, err := c.Encode(boardStatus())
	require.NoError(t, err)
	assert.Equal(t, uint16(0x162), id)
	assert.Equal(t, []byte{0x00, 0x05, 0xDC, 0x00, 0x2E, 0xE0, 0x01}, data)
}

func TestDecodeBoardStatus(t *testing.T) {
	c := Default()

	msg, err := c.Decode(0x162, []byte{0x00, 0x05, 0xDC, 0x00, 0x2E, 0xE0, 0x01})
	require.NoError(t, err)
	assert.Equal(t, "GENERAL_BOARD_STATUS", msg.Type)
	assert.Equal(t, "ACTUATOR_INJ", msg.BoardID)
	assert.InDelta(t, 1.5, msg.Time, 1e-9)
	assert.Equal(t, "E_NOMINAL", msg.Data["status"])
	assert.Equal(t, int64(12000), msg.Data["voltage"])
	assert.Equal(t, "ACTUATOR_OFF", msg.Data["cur_state"])
}

func TestSignedAndBoardFields(t *testing.T) {
	c := Default()

	id, data, err := c.Encode(domain.BusMessage{
		Type:    "SENSOR_TEMP",
		BoardID: "SENSOR",
		Data:    map[string]any{"sensor_id": 3, "temperature": -1250},
	})
	require.NoError(t, err)
	assert.Equal(t, uint16(0x6C5), id)

	msg, err := c.Decode(id, data)
	require.NoError(t, err)
	assert.Equal(t, int64(3), msg.Data["sensor_id"])
	assert.Equal(t, int64(-1250), msg.Data["temperature"])

	id, data, err = c.Encode(domain.BusMessage{
		Type:    "RESET_CMD",
		BoardID: "ANY",
		Data:    map[string]any{"reset_board_id": "ACTUATOR_VENT"},
	})
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0A0), id)
	assert.Equal(t, []byte{0, 0, 0, 0x03}, data)
}

func TestEncodeErrors(t *testing.T) {
	c := Default()

	tests := []struct {
		name   string
		mutate func(m *domain.BusMessage)
		want   error
	}{
		{"unknown type", func(m *domain.BusMessage) { m.Type = "NOPE" }, domain.ErrUnknownMessage},
		{"unknown board", func(m *domain.BusMessage) { m.BoardID = "NOPE" }, domain.ErrInvalidInput},
		{"missing field", func(m *domain.BusMessage) { delete(m.Data, "voltage") }, domain.ErrInvalidInput},
		{"extra field", func(m *domain.BusMessage) { m.Data["extra"] = 1 }, domain.ErrInvalidInput},
		{"out of range", func(m *domain.BusMessage) { m.Data["voltage"] = 70000 }, domain.ErrInvalidInput},
		{"fractional", func(m *domain.BusMessage) { m.Data["voltage"] = 1.5 }, domain.ErrInvalidInput},
		{"bad enum value", func(m *domain.BusMessage) { m.Data["status"] = "E_BOGUS" }, domain.ErrInvalidInput},
		{"enum not string", func(m *domain.BusMessage) { m.Data["status"] = 1 }, domain.ErrInvalidInput},
		{"negative time", func(m *domain.BusMessage) { m.Time = -1 }, domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := boardStatus()
			tt.mutate(&msg)
			_, _, err := c.Encode(msg)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	c := Default()

	_, err := c.Decode(0x7E0, []byte{0, 0, 0})
	assert.ErrorIs(t, err, domain.ErrUnknownMessage)

	_, err = c.Decode(0x17F, []byte{0, 0, 0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "unknown board")

	_, err = c.Decode(0x162, []byte{0, 0, 0, 0})
	assert.ErrorIs(t, err, domain.ErrMalformedFrame, "short payload")

	_, err = c.Decode(0x162, []byte{0, 0, 0, 0xFF, 0, 0, 0})
	assert.ErrorIs(t, err, domain.ErrMalformedFrame, "enum index out of range")
}

func TestFormatUsesSchemaOrder(t *testing.T) {
	c := Default()
	line := c.Format(boardStatus())

	assert.True(t, strings.HasPrefix(line, "[ GENERAL_BOARD_STATUS"))
	status := strings.Index(line, "status: E_NOMINAL")
	voltage := strings.Index(line, "voltage: 12000")
	state := strings.Index(line, "cur_state: ACTUATOR_OFF")
	require.True(t, status > 0 && voltage > 0 && state > 0, line)
	assert.Less(t, status, voltage)
	assert.Less(t, voltage, state)
}

func TestNewRejectsBadSchemas(t *testing.T) {
	base := func() Schema {
		return Schema{
			Boards: map[string]uint8{"ANY": 0},
			Enums:  map[string][]string{"e": {"A", "B"}},
			Messages: []MessageDef{
				{Name: "M", ID: 0x020, Fields: []FieldDef{{Name: "v", Type: "u8"}}},
			},
		}
	}

	_, err := New(base())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(s *Schema)
	}{
		{"low bits set", func(s *Schema) { s.Messages[0].ID = 0x021 }},
		{"id too wide", func(s *Schema) { s.Messages[0].ID = 0x800 }},
		{"board too wide", func(s *Schema) { s.Boards["BIG"] = 0x20 }},
		{"shared board id", func(s *Schema) { s.Boards["OTHER"] = 0 }},
		{"unknown type", func(s *Schema) { s.Messages[0].Fields[0].Type = "f64" }},
		{"unknown enum", func(s *Schema) { s.Messages[0].Fields[0] = FieldDef{Name: "v", Type: "enum", Enum: "x"} }},
		{"reserved name", func(s *Schema) { s.Messages[0].Fields[0].Name = domain.KeyTime }},
		{"payload too big", func(s *Schema) {
			s.Messages[0].Fields = append(s.Messages[0].Fields, FieldDef{Name: "a", Type: "u32"}, FieldDef{Name: "b", Type: "u8"})
		}},
		{"duplicate name", func(s *Schema) { s.Messages = append(s.Messages, MessageDef{Name: "M", ID: 0x040}) }},
		{"duplicate id", func(s *Schema) { s.Messages = append(s.Messages, MessageDef{Name: "N", ID: 0x020}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			tt.mutate(&s)
			_, err := New(s)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	schema := `
boards:
  ANY: 0x00
  BENCH: 0x1F
messages:
  - name: PING
    id: 0x7E0
    fields:
      - {name: seq, type: u16}
`
	require.NoError(t, os.WriteFile(path, []byte(schema), 0600))

	c, err := Load(path)
	require.NoError(t, err)

	id, data, err := c.Encode(domain.BusMessage{Type: "PING", BoardID: "BENCH", Data: map[string]any{"seq": 258}})
	require.NoError(t, err)
	assert.Equal(t, uint16(0x7FF), id)
	assert.Equal(t, []byte{0, 0, 0, 0x01, 0x02}, data)
	assert.Equal(t, []string{"PING"}, c.Messages())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
