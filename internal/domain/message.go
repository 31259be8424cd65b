package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Top-level bus message keys, usable as receive criteria.
const (
	KeyMsgType = "msg_type"
	KeyBoardID = "board_id"
	KeyTime    = "time"
)

// DefaultBoardID is the originator used when a caller does not set one.
const DefaultBoardID = "ANY"

// BusMessage is a structured field-bus record. Data holds the named payload
// fields; numeric values are int64 and enum values are strings.
type BusMessage struct {
	Type    string         `json:"msg_type"`
	BoardID string         `json:"board_id"`
	Time    float64        `json:"time"` // seconds
	Data    map[string]any `json:"data"`
}

// Criteria selects bus messages. Each key is looked up first among the
// top-level keys and then in Data; every key must resolve and match.
type Criteria map[string]any

// Lookup resolves key against the top-level fields, then the payload.
func (m *BusMessage) Lookup(key string) (any, bool) {
	switch key {
	case KeyMsgType:
		return m.Type, true
	case KeyBoardID:
		return m.BoardID, true
	case KeyTime:
		return m.Time, true
	}
	v, ok := m.Data[key]
	return v, ok
}

// Matches reports whether m satisfies every criterion.
func (m *BusMessage) Matches(c Criteria) bool {
	for k, want := range c {
		got, ok := m.Lookup(k)
		if !ok || !ValuesEqual(got, want) {
			return false
		}
	}
	return true
}

// Number returns a payload field as float64.
func (m *BusMessage) Number(key string) (float64, bool) {
	v, ok := m.Lookup(key)
	if !ok {
		return 0, false
	}
	return AsFloat(v)
}

// String returns a payload field as a string.
func (m *BusMessage) String(key string) (string, bool) {
	v, ok := m.Lookup(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Summary renders the message on one line with payload keys sorted.
func (m *BusMessage) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[ %-24s %-14s %9.3f ]", m.Type, m.BoardID, m.Time)
	keys := make([]string, 0, len(m.Data))
	for k := range m.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s: %v", k, m.Data[k])
	}
	return b.String()
}

// AsFloat converts any Go numeric value to float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// ValuesEqual compares two values, treating numbers of different Go types as
// equal when their values are.
func ValuesEqual(a, b any) bool {
	fa, aNum := AsFloat(a)
	fb, bNum := AsFloat(b)
	if aNum || bNum {
		return aNum && bNum && fa == fb
	}
	defer func() { _ = recover() }() // uncomparable dynamic types never match
	return a == b
}
