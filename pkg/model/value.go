package model

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Value errors.
var (
	ErrNestedMulti       = errors.New("multiple resource cannot contain a multiple resource")
	ErrDuplicateInstance = errors.New("duplicate resource instance id")
	ErrNotInteger        = errors.New("value is not an integer")
)

// ValueKind identifies the variant held by a Value.
type ValueKind uint8

const (
	KindEmpty ValueKind = iota
	KindBool
	KindInt
	KindText
	KindMulti
)

// String returns the value kind name.
func (k ValueKind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindText:
		return "text"
	case KindMulti:
		return "multi"
	default:
		return "unknown"
	}
}

// Instance is one element of a multiple-instance resource.
type Instance struct {
	ID    uint16
	Value Value
}

// Value is a resource value. The zero Value is Empty.
type Value struct {
	kind      ValueKind
	b         bool
	i         int64
	text      []byte
	instances []Instance
}

// Empty returns the empty value.
func Empty() Value {
	return Value{}
}

// Bool returns a boolean value.
func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// Int returns a 64-bit integer value.
func Int(i int64) Value {
	return Value{kind: KindInt, i: i}
}

// Text returns a text value holding a copy of b. Embedded zero bytes are kept.
func Text(b []byte) Value {
	return Value{kind: KindText, text: bytes.Clone(nonNil(b))}
}

// String returns a text value holding s.
func String(s string) Value {
	return Value{kind: KindText, text: []byte(s)}
}

// NewMulti returns a multiple-instance value. Entries are stored in ascending
// instance ID order.
func NewMulti(entries ...Instance) (Value, error) {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b Instance) int { return int(a.ID) - int(b.ID) })

	for i, e := range sorted {
		if e.Value.kind == KindMulti {
			return Value{}, fmt.Errorf("%w: instance %d", ErrNestedMulti, e.ID)
		}
		if i > 0 && sorted[i-1].ID == e.ID {
			return Value{}, fmt.Errorf("%w: %d", ErrDuplicateInstance, e.ID)
		}
	}
	if sorted == nil {
		sorted = []Instance{}
	}
	return Value{kind: KindMulti, instances: sorted}, nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// Kind returns the variant held by v.
func (v Value) Kind() ValueKind {
	return v.kind
}

// IsEmpty reports whether v is Empty.
func (v Value) IsEmpty() bool {
	return v.kind == KindEmpty
}

// BoolValue returns the boolean and true if v is a Bool.
func (v Value) BoolValue() (bool, bool) {
	return v.b, v.kind == KindBool
}

// IntValue returns the integer and true if v is an Int.
func (v Value) IntValue() (int64, bool) {
	return v.i, v.kind == KindInt
}

// TextValue returns the text bytes and true if v is Text.
// The returned slice must not be modified.
func (v Value) TextValue() ([]byte, bool) {
	return v.text, v.kind == KindText
}

// Instances returns the resource instances of a Multi value, nil otherwise.
func (v Value) Instances() []Instance {
	if v.kind != KindMulti {
		return nil
	}
	return slices.Clone(v.instances)
}

// AsInt converts v to an integer the way the wire layer does: booleans are
// 1 or 0 and text must hold a decimal integer.
func (v Value) AsInt() (int64, error) {
	switch v.kind {
	case KindBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case KindInt:
		return v.i, nil
	case KindText:
		n, err := strconv.ParseInt(strings.TrimSpace(string(v.text)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotInteger, v.text)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrNotInteger, v.kind)
	}
}

// Equal reports whether v and o hold the same variant and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindEmpty:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindText:
		return bytes.Equal(v.text, o.text)
	case KindMulti:
		return slices.EqualFunc(v.instances, o.instances, func(a, b Instance) bool {
			return a.ID == b.ID && a.Value.Equal(b.Value)
		})
	}
	return false
}

// String returns a human-readable representation of v.
func (v Value) String() string {
	switch v.kind {
	case KindEmpty:
		return "<empty>"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindText:
		return strconv.Quote(string(v.text))
	case KindMulti:
		var sb strings.Builder
		sb.WriteString("{")
		for i, e := range v.instances {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%d: %s", e.ID, e.Value)
		}
		sb.WriteString("}")
		return sb.String()
	}
	return "<unknown>"
}
