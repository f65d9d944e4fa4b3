package script

import (
	"math"
	"slices"

	lua "github.com/yuin/gopher-lua"

	"github.com/sbernard31/lualwm2m/pkg/wire"
)

// Kind classifies a Lua value for conversion purposes.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindString
	KindTable
	KindFunction
	KindOther
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindTable:
		return "table"
	case KindFunction:
		return "function"
	default:
		return "other"
	}
}

// KindOf returns the kind of v. A nil interface counts as Lua nil.
func KindOf(v lua.LValue) Kind {
	if v == nil {
		return KindNil
	}
	switch v.Type() {
	case lua.LTNil:
		return KindNil
	case lua.LTBool:
		return KindBool
	case lua.LTNumber:
		return KindNumber
	case lua.LTString:
		return KindString
	case lua.LTTable:
		return KindTable
	case lua.LTFunction:
		return KindFunction
	default:
		return KindOther
	}
}

// ToUint16 converts an integral number in 0..65534 to an ID.
// 65535 is reserved and rejected.
func ToUint16(v lua.LValue) (uint16, bool) {
	n, ok := v.(lua.LNumber)
	if !ok {
		return 0, false
	}
	f := float64(n)
	if f != math.Trunc(f) || f < 0 || f >= math.MaxUint16 {
		return 0, false
	}
	return uint16(f), true
}

// ToInt64 truncates a number toward zero. It fails for NaN, infinities and
// values outside the int64 range.
func ToInt64(v lua.LValue) (int64, bool) {
	n, ok := v.(lua.LNumber)
	if !ok {
		return 0, false
	}
	f := math.Trunc(float64(n))
	if math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// StatusOf reads a status code returned by a handler.
func StatusOf(v lua.LValue) (wire.Status, bool) {
	n, ok := v.(lua.LNumber)
	if !ok {
		return 0, false
	}
	f := float64(n)
	if f != math.Trunc(f) || f < 0 || f > math.MaxUint8 {
		return 0, false
	}
	return wire.Status(uint8(f)), true
}

// NumericKeys returns the ID-shaped keys of t in ascending order.
// Keys that are not integral numbers in the ID range are ignored.
func NumericKeys(t *lua.LTable) []uint16 {
	if t == nil {
		return nil
	}
	var ids []uint16
	t.ForEach(func(k, _ lua.LValue) {
		if id, ok := ToUint16(k); ok {
			ids = append(ids, id)
		}
	})
	slices.Sort(ids)
	return slices.Compact(ids)
}

// NumericValues returns the ID-shaped values of a list-like table, in
// iteration order (array part first).
func NumericValues(t *lua.LTable) []uint16 {
	if t == nil {
		return nil
	}
	var ids []uint16
	t.ForEach(func(_, v lua.LValue) {
		if id, ok := ToUint16(v); ok {
			ids = append(ids, id)
		}
	})
	return ids
}
