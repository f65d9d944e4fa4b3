package object

import (
	"errors"
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/sbernard31/lualwm2m/pkg/model"
	"github.com/sbernard31/lualwm2m/pkg/script"
	"github.com/sbernard31/lualwm2m/pkg/wire"
)

// Codec errors.
var (
	ErrCoercion        = errors.New("value cannot be coerced to the declared type")
	ErrUnsupportedKind = errors.New("unsupported value kind")
)

// Tag is the depth at which a value is decoded.
type Tag uint8

const (
	// TagResource is a top-level resource value. Tables become Multi.
	TagResource Tag = iota

	// TagResourceInstance is an entry inside a multiple resource.
	TagResourceInstance
)

// String returns the tag name.
func (t Tag) String() string {
	if t == TagResourceInstance {
		return "resource-instance"
	}
	return "resource"
}

// Decode converts a Lua value into a resource value.
func Decode(v lua.LValue, tag Tag, declared model.ResourceType) (model.Value, error) {
	switch script.KindOf(v) {
	case script.KindNil:
		return model.Empty(), nil

	case script.KindBool:
		b := lua.LVAsBool(v)
		if declared == model.TypeNumber || declared == model.TypeBoolean {
			if b {
				return model.Int(1), nil
			}
			return model.Int(0), nil
		}
		return model.Bool(b), nil

	case script.KindNumber:
		i, ok := script.ToInt64(v)
		if !ok {
			return model.Value{}, ErrCoercion
		}
		return model.Int(i), nil

	case script.KindString:
		return model.String(string(v.(lua.LString))), nil

	case script.KindTable:
		if tag == TagResourceInstance {
			return model.Value{}, model.ErrNestedMulti
		}
		return decodeMulti(v.(*lua.LTable), declared)

	default:
		return model.Value{}, ErrUnsupportedKind
	}
}

// decodeMulti collects the numeric-keyed entries of t in ascending order.
func decodeMulti(t *lua.LTable, declared model.ResourceType) (model.Value, error) {
	// Pass 1: count numeric keys
	ids := script.NumericKeys(t)

	// Pass 2: decode each entry
	instances := make([]model.Instance, 0, len(ids))
	for _, id := range ids {
		entry := t.RawGet(lua.LNumber(id))
		val, err := Decode(entry, TagResourceInstance, declared)
		if err != nil {
			return model.Value{}, err
		}
		instances = append(instances, model.Instance{ID: id, Value: val})
	}
	return model.NewMulti(instances...)
}

// DecodeRecord decodes v as the record for resource id.
func DecodeRecord(id uint16, v lua.LValue, declared model.ResourceType) (model.Record, error) {
	val, err := Decode(v, TagResource, declared)
	if err != nil {
		return model.Record{}, err
	}
	return model.Record{ID: id, Value: val}, nil
}

// Encode converts a resource value into the Lua value handed to a write
// handler. The declared type selects between number, boolean and string
// renditions of the same value.
func Encode(L *lua.LState, v model.Value, declared model.ResourceType) (lua.LValue, error) {
	switch v.Kind() {
	case model.KindEmpty:
		return lua.LNil, nil

	case model.KindBool:
		b, _ := v.BoolValue()
		switch declared {
		case model.TypeNumber:
			if b {
				return lua.LNumber(1), nil
			}
			return lua.LNumber(0), nil
		case model.TypeString:
			return lua.LString(strconv.FormatBool(b)), nil
		}
		return lua.LBool(b), nil

	case model.KindInt:
		i, _ := v.IntValue()
		return encodeInt(i, declared), nil

	case model.KindText:
		if declared == model.TypeNumber || declared == model.TypeBoolean {
			i, err := v.AsInt()
			if err != nil {
				return nil, ErrCoercion
			}
			return encodeInt(i, declared), nil
		}
		text, _ := v.TextValue()
		return lua.LString(text), nil

	case model.KindMulti:
		t := L.NewTable()
		for _, inst := range v.Instances() {
			if inst.Value.Kind() == model.KindMulti {
				return nil, model.ErrNestedMulti
			}
			entry, err := Encode(L, inst.Value, declared)
			if err != nil {
				return nil, err
			}
			t.RawSet(lua.LNumber(inst.ID), entry)
		}
		return t, nil

	default:
		return nil, ErrUnsupportedKind
	}
}

func encodeInt(i int64, declared model.ResourceType) lua.LValue {
	switch declared {
	case model.TypeBoolean:
		return lua.LBool(i != 0)
	case model.TypeString:
		return lua.LString(strconv.FormatInt(i, 10))
	}
	return lua.LNumber(i)
}

// StatusFor maps a codec error to the status reported to the engine.
func StatusFor(err error) wire.Status {
	switch {
	case err == nil:
		return wire.StatusNoError
	case errors.Is(err, ErrCoercion):
		return wire.StatusBadRequest
	case errors.Is(err, ErrUnsupportedKind):
		return wire.StatusNotImplemented
	default:
		return wire.StatusInternalServerError
	}
}
