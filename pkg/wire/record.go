package wire

import (
	"errors"
	"fmt"

	"github.com/sbernard31/lualwm2m/pkg/model"
)

// ErrInvalidRecord is returned for records that do not map to a model value.
var ErrInvalidRecord = errors.New("invalid record")

// RecordType is the encoded variant of a Record. Booleans travel as
// integers.
type RecordType uint8

const (
	RecordEmpty RecordType = 0
	RecordInt   RecordType = 1
	RecordText  RecordType = 2
	RecordMulti RecordType = 3
)

// Record is the wire form of a model.Record or of one resource instance.
//
// CBOR encoding:
//
//	{
//	  1: id,         // uint16
//	  2: type,       // 0=empty, 1=int, 2=text, 3=multi
//	  3: int,
//	  4: text,       // bytes, length-exact
//	  5: instances   // multi entries
//	}
type Record struct {
	ID        uint16     `cbor:"1,keyasint"`
	Type      RecordType `cbor:"2,keyasint"`
	Int       int64      `cbor:"3,keyasint,omitempty"`
	Text      []byte     `cbor:"4,keyasint,omitempty"`
	Instances []Record   `cbor:"5,keyasint,omitempty"`
}

// FromValue converts a model value to its wire form under id.
func FromValue(id uint16, v model.Value) Record {
	rec := Record{ID: id}
	switch v.Kind() {
	case model.KindBool, model.KindInt:
		n, _ := v.AsInt()
		rec.Type = RecordInt
		rec.Int = n
	case model.KindText:
		text, _ := v.TextValue()
		rec.Type = RecordText
		rec.Text = text
	case model.KindMulti:
		rec.Type = RecordMulti
		for _, inst := range v.Instances() {
			rec.Instances = append(rec.Instances, FromValue(inst.ID, inst.Value))
		}
	default:
		rec.Type = RecordEmpty
	}
	return rec
}

// FromRecords converts model records to wire records.
func FromRecords(records []model.Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		out = append(out, FromValue(r.ID, r.Value))
	}
	return out
}

// Value converts the wire record back to a model value.
func (r Record) Value() (model.Value, error) {
	return r.value(model.KindResource)
}

func (r Record) value(kind model.RecordKind) (model.Value, error) {
	switch r.Type {
	case RecordEmpty:
		return model.Empty(), nil
	case RecordInt:
		return model.Int(r.Int), nil
	case RecordText:
		return model.Text(r.Text), nil
	case RecordMulti:
		if kind == model.KindResourceInstance {
			return model.Value{}, fmt.Errorf("%w: nested multiple resource %d", ErrInvalidRecord, r.ID)
		}
		entries := make([]model.Instance, 0, len(r.Instances))
		for _, sub := range r.Instances {
			v, err := sub.value(model.KindResourceInstance)
			if err != nil {
				return model.Value{}, err
			}
			entries = append(entries, model.Instance{ID: sub.ID, Value: v})
		}
		v, err := model.NewMulti(entries...)
		if err != nil {
			return model.Value{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		return v, nil
	default:
		return model.Value{}, fmt.Errorf("%w: unknown type %d", ErrInvalidRecord, r.Type)
	}
}

// ToRecords converts wire records to model records.
func ToRecords(records []Record) ([]model.Record, error) {
	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		v, err := r.Value()
		if err != nil {
			return nil, err
		}
		out = append(out, model.Record{ID: r.ID, Value: v})
	}
	return out, nil
}
