package model

import "fmt"

// MaxID is reserved by the protocol and never identifies an object,
// instance or resource.
const MaxID uint16 = 0xFFFF

// DefaultInstanceID is the instance ID of single-instance objects.
const DefaultInstanceID uint16 = 0

// RecordKind tags how a value is placed in the object tree.
type RecordKind uint8

const (
	// KindResource is a single-instance resource.
	KindResource RecordKind = iota

	// KindMultipleResource is a resource holding resource instances.
	KindMultipleResource

	// KindResourceInstance is one entry inside a multiple resource.
	KindResourceInstance
)

// String returns the record kind name.
func (k RecordKind) String() string {
	switch k {
	case KindResource:
		return "resource"
	case KindMultipleResource:
		return "multiple-resource"
	case KindResourceInstance:
		return "resource-instance"
	default:
		return "unknown"
	}
}

// Record is a resource value exchanged with the management engine.
// A read or write carries a sequence of records sharing one instance ID.
type Record struct {
	ID    uint16
	Value Value
}

// Kind returns KindMultipleResource for Multi values and KindResource
// otherwise.
func (r Record) Kind() RecordKind {
	if r.Value.Kind() == KindMulti {
		return KindMultipleResource
	}
	return KindResource
}

// String returns the record as "id=value".
func (r Record) String() string {
	return fmt.Sprintf("%d=%s", r.ID, r.Value)
}

// RecordIDs returns the resource IDs of records, in order.
func RecordIDs(records []Record) []uint16 {
	ids := make([]uint16, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}
