package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// URI errors.
var (
	ErrEmptyURI   = errors.New("empty uri")
	ErrInvalidURI = errors.New("invalid uri format")
	ErrInvalidID  = errors.New("invalid id in uri")
)

// URI flags.
const (
	URIFlagInstance uint8 = 1 << iota
	URIFlagResource
)

// URI addresses an object, an instance or a resource.
type URI struct {
	ObjectID   uint16
	InstanceID uint16
	ResourceID uint16
	Flags      uint8
}

// ObjectURI returns the URI of an object.
func ObjectURI(objectID uint16) URI {
	return URI{ObjectID: objectID}
}

// InstanceURI returns the URI of an object instance.
func InstanceURI(objectID, instanceID uint16) URI {
	return URI{ObjectID: objectID, InstanceID: instanceID, Flags: URIFlagInstance}
}

// ResourceURI returns the URI of a resource.
func ResourceURI(objectID, instanceID, resourceID uint16) URI {
	return URI{
		ObjectID:   objectID,
		InstanceID: instanceID,
		ResourceID: resourceID,
		Flags:      URIFlagInstance | URIFlagResource,
	}
}

// ParseURI parses "/object[/instance[/resource]]". The leading slash is
// optional; IDs are decimal.
func ParseURI(input string) (URI, error) {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "/")
	if input == "" {
		return URI{}, ErrEmptyURI
	}

	parts := strings.Split(input, "/")
	if len(parts) > 3 {
		return URI{}, fmt.Errorf("%w: too many segments", ErrInvalidURI)
	}

	ids := make([]uint16, len(parts))
	for i, part := range parts {
		if part == "" {
			return URI{}, fmt.Errorf("%w: empty segment", ErrInvalidURI)
		}
		id, err := parseID(part)
		if err != nil {
			return URI{}, err
		}
		ids[i] = id
	}

	u := URI{ObjectID: ids[0]}
	if len(ids) > 1 {
		u.InstanceID = ids[1]
		u.Flags |= URIFlagInstance
	}
	if len(ids) > 2 {
		u.ResourceID = ids[2]
		u.Flags |= URIFlagResource
	}
	return u, nil
}

func parseID(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil || uint16(v) == MaxID {
		return 0, fmt.Errorf("%w: %s", ErrInvalidID, s)
	}
	return uint16(v), nil
}

// HasInstance reports whether the URI addresses an instance or deeper.
func (u URI) HasInstance() bool {
	return u.Flags&URIFlagInstance != 0
}

// HasResource reports whether the URI addresses a resource.
func (u URI) HasResource() bool {
	return u.Flags&URIFlagResource != 0
}

// Contains reports whether other is u or lies below u.
func (u URI) Contains(other URI) bool {
	if u.ObjectID != other.ObjectID {
		return false
	}
	if !u.HasInstance() {
		return true
	}
	if !other.HasInstance() || u.InstanceID != other.InstanceID {
		return false
	}
	if !u.HasResource() {
		return true
	}
	return other.HasResource() && u.ResourceID == other.ResourceID
}

// String returns the URI as "/o/i/r".
func (u URI) String() string {
	var sb strings.Builder
	sb.WriteString("/")
	sb.WriteString(strconv.Itoa(int(u.ObjectID)))
	if u.HasInstance() {
		sb.WriteString("/")
		sb.WriteString(strconv.Itoa(int(u.InstanceID)))
	}
	if u.HasResource() {
		sb.WriteString("/")
		sb.WriteString(strconv.Itoa(int(u.ResourceID)))
	}
	return sb.String()
}
