package model

import "strings"

// ResourceType is the primitive type a script declares for a resource.
// The numeric values match the tags scripts return from their type handler.
type ResourceType uint8

const (
	TypeUnknown ResourceType = 0
	TypeString  ResourceType = 1
	TypeNumber  ResourceType = 2
	TypeBoolean ResourceType = 3
)

// String returns the type tag.
func (t ResourceType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeNumber:
		return "number"
	case TypeBoolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// ResourceTypeFromNumber maps a numeric type tag to a ResourceType.
func ResourceTypeFromNumber(n int64) ResourceType {
	switch n {
	case int64(TypeString), int64(TypeNumber), int64(TypeBoolean):
		return ResourceType(n)
	default:
		return TypeUnknown
	}
}

// ParseResourceType maps a textual type tag ("string", "number", "boolean")
// to a ResourceType. Unknown tags yield TypeUnknown.
func ParseResourceType(s string) ResourceType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string":
		return TypeString
	case "number", "integer", "int":
		return TypeNumber
	case "boolean", "bool":
		return TypeBoolean
	default:
		return TypeUnknown
	}
}
