package model

import (
	"errors"
	"fmt"
)

// ErrUnknownBinding is returned for binding strings outside the LWM2M set.
var ErrUnknownBinding = errors.New("unknown binding mode")

// Binding is the transport binding mode announced at registration.
type Binding uint8

const (
	BindingUnknown Binding = iota
	BindingU
	BindingUQ
	BindingS
	BindingSQ
	BindingUS
	BindingUQS
)

var bindingNames = map[Binding]string{
	BindingU:   "U",
	BindingUQ:  "UQ",
	BindingS:   "S",
	BindingSQ:  "SQ",
	BindingUS:  "US",
	BindingUQS: "UQS",
}

// ParseBinding maps "U", "UQ", "S", "SQ", "US" or "UQS" to a Binding.
func ParseBinding(s string) (Binding, error) {
	for b, name := range bindingNames {
		if name == s {
			return b, nil
		}
	}
	return BindingUnknown, fmt.Errorf("%w: %q", ErrUnknownBinding, s)
}

// String returns the binding string.
func (b Binding) String() string {
	if name, ok := bindingNames[b]; ok {
		return name
	}
	return "unknown"
}

// IsValid returns true for a known binding mode.
func (b Binding) IsValid() bool {
	_, ok := bindingNames[b]
	return ok
}
