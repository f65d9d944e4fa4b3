package wire

import (
	"fmt"

	"github.com/sbernard31/lualwm2m/pkg/model"
)

// Kind identifies a frame. It is always encoded under key 1.
type Kind uint8

const (
	KindUnknown        Kind = 0
	KindRequest        Kind = 1
	KindResponse       Kind = 2
	KindRegistration   Kind = 3
	KindUpdate         Kind = 4
	KindDeregistration Kind = 5
	KindNotification   Kind = 6
)

// String returns the frame kind name.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "Request"
	case KindResponse:
		return "Response"
	case KindRegistration:
		return "Registration"
	case KindUpdate:
		return "Update"
	case KindDeregistration:
		return "Deregistration"
	case KindNotification:
		return "Notification"
	default:
		return "Unknown"
	}
}

// Request is an operation sent by a server to the client.
//
// CBOR encoding:
//
//	{
//	  1: kind,       // 1
//	  2: messageId,  // uint32
//	  3: operation,  // uint8
//	  4: uri,        // "/o[/i[/r]]"
//	  5: records,    // write/create values
//	  6: payload     // execute arguments
//	}
type Request struct {
	Kind      Kind      `cbor:"1,keyasint"`
	MessageID uint32    `cbor:"2,keyasint"`
	Operation Operation `cbor:"3,keyasint"`
	URI       string    `cbor:"4,keyasint"`
	Records   []Record  `cbor:"5,keyasint,omitempty"`
	Payload   []byte    `cbor:"6,keyasint,omitempty"`
}

// Validate checks if the request is well formed.
func (r *Request) Validate() error {
	if r.Kind != KindRequest {
		return fmt.Errorf("not a request: kind=%d", r.Kind)
	}
	if !r.Operation.IsValid() {
		return fmt.Errorf("invalid operation: %d", r.Operation)
	}
	if _, err := model.ParseURI(r.URI); err != nil {
		return err
	}
	return nil
}

// InstanceRecords groups the records read from one instance.
type InstanceRecords struct {
	ID      uint16   `cbor:"1,keyasint"`
	Records []Record `cbor:"2,keyasint"`
}

// Response answers a Request or a registration frame.
//
// CBOR encoding:
//
//	{
//	  1: kind,       // 2
//	  2: messageId,  // matches the request
//	  3: status,     // CoAP code
//	  4: records,    // instance or resource read
//	  5: payload,    // location, links
//	  6: instances   // object-level read
//	}
type Response struct {
	Kind      Kind              `cbor:"1,keyasint"`
	MessageID uint32            `cbor:"2,keyasint"`
	Status    Status            `cbor:"3,keyasint"`
	Records   []Record          `cbor:"4,keyasint,omitempty"`
	Payload   []byte            `cbor:"5,keyasint,omitempty"`
	Instances []InstanceRecords `cbor:"6,keyasint,omitempty"`
}

// IsSuccess returns true if the response carries a 2.xx status.
func (r *Response) IsSuccess() bool {
	return r.Status.IsSuccess()
}

// Registration announces the client and its objects to a server.
type Registration struct {
	Kind      Kind   `cbor:"1,keyasint"`
	MessageID uint32 `cbor:"2,keyasint"`
	Endpoint  string `cbor:"3,keyasint"`
	Lifetime  uint32 `cbor:"4,keyasint"`
	Binding   string `cbor:"5,keyasint"`
	SMS       string `cbor:"6,keyasint,omitempty"`
	Links     string `cbor:"7,keyasint"`
}

// Update refreshes a registration before its lifetime expires.
type Update struct {
	Kind      Kind   `cbor:"1,keyasint"`
	MessageID uint32 `cbor:"2,keyasint"`
	Location  string `cbor:"3,keyasint"`
	Lifetime  uint32 `cbor:"4,keyasint,omitempty"`
	Links     string `cbor:"5,keyasint,omitempty"`
}

// Deregistration removes the client from a server.
type Deregistration struct {
	Kind      Kind   `cbor:"1,keyasint"`
	MessageID uint32 `cbor:"2,keyasint"`
	Location  string `cbor:"3,keyasint"`
}

// Notification reports a change on an observed URI.
type Notification struct {
	Kind     Kind     `cbor:"1,keyasint"`
	Sequence uint32   `cbor:"2,keyasint"`
	URI      string   `cbor:"3,keyasint"`
	Status   Status   `cbor:"4,keyasint"`
	Records  []Record `cbor:"5,keyasint,omitempty"`
}
