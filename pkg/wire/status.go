package wire

import "fmt"

// Status represents a CoAP response code.
type Status uint8

const (
	// StatusNoError is the engine's "no error" marker, not a response code.
	StatusNoError Status = 0x00

	// StatusCreated (2.01) indicates an instance was created.
	StatusCreated Status = 0x41

	// StatusDeleted (2.02) indicates an instance was deleted.
	StatusDeleted Status = 0x42

	// StatusValid (2.03) indicates a cached representation is valid.
	StatusValid Status = 0x43

	// StatusChanged (2.04) indicates a write or execute succeeded.
	StatusChanged Status = 0x44

	// StatusContent (2.05) indicates a read returned content.
	StatusContent Status = 0x45

	// StatusBadRequest (4.00) indicates a malformed request or a value that
	// cannot be coerced to the resource type.
	StatusBadRequest Status = 0x80

	// StatusUnauthorized (4.01) indicates missing access rights.
	StatusUnauthorized Status = 0x81

	// StatusNotFound (4.04) indicates the target does not exist.
	StatusNotFound Status = 0x84

	// StatusMethodNotAllowed (4.05) indicates the operation is not supported
	// by the target.
	StatusMethodNotAllowed Status = 0x85

	// StatusNotAcceptable (4.06) indicates no acceptable content format.
	StatusNotAcceptable Status = 0x86

	// StatusInternalServerError (5.00) indicates a failure in the adapter or
	// a script handler.
	StatusInternalServerError Status = 0xA0

	// StatusNotImplemented (5.01) indicates an unsupported feature.
	StatusNotImplemented Status = 0xA1

	// StatusServiceUnavailable (5.03) indicates the device is busy.
	StatusServiceUnavailable Status = 0xA3
)

// Class returns the code class (2, 4 or 5 for response codes).
func (s Status) Class() uint8 {
	return uint8(s) >> 5
}

// Detail returns the code detail.
func (s Status) Detail() uint8 {
	return uint8(s) & 0x1F
}

// Code returns the dotted "c.dd" notation.
func (s Status) Code() string {
	return fmt.Sprintf("%d.%02d", s.Class(), s.Detail())
}

// String returns the dotted code and its name.
func (s Status) String() string {
	switch s {
	case StatusNoError:
		return "0.00 No Error"
	case StatusCreated:
		return "2.01 Created"
	case StatusDeleted:
		return "2.02 Deleted"
	case StatusValid:
		return "2.03 Valid"
	case StatusChanged:
		return "2.04 Changed"
	case StatusContent:
		return "2.05 Content"
	case StatusBadRequest:
		return "4.00 Bad Request"
	case StatusUnauthorized:
		return "4.01 Unauthorized"
	case StatusNotFound:
		return "4.04 Not Found"
	case StatusMethodNotAllowed:
		return "4.05 Method Not Allowed"
	case StatusNotAcceptable:
		return "4.06 Not Acceptable"
	case StatusInternalServerError:
		return "5.00 Internal Server Error"
	case StatusNotImplemented:
		return "5.01 Not Implemented"
	case StatusServiceUnavailable:
		return "5.03 Service Unavailable"
	default:
		return s.Code()
	}
}

// IsSuccess returns true for 2.xx codes.
func (s Status) IsSuccess() bool {
	return s.Class() == 2
}

// IsError returns true for 4.xx and 5.xx codes.
func (s Status) IsError() bool {
	return s.Class() >= 4
}
