package wire

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder mode for frames.
// Configured for deterministic encoding with integer keys.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for frames.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Lenient for forward compatibility
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// PeekKind reads the frame kind (key 1) without decoding the rest.
func PeekKind(data []byte) (Kind, error) {
	var peek struct {
		Kind Kind `cbor:"1,keyasint"`
	}
	if err := Unmarshal(data, &peek); err != nil {
		return KindUnknown, fmt.Errorf("failed to peek frame: %w", err)
	}
	return peek.Kind, nil
}

// EncodeRequest encodes a request frame.
func EncodeRequest(req *Request) ([]byte, error) {
	req.Kind = KindRequest
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return Marshal(req)
}

// DecodeRequest decodes and validates a request frame.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return &req, nil
}

// EncodeResponse encodes a response frame.
func EncodeResponse(resp *Response) ([]byte, error) {
	resp.Kind = KindResponse
	return Marshal(resp)
}

// DecodeResponse decodes a response frame.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.Kind != KindResponse {
		return nil, fmt.Errorf("not a response: kind=%d", resp.Kind)
	}
	return &resp, nil
}

// EncodeRegistration encodes a registration frame.
func EncodeRegistration(reg *Registration) ([]byte, error) {
	reg.Kind = KindRegistration
	return Marshal(reg)
}

// DecodeRegistration decodes a registration frame.
func DecodeRegistration(data []byte) (*Registration, error) {
	var reg Registration
	if err := Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to decode registration: %w", err)
	}
	if reg.Kind != KindRegistration {
		return nil, fmt.Errorf("not a registration: kind=%d", reg.Kind)
	}
	return &reg, nil
}

// EncodeUpdate encodes a registration update frame.
func EncodeUpdate(upd *Update) ([]byte, error) {
	upd.Kind = KindUpdate
	return Marshal(upd)
}

// DecodeUpdate decodes a registration update frame.
func DecodeUpdate(data []byte) (*Update, error) {
	var upd Update
	if err := Unmarshal(data, &upd); err != nil {
		return nil, fmt.Errorf("failed to decode update: %w", err)
	}
	if upd.Kind != KindUpdate {
		return nil, fmt.Errorf("not an update: kind=%d", upd.Kind)
	}
	return &upd, nil
}

// EncodeDeregistration encodes a deregistration frame.
func EncodeDeregistration(dereg *Deregistration) ([]byte, error) {
	dereg.Kind = KindDeregistration
	return Marshal(dereg)
}

// DecodeDeregistration decodes a deregistration frame.
func DecodeDeregistration(data []byte) (*Deregistration, error) {
	var dereg Deregistration
	if err := Unmarshal(data, &dereg); err != nil {
		return nil, fmt.Errorf("failed to decode deregistration: %w", err)
	}
	if dereg.Kind != KindDeregistration {
		return nil, fmt.Errorf("not a deregistration: kind=%d", dereg.Kind)
	}
	return &dereg, nil
}

// EncodeNotification encodes a notification frame.
func EncodeNotification(notif *Notification) ([]byte, error) {
	notif.Kind = KindNotification
	return Marshal(notif)
}

// DecodeNotification decodes a notification frame.
func DecodeNotification(data []byte) (*Notification, error) {
	var notif Notification
	if err := Unmarshal(data, &notif); err != nil {
		return nil, fmt.Errorf("failed to decode notification: %w", err)
	}
	if notif.Kind != KindNotification {
		return nil, fmt.Errorf("not a notification: kind=%d", notif.Kind)
	}
	return &notif, nil
}

// Equal compares two values by their CBOR encoding.
func Equal(a, b any) bool {
	dataA, errA := Marshal(a)
	dataB, errB := Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(dataA, dataB)
}
