package wire

import (
	"errors"
	"testing"

	"github.com/sbernard31/lualwm2m/pkg/model"
)

func TestRequestEncodeDecode(t *testing.T) {
	req := &Request{
		MessageID: 7,
		Operation: OpWrite,
		URI:       "/3/0",
		Records:   FromRecords([]model.Record{{ID: 14, Value: model.String("+02")}}),
	}

	data, err := EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest() error = %v", err)
	}

	kind, err := PeekKind(data)
	if err != nil {
		t.Fatalf("PeekKind() error = %v", err)
	}
	if kind != KindRequest {
		t.Errorf("PeekKind() = %s, want Request", kind)
	}

	decoded, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("DecodeRequest() error = %v", err)
	}
	if decoded.MessageID != 7 || decoded.Operation != OpWrite || decoded.URI != "/3/0" {
		t.Errorf("unexpected request: %+v", decoded)
	}

	records, err := ToRecords(decoded.Records)
	if err != nil {
		t.Fatalf("ToRecords() error = %v", err)
	}
	if len(records) != 1 || !records[0].Value.Equal(model.String("+02")) {
		t.Errorf("unexpected records: %v", records)
	}
}

func TestEncodeRequestRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"bad operation", Request{MessageID: 1, Operation: 99, URI: "/3"}},
		{"bad uri", Request{MessageID: 1, Operation: OpRead, URI: "/a/b"}},
		{"empty uri", Request{MessageID: 1, Operation: OpRead}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeRequest(&tt.req); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDecodeResponseRejectsOtherKinds(t *testing.T) {
	data, err := EncodeNotification(&Notification{Sequence: 1, URI: "/3/0/13", Status: StatusContent})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeResponse(data); err == nil {
		t.Error("expected error decoding a notification as response")
	}
	if _, err := DecodeNotification(data); err != nil {
		t.Errorf("DecodeNotification() error = %v", err)
	}
}

func TestRegistrationFrame(t *testing.T) {
	data, err := EncodeRegistration(&Registration{
		MessageID: 3,
		Endpoint:  "dev-1",
		Lifetime:  300,
		Binding:   "U",
		Links:     "</3/0>",
	})
	if err != nil {
		t.Fatal(err)
	}

	reg, err := DecodeRegistration(data)
	if err != nil {
		t.Fatalf("DecodeRegistration() error = %v", err)
	}
	if reg.Endpoint != "dev-1" || reg.Lifetime != 300 || reg.Links != "</3/0>" {
		t.Errorf("unexpected registration: %+v", reg)
	}
}

func TestRecordBooleanTravelsAsInteger(t *testing.T) {
	rec := FromValue(1, model.Bool(true))
	if rec.Type != RecordInt || rec.Int != 1 {
		t.Fatalf("FromValue(true) = %+v", rec)
	}

	v, err := rec.Value()
	if err != nil {
		t.Fatal(err)
	}
	if !v.Equal(model.Int(1)) {
		t.Errorf("Value() = %s, want 1", v)
	}
}

func TestRecordTextKeepsZeroBytes(t *testing.T) {
	rec := FromValue(2, model.Text([]byte("a\x00b")))

	data, err := Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	var decoded Record
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}

	v, err := decoded.Value()
	if err != nil {
		t.Fatal(err)
	}
	if !v.Equal(model.Text([]byte("a\x00b"))) {
		t.Errorf("Value() = %s", v)
	}
}

func TestRecordMultiInstance(t *testing.T) {
	multi, err := model.NewMulti(
		model.Instance{ID: 1, Value: model.String("a")},
		model.Instance{ID: 2, Value: model.String("b")},
	)
	if err != nil {
		t.Fatal(err)
	}

	rec := FromValue(6, multi)
	if rec.Type != RecordMulti || len(rec.Instances) != 2 {
		t.Fatalf("FromValue(multi) = %+v", rec)
	}

	v, err := rec.Value()
	if err != nil {
		t.Fatal(err)
	}
	if !v.Equal(multi) {
		t.Errorf("Value() = %s, want %s", v, multi)
	}
}

func TestRecordRejectsNestedMulti(t *testing.T) {
	rec := Record{
		ID:   6,
		Type: RecordMulti,
		Instances: []Record{
			{ID: 0, Type: RecordMulti},
		},
	}

	_, err := ToRecords([]Record{rec})
	if !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusContent, "2.05 Content"},
		{StatusChanged, "2.04 Changed"},
		{StatusNotFound, "4.04 Not Found"},
		{StatusNotImplemented, "5.01 Not Implemented"},
		{Status(0x9F), "4.31"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%#x).String() = %q, want %q", uint8(tt.status), got, tt.want)
		}
	}

	if !StatusCreated.IsSuccess() || StatusBadRequest.IsSuccess() {
		t.Error("IsSuccess mismatch")
	}
	if !StatusInternalServerError.IsError() || StatusContent.IsError() {
		t.Error("IsError mismatch")
	}
}
