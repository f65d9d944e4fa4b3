package model

import (
	"errors"
	"testing"
)

func TestTextCopiesAndKeepsZeroBytes(t *testing.T) {
	raw := []byte{'a', 0, 'b'}
	v := Text(raw)
	raw[0] = 'z'

	got, ok := v.TextValue()
	if !ok {
		t.Fatal("expected text value")
	}
	if string(got) != "a\x00b" {
		t.Errorf("TextValue() = %q, want %q", got, "a\x00b")
	}
}

func TestNewMultiSortsByInstanceID(t *testing.T) {
	v, err := NewMulti(
		Instance{ID: 2, Value: String("b")},
		Instance{ID: 1, Value: String("a")},
	)
	if err != nil {
		t.Fatalf("NewMulti() error = %v", err)
	}

	inst := v.Instances()
	if len(inst) != 2 || inst[0].ID != 1 || inst[1].ID != 2 {
		t.Fatalf("unexpected instance order: %v", inst)
	}
}

func TestNewMultiRejectsNesting(t *testing.T) {
	inner, err := NewMulti(Instance{ID: 0, Value: Int(1)})
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewMulti(Instance{ID: 0, Value: inner})
	if !errors.Is(err, ErrNestedMulti) {
		t.Errorf("expected ErrNestedMulti, got %v", err)
	}
}

func TestNewMultiRejectsDuplicates(t *testing.T) {
	_, err := NewMulti(Instance{ID: 3, Value: Int(1)}, Instance{ID: 3, Value: Int(2)})
	if !errors.Is(err, ErrDuplicateInstance) {
		t.Errorf("expected ErrDuplicateInstance, got %v", err)
	}
}

func TestValueAsInt(t *testing.T) {
	tests := []struct {
		name    string
		value   Value
		want    int64
		wantErr bool
	}{
		{"true", Bool(true), 1, false},
		{"false", Bool(false), 0, false},
		{"int", Int(-42), -42, false},
		{"decimal text", String("123"), 123, false},
		{"bad text", String("12a"), 0, true},
		{"empty", Empty(), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.value.AsInt()
			if (err != nil) != tt.wantErr {
				t.Fatalf("AsInt() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrNotInteger) {
				t.Errorf("expected ErrNotInteger, got %v", err)
			}
			if got != tt.want {
				t.Errorf("AsInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestValueEqual(t *testing.T) {
	m1, _ := NewMulti(Instance{ID: 1, Value: String("a")})
	m2, _ := NewMulti(Instance{ID: 1, Value: String("a")})
	m3, _ := NewMulti(Instance{ID: 1, Value: String("b")})

	if !m1.Equal(m2) {
		t.Error("equal multi values reported different")
	}
	if m1.Equal(m3) {
		t.Error("different multi values reported equal")
	}
	if Int(1).Equal(Bool(true)) {
		t.Error("int and bool must differ")
	}
	if !Empty().Equal(Value{}) {
		t.Error("zero value must be empty")
	}
}

func TestRecordKind(t *testing.T) {
	multi, _ := NewMulti(Instance{ID: 0, Value: Int(1)})

	if (Record{ID: 1, Value: Int(1)}).Kind() != KindResource {
		t.Error("scalar record should be a resource")
	}
	if (Record{ID: 1, Value: multi}).Kind() != KindMultipleResource {
		t.Error("multi record should be a multiple resource")
	}
}
