package object

import (
	"slices"
	"testing"
)

func TestDirectory(t *testing.T) {
	d := NewDirectory(7, 0, 3, 3)

	if got := d.IDs(); !slices.Equal(got, []uint16{0, 3, 7}) {
		t.Fatalf("IDs() = %v, want [0 3 7]", got)
	}

	d.Add(5)
	d.Add(5) // duplicate is ignored
	if got := d.IDs(); !slices.Equal(got, []uint16{0, 3, 5, 7}) {
		t.Errorf("after Add: IDs() = %v", got)
	}
	if d.Len() != 4 {
		t.Errorf("Len() = %d, want 4", d.Len())
	}

	if !d.Contains(5) || d.Contains(4) {
		t.Error("Contains mismatch")
	}

	if !d.Remove(3) {
		t.Error("Remove(3) = false, want true")
	}
	if d.Remove(3) {
		t.Error("second Remove(3) = true, want false")
	}
	if d.Contains(3) {
		t.Error("3 still present after Remove")
	}
}

func TestDirectoryIDsIsCopy(t *testing.T) {
	d := NewDirectory(1, 2)
	ids := d.IDs()
	ids[0] = 9
	if !d.Contains(1) || d.Contains(9) {
		t.Error("IDs() must not alias internal storage")
	}
}
