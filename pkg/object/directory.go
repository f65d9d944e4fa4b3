package object

import "slices"

// Directory is the ordered set of instance IDs of one bound object.
// It mirrors the numeric keys of the script table and is only mutated by
// the owning Binding.
type Directory struct {
	ids []uint16
}

// NewDirectory builds a directory from ids. Duplicates collapse.
func NewDirectory(ids ...uint16) *Directory {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	return &Directory{ids: slices.Compact(sorted)}
}

// Add inserts id. Inserting an id that is already present is a caller bug
// and is ignored.
func (d *Directory) Add(id uint16) {
	i, found := slices.BinarySearch(d.ids, id)
	if found {
		return
	}
	d.ids = slices.Insert(d.ids, i, id)
}

// Remove deletes id and reports whether it was present.
func (d *Directory) Remove(id uint16) bool {
	i, found := slices.BinarySearch(d.ids, id)
	if !found {
		return false
	}
	d.ids = slices.Delete(d.ids, i, i+1)
	return true
}

// Contains reports whether id is present.
func (d *Directory) Contains(id uint16) bool {
	_, found := slices.BinarySearch(d.ids, id)
	return found
}

// IDs returns the instance IDs in ascending order.
func (d *Directory) IDs() []uint16 {
	return slices.Clone(d.ids)
}

// Len returns the number of instances.
func (d *Directory) Len() int {
	return len(d.ids)
}
