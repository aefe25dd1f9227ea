// Package table implements the open-addressed, linear-probed hash map
// from interned string keys to Values. It
// backs the VM's globals; instance fields and class method/static
// tables are plain Go maps.
package table

import "github.com/kristofer/cloxvm/internal/value"

// entry is a single table slot. A deleted entry becomes a tombstone:
// Key == nil and Value == Bool(true). An empty (never-used) slot has
// Key == nil and Value == Nil.
type entry struct {
	key *value.ObjString
	val value.Value
}

const maxLoad = 0.75

// Table is the hash table. Capacity is always a power of two, and
// growth always rehashes, dropping tombstones in the process.
type Table struct {
	entries []entry
	count   int // live entries + tombstones
}

// New returns an empty table.
func New() *Table {
	return &Table{}
}

func isTombstone(e entry) bool {
	return e.key == nil && e.val.IsBool() && e.val.AsBool()
}

func isEmpty(e entry) bool {
	return e.key == nil && !isTombstone(e)
}

// findEntry returns the slot where key belongs: either its current
// slot, or the first tombstone/empty slot seen while probing (so
// re-insertion after deletion reuses the tombstone).
func findEntry(entries []entry, key *value.ObjString) int {
	capacity := len(entries)
	idx := int(key.Hash) % capacity
	var tombstone = -1
	for {
		e := &entries[idx]
		if e.key == nil {
			if isTombstone(*e) {
				if tombstone == -1 {
					tombstone = idx
				}
			} else {
				if tombstone != -1 {
					return tombstone
				}
				return idx
			}
		} else if e.key == key { // interned strings: identity comparison
			return idx
		}
		idx = (idx + 1) % capacity
	}
}

func (t *Table) grow(newCapacity int) {
	if newCapacity < 8 {
		newCapacity = 8
	}
	newEntries := make([]entry, newCapacity)
	t.count = 0
	for _, e := range t.entries {
		if e.key == nil {
			continue
		}
		idx := findEntry(newEntries, e.key)
		newEntries[idx] = entry{key: e.key, val: e.val}
		t.count++
	}
	t.entries = newEntries
}

// Set inserts or updates key -> val, returning true if this created a
// brand new key (as opposed to overwriting one).
func (t *Table) Set(key *value.ObjString, val value.Value) bool {
	if float64(t.count+1) > maxLoad*float64(capOrZero(t.entries)) {
		t.grow(capOrZero(t.entries) * 2)
	}
	idx := findEntry(t.entries, key)
	e := &t.entries[idx]
	isNewKey := e.key == nil
	if isNewKey && !isTombstone(*e) {
		t.count++
	}
	e.key = key
	e.val = val
	return isNewKey
}

func capOrZero(entries []entry) int {
	if len(entries) == 0 {
		return 0
	}
	return len(entries)
}

// Get looks up key, returning (value, true) if present.
func (t *Table) Get(key *value.ObjString) (value.Value, bool) {
	if len(t.entries) == 0 {
		return value.Nil, false
	}
	idx := findEntry(t.entries, key)
	e := &t.entries[idx]
	if e.key == nil {
		return value.Nil, false
	}
	return e.val, true
}

// Delete removes key, leaving a tombstone so later probes still find
// entries that were inserted after a collision with it.
func (t *Table) Delete(key *value.ObjString) bool {
	if len(t.entries) == 0 {
		return false
	}
	idx := findEntry(t.entries, key)
	e := &t.entries[idx]
	if e.key == nil {
		return false
	}
	e.key = nil
	e.val = value.Bool(true) // tombstone marker
	return true
}

// Count returns the number of live (non-tombstone) entries.
func (t *Table) Count() int {
	n := 0
	for _, e := range t.entries {
		if e.key != nil {
			n++
		}
	}
	return n
}

// Each calls fn for every live entry; iteration order is unspecified.
func (t *Table) Each(fn func(key *value.ObjString, val value.Value)) {
	for _, e := range t.entries {
		if e.key != nil {
			fn(e.key, e.val)
		}
	}
}

// FindString looks up a key by its raw bytes and hash, without
// needing a pre-existing *ObjString, and returns that key or nil.
func (t *Table) FindString(bs []byte, hash uint32) *value.ObjString {
	if len(t.entries) == 0 {
		return nil
	}
	capacity := len(t.entries)
	idx := int(hash) % capacity
	for {
		e := &t.entries[idx]
		if e.key == nil && !isTombstone(*e) {
			return nil
		}
		if e.key != nil && e.key.Hash == hash && string(e.key.Bytes) == string(bs) {
			return e.key
		}
		idx = (idx + 1) % capacity
	}
}
