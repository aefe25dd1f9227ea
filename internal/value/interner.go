package value

import "bytes"

// internSlot is a slot in the interner's open-addressed set. An empty
// slot has str == nil; a tombstone has str == nil and tombstone == true.
type internSlot struct {
	str       *ObjString
	tombstone bool
}

// Interner is the process-wide string table
// §4.3: open-addressed, linear-probed, keyed by hash and byte
// content, guaranteeing that two equal byte sequences are always the
// same *ObjString.
//
// The interner's entries are a GC weak reference: DropUnmarked is
// called by the collector after marking and before sweeping, so
// strings that are otherwise garbage don't get resurrected just
// because the interner still points at them.
type Interner struct {
	slots []internSlot
	count int // live entries + tombstones
	live  int // live entries only
}

// NewInterner returns an empty interner with its initial capacity.
func NewInterner() *Interner {
	return &Interner{slots: make([]internSlot, 8)}
}

func (in *Interner) findSlot(slots []internSlot, bs []byte, hash uint32) int {
	capacity := len(slots)
	idx := int(hash) % capacity
	var tombstoneIdx = -1
	for {
		slot := &slots[idx]
		if slot.str == nil {
			if slot.tombstone {
				if tombstoneIdx == -1 {
					tombstoneIdx = idx
				}
			} else {
				if tombstoneIdx != -1 {
					return tombstoneIdx
				}
				return idx
			}
		} else if slot.str.Hash == hash && bytes.Equal(slot.str.Bytes, bs) {
			return idx
		}
		idx = (idx + 1) % capacity
	}
}

func (in *Interner) grow() {
	newCap := len(in.slots) * 2
	if newCap < 8 {
		newCap = 8
	}
	newSlots := make([]internSlot, newCap)
	for _, slot := range in.slots {
		if slot.str == nil {
			continue
		}
		idx := in.findSlot(newSlots, slot.str.Bytes, slot.str.Hash)
		newSlots[idx] = internSlot{str: slot.str}
	}
	in.slots = newSlots
	in.count = in.live
}

// Intern returns the canonical *ObjString for bs, allocating a fresh
// one (via alloc) and inserting it if no equal string exists yet.
// alloc is supplied by the caller (the GC) so every new ObjString is
// still registered on the heap object list before it escapes.
func (in *Interner) Intern(bs []byte, alloc func(hash uint32, bytes []byte) *ObjString) *ObjString {
	hash := FNV1a32(bs)
	idx := in.findSlot(in.slots, bs, hash)
	if in.slots[idx].str != nil {
		return in.slots[idx].str
	}

	if float64(in.count+1) > 0.75*float64(len(in.slots)) {
		in.grow()
		idx = in.findSlot(in.slots, bs, hash)
	}

	s := alloc(hash, bs)
	wasTombstone := in.slots[idx].tombstone
	in.slots[idx] = internSlot{str: s}
	if !wasTombstone {
		in.count++
	}
	in.live++
	return s
}

// DropUnmarked removes interned entries whose string is not marked,
// called by the collector's pre-sweep hook.
func (in *Interner) DropUnmarked() {
	for i := range in.slots {
		slot := &in.slots[i]
		if slot.str != nil && !slot.str.Header().Marked {
			slot.str = nil
			slot.tombstone = true
			in.live--
		}
	}
}
