package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/cloxvm/internal/value"
)

func TestNewStringInternsEqualBytes(t *testing.T) {
	c := New(value.NewInterner())
	a := c.NewString([]byte("hello"))
	b := c.NewString([]byte("hello"))
	assert.Same(t, a, b, "equal byte contents must intern to the same *ObjString")
}

func TestAllocateLinksIntoObjectList(t *testing.T) {
	c := New(value.NewInterner())
	before := c.BytesAllocated()
	s := c.NewString([]byte("tracked"))
	assert.Greater(t, c.BytesAllocated(), before)
	assert.Same(t, value.Object(s), c.head)
}

func TestCollectSweepsUnreachableObjects(t *testing.T) {
	c := New(value.NewInterner())

	// keep only "kept" reachable; "garbage" has no root reference.
	kept := c.NewString([]byte("kept"))
	_ = c.NewString([]byte("garbage"))

	c.SetRootMarker(func(mark func(value.Object)) {
		mark(kept)
	})

	c.Collect()

	// walk the live list and confirm only the reachable string survived.
	var live []string
	for o := c.head; o != nil; o = o.Header().Next {
		if s, ok := o.(*value.ObjString); ok {
			live = append(live, string(s.Bytes))
		}
	}
	assert.Contains(t, live, "kept")
	assert.NotContains(t, live, "garbage")
}

func TestCollectIncrementsCollectionCount(t *testing.T) {
	c := New(value.NewInterner())
	c.SetRootMarker(func(mark func(value.Object)) {})
	require.Equal(t, 0, c.CollectionCount)
	c.Collect()
	assert.Equal(t, 1, c.CollectionCount)
	c.Collect()
	assert.Equal(t, 2, c.CollectionCount)
}

func TestPreSweepHookRunsBeforeSweep(t *testing.T) {
	c := New(value.NewInterner())
	c.SetRootMarker(func(mark func(value.Object)) {})

	ran := false
	c.AddPreSweepHook(func() { ran = true })
	c.Collect()
	assert.True(t, ran)
}

func TestMarkValueIgnoresNonObjectValues(t *testing.T) {
	c := New(value.NewInterner())
	assert.NotPanics(t, func() {
		c.MarkValue(value.Number(3))
		c.MarkValue(value.Nil)
	})
}
