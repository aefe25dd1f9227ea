package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/cloxvm/internal/value"
)

func internKey(s string) *value.ObjString {
	return &value.ObjString{Bytes: []byte(s), Hash: value.FNV1a32([]byte(s))}
}

func TestSetGetDelete(t *testing.T) {
	tbl := New()
	k := internKey("answer")

	added := tbl.Set(k, value.Number(42))
	assert.True(t, added, "first Set of a new key reports added")

	v, ok := tbl.Get(k)
	require.True(t, ok)
	assert.Equal(t, float64(42), v.AsNumber())

	replaced := tbl.Set(k, value.Number(43))
	assert.False(t, replaced, "Set of an existing key reports replaced, not added")

	v, ok = tbl.Get(k)
	require.True(t, ok)
	assert.Equal(t, float64(43), v.AsNumber())

	assert.True(t, tbl.Delete(k))
	_, ok = tbl.Get(k)
	assert.False(t, ok, "deleted key no longer found")
}

func TestCountAndGrowth(t *testing.T) {
	tbl := New()
	for i := 0; i < 200; i++ {
		tbl.Set(internKey(string(rune('a'+i%26))+string(rune(i))), value.Number(float64(i)))
	}
	assert.Equal(t, 200, tbl.Count())
}

func TestEachVisitsEveryEntry(t *testing.T) {
	tbl := New()
	want := map[string]float64{"x": 1, "y": 2, "z": 3}
	for name, n := range want {
		tbl.Set(internKey(name), value.Number(n))
	}
	got := map[string]float64{}
	tbl.Each(func(k *value.ObjString, v value.Value) {
		got[string(k.Bytes)] = v.AsNumber()
	})
	assert.Equal(t, want, got)
}

func TestFindString(t *testing.T) {
	tbl := New()
	k := internKey("hello")
	tbl.Set(k, value.Bool(true))

	found := tbl.FindString([]byte("hello"), k.Hash)
	require.NotNil(t, found)
	assert.Same(t, k, found)

	assert.Nil(t, tbl.FindString([]byte("missing"), value.FNV1a32([]byte("missing"))))
}
