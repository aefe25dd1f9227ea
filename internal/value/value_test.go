package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	assert.Equal(t, "nil", Format(Nil))
	assert.Equal(t, "true", Format(Bool(true)))
	assert.Equal(t, "false", Format(Bool(false)))
	assert.Equal(t, "1.5", Format(Number(1.5)))
	assert.Equal(t, "3", Format(Number(3)))

	s := &ObjString{Bytes: []byte("hi")}
	assert.Equal(t, "hi", Format(Obj(s)))

	arr := &ObjArray{Elements: []Value{Number(1), Obj(s)}}
	assert.Equal(t, `[1, "hi"]`, Format(Obj(arr)))
}

func TestEqualInterningIdentity(t *testing.T) {
	a := &ObjString{Bytes: []byte("same")}
	b := &ObjString{Bytes: []byte("same")}

	assert.True(t, Equal(Obj(a), Obj(a)))
	assert.False(t, Equal(Obj(a), Obj(b)), "distinct pointers are never equal even with equal bytes - interning is what makes equal strings share a pointer")
}

func TestEqualPrimitives(t *testing.T) {
	assert.True(t, Equal(Number(1), Number(1)))
	assert.False(t, Equal(Number(1), Number(2)))
	assert.True(t, Equal(Nil, Nil))
	assert.False(t, Equal(Nil, Bool(false)))
	assert.True(t, Equal(Bool(true), Bool(true)))
}

func TestIsFalsey(t *testing.T) {
	assert.True(t, Nil.IsFalsey())
	assert.True(t, Bool(false).IsFalsey())
	assert.False(t, Bool(true).IsFalsey())
	assert.False(t, Number(0).IsFalsey())
	assert.False(t, Obj(&ObjString{}).IsFalsey())
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "number", TypeName(Number(1)))
	assert.Equal(t, "boolean", TypeName(Bool(true)))
	assert.Equal(t, "nil", TypeName(Nil))
	assert.Equal(t, "string", TypeName(Obj(&ObjString{})))
}
