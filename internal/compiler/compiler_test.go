package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/cloxvm/internal/gc"
	"github.com/kristofer/cloxvm/internal/value"
)

func compileOk(t *testing.T, src string) *value.ObjFunction {
	t.Helper()
	in := value.NewInterner()
	gcol := gc.New(in)
	fn, errs := Compile(src, gcol)
	require.Empty(t, errs, "unexpected compile errors: %v", errs)
	require.NotNil(t, fn)
	return fn
}

func TestCompileSimpleExpression(t *testing.T) {
	fn := compileOk(t, `print 1 + 2;`)
	assert.NotEmpty(t, fn.Chunk.Code)
}

func TestCompileErrorAccumulates(t *testing.T) {
	in := value.NewInterner()
	gcol := gc.New(in)
	fn, errs := Compile(`var = ;`, gcol)
	assert.Nil(t, fn)
	assert.NotEmpty(t, errs, "a malformed declaration should report at least one diagnostic")
}

func TestCatchClauseWithAsBinding(t *testing.T) {
	fn := compileOk(t, `
		try {
			throw Exception("boom");
		} catch (Exception as e) {
			print e.message;
		}
	`)
	assert.NotEmpty(t, fn.Chunk.Code)
}

func TestCatchClauseWithoutTypeName(t *testing.T) {
	fn := compileOk(t, `
		try {
			throw Exception("boom");
		} catch (e) {
			print e.message;
		}
	`)
	assert.NotEmpty(t, fn.Chunk.Code)
}

func TestClassWithMethodsAndInheritance(t *testing.T) {
	fn := compileOk(t, `
		class Animal {
			speak() { return "..."; }
		}
		class Dog < Animal {
			speak() { return "woof"; }
		}
	`)
	assert.NotEmpty(t, fn.Chunk.Code)
}
