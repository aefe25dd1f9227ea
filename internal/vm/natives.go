package vm

import (
	"fmt"
	"time"

	"github.com/kristofer/cloxvm/internal/value"
)

// defineNatives installs the host function surface
// as the non-CORE standard library: clock, typeOf, exit, and str.
func (vm *VM) defineNatives() {
	vm.defineNative("clock", 0, func(argv []value.Value) (value.Value, error) {
		return value.Number(float64(time.Now().UnixNano()) / 1e9), nil
	})
	vm.defineNative("typeOf", 1, func(argv []value.Value) (value.Value, error) {
		return value.Obj(vm.gcol.NewString([]byte(value.TypeName(argv[0])))), nil
	})
	vm.defineNative("exit", 1, func(argv []value.Value) (value.Value, error) {
		code := 0
		if argv[0].IsNumber() {
			code = int(argv[0].AsNumber())
		}
		return value.Nil, &Exit{Code: code}
	})
	vm.defineNative("str", 1, func(argv []value.Value) (value.Value, error) {
		return value.Obj(vm.gcol.NewString([]byte(value.Format(argv[0])))), nil
	})
}

func (vm *VM) defineNative(name string, arity int, fn value.NativeFn) {
	native := &value.ObjNative{Name: name, Arity: arity, Fn: fn}
	vm.gcol.Allocate(native)
	key := vm.gcol.NewString([]byte(name))
	vm.globals.Set(key, value.Obj(native))
}

// newException constructs a built-in-originated thrown exception
// value: an instance of a reserved Exception-descended class carrying
// a message field, matching what `throw Exception("msg")` or a
// failed builtin operation produces.
func (vm *VM) newException(class string, message string) value.Value {
	c, ok := vm.boxClasses[class]
	if !ok {
		c = vm.errorClass()
	}
	inst := &value.ObjInstance{Class: c, Fields: map[string]value.Value{
		"message": value.Obj(vm.gcol.NewString([]byte(message))),
	}}
	vm.gcol.Allocate(inst)
	return value.Obj(inst)
}

func (vm *VM) newExceptionf(class, format string, args ...interface{}) value.Value {
	return vm.newException(class, fmt.Sprintf(format, args...))
}

func (vm *VM) errorClass() *value.ObjClass {
	if c, ok := vm.boxClasses["Error"]; ok {
		return c
	}
	c := vm.defineClass(vm.gcol.NewString([]byte("Error")))
	c.Super = vm.exceptionClass
	vm.boxClasses["Error"] = c
	vm.globals.Set(c.Name, value.Obj(c))
	return c
}
