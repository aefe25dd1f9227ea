package vm

import (
	"unsafe"

	"github.com/kristofer/cloxvm/internal/value"
)

func (vm *VM) call(closure *value.ObjClosure, argCount int) error {
	if len(vm.frames) >= maxFrames {
		return vm.runtimeError("stack overflow")
	}
	if closure.Function.Arity != argCount {
		return vm.runtimeError("expected %d arguments but got %d", closure.Function.Arity, argCount)
	}
	if len(vm.stack) >= maxStack {
		return vm.runtimeError("stack overflow")
	}
	vm.frames = append(vm.frames, frame{
		closure:  closure,
		slotBase: len(vm.stack) - argCount - 1,
	})
	return nil
}

// callValue dispatches CALL for whatever kind of callable sits at
// stack depth argCount below the top: a closure, a native, a bound
// method, or a class (construction).
func (vm *VM) callValue(callee value.Value, argCount int) error {
	if !callee.IsObj() {
		return vm.runtimeError("can only call functions and classes")
	}
	switch obj := callee.AsObj().(type) {
	case *value.ObjClosure:
		return vm.call(obj, argCount)
	case *value.ObjNative:
		return vm.callNative(obj, argCount)
	case *value.ObjBoundMethod:
		vm.stack[len(vm.stack)-argCount-1] = obj.Receiver
		switch m := obj.Method.(type) {
		case *value.ObjClosure:
			return vm.call(m, argCount)
		case *value.ObjNative:
			return vm.callNative(m, argCount)
		}
		return vm.runtimeError("bound method has no callable target")
	case *value.ObjClass:
		inst := &value.ObjInstance{Class: obj, Fields: map[string]value.Value{}}
		vm.gcol.Allocate(inst)
		vm.stack[len(vm.stack)-argCount-1] = value.Obj(inst)
		if obj.Initializer != nil {
			return vm.call(obj.Initializer, argCount)
		}
		if vm.isExceptionClass(obj) {
			if argCount != 1 {
				return vm.runtimeError("expected 1 argument but got %d", argCount)
			}
			inst.Fields["message"] = vm.pop()
			return nil
		}
		if argCount != 0 {
			return vm.runtimeError("expected 0 arguments but got %d", argCount)
		}
		return nil
	default:
		return vm.runtimeError("can only call functions and classes")
	}
}

func (vm *VM) callNative(n *value.ObjNative, argCount int) error {
	if n.Arity >= 0 && n.Arity != argCount {
		return vm.runtimeError("expected %d arguments but got %d", n.Arity, argCount)
	}
	argv := vm.stack[len(vm.stack)-argCount:]
	result, err := n.Fn(argv)
	vm.stack = vm.stack[:len(vm.stack)-argCount-1]
	if exit, ok := err.(*Exit); ok {
		vm.lastExitCode = exit.Code
		return exit
	}
	if err != nil {
		vm.push(result) // the thrown exception value
		return errNativeThrow
	}
	vm.push(result)
	return nil
}

// invoke compiles OP_INVOKE: a combined get-property + call that
// skips materializing an intermediate ObjBoundMethod for the common
// case of calling a method directly.
func (vm *VM) invoke(name string, argCount int) error {
	receiver := vm.peek(argCount)
	if receiver.IsInstance() {
		inst := receiver.AsInstance()
		if field, ok := inst.Fields[name]; ok {
			vm.stack[len(vm.stack)-argCount-1] = field
			return vm.callValue(field, argCount)
		}
		return vm.invokeFromClass(inst.Class, name, argCount)
	}
	// Auto-box primitives so methods on Number/Boolean/String/Array
	// wrapper classes can be invoked directly on literal receivers.
	boxed := vm.promote(receiver)
	if boxed.IsInstance() {
		vm.stack[len(vm.stack)-argCount-1] = boxed
		return vm.invokeFromClass(boxed.AsInstance().Class, name, argCount)
	}
	return vm.runtimeError("only instances have methods")
}

func (vm *VM) invokeFromClass(class *value.ObjClass, name string, argCount int) error {
	method, _ := class.FindMethod(name)
	if method == nil {
		return vm.runtimeError("undefined property '%s'", name)
	}
	return vm.call(method, argCount)
}

func (vm *VM) bindMethod(class *value.ObjClass, name string, receiver value.Value) (value.Value, bool) {
	method, _ := class.FindMethod(name)
	if method == nil {
		return value.Nil, false
	}
	bound := &value.ObjBoundMethod{Receiver: receiver, Method: method}
	vm.gcol.Allocate(bound)
	return value.Obj(bound), true
}

// addrOf returns a stack slot pointer's address as a comparable
// integer. vm.stack is preallocated at full capacity (maxStack) and
// never reallocated by append, so these addresses stay valid for the
// VM's whole lifetime - see the capacity note on VM.stack.
func addrOf(p *value.Value) uintptr { return uintptr(unsafe.Pointer(p)) }

// captureUpvalue finds or creates an open upvalue pointing at the
// given stack slot, keeping vm.openUpvalues sorted by descending
// stack address as new upvalues are inserted - same invariant the
// reference implementation's linked list maintains.
func (vm *VM) captureUpvalue(local *value.Value) *value.ObjUpvalue {
	var prev *value.ObjUpvalue
	cur := vm.openUpvalues
	for cur != nil && addrOf(cur.Location) > addrOf(local) {
		prev = cur
		cur = cur.Next
	}
	if cur != nil && cur.Location == local {
		return cur
	}
	created := &value.ObjUpvalue{Location: local}
	vm.gcol.Allocate(created)
	created.Next = cur
	if prev != nil {
		prev.Next = created
	} else {
		vm.openUpvalues = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above fromSlot,
// moving its value into owned storage before the underlying stack
// slot is popped.
func (vm *VM) closeUpvalues(fromSlot *value.Value) {
	for vm.openUpvalues != nil && addrOf(vm.openUpvalues.Location) >= addrOf(fromSlot) {
		uv := vm.openUpvalues
		uv.Close()
		vm.openUpvalues = uv.Next
	}
}
