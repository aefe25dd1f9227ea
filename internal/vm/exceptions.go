package vm

import "github.com/kristofer/cloxvm/internal/value"

// throw implements the unwind/dispatch half of try/catch/finally: it
// searches outward from the current frame for a handler whose catch
// clause matches exc, or failing that a finally-only handler, popping
// call frames as needed. Returns nil once execution has been
// redirected into a handler/finally body, or a terminal *RuntimeError
// if no frame handles it.
func (vm *VM) throw(exc value.Value) error {
	for len(vm.frames) > 0 {
		f := vm.currentFrame()
		for i := len(f.handlers) - 1; i >= 0; i-- {
			h := f.handlers[i]
			if h.hasCatch && vm.exceptionMatches(exc, h.catchType) {
				f.handlers = f.handlers[:i]
				vm.unwindStackTo(h.stackBase)
				vm.push(exc)
				f.ip = h.handlerAddr
				return nil
			}
			if h.hasFinally {
				f.handlers = f.handlers[:i]
				vm.unwindStackTo(h.stackBase)
				vm.pendingException = exc
				vm.push(value.Bool(true))
				f.ip = h.finallyAddr
				return nil
			}
		}
		vm.popFrameForUnwind()
	}
	return vm.uncaughtError(exc)
}

func (vm *VM) throwRuntime(format string, args ...interface{}) error {
	return vm.throw(vm.newExceptionf("Error", format, args...))
}

func (vm *VM) unwindStackTo(base int) {
	if base < len(vm.stack) {
		vm.closeUpvalues(&vm.stack[base])
	}
	vm.stack = vm.stack[:base]
}

func (vm *VM) popFrameForUnwind() {
	f := vm.currentFrame()
	if f.slotBase < len(vm.stack) {
		vm.closeUpvalues(&vm.stack[f.slotBase])
	}
	vm.stack = vm.stack[:f.slotBase]
	vm.frames = vm.frames[:len(vm.frames)-1]
}

func (vm *VM) exceptionMatches(exc value.Value, catchType string) bool {
	if catchType == "" {
		return true
	}
	if !exc.IsInstance() {
		return false
	}
	for c := exc.AsInstance().Class; c != nil; c = c.Super {
		if c.Name != nil && string(c.Name.Bytes) == catchType {
			return true
		}
	}
	return false
}

func (vm *VM) uncaughtError(exc value.Value) error {
	msg := value.Format(exc)
	if exc.IsInstance() {
		if m, ok := exc.AsInstance().Fields["message"]; ok {
			msg = value.Format(m)
		}
	}
	return vm.runtimeError("uncaught exception: %s", msg)
}
