package vm

import "github.com/kristofer/cloxvm/internal/value"

// run is the bytecode dispatch loop: a big switch over the current
// instruction, executed until the outermost call frame returns (or an
// uncaught exception / fatal error propagates out).
func (vm *VM) run() error {
	for {
		f := vm.currentFrame()
		op := value.OpCode(vm.readByte(f))
		vm.trace.traceStep(f, op, vm.stack)

		switch op {
		case value.OpConstant:
			vm.push(vm.readConstant(f))
		case value.OpConstantZero:
			vm.push(value.Number(0))
		case value.OpConstantOne:
			vm.push(value.Number(1))
		case value.OpConstantTwo:
			vm.push(value.Number(2))
		case value.OpNil:
			vm.push(value.Nil)
		case value.OpTrue:
			vm.push(value.Bool(true))
		case value.OpFalse:
			vm.push(value.Bool(false))
		case value.OpPop:
			vm.pop()
		case value.OpDup:
			vm.push(vm.peek(0))
		case value.OpDup2:
			a, b := vm.peek(1), vm.peek(0)
			vm.push(a)
			vm.push(b)

		case value.OpGetLocal:
			slot := int(vm.readByte(f))
			vm.push(vm.stack[f.slotBase+slot])
		case value.OpSetLocal:
			slot := int(vm.readByte(f))
			vm.stack[f.slotBase+slot] = vm.peek(0)

		case value.OpGetGlobal:
			name := vm.readString(f)
			v, ok := vm.globals.Get(name)
			if !ok {
				if err := vm.throwRuntime("undefined variable '%s'", string(name.Bytes)); err != nil {
					return err
				}
				continue
			}
			vm.push(v)
		case value.OpDefineGlobal:
			name := vm.readString(f)
			vm.globals.Set(name, vm.pop())
		case value.OpSetGlobal:
			name := vm.readString(f)
			if _, ok := vm.globals.Get(name); !ok {
				if err := vm.throwRuntime("undefined variable '%s'", string(name.Bytes)); err != nil {
					return err
				}
				continue
			}
			vm.globals.Set(name, vm.peek(0))

		case value.OpGetUpvalue:
			idx := int(vm.readByte(f))
			vm.push(f.closure.Upvalues[idx].Get())
		case value.OpSetUpvalue:
			idx := int(vm.readByte(f))
			f.closure.Upvalues[idx].Set(vm.peek(0))

		case value.OpGetProperty:
			name := string(vm.readString(f).Bytes)
			v, err := vm.getProperty(vm.peek(0), name)
			if err != nil {
				if terr := vm.throwRuntime("%s", err); terr != nil {
					return terr
				}
				continue
			}
			vm.pop()
			vm.push(v)
		case value.OpSetProperty:
			name := string(vm.readString(f).Bytes)
			v := vm.pop()
			recv := vm.pop()
			if err := vm.setProperty(recv, name, v); err != nil {
				if terr := vm.throwRuntime("%s", err); terr != nil {
					return terr
				}
				continue
			}
			vm.push(v)

		case value.OpGetIndex:
			idx := vm.pop()
			recv := vm.pop()
			v, err := vm.getIndex(recv, idx)
			if err != nil {
				return err
			}
			vm.push(v)
		case value.OpSetIndex:
			v := vm.pop()
			idx := vm.pop()
			recv := vm.pop()
			if err := vm.setIndex(recv, idx, v); err != nil {
				return err
			}
			vm.push(v)

		case value.OpGetSuper:
			name := string(vm.readString(f).Bytes)
			superclass := vm.pop().AsClass()
			receiver := vm.pop()
			v, err := vm.getSuperMethod(superclass, name, receiver)
			if err != nil {
				return err
			}
			vm.push(v)

		case value.OpEqual:
			b, a := vm.pop(), vm.pop()
			vm.push(value.Bool(value.Equal(a, b)))
		case value.OpNotEqual:
			b, a := vm.pop(), vm.pop()
			vm.push(value.Bool(!value.Equal(a, b)))
		case value.OpGreater, value.OpGreaterEqual, value.OpLess, value.OpLessEqual:
			if err := vm.comparison(op); err != nil {
				return err
			}

		case value.OpAdd:
			if err := vm.add(); err != nil {
				return err
			}
		case value.OpSubtract, value.OpMultiply, value.OpDivide, value.OpModulo, value.OpPower:
			if err := vm.arithmetic(op); err != nil {
				return err
			}

		case value.OpNot:
			vm.push(value.Bool(vm.pop().IsFalsey()))
		case value.OpNegate:
			v := vm.pop()
			if !v.IsNumber() {
				if err := vm.throwRuntime("operand must be a number"); err != nil {
					return err
				}
				continue
			}
			vm.push(value.Number(-v.AsNumber()))

		case value.OpPrint:
			vm.stdout(value.Format(vm.pop()) + "\n")

		case value.OpJump:
			offset := vm.readUint16(f)
			f.ip += offset
		case value.OpJumpIfFalse:
			offset := vm.readUint16(f)
			if vm.peek(0).IsFalsey() {
				f.ip += offset
			}
		case value.OpJumpIfTrue:
			offset := vm.readUint16(f)
			if !vm.peek(0).IsFalsey() {
				f.ip += offset
			}
		case value.OpLoop:
			offset := vm.readUint16(f)
			f.ip -= offset

		case value.OpCall:
			argCount := int(vm.readByte(f))
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				if err == errNativeThrow {
					if terr := vm.throw(vm.pop()); terr != nil {
						return terr
					}
					continue
				}
				return err
			}
		case value.OpInvoke:
			name := string(vm.readString(f).Bytes)
			argCount := int(vm.readByte(f))
			if err := vm.invoke(name, argCount); err != nil {
				return err
			}
		case value.OpSuperInvoke:
			name := string(vm.readString(f).Bytes)
			argCount := int(vm.readByte(f))
			superclass := vm.pop().AsClass()
			method, _ := superclass.FindMethod(name)
			if method == nil {
				if terr := vm.throwRuntime("undefined property '%s'", name); terr != nil {
					return terr
				}
				continue
			}
			if err := vm.call(method, argCount); err != nil {
				return err
			}

		case value.OpClosure:
			fn := vm.readConstant(f).AsFunction()
			closure := &value.ObjClosure{Function: fn, Upvalues: make([]*value.ObjUpvalue, fn.UpvalueCount)}
			vm.gcol.Allocate(closure)
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := vm.readByte(f)
				index := int(vm.readByte(f))
				if isLocal != 0 {
					closure.Upvalues[i] = vm.captureUpvalue(&vm.stack[f.slotBase+index])
				} else {
					closure.Upvalues[i] = f.closure.Upvalues[index]
				}
			}
			vm.push(value.Obj(closure))
		case value.OpCloseUpvalue:
			vm.closeUpvalues(&vm.stack[len(vm.stack)-1])
			vm.pop()

		case value.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(&vm.stack[f.slotBase])
			vm.stack = vm.stack[:f.slotBase]
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) == 0 {
				return nil
			}
			vm.push(result)

		case value.OpClass:
			name := vm.readString(f)
			vm.push(value.Obj(vm.defineClass(name)))
		case value.OpInherit:
			subclass := vm.peek(0).AsClass()
			superVal := vm.peek(1)
			if !superVal.IsClass() {
				if terr := vm.throwRuntime("superclass must be a class"); terr != nil {
					return terr
				}
				continue
			}
			if err := vm.inherit(superVal.AsClass(), subclass); err != nil {
				return err
			}
			vm.pop() // subclass; superclass remains as the "super" local
		case value.OpMethod:
			name := string(vm.readString(f).Bytes)
			method := vm.pop().AsClosure()
			vm.defineMethod(vm.peek(0).AsClass(), name, method)
		case value.OpStaticMethod:
			name := string(vm.readString(f).Bytes)
			method := vm.pop().AsClosure()
			vm.defineStaticMethod(vm.peek(0).AsClass(), name, method)
		case value.OpStaticField:
			name := string(vm.readString(f).Bytes)
			v := vm.pop()
			vm.peek(0).AsClass().StaticFields[name] = v

		case value.OpArray:
			count := int(vm.readByte(f))
			elems := make([]value.Value, count)
			copy(elems, vm.stack[len(vm.stack)-count:])
			vm.stack = vm.stack[:len(vm.stack)-count]
			arr := &value.ObjArray{Elements: elems}
			vm.gcol.Allocate(arr)
			vm.push(value.Obj(arr))

		case value.OpPushExceptionHandler:
			hasCatch := vm.readByte(f)
			typeIdx := vm.readByte(f)
			handlerAddr := vm.readUint16(f)
			hasFinally := vm.readByte(f)
			finallyAddr := vm.readUint16(f)
			h := handler{
				hasCatch:    hasCatch != 0,
				handlerAddr: handlerAddr,
				hasFinally:  hasFinally != 0,
				finallyAddr: finallyAddr,
				stackBase:   len(vm.stack),
			}
			if h.hasCatch {
				h.catchType = string(f.closure.Function.Chunk.Constants[typeIdx].AsString().Bytes)
			}
			if len(f.handlers) >= maxHandlersPerFn {
				if terr := vm.throwRuntime("too many nested try blocks"); terr != nil {
					return terr
				}
				continue
			}
			f.handlers = append(f.handlers, h)
		case value.OpPopExceptionHandler:
			f.handlers = f.handlers[:len(f.handlers)-1]
		case value.OpThrow:
			exc := vm.pop()
			if !exc.IsInstance() || !vm.isExceptionClass(exc.AsInstance().Class) {
				if err := vm.throwRuntime("can only throw an Exception instance"); err != nil {
					return err
				}
				continue
			}
			if err := vm.throw(exc); err != nil {
				return err
			}
		case value.OpPropagateFinally:
			repropagate := vm.pop()
			if repropagate.IsBool() && repropagate.AsBool() {
				if err := vm.throw(vm.pendingException); err != nil {
					return err
				}
			}

		default:
			if err := vm.runtimeError("unknown opcode %s", op); err != nil {
				return err
			}
		}
	}
}
