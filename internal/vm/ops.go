package vm

import (
	"math"

	"github.com/kristofer/cloxvm/internal/value"
)

// add implements OP_ADD: numeric addition, or string concatenation
// when either operand is a string (the other is stringified).
func (vm *VM) add() error {
	b, a := vm.pop(), vm.pop()
	switch {
	case a.IsNumber() && b.IsNumber():
		vm.push(value.Number(a.AsNumber() + b.AsNumber()))
		return nil
	case a.IsString() || b.IsString():
		s := value.Format(a) + value.Format(b)
		vm.push(value.Obj(vm.gcol.NewString([]byte(s))))
		return nil
	default:
		return vm.throwRuntime("operands must be two numbers or involve a string")
	}
}

func (vm *VM) arithmetic(op value.OpCode) error {
	b, a := vm.pop(), vm.pop()
	if !a.IsNumber() || !b.IsNumber() {
		return vm.throwRuntime("operands must be numbers")
	}
	x, y := a.AsNumber(), b.AsNumber()
	switch op {
	case value.OpSubtract:
		vm.push(value.Number(x - y))
	case value.OpMultiply:
		vm.push(value.Number(x * y))
	case value.OpDivide:
		if y == 0 {
			return vm.throwRuntime("division by zero")
		}
		vm.push(value.Number(x / y))
	case value.OpModulo:
		if y == 0 {
			return vm.throwRuntime("modulo by zero")
		}
		vm.push(value.Number(math.Mod(x, y)))
	case value.OpPower:
		vm.push(value.Number(math.Pow(x, y)))
	}
	return nil
}

func (vm *VM) comparison(op value.OpCode) error {
	b, a := vm.pop(), vm.pop()
	if !a.IsNumber() || !b.IsNumber() {
		return vm.throwRuntime("operands must be numbers")
	}
	x, y := a.AsNumber(), b.AsNumber()
	var result bool
	switch op {
	case value.OpGreater:
		result = x > y
	case value.OpGreaterEqual:
		result = x >= y
	case value.OpLess:
		result = x < y
	case value.OpLessEqual:
		result = x <= y
	}
	vm.push(value.Bool(result))
	return nil
}

func (vm *VM) getIndex(recv, idx value.Value) (value.Value, error) {
	if !idx.IsNumber() {
		return value.Nil, vm.throwRuntime("index must be a number")
	}
	i := int(idx.AsNumber())
	switch {
	case recv.IsArray():
		elems := recv.AsArray().Elements
		if i < 0 || i >= len(elems) {
			return value.Nil, vm.throwRuntime("array index out of range")
		}
		return elems[i], nil
	case recv.IsString():
		bs := recv.AsString().Bytes
		if i < 0 || i >= len(bs) {
			return value.Nil, vm.throwRuntime("string index out of range")
		}
		return value.Obj(vm.gcol.NewString(bs[i : i+1])), nil
	default:
		return value.Nil, vm.throwRuntime("only arrays and strings can be indexed")
	}
}

func (vm *VM) setIndex(recv, idx, v value.Value) error {
	if !recv.IsArray() {
		return vm.throwRuntime("only arrays support index assignment")
	}
	if !idx.IsNumber() {
		return vm.throwRuntime("index must be a number")
	}
	arr := recv.AsArray()
	i := int(idx.AsNumber())
	if i < 0 || i >= len(arr.Elements) {
		return vm.throwRuntime("array index out of range")
	}
	arr.Elements[i] = v
	return nil
}
