// Package value implements the tagged Value representation, the heap
// Object model (string, function, closure, upvalue, class, instance,
// bound method, native, array), and the Chunk that holds compiled
// bytecode. These pieces are kept in one package because, as in the
// C original this interpreter is modeled on, they are mutually
// recursive: a Chunk's constant pool holds Values, and some Values
// (functions) own a Chunk.
package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is the tag of a Value's sum type.
type Type uint8

const (
	TypeNil Type = iota
	TypeBool
	TypeNumber
	TypeObj
)

// Value is a tagged union: {Nil, Bool(bool), Number(f64), Obj(handle)}.
//
// Primitives are carried inline; heap values carry a pointer to an
// Object. There is no implicit conversion between the numeric and
// object representations - every opcode that needs a particular shape
// checks Type explicitly.
type Value struct {
	typ    Type
	boolean bool
	number float64
	obj    Object
}

// Nil is the singular nil value.
var Nil = Value{typ: TypeNil}

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{typ: TypeBool, boolean: b} }

// Number wraps a float64.
func Number(n float64) Value { return Value{typ: TypeNumber, number: n} }

// Obj wraps a heap object.
func Obj(o Object) Value { return Value{typ: TypeObj, obj: o} }

func (v Value) IsNil() bool    { return v.typ == TypeNil }
func (v Value) IsBool() bool   { return v.typ == TypeBool }
func (v Value) IsNumber() bool { return v.typ == TypeNumber }
func (v Value) IsObj() bool    { return v.typ == TypeObj }

func (v Value) AsBool() bool     { return v.boolean }
func (v Value) AsNumber() float64 { return v.number }
func (v Value) AsObj() Object     { return v.obj }

// IsString reports whether v holds a *ObjString.
func (v Value) IsString() bool { _, ok := v.objAs().(*ObjString); return ok }

// IsFunction reports whether v holds a *ObjFunction.
func (v Value) IsFunction() bool { _, ok := v.objAs().(*ObjFunction); return ok }

// IsClosure reports whether v holds a *ObjClosure.
func (v Value) IsClosure() bool { _, ok := v.objAs().(*ObjClosure); return ok }

// IsClass reports whether v holds a *ObjClass.
func (v Value) IsClass() bool { _, ok := v.objAs().(*ObjClass); return ok }

// IsInstance reports whether v holds a *ObjInstance.
func (v Value) IsInstance() bool { _, ok := v.objAs().(*ObjInstance); return ok }

// IsArray reports whether v holds a *ObjArray.
func (v Value) IsArray() bool { _, ok := v.objAs().(*ObjArray); return ok }

// IsBoundMethod reports whether v holds a *ObjBoundMethod.
func (v Value) IsBoundMethod() bool { _, ok := v.objAs().(*ObjBoundMethod); return ok }

// IsNative reports whether v holds a *ObjNative.
func (v Value) IsNative() bool { _, ok := v.objAs().(*ObjNative); return ok }

func (v Value) objAs() Object {
	if v.typ != TypeObj {
		return nil
	}
	return v.obj
}

// AsString returns the underlying *ObjString; callers must check IsString.
func (v Value) AsString() *ObjString { return v.obj.(*ObjString) }

// AsFunction returns the underlying *ObjFunction; callers must check IsFunction.
func (v Value) AsFunction() *ObjFunction { return v.obj.(*ObjFunction) }

// AsClosure returns the underlying *ObjClosure; callers must check IsClosure.
func (v Value) AsClosure() *ObjClosure { return v.obj.(*ObjClosure) }

// AsClass returns the underlying *ObjClass; callers must check IsClass.
func (v Value) AsClass() *ObjClass { return v.obj.(*ObjClass) }

// AsInstance returns the underlying *ObjInstance; callers must check IsInstance.
func (v Value) AsInstance() *ObjInstance { return v.obj.(*ObjInstance) }

// AsArray returns the underlying *ObjArray; callers must check IsArray.
func (v Value) AsArray() *ObjArray { return v.obj.(*ObjArray) }

// AsBoundMethod returns the underlying *ObjBoundMethod; callers must check IsBoundMethod.
func (v Value) AsBoundMethod() *ObjBoundMethod { return v.obj.(*ObjBoundMethod) }

// AsNative returns the underlying *ObjNative; callers must check IsNative.
func (v Value) AsNative() *ObjNative { return v.obj.(*ObjNative) }

// IsFalsey implements truthiness: Nil and Bool(false) are falsey,
// everything else - including 0 and "" - is truthy.
func (v Value) IsFalsey() bool {
	return v.IsNil() || (v.IsBool() && !v.AsBool())
}

// unwrapBoxed undoes one layer of primitive auto-boxing (see the vm
// package's promote). Boxed-primitive unwrap paths in the reference
// implementation only ever peel a single layer, never recursively -
// this mirrors that choice.
func unwrapBoxed(v Value) Value {
	if v.IsInstance() {
		inst := v.AsInstance()
		if inst.Boxed != nil {
			return *inst.Boxed
		}
	}
	return v
}

// Equal implements values_equal: structural equality for primitives,
// identity for objects (strings are interned so identity equals
// content equality for them). A boxed primitive equals its bare
// equivalent after a single unwrap on each side.
func Equal(a, b Value) bool {
	a = unwrapBoxed(a)
	b = unwrapBoxed(b)
	if a.typ != b.typ {
		return false
	}
	switch a.typ {
	case TypeNil:
		return true
	case TypeBool:
		return a.boolean == b.boolean
	case TypeNumber:
		return a.number == b.number
	case TypeObj:
		if as, ok := a.obj.(*ObjString); ok {
			if bs, ok := b.obj.(*ObjString); ok {
				return as == bs // interning invariant: identity implies equality
			}
			return false
		}
		return a.obj == b.obj
	}
	return false
}

// Format renders v per the language's printing rules: numbers
// use the shortest round-trippable decimal form, booleans render
// true/false, nil renders nil, strings render their raw bytes, arrays
// render [e1, e2, ...] with nested strings double-quoted, and
// instances render <instance ClassName> unless boxing a primitive.
func Format(v Value) string {
	switch v.typ {
	case TypeNil:
		return "nil"
	case TypeBool:
		if v.boolean {
			return "true"
		}
		return "false"
	case TypeNumber:
		return strconv.FormatFloat(v.number, 'g', -1, 64)
	case TypeObj:
		return formatObj(v.obj, false)
	}
	return "?"
}

func formatObj(o Object, quoted bool) string {
	switch ob := o.(type) {
	case *ObjString:
		if quoted {
			return `"` + string(ob.Bytes) + `"`
		}
		return string(ob.Bytes)
	case *ObjFunction:
		if ob.Name == nil {
			return "<script>"
		}
		return fmt.Sprintf("<fn %s>", string(ob.Name.Bytes))
	case *ObjClosure:
		return formatObj(ob.Function, quoted)
	case *ObjUpvalue:
		return "<upvalue>"
	case *ObjClass:
		return fmt.Sprintf("<class %s>", string(ob.Name.Bytes))
	case *ObjInstance:
		if ob.Boxed != nil {
			return Format(*ob.Boxed)
		}
		return fmt.Sprintf("<instance %s>", string(ob.Class.Name.Bytes))
	case *ObjBoundMethod:
		return formatObj(ob.Method, quoted)
	case *ObjNative:
		return fmt.Sprintf("<native %s>", ob.Name)
	case *ObjArray:
		var b strings.Builder
		b.WriteByte('[')
		for i, e := range ob.Elements {
			if i > 0 {
				b.WriteString(", ")
			}
			if e.IsObj() {
				if s, ok := e.obj.(*ObjString); ok {
					b.WriteString(`"` + string(s.Bytes) + `"`)
					continue
				}
			}
			b.WriteString(Format(e))
		}
		b.WriteByte(']')
		return b.String()
	}
	return "<obj>"
}

// TypeName returns a short human name for v's runtime type, used in
// runtime type-mismatch error messages.
func TypeName(v Value) string {
	switch v.typ {
	case TypeNil:
		return "nil"
	case TypeBool:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeObj:
		switch v.obj.(type) {
		case *ObjString:
			return "string"
		case *ObjFunction, *ObjClosure:
			return "function"
		case *ObjClass:
			return "class"
		case *ObjInstance:
			return "instance"
		case *ObjBoundMethod:
			return "bound method"
		case *ObjNative:
			return "native function"
		case *ObjArray:
			return "array"
		}
	}
	return "value"
}
