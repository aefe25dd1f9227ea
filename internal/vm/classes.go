package vm

import "github.com/kristofer/cloxvm/internal/value"

// defineBoxClasses registers the reserved wrapper classes numbers,
// booleans, strings, and arrays are auto-boxed into the moment a
// method is called on them (the language's auto-boxing rule). They
// start out empty and nothing adds methods to them. A script class of
// the same name replaces the global binding but not the class used
// for boxing.
func (vm *VM) defineBoxClasses() {
	for _, name := range []string{"Number", "Boolean", "String", "Array"} {
		class := &value.ObjClass{
			Name:          vm.gcol.NewString([]byte(name)),
			Methods:       map[string]*value.ObjClosure{},
			StaticMethods: map[string]*value.ObjClosure{},
			StaticFields:  map[string]value.Value{},
			IsBuiltinBox:  true,
		}
		vm.gcol.Allocate(class)
		vm.boxClasses[name] = class
		vm.globals.Set(class.Name, value.Obj(class))
	}
}

// defineExceptionClass registers the built-in Exception class: the
// only class `throw` accepts, directly or through a subclass. Its
// constructor takes a single message argument and is handled natively
// in callValue rather than as a compiled initializer, since there is
// no script-level class body to compile it from.
func (vm *VM) defineExceptionClass() {
	class := &value.ObjClass{
		Name:          vm.gcol.NewString([]byte("Exception")),
		Methods:       map[string]*value.ObjClosure{},
		StaticMethods: map[string]*value.ObjClosure{},
		StaticFields:  map[string]value.Value{},
	}
	vm.gcol.Allocate(class)
	vm.exceptionClass = class
	vm.globals.Set(class.Name, value.Obj(class))
}

// isExceptionClass reports whether c is Exception itself or descends
// from it, the way a catch clause's class match walks the superclass
// chain.
func (vm *VM) isExceptionClass(c *value.ObjClass) bool {
	for cur := c; cur != nil; cur = cur.Super {
		if cur == vm.exceptionClass {
			return true
		}
	}
	return false
}

// promote auto-boxes a primitive Value into an ObjInstance wrapping
// the matching reserved class, so property/method access on literals
// ("hello".length(), (1).toString()) can be compiled identically to
// access on a real instance. Strings and arrays are boxed too; nil
// and every other object pass through unchanged.
func (vm *VM) promote(v value.Value) value.Value {
	var class *value.ObjClass
	switch {
	case v.IsNumber():
		class = vm.boxClasses["Number"]
	case v.IsBool():
		class = vm.boxClasses["Boolean"]
	case v.IsString():
		class = vm.boxClasses["String"]
	case v.IsArray():
		class = vm.boxClasses["Array"]
	default:
		return v
	}
	boxedCopy := v
	inst := &value.ObjInstance{Class: class, Fields: map[string]value.Value{}, Boxed: &boxedCopy}
	vm.gcol.Allocate(inst)
	return value.Obj(inst)
}

// getProperty implements OP_GET_PROPERTY: instance fields take
// priority over methods (shadowing, as in the reference design),
// methods bind a receiver, and primitives are auto-boxed first.
func (vm *VM) getProperty(receiver value.Value, name string) (value.Value, error) {
	if receiver.IsClass() {
		class := receiver.AsClass()
		if v, ok := class.StaticFields[name]; ok {
			return v, nil
		}
		if m, ok := class.StaticMethods[name]; ok {
			bound := &value.ObjBoundMethod{Receiver: receiver, Method: m}
			vm.gcol.Allocate(bound)
			return value.Obj(bound), nil
		}
		return value.Nil, vm.runtimeError("undefined static property '%s'", name)
	}
	if !receiver.IsInstance() {
		receiver = vm.promote(receiver)
		if !receiver.IsInstance() {
			return value.Nil, vm.runtimeError("only instances have properties")
		}
	}
	inst := receiver.AsInstance()
	if field, ok := inst.Fields[name]; ok {
		return field, nil
	}
	if bound, ok := vm.bindMethod(inst.Class, name, receiver); ok {
		return bound, nil
	}
	return value.Nil, vm.runtimeError("undefined property '%s'", name)
}

func (vm *VM) setProperty(receiver value.Value, name string, v value.Value) error {
	if receiver.IsClass() {
		receiver.AsClass().StaticFields[name] = v
		return nil
	}
	if !receiver.IsInstance() {
		return vm.runtimeError("only instances have fields")
	}
	receiver.AsInstance().Fields[name] = v
	return nil
}

// getSuperMethod resolves an explicit `super.name` reference: name is
// looked up starting at superclass, never the receiver's own class.
func (vm *VM) getSuperMethod(superclass *value.ObjClass, name string, receiver value.Value) (value.Value, error) {
	if bound, ok := vm.bindMethod(superclass, name, receiver); ok {
		return bound, nil
	}
	return value.Nil, vm.runtimeError("undefined property '%s'", name)
}

func (vm *VM) defineClass(name *value.ObjString) *value.ObjClass {
	class := &value.ObjClass{
		Name:          name,
		Methods:       map[string]*value.ObjClosure{},
		StaticMethods: map[string]*value.ObjClosure{},
		StaticFields:  map[string]value.Value{},
	}
	vm.gcol.Allocate(class)
	return class
}

func (vm *VM) inherit(superclass, subclass *value.ObjClass) error {
	if superclass.IsBuiltinBox {
		return vm.runtimeError("cannot inherit from a built-in wrapper class")
	}
	subclass.Super = superclass
	return nil
}

func (vm *VM) defineMethod(class *value.ObjClass, name string, method *value.ObjClosure) {
	if name == "init" {
		class.Initializer = method
	}
	class.Methods[name] = method
}

func (vm *VM) defineStaticMethod(class *value.ObjClass, name string, method *value.ObjClosure) {
	class.StaticMethods[name] = method
}
