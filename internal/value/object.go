package value

// ObjType tags the concrete kind of a heap Object, mirroring the enum
// carried by every object header.
type ObjType uint8

const (
	ObjTypeString ObjType = iota
	ObjTypeFunction
	ObjTypeClosure
	ObjTypeUpvalue
	ObjTypeClass
	ObjTypeInstance
	ObjTypeBoundMethod
	ObjTypeNative
	ObjTypeArray
)

func (t ObjType) String() string {
	switch t {
	case ObjTypeString:
		return "String"
	case ObjTypeFunction:
		return "Function"
	case ObjTypeClosure:
		return "Closure"
	case ObjTypeUpvalue:
		return "Upvalue"
	case ObjTypeClass:
		return "Class"
	case ObjTypeInstance:
		return "Instance"
	case ObjTypeBoundMethod:
		return "BoundMethod"
	case ObjTypeNative:
		return "Native"
	case ObjTypeArray:
		return "Array"
	}
	return "Unknown"
}

// GCHeader is the object header every heap value carries: a mark bit
// for the tracing collector and an intrusive link into the
// process-wide object list, so the sweeper can walk every allocation
// in insertion order without a separate registry.
type GCHeader struct {
	Marked bool
	Next   Object
}

// Object is implemented by every heap value. Dispatch per object kind
// (blacken/free/call/print) is a type switch over the concrete
// pointer type in the gc and vm packages, rather than a vtable -
// idiomatic Go already gives us that via type switches.
type Object interface {
	Type() ObjType
	Header() *GCHeader
}

// ObjString is an interned byte sequence with a precomputed FNV-1a
// hash. Two ObjStrings with equal bytes are always the same pointer
// (see the interner in interner.go), so identity comparison doubles as
// content comparison.
type ObjString struct {
	GCHeader
	Bytes []byte
	Hash  uint32
}

func (s *ObjString) Type() ObjType    { return ObjTypeString }
func (s *ObjString) Header() *GCHeader { return &s.GCHeader }

// NativeFn is a host function bound into an ObjNative. argv holds
// the arguments; a successful call returns (result, nil); a failing
// call returns (exceptionValue, err) with a non-nil err, and the VM
// throws exceptionValue.
type NativeFn func(argv []Value) (Value, error)

// ObjNative wraps a host-supplied Go function as a callable value,
// with a fixed Arity or -1 for variadic.
type ObjNative struct {
	GCHeader
	Name  string
	Arity int
	Fn    NativeFn
}

func (n *ObjNative) Type() ObjType     { return ObjTypeNative }
func (n *ObjNative) Header() *GCHeader { return &n.GCHeader }

// ObjArray is a dynamic, amortized-O(1)-append sequence of Values.
type ObjArray struct {
	GCHeader
	Elements []Value
}

func (a *ObjArray) Type() ObjType     { return ObjTypeArray }
func (a *ObjArray) Header() *GCHeader { return &a.GCHeader }

// UpvalueDescriptor is emitted by the compiler after OpClosure: one
// per captured variable, telling the VM whether to capture a local
// slot of the enclosing call or to copy an upvalue from the
// enclosing closure.
type UpvalueDescriptor struct {
	IsLocal bool
	Index   int
}

// ObjFunction is a compiled function: fixed arity, upvalue count, an
// owned Chunk, and an optional name (nil for the top-level script).
type ObjFunction struct {
	GCHeader
	Name         *ObjString
	Arity        int
	UpvalueCount int
	Chunk        *Chunk
	Upvalues     []UpvalueDescriptor // capture descriptors, parallel to UpvalueCount
}

func (f *ObjFunction) Type() ObjType     { return ObjTypeFunction }
func (f *ObjFunction) Header() *GCHeader { return &f.GCHeader }

// ObjUpvalue refers to a captured variable. While Closed is false,
// Location points at a live VM stack slot; once closed, the value has
// been moved into Closed's own storage (Value) and Location is nil.
type ObjUpvalue struct {
	GCHeader
	Location *Value // points into the VM stack while open
	Closed   Value  // owned storage once closed
	IsClosed bool
	Next     *ObjUpvalue // open-upvalue list, sorted by descending stack address
}

func (u *ObjUpvalue) Type() ObjType     { return ObjTypeUpvalue }
func (u *ObjUpvalue) Header() *GCHeader { return &u.GCHeader }

// Get returns the upvalue's current value, whichever storage it lives in.
func (u *ObjUpvalue) Get() Value {
	if u.IsClosed {
		return u.Closed
	}
	return *u.Location
}

// Set stores a new value into whichever storage the upvalue lives in.
func (u *ObjUpvalue) Set(v Value) {
	if u.IsClosed {
		u.Closed = v
		return
	}
	*u.Location = v
}

// Close moves the value out of the stack into the upvalue's own cell.
func (u *ObjUpvalue) Close() {
	u.Closed = *u.Location
	u.IsClosed = true
	u.Location = nil
}

// ObjClosure pairs a function with the array of upvalues it captured;
// the array's length always equals Function.UpvalueCount.
type ObjClosure struct {
	GCHeader
	Function *ObjFunction
	Upvalues []*ObjUpvalue
}

func (c *ObjClosure) Type() ObjType     { return ObjTypeClosure }
func (c *ObjClosure) Header() *GCHeader { return &c.GCHeader }

// Callable is satisfied by anything that can sit on the right of a
// CALL/INVOKE opcode: a bare function, a closure, or a native.
type Callable interface {
	Object
	CallableArity() int
}

func (f *ObjFunction) CallableArity() int { return f.Arity }
func (c *ObjClosure) CallableArity() int  { return c.Function.Arity }
func (n *ObjNative) CallableArity() int   { return n.Arity }

// ObjClass is a class: its name, an optional initializer closure, and
// three tables - instance methods, static methods, static fields -
// each keyed by name. Instance fields themselves are not declared on
// the class; they come into existence the first time an instance's
// initializer (or any method) assigns to them.
type ObjClass struct {
	GCHeader
	Name          *ObjString
	Super         *ObjClass
	Initializer   *ObjClosure
	Methods       map[string]*ObjClosure
	StaticMethods map[string]*ObjClosure
	StaticFields  map[string]Value
	IsBuiltinBox  bool // true for the reserved Number/Boolean/String/Array wrapper classes
}

func (c *ObjClass) Type() ObjType     { return ObjTypeClass }
func (c *ObjClass) Header() *GCHeader { return &c.GCHeader }

// FindMethod walks the superclass chain looking up a method by name.
func (c *ObjClass) FindMethod(name string) (*ObjClosure, *ObjClass) {
	for cur := c; cur != nil; cur = cur.Super {
		if m, ok := cur.Methods[name]; ok {
			return m, cur
		}
	}
	return nil, nil
}

// ObjInstance is an object instance: a back-reference to its class
// and a fields table. Boxed is non-nil exactly when this instance is
// the runtime's auto-boxed wrapper around a primitive value (see
// the vm package's promote) - printing and unwrap-for-equality special-case it.
type ObjInstance struct {
	GCHeader
	Class  *ObjClass
	Fields map[string]Value
	Boxed  *Value
}

func (i *ObjInstance) Type() ObjType     { return ObjTypeInstance }
func (i *ObjInstance) Header() *GCHeader { return &i.GCHeader }

// ObjBoundMethod pairs a receiver with the method it invokes; the
// method may be a user closure or a host native.
type ObjBoundMethod struct {
	GCHeader
	Receiver Value
	Method   Object // *ObjClosure or *ObjNative
}

func (b *ObjBoundMethod) Type() ObjType     { return ObjTypeBoundMethod }
func (b *ObjBoundMethod) Header() *GCHeader { return &b.GCHeader }
