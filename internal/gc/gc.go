// Package gc implements the tracing mark-and-sweep collector that
// cooperates with every heap allocation, including
// interned strings and compiler-owned temporaries.
//
// The collector is deliberately decoupled from the VM and Compiler
// packages to avoid an import cycle: instead of reaching into VM
// internals directly, it calls back through a root-marking function
// the owner registers with SetRootMarker, following the "compiler
// roots hook" pattern for letting transient
// compiler state publish roots without the GC depending on the
// compiler package.
package gc

import (
	"unsafe"

	"github.com/kristofer/cloxvm/internal/value"
)

// RootMarker is called once per collection; it should call mark(o)
// for every object directly reachable from a root (VM stack, frames,
// globals, open upvalues, compiler temporaries, ...).
type RootMarker func(mark func(value.Object))

// Collector is the tracing mark-sweep GC. The zero value is not
// usable; construct with New.
type Collector struct {
	head           value.Object // head of the intrusive object list
	bytesAllocated int
	nextGC         int
	gray           []value.Object
	interner       *value.Interner
	markRoots      RootMarker
	preSweep       []func()

	// Stats exposed for tests.
	CollectionCount int
}

// initialNextGC mirrors the reference implementation's 1MB starting
// threshold, scaled down since our objects are lighter-weight Go
// structs rather than malloc'd C structs.
const initialNextGC = 1 << 14

// New returns a collector that interns strings through in and has not
// yet run a collection.
func New(in *value.Interner) *Collector {
	return &Collector{interner: in, nextGC: initialNextGC}
}

// SetRootMarker installs the callback used to enumerate roots.
func (c *Collector) SetRootMarker(f RootMarker) { c.markRoots = f }

// AddPreSweepHook registers a function run after marking and before
// sweeping - used by the interner to drop weak entries whose strings
// turned out to be garbage.
func (c *Collector) AddPreSweepHook(f func()) { c.preSweep = append(c.preSweep, f) }

// BytesAllocated reports the live-allocation byte total.
func (c *Collector) BytesAllocated() int { return c.bytesAllocated }

// NextGC reports the threshold that triggers the next collection.
func (c *Collector) NextGC() int { return c.nextGC }

func sizeOf(o value.Object) int {
	switch o.(type) {
	case *value.ObjString:
		return int(unsafe.Sizeof(value.ObjString{}))
	case *value.ObjFunction:
		return int(unsafe.Sizeof(value.ObjFunction{}))
	case *value.ObjClosure:
		return int(unsafe.Sizeof(value.ObjClosure{}))
	case *value.ObjUpvalue:
		return int(unsafe.Sizeof(value.ObjUpvalue{}))
	case *value.ObjClass:
		return int(unsafe.Sizeof(value.ObjClass{}))
	case *value.ObjInstance:
		return int(unsafe.Sizeof(value.ObjInstance{}))
	case *value.ObjBoundMethod:
		return int(unsafe.Sizeof(value.ObjBoundMethod{}))
	case *value.ObjNative:
		return int(unsafe.Sizeof(value.ObjNative{}))
	case *value.ObjArray:
		return int(unsafe.Sizeof(value.ObjArray{}))
	}
	return 0
}

// track links o into the intrusive object list.
func (c *Collector) track(o value.Object) {
	o.Header().Next = c.head
	c.head = o
}

// Allocate registers a freshly constructed object with the collector
// and runs a collection first if doing so would exceed nextGC - the
// object being allocated is not yet live, so it is safe to collect
// before linking it in.
//
// Any object still under construction that needs to survive a
// collection triggered by allocating one of ITS fields must already
// be reachable (typically: pushed on the VM stack) before that nested
// allocation happens.
func (c *Collector) Allocate(o value.Object) value.Object {
	size := sizeOf(o)
	if c.bytesAllocated+size > c.nextGC && c.markRoots != nil {
		c.Collect()
	}
	c.bytesAllocated += size
	c.track(o)
	return o
}

// NewString interns bs, allocating a fresh ObjString through the
// collector only if no equal string already exists.
func (c *Collector) NewString(bs []byte) *value.ObjString {
	return c.interner.Intern(bs, func(hash uint32, bytes []byte) *value.ObjString {
		s := &value.ObjString{Bytes: append([]byte(nil), bytes...), Hash: hash}
		c.Allocate(s)
		return s
	})
}

func (c *Collector) mark(o value.Object) {
	if o == nil {
		return
	}
	h := o.Header()
	if h.Marked {
		return
	}
	h.Marked = true
	c.gray = append(c.gray, o)
}

// MarkValue marks v's object, if it holds one. Exposed so the VM and
// compiler can mark roots without reimplementing the nil/type checks.
func (c *Collector) MarkValue(v value.Value) {
	if v.IsObj() {
		c.mark(v.AsObj())
	}
}

func (c *Collector) blacken(o value.Object) {
	switch ob := o.(type) {
	case *value.ObjString:
		// no outgoing references
	case *value.ObjNative:
		// no outgoing references
	case *value.ObjUpvalue:
		if ob.IsClosed {
			c.MarkValue(ob.Closed)
		}
	case *value.ObjFunction:
		c.mark(ob.Name)
		for _, k := range ob.Chunk.Constants {
			c.MarkValue(k)
		}
	case *value.ObjClosure:
		c.mark(ob.Function)
		for _, uv := range ob.Upvalues {
			c.mark(uv)
		}
	case *value.ObjArray:
		for _, e := range ob.Elements {
			c.MarkValue(e)
		}
	case *value.ObjClass:
		c.mark(ob.Name)
		if ob.Super != nil {
			c.mark(ob.Super)
		}
		if ob.Initializer != nil {
			c.mark(ob.Initializer)
		}
		for _, m := range ob.Methods {
			c.mark(m)
		}
		for _, m := range ob.StaticMethods {
			c.mark(m)
		}
		for _, v := range ob.StaticFields {
			c.MarkValue(v)
		}
	case *value.ObjInstance:
		c.mark(ob.Class)
		for _, v := range ob.Fields {
			c.MarkValue(v)
		}
		if ob.Boxed != nil {
			c.MarkValue(*ob.Boxed)
		}
	case *value.ObjBoundMethod:
		c.MarkValue(ob.Receiver)
		c.mark(ob.Method)
	}
}

func (c *Collector) free(o value.Object) {
	// Go's own allocator reclaims the memory once unlinked; this hook
	// exists for symmetry with the reference design's type-specific
	// free() and as the place a host native would release non-Go
	// resources (file handles, sockets) attached to an object.
	o.Header().Marked = false
}

// Collect runs one mark-sweep cycle to completion synchronously. No
// allocation is permitted from within blacken or free.
func (c *Collector) Collect() {
	c.CollectionCount++

	if c.markRoots != nil {
		c.markRoots(c.mark)
	}
	for len(c.gray) > 0 {
		o := c.gray[len(c.gray)-1]
		c.gray = c.gray[:len(c.gray)-1]
		c.blacken(o)
	}

	for _, hook := range c.preSweep {
		hook()
	}

	c.sweep()
	c.nextGC = c.bytesAllocated * 2
	if c.nextGC < initialNextGC {
		c.nextGC = initialNextGC
	}
}

func (c *Collector) sweep() {
	var prev value.Object
	cur := c.head
	for cur != nil {
		h := cur.Header()
		if h.Marked {
			h.Marked = false
			prev = cur
			cur = h.Next
			continue
		}
		unreached := cur
		cur = h.Next
		if prev == nil {
			c.head = cur
		} else {
			prev.Header().Next = cur
		}
		c.bytesAllocated -= sizeOf(unreached)
		c.free(unreached)
	}
}
