// Package vm implements the stack-based bytecode interpreter: call
// frames, open-upvalue threading, class/instance/bound-method
// dispatch, primitive auto-boxing, and the try/catch/finally
// propagation protocol.
package vm

import (
	"errors"
	"fmt"

	"golang.org/x/net/context"

	"github.com/kristofer/cloxvm/internal/compiler"
	"github.com/kristofer/cloxvm/internal/gc"
	"github.com/kristofer/cloxvm/internal/table"
	"github.com/kristofer/cloxvm/internal/value"
)

// errNativeThrow is a sentinel returned by callNative when a native
// function throws: the exception value itself travels via the stack
// (pushed by callNative before returning), not through the error.
var errNativeThrow = errors.New("native throw")

const (
	maxFrames        = 64
	maxStack         = maxFrames * 256
	maxHandlersPerFn = 16
)

// handler is one entry of a frame's exception-handler stack, pushed
// by OpPushExceptionHandler and consulted while unwinding on a throw.
type handler struct {
	hasCatch    bool
	catchType   string // empty means catch-all
	handlerAddr int
	hasFinally  bool
	finallyAddr int
	stackBase   int // stack height to restore to when this handler fires
}

// frame is one active call: the closure being executed, its
// instruction pointer, the stack window holding its locals, and its
// own exception-handler stack.
type frame struct {
	closure  *value.ObjClosure
	ip       int
	slotBase int // index into vm.stack where this frame's slot 0 lives
	handlers []handler
}

// VM is one interpreter session: its value stack, call frames, global
// table, and the collector/interner it allocates through.
//
// stack and frames are both preallocated at full capacity (maxStack,
// maxFrames) in New and never grown past it, so append never
// reallocates their backing arrays - open upvalues hold raw *Value
// pointers into stack that must stay valid for as long as they're open.
type VM struct {
	stack  []value.Value
	frames []frame

	globals  *table.Table
	interner *value.Interner
	gcol     *gc.Collector

	openUpvalues *value.ObjUpvalue // sorted by descending stack address

	initString *value.ObjString

	// boxClasses holds the reserved wrapper classes for auto-boxed
	// primitives, keyed by class name ("Number", "Boolean", "String",
	// "Array"); errorClass also caches the built-in "Error" class here.
	boxClasses map[string]*value.ObjClass

	// pendingException holds the value being unwound while searching
	// for a handler, and the value PROPAGATE_FINALLY rethrows.
	pendingException value.Value

	// exceptionClass is the built-in Exception class every thrown
	// value must be (or descend from); constructing it runs no script
	// code, just stashes the constructor argument into a message field.
	exceptionClass *value.ObjClass

	// lastExitCode is set when exit() triggers a non-local Exit and
	// read back by ExitCode.
	lastExitCode int

	stdout func(string)
	trace  *tracer
}

// Exit is the non-local-jump result exit(n) produces: it unwinds
// straight out of the dispatch loop, bypassing any try/catch/finally
// handlers, the way a process exit would.
type Exit struct{ Code int }

func (e *Exit) Error() string { return fmt.Sprintf("exit(%d)", e.Code) }

// ExitCode reports the code set by the most recent exit() call,
// valid once Interpret/InterpretCompiled/InterpretContext has
// returned a *Exit error.
func (vm *VM) ExitCode() int { return vm.lastExitCode }

// New constructs a VM with fresh global/interner/collector state.
func New() *VM {
	in := value.NewInterner()
	gcol := gc.New(in)
	vm := &VM{
		stack:      make([]value.Value, 0, maxStack),
		frames:     make([]frame, 0, maxFrames),
		globals:    table.New(),
		interner:   in,
		gcol:       gcol,
		boxClasses: map[string]*value.ObjClass{},
		stdout:     func(s string) { fmt.Print(s) },
		trace:      newTracerFromEnv(),
	}
	gcol.SetRootMarker(vm.markRoots)
	gcol.AddPreSweepHook(in.DropUnmarked)
	vm.initString = gcol.NewString([]byte("init"))
	vm.defineNatives()
	vm.defineBoxClasses()
	vm.defineExceptionClass()
	return vm
}

// SetStdout overrides where `print` statements write, for tests and
// embedders that want to capture output instead of writing to stdout.
func (vm *VM) SetStdout(w func(string)) { vm.stdout = w }

// markRoots is the gc.RootMarker callback: it walks the value stack,
// every active frame's closure, every open upvalue, and the globals
// table, marking everything directly reachable.
func (vm *VM) markRoots(mark func(value.Object)) {
	for _, v := range vm.stack {
		if v.IsObj() {
			mark(v.AsObj())
		}
	}
	for _, f := range vm.frames {
		mark(f.closure)
	}
	for uv := vm.openUpvalues; uv != nil; uv = uv.Next {
		mark(uv)
	}
	vm.globals.Each(func(k *value.ObjString, v value.Value) {
		mark(k)
		if v.IsObj() {
			mark(v.AsObj())
		}
	})
	for _, c := range vm.boxClasses {
		mark(c)
	}
	if vm.exceptionClass != nil {
		mark(vm.exceptionClass)
	}
	if vm.pendingException.IsObj() {
		mark(vm.pendingException.AsObj())
	}
}

func (vm *VM) push(v value.Value) { vm.stack = append(vm.stack, v) }

func (vm *VM) pop() value.Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) peek(distance int) value.Value { return vm.stack[len(vm.stack)-1-distance] }

// Interpret compiles and runs source as a fresh script.
func (vm *VM) Interpret(source string) error {
	fn, errs := compiler.Compile(source, vm.gcol)
	if fn == nil {
		return &CompileError{Errors: errs}
	}
	return vm.InterpretCompiled(fn)
}

// CompileOnly compiles source without running it, for callers that
// need the resulting script function itself (serializing to a .cbc
// file, disassembling) rather than its execution result.
func (vm *VM) CompileOnly(source string) (*value.ObjFunction, []compiler.CompileError) {
	return compiler.Compile(source, vm.gcol)
}

// Collector exposes the VM's allocator/collector, for callers that
// need to intern strings or allocate objects outside of compiling or
// running source - a bytecode file decoder, for instance.
func (vm *VM) Collector() *gc.Collector { return vm.gcol }

// InterpretContext is Interpret with a cancellation point checked
// before compiling and before running, for a host driving a sequence
// of top-level programs (a REPL, a batch runner) that wants to abandon
// the next one without tearing down the VM. Cancellation is never
// checked inside the dispatch loop itself - once a program starts
// running it runs to completion or to a runtime error.
func (vm *VM) InterpretContext(ctx context.Context, source string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fn, errs := compiler.Compile(source, vm.gcol)
	if fn == nil {
		return &CompileError{Errors: errs}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return vm.InterpretCompiled(fn)
}

// InterpretCompiled runs an already-compiled script function.
func (vm *VM) InterpretCompiled(fn *value.ObjFunction) error {
	closure := &value.ObjClosure{Function: fn}
	vm.gcol.Allocate(closure)
	vm.push(value.Obj(closure))
	if err := vm.call(closure, 0); err != nil {
		return err
	}
	return vm.run()
}

func (vm *VM) currentFrame() *frame { return &vm.frames[len(vm.frames)-1] }

func (vm *VM) readByte(f *frame) byte {
	b := f.closure.Function.Chunk.Code[f.ip]
	f.ip++
	return b
}

func (vm *VM) readUint16(f *frame) int {
	hi := vm.readByte(f)
	lo := vm.readByte(f)
	return int(hi)<<8 | int(lo)
}

func (vm *VM) readConstant(f *frame) value.Value {
	idx := vm.readByte(f)
	return f.closure.Function.Chunk.Constants[idx]
}

func (vm *VM) readString(f *frame) *value.ObjString {
	return vm.readConstant(f).AsString()
}

// RuntimeError carries a stack trace alongside its message.
type RuntimeError struct {
	Message string
	Trace   []string
}

func (e *RuntimeError) Error() string {
	s := e.Message
	for _, t := range e.Trace {
		s += "\n\t" + t
	}
	return s
}

// CompileError wraps the compiler's accumulated diagnostics.
type CompileError struct{ Errors []compiler.CompileError }

func (e *CompileError) Error() string {
	s := ""
	for i, d := range e.Errors {
		if i > 0 {
			s += "\n"
		}
		s += d.Error()
	}
	return s
}

func (vm *VM) runtimeError(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	var trace []string
	for i := len(vm.frames) - 1; i >= 0; i-- {
		f := &vm.frames[i]
		fn := f.closure.Function
		line := fn.Chunk.LineAt(f.ip - 1)
		name := "<script>"
		if fn.Name != nil {
			name = string(fn.Name.Bytes) + "()"
		}
		trace = append(trace, fmt.Sprintf("[line %d] in %s", line, name))
	}
	return &RuntimeError{Message: msg, Trace: trace}
}
