// Package compiler implements the single-pass Pratt compiler
// a single-pass Pratt parser: no intermediate AST, bytecode is emitted
// directly into the enclosing function's Chunk as the token stream is
// parsed. Locals, upvalues, classes, and exception regions are all
// resolved during this one pass.
package compiler

import (
	"fmt"

	"github.com/kristofer/cloxvm/internal/gc"
	"github.com/kristofer/cloxvm/internal/lexer"
	"github.com/kristofer/cloxvm/internal/value"
)

// CompileError is one accumulated compile-time diagnostic, formatted
// formatted as "[line L] Error at 'token': message".
type CompileError struct {
	Line    int
	Where   string
	Message string
}

func (e CompileError) Error() string {
	if e.Where == "" {
		return fmt.Sprintf("[line %d] Error: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("[line %d] Error at '%s': %s", e.Line, e.Where, e.Message)
}

// FunctionType distinguishes the kind of code a funcScope is
// compiling, since scripts, plain functions, methods, and
// initializers each seed their local-slot-0 binding differently.
type FunctionType int

const (
	TypeScript FunctionType = iota
	TypeFunction
	TypeMethod
	TypeInitializer
	TypeStaticMethod
)

type localVar struct {
	name       string
	depth      int // -1 while the declaring initializer is still being compiled
	isCaptured bool
}

type loopCtx struct {
	continueTarget int
	scopeDepth     int
	breakJumps     []int
	isForLoop      bool
}

// classScope tracks compile-time context for a class body so `super`
// and field/method duplicate-name checks work without an AST.
type classScope struct {
	enclosing     *classScope
	hasSuperclass bool
	memberNames   map[string]bool // "method:name", "static:name" etc
}

// funcScope is the per-function compilation frame, chained to its
// lexically enclosing funcScope the way the reference compiler chains
// Compiler structs, so upvalue resolution can walk outward.
type funcScope struct {
	enclosing *funcScope
	function  *value.ObjFunction
	fnType    FunctionType
	locals    []localVar
	scopeDepth int
	loops     []*loopCtx
}

// Parser holds state shared across every nested funcScope compiled
// during one Compile call: the token cursor, accumulated diagnostics,
// and the allocator used for every constant the compiler interns.
type Parser struct {
	lx      *lexer.Lexer
	current lexer.Token
	previous lexer.Token

	hadError  bool
	panicMode bool
	errors    []CompileError

	gc    *gc.Collector
	fn    *funcScope
	class *classScope

	// allFunctions accumulates every ObjFunction compiled in this
	// pass (outer and nested), so the GC's compiler-roots hook can
	// keep them - and the string constants they reference - alive
	// while a multi-statement REPL session is still parsing.
	allFunctions []*value.ObjFunction
}

// Compile compiles source into a top-level script function. On
// failure it returns a nil function and the accumulated errors; the
// compiler synchronizes at statement boundaries after an error so it
// can keep parsing and report more than one diagnostic per run.
func Compile(source string, gcol *gc.Collector) (*value.ObjFunction, []CompileError) {
	p := &Parser{lx: lexer.New(source), gc: gcol}
	p.beginFunction(TypeScript, "")

	p.advance()
	for !p.check(lexer.TokenEOF) {
		p.declaration()
	}
	p.consume(lexer.TokenEOF, "expect end of expression")

	fn := p.endFunction()
	if p.hadError {
		return nil, p.errors
	}
	return fn, nil
}

// Roots returns every ObjFunction compiled so far, for the GC's
// compiler-roots marking hook: each function's
// Chunk.Constants pool is what needs protecting mid-compile.
func (p *Parser) Roots() []*value.ObjFunction { return p.allFunctions }

func (p *Parser) beginFunction(t FunctionType, name string) {
	fn := &value.ObjFunction{Chunk: value.NewChunk()}
	if name != "" {
		fn.Name = p.gc.NewString([]byte(name))
	}
	p.gc.Allocate(fn)
	p.allFunctions = append(p.allFunctions, fn)

	fs := &funcScope{enclosing: p.fn, function: fn, fnType: t}
	// Slot 0 is reserved: `this` for methods/initializers, the
	// function itself (unused) otherwise - mirrors the reference
	// compiler's implicit first local.
	slotName := ""
	if t == TypeMethod || t == TypeInitializer {
		slotName = "this"
	}
	fs.locals = append(fs.locals, localVar{name: slotName, depth: 0})
	p.fn = fs
}

func (p *Parser) endFunction() *value.ObjFunction {
	p.emitReturn()
	fn := p.fn.function
	fn.Arity = fn.Arity // already set incrementally
	fn.UpvalueCount = len(fn.Upvalues)
	p.fn = p.fn.enclosing
	return fn
}

func (p *Parser) currentChunk() *value.Chunk { return p.fn.function.Chunk }

// --- token stream -------------------------------------------------

func (p *Parser) advance() {
	p.previous = p.current
	for {
		p.current = p.lx.NextToken()
		if p.current.Type != lexer.TokenError {
			break
		}
		p.errorAtCurrent(p.current.Lexeme)
	}
}

func (p *Parser) check(t lexer.TokenType) bool { return p.current.Type == t }

func (p *Parser) match(t lexer.TokenType) bool {
	if !p.check(t) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) consume(t lexer.TokenType, msg string) {
	if p.current.Type == t {
		p.advance()
		return
	}
	p.errorAtCurrent(msg)
}

func (p *Parser) errorAtCurrent(msg string) { p.errorAt(p.current, msg) }
func (p *Parser) error(msg string)          { p.errorAt(p.previous, msg) }

func (p *Parser) errorAt(tok lexer.Token, msg string) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	p.hadError = true
	where := tok.Lexeme
	if tok.Type == lexer.TokenEOF {
		where = ""
	}
	p.errors = append(p.errors, CompileError{Line: tok.Line, Where: where, Message: msg})
}

// synchronize implements panic-mode recovery: skip tokens until a
// likely statement boundary so compilation can continue and report
// further independent errors.
func (p *Parser) synchronize() {
	p.panicMode = false
	for p.current.Type != lexer.TokenEOF {
		if p.previous.Type == lexer.TokenSemicolon {
			return
		}
		switch p.current.Type {
		case lexer.TokenClass, lexer.TokenFun, lexer.TokenVar, lexer.TokenFor,
			lexer.TokenIf, lexer.TokenWhile, lexer.TokenPrint, lexer.TokenReturn,
			lexer.TokenTry, lexer.TokenSwitch:
			return
		}
		p.advance()
	}
}

// --- emission -------------------------------------------------------

func (p *Parser) emitByte(b byte) { p.currentChunk().Write(b, p.previous.Line) }
func (p *Parser) emitOp(op value.OpCode) { p.currentChunk().WriteOp(op, p.previous.Line) }
func (p *Parser) emitOpByte(op value.OpCode, b byte) {
	p.emitOp(op)
	p.emitByte(b)
}

func (p *Parser) emitConstant(v value.Value) {
	switch {
	case v.IsNumber() && v.AsNumber() == 0:
		p.emitOp(value.OpConstantZero)
		return
	case v.IsNumber() && v.AsNumber() == 1:
		p.emitOp(value.OpConstantOne)
		return
	case v.IsNumber() && v.AsNumber() == 2:
		p.emitOp(value.OpConstantTwo)
		return
	}
	idx := p.addConstant(v)
	p.emitOpByte(value.OpConstant, idx)
}

func (p *Parser) addConstant(v value.Value) byte {
	idx, err := p.currentChunk().AddConstant(v)
	if err != nil {
		p.error(err.Error())
		return 0
	}
	return byte(idx)
}

func (p *Parser) identifierConstant(name string) byte {
	return p.addConstant(value.Obj(p.gc.NewString([]byte(name))))
}

func (p *Parser) emitReturn() {
	if p.fn.fnType == TypeInitializer {
		p.emitOpByte(value.OpGetLocal, 0)
	} else {
		p.emitOp(value.OpNil)
	}
	p.emitOp(value.OpReturn)
}

// emitJump emits a jump opcode with a placeholder 2-byte operand and
// returns the operand's offset, to be fixed up by patchJump.
func (p *Parser) emitJump(op value.OpCode) int {
	p.emitOp(op)
	p.emitByte(0xff)
	p.emitByte(0xff)
	return len(p.currentChunk().Code) - 2
}

func (p *Parser) patchJump(offset int) {
	jump := len(p.currentChunk().Code) - offset - 2
	if jump > 0xffff {
		p.error("too much code to jump over")
	}
	p.currentChunk().Code[offset] = byte(jump >> 8)
	p.currentChunk().Code[offset+1] = byte(jump)
}

// emitPushExceptionHandler emits OpPushExceptionHandler with
// placeholder operand bytes and returns the offset of the first
// operand byte, for later patching by patchHandlerCatch /
// patchHandlerFinally once the handler/finally addresses are known.
func (p *Parser) emitPushExceptionHandler() int {
	p.emitOp(value.OpPushExceptionHandler)
	pos := len(p.currentChunk().Code)
	p.emitByte(0) // hasCatch
	p.emitByte(0) // catch type constant index
	p.emitByte(0xff)
	p.emitByte(0xff) // handler addr
	p.emitByte(0)    // hasFinally
	p.emitByte(0xff)
	p.emitByte(0xff) // finally addr
	return pos
}

func (p *Parser) patchHandlerCatch(pos int, typeConst byte, addr int) {
	code := p.currentChunk().Code
	code[pos] = 1
	code[pos+1] = typeConst
	code[pos+2] = byte(addr >> 8)
	code[pos+3] = byte(addr)
}

func (p *Parser) patchHandlerFinally(pos int, addr int) {
	code := p.currentChunk().Code
	code[pos+4] = 1
	code[pos+5] = byte(addr >> 8)
	code[pos+6] = byte(addr)
}

func (p *Parser) emitLoop(loopStart int) {
	p.emitOp(value.OpLoop)
	offset := len(p.currentChunk().Code) - loopStart + 2
	if offset > 0xffff {
		p.error("loop body too large")
	}
	p.emitByte(byte(offset >> 8))
	p.emitByte(byte(offset))
}
