package compiler

import (
	"github.com/kristofer/cloxvm/internal/lexer"
	"github.com/kristofer/cloxvm/internal/value"
)

func (p *Parser) declaration() {
	switch {
	case p.match(lexer.TokenClass):
		p.classDeclaration()
	case p.match(lexer.TokenFun):
		p.funDeclaration()
	case p.match(lexer.TokenVar):
		p.varDeclaration()
	default:
		p.statement()
	}
	if p.panicMode {
		p.synchronize()
	}
}

// parseVariable consumes an identifier, declares it in the current
// scope, and returns the constant-pool index for its name (only
// meaningful for globals - locals are addressed by slot).
func (p *Parser) parseVariable(errMsg string) byte {
	p.consume(lexer.TokenIdentifier, errMsg)
	name := p.previous.Lexeme
	p.declareVariable(name)
	if p.fn.scopeDepth > 0 {
		return 0
	}
	return p.identifierConstant(name)
}

func (p *Parser) defineVariable(global byte) {
	if p.fn.scopeDepth > 0 {
		p.markInitialized()
		return
	}
	p.emitOpByte(value.OpDefineGlobal, global)
}

func (p *Parser) varDeclaration() {
	global := p.parseVariable("expect variable name")
	if p.match(lexer.TokenEqual) {
		p.expression()
	} else {
		p.emitOp(value.OpNil)
	}
	p.consume(lexer.TokenSemicolon, "expect ';' after variable declaration")
	p.defineVariable(global)
}

func (p *Parser) funDeclaration() {
	global := p.parseVariable("expect function name")
	p.markInitialized()
	p.function(TypeFunction)
	p.defineVariable(global)
}

// function compiles a parameter list and body as a nested funcScope
// and emits OpClosure (plus one capture descriptor pair per upvalue)
// into the enclosing chunk.
func (p *Parser) function(t FunctionType) {
	name := p.previous.Lexeme
	p.beginFunction(t, name)
	p.beginScope()

	p.consume(lexer.TokenLeftParen, "expect '(' after function name")
	if !p.check(lexer.TokenRightParen) {
		for {
			p.fn.function.Arity++
			if p.fn.function.Arity > 255 {
				p.error("cannot have more than 255 parameters")
			}
			paramConst := p.parseVariable("expect parameter name")
			p.defineVariable(paramConst)
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.consume(lexer.TokenRightParen, "expect ')' after parameters")
	p.consume(lexer.TokenLeftBrace, "expect '{' before function body")
	p.blockBody()

	fn := p.endFunction()
	idx := p.addConstant(value.Obj(fn))
	p.emitOpByte(value.OpClosure, idx)
	for _, uv := range fn.Upvalues {
		if uv.IsLocal {
			p.emitByte(1)
		} else {
			p.emitByte(0)
		}
		p.emitByte(byte(uv.Index))
	}
}

func (p *Parser) classDeclaration() {
	p.consume(lexer.TokenIdentifier, "expect class name")
	className := p.previous.Lexeme
	nameConst := p.identifierConstant(className)
	p.declareVariable(className)

	p.emitOpByte(value.OpClass, nameConst)
	p.defineVariable(nameConst)

	cs := &classScope{enclosing: p.class, memberNames: map[string]bool{}}
	p.class = cs

	if p.match(lexer.TokenLess) {
		p.consume(lexer.TokenIdentifier, "expect superclass name")
		superName := p.previous.Lexeme
		if superName == className {
			p.error("a class cannot inherit from itself")
		}
		namedVariable(p, superName, false)

		p.beginScope()
		p.addLocal("super")
		p.markInitialized()

		namedVariable(p, className, false)
		p.emitOp(value.OpInherit)
		cs.hasSuperclass = true
	}

	namedVariable(p, className, false)
	p.consume(lexer.TokenLeftBrace, "expect '{' before class body")
	for !p.check(lexer.TokenRightBrace) && !p.check(lexer.TokenEOF) {
		p.classMember()
	}
	p.consume(lexer.TokenRightBrace, "expect '}' after class body")
	p.emitOp(value.OpPop) // discard the class value left for method/field definitions

	if cs.hasSuperclass {
		p.endScope()
	}
	p.class = cs.enclosing
}

func (p *Parser) classMember() {
	isStatic := p.match(lexer.TokenStatic)
	p.consume(lexer.TokenIdentifier, "expect member name")
	name := p.previous.Lexeme
	nameConst := p.identifierConstant(name)

	key := "method:" + name
	if isStatic {
		key = "static:" + name
	}
	if p.class.memberNames[key] {
		p.error("member '" + name + "' already declared in this class")
	}
	p.class.memberNames[key] = true

	if isStatic && !p.check(lexer.TokenLeftParen) {
		if p.match(lexer.TokenEqual) {
			p.expression()
		} else {
			p.emitOp(value.OpNil)
		}
		p.consume(lexer.TokenSemicolon, "expect ';' after static field initializer")
		p.emitOpByte(value.OpStaticField, nameConst)
		return
	}

	t := TypeMethod
	switch {
	case isStatic:
		t = TypeStaticMethod
	case name == "init":
		t = TypeInitializer
	}
	p.function(t)
	if isStatic {
		p.emitOpByte(value.OpStaticMethod, nameConst)
	} else {
		p.emitOpByte(value.OpMethod, nameConst)
	}
}

func (p *Parser) statement() {
	switch {
	case p.match(lexer.TokenPrint):
		p.printStatement()
	case p.match(lexer.TokenIf):
		p.ifStatement()
	case p.match(lexer.TokenWhile):
		p.whileStatement()
	case p.match(lexer.TokenFor):
		p.forStatement()
	case p.match(lexer.TokenSwitch):
		p.switchStatement()
	case p.match(lexer.TokenTry):
		p.tryStatement()
	case p.match(lexer.TokenThrow):
		p.throwStatement()
	case p.match(lexer.TokenReturn):
		p.returnStatement()
	case p.match(lexer.TokenBreak):
		p.breakStatement()
	case p.match(lexer.TokenContinue):
		p.continueStatement()
	case p.match(lexer.TokenLeftBrace):
		p.beginScope()
		p.blockBody()
		p.endScope()
	default:
		p.expressionStatement()
	}
}

// blockBody compiles declarations until the matching '}', which it
// consumes. The opening '{' must already have been consumed by the
// caller (scope management is also left to the caller, since function
// bodies and bare blocks manage scope slightly differently).
func (p *Parser) blockBody() {
	for !p.check(lexer.TokenRightBrace) && !p.check(lexer.TokenEOF) {
		p.declaration()
	}
	p.consume(lexer.TokenRightBrace, "expect '}' after block")
}

func (p *Parser) printStatement() {
	p.expression()
	p.consume(lexer.TokenSemicolon, "expect ';' after value")
	p.emitOp(value.OpPrint)
}

func (p *Parser) expressionStatement() {
	p.expression()
	p.consume(lexer.TokenSemicolon, "expect ';' after expression")
	p.emitOp(value.OpPop)
}

func (p *Parser) ifStatement() {
	p.consume(lexer.TokenLeftParen, "expect '(' after 'if'")
	p.expression()
	p.consume(lexer.TokenRightParen, "expect ')' after condition")

	thenJump := p.emitJump(value.OpJumpIfFalse)
	p.emitOp(value.OpPop)
	p.statement()

	elseJump := p.emitJump(value.OpJump)
	p.patchJump(thenJump)
	p.emitOp(value.OpPop)

	if p.match(lexer.TokenElse) {
		p.statement()
	}
	p.patchJump(elseJump)
}

func (p *Parser) pushLoop(continueTarget int, isForLoop bool) *loopCtx {
	lc := &loopCtx{continueTarget: continueTarget, scopeDepth: p.fn.scopeDepth, isForLoop: isForLoop}
	p.fn.loops = append(p.fn.loops, lc)
	return lc
}

func (p *Parser) popLoop() *loopCtx {
	lc := p.fn.loops[len(p.fn.loops)-1]
	p.fn.loops = p.fn.loops[:len(p.fn.loops)-1]
	return lc
}

func (p *Parser) whileStatement() {
	loopStart := len(p.currentChunk().Code)
	p.pushLoop(loopStart, false)

	p.consume(lexer.TokenLeftParen, "expect '(' after 'while'")
	p.expression()
	p.consume(lexer.TokenRightParen, "expect ')' after condition")

	exitJump := p.emitJump(value.OpJumpIfFalse)
	p.emitOp(value.OpPop)
	p.statement()
	p.emitLoop(loopStart)

	p.patchJump(exitJump)
	p.emitOp(value.OpPop)

	lc := p.popLoop()
	for _, j := range lc.breakJumps {
		p.patchJump(j)
	}
}

func (p *Parser) forStatement() {
	p.beginScope()
	p.consume(lexer.TokenLeftParen, "expect '(' after 'for'")

	loopVarSlot := -1
	loopVarName := ""
	switch {
	case p.match(lexer.TokenSemicolon):
		// no initializer
	case p.match(lexer.TokenVar):
		p.varDeclaration()
		loopVarSlot = len(p.fn.locals) - 1
		loopVarName = p.fn.locals[loopVarSlot].name
	default:
		p.expressionStatement()
	}

	loopStart := len(p.currentChunk().Code)
	exitJump := -1
	if !p.match(lexer.TokenSemicolon) {
		p.expression()
		p.consume(lexer.TokenSemicolon, "expect ';' after loop condition")
		exitJump = p.emitJump(value.OpJumpIfFalse)
		p.emitOp(value.OpPop)
	}

	if !p.check(lexer.TokenRightParen) {
		bodyJump := p.emitJump(value.OpJump)
		incrementStart := len(p.currentChunk().Code)
		p.expression()
		p.emitOp(value.OpPop)
		p.consume(lexer.TokenRightParen, "expect ')' after for clauses")

		p.emitLoop(loopStart)
		loopStart = incrementStart
		p.patchJump(bodyJump)
	} else {
		p.consume(lexer.TokenRightParen, "expect ')' after for clauses")
	}

	// continue jumps to the increment clause (or the condition, if
	// there is no increment), matching the reference compiler.
	p.pushLoop(loopStart, true)
	if loopVarSlot != -1 {
		// Give the body its own copy of the loop variable each
		// iteration, so a closure created inside captures that
		// iteration's value rather than the one shared slot the
		// condition/increment clauses mutate.
		p.beginScope()
		p.emitOpByte(value.OpGetLocal, byte(loopVarSlot))
		p.addLocal(loopVarName)
		p.markInitialized()
		shadowSlot := len(p.fn.locals) - 1
		p.statement()
		p.emitOpByte(value.OpGetLocal, byte(shadowSlot))
		p.emitOpByte(value.OpSetLocal, byte(loopVarSlot))
		p.emitOp(value.OpPop)
		p.endScope()
	} else {
		p.statement()
	}
	p.emitLoop(loopStart)

	if exitJump != -1 {
		p.patchJump(exitJump)
		p.emitOp(value.OpPop)
	}

	lc := p.popLoop()
	for _, j := range lc.breakJumps {
		p.patchJump(j)
	}
	p.endScope()
}

func (p *Parser) breakStatement() {
	if len(p.fn.loops) == 0 {
		p.error("'break' used outside of a loop")
		return
	}
	p.consume(lexer.TokenSemicolon, "expect ';' after 'break'")
	lc := p.fn.loops[len(p.fn.loops)-1]
	p.popLocalsToDepth(lc.scopeDepth)
	j := p.emitJump(value.OpJump)
	lc.breakJumps = append(lc.breakJumps, j)
}

func (p *Parser) continueStatement() {
	if len(p.fn.loops) == 0 {
		p.error("'continue' used outside of a loop")
		return
	}
	p.consume(lexer.TokenSemicolon, "expect ';' after 'continue'")
	lc := p.fn.loops[len(p.fn.loops)-1]
	p.popLocalsToDepth(lc.scopeDepth)
	p.emitLoop(lc.continueTarget)
}

// popLocalsToDepth emits the POP/CLOSE_UPVALUE instructions needed to
// unwind locals declared deeper than depth, without touching the
// compiler's own locals bookkeeping (used by break/continue, which
// jump out of nested scopes without leaving them through endScope).
func (p *Parser) popLocalsToDepth(depth int) {
	fs := p.fn
	for i := len(fs.locals) - 1; i >= 0 && fs.locals[i].depth > depth; i-- {
		if fs.locals[i].isCaptured {
			p.emitOp(value.OpCloseUpvalue)
		} else {
			p.emitOp(value.OpPop)
		}
	}
}

func (p *Parser) switchStatement() {
	p.consume(lexer.TokenLeftParen, "expect '(' after 'switch'")
	p.expression()
	p.consume(lexer.TokenRightParen, "expect ')' after switch subject")
	p.consume(lexer.TokenLeftBrace, "expect '{' before switch body")

	var endJumps []int
	prevCaseJump := -1

	for p.match(lexer.TokenCase) {
		if prevCaseJump != -1 {
			p.patchJump(prevCaseJump)
			p.emitOp(value.OpPop)
		}
		p.emitOp(value.OpDup)
		p.expression()
		p.consume(lexer.TokenColon, "expect ':' after case value")
		p.emitOp(value.OpEqual)
		prevCaseJump = p.emitJump(value.OpJumpIfFalse)
		p.emitOp(value.OpPop)
		for !p.check(lexer.TokenCase) && !p.check(lexer.TokenDefault) && !p.check(lexer.TokenRightBrace) {
			p.statement()
		}
		endJumps = append(endJumps, p.emitJump(value.OpJump))
	}

	if prevCaseJump != -1 {
		p.patchJump(prevCaseJump)
		p.emitOp(value.OpPop)
	}
	if p.match(lexer.TokenDefault) {
		p.consume(lexer.TokenColon, "expect ':' after 'default'")
		for !p.check(lexer.TokenRightBrace) {
			p.statement()
		}
	}
	for _, j := range endJumps {
		p.patchJump(j)
	}
	p.emitOp(value.OpPop) // discard subject
	p.consume(lexer.TokenRightBrace, "expect '}' after switch body")
}

func (p *Parser) returnStatement() {
	if p.fn.fnType == TypeScript {
		p.error("cannot return from top-level code")
	}
	if p.match(lexer.TokenSemicolon) {
		p.emitReturn()
		return
	}
	if p.fn.fnType == TypeInitializer {
		p.error("cannot return a value from an initializer")
	}
	p.expression()
	p.consume(lexer.TokenSemicolon, "expect ';' after return value")
	p.emitOp(value.OpReturn)
}

func (p *Parser) throwStatement() {
	p.expression()
	p.consume(lexer.TokenSemicolon, "expect ';' after thrown expression")
	p.emitOp(value.OpThrow)
}

// tryStatement compiles try/catch/finally. Bytecode layout:
//
//	PUSH_EXCEPTION_HANDLER   (catch -> catchStart, finally -> finallyStart)
//	  <try body>
//	POP_EXCEPTION_HANDLER
//	JUMP join
//
// catchStart:
//
//	<the VM has pushed the caught value into the catch variable's slot>
//	<catch body>
//	JUMP join
//
// join:
//
//	FALSE                    ; "no repropagation needed" sentinel (only if there is a finally)
//
// finallyStart:
//
//	<finally body>
//	PROPAGATE_FINALLY        ; pops the sentinel; rethrows if true
//
// end:
//
// A thrown exception the VM cannot match against this handler's catch
// clause jumps straight to finallyStart with TRUE already pushed as
// the sentinel, runs the finally body, then re-propagates.
func (p *Parser) tryStatement() {
	handlerPos := p.emitPushExceptionHandler()

	p.consume(lexer.TokenLeftBrace, "expect '{' after 'try'")
	p.beginScope()
	p.blockBody()
	p.endScope()

	p.emitOp(value.OpPopExceptionHandler)
	var toFinally []int

	noExceptJump := p.emitJump(value.OpJump) // skip catch body on normal completion
	toFinally = append(toFinally, noExceptJump)

	if p.match(lexer.TokenCatch) {
		catchStart := len(p.currentChunk().Code)
		p.consume(lexer.TokenLeftParen, "expect '(' after 'catch'")
		p.consume(lexer.TokenIdentifier, "expect exception binding in catch clause")
		first := p.previous.Lexeme
		typeName := ""
		varName := first
		if p.match(lexer.TokenAs) {
			typeName = first
			p.consume(lexer.TokenIdentifier, "expect variable name after 'as'")
			varName = p.previous.Lexeme
		}
		p.consume(lexer.TokenRightParen, "expect ')' after catch clause")

		// An empty type name marks a catch-all clause.
		typeConst := p.identifierConstant(typeName)
		p.patchHandlerCatch(handlerPos, typeConst, catchStart)

		p.beginScope()
		p.addLocal(varName)
		p.markInitialized() // the thrown value is already on the stack here

		p.consume(lexer.TokenLeftBrace, "expect '{' after catch clause")
		p.blockBody()
		p.endScope()

		toFinally = append(toFinally, p.emitJump(value.OpJump))
	}

	hasFinally := p.check(lexer.TokenFinally)

	// Every normal-completion path (no exception, or a caught one)
	// lands here and pushes FALSE before falling into the finally
	// body below. A VM-driven unmatched/rethrown exception instead
	// jumps straight to finallyStart (computed after the FALSE push),
	// with TRUE already on the stack, bypassing this push entirely.
	for _, j := range toFinally {
		p.patchJump(j)
	}
	if hasFinally {
		p.emitOp(value.OpFalse)
	}

	if p.match(lexer.TokenFinally) {
		finallyStart := len(p.currentChunk().Code)
		p.patchHandlerFinally(handlerPos, finallyStart)

		p.consume(lexer.TokenLeftBrace, "expect '{' after 'finally'")
		p.beginScope()
		p.blockBody()
		p.endScope()
		p.emitOp(value.OpPropagateFinally)
	}
}
