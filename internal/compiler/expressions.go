package compiler

import (
	"strconv"

	"github.com/kristofer/cloxvm/internal/lexer"
	"github.com/kristofer/cloxvm/internal/value"
)

func number(p *Parser, canAssign bool) {
	n, err := strconv.ParseFloat(p.previous.Lexeme, 64)
	if err != nil {
		p.error("invalid number literal")
		return
	}
	p.emitConstant(value.Number(n))
}

func stringLiteral(p *Parser, canAssign bool) {
	s := p.gc.NewString([]byte(p.previous.Lexeme))
	p.emitConstant(value.Obj(s))
}

func literal(p *Parser, canAssign bool) {
	switch p.previous.Type {
	case lexer.TokenFalse:
		p.emitOp(value.OpFalse)
	case lexer.TokenTrue:
		p.emitOp(value.OpTrue)
	case lexer.TokenNil:
		p.emitOp(value.OpNil)
	}
}

func grouping(p *Parser, canAssign bool) {
	p.expression()
	p.consume(lexer.TokenRightParen, "expect ')' after expression")
}

func unary(p *Parser, canAssign bool) {
	op := p.previous.Type
	p.parsePrecedence(PrecUnary)
	switch op {
	case lexer.TokenMinus:
		p.emitOp(value.OpNegate)
	case lexer.TokenBang:
		p.emitOp(value.OpNot)
	}
}

func binary(p *Parser, canAssign bool) {
	op := p.previous.Type
	r := getRule(op)
	// ** is right-associative: parse the rhs at the same precedence
	// rather than one level higher, so a ** b ** c groups as a**(b**c).
	if op == lexer.TokenStarStar {
		p.parsePrecedence(r.prec)
	} else {
		p.parsePrecedence(r.prec + 1)
	}
	switch op {
	case lexer.TokenPlus:
		p.emitOp(value.OpAdd)
	case lexer.TokenMinus:
		p.emitOp(value.OpSubtract)
	case lexer.TokenStar:
		p.emitOp(value.OpMultiply)
	case lexer.TokenSlash:
		p.emitOp(value.OpDivide)
	case lexer.TokenPercent:
		p.emitOp(value.OpModulo)
	case lexer.TokenStarStar:
		p.emitOp(value.OpPower)
	case lexer.TokenBangEqual:
		p.emitOp(value.OpNotEqual)
	case lexer.TokenEqualEqual:
		p.emitOp(value.OpEqual)
	case lexer.TokenGreater:
		p.emitOp(value.OpGreater)
	case lexer.TokenGreaterEqual:
		p.emitOp(value.OpGreaterEqual)
	case lexer.TokenLess:
		p.emitOp(value.OpLess)
	case lexer.TokenLessEqual:
		p.emitOp(value.OpLessEqual)
	}
}

// ternary compiles `cond ? then : else` after the '?' has already
// been consumed as an infix operator on the already-emitted condition.
func ternary(p *Parser, canAssign bool) {
	thenJump := p.emitJump(value.OpJumpIfFalse)
	p.emitOp(value.OpPop)
	p.parsePrecedence(PrecAssignment)
	elseJump := p.emitJump(value.OpJump)
	p.patchJump(thenJump)
	p.emitOp(value.OpPop)
	p.consume(lexer.TokenColon, "expect ':' in ternary expression")
	p.parsePrecedence(PrecTernary)
	p.patchJump(elseJump)
}

func and_(p *Parser, canAssign bool) {
	endJump := p.emitJump(value.OpJumpIfFalse)
	p.emitOp(value.OpPop)
	p.parsePrecedence(PrecAnd)
	p.patchJump(endJump)
}

func or_(p *Parser, canAssign bool) {
	elseJump := p.emitJump(value.OpJumpIfFalse)
	endJump := p.emitJump(value.OpJump)
	p.patchJump(elseJump)
	p.emitOp(value.OpPop)
	p.parsePrecedence(PrecOr)
	p.patchJump(endJump)
}

func arrayLiteral(p *Parser, canAssign bool) {
	count := 0
	if !p.check(lexer.TokenRightBracket) {
		for {
			p.parsePrecedence(PrecAssignment)
			count++
			if count > 255 {
				p.error("too many elements in array literal")
			}
			if !p.match(lexer.TokenComma) {
				break
			}
			if p.check(lexer.TokenRightBracket) {
				break
			}
		}
	}
	p.consume(lexer.TokenRightBracket, "expect ']' after array literal")
	p.emitOpByte(value.OpArray, byte(count))
}

func indexGet(p *Parser, canAssign bool) {
	p.expression()
	p.consume(lexer.TokenRightBracket, "expect ']' after index")

	if canAssign && p.match(lexer.TokenEqual) {
		p.expression()
		p.emitOp(value.OpSetIndex)
		return
	}
	if canAssign {
		if op, ok := p.matchCompoundOp(); ok {
			// stack: recv idx -> recv idx recv idx
			p.emitOp(value.OpDup2)
			p.emitOp(value.OpGetIndex)
			p.expression()
			p.emitOp(op)
			p.emitOp(value.OpSetIndex)
			return
		}
	}
	p.emitOp(value.OpGetIndex)
}

// matchCompoundOp consumes a compound-assignment operator token if
// the current token is one, returning the arithmetic opcode it
// desugars to.
func (p *Parser) matchCompoundOp() (value.OpCode, bool) {
	switch p.current.Type {
	case lexer.TokenPlusEqual:
		p.advance()
		return value.OpAdd, true
	case lexer.TokenMinusEqual:
		p.advance()
		return value.OpSubtract, true
	case lexer.TokenStarEqual:
		p.advance()
		return value.OpMultiply, true
	case lexer.TokenSlashEqual:
		p.advance()
		return value.OpDivide, true
	case lexer.TokenPercentEqual:
		p.advance()
		return value.OpModulo, true
	}
	return 0, false
}

func call(p *Parser, canAssign bool) {
	argCount := p.argumentList()
	p.emitOpByte(value.OpCall, byte(argCount))
}

func (p *Parser) argumentList() int {
	count := 0
	if !p.check(lexer.TokenRightParen) {
		for {
			p.expression()
			count++
			if count > 255 {
				p.error("cannot pass more than 255 arguments")
			}
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.consume(lexer.TokenRightParen, "expect ')' after arguments")
	return count
}

func dot(p *Parser, canAssign bool) {
	p.consume(lexer.TokenIdentifier, "expect property name after '.'")
	name := p.identifierConstant(p.previous.Lexeme)

	if canAssign && p.match(lexer.TokenEqual) {
		p.expression()
		p.emitOpByte(value.OpSetProperty, name)
		return
	}
	if canAssign {
		if op, ok := p.matchCompoundOp(); ok {
			p.emitOp(value.OpDup)
			p.emitOpByte(value.OpGetProperty, name)
			p.expression()
			p.emitOp(op)
			p.emitOpByte(value.OpSetProperty, name)
			return
		}
	}
	if p.match(lexer.TokenLeftParen) {
		argCount := p.argumentList()
		p.emitOpByte(value.OpInvoke, name)
		p.emitByte(byte(argCount))
		return
	}
	p.emitOpByte(value.OpGetProperty, name)
}

func this_(p *Parser, canAssign bool) {
	if p.class == nil {
		p.error("'this' used outside of a class method")
		return
	}
	variableRef(p, "this", false)
}

func super_(p *Parser, canAssign bool) {
	if p.class == nil {
		p.error("'super' used outside of a class")
		return
	} else if !p.class.hasSuperclass {
		p.error("'super' used in a class with no superclass")
	}
	p.consume(lexer.TokenDot, "expect '.' after 'super'")
	p.consume(lexer.TokenIdentifier, "expect superclass method name")
	name := p.identifierConstant(p.previous.Lexeme)

	variableRef(p, "this", false)
	if p.match(lexer.TokenLeftParen) {
		argCount := p.argumentList()
		variableRef(p, "super", false)
		p.emitOpByte(value.OpSuperInvoke, name)
		p.emitByte(byte(argCount))
		return
	}
	variableRef(p, "super", false)
	p.emitOpByte(value.OpGetSuper, name)
}

func variable(p *Parser, canAssign bool) {
	namedVariable(p, p.previous.Lexeme, canAssign)
}

// variableRef reads a synthetic named variable (used for the implicit
// `this`/`super` bindings) without consulting canAssign.
func variableRef(p *Parser, name string, canAssign bool) {
	namedVariable(p, name, canAssign)
}

func namedVariable(p *Parser, name string, canAssign bool) {
	var getOp, setOp value.OpCode
	var arg int
	if slot, ok := p.fn.resolveLocal(name); ok {
		getOp, setOp, arg = value.OpGetLocal, value.OpSetLocal, slot
	} else if idx, ok := p.resolveUpvalue(p.fn, name); ok {
		getOp, setOp, arg = value.OpGetUpvalue, value.OpSetUpvalue, idx
	} else {
		arg = int(p.identifierConstant(name))
		getOp, setOp = value.OpGetGlobal, value.OpSetGlobal
	}

	if canAssign && p.match(lexer.TokenEqual) {
		p.expression()
		p.emitOpByte(setOp, byte(arg))
		return
	}
	if canAssign {
		if op, ok := p.matchCompoundOp(); ok {
			p.emitOpByte(getOp, byte(arg))
			p.expression()
			p.emitOp(op)
			p.emitOpByte(setOp, byte(arg))
			return
		}
	}
	p.emitOpByte(getOp, byte(arg))
}
