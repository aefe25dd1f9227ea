package compiler

import "github.com/kristofer/cloxvm/internal/lexer"

// Prec is an operator-precedence level, lowest to highest, matching
// the operator precedence ladder.
type Prec int

const (
	PrecNone       Prec = iota
	PrecAssignment      // = += -= *= /= %=
	PrecTernary         // ?:
	PrecOr              // or
	PrecAnd             // and
	PrecEquality        // == !=
	PrecComparison      // < > <= >=
	PrecTerm            // + -
	PrecFactor          // * / %
	PrecExponent        // ** (right-associative)
	PrecUnary           // ! -
	PrecCall            // . () []
	PrecPrimary
)

type parseFn func(p *Parser, canAssign bool)

type rule struct {
	prefix parseFn
	infix  parseFn
	prec   Prec
}

var rules map[lexer.TokenType]rule

func init() {
	rules = map[lexer.TokenType]rule{
		lexer.TokenLeftParen:    {grouping, call, PrecCall},
		lexer.TokenLeftBracket:  {arrayLiteral, indexGet, PrecCall},
		lexer.TokenDot:          {nil, dot, PrecCall},
		lexer.TokenMinus:        {unary, binary, PrecTerm},
		lexer.TokenPlus:         {nil, binary, PrecTerm},
		lexer.TokenSlash:        {nil, binary, PrecFactor},
		lexer.TokenStar:         {nil, binary, PrecFactor},
		lexer.TokenPercent:      {nil, binary, PrecFactor},
		lexer.TokenStarStar:     {nil, binary, PrecExponent},
		lexer.TokenBang:         {unary, nil, PrecNone},
		lexer.TokenBangEqual:    {nil, binary, PrecEquality},
		lexer.TokenEqualEqual:   {nil, binary, PrecEquality},
		lexer.TokenGreater:      {nil, binary, PrecComparison},
		lexer.TokenGreaterEqual: {nil, binary, PrecComparison},
		lexer.TokenLess:         {nil, binary, PrecComparison},
		lexer.TokenLessEqual:    {nil, binary, PrecComparison},
		lexer.TokenQuestion:     {nil, ternary, PrecTernary},
		lexer.TokenIdentifier:   {variable, nil, PrecNone},
		lexer.TokenString:       {stringLiteral, nil, PrecNone},
		lexer.TokenNumber:       {number, nil, PrecNone},
		lexer.TokenAnd:          {nil, and_, PrecAnd},
		lexer.TokenOr:           {nil, or_, PrecOr},
		lexer.TokenFalse:        {literal, nil, PrecNone},
		lexer.TokenTrue:         {literal, nil, PrecNone},
		lexer.TokenNil:          {literal, nil, PrecNone},
		lexer.TokenThis:         {this_, nil, PrecNone},
		lexer.TokenSuper:        {super_, nil, PrecNone},
	}
}

func getRule(t lexer.TokenType) rule {
	if r, ok := rules[t]; ok {
		return r
	}
	return rule{nil, nil, PrecNone}
}

func (p *Parser) parsePrecedence(prec Prec) {
	p.advance()
	prefixRule := getRule(p.previous.Type).prefix
	if prefixRule == nil {
		p.error("expect expression")
		return
	}
	canAssign := prec <= PrecAssignment
	prefixRule(p, canAssign)

	for prec <= getRule(p.current.Type).prec {
		p.advance()
		infixRule := getRule(p.previous.Type).infix
		infixRule(p, canAssign)
	}

	if canAssign && p.match(lexer.TokenEqual) {
		p.error("invalid assignment target")
	}
}

func (p *Parser) expression() { p.parsePrecedence(PrecAssignment) }
