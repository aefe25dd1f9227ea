package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanAll(src string) []Token {
	l := New(src)
	var toks []Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == TokenEOF {
			return toks
		}
	}
}

func TestKeywordsAndIdentifiers(t *testing.T) {
	toks := scanAll("var as catchMe")
	require.Len(t, toks, 4) // var, as, catchMe, EOF
	assert.Equal(t, TokenVar, toks[0].Type)
	assert.Equal(t, TokenAs, toks[1].Type)
	assert.Equal(t, TokenIdentifier, toks[2].Type, "catchMe is an identifier, not the catch keyword")
}

func TestNumbersAndOperators(t *testing.T) {
	toks := scanAll("1 + 2.5 ** 3 <= 4")
	types := make([]TokenType, 0, len(toks))
	for _, tok := range toks {
		types = append(types, tok.Type)
	}
	assert.Equal(t, []TokenType{
		TokenNumber, TokenPlus, TokenNumber, TokenStarStar, TokenNumber,
		TokenLessEqual, TokenNumber, TokenEOF,
	}, types)
}

func TestStringEscapes(t *testing.T) {
	toks := scanAll(`"a\nb\x41"`)
	require.Len(t, toks, 2)
	assert.Equal(t, "a\nbA", toks[0].Lexeme)
}

func TestUnterminatedStringIsError(t *testing.T) {
	toks := scanAll(`"unterminated`)
	require.NotEmpty(t, toks)
	assert.Equal(t, TokenError, toks[0].Type)
}

func TestCommentsAreSkipped(t *testing.T) {
	toks := scanAll("1 // a line comment\n/* a block\ncomment */ 2")
	require.Len(t, toks, 3)
	assert.Equal(t, TokenNumber, toks[0].Type)
	assert.Equal(t, TokenNumber, toks[1].Type)
	assert.Equal(t, 3, toks[1].Line, "block comment spans a line, so the next token starts on line 3")
}
