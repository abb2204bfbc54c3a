package lexer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mira-lang/tvm/lang/lexer"
	"github.com/mira-lang/tvm/lang/token"
)

func TestScanAll_Basic(t *testing.T) {
	toks, err := lexer.ScanAll([]byte(`let x = 12 + y;`))
	require.NoError(t, err)

	var kinds []token.Token
	for _, tv := range toks {
		kinds = append(kinds, tv.Token)
	}
	assert.Equal(t, []token.Token{
		token.LET, token.IDENT, token.ASSIGN, token.NUMBER,
		token.PLUS, token.IDENT, token.SEMI, token.EOF,
	}, kinds)
}

func TestScanAll_EndsInExactlyOneEOF(t *testing.T) {
	toks, err := lexer.ScanAll([]byte(`print 1;`))
	require.NoError(t, err)
	require.NotEmpty(t, toks)
	assert.Equal(t, token.EOF, toks[len(toks)-1].Token)
	for _, tv := range toks[:len(toks)-1] {
		assert.NotEqual(t, token.EOF, tv.Token)
	}
}

func TestScanAll_PositionsNonDecreasing(t *testing.T) {
	toks, err := lexer.ScanAll([]byte("let x = 1;\nlet y = 2;"))
	require.NoError(t, err)
	for i := 1; i < len(toks); i++ {
		assert.False(t, toks[i].Pos.Before(toks[i-1].Pos), "position went backwards at token %d", i)
	}
}

func TestScanAll_Deterministic(t *testing.T) {
	src := []byte(`fn add(a, b) { return a + b; }`)
	a, err := lexer.ScanAll(src)
	require.NoError(t, err)
	b, err := lexer.ScanAll(src)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestScanAll_StringEscapes(t *testing.T) {
	toks, err := lexer.ScanAll([]byte(`"a\nb\t\"c\\"`))
	require.NoError(t, err)
	require.Len(t, toks, 2)
	assert.Equal(t, "a\nb\t\"c\\", toks[0].Lit)
}

func TestScanAll_UnterminatedString(t *testing.T) {
	_, err := lexer.ScanAll([]byte(`"abc`))
	assert.Error(t, err)
}

func TestScanAll_KeywordsCaseInsensitive(t *testing.T) {
	toks, err := lexer.ScanAll([]byte(`LET Let let`))
	require.NoError(t, err)
	require.Len(t, toks, 4)
	for _, tv := range toks[:3] {
		assert.Equal(t, token.LET, tv.Token)
	}
}

func TestScanAll_Operators(t *testing.T) {
	toks, err := lexer.ScanAll([]byte(`== != <= >= < > = + - * /`))
	require.NoError(t, err)
	want := []token.Token{
		token.EQ, token.NEQ, token.LE, token.GE, token.LT, token.GT,
		token.ASSIGN, token.PLUS, token.MINUS, token.STAR, token.SLASH, token.EOF,
	}
	var got []token.Token
	for _, tv := range toks {
		got = append(got, tv.Token)
	}
	assert.Equal(t, want, got)
}

func TestScanAll_IllegalCharacter(t *testing.T) {
	_, err := lexer.ScanAll([]byte(`let x = @;`))
	assert.Error(t, err)
}

func TestScanAll_LineComment(t *testing.T) {
	toks, err := lexer.ScanAll([]byte("let x = 1; // trailing comment\nlet y = 2;"))
	require.NoError(t, err)
	var numbers []int64
	for _, tv := range toks {
		if tv.Token == token.NUMBER {
			numbers = append(numbers, tv.IntVal)
		}
	}
	assert.Equal(t, []int64{1, 2}, numbers)
}
