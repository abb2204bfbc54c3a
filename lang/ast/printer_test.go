package ast_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mira-lang/tvm/lang/ast"
	"github.com/mira-lang/tvm/lang/parser"
)

func TestPrinter_RendersEveryTopLevelStatement(t *testing.T) {
	prog, err := parser.Parse([]byte(`
		let x = 1;
		export fn add(a, b) { return a + b; }
		print x;
	`))
	require.NoError(t, err)

	var b strings.Builder
	p := ast.Printer{Output: &b}
	require.NoError(t, p.Print(prog))

	out := b.String()
	assert.Contains(t, out, "(let x exported=false")
	assert.Contains(t, out, "(fn add (a b) exported=true")
	assert.Contains(t, out, "(print")
}

func TestPrinter_IndentsNestedBlocks(t *testing.T) {
	prog, err := parser.Parse([]byte(`if (1) { print 1; } else { print 2; }`))
	require.NoError(t, err)

	var b strings.Builder
	p := ast.Printer{Output: &b}
	require.NoError(t, p.Print(prog))

	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	require.Greater(t, len(lines), 2)
	assert.True(t, strings.HasPrefix(lines[1], "  "), "nested statement should be indented under If")
}
