package bundle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mira-lang/tvm/lang/bundle"
	"github.com/mira-lang/tvm/lang/compiler"
	"github.com/mira-lang/tvm/lang/parser"
)

func compile(t *testing.T, src string) *compiler.Program {
	t.Helper()
	prog, err := parser.Parse([]byte(src))
	require.NoError(t, err)
	out, err := compiler.Compile(prog)
	require.NoError(t, err)
	return out
}

func TestFromProgram_PopulatesSymbolAndExportTables(t *testing.T) {
	p := compile(t, `export fn add(a, b) { return a + b; } export let x = 1;`)
	b := bundle.FromProgram(p, bundle.Metadata{Name: "m"})

	assert.Equal(t, bundle.Format, b.Format)
	assert.Equal(t, bundle.CurrentVersion, b.Version)
	assert.Contains(t, b.SymbolTable, "add")
	assert.Contains(t, b.SymbolTable, "x")
	assert.Contains(t, b.Exports, "add")
	assert.Contains(t, b.Exports, "x")
}

func TestFromProgram_CarriesImports(t *testing.T) {
	p := compile(t, `import add from mathlib; print add(1, 2);`)
	b := bundle.FromProgram(p, bundle.Metadata{Name: "m"})
	require.Len(t, b.Imports, 1)
	assert.Equal(t, "add", b.Imports[0].Name)
	assert.Equal(t, "mathlib", b.Imports[0].ModuleName)
}

func TestMarshalUnmarshal_RoundTrip(t *testing.T) {
	p := compile(t, `export fn add(a, b) { return a + b; }`)
	want := bundle.FromProgram(p, bundle.Metadata{Name: "mathlib"})

	data, err := bundle.Marshal(want)
	require.NoError(t, err)

	got, warn, err := bundle.Unmarshal(data)
	require.NoError(t, err)
	assert.Nil(t, warn)
	assert.Equal(t, want.Bytecode, got.Bytecode)
	assert.Equal(t, want.Exports, got.Exports)
	assert.Equal(t, want.Metadata.Name, got.Metadata.Name)
}

func TestUnmarshal_RejectsWrongFormat(t *testing.T) {
	_, _, err := bundle.Unmarshal([]byte(`{"format":"other","version":"1.0.0","bytecode":[1],"symbolTable":{}}`))
	assert.Error(t, err)
}

func TestUnmarshal_RejectsEmptyBytecode(t *testing.T) {
	_, _, err := bundle.Unmarshal([]byte(`{"format":"tvm","version":"1.0.0","bytecode":[],"symbolTable":{}}`))
	assert.Error(t, err)
}

func TestUnmarshal_RejectsMissingSymbolTable(t *testing.T) {
	_, _, err := bundle.Unmarshal([]byte(`{"format":"tvm","version":"1.0.0","bytecode":[1]}`))
	assert.Error(t, err)
}

func TestUnmarshal_RejectsInvalidJSON(t *testing.T) {
	_, _, err := bundle.Unmarshal([]byte(`not json`))
	assert.Error(t, err)
}

func TestUnmarshal_WarnsOnMajorVersionMismatch(t *testing.T) {
	data := []byte(`{"format":"tvm","version":"2.0.0","bytecode":[1],"symbolTable":{"x":0}}`)
	got, warn, err := bundle.Unmarshal(data)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, warn)
	assert.Contains(t, warn.Error(), "2.0.0")
}

func TestUnmarshal_NoWarningOnMatchingMajorVersion(t *testing.T) {
	data := []byte(`{"format":"tvm","version":"1.2.3","bytecode":[1],"symbolTable":{"x":0}}`)
	_, warn, err := bundle.Unmarshal(data)
	require.NoError(t, err)
	assert.Nil(t, warn)
}
