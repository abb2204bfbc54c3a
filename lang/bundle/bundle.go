// Package bundle serializes a compiled, linked program to the portable JSON
// envelope used to hand a build off to a host or to the VM directly,
// without requiring the host to re-run the lexer/parser/codegen pipeline.
//
// No third-party serialization library appears anywhere in the example
// corpus this package was built from; every other format in that corpus is
// a hand-rolled binary encoding over encoding/binary, not JSON. Since the
// interface this bundle exists to serve is an explicit JSON object (consumed
// by non-Go hosts too), encoding/json is used directly rather than inventing
// a binary format the spec doesn't call for.
package bundle

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mira-lang/tvm/lang/compiler"
)

// Format is the only recognized envelope format tag.
const Format = "tvm"

// CurrentVersion is the semver this package writes into new bundles.
const CurrentVersion = "1.0.0"

// Metadata describes the build that produced a bundle.
type Metadata struct {
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	Author          string `json:"author,omitempty"`
	Version         string `json:"version,omitempty"`
	EntryPoint      string `json:"entryPoint,omitempty"`
	CreatedAt       string `json:"createdAt,omitempty"`
	CompilerVersion string `json:"compilerVersion,omitempty"`
}

// Bundle is the decoded form of the envelope.
type Bundle struct {
	Format       string         `json:"format"`
	Version      string         `json:"version"`
	Metadata     Metadata       `json:"metadata"`
	Bytecode     []int          `json:"bytecode"`
	SymbolTable  map[string]int `json:"symbolTable"`
	Exports      map[string]int `json:"exports"`
	Imports      []ImportEntry  `json:"imports,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
}

// ImportEntry mirrors compiler.ImportedName in the wire format.
type ImportEntry struct {
	Name       string `json:"name"`
	ModuleName string `json:"moduleName"`
}

// FromProgram builds a Bundle from a compiled Program, ready for Marshal.
func FromProgram(p *compiler.Program, meta Metadata) *Bundle {
	b := &Bundle{
		Format:      Format,
		Version:     CurrentVersion,
		Metadata:    meta,
		Bytecode:    append([]int(nil), p.Bytecode...),
		SymbolTable: make(map[string]int, p.VariableMap.Len()),
		Exports:     make(map[string]int, p.ExportMap.Len()),
	}
	p.VariableMap.Each(func(name string, addr int) { b.SymbolTable[name] = addr })
	p.FunctionMap.Each(func(name string, addr int) { b.SymbolTable[name] = addr })
	p.ExportMap.Each(func(name string, addr int) { b.Exports[name] = addr })
	for _, imp := range p.Imports {
		b.Imports = append(b.Imports, ImportEntry{Name: imp.Name, ModuleName: imp.ModuleName})
	}
	return b
}

// Marshal encodes b as the JSON bundle envelope.
func Marshal(b *Bundle) ([]byte, error) {
	return json.MarshalIndent(b, "", "  ")
}

// ValidationWarning is returned alongside a successfully-decoded Bundle when
// the envelope is usable but not fully consistent with CurrentVersion.
type ValidationWarning struct {
	Msg string
}

func (w *ValidationWarning) Error() string { return w.Msg }

// Unmarshal decodes and validates the envelope: format must be "tvm",
// bytecode must be non-empty, and a symbol table must be present. A
// major-version mismatch against CurrentVersion is reported as a warning,
// not a hard failure, since older bundles may still execute correctly.
func Unmarshal(data []byte) (*Bundle, *ValidationWarning, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, nil, fmt.Errorf("bundle: invalid JSON: %w", err)
	}
	if b.Format != Format {
		return nil, nil, fmt.Errorf("bundle: unrecognized format %q, want %q", b.Format, Format)
	}
	if len(b.Bytecode) == 0 {
		return nil, nil, fmt.Errorf("bundle: bytecode is empty")
	}
	if b.SymbolTable == nil {
		return nil, nil, fmt.Errorf("bundle: missing symbolTable")
	}

	var warn *ValidationWarning
	if major(b.Version) != major(CurrentVersion) {
		warn = &ValidationWarning{Msg: fmt.Sprintf("bundle: version %q does not match supported major version %q", b.Version, CurrentVersion)}
	}
	return &b, warn, nil
}

func major(version string) string {
	parts := strings.SplitN(version, ".", 2)
	if len(parts) == 0 {
		return ""
	}
	if _, err := strconv.Atoi(parts[0]); err != nil {
		return ""
	}
	return parts[0]
}
