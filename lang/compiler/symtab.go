package compiler

import "github.com/dolthub/swiss"

// SymbolTable is a name-to-address dictionary, backed by a swiss table for
// the dense, allocation-light lookups the compiler and linker both need:
// variable maps, function maps, export maps and (in the linker) the merged
// global symbol table.
type SymbolTable struct {
	m *swiss.Map[string, int]
}

// NewSymbolTable returns a table with initial capacity for at least size
// entries.
func NewSymbolTable(size int) *SymbolTable {
	if size < 0 {
		size = 0
	}
	return &SymbolTable{m: swiss.NewMap[string, int](uint32(size))}
}

// Set binds name to addr, overwriting any previous binding.
func (t *SymbolTable) Set(name string, addr int) {
	t.m.Put(name, addr)
}

// Get returns the address bound to name, if any.
func (t *SymbolTable) Get(name string) (int, bool) {
	return t.m.Get(name)
}

// Has reports whether name is bound.
func (t *SymbolTable) Has(name string) bool {
	return t.m.Has(name)
}

// Len returns the number of bound names.
func (t *SymbolTable) Len() int {
	return t.m.Count()
}

// Each calls fn for every (name, addr) binding. Iteration order is
// unspecified.
func (t *SymbolTable) Each(fn func(name string, addr int)) {
	t.m.Iter(func(k string, v int) bool {
		fn(k, v)
		return false
	})
}

// Names returns the bound names in unspecified order.
func (t *SymbolTable) Names() []string {
	names := make([]string, 0, t.Len())
	t.Each(func(name string, _ int) { names = append(names, name) })
	return names
}
