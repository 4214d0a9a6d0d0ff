package formula

import "math"

// SymbolTable maps identifier names to finite doubles. Lookup is total:
// a missing name reads as 0.0.
type SymbolTable struct {
	values map[string]float64
}

// NewSymbolTable returns a table seeded with the two predefined constants.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		values: map[string]float64{
			"e":  math.Exp(1),
			"pi": math.Atan2(0, -1),
		},
	}
}

// Get returns the current binding for name, or 0.0 if unbound.
func (s *SymbolTable) Get(name string) float64 {
	return s.values[name]
}

// Set upserts name's binding.
func (s *SymbolTable) Set(name string, v float64) {
	s.values[name] = v
}
