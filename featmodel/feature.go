package featmodel

import "fmt"

type FeatureType int

const (
	StringFeatureType FeatureType = iota
	SymbolicFeatureType
	ComplexFeatureType
)

func (t FeatureType) String() string {
	switch t {
	case StringFeatureType:
		return "string"
	case SymbolicFeatureType:
		return "symbolic"
	case ComplexFeatureType:
		return "complex"
	default:
		return fmt.Sprintf("FeatureType(%d)", int(t))
	}
}

type Feature struct {
	ID          string
	Description string
	Type        FeatureType

	symbols      []*FeatureSymbol
	defaultValue SimpleValue
	system       *FeatureSystem
}

// FeatureSymbol is one possible value of a symbolic feature.
type FeatureSymbol struct {
	ID          string
	Description string
	Feature     *Feature

	index uint
}

func (f *Feature) Symbols() []*FeatureSymbol {
	symbols := make([]*FeatureSymbol, len(f.symbols))
	copy(symbols, f.symbols)
	return symbols
}

func (f *Feature) Symbol(id string) (*FeatureSymbol, bool) {
	for _, s := range f.symbols {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

func (f *Feature) DefaultValue() (SimpleValue, bool) {
	return f.defaultValue, f.defaultValue != nil
}

func (f *Feature) String() string {
	return f.Description
}

func (s *FeatureSymbol) String() string {
	return s.Description
}

func (f *Feature) fullMask() uint64 {
	if len(f.symbols) == maxSymbols {
		return ^uint64(0)
	}
	return (uint64(1) << uint(len(f.symbols))) - 1
}
