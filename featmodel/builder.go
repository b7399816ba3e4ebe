package featmodel

import (
	"errors"
	"fmt"
)

var ErrNoFeatureSelected = errors.New("no feature selected")

// Builder assembles a FeatureStruct with chained calls. The first error is kept and every
// later call becomes a no-op, so callers check once at Build.
//
//	fs, err := featmodel.New(sys).Symbol("cons+", "voice-").Feature("strRep").EqualTo(".").Build()
type Builder struct {
	system  *FeatureSystem
	fs      *FeatureStruct
	current *Feature
	err     error
}

func New(system *FeatureSystem) *Builder {
	return &Builder{system: system, fs: NewFeatureStruct()}
}

// Symbol adds symbolic values. Symbols of the same feature given in one call form one value.
func (b *Builder) Symbol(ids ...string) *Builder {
	if b.err != nil {
		return b
	}
	var order []*Feature
	grouped := make(map[*Feature][]*FeatureSymbol)
	for _, id := range ids {
		sym, ok := b.system.Symbol(id)
		if !ok {
			b.err = fmt.Errorf("%w: %q", ErrUnknownSymbol, id)
			return b
		}
		if _, seen := grouped[sym.Feature]; !seen {
			order = append(order, sym.Feature)
		}
		grouped[sym.Feature] = append(grouped[sym.Feature], sym)
	}
	for _, f := range order {
		b.fs.AddValue(f, NewSymbolicValue(f, grouped[f]...))
	}
	b.current = nil
	return b
}

// Feature selects the feature that the next EqualTo-style call assigns.
func (b *Builder) Feature(id string) *Builder {
	if b.err != nil {
		return b
	}
	f, ok := b.system.Feature(id)
	if !ok {
		b.err = fmt.Errorf("%w: %q", ErrUnknownFeature, id)
		return b
	}
	b.current = f
	return b
}

// EqualTo assigns literal strings to a string feature or symbol ids to a symbolic feature.
func (b *Builder) EqualTo(values ...string) *Builder {
	return b.assign(values, false)
}

func (b *Builder) NotEqualTo(values ...string) *Builder {
	return b.assign(values, true)
}

func (b *Builder) EqualToVariable(name string) *Builder {
	return b.assignVariable(name, true)
}

func (b *Builder) NotEqualToVariable(name string) *Builder {
	return b.assignVariable(name, false)
}

// EqualToFeatureStruct assigns a nested structure to a complex feature.
func (b *Builder) EqualToFeatureStruct(fs *FeatureStruct) *Builder {
	f, ok := b.selected()
	if !ok {
		return b
	}
	if f.Type != ComplexFeatureType {
		b.err = fmt.Errorf("%w: %q is not complex", ErrIncompatibleValue, f.ID)
		return b
	}
	b.fs.AddValue(f, fs)
	return b
}

func (b *Builder) Disjunction(alternatives ...*FeatureStruct) *Builder {
	if b.err != nil {
		return b
	}
	b.fs.AddDisjunction(alternatives...)
	return b
}

func (b *Builder) Err() error {
	return b.err
}

func (b *Builder) Build() (*FeatureStruct, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.fs, nil
}

// Value is Build for structures known to be valid, such as fixtures. It panics on error.
func (b *Builder) Value() *FeatureStruct {
	fs, err := b.Build()
	if err != nil {
		panic(err)
	}
	return fs
}

func (b *Builder) assign(values []string, not bool) *Builder {
	f, ok := b.selected()
	if !ok {
		return b
	}
	switch f.Type {
	case StringFeatureType:
		if not {
			b.fs.AddValue(f, NewNotStringValue(values...))
		} else {
			b.fs.AddValue(f, NewStringValue(values...))
		}
	case SymbolicFeatureType:
		value, err := b.system.symbolValue(f, values)
		if err != nil {
			b.err = err
			return b
		}
		if not {
			b.fs.AddValue(f, value.Negation())
		} else {
			b.fs.AddValue(f, value)
		}
	default:
		b.err = fmt.Errorf("%w: %q takes a feature structure", ErrIncompatibleValue, f.ID)
	}
	return b
}

func (b *Builder) assignVariable(name string, agree bool) *Builder {
	f, ok := b.selected()
	if !ok {
		return b
	}
	if f.Type == ComplexFeatureType {
		b.err = fmt.Errorf("%w: variables cannot stand for complex feature %q", ErrIncompatibleValue, f.ID)
		return b
	}
	b.fs.AddValue(f, NewVariable(name, agree))
	return b
}

func (b *Builder) selected() (*Feature, bool) {
	if b.err != nil {
		return nil, false
	}
	if b.current == nil {
		b.err = ErrNoFeatureSelected
		return nil, false
	}
	return b.current, true
}
