package featmodel

import (
	"errors"
	"fmt"
)

const maxSymbols = 64

var (
	ErrDuplicateID       = errors.New("duplicate feature system id")
	ErrUnknownFeature    = errors.New("unknown feature")
	ErrUnknownSymbol     = errors.New("unknown feature symbol")
	ErrTooManySymbols    = errors.New("too many symbols for feature")
	ErrIncompatibleValue = errors.New("value is incompatible with feature")
)

// FeatureSystem is the registry of features and symbols that feature structures are built from.
// It only grows, and becomes read-only once frozen.
type FeatureSystem struct {
	features    []*Feature
	featureByID map[string]*Feature
	symbolByID  map[string]*FeatureSymbol
	frozen      bool
}

func NewFeatureSystem() *FeatureSystem {
	return &FeatureSystem{
		featureByID: make(map[string]*Feature),
		symbolByID:  make(map[string]*FeatureSymbol),
	}
}

func (s *FeatureSystem) AddStringFeature(id string) (*Feature, error) {
	return s.addFeature(&Feature{ID: id, Description: id, Type: StringFeatureType})
}

func (s *FeatureSystem) AddComplexFeature(id string) (*Feature, error) {
	return s.addFeature(&Feature{ID: id, Description: id, Type: ComplexFeatureType})
}

func (s *FeatureSystem) AddSymbolicFeature(id string, symbolIDs ...string) (*Feature, error) {
	if len(symbolIDs) > maxSymbols {
		return nil, fmt.Errorf("%w: %q has %d symbols", ErrTooManySymbols, id, len(symbolIDs))
	}
	seen := make(map[string]bool, len(symbolIDs))
	for _, symID := range symbolIDs {
		if _, ok := s.symbolByID[symID]; ok || seen[symID] {
			return nil, fmt.Errorf("%w: symbol %q", ErrDuplicateID, symID)
		}
		seen[symID] = true
	}
	feature := &Feature{ID: id, Description: id, Type: SymbolicFeatureType}
	if _, err := s.addFeature(feature); err != nil {
		return nil, err
	}
	for i, symID := range symbolIDs {
		symbol := &FeatureSymbol{ID: symID, Description: symID, Feature: feature, index: uint(i)}
		feature.symbols = append(feature.symbols, symbol)
		s.symbolByID[symID] = symbol
	}
	return feature, nil
}

// SetDefault sets the value assumed for a feature that a structure leaves unspecified.
// Values are symbol ids for symbolic features and literal strings for string features.
func (s *FeatureSystem) SetDefault(featureID string, values ...string) error {
	s.checkNotFrozen()
	feature, ok := s.featureByID[featureID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFeature, featureID)
	}
	switch feature.Type {
	case SymbolicFeatureType:
		value, err := s.symbolValue(feature, values)
		if err != nil {
			return err
		}
		feature.defaultValue = value
	case StringFeatureType:
		feature.defaultValue = NewStringValue(values...)
	default:
		return fmt.Errorf("%w: complex feature %q cannot have a default", ErrIncompatibleValue, featureID)
	}
	return nil
}

func (s *FeatureSystem) Feature(id string) (*Feature, bool) {
	f, ok := s.featureByID[id]
	return f, ok
}

func (s *FeatureSystem) Symbol(id string) (*FeatureSymbol, bool) {
	sym, ok := s.symbolByID[id]
	return sym, ok
}

func (s *FeatureSystem) Features() []*Feature {
	features := make([]*Feature, len(s.features))
	copy(features, s.features)
	return features
}

func (s *FeatureSystem) Freeze() {
	s.frozen = true
}

func (s *FeatureSystem) IsFrozen() bool {
	return s.frozen
}

func (s *FeatureSystem) addFeature(feature *Feature) (*Feature, error) {
	s.checkNotFrozen()
	if _, ok := s.featureByID[feature.ID]; ok {
		return nil, fmt.Errorf("%w: feature %q", ErrDuplicateID, feature.ID)
	}
	if _, ok := s.symbolByID[feature.ID]; ok {
		return nil, fmt.Errorf("%w: feature %q clashes with a symbol", ErrDuplicateID, feature.ID)
	}
	feature.system = s
	s.features = append(s.features, feature)
	s.featureByID[feature.ID] = feature
	return feature, nil
}

func (s *FeatureSystem) symbolValue(feature *Feature, ids []string) (*SymbolicValue, error) {
	symbols := make([]*FeatureSymbol, 0, len(ids))
	for _, id := range ids {
		sym, ok := s.symbolByID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSymbol, id)
		}
		if sym.Feature != feature {
			return nil, fmt.Errorf("%w: symbol %q does not belong to %q", ErrIncompatibleValue, id, feature.ID)
		}
		symbols = append(symbols, sym)
	}
	return NewSymbolicValue(feature, symbols...), nil
}

func (s *FeatureSystem) checkNotFrozen() {
	if s.frozen {
		panic("featmodel: feature system is frozen")
	}
}
