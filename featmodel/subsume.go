package featmodel

// Subsumes reports whether fs is at least as general as other: every constraint in fs holds
// in other. With useDefaults, a feature missing from other is taken at its default value.
// Unbound variables in fs are bound to the matching values of other; bindings are updated
// only on success and may be nil.
func (fs *FeatureStruct) Subsumes(other *FeatureStruct, useDefaults bool, bindings VariableBindings) bool {
	work := NewVariableBindings()
	if bindings != nil {
		work = bindings.Clone()
	}
	s := subsumer{
		useDefaults: useDefaults,
		bindings:    work,
		visited:     make(map[[2]*FeatureStruct]bool),
	}
	if !s.subsumes(fs, other) {
		return false
	}
	if bindings != nil {
		bindings.copyFrom(work)
	}
	return true
}

// Subsumes is the package-level form of FeatureStruct.Subsumes without defaults or bindings.
func Subsumes(general, specific *FeatureStruct) bool {
	return general.Subsumes(specific, false, nil)
}

type subsumer struct {
	useDefaults bool
	bindings    VariableBindings
	visited     map[[2]*FeatureStruct]bool
}

func (s *subsumer) subsumes(general, specific *FeatureStruct) bool {
	key := [2]*FeatureStruct{general, specific}
	if s.visited[key] {
		return true
	}
	s.visited[key] = true

	for _, f := range general.features {
		gv := general.values[f]
		sv, ok := specific.values[f]
		if !ok && s.useDefaults {
			if def, hasDefault := f.DefaultValue(); hasDefault {
				sv, ok = def, true
			}
		}
		if !ok {
			if nested, isFS := gv.(*FeatureStruct); isFS && nested.IsEmpty() {
				continue
			}
			return false
		}
		if !s.subsumesValue(gv, sv) {
			return false
		}
	}

	for _, d := range general.disjunctions {
		if !s.subsumesSome(d, specific) {
			return false
		}
	}
	return true
}

func (s *subsumer) subsumesSome(d Disjunction, specific *FeatureStruct) bool {
	for _, alt := range d {
		trial := subsumer{
			useDefaults: s.useDefaults,
			bindings:    s.bindings.Clone(),
			visited:     make(map[[2]*FeatureStruct]bool),
		}
		for k := range s.visited {
			trial.visited[k] = true
		}
		if trial.subsumes(alt, specific) {
			s.bindings.copyFrom(trial.bindings)
			return true
		}
	}
	return false
}

func (s *subsumer) subsumesValue(gv, sv FeatureValue) bool {
	gf, gIsFS := gv.(*FeatureStruct)
	sf, sIsFS := sv.(*FeatureStruct)
	switch {
	case gIsFS && sIsFS:
		return s.subsumes(gf, sf)
	case gIsFS || sIsFS:
		return false
	}

	if variable, ok := sv.(*Variable); ok {
		value, bound := s.bindings.Resolve(variable)
		if !bound {
			gVar, gIsVar := gv.(*Variable)
			return gIsVar && gVar.Name == variable.Name && gVar.Agree == variable.Agree
		}
		sv = value
	}
	specificValue := sv.(SimpleValue)

	if variable, ok := gv.(*Variable); ok {
		value, bound := s.bindings.Resolve(variable)
		if !bound {
			s.bindings.bind(variable, specificValue)
			return true
		}
		gv = value
	}
	generalValue := gv.(SimpleValue)
	return simpleValuesMatch(generalValue, specificValue) && generalValue.Subsumes(specificValue)
}
