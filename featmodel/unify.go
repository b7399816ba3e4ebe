package featmodel

// Unify returns the most general structure that is consistent with both fs and other.
// It reports false on contradiction. With useDefaults, a feature of other that fs lacks is
// compared against the feature default; features only fs carries are kept as they are. New variable bindings are written to bindings only
// when unification succeeds; bindings may be nil.
func (fs *FeatureStruct) Unify(other *FeatureStruct, useDefaults bool, bindings VariableBindings) (*FeatureStruct, bool) {
	work := NewVariableBindings()
	if bindings != nil {
		work = bindings.Clone()
	}
	result := fs.Clone()
	u := unifier{
		useDefaults: useDefaults,
		bindings:    work,
		visited:     make(map[[2]*FeatureStruct]bool),
		copies:      make(map[*FeatureStruct]*FeatureStruct),
	}
	if !u.unify(result, other) {
		return nil, false
	}

	disjunctions := append(result.disjunctions, other.disjunctions...)
	if len(disjunctions) > 0 {
		result.disjunctions = nil
		var ok bool
		result, ok = resolveDisjunctions(result, disjunctions, useDefaults, work)
		if !ok {
			return nil, false
		}
	}

	if bindings != nil {
		bindings.copyFrom(work)
	}
	return result, true
}

// IsUnifiable reports whether Unify would succeed.
func (fs *FeatureStruct) IsUnifiable(other *FeatureStruct, useDefaults bool, bindings VariableBindings) bool {
	_, ok := fs.Unify(other, useDefaults, bindings)
	return ok
}

// Unify is the package-level form of FeatureStruct.Unify without defaults or bindings.
func Unify(a, b *FeatureStruct) (*FeatureStruct, bool) {
	return a.Unify(b, false, nil)
}

// resolveDisjunctions picks, depth first and in declaration order, the first combination of
// alternatives that unifies with base.
func resolveDisjunctions(base *FeatureStruct, ds []Disjunction, useDefaults bool, bindings VariableBindings) (*FeatureStruct, bool) {
	if len(ds) == 0 {
		return base, true
	}
	for _, alt := range ds[0] {
		b := bindings.Clone()
		next, ok := base.Unify(alt, useDefaults, b)
		if !ok {
			continue
		}
		if res, ok := resolveDisjunctions(next, ds[1:], useDefaults, b); ok {
			bindings.copyFrom(b)
			return res, true
		}
	}
	return nil, false
}

type unifier struct {
	useDefaults bool
	bindings    VariableBindings
	visited     map[[2]*FeatureStruct]bool
	copies      map[*FeatureStruct]*FeatureStruct
}

// unify merges src into dst, which is owned by the result.
func (u *unifier) unify(dst, src *FeatureStruct) bool {
	key := [2]*FeatureStruct{dst, src}
	if u.visited[key] {
		return true
	}
	u.visited[key] = true

	for _, f := range src.features {
		sv := src.values[f]
		dv, ok := dst.values[f]
		if !ok {
			if def, hasDefault := f.DefaultValue(); u.useDefaults && hasDefault {
				merged, ok := u.unifyValues(def, sv)
				if !ok {
					return false
				}
				dst.AddValue(f, u.copyValue(merged))
				continue
			}
			dst.AddValue(f, u.copyValue(sv))
			continue
		}
		merged, ok := u.unifyValues(dv, sv)
		if !ok {
			return false
		}
		dst.values[f] = merged
	}
	return true
}

func (u *unifier) unifyValues(a, b FeatureValue) (FeatureValue, bool) {
	af, aIsFS := a.(*FeatureStruct)
	bf, bIsFS := b.(*FeatureStruct)
	switch {
	case aIsFS && bIsFS:
		return af, u.unify(af, bf)
	case aIsFS || bIsFS:
		return nil, false
	}

	a = u.resolve(a)
	b = u.resolve(b)
	av, aIsVar := a.(*Variable)
	bv, bIsVar := b.(*Variable)
	switch {
	case aIsVar && bIsVar:
		if av.Name == bv.Name {
			return a, av.Agree == bv.Agree
		}
		return a, true
	case aIsVar:
		u.bindings.bind(av, b.(SimpleValue))
		return u.copyValue(b), true
	case bIsVar:
		u.bindings.bind(bv, a.(SimpleValue))
		return a, true
	}

	as, bs := a.(SimpleValue), b.(SimpleValue)
	if !simpleValuesMatch(as, bs) {
		return nil, false
	}
	inter := as.Intersect(bs)
	if inter.IsEmpty() {
		return nil, false
	}
	return inter, true
}

func (u *unifier) resolve(v FeatureValue) FeatureValue {
	if variable, ok := v.(*Variable); ok {
		if value, bound := u.bindings.Resolve(variable); bound {
			return value
		}
	}
	return v
}

// copyValue clones structures coming from the source operand so the result never aliases it.
func (u *unifier) copyValue(v FeatureValue) FeatureValue {
	nested, ok := v.(*FeatureStruct)
	if !ok {
		return v
	}
	if c, ok := u.copies[nested]; ok {
		return c
	}
	return nested.cloneWith(u.copies)
}
