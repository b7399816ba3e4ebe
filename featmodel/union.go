package featmodel

// PriorityUnion overwrites fs with the values of other. Nested structures present on both
// sides are merged recursively; everywhere else the value from other wins.
func (fs *FeatureStruct) PriorityUnion(other *FeatureStruct) {
	copies := make(map[*FeatureStruct]*FeatureStruct)
	fs.priorityUnion(other, make(map[[2]*FeatureStruct]bool), copies)
}

func (fs *FeatureStruct) priorityUnion(other *FeatureStruct, visited map[[2]*FeatureStruct]bool, copies map[*FeatureStruct]*FeatureStruct) {
	key := [2]*FeatureStruct{fs, other}
	if visited[key] {
		return
	}
	visited[key] = true
	fs.checkNotFrozen()

	for _, f := range other.features {
		ov := other.values[f]
		if on, ok := ov.(*FeatureStruct); ok {
			if n, ok := fs.values[f].(*FeatureStruct); ok {
				n.priorityUnion(on, visited, copies)
				continue
			}
		}
		fs.AddValue(f, cloneValue(ov, copies))
	}
}

// PriorityUnion returns a new structure holding every value of secondary overridden by the
// values of primary.
func PriorityUnion(primary, secondary *FeatureStruct) *FeatureStruct {
	result := secondary.Clone()
	result.PriorityUnion(primary)
	return result
}

// ReplaceVariables substitutes every bound variable in fs with its value.
func (fs *FeatureStruct) ReplaceVariables(bindings VariableBindings) {
	if len(bindings) == 0 {
		return
	}
	fs.walk(func(n *FeatureStruct) {
		for _, f := range n.features {
			variable, ok := n.values[f].(*Variable)
			if !ok {
				continue
			}
			if value, bound := bindings.Resolve(variable); bound {
				n.checkNotFrozen()
				n.values[f] = value
			}
		}
	})
}

// ApplyBindings returns a copy of fs with its bound variables replaced.
func ApplyBindings(fs *FeatureStruct, bindings VariableBindings) *FeatureStruct {
	result := fs.Clone()
	result.ReplaceVariables(bindings)
	return result
}

// HasVariables reports whether any variable is reachable from fs.
func (fs *FeatureStruct) HasVariables() bool {
	found := false
	fs.walk(func(n *FeatureStruct) {
		for _, f := range n.features {
			if _, ok := n.values[f].(*Variable); ok {
				found = true
			}
		}
	})
	return found
}
