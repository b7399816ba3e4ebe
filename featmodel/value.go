package featmodel

import (
	"fmt"
	"math/bits"
	"sort"
	"strconv"
	"strings"
)

// FeatureValue is one of *StringValue, *SymbolicValue, *Variable or *FeatureStruct.
type FeatureValue interface {
	String() string
	isFeatureValue()
}

// SimpleValue is a concrete value of a string or symbolic feature. Simple values are immutable.
type SimpleValue interface {
	FeatureValue
	Negation() SimpleValue
	IsEmpty() bool
	Overlaps(other SimpleValue) bool
	Intersect(other SimpleValue) SimpleValue
	Union(other SimpleValue) SimpleValue
	// Subsumes reports whether every value allowed by other is allowed by this value.
	Subsumes(other SimpleValue) bool
	Equals(other SimpleValue) bool
}

// StringValue is a set of strings, or its complement when Not is set.
type StringValue struct {
	values []string
	Not    bool
}

func NewStringValue(values ...string) *StringValue {
	return &StringValue{values: normalizeStrings(values)}
}

func NewNotStringValue(values ...string) *StringValue {
	return &StringValue{values: normalizeStrings(values), Not: true}
}

func (*StringValue) isFeatureValue() {}

func (v *StringValue) Values() []string {
	values := make([]string, len(v.values))
	copy(values, v.values)
	return values
}

func (v *StringValue) Contains(s string) bool {
	i := sort.SearchStrings(v.values, s)
	found := i < len(v.values) && v.values[i] == s
	return found != v.Not
}

func (v *StringValue) Negation() SimpleValue {
	return &StringValue{values: v.values, Not: !v.Not}
}

func (v *StringValue) IsEmpty() bool {
	return !v.Not && len(v.values) == 0
}

func (v *StringValue) Overlaps(other SimpleValue) bool {
	return !v.Intersect(other).IsEmpty()
}

func (v *StringValue) Intersect(other SimpleValue) SimpleValue {
	o := other.(*StringValue)
	switch {
	case !v.Not && !o.Not:
		return &StringValue{values: intersectStrings(v.values, o.values)}
	case !v.Not && o.Not:
		return &StringValue{values: subtractStrings(v.values, o.values)}
	case v.Not && !o.Not:
		return &StringValue{values: subtractStrings(o.values, v.values)}
	default:
		return &StringValue{values: unionStrings(v.values, o.values), Not: true}
	}
}

func (v *StringValue) Union(other SimpleValue) SimpleValue {
	o := other.(*StringValue)
	switch {
	case !v.Not && !o.Not:
		return &StringValue{values: unionStrings(v.values, o.values)}
	case !v.Not && o.Not:
		return &StringValue{values: subtractStrings(o.values, v.values), Not: true}
	case v.Not && !o.Not:
		return &StringValue{values: subtractStrings(v.values, o.values), Not: true}
	default:
		return &StringValue{values: intersectStrings(v.values, o.values), Not: true}
	}
}

func (v *StringValue) Subsumes(other SimpleValue) bool {
	o := other.(*StringValue)
	switch {
	case !v.Not && !o.Not:
		return len(subtractStrings(o.values, v.values)) == 0
	case !v.Not && o.Not:
		return false
	case v.Not && !o.Not:
		return len(intersectStrings(v.values, o.values)) == 0
	default:
		return len(subtractStrings(v.values, o.values)) == 0
	}
}

func (v *StringValue) Equals(other SimpleValue) bool {
	o, ok := other.(*StringValue)
	if !ok || v.Not != o.Not || len(v.values) != len(o.values) {
		return false
	}
	for i := range v.values {
		if v.values[i] != o.values[i] {
			return false
		}
	}
	return true
}

func (v *StringValue) String() string {
	var sb strings.Builder
	if v.Not {
		sb.WriteByte('!')
	}
	if len(v.values) == 1 {
		sb.WriteString(strconv.Quote(v.values[0]))
		return sb.String()
	}
	sb.WriteByte('{')
	for i, s := range v.values {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.Quote(s))
	}
	sb.WriteByte('}')
	return sb.String()
}

// SymbolicValue is a set of symbols of a single symbolic feature.
type SymbolicValue struct {
	feature *Feature
	bits    uint64
}

// NewSymbolicValue panics if a symbol belongs to a different feature.
func NewSymbolicValue(feature *Feature, symbols ...*FeatureSymbol) *SymbolicValue {
	var set uint64
	for _, sym := range symbols {
		if sym.Feature != feature {
			panic(fmt.Sprintf("featmodel: symbol %q does not belong to feature %q", sym.ID, feature.ID))
		}
		set |= 1 << sym.index
	}
	return &SymbolicValue{feature: feature, bits: set}
}

func (*SymbolicValue) isFeatureValue() {}

func (v *SymbolicValue) Feature() *Feature {
	return v.feature
}

func (v *SymbolicValue) Symbols() []*FeatureSymbol {
	symbols := make([]*FeatureSymbol, 0, bits.OnesCount64(v.bits))
	for _, sym := range v.feature.symbols {
		if v.bits&(1<<sym.index) != 0 {
			symbols = append(symbols, sym)
		}
	}
	return symbols
}

func (v *SymbolicValue) Contains(sym *FeatureSymbol) bool {
	return sym.Feature == v.feature && v.bits&(1<<sym.index) != 0
}

func (v *SymbolicValue) Negation() SimpleValue {
	return &SymbolicValue{feature: v.feature, bits: v.feature.fullMask() &^ v.bits}
}

func (v *SymbolicValue) IsEmpty() bool {
	return v.bits == 0
}

func (v *SymbolicValue) Overlaps(other SimpleValue) bool {
	return v.bits&other.(*SymbolicValue).bits != 0
}

func (v *SymbolicValue) Intersect(other SimpleValue) SimpleValue {
	return &SymbolicValue{feature: v.feature, bits: v.bits & other.(*SymbolicValue).bits}
}

func (v *SymbolicValue) Union(other SimpleValue) SimpleValue {
	return &SymbolicValue{feature: v.feature, bits: v.bits | other.(*SymbolicValue).bits}
}

func (v *SymbolicValue) Subsumes(other SimpleValue) bool {
	o := other.(*SymbolicValue)
	return o.bits&^v.bits == 0
}

func (v *SymbolicValue) Equals(other SimpleValue) bool {
	o, ok := other.(*SymbolicValue)
	return ok && o.feature == v.feature && o.bits == v.bits
}

func (v *SymbolicValue) String() string {
	symbols := v.Symbols()
	if len(symbols) == 1 {
		return symbols[0].Description
	}
	names := make([]string, len(symbols))
	for i, sym := range symbols {
		names[i] = sym.Description
	}
	return "{" + strings.Join(names, ", ") + "}"
}

// Variable stands for a value bound during matching. When Agree is false the variable
// denotes the complement of its binding.
type Variable struct {
	Name  string
	Agree bool
}

func NewVariable(name string, agree bool) *Variable {
	return &Variable{Name: name, Agree: agree}
}

func (*Variable) isFeatureValue() {}

func (v *Variable) String() string {
	if v.Agree {
		return "α" + v.Name
	}
	return "-α" + v.Name
}

// VariableBindings maps variable names to the values they were bound to.
type VariableBindings map[string]SimpleValue

func NewVariableBindings() VariableBindings {
	return make(VariableBindings)
}

func (vb VariableBindings) Clone() VariableBindings {
	clone := make(VariableBindings, len(vb))
	for k, v := range vb {
		clone[k] = v
	}
	return clone
}

// Resolve returns the concrete value a variable currently denotes.
func (vb VariableBindings) Resolve(v *Variable) (SimpleValue, bool) {
	value, ok := vb[v.Name]
	if !ok {
		return nil, false
	}
	if !v.Agree {
		return value.Negation(), true
	}
	return value, true
}

func (vb VariableBindings) bind(v *Variable, value SimpleValue) {
	if !v.Agree {
		value = value.Negation()
	}
	vb[v.Name] = value
}

func (vb VariableBindings) copyFrom(other VariableBindings) {
	for k, v := range other {
		vb[k] = v
	}
}

func simpleValuesMatch(a, b SimpleValue) bool {
	switch a.(type) {
	case *StringValue:
		_, ok := b.(*StringValue)
		return ok
	case *SymbolicValue:
		o, ok := b.(*SymbolicValue)
		return ok && o.feature == a.(*SymbolicValue).feature
	}
	return false
}

func normalizeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	sort.Strings(out)
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}

func intersectStrings(a, b []string) []string {
	var out []string
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

func unionStrings(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return normalizeStrings(out)
}

func subtractStrings(a, b []string) []string {
	var out []string
	j := 0
	for _, s := range a {
		for j < len(b) && b[j] < s {
			j++
		}
		if j < len(b) && b[j] == s {
			continue
		}
		out = append(out, s)
	}
	return out
}
