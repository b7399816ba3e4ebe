package featmodel

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"phonorule.dev/machine/utils"
)

// Disjunction lists alternative structures, at least one of which must hold.
type Disjunction []*FeatureStruct

// FeatureStruct is an insertion-ordered mapping from features to values. Nested structures
// may be shared between several paths or reach themselves, so every traversal here is
// cycle-safe.
type FeatureStruct struct {
	features     []*Feature
	values       map[*Feature]FeatureValue
	disjunctions []Disjunction
	frozen       bool
	hash         uint64
}

func NewFeatureStruct() *FeatureStruct {
	return &FeatureStruct{values: make(map[*Feature]FeatureValue)}
}

func (*FeatureStruct) isFeatureValue() {}

func (fs *FeatureStruct) Features() []*Feature {
	features := make([]*Feature, len(fs.features))
	copy(features, fs.features)
	return features
}

func (fs *FeatureStruct) Count() int {
	return len(fs.features)
}

// IsEmpty reports whether the structure constrains nothing.
func (fs *FeatureStruct) IsEmpty() bool {
	return len(fs.features) == 0 && len(fs.disjunctions) == 0
}

func (fs *FeatureStruct) Value(f *Feature) (FeatureValue, bool) {
	v, ok := fs.values[f]
	return v, ok
}

func (fs *FeatureStruct) ValueByID(id string) (FeatureValue, bool) {
	for _, f := range fs.features {
		if f.ID == id {
			return fs.values[f], true
		}
	}
	return nil, false
}

// SymbolValue returns the symbolic value of f, if it has one.
func (fs *FeatureStruct) SymbolValue(f *Feature) (*SymbolicValue, bool) {
	v, ok := fs.values[f].(*SymbolicValue)
	return v, ok
}

// StringValue returns the string value of f, if it has one.
func (fs *FeatureStruct) StringValue(f *Feature) (*StringValue, bool) {
	v, ok := fs.values[f].(*StringValue)
	return v, ok
}

// AddValue sets the value of f, replacing any previous value. It panics when the value does
// not fit the feature type or the structure is frozen.
func (fs *FeatureStruct) AddValue(f *Feature, v FeatureValue) {
	fs.checkNotFrozen()
	checkValueFits(f, v)
	if _, ok := fs.values[f]; !ok {
		fs.features = append(fs.features, f)
	}
	fs.values[f] = v
}

func (fs *FeatureStruct) RemoveValue(f *Feature) {
	fs.checkNotFrozen()
	if _, ok := fs.values[f]; !ok {
		return
	}
	delete(fs.values, f)
	for i, feature := range fs.features {
		if feature == f {
			fs.features = append(fs.features[:i], fs.features[i+1:]...)
			break
		}
	}
}

func (fs *FeatureStruct) AddDisjunction(alternatives ...*FeatureStruct) {
	fs.checkNotFrozen()
	if len(alternatives) == 0 {
		return
	}
	d := make(Disjunction, len(alternatives))
	copy(d, alternatives)
	fs.disjunctions = append(fs.disjunctions, d)
}

func (fs *FeatureStruct) Disjunctions() []Disjunction {
	ds := make([]Disjunction, len(fs.disjunctions))
	copy(ds, fs.disjunctions)
	return ds
}

// Freeze makes the structure and everything reachable from it read-only.
func (fs *FeatureStruct) Freeze() {
	fs.walk(func(n *FeatureStruct) {
		n.frozen = true
	})
	fs.hash = utils.HashString(fs.String())
}

func (fs *FeatureStruct) IsFrozen() bool {
	return fs.frozen
}

// Hash is a murmur3 hash of the canonical rendering. It is cached for frozen structures.
func (fs *FeatureStruct) Hash() uint64 {
	if fs.frozen {
		return fs.hash
	}
	return utils.HashString(fs.String())
}

// Clone returns an unfrozen deep copy that keeps the sharing pattern of nested structures.
func (fs *FeatureStruct) Clone() *FeatureStruct {
	return fs.cloneWith(make(map[*FeatureStruct]*FeatureStruct))
}

func (fs *FeatureStruct) cloneWith(copies map[*FeatureStruct]*FeatureStruct) *FeatureStruct {
	if c, ok := copies[fs]; ok {
		return c
	}
	c := &FeatureStruct{
		features: make([]*Feature, len(fs.features)),
		values:   make(map[*Feature]FeatureValue, len(fs.values)),
	}
	copies[fs] = c
	copy(c.features, fs.features)
	for _, f := range fs.features {
		c.values[f] = cloneValue(fs.values[f], copies)
	}
	for _, d := range fs.disjunctions {
		cd := make(Disjunction, len(d))
		for i, alt := range d {
			cd[i] = alt.cloneWith(copies)
		}
		c.disjunctions = append(c.disjunctions, cd)
	}
	return c
}

func cloneValue(v FeatureValue, copies map[*FeatureStruct]*FeatureStruct) FeatureValue {
	if nested, ok := v.(*FeatureStruct); ok {
		return nested.cloneWith(copies)
	}
	return v
}

// ValueEquals compares structures by value, treating a revisited pair of nodes as equal.
func (fs *FeatureStruct) ValueEquals(other *FeatureStruct) bool {
	if other == nil {
		return false
	}
	return fs.valueEquals(other, make(map[[2]*FeatureStruct]bool))
}

func (fs *FeatureStruct) valueEquals(other *FeatureStruct, visited map[[2]*FeatureStruct]bool) bool {
	key := [2]*FeatureStruct{fs, other}
	if visited[key] {
		return true
	}
	visited[key] = true

	if len(fs.features) != len(other.features) || len(fs.disjunctions) != len(other.disjunctions) {
		return false
	}
	for _, f := range fs.features {
		ov, ok := other.values[f]
		if !ok || !valuesEqual(fs.values[f], ov, visited) {
			return false
		}
	}
	for i, d := range fs.disjunctions {
		od := other.disjunctions[i]
		if len(d) != len(od) {
			return false
		}
		for j := range d {
			if !d[j].valueEquals(od[j], visited) {
				return false
			}
		}
	}
	return true
}

func valuesEqual(a, b FeatureValue, visited map[[2]*FeatureStruct]bool) bool {
	switch av := a.(type) {
	case *FeatureStruct:
		bv, ok := b.(*FeatureStruct)
		return ok && av.valueEquals(bv, visited)
	case *Variable:
		bv, ok := b.(*Variable)
		return ok && av.Name == bv.Name && av.Agree == bv.Agree
	case SimpleValue:
		bv, ok := b.(SimpleValue)
		return ok && av.Equals(bv)
	}
	return false
}

// String renders the structure with features sorted by description. Structures reachable
// along more than one path are labelled on first use and referenced afterwards.
func (fs *FeatureStruct) String() string {
	counts := make(map[*FeatureStruct]int)
	fs.countRefs(counts)
	p := printer{counts: counts, labels: make(map[*FeatureStruct]int)}
	p.write(fs)
	return p.sb.String()
}

func (fs *FeatureStruct) countRefs(counts map[*FeatureStruct]int) {
	counts[fs]++
	if counts[fs] > 1 {
		return
	}
	for _, f := range fs.features {
		if nested, ok := fs.values[f].(*FeatureStruct); ok {
			nested.countRefs(counts)
		}
	}
	for _, d := range fs.disjunctions {
		for _, alt := range d {
			alt.countRefs(counts)
		}
	}
}

type printer struct {
	sb     strings.Builder
	counts map[*FeatureStruct]int
	labels map[*FeatureStruct]int
}

func (p *printer) write(fs *FeatureStruct) {
	if label, ok := p.labels[fs]; ok {
		p.sb.WriteString("<" + strconv.Itoa(label) + ">")
		return
	}
	if p.counts[fs] > 1 {
		label := len(p.labels) + 1
		p.labels[fs] = label
		p.sb.WriteString(strconv.Itoa(label) + "=")
	}
	if fs.IsEmpty() {
		p.sb.WriteString("ANY")
		return
	}

	features := make([]*Feature, len(fs.features))
	copy(features, fs.features)
	sort.SliceStable(features, func(i, j int) bool {
		return features[i].Description < features[j].Description
	})

	p.sb.WriteByte('[')
	first := true
	for _, f := range features {
		if !first {
			p.sb.WriteString(", ")
		}
		first = false
		p.sb.WriteString(f.Description)
		p.sb.WriteByte(':')
		if nested, ok := fs.values[f].(*FeatureStruct); ok {
			p.write(nested)
		} else {
			p.sb.WriteString(fs.values[f].String())
		}
	}
	for _, d := range fs.disjunctions {
		if !first {
			p.sb.WriteString(", ")
		}
		first = false
		p.sb.WriteString("(")
		for i, alt := range d {
			if i > 0 {
				p.sb.WriteString(" || ")
			}
			p.write(alt)
		}
		p.sb.WriteString(")")
	}
	p.sb.WriteByte(']')
}

func (fs *FeatureStruct) walk(visit func(*FeatureStruct)) {
	seen := make(map[*FeatureStruct]bool)
	stack := []*FeatureStruct{fs}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		visit(n)
		for _, f := range n.features {
			if nested, ok := n.values[f].(*FeatureStruct); ok {
				stack = append(stack, nested)
			}
		}
		for _, d := range n.disjunctions {
			stack = append(stack, d...)
		}
	}
}

func (fs *FeatureStruct) checkNotFrozen() {
	if fs.frozen {
		panic("featmodel: feature structure is frozen")
	}
}

func checkValueFits(f *Feature, v FeatureValue) {
	ok := false
	switch value := v.(type) {
	case *FeatureStruct:
		ok = f.Type == ComplexFeatureType
	case *Variable:
		ok = f.Type != ComplexFeatureType
	case *StringValue:
		ok = f.Type == StringFeatureType
	case *SymbolicValue:
		ok = f.Type == SymbolicFeatureType && value.feature == f
	}
	if !ok {
		panic(fmt.Sprintf("featmodel: %T does not fit %s feature %q", v, f.Type, f.ID))
	}
}
