package fst

import (
	"strings"

	"phonorule.dev/machine/featmodel"
)

type InputKind int

const (
	EpsilonInput InputKind = iota
	ConstraintInput
	// LeftSideInput and RightSideInput are zero-width checks against the absolute edges of
	// the data.
	LeftSideInput
	RightSideInput
)

// Input is an arc label: a feature structure constraint minus any negated constraints, or a
// zero-width epsilon or anchor.
type Input struct {
	Kind          InputKind
	FeatureStruct *featmodel.FeatureStruct
	Negated       []*featmodel.FeatureStruct
}

func NewInput(fs *featmodel.FeatureStruct, negated ...*featmodel.FeatureStruct) Input {
	if fs == nil {
		fs = featmodel.NewFeatureStruct()
	}
	return Input{Kind: ConstraintInput, FeatureStruct: fs, Negated: negated}
}

func Epsilon() Input {
	return Input{Kind: EpsilonInput}
}

func LeftSide() Input {
	return Input{Kind: LeftSideInput}
}

func RightSide() Input {
	return Input{Kind: RightSideInput}
}

// IsEpsilon reports whether the arc consumes nothing.
func (in Input) IsEpsilon() bool {
	return in.Kind != ConstraintInput
}

func (in Input) IsAnchor() bool {
	return in.Kind == LeftSideInput || in.Kind == RightSideInput
}

// EnqueueCount is the number of annotations the arc consumes.
func (in Input) EnqueueCount() int {
	if in.IsEpsilon() {
		return 0
	}
	return 1
}

// Matches tests fs against the constraint. New variable bindings are written to bindings only
// on success; bindings may be nil.
func (in Input) Matches(fs *featmodel.FeatureStruct, useUnification bool, useDefaults bool, bindings featmodel.VariableBindings) bool {
	if in.IsEpsilon() {
		return false
	}
	work := bindings.Clone()
	if !matchConstraint(in.FeatureStruct, fs, useUnification, useDefaults, work) {
		return false
	}
	for _, neg := range in.Negated {
		if matchConstraint(neg, fs, useUnification, useDefaults, work.Clone()) {
			return false
		}
	}
	if bindings != nil {
		for k, v := range work {
			bindings[k] = v
		}
	}
	return true
}

// matchConstraint applies defaults to fs, the annotation side, for features the constraint
// names and fs lacks.
func matchConstraint(constraint, fs *featmodel.FeatureStruct, useUnification bool, useDefaults bool, bindings featmodel.VariableBindings) bool {
	if useUnification {
		return fs.IsUnifiable(constraint, useDefaults, bindings)
	}
	return constraint.Subsumes(fs, useDefaults, bindings)
}

// Overlaps reports whether some feature structure could satisfy both inputs.
func (in Input) Overlaps(other Input) bool {
	if in.IsEpsilon() || other.IsEpsilon() {
		return in.Kind == other.Kind
	}
	inter, ok := featmodel.Unify(in.FeatureStruct, other.FeatureStruct)
	if !ok {
		return false
	}
	return isSatisfiable(inter, append(append([]*featmodel.FeatureStruct(nil), in.Negated...), other.Negated...))
}

// isSatisfiable is false when a negated constraint rules out everything pos allows.
func isSatisfiable(pos *featmodel.FeatureStruct, negated []*featmodel.FeatureStruct) bool {
	for _, neg := range negated {
		if featmodel.Subsumes(neg, pos) {
			return false
		}
	}
	return true
}

// Equals compares inputs structurally.
func (in Input) Equals(other Input) bool {
	if in.Kind != other.Kind {
		return false
	}
	if in.Kind != ConstraintInput {
		return true
	}
	if !in.FeatureStruct.ValueEquals(other.FeatureStruct) || len(in.Negated) != len(other.Negated) {
		return false
	}
	for i, neg := range in.Negated {
		if !neg.ValueEquals(other.Negated[i]) {
			return false
		}
	}
	return true
}

func (in Input) String() string {
	switch in.Kind {
	case EpsilonInput:
		return "ε"
	case LeftSideInput:
		return "^"
	case RightSideInput:
		return "$"
	}
	if len(in.Negated) == 0 {
		return in.FeatureStruct.String()
	}
	var sb strings.Builder
	sb.WriteString(in.FeatureStruct.String())
	for _, neg := range in.Negated {
		sb.WriteString(" && !")
		sb.WriteString(neg.String())
	}
	return sb.String()
}

func (in Input) freeze() {
	if in.FeatureStruct != nil {
		in.FeatureStruct.Freeze()
	}
	for _, neg := range in.Negated {
		neg.Freeze()
	}
}
