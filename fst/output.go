package fst

import (
	"strings"

	"phonorule.dev/machine/featmodel"
)

type OutputKind int

const (
	// IdentityOutput copies the next queued input annotation unchanged.
	IdentityOutput OutputKind = iota
	// ReplaceOutput swaps the feature structure of the next queued annotation.
	ReplaceOutput
	// PriorityUnionOutput overwrites values of the next queued annotation.
	PriorityUnionOutput
	// RemoveOutput deletes the next queued annotation.
	RemoveOutput
	// InsertOutput adds a new annotation after the last output annotation.
	InsertOutput
	EnterGroupOutput
	ExitGroupOutput
)

// Output is one action of an arc's output sequence.
type Output struct {
	Kind          OutputKind
	FeatureStruct *featmodel.FeatureStruct
	Group         string
}

func Identity() Output {
	return Output{Kind: IdentityOutput}
}

func Replace(fs *featmodel.FeatureStruct) Output {
	return Output{Kind: ReplaceOutput, FeatureStruct: fs}
}

func PriorityUnion(fs *featmodel.FeatureStruct) Output {
	return Output{Kind: PriorityUnionOutput, FeatureStruct: fs}
}

func Remove() Output {
	return Output{Kind: RemoveOutput}
}

func Insert(fs *featmodel.FeatureStruct) Output {
	return Output{Kind: InsertOutput, FeatureStruct: fs}
}

func EnterGroup(name string) Output {
	return Output{Kind: EnterGroupOutput, Group: name}
}

func ExitGroup(name string) Output {
	return Output{Kind: ExitGroupOutput, Group: name}
}

// Dequeues reports whether the action takes the next queued input annotation.
func (o Output) Dequeues() bool {
	switch o.Kind {
	case IdentityOutput, ReplaceOutput, PriorityUnionOutput, RemoveOutput:
		return true
	}
	return false
}

func (o Output) IsTag() bool {
	return o.Kind == EnterGroupOutput || o.Kind == ExitGroupOutput
}

// Produces reports whether the action leaves an annotation in the output.
func (o Output) Produces() bool {
	switch o.Kind {
	case IdentityOutput, ReplaceOutput, PriorityUnionOutput, InsertOutput:
		return true
	}
	return false
}

func (o Output) Equals(other Output) bool {
	if o.Kind != other.Kind || o.Group != other.Group {
		return false
	}
	if o.FeatureStruct == nil || other.FeatureStruct == nil {
		return o.FeatureStruct == other.FeatureStruct
	}
	return o.FeatureStruct.ValueEquals(other.FeatureStruct)
}

func (o Output) String() string {
	switch o.Kind {
	case IdentityOutput:
		return "↔"
	case ReplaceOutput:
		return "(" + o.FeatureStruct.String() + ",→)"
	case PriorityUnionOutput:
		return "(" + o.FeatureStruct.String() + ",∪)"
	case RemoveOutput:
		return "ε"
	case InsertOutput:
		return "(" + o.FeatureStruct.String() + ",+)"
	case EnterGroupOutput:
		return "<" + o.Group
	case ExitGroupOutput:
		return ">" + o.Group
	}
	return "?"
}

func outputsString(outputs []Output) string {
	parts := make([]string, len(outputs))
	for i, o := range outputs {
		parts[i] = o.String()
	}
	return strings.Join(parts, " ")
}

func outputsEqual(a, b []Output) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equals(b[i]) {
			return false
		}
	}
	return true
}
