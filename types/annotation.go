package types

import (
	"fmt"

	"phonorule.dev/machine/featmodel"
)

// Annotation labels a span of the data with a feature structure. Annotations nest: a word
// annotation may own its segment annotations as children.
type Annotation struct {
	Span
	FeatureStruct *featmodel.FeatureStruct
	// Optional annotations may be skipped by matching and transduction.
	Optional bool

	parent   *Annotation
	children *AnnotationList
}

func NewAnnotation(span Span, fs *featmodel.FeatureStruct) *Annotation {
	if fs == nil {
		fs = featmodel.NewFeatureStruct()
	}
	return &Annotation{Span: span, FeatureStruct: fs}
}

func (ann *Annotation) GetSpan() *Span {
	return &ann.Span
}

func (ann *Annotation) Parent() *Annotation {
	return ann.parent
}

// Children returns the child list, creating it on first use.
func (ann *Annotation) Children() *AnnotationList {
	if ann.children == nil {
		ann.children = &AnnotationList{owner: ann}
	}
	return ann.children
}

func (ann *Annotation) IsLeaf() bool {
	return ann.children == nil || ann.children.Len() == 0
}

func (ann *Annotation) Depth() int {
	depth := 0
	for p := ann.parent; p != nil; p = p.parent {
		depth++
	}
	return depth
}

// Clone copies the annotation, its feature structure and its subtree. The copy has no parent.
func (ann *Annotation) Clone() *Annotation {
	return ann.cloneWith(nil)
}

func (ann *Annotation) cloneWith(mapping map[*Annotation]*Annotation) *Annotation {
	c := &Annotation{
		Span:          ann.Span,
		FeatureStruct: ann.FeatureStruct.Clone(),
		Optional:      ann.Optional,
	}
	if mapping != nil {
		mapping[ann] = c
	}
	if !ann.IsLeaf() {
		c.children = ann.children.cloneWith(c, mapping)
	}
	return c
}

func (ann *Annotation) String() string {
	return fmt.Sprintf("%s%s", ann.Span, ann.FeatureStruct)
}

func (ann *Annotation) isAncestorOf(other *Annotation) bool {
	for p := other.parent; p != nil; p = p.parent {
		if p == ann {
			return true
		}
	}
	return false
}
