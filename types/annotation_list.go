package types

import (
	"fmt"
	"sort"

	"phonorule.dev/machine/featmodel"
)

// AnnotationList keeps sibling annotations ordered by begin offset, longer spans first, then
// by insertion.
type AnnotationList struct {
	owner *Annotation
	items []*Annotation
}

func NewAnnotationList() *AnnotationList {
	return &AnnotationList{}
}

func (list *AnnotationList) Len() int {
	return len(list.items)
}

func (list *AnnotationList) At(i int) *Annotation {
	return list.items[i]
}

// Items returns a copy of the annotations in left-to-right order.
func (list *AnnotationList) Items() []*Annotation {
	items := make([]*Annotation, len(list.items))
	copy(items, list.items)
	return items
}

// GetNodes returns the annotations in the order a traversal in dir visits them.
func (list *AnnotationList) GetNodes(dir Direction) []*Annotation {
	items := list.Items()
	if dir == RightToLeft {
		sort.SliceStable(items, func(i, j int) bool {
			return CompareSpans(items[i].Span, items[j].Span, RightToLeft) < 0
		})
	}
	return items
}

func (list *AnnotationList) First() (*Annotation, bool) {
	if len(list.items) == 0 {
		return nil, false
	}
	return list.items[0], true
}

func (list *AnnotationList) Last() (*Annotation, bool) {
	if len(list.items) == 0 {
		return nil, false
	}
	return list.items[len(list.items)-1], true
}

// Add inserts ann in order and adopts it. It panics when ann does not fit inside the owner.
func (list *AnnotationList) Add(ann *Annotation) *Annotation {
	if list.owner != nil && !list.owner.Span.Contains(ann.Span) {
		panic(fmt.Sprintf("types: annotation %s does not fit inside %s", ann.Span, list.owner.Span))
	}
	i := sort.Search(len(list.items), func(i int) bool {
		return CompareSpans(list.items[i].Span, ann.Span, LeftToRight) > 0
	})
	list.items = append(list.items, nil)
	copy(list.items[i+1:], list.items[i:])
	list.items[i] = ann
	ann.parent = list.owner
	return ann
}

// AddSpan creates and adds an annotation over [begin, end).
func (list *AnnotationList) AddSpan(begin int, end int, fs *featmodel.FeatureStruct) *Annotation {
	return list.Add(NewAnnotation(NewSpan(begin, end), fs))
}

func (list *AnnotationList) Remove(ann *Annotation) bool {
	i := list.IndexOf(ann)
	if i < 0 {
		return false
	}
	list.items = append(list.items[:i], list.items[i+1:]...)
	ann.parent = nil
	return true
}

func (list *AnnotationList) IndexOf(ann *Annotation) int {
	for i, item := range list.items {
		if item == ann {
			return i
		}
	}
	return -1
}

// Find returns the first annotation, at any depth, that covers exactly span.
func (list *AnnotationList) Find(span Span) (*Annotation, bool) {
	for _, ann := range list.DepthFirst() {
		if ann.Span == span {
			return ann, true
		}
	}
	return nil, false
}

// Next returns the sibling that follows ann in dir.
func (list *AnnotationList) Next(ann *Annotation, dir Direction) (*Annotation, bool) {
	nodes := list.GetNodes(dir)
	for i, node := range nodes {
		if node == ann && i+1 < len(nodes) {
			return nodes[i+1], true
		}
	}
	return nil, false
}

// Prev returns the sibling that precedes ann in dir.
func (list *AnnotationList) Prev(ann *Annotation, dir Direction) (*Annotation, bool) {
	return list.Next(ann, dir.Reverse())
}

// DepthFirst lists every annotation of the tree in pre-order.
func (list *AnnotationList) DepthFirst() []*Annotation {
	var result []*Annotation
	list.walk(func(ann *Annotation) bool {
		result = append(result, ann)
		return true
	})
	return result
}

// walk visits the tree in pre-order. Returning false from visit skips the subtree.
func (list *AnnotationList) walk(visit func(*Annotation) bool) {
	for _, ann := range list.items {
		if visit(ann) && ann.children != nil {
			ann.children.walk(visit)
		}
	}
}

func (list *AnnotationList) Clone() *AnnotationList {
	return list.cloneWith(nil, nil)
}

func (list *AnnotationList) cloneWith(owner *Annotation, mapping map[*Annotation]*Annotation) *AnnotationList {
	c := &AnnotationList{owner: owner, items: make([]*Annotation, len(list.items))}
	for i, ann := range list.items {
		clone := ann.cloneWith(mapping)
		clone.parent = owner
		c.items[i] = clone
	}
	return c
}

// resort restores the order after offsets changed.
func (list *AnnotationList) resort() {
	sort.SliceStable(list.items, func(i, j int) bool {
		return CompareSpans(list.items[i].Span, list.items[j].Span, LeftToRight) < 0
	})
	for _, ann := range list.items {
		if ann.children != nil {
			ann.children.resort()
		}
	}
}
