package types

import (
	"fmt"

	"phonorule.dev/machine/featmodel"
)

// Data is anything that exposes an annotation tree over an offset range. Matching reads it;
// transduction rewrites a private clone of it.
type Data interface {
	Annotations() *AnnotationList
	Span() Span
	Clone() Data
}

// MapAnnotations pairs the annotations of src with those of its clone dst. Both trees must
// have the same shape.
func MapAnnotations(src Data, dst Data) map[*Annotation]*Annotation {
	srcNodes := src.Annotations().DepthFirst()
	dstNodes := dst.Annotations().DepthFirst()
	if len(srcNodes) != len(dstNodes) {
		panic(fmt.Sprintf("types: clone has %d annotations, source has %d", len(dstNodes), len(srcNodes)))
	}
	mapping := make(map[*Annotation]*Annotation, len(srcNodes))
	for i, ann := range srcNodes {
		mapping[ann] = dstNodes[i]
	}
	return mapping
}

// AnnotatedData is the default Data: a flat or nested annotation tree over [0, length).
type AnnotatedData struct {
	span        Span
	annotations *AnnotationList
}

func NewAnnotatedData(length int) *AnnotatedData {
	return &AnnotatedData{span: NewSpan(0, length), annotations: NewAnnotationList()}
}

func (data *AnnotatedData) Annotations() *AnnotationList {
	return data.annotations
}

func (data *AnnotatedData) Span() Span {
	return data.span
}

func (data *AnnotatedData) Clone() Data {
	return &AnnotatedData{span: data.span, annotations: data.annotations.Clone()}
}

// InsertAfter opens a one-offset gap right after the given annotation and places a new
// annotation there as its sibling. A nil after inserts at the start of the data.
func (data *AnnotatedData) InsertAfter(after *Annotation, fs *featmodel.FeatureStruct) *Annotation {
	if after == nil {
		return data.insertAt(data.span.Begin, data.annotations, fs)
	}
	return data.insertAt(after.End, siblings(data, after), fs)
}

// InsertBefore is InsertAfter for right-to-left rewriting. A nil before inserts at the end
// of the data.
func (data *AnnotatedData) InsertBefore(before *Annotation, fs *featmodel.FeatureStruct) *Annotation {
	if before == nil {
		return data.insertAt(data.span.End, data.annotations, fs)
	}
	return data.insertAt(before.Begin, siblings(data, before), fs)
}

func siblings(data *AnnotatedData, ann *Annotation) *AnnotationList {
	if ann.parent != nil {
		return ann.parent.Children()
	}
	return data.annotations
}

// insertAt moves annotations that begin at or past pos one offset right and grows the ones
// that span pos, including every ancestor of the new annotation.
func (data *AnnotatedData) insertAt(pos int, list *AnnotationList, fs *featmodel.FeatureStruct) *Annotation {
	ann := NewAnnotation(NewSpan(pos, pos+1), fs)
	ann.parent = list.owner
	data.annotations.walk(func(a *Annotation) bool {
		switch {
		case a.isAncestorOf(ann):
			a.End++
		case a.Begin >= pos:
			a.Begin++
			a.End++
		case a.End > pos:
			a.End++
		}
		return true
	})
	data.span.End++
	list.Add(ann)
	return ann
}

// RemoveSpan deletes the offsets of span. Annotations inside it are dropped, overlapping
// ones shrink, later ones move left.
func (data *AnnotatedData) RemoveSpan(span Span) {
	if span.IsEmpty() {
		return
	}
	mapOffset := func(x int) int {
		switch {
		case x <= span.Begin:
			return x
		case x < span.End:
			return span.Begin
		default:
			return x - span.Length()
		}
	}
	removeFrom(data.annotations, span, mapOffset)
	data.span = NewSpan(mapOffset(data.span.Begin), mapOffset(data.span.End))
	data.annotations.resort()
}

func removeFrom(list *AnnotationList, span Span, mapOffset func(int) int) {
	kept := list.items[:0]
	for _, ann := range list.items {
		wasEmpty := ann.IsEmpty()
		inside := span.Contains(ann.Span) && (!wasEmpty || (ann.Begin > span.Begin && ann.End < span.End))
		ann.Begin, ann.End = mapOffset(ann.Begin), mapOffset(ann.End)
		if inside || (!wasEmpty && ann.IsEmpty()) {
			ann.parent = nil
			continue
		}
		if ann.children != nil {
			removeFrom(ann.children, span, mapOffset)
		}
		kept = append(kept, ann)
	}
	for i := len(kept); i < len(list.items); i++ {
		list.items[i] = nil
	}
	list.items = kept
}
