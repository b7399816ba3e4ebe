package fst

import (
	"fmt"

	"phonorule.dev/machine/featmodel"
	"phonorule.dev/machine/types"
)

// Operations applies rewrites to the output data during transduction.
type Operations interface {
	// Replace is called after the feature structure of ann has been changed in place.
	Replace(data types.Data, ann *types.Annotation)
	// Insert adds an annotation next to after, in the transducer's direction, and returns
	// its span. A nil after means the edge where traversal starts.
	Insert(data types.Data, after *types.Annotation, fs *featmodel.FeatureStruct) types.Span
	Remove(data types.Data, span types.Span)
}

// DataOperations rewrites *types.AnnotatedData.
type DataOperations struct {
	Direction types.Direction
}

func (ops DataOperations) Replace(data types.Data, ann *types.Annotation) {}

func (ops DataOperations) Insert(data types.Data, after *types.Annotation, fs *featmodel.FeatureStruct) types.Span {
	ad := annotatedData(data)
	if ops.Direction == types.RightToLeft {
		return ad.InsertBefore(after, fs).Span
	}
	return ad.InsertAfter(after, fs).Span
}

func (ops DataOperations) Remove(data types.Data, span types.Span) {
	annotatedData(data).RemoveSpan(span)
}

func annotatedData(data types.Data) *types.AnnotatedData {
	ad, ok := data.(*types.AnnotatedData)
	if !ok {
		panic(fmt.Sprintf("fst: DataOperations cannot rewrite %T", data))
	}
	return ad
}
