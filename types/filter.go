package types

import "phonorule.dev/machine/featmodel"

// Filter decides which annotations a matcher or transducer can see.
type Filter func(ann *Annotation) bool

func AnyFilter(ann *Annotation) bool {
	return true
}

// NewFeatureFilter accepts annotations whose feature structure is subsumed by fs.
func NewFeatureFilter(fs *featmodel.FeatureStruct) Filter {
	return func(ann *Annotation) bool {
		return fs.Subsumes(ann.FeatureStruct, false, nil)
	}
}

func NewDisjointFilter(filters ...Filter) Filter {
	return func(ann *Annotation) bool {
		for _, filter := range filters {
			if filter(ann) {
				return true
			}
		}

		return false
	}
}

func NewCombineFilter(filters ...Filter) Filter {
	return func(ann *Annotation) bool {
		for _, filter := range filters {
			if !filter(ann) {
				return false
			}
		}

		return true
	}
}

func NewNegateFilter(filter Filter) Filter {
	return func(ann *Annotation) bool {
		return !filter(ann)
	}
}

// LeafFilter accepts annotations without children.
func LeafFilter(ann *Annotation) bool {
	return ann.IsLeaf()
}
