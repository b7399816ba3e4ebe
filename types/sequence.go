package types

import "sort"

// Sequence is the flattened, filter-visible view of data in traversal order. Positions are
// indexes into it; Len() is the position past the last annotation.
type Sequence struct {
	dir   Direction
	span  Span
	items []*Annotation
	index map[*Annotation]int
}

func NewSequence(data Data, dir Direction, filter Filter) *Sequence {
	if filter == nil {
		filter = AnyFilter
	}
	type entry struct {
		ann   *Annotation
		depth int
	}
	var entries []entry
	var collect func(list *AnnotationList, depth int)
	collect = func(list *AnnotationList, depth int) {
		for _, ann := range list.items {
			if filter(ann) {
				entries = append(entries, entry{ann: ann, depth: depth})
			}
			if ann.children != nil {
				collect(ann.children, depth+1)
			}
		}
	}
	collect(data.Annotations(), 0)

	sort.SliceStable(entries, func(i, j int) bool {
		if c := CompareSpans(entries[i].ann.Span, entries[j].ann.Span, dir); c != 0 {
			return c < 0
		}
		return entries[i].depth < entries[j].depth
	})

	seq := &Sequence{
		dir:   dir,
		span:  data.Span(),
		items: make([]*Annotation, len(entries)),
		index: make(map[*Annotation]int, len(entries)),
	}
	for i, e := range entries {
		seq.items[i] = e.ann
		seq.index[e.ann] = i
	}
	return seq
}

func (seq *Sequence) Direction() Direction {
	return seq.dir
}

func (seq *Sequence) Len() int {
	return len(seq.items)
}

func (seq *Sequence) At(i int) *Annotation {
	return seq.items[i]
}

// IndexOf returns the position of ann, or -1 if the filter hid it.
func (seq *Sequence) IndexOf(ann *Annotation) int {
	if i, ok := seq.index[ann]; ok {
		return i
	}
	return -1
}

// IndexAt returns the first position whose annotation starts at or after offset.
func (seq *Sequence) IndexAt(offset int) int {
	for i, ann := range seq.items {
		if !Before(ann.GetStart(seq.dir), offset, seq.dir) {
			return i
		}
	}
	return len(seq.items)
}

// Offset is the data offset of position i.
func (seq *Sequence) Offset(i int) int {
	if i < len(seq.items) {
		return seq.items[i].GetStart(seq.dir)
	}
	return seq.span.GetEnd(seq.dir)
}

// Candidates lists the positions, starting with i, whose annotations all start where the
// annotation at i starts. Any of them may be consumed next.
func (seq *Sequence) Candidates(i int) []int {
	if i >= len(seq.items) {
		return nil
	}
	start := seq.items[i].GetStart(seq.dir)
	candidates := []int{i}
	for j := i + 1; j < len(seq.items) && seq.items[j].GetStart(seq.dir) == start; j++ {
		candidates = append(candidates, j)
	}
	return candidates
}

// NextIndex is the position that follows consuming the annotation at i.
func (seq *Sequence) NextIndex(i int) int {
	end := seq.items[i].GetEnd(seq.dir)
	for j := i + 1; j < len(seq.items); j++ {
		if !Before(seq.items[j].GetStart(seq.dir), end, seq.dir) {
			return j
		}
	}
	return len(seq.items)
}

// AtStart reports whether no visible annotation lies wholly before position i.
func (seq *Sequence) AtStart(i int) bool {
	if i >= len(seq.items) {
		return len(seq.items) == 0
	}
	pos := seq.items[i].GetStart(seq.dir)
	for _, ann := range seq.items[:i] {
		if !Before(pos, ann.GetEnd(seq.dir), seq.dir) {
			return false
		}
	}
	return true
}

// AtEnd reports whether every visible annotation has been passed.
func (seq *Sequence) AtEnd(i int) bool {
	return i >= len(seq.items)
}
