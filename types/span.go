package types

import (
	"fmt"

	"phonorule.dev/machine/utils"
)

type Direction int

const (
	LeftToRight Direction = iota
	RightToLeft
)

func (dir Direction) Reverse() Direction {
	if dir == LeftToRight {
		return RightToLeft
	}
	return LeftToRight
}

func (dir Direction) String() string {
	if dir == RightToLeft {
		return "RightToLeft"
	}
	return "LeftToRight"
}

type HasSpan interface {
	GetSpan() *Span
}

// Span is the half-open offset interval [Begin, End).
type Span struct {
	Begin int
	End   int
}

// NewSpan panics when end precedes begin.
func NewSpan(begin int, end int) Span {
	if end < begin {
		panic(fmt.Sprintf("types: malformed span [%d, %d)", begin, end))
	}
	return Span{Begin: begin, End: end}
}

func (span Span) Length() int {
	return span.End - span.Begin
}

func (span Span) IsEmpty() bool {
	return span.End == span.Begin
}

func (span Span) Contains(other Span) bool {
	return span.Begin <= other.Begin && span.End >= other.End
}

func (span Span) Overlaps(other Span) bool {
	return span.Begin < other.End && other.Begin < span.End
}

// GetStart returns the offset at which a traversal in dir enters the span.
func (span Span) GetStart(dir Direction) int {
	if dir == RightToLeft {
		return span.End
	}
	return span.Begin
}

// GetEnd returns the offset at which a traversal in dir leaves the span.
func (span Span) GetEnd(dir Direction) int {
	if dir == RightToLeft {
		return span.Begin
	}
	return span.End
}

func (span Span) Hash() uint64 {
	key := fmt.Sprintf("%d_%d", span.Begin, span.End)
	return utils.HashString(key)
}

func (span Span) String() string {
	return fmt.Sprintf("[%d, %d)", span.Begin, span.End)
}

// Before reports whether offset a comes strictly before b in dir.
func Before(a int, b int, dir Direction) bool {
	if dir == RightToLeft {
		return a > b
	}
	return a < b
}

// CompareSpans orders spans by start in dir, longer spans first on ties.
func CompareSpans(spanA Span, spanB Span, dir Direction) int {
	startA, startB := spanA.GetStart(dir), spanB.GetStart(dir)
	if startA != startB {
		if Before(startA, startB, dir) {
			return -1
		}
		return 1
	}
	endA, endB := spanA.GetEnd(dir), spanB.GetEnd(dir)
	if endA != endB {
		if Before(endA, endB, dir) {
			return 1
		}
		return -1
	}
	return 0
}
