package types

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"phonorule.dev/machine/featmodel"
)

func testFeatures(t *testing.T) (*featmodel.FeatureSystem, map[rune]*featmodel.FeatureStruct) {
	t.Helper()
	sys := featmodel.NewFeatureSystem()
	if _, err := sys.AddSymbolicFeature("Type", "Seg", "Bdry", "Word"); err != nil {
		t.Fatal(err)
	}
	if _, err := sys.AddStringFeature("strRep"); err != nil {
		t.Fatal(err)
	}
	chars := make(map[rune]*featmodel.FeatureStruct)
	for _, ch := range "abcd" {
		chars[ch] = featmodel.New(sys).Symbol("Seg").Feature("strRep").EqualTo(string(ch)).Value()
	}
	chars['+'] = featmodel.New(sys).Symbol("Bdry").Feature("strRep").EqualTo("+").Value()
	return sys, chars
}

func stringData(t *testing.T, chars map[rune]*featmodel.FeatureStruct, s string) *AnnotatedData {
	t.Helper()
	runes := []rune(s)
	data := NewAnnotatedData(len(runes))
	for i, ch := range runes {
		data.Annotations().AddSpan(i, i+1, chars[ch].Clone())
	}
	return data
}

func spansOf(anns []*Annotation) []Span {
	spans := make([]Span, len(anns))
	for i, ann := range anns {
		spans[i] = ann.Span
	}
	return spans
}

func dump(data Data) []string {
	var out []string
	for _, ann := range data.Annotations().DepthFirst() {
		out = append(out, ann.String())
	}
	return out
}

func TestSpan(t *testing.T) {
	a := NewSpan(2, 5)
	b := NewSpan(4, 8)
	c := NewSpan(5, 6)

	if !a.Overlaps(b) || a.Overlaps(c) {
		t.Errorf("unexpected overlap for %s, %s, %s", a, b, c)
	}
	if !NewSpan(0, 10).Contains(a) || a.Contains(b) {
		t.Errorf("unexpected containment")
	}
	if a.GetStart(RightToLeft) != 5 || a.GetEnd(RightToLeft) != 2 {
		t.Errorf("right to left bounds of %s are wrong", a)
	}
	if CompareSpans(NewSpan(0, 3), NewSpan(0, 1), LeftToRight) >= 0 {
		t.Errorf("longer span must sort first")
	}
	if CompareSpans(NewSpan(3, 4), NewSpan(0, 1), RightToLeft) >= 0 {
		t.Errorf("right to left order must start from the end")
	}

	defer func() {
		if recover() == nil {
			t.Errorf("malformed span did not panic")
		}
	}()
	NewSpan(3, 1)
}

func TestAnnotationList(t *testing.T) {
	t.Run("ordering", func(t *testing.T) {
		list := NewAnnotationList()
		list.AddSpan(2, 3, nil)
		list.AddSpan(0, 1, nil)
		list.AddSpan(0, 3, nil)
		list.AddSpan(1, 2, nil)

		want := []Span{{0, 3}, {0, 1}, {1, 2}, {2, 3}}
		if diff := cmp.Diff(want, spansOf(list.Items())); diff != "" {
			t.Errorf("unexpected order (-want +got):\n%s", diff)
		}
		want = []Span{{0, 3}, {2, 3}, {1, 2}, {0, 1}}
		if diff := cmp.Diff(want, spansOf(list.GetNodes(RightToLeft))); diff != "" {
			t.Errorf("unexpected right to left order (-want +got):\n%s", diff)
		}
	})

	t.Run("children", func(t *testing.T) {
		list := NewAnnotationList()
		word := list.AddSpan(0, 2, nil)
		seg := word.Children().AddSpan(1, 2, nil)
		if seg.Parent() != word || seg.Depth() != 1 || word.IsLeaf() {
			t.Errorf("child was not adopted")
		}
		found, ok := list.Find(NewSpan(1, 2))
		if !ok || found != seg {
			t.Errorf("Find did not reach the nested annotation")
		}
		defer func() {
			if recover() == nil {
				t.Errorf("child outside its parent did not panic")
			}
		}()
		word.Children().AddSpan(1, 3, nil)
	})

	t.Run("siblings", func(t *testing.T) {
		list := NewAnnotationList()
		a := list.AddSpan(0, 1, nil)
		b := list.AddSpan(1, 2, nil)
		if next, ok := list.Next(a, LeftToRight); !ok || next != b {
			t.Errorf("Next(a) = %v", next)
		}
		if prev, ok := list.Prev(a, LeftToRight); ok {
			t.Errorf("Prev(a) = %v, want none", prev)
		}
		if !list.Remove(a) || list.Len() != 1 {
			t.Errorf("Remove failed")
		}
	})
}

func TestCloneMapping(t *testing.T) {
	_, chars := testFeatures(t)
	data := stringData(t, chars, "abc")
	word := NewAnnotation(NewSpan(0, 3), nil)
	data.Annotations().Add(word)

	clone := data.Clone()
	mapping := MapAnnotations(data, clone)
	for src, dst := range mapping {
		if src == dst || src.Span != dst.Span || !src.FeatureStruct.ValueEquals(dst.FeatureStruct) {
			t.Errorf("bad mapping %s -> %s", src, dst)
		}
	}
	if len(mapping) != 4 {
		t.Errorf("mapping has %d entries, want 4", len(mapping))
	}
}

func TestInsertRemove(t *testing.T) {
	_, chars := testFeatures(t)

	t.Run("round trip", func(t *testing.T) {
		data := stringData(t, chars, "abcd")
		before := dump(data)

		b, _ := data.Annotations().Find(NewSpan(1, 2))
		ins := data.InsertAfter(b, chars['+'].Clone())
		if ins.Span != NewSpan(2, 3) || data.Span() != NewSpan(0, 5) {
			t.Fatalf("inserted at %s in %s", ins.Span, data.Span())
		}
		c, _ := data.Annotations().Find(NewSpan(3, 4))
		if c.FeatureStruct.String() != chars['c'].String() {
			t.Errorf("c did not move right: %s", c)
		}

		data.RemoveSpan(ins.Span)
		if diff := cmp.Diff(before, dump(data)); diff != "" {
			t.Errorf("round trip changed data (-want +got):\n%s", diff)
		}
	})

	t.Run("insert at start", func(t *testing.T) {
		data := stringData(t, chars, "ab")
		ins := data.InsertAfter(nil, chars['+'].Clone())
		want := []Span{{0, 1}, {1, 2}, {2, 3}}
		if diff := cmp.Diff(want, spansOf(data.Annotations().Items())); diff != "" {
			t.Errorf("unexpected spans (-want +got):\n%s", diff)
		}
		if first, _ := data.Annotations().First(); first != ins {
			t.Errorf("inserted annotation is not first")
		}
	})

	t.Run("parent grows", func(t *testing.T) {
		data := NewAnnotatedData(3)
		word := data.Annotations().AddSpan(0, 2, nil)
		a := word.Children().AddSpan(0, 1, chars['a'].Clone())
		word.Children().AddSpan(1, 2, chars['b'].Clone())
		data.Annotations().AddSpan(2, 3, chars['c'].Clone())

		ins := data.InsertAfter(a, chars['+'].Clone())
		if word.Span != NewSpan(0, 3) || ins.Parent() != word {
			t.Errorf("word is %s, inserted parent %v", word.Span, ins.Parent())
		}
		data.RemoveSpan(NewSpan(0, 2))
		want := []Span{{0, 1}, {0, 1}, {1, 2}}
		if diff := cmp.Diff(want, spansOf(data.Annotations().DepthFirst())); diff != "" {
			t.Errorf("unexpected spans after removal (-want +got):\n%s", diff)
		}
	})
}

func TestSequence(t *testing.T) {
	sys, chars := testFeatures(t)
	data := stringData(t, chars, "ab+cd")
	data.Annotations().AddSpan(0, 2, featmodel.New(sys).Symbol("Word").Value())

	segs := NewFeatureFilter(featmodel.New(sys).Symbol("Seg").Value())

	t.Run("filtered", func(t *testing.T) {
		seq := NewSequence(data, LeftToRight, segs)
		want := []Span{{0, 1}, {1, 2}, {3, 4}, {4, 5}}
		var got []Span
		for i := 0; i < seq.Len(); i++ {
			got = append(got, seq.At(i).Span)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("unexpected sequence (-want +got):\n%s", diff)
		}
		if seq.IndexAt(2) != 2 || seq.NextIndex(1) != 2 || !seq.AtEnd(seq.NextIndex(3)) {
			t.Errorf("unexpected positions")
		}
	})

	t.Run("candidates", func(t *testing.T) {
		seq := NewSequence(data, LeftToRight, nil)
		if diff := cmp.Diff([]int{0, 1}, seq.Candidates(0)); diff != "" {
			t.Errorf("unexpected candidates (-want +got):\n%s", diff)
		}
		if seq.NextIndex(0) != 3 {
			t.Errorf("after the word the next position is %d", seq.NextIndex(0))
		}
		if !seq.AtStart(1) || seq.AtStart(2) {
			t.Errorf("unexpected start detection")
		}
	})

	t.Run("right to left", func(t *testing.T) {
		seq := NewSequence(data, RightToLeft, NewCombineFilter(segs, LeafFilter))
		if seq.At(0).Span != NewSpan(4, 5) || seq.Offset(seq.Len()) != 0 {
			t.Errorf("unexpected right to left view")
		}
		if seq.IndexAt(3) != 2 {
			t.Errorf("IndexAt(3) = %d", seq.IndexAt(3))
		}
	})

	t.Run("filters", func(t *testing.T) {
		none := NewNegateFilter(AnyFilter)
		if NewSequence(data, LeftToRight, none).Len() != 0 {
			t.Errorf("negated filter let annotations through")
		}
		either := NewDisjointFilter(none, segs)
		if NewSequence(data, LeftToRight, either).Len() != 4 {
			t.Errorf("disjoint filter lost segments")
		}
	})
}
