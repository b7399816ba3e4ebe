package rules

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"phonorule.dev/machine/featmodel"
	"phonorule.dev/machine/fst"
	"phonorule.dev/machine/grammar"
	"phonorule.dev/machine/matcher"
	"phonorule.dev/machine/pattern"
	"phonorule.dev/machine/types"
)

var ErrInvalidRule = errors.New("invalid rule")

const (
	leftGroup   = "left"
	targetGroup = "target"
	rightGroup  = "right"
)

// Rule is a compiled rewrite rule "target -> change / left _ right". An empty target inserts
// the change between the contexts and an empty change deletes the target. A feature bundle
// change overwrites the target's values, a character change replaces the target.
type Rule struct {
	Name      string
	Direction types.Direction
	Target    []Element
	Change    []Element
	Left      []Element
	Right     []Element

	grammar *grammar.Grammar
	pattern *pattern.Pattern
	matcher *matcher.Matcher
	fst     *fst.Fst
}

// step is one position of the rule in traversal order.
type step struct {
	anchor bool
	side   pattern.Side
	group  string
	// fs is nil for the insertion point of an epenthesis rule.
	fs *featmodel.FeatureStruct
}

func Compile(g *grammar.Grammar, decl grammar.RuleDecl) (*Rule, error) {
	r := &Rule{Name: decl.Name, grammar: g}
	var err error
	if r.Direction, err = parseDirection(decl.Direction); err != nil {
		return nil, err
	}
	for _, side := range []struct {
		notation string
		elements *[]Element
	}{
		{decl.Target, &r.Target},
		{decl.Change, &r.Change},
		{decl.Left, &r.Left},
		{decl.Right, &r.Right},
	} {
		if *side.elements, err = Parse(g, side.notation); err != nil {
			return nil, fmt.Errorf("rule %q: %w", decl.Name, err)
		}
	}
	if err := r.validate(); err != nil {
		return nil, fmt.Errorf("rule %q: %w", decl.Name, err)
	}

	if r.pattern, err = r.buildPattern(); err != nil {
		return nil, fmt.Errorf("rule %q: %w: %v", decl.Name, ErrInvalidRule, err)
	}
	r.matcher = matcher.Compile(r.pattern)
	r.fst = r.buildFst()
	return r, nil
}

func parseDirection(s string) (types.Direction, error) {
	switch strings.ToLower(s) {
	case "", "ltr", "left-to-right":
		return types.LeftToRight, nil
	case "rtl", "right-to-left":
		return types.RightToLeft, nil
	}
	return types.LeftToRight, fmt.Errorf("%w: unknown direction %q", ErrInvalidRule, s)
}

func (r *Rule) validate() error {
	if len(r.Target) > 1 || len(r.Change) > 1 {
		return fmt.Errorf("%w: target and change take one element each", ErrInvalidRule)
	}
	if len(r.Target) == 0 && len(r.Change) == 0 {
		return fmt.Errorf("%w: target and change are both empty", ErrInvalidRule)
	}
	for _, elements := range [][]Element{r.Target, r.Change} {
		for _, e := range elements {
			if e.Boundary {
				return fmt.Errorf("%w: %s in target or change", ErrInvalidRule, wordBoundary)
			}
		}
	}
	if len(r.Target) == 0 && r.Change[0].Character == nil {
		return fmt.Errorf("%w: inserting needs a character, got %s", ErrInvalidRule, r.Change[0])
	}
	for i, e := range r.Left {
		if e.Boundary && i > 0 {
			return fmt.Errorf("%w: %s inside the left context", ErrInvalidRule, wordBoundary)
		}
	}
	for i, e := range r.Right {
		if e.Boundary && i < len(r.Right)-1 {
			return fmt.Errorf("%w: %s inside the right context", ErrInvalidRule, wordBoundary)
		}
	}
	return nil
}

func (r *Rule) String() string {
	side := func(elements []Element) string {
		if len(elements) == 0 {
			return null
		}
		parts := make([]string, len(elements))
		for i, e := range elements {
			parts[i] = e.String()
		}
		return strings.Join(parts, " ")
	}
	s := side(r.Target) + " -> " + side(r.Change)
	if len(r.Left) > 0 || len(r.Right) > 0 {
		left, right := "", ""
		if len(r.Left) > 0 {
			left = side(r.Left) + " "
		}
		if len(r.Right) > 0 {
			right = " " + side(r.Right)
		}
		s += " / " + left + "_" + right
	}
	return s
}

// layout lists the steps of the rule in the order its direction visits them.
func (r *Rule) layout() []step {
	var steps []step
	leftEdge := len(r.Left) > 0 && r.Left[0].Boundary
	rightEdge := len(r.Right) > 0 && r.Right[len(r.Right)-1].Boundary
	if leftEdge {
		steps = append(steps, step{anchor: true, side: pattern.LeftSide})
	}
	for _, e := range r.Left {
		if !e.Boundary {
			steps = append(steps, step{group: leftGroup, fs: e.FeatureStruct})
		}
	}
	if len(r.Target) > 0 {
		steps = append(steps, step{group: targetGroup, fs: r.Target[0].FeatureStruct})
	} else {
		steps = append(steps, step{group: targetGroup})
	}
	for _, e := range r.Right {
		if !e.Boundary {
			steps = append(steps, step{group: rightGroup, fs: e.FeatureStruct})
		}
	}
	if rightEdge {
		steps = append(steps, step{anchor: true, side: pattern.RightSide})
	}

	// Anchors name absolute edges of the word, so only the traversal order flips.
	if r.Direction == types.RightToLeft {
		for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
			steps[i], steps[j] = steps[j], steps[i]
		}
	}
	return steps
}

func (r *Rule) buildPattern() (*pattern.Pattern, error) {
	b := pattern.Named(r.Name).Direction(r.Direction).Filter(r.grammar.SegmentFilter())
	steps := r.layout()
	for i := 0; i < len(steps); {
		if steps[i].anchor {
			if steps[i].side == pattern.LeftSide {
				b.LeftSideOfInput()
			} else {
				b.RightSideOfInput()
			}
			i++
			continue
		}
		group := steps[i].group
		var constraints []*featmodel.FeatureStruct
		for ; i < len(steps) && !steps[i].anchor && steps[i].group == group; i++ {
			if steps[i].fs != nil {
				constraints = append(constraints, steps[i].fs)
			}
		}
		if len(constraints) > 0 {
			b.Group(group, func(g *pattern.Builder) {
				for _, fs := range constraints {
					g.Annotation(fs)
				}
			})
		}
	}
	return b.Build()
}

// buildFst lowers the rule to a transducer that copies the word and rewrites every site it
// can, leftmost sites first in its direction.
func (r *Rule) buildFst() *fst.Fst {
	f := fst.New(fst.Config{Direction: r.Direction, Filter: r.grammar.SegmentFilter()})
	start := f.CreateAcceptingState()
	f.SetStartState(start)
	anything := featmodel.NewFeatureStruct()
	anything.Freeze()

	s := start
	consumes := false
	for _, st := range r.layout() {
		switch {
		case st.anchor && st.side == pattern.LeftSide:
			s = f.AddArc(s, fst.LeftSide(), f.CreateState())
		case st.anchor:
			s = f.AddArc(s, fst.RightSide(), f.CreateState())
		case st.group != targetGroup:
			s = f.AddIdentityArc(s, st.fs, f.CreateState())
			consumes = true
		case st.fs == nil:
			s = f.AddInsertArc(s, r.grammar.Value(r.Change[0].Character), f.CreateState())
		default:
			s = f.AddArc(s, fst.NewInput(st.fs), f.CreateState(), r.output())
			consumes = true
		}
	}
	if consumes {
		f.AddEpsilonArc(s, start)
	} else {
		f.SetAccepting(s, true)
		f.AddIdentityArc(s, anything, start)
	}
	f.AddIdentityArc(start, anything, start)
	f.Freeze()
	return f
}

func (r *Rule) output() fst.Output {
	switch {
	case len(r.Change) == 0:
		return fst.Remove()
	case r.Change[0].Character != nil:
		return fst.Replace(r.grammar.Value(r.Change[0].Character))
	}
	return fst.PriorityUnion(r.Change[0].FeatureStruct)
}

func (r *Rule) Pattern() *pattern.Pattern {
	return r.pattern
}

func (r *Rule) Matcher() *matcher.Matcher {
	return r.matcher
}

func (r *Rule) Fst() *fst.Fst {
	return r.fst
}

// WriteGraph renders the rule's transducer in GraphViz dot.
func (r *Rule) WriteGraph(w io.Writer) error {
	return r.fst.ToGraphViz(w)
}

// site is a place the rule rewrites. Insertions have an empty span at the insertion offset.
type site struct {
	span   types.Span
	change *featmodel.FeatureStruct
}

// Apply rewrites every site the matcher finds in data. Contexts are read from the input, so
// all sites apply simultaneously. data is not modified.
func (r *Rule) Apply(data *types.AnnotatedData) (*types.AnnotatedData, bool) {
	sites := r.sites(data)
	if len(sites) == 0 {
		return data, false
	}
	sort.Slice(sites, func(i, j int) bool {
		return sites[i].span.Begin > sites[j].span.Begin
	})

	out := data.Clone().(*types.AnnotatedData)
	for _, s := range sites {
		r.rewrite(out, s)
	}
	return out, true
}

func (r *Rule) sites(data *types.AnnotatedData) []site {
	var sites []site
	seen := make(map[types.Span]bool)
	for _, match := range r.matcher.AllMatches(data, data.Span().GetStart(r.Direction)) {
		at := r.location(match)
		if seen[at] {
			continue
		}
		seen[at] = true

		s := site{span: at}
		if len(r.Change) > 0 {
			if c := r.Change[0].Character; c != nil {
				s.change = r.grammar.Value(c)
			} else {
				s.change = featmodel.ApplyBindings(r.Change[0].FeatureStruct, match.Bindings())
			}
		}
		sites = append(sites, s)
	}
	return sites
}

func (r *Rule) location(match *matcher.Match) types.Span {
	if len(r.Target) > 0 {
		target, _ := match.Group(targetGroup)
		return target
	}
	if left, ok := match.Group(leftGroup); ok {
		return types.NewSpan(left.End, left.End)
	}
	if right, ok := match.Group(rightGroup); ok {
		return types.NewSpan(right.Begin, right.Begin)
	}
	return types.NewSpan(match.Span().Begin, match.Span().Begin)
}

func (r *Rule) rewrite(data *types.AnnotatedData, s site) {
	if s.span.IsEmpty() {
		if s.span.Begin == data.Span().Begin {
			data.InsertAfter(nil, s.change)
		} else {
			data.InsertAfter(r.segmentEndingAt(data, s.span.Begin), s.change)
		}
		return
	}
	if s.change == nil {
		data.RemoveSpan(s.span)
		return
	}
	ann := r.segmentAt(data, s.span)
	if r.Change[0].Character != nil {
		ann.FeatureStruct = s.change
		return
	}
	fs := ann.FeatureStruct.Clone()
	fs.PriorityUnion(s.change)
	ann.FeatureStruct = fs
}

func (r *Rule) segmentAt(data types.Data, span types.Span) *types.Annotation {
	seq := types.NewSequence(data, types.LeftToRight, r.grammar.SegmentFilter())
	for i := 0; i < seq.Len(); i++ {
		if seq.At(i).Span == span {
			return seq.At(i)
		}
	}
	panic(fmt.Sprintf("rules: no segment at %s", span))
}

func (r *Rule) segmentEndingAt(data types.Data, offset int) *types.Annotation {
	seq := types.NewSequence(data, types.LeftToRight, r.grammar.SegmentFilter())
	for i := seq.Len() - 1; i >= 0; i-- {
		if seq.At(i).End == offset {
			return seq.At(i)
		}
	}
	panic(fmt.Sprintf("rules: no segment ends at %d", offset))
}

// Transduce runs the rule's transducer over data. Sites are rewritten one after the other,
// so a rewritten segment is not context for a later site. data is not modified.
func (r *Rule) Transduce(data *types.AnnotatedData) (*types.AnnotatedData, bool) {
	result, ok := r.fst.Transduce(data, nil, true, true, false)
	if !ok {
		return data, false
	}
	out := result.Output.(*types.AnnotatedData)
	return out, !r.sameSegments(data, out)
}

func (r *Rule) sameSegments(a, b types.Data) bool {
	sa := types.NewSequence(a, types.LeftToRight, r.grammar.SegmentFilter())
	sb := types.NewSequence(b, types.LeftToRight, r.grammar.SegmentFilter())
	if sa.Len() != sb.Len() {
		return false
	}
	for i := 0; i < sa.Len(); i++ {
		if !sa.At(i).FeatureStruct.ValueEquals(sb.At(i).FeatureStruct) {
			return false
		}
	}
	return true
}
