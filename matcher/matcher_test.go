package matcher

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"phonorule.dev/machine/featmodel"
	"phonorule.dev/machine/grammar"
	"phonorule.dev/machine/pattern"
	"phonorule.dev/machine/types"
)

const sentence = "the old, angry man slept well."

func segment(t *testing.T, word string) *types.AnnotatedData {
	t.Helper()
	data, err := grammar.Builtin().Segment(word)
	require.NoError(t, err)
	return data
}

func symbols(ids ...string) *featmodel.FeatureStruct {
	return featmodel.New(grammar.Builtin().System).Symbol(ids...).Value()
}

func span(begin, end int) types.Span {
	return types.NewSpan(begin, end)
}

func spans(matches []*Match) []types.Span {
	out := make([]types.Span, len(matches))
	for i, m := range matches {
		out[i] = m.Span()
	}
	return out
}

func requireMatch(t *testing.T, m *Matcher, data types.Data, offset int, want types.Span) *Match {
	t.Helper()
	match, ok := m.Match(data, offset)
	require.True(t, ok, "no match from %d", offset)
	require.Equal(t, want, match.Span())
	return match
}

func TestSimplePattern(t *testing.T) {
	data := segment(t, sentence)
	m := Compile(pattern.New().Annotation(symbols("Seg", "syl-")).Value())
	require.True(t, m.IsDeterministic())

	requireMatch(t, m, data, 0, span(0, 1))
	requireMatch(t, m, data, 7, span(10, 11))
	require.False(t, m.IsMatch(data, 29))

	matches := m.Matches(data, 0).All()
	require.Len(t, matches, 17)
	require.Equal(t, span(13, 14), matches[7].Span())
	require.Equal(t, span(28, 29), matches[16].Span())

	matches = m.Matches(data, 7).All()
	require.Len(t, matches, 13)
	require.Equal(t, span(10, 11), matches[0].Span())
	require.Equal(t, span(17, 18), matches[5].Span())

	require.Len(t, m.AllMatches(data, 0), 17)
	require.Len(t, m.AllMatches(data, 7), 13)
}

func TestSequencePattern(t *testing.T) {
	data := segment(t, sentence)
	m := Compile(pattern.New().
		Annotation(symbols("Seg", "syl-")).
		Annotation(symbols("Seg", "syl+")).
		Value())

	requireMatch(t, m, data, 0, span(1, 3))
	requireMatch(t, m, data, 7, span(15, 17))

	matches := m.Matches(data, 0).All()
	require.Len(t, matches, 4)
	require.Equal(t, span(15, 17), matches[1].Span())
	require.Equal(t, span(25, 27), matches[3].Span())
}

func TestAlternationPattern(t *testing.T) {
	g := grammar.Builtin()
	space, ok := g.Character(" ")
	require.True(t, ok)
	data := segment(t, sentence)
	m := Compile(pattern.New().
		Annotation(space.FeatureStruct).Or().Annotation(symbols("Seg", "son+", "syl-")).
		Value())

	requireMatch(t, m, data, 0, span(1, 2))
	requireMatch(t, m, data, 7, span(8, 9))

	matches := m.Matches(data, 0).All()
	require.Len(t, matches, 16)
	require.Equal(t, span(13, 14), matches[6].Span())
	require.Equal(t, span(28, 29), matches[15].Span())
}

func TestOptionalPattern(t *testing.T) {
	data := segment(t, sentence)
	p := pattern.New().
		Annotation(symbols("Seg", "syl-")).
		Annotation(symbols("Seg", "syl-")).Optional().
		Annotation(symbols("Seg", "syl+")).
		Value()
	m := Compile(p)

	requireMatch(t, m, data, 0, span(0, 3))
	requireMatch(t, m, data, 7, span(15, 17))

	matches := m.Matches(data, 0).All()
	require.Len(t, matches, 4)
	require.Equal(t, span(19, 22), matches[2].Span())
	require.Equal(t, span(25, 27), matches[3].Span())

	all := m.AllMatches(data, 0)
	require.Len(t, all, 6)
	require.Equal(t, span(1, 3), all[1].Span())
	require.Equal(t, span(20, 22), all[4].Span())
}

func zeroOrMore(lazy bool) *pattern.Pattern {
	b := pattern.New()
	star := func() {
		if lazy {
			b.LazyZeroOrMore()
		} else {
			b.ZeroOrMore()
		}
	}
	b.Annotation(symbols("Seg", "syl-"))
	star()
	b.Annotation(symbols("Seg", "syl+"))
	b.Annotation(symbols("Seg", "syl-"))
	star()
	return b.Value()
}

func TestZeroOrMorePattern(t *testing.T) {
	data := segment(t, sentence)

	t.Run("greedy", func(t *testing.T) {
		m := Compile(zeroOrMore(false))
		requireMatch(t, m, data, 0, span(0, 3))
		requireMatch(t, m, data, 7, span(9, 14))

		matches := m.Matches(data, 0).All()
		require.Len(t, matches, 6)
		require.Equal(t, span(4, 7), matches[1].Span())
		require.Equal(t, span(25, 29), matches[5].Span())

		all := m.AllMatches(data, 0)
		require.Len(t, all, 30)
		want := []types.Span{span(0, 3), span(1, 3), span(2, 3), span(4, 7), span(4, 6), span(4, 5)}
		if diff := cmp.Diff(want, spans(all[:6])); diff != "" {
			t.Errorf("AllMatches() mismatch (-want +got):\n%s", diff)
		}
		require.Equal(t, span(16, 17), all[14].Span())
		require.Equal(t, span(26, 27), all[29].Span())
	})

	t.Run("lazy", func(t *testing.T) {
		m := Compile(zeroOrMore(true))
		require.False(t, m.IsDeterministic())
		requireMatch(t, m, data, 7, span(9, 10))

		all := m.AllMatches(data, 0)
		require.Len(t, all, 30)
		want := []types.Span{span(4, 5), span(4, 6), span(4, 7)}
		if diff := cmp.Diff(want, spans(all[3:6])); diff != "" {
			t.Errorf("AllMatches() mismatch (-want +got):\n%s", diff)
		}
		require.Equal(t, span(26, 29), all[29].Span())
	})
}

func TestOneOrMorePattern(t *testing.T) {
	data := segment(t, sentence)
	m := Compile(pattern.New().
		Annotation(symbols("Seg", "syl-")).OneOrMore().
		Annotation(symbols("Seg", "syl+")).
		Annotation(symbols("Seg", "syl-")).OneOrMore().
		Value())

	requireMatch(t, m, data, 0, span(15, 18))
	requireMatch(t, m, data, 16, span(19, 24))

	want := []types.Span{span(15, 18), span(19, 24), span(19, 23), span(20, 24), span(20, 23), span(25, 29), span(25, 28)}
	if diff := cmp.Diff(want, spans(m.AllMatches(data, 0))); diff != "" {
		t.Errorf("AllMatches() mismatch (-want +got):\n%s", diff)
	}
}

func TestRangePattern(t *testing.T) {
	data := segment(t, sentence)
	seg := grammar.Builtin().TypeValue(grammar.TypeSegment)

	t.Run("zero to two", func(t *testing.T) {
		m := Compile(pattern.New().Annotation(seg).Annotation(seg).Range(0, 2).Value())
		requireMatch(t, m, data, 0, span(0, 3))
		requireMatch(t, m, data, 7, span(9, 12))
		require.Len(t, m.Matches(data, 0).All(), 9)

		all := m.AllMatches(data, 0)
		require.Len(t, all, 51)
		want := []types.Span{span(0, 3), span(0, 2), span(0, 1), span(1, 3)}
		if diff := cmp.Diff(want, spans(all[:4])); diff != "" {
			t.Errorf("AllMatches() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("one to three", func(t *testing.T) {
		m := Compile(pattern.New().Annotation(seg).Annotation(seg).Range(1, 3).Value())
		requireMatch(t, m, data, 7, span(9, 13))
	})

	t.Run("lazy", func(t *testing.T) {
		m := Compile(pattern.New().Annotation(seg).Annotation(seg).LazyRange(1, 3).Value())
		requireMatch(t, m, data, 0, span(0, 2))
	})
}

func TestCapturingGroupPattern(t *testing.T) {
	data := segment(t, sentence)
	m := Compile(pattern.New().
		Group("onset", func(b *pattern.Builder) { b.Annotation(symbols("Seg", "syl-")).ZeroOrMore() }).
		Annotation(symbols("Seg", "syl+")).
		Group("coda", func(b *pattern.Builder) { b.Annotation(symbols("Seg", "syl-")).ZeroOrMore() }).
		Value())
	require.Equal(t, []string{"coda", "onset"}, m.GroupNames())

	match := requireMatch(t, m, data, 0, span(0, 3))
	onset, ok := match.Group("onset")
	require.True(t, ok)
	require.Equal(t, span(0, 2), onset)
	_, ok = match.Group("coda")
	require.False(t, ok)
	entire, ok := match.Group(EntireMatch)
	require.True(t, ok)
	require.Equal(t, span(0, 3), entire)

	match = requireMatch(t, m, data, 7, span(9, 14))
	_, ok = match.Group("onset")
	require.False(t, ok)
	coda, _ := match.Group("coda")
	require.Equal(t, span(10, 14), coda)
	require.Equal(t, []string{"coda"}, match.Groups())

	matches := m.Matches(data, 0).All()
	require.Len(t, matches, 6)
	require.Equal(t, span(4, 7), matches[1].Span())
	coda, _ = matches[1].Group("coda")
	require.Equal(t, span(5, 7), coda)
	require.Equal(t, span(25, 29), matches[5].Span())
	onset, _ = matches[5].Group("onset")
	require.Equal(t, span(25, 26), onset)
	coda, _ = matches[5].Group("coda")
	require.Equal(t, span(27, 29), coda)
}

func TestSubpatterns(t *testing.T) {
	data := segment(t, sentence)
	seg := grammar.Builtin().TypeValue(grammar.TypeSegment)
	m := Compile(pattern.New().
		Subpattern("unvoiceInitial", func(b *pattern.Builder) {
			b.Annotation(symbols("Seg", "voice-")).Annotation(seg).ZeroOrMore()
		}).
		Subpattern("word", func(b *pattern.Builder) {
			b.Annotation(symbols("Seg", "syl+")).Annotation(seg).ZeroOrMore()
		}).
		Value())
	require.False(t, m.IsDeterministic())

	match := requireMatch(t, m, data, 0, span(0, 3))
	require.Equal(t, []string{"unvoiceInitial"}, match.PatternPath())

	matches := m.Matches(data, 0).All()
	require.Equal(t, span(4, 7), matches[1].Span())
	require.Equal(t, []string{"word"}, matches[1].PatternPath())

	all := m.AllMatches(data, 0)
	require.Len(t, all, 30)
	require.Equal(t, []string{"unvoiceInitial"}, all[0].PatternPath())
}

func TestAcceptable(t *testing.T) {
	data := segment(t, sentence)
	seg := grammar.Builtin().TypeValue(grammar.TypeSegment)
	longEnough := func(m pattern.Match) bool { return m.Span().Length() >= 4 }

	m := Compile(pattern.New().Annotation(seg).OneOrMore().Acceptable(longEnough).Value())
	require.Equal(t, []types.Span{span(9, 14), span(19, 24), span(25, 29)}, spans(m.Matches(data, 0).All()))

	sub := Compile(pattern.New().
		Subpattern("long", func(b *pattern.Builder) {
			b.Annotation(seg).OneOrMore().Acceptable(func(m pattern.Match) bool { return m.Span().Length() >= 5 })
		}).
		Subpattern("any", func(b *pattern.Builder) { b.Annotation(seg).OneOrMore() }).
		Value())
	match, ok := sub.Match(data, 9)
	require.True(t, ok)
	require.Equal(t, span(9, 14), match.Span())
	require.Equal(t, []string{"long"}, match.PatternPath())
	match, ok = sub.Match(data, 15)
	require.True(t, ok)
	require.Equal(t, span(15, 18), match.Span())
	require.Equal(t, []string{"any"}, match.PatternPath())
}

func TestMatcherSettings(t *testing.T) {
	g := grammar.Builtin()
	space, _ := g.Character(" ")
	data := segment(t, sentence)
	data.Annotations().AddSpan(0, data.Span().Length(), g.TypeValue(grammar.TypeWord))

	p := pattern.New().Annotation(space.FeatureStruct).Annotation(symbols("nas+")).Value()
	settings := DefaultSettings(p)
	settings.Filter = types.NewNegateFilter(types.NewFeatureFilter(g.TypeValue(grammar.TypeWord)))
	settings.MatchingMethod = Unification

	m := New(p, settings)
	require.Len(t, m.Matches(data, 0).All(), 4)

	settings.UseDefaults = true
	m = New(p, settings)
	matches := m.Matches(data, 0).All()
	require.Len(t, matches, 1)
	require.Equal(t, span(14, 16), matches[0].Span())

	exact := Compile(p)
	require.Len(t, exact.Matches(data, 0).All(), 1)
}

func TestVariablePattern(t *testing.T) {
	g := grammar.Builtin()
	p := pattern.New().
		Constraint(featmodel.New(g.System).Symbol("Seg", "cons+").Feature("voice").EqualToVariable("a")).
		Annotation(symbols("Seg", "syl+")).
		Constraint(featmodel.New(g.System).Symbol("Seg", "cons+").Feature("voice").NotEqualToVariable("a")).
		Value()
	m := Compile(p)
	require.False(t, m.IsDeterministic())

	match := requireMatch(t, m, segment(t, "fazk"), 0, span(0, 3))
	require.Len(t, match.Bindings(), 1)
	require.Equal(t, "voice-", match.Bindings()["a"].String())

	require.False(t, m.IsMatch(segment(t, "dazk"), 0))
}

func TestNondeterministicPattern(t *testing.T) {
	g := grammar.Builtin()
	anything := featmodel.NewFeatureStruct()

	p := pattern.New().
		Group("first", func(b *pattern.Builder) { b.Annotation(anything).OneOrMore() }).
		Group("second", func(b *pattern.Builder) { b.Annotation(anything).OneOrMore() }).
		AnchoredToStart().
		AnchoredToEnd().
		Value()
	settings := DefaultSettings(p)
	settings.AllSubmatches = true
	m := New(p, settings)

	all := m.AllMatches(segment(t, "test"), 0)
	require.Len(t, all, 3)
	var firsts []types.Span
	for _, match := range all {
		require.Equal(t, span(0, 4), match.Span())
		first, _ := match.Group("first")
		second, _ := match.Group("second")
		require.Equal(t, first.End, second.Begin)
		firsts = append(firsts, first)
	}
	require.Equal(t, []types.Span{span(0, 3), span(0, 2), span(0, 1)}, firsts)

	e, _ := g.Character("e")
	p = pattern.New().
		Group("first", func(b *pattern.Builder) { b.Annotation(e.FeatureStruct) }).
		Group("second", func(b *pattern.Builder) {
			b.Annotation(anything).ZeroOrMore().Group("third", func(b *pattern.Builder) { b.Annotation(anything) })
		}).Optional().
		AnchoredToStart().
		AnchoredToEnd().
		Value()
	settings = DefaultSettings(p)
	settings.AllSubmatches = true
	m = New(p, settings)

	all = m.AllMatches(segment(t, "etested"), 0)
	require.Len(t, all, 1)
	groups := map[string]types.Span{}
	for _, name := range all[0].Groups() {
		groups[name], _ = all[0].Group(name)
	}
	want := map[string]types.Span{"first": span(0, 1), "second": span(1, 7), "third": span(6, 7)}
	if diff := cmp.Diff(want, groups); diff != "" {
		t.Errorf("groups mismatch (-want +got):\n%s", diff)
	}

	all = m.AllMatches(segment(t, "e"), 0)
	require.Len(t, all, 1)
	require.Equal(t, []string{"first"}, all[0].Groups())
}

func TestDeterminizedEquivalence(t *testing.T) {
	data := segment(t, sentence)
	seg := grammar.Builtin().TypeValue(grammar.TypeSegment)
	patterns := map[string]*pattern.Pattern{
		"optional": pattern.New().
			Annotation(symbols("Seg", "syl-")).Optional().
			Annotation(symbols("Seg", "syl+")).
			Value(),
		"star": zeroOrMore(false),
		"range": pattern.New().
			Annotation(seg).Range(2, 4).
			Value(),
		"alternation": pattern.New().
			Annotation(symbols("Seg", "nas+")).Or().Annotation(symbols("Seg", "syl+")).
			Annotation(seg).Optional().
			Value(),
	}
	key := func(matches []*Match) []string {
		var keys []string
		for _, m := range matches {
			keys = append(keys, m.Span().String())
		}
		sort.Strings(keys)
		return keys
	}
	for name, p := range patterns {
		t.Run(name, func(t *testing.T) {
			dfa := Compile(p)
			require.True(t, dfa.IsDeterministic())
			require.True(t, dfa.Fst().IsDeterministic())

			settings := DefaultSettings(p)
			settings.Nondeterministic = true
			nfa := New(p, settings)
			require.False(t, nfa.IsDeterministic())

			if diff := cmp.Diff(key(nfa.AllMatches(data, 0)), key(dfa.AllMatches(data, 0))); diff != "" {
				t.Errorf("AllMatches() differ (-nfa +dfa):\n%s", diff)
			}
			if diff := cmp.Diff(spans(nfa.Matches(data, 0).All()), spans(dfa.Matches(data, 0).All())); diff != "" {
				t.Errorf("Matches() differ (-nfa +dfa):\n%s", diff)
			}
		})
	}
}

func TestMatchesRestartsOnEmptyMatch(t *testing.T) {
	data := segment(t, "ab")
	m := Compile(pattern.New().Annotation(symbols("Seg", "syl+")).ZeroOrMore().Value())
	matches := m.Matches(data, 0).All()
	require.Equal(t, []types.Span{span(0, 1), span(1, 1), span(2, 2)}, spans(matches))
}
