package pattern

import (
	"testing"

	"github.com/stretchr/testify/require"

	"phonorule.dev/machine/featmodel"
	"phonorule.dev/machine/grammar"
	"phonorule.dev/machine/types"
)

func TestBuilderStructure(t *testing.T) {
	g := grammar.Builtin()
	cons := featmodel.New(g.System).Symbol("cons+").Value()
	vowel := featmodel.New(g.System).Symbol("syl+").Value()

	p, err := New().
		Annotation(cons).ZeroOrMore().
		Annotation(vowel).
		Group("coda", func(coda *Builder) {
			coda.Annotation(cons).Or().Annotation(vowel).LazyOptional()
		}).
		RightSideOfInput().
		Direction(types.RightToLeft).
		AnchoredToEnd().
		Build()
	require.NoError(t, err)
	require.Equal(t, types.RightToLeft, p.Direction)
	require.True(t, p.AnchoredToEnd)
	require.NotNil(t, p.Filter)

	root := p.Root
	require.Equal(t, ExpressionNode, root.Kind)
	require.Len(t, root.Children, 4)
	require.Equal(t, QuantifierNode, root.Children[0].Kind)
	require.Equal(t, Infinite, root.Children[0].Max)
	require.Equal(t, ConstraintNode, root.Children[1].Kind)

	group := root.Children[2]
	require.Equal(t, GroupNode, group.Kind)
	require.Equal(t, "coda", group.Name)
	require.Len(t, group.Children, 1)
	alt := group.Children[0]
	require.Equal(t, AlternationNode, alt.Kind)
	require.Len(t, alt.Children, 2)
	require.Equal(t, ConstraintNode, alt.Children[0].Kind)
	require.Equal(t, QuantifierNode, alt.Children[1].Kind)
	require.False(t, alt.Children[1].Greedy)

	require.Equal(t, AnchorNode, root.Children[3].Kind)
	require.Equal(t, RightSide, root.Children[3].Side)

	require.True(t, cons.IsFrozen())
	require.False(t, root.HasVariables())
	require.False(t, root.HasSubpatterns())
}

func TestBuilderOrChain(t *testing.T) {
	g := grammar.Builtin()
	a := g.TypeValue("Seg")
	b := g.TypeValue("Bdry")
	w := g.TypeValue("Word")

	p := New().Annotation(a).Or().Annotation(b).Or().Annotation(w).Annotation(a).Value()
	require.Len(t, p.Root.Children, 2)
	require.Equal(t, AlternationNode, p.Root.Children[0].Kind)
	require.Len(t, p.Root.Children[0].Children, 3)
	require.Equal(t, "([Type:Seg]|[Type:Bdry]|[Type:Word]) [Type:Seg]", p.String())
}

func TestBuilderErrors(t *testing.T) {
	g := grammar.Builtin()
	seg := g.TypeValue("Seg")

	tests := []struct {
		name string
		b    *Builder
		want error
	}{
		{"quantifier first", New().OneOrMore(), ErrInvalidQuantifier},
		{"bad range", New().Annotation(seg).Range(3, 1), ErrInvalidQuantifier},
		{"zero max", New().Annotation(seg).Range(0, 0), ErrInvalidQuantifier},
		{"negative min", New().Annotation(seg).Range(-1, 2), ErrInvalidQuantifier},
		{"or first", New().Or().Annotation(seg), ErrInvalidPattern},
		{"dangling or", New().Annotation(seg).Or(), ErrInvalidPattern},
		{"quantify or", New().Annotation(seg).Or().Optional(), ErrInvalidQuantifier},
		{"nil constraint", New().Annotation(nil), ErrInvalidPattern},
		{"bad constraint", New().Constraint(featmodel.New(g.System).Symbol("loud+")), ErrInvalidPattern},
		{"bad group", New().Group("g", func(b *Builder) { b.ZeroOrMore() }), ErrInvalidQuantifier},
		{"group ends in or", New().Group("g", func(b *Builder) { b.Annotation(seg).Or() }), ErrInvalidPattern},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.b.Build()
			require.ErrorIs(t, err, tt.want)
			require.Panics(t, func() { tt.b.Value() })
		})
	}
}

func TestNodeValidate(t *testing.T) {
	seg := grammar.Builtin().TypeValue("Seg")
	require.NoError(t, Expression("", nil, Constraint(seg)).validate())
	require.ErrorIs(t, Expression("", nil, Alternation(Constraint(seg))).validate(), ErrInvalidPattern)
	require.ErrorIs(t, Expression("", nil, Quantifier(2, 1, true, Constraint(seg))).validate(), ErrInvalidQuantifier)
	require.ErrorIs(t, Expression("", nil, Constraint(nil)).validate(), ErrInvalidPattern)
}

func TestString(t *testing.T) {
	g := grammar.Builtin()
	seg := g.TypeValue("Seg")
	bdry := g.TypeValue("Bdry")

	tests := []struct {
		name string
		p    *Pattern
		want string
	}{
		{"star", New().Annotation(seg).ZeroOrMore().Value(), "[Type:Seg]*"},
		{"plus", New().Annotation(seg).OneOrMore().Value(), "[Type:Seg]+"},
		{"optional", New().Annotation(seg).Optional().Value(), "[Type:Seg]?"},
		{"range", New().Annotation(seg).Range(1, 3).Value(), "[Type:Seg]{1,3}"},
		{"open range", New().Annotation(seg).Range(2, Infinite).Value(), "[Type:Seg]{2,}"},
		{"lazy", New().Annotation(seg).LazyZeroOrMore().Value(), "[Type:Seg]*?"},
		{"anchors", New().LeftSideOfInput().Annotation(seg).RightSideOfInput().Value(), "^ [Type:Seg] $"},
		{
			"group",
			New().Group("onset", func(b *Builder) { b.Annotation(seg).Annotation(bdry) }).Value(),
			"(?<onset>[Type:Seg] [Type:Bdry])",
		},
		{
			"unnamed group",
			New().Group("", func(b *Builder) { b.Annotation(seg).Annotation(bdry) }).OneOrMore().Value(),
			"([Type:Seg] [Type:Bdry])+",
		},
		{
			"subpatterns",
			New().
				Subpattern("a", func(b *Builder) { b.Annotation(seg) }).
				Subpattern("b", func(b *Builder) { b.Annotation(bdry) }).
				Value(),
			"a:[Type:Seg] | b:[Type:Bdry]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.p.String())
		})
	}
}

func TestSubpatterns(t *testing.T) {
	g := grammar.Builtin()
	accept := func(Match) bool { return true }

	p := Named("syllable").
		Subpattern("open", func(b *Builder) {
			b.Annotation(g.TypeValue("Seg")).Acceptable(accept)
		}).
		Subpattern("closed", func(b *Builder) {
			b.Constraint(featmodel.New(g.System).Symbol("Seg").Feature("voice").EqualToVariable("a"))
		}).
		Value()
	require.Equal(t, "syllable", p.Name())
	require.True(t, p.Root.HasSubpatterns())
	require.True(t, p.Root.HasVariables())
	require.NotNil(t, p.Root.Children[0].Acceptable)
	require.Nil(t, p.Root.Children[1].Acceptable)

	var kinds []Kind
	p.Root.Walk(func(n *Node) bool {
		kinds = append(kinds, n.Kind)
		return true
	})
	require.Equal(t, []Kind{ExpressionNode, ExpressionNode, ConstraintNode, ExpressionNode, ConstraintNode}, kinds)
}
