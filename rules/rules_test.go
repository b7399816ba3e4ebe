package rules

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"phonorule.dev/machine/grammar"
)

func TestParse(t *testing.T) {
	g := grammar.Builtin()

	elements, err := Parse(g, "caN")
	require.NoError(t, err)
	require.Len(t, elements, 3)
	require.Equal(t, "N", elements[2].Character.Representation)

	elements, err = Parse(g, "# [cons+ ant+ cor-] a")
	require.NoError(t, err)
	require.Len(t, elements, 3)
	require.True(t, elements[0].Boundary)
	require.Nil(t, elements[1].Character)
	require.True(t, elements[1].FeatureStruct.IsFrozen())
	require.Equal(t, "a", elements[2].String())

	elements, err = Parse(g, "0")
	require.NoError(t, err)
	require.Empty(t, elements)

	elements, err = Parse(g, "[cons+ -αvoice]")
	require.NoError(t, err)
	require.True(t, elements[0].FeatureStruct.HasVariables())

	for _, bad := range []string{"[loud+]", "[cons+", "caB", "[αloud]"} {
		_, err := Parse(g, bad)
		require.ErrorIs(t, err, ErrInvalidRule, bad)
	}
}

func TestCompileErrors(t *testing.T) {
	g := grammar.Builtin()
	tests := []struct {
		name string
		decl grammar.RuleDecl
	}{
		{"both empty", grammar.RuleDecl{Target: "0", Change: "0"}},
		{"two targets", grammar.RuleDecl{Target: "ab", Change: "0"}},
		{"boundary target", grammar.RuleDecl{Target: "#", Change: "a"}},
		{"insert bundle", grammar.RuleDecl{Target: "0", Change: "[voice-]"}},
		{"inner boundary", grammar.RuleDecl{Target: "a", Change: "e", Left: "b #"}},
		{"direction", grammar.RuleDecl{Target: "a", Change: "e", Direction: "up"}},
		{"bad notation", grammar.RuleDecl{Target: "a", Change: "[high]"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(g, tt.decl)
			require.ErrorIs(t, err, ErrInvalidRule)
		})
	}
}

func rule(t *testing.T, name string) *Rule {
	t.Helper()
	g := grammar.Builtin()
	for _, decl := range g.Rules {
		if decl.Name == name {
			r, err := Compile(g, decl)
			require.NoError(t, err)
			return r
		}
	}
	t.Fatalf("no rule %q", name)
	return nil
}

func TestRuleApplication(t *testing.T) {
	g := grammar.Builtin()
	tests := []struct {
		rule    *Rule
		input   string
		want    string
		changed bool
	}{
		{rule(t, "nasal-place"), "caNp", "camp", true},
		{rule(t, "nasal-place"), "carp", "carp", false},
		{rule(t, "nasal-place"), "caN", "caN", false},
		{rule(t, "nasal-default"), "caN", "can", true},
		{rule(t, "nasal-default"), "NaN", "nan", true},
		{rule(t, "final-devoicing"), "bad", "bat", true},
		{rule(t, "h-deletion"), "pah", "pa", true},
		{rule(t, "h-deletion"), "hah", "ha", true},
		{rule(t, "sibilant-epenthesis"), "sz", "sez", true},
		{rule(t, "sibilant-epenthesis"), "sasz", "sasez", true},
	}
	engines := map[string]func(r *Rule, word string) (string, bool){
		"matcher": func(r *Rule, word string) (string, bool) {
			data, err := g.Segment(word)
			require.NoError(t, err)
			out, changed := r.Apply(data)
			text, err := g.Render(out)
			require.NoError(t, err)
			render, _ := g.Render(data)
			require.Equal(t, word, render, "input must not change")
			return text, changed
		},
		"fst": func(r *Rule, word string) (string, bool) {
			data, err := g.Segment(word)
			require.NoError(t, err)
			out, changed := r.Transduce(data)
			text, err := g.Render(out)
			require.NoError(t, err)
			return text, changed
		},
	}
	for engine, apply := range engines {
		for _, tt := range tests {
			t.Run(engine+"/"+tt.rule.Name+"/"+tt.input, func(t *testing.T) {
				got, changed := apply(tt.rule, tt.input)
				if got != tt.want {
					t.Errorf("%s(%q) = %q, want %q", tt.rule.Name, tt.input, got, tt.want)
				}
				if changed != tt.changed {
					t.Errorf("%s(%q) changed = %v, want %v", tt.rule.Name, tt.input, changed, tt.changed)
				}
			})
		}
	}
}

func TestRightToLeftRules(t *testing.T) {
	g := grammar.Builtin()
	tests := []struct {
		decl  grammar.RuleDecl
		input string
		want  string
	}{
		{grammar.RuleDecl{Name: "h", Target: "h", Change: "0", Right: "#", Direction: "rtl"}, "hah", "ha"},
		{grammar.RuleDecl{Name: "e", Target: "0", Change: "e", Left: "[str+]", Right: "[str+]", Direction: "rtl"}, "sz", "sez"},
		{grammar.RuleDecl{Name: "i", Target: "0", Change: "i", Right: "#", Direction: "rtl"}, "pa", "pai"},
		{grammar.RuleDecl{Name: "u", Target: "0", Change: "u", Left: "#", Direction: "rtl"}, "pa", "upa"},
	}
	for _, tt := range tests {
		t.Run(tt.decl.Name, func(t *testing.T) {
			r, err := Compile(g, tt.decl)
			require.NoError(t, err)
			data, err := g.Segment(tt.input)
			require.NoError(t, err)

			out, _ := r.Apply(data)
			text, err := g.Render(out)
			require.NoError(t, err)
			require.Equal(t, tt.want, text, "matcher")

			out, _ = r.Transduce(data)
			text, err = g.Render(out)
			require.NoError(t, err)
			require.Equal(t, tt.want, text, "fst")
		})
	}
}

func TestVariableRule(t *testing.T) {
	g := grammar.Builtin()
	r, err := Compile(g, grammar.RuleDecl{
		Name:   "voicing-assimilation",
		Target: "[cons+ son-]",
		Change: "[αvoice]",
		Left:   "[cons+ son- αvoice]",
	})
	require.NoError(t, err)
	require.True(t, r.Pattern().Root.HasVariables())

	for input, want := range map[string]string{"apda": "apta", "abta": "abda", "abda": "abda"} {
		data, err := g.Segment(input)
		require.NoError(t, err)

		out, _ := r.Apply(data)
		text, err := g.Render(out)
		require.NoError(t, err)
		require.Equal(t, want, text, "matcher %s", input)

		out, _ = r.Transduce(data)
		text, err = g.Render(out)
		require.NoError(t, err)
		require.Equal(t, want, text, "fst %s", input)
	}
}

func TestRuleString(t *testing.T) {
	require.Equal(t, "h -> 0 / _ #", rule(t, "h-deletion").String())
	require.Equal(t, "N -> "+rule(t, "nasal-default").Change[0].String(), rule(t, "nasal-default").String())
}

func TestWriteGraph(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, rule(t, "h-deletion").WriteGraph(&buf))
	require.Contains(t, buf.String(), "digraph")
}

func TestRuleset(t *testing.T) {
	g := grammar.Builtin()
	for _, engine := range []Engine{MatcherEngine, FstEngine} {
		t.Run(string(engine), func(t *testing.T) {
			rs, err := NewRuleset(g, engine)
			require.NoError(t, err)
			require.Len(t, rs.Rules(), 5)
			_, ok := rs.Rule("h-deletion")
			require.True(t, ok)

			for input, want := range map[string]string{
				"caNp": "camp",
				"caN":  "can",
				"carp": "carp",
				"bad":  "bat",
				"pah":  "pa",
				"sz":   "ses",
			} {
				d, err := rs.Rewrite(input)
				require.NoError(t, err)
				require.Equal(t, want, d.Output, input)
			}

			d, err := rs.Rewrite("sz")
			require.NoError(t, err)
			want := []Step{{Rule: "final-devoicing", Output: "ss"}, {Rule: "sibilant-epenthesis", Output: "ses"}}
			if diff := cmp.Diff(want, d.Steps); diff != "" {
				t.Errorf("steps mismatch (-want +got):\n%s", diff)
			}

			d, err = rs.Rewrite("carp")
			require.NoError(t, err)
			require.Empty(t, d.Steps)

			_, err = rs.Rewrite("caB")
			require.ErrorIs(t, err, grammar.ErrUnknownCharacter)

			all, err := rs.RewriteAll([]string{"bad", "pah"})
			require.NoError(t, err)
			require.Len(t, all, 2)
			require.Equal(t, "pa", all[1].Output)
		})
	}
}

func TestCacheKey(t *testing.T) {
	g := grammar.Builtin()
	m, err := NewRuleset(g, MatcherEngine)
	require.NoError(t, err)
	f, err := NewRuleset(g, FstEngine)
	require.NoError(t, err)
	require.Equal(t, m.CacheKey("bad"), m.CacheKey("bad"))
	require.NotEqual(t, m.CacheKey("bad"), m.CacheKey("bat"))
	require.NotEqual(t, m.CacheKey("bad"), f.CacheKey("bad"))
}

func TestParseEngine(t *testing.T) {
	engine, err := ParseEngine("FST")
	require.NoError(t, err)
	require.Equal(t, FstEngine, engine)
	engine, err = ParseEngine("")
	require.NoError(t, err)
	require.Equal(t, MatcherEngine, engine)
	_, err = ParseEngine("regex")
	require.Error(t, err)
}
