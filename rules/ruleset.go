package rules

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"phonorule.dev/machine/grammar"
	"phonorule.dev/machine/logger"
	"phonorule.dev/machine/types"
	"phonorule.dev/machine/utils"
)

// Engine selects how rules are applied.
type Engine string

const (
	// MatcherEngine finds all sites with the backtracking matcher and rewrites them at once.
	MatcherEngine Engine = "matcher"
	// FstEngine runs each rule's transducer over the word.
	FstEngine Engine = "fst"
)

func ParseEngine(s string) (Engine, error) {
	switch Engine(strings.ToLower(s)) {
	case "", MatcherEngine:
		return MatcherEngine, nil
	case FstEngine:
		return FstEngine, nil
	}
	return "", fmt.Errorf("unknown engine %q", s)
}

// Step records a rule that changed the word.
type Step struct {
	Rule   string `json:"rule"`
	Output string `json:"output"`
}

// Derivation is the result of rewriting one word.
type Derivation struct {
	Input  string `json:"input"`
	Output string `json:"output"`
	Steps  []Step `json:"steps,omitempty"`
}

// Ruleset applies the rules of a grammar in declaration order. A Ruleset is safe for
// concurrent use.
type Ruleset struct {
	grammar *grammar.Grammar
	rules   []*Rule
	engine  Engine
	log     zerolog.Logger
}

func NewRuleset(g *grammar.Grammar, engine Engine) (*Ruleset, error) {
	rs := &Ruleset{grammar: g, engine: engine, log: logger.NewLogger("Rules")}
	for _, decl := range g.Rules {
		r, err := Compile(g, decl)
		if err != nil {
			return nil, err
		}
		rs.rules = append(rs.rules, r)
	}
	rs.log.Debug().
		Str("grammar", g.Name).
		Str("engine", string(engine)).
		Int("rules", len(rs.rules)).
		Msg("compiled ruleset")
	return rs, nil
}

func (rs *Ruleset) Grammar() *grammar.Grammar {
	return rs.grammar
}

func (rs *Ruleset) Engine() Engine {
	return rs.engine
}

func (rs *Ruleset) Rules() []*Rule {
	return append([]*Rule(nil), rs.rules...)
}

func (rs *Ruleset) Rule(name string) (*Rule, bool) {
	for _, r := range rs.rules {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// CacheKey identifies the derivation of word under this grammar version and engine.
func (rs *Ruleset) CacheKey(word string) uint64 {
	return utils.HashString(fmt.Sprintf("%d|%s|%s", rs.grammar.Hash(), rs.engine, word))
}

func (rs *Ruleset) apply(r *Rule, data *types.AnnotatedData) (*types.AnnotatedData, bool) {
	if rs.engine == FstEngine {
		return r.Transduce(data)
	}
	return r.Apply(data)
}

// Rewrite segments word, applies every rule and renders the result.
func (rs *Ruleset) Rewrite(word string) (d *Derivation, err error) {
	defer utils.RecoverWithError(&err)

	data, err := rs.grammar.Segment(word)
	if err != nil {
		return nil, err
	}
	d = &Derivation{Input: word, Output: word}
	for _, r := range rs.rules {
		out, changed := rs.apply(r, data)
		if !changed {
			continue
		}
		text, err := rs.grammar.Render(out)
		if err != nil {
			return nil, fmt.Errorf("rule %q on %q: %w", r.Name, word, err)
		}
		data = out
		if text == d.Output {
			continue
		}
		rs.log.Debug().Str("rule", r.Name).Str("input", d.Output).Str("output", text).Msg("applied")
		d.Output = text
		d.Steps = append(d.Steps, Step{Rule: r.Name, Output: text})
	}
	return d, nil
}

// RewriteAll rewrites each word and stops at the first error.
func (rs *Ruleset) RewriteAll(words []string) ([]*Derivation, error) {
	derivations := make([]*Derivation, 0, len(words))
	for _, word := range words {
		d, err := rs.Rewrite(word)
		if err != nil {
			return nil, err
		}
		derivations = append(derivations, d)
	}
	return derivations, nil
}
