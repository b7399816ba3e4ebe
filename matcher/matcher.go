package matcher

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"phonorule.dev/machine/fst"
	"phonorule.dev/machine/pattern"
	"phonorule.dev/machine/types"
)

// EntireMatch is the group that always covers the whole match.
const EntireMatch = "*entire*"

type MatchingMethod int

const (
	// Exact requires each pattern constraint to subsume the annotation it matches.
	Exact MatchingMethod = iota
	// Unification only requires the constraint and the annotation to be unifiable.
	Unification
)

type Settings struct {
	Direction       types.Direction
	Filter          types.Filter
	MatchingMethod  MatchingMethod
	AnchoredToStart bool
	AnchoredToEnd   bool
	// AllSubmatches keeps every distinct way of matching, including different group
	// captures over the same span.
	AllSubmatches bool
	UseDefaults   bool
	// Nondeterministic skips determinization even when the pattern allows it.
	Nondeterministic bool
	Logger           *zerolog.Logger
}

// DefaultSettings takes direction, filter and anchoring from the pattern.
func DefaultSettings(p *pattern.Pattern) Settings {
	return Settings{
		Direction:       p.Direction,
		Filter:          p.Filter,
		AnchoredToStart: p.AnchoredToStart,
		AnchoredToEnd:   p.AnchoredToEnd,
	}
}

// Matcher finds occurrences of a pattern in annotated data. It is immutable once created
// and safe for concurrent use.
type Matcher struct {
	settings      Settings
	fsa           *fst.Fst
	deterministic bool
	accepting     map[fst.StateID]*expression
	root          *expression
	groups        []string
	log           *zerolog.Logger
}

func Compile(p *pattern.Pattern) *Matcher {
	return New(p, DefaultSettings(p))
}

// New compiles p. Patterns without variables, groups, lazy quantifiers or subpatterns are
// determinized and minimized unless the settings ask for every submatch or for a
// nondeterministic search.
func New(p *pattern.Pattern, settings Settings) *Matcher {
	if settings.Filter == nil {
		settings.Filter = types.AnyFilter
	}
	log := settings.Logger
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}

	nfa := fst.New(fst.Config{
		Direction:      settings.Direction,
		Filter:         settings.Filter,
		UseUnification: settings.MatchingMethod == Unification,
	})
	nfa.SetLogger(log)
	c := newCompiler(nfa)
	c.compile(p.Root)

	m := &Matcher{
		settings:  settings,
		fsa:       nfa,
		accepting: c.accepting,
		root:      (&expression{}).child(p.Root),
		log:       log,
	}
	for name := range c.groups {
		m.groups = append(m.groups, name)
	}
	sort.Strings(m.groups)

	if !settings.Nondeterministic && !settings.AllSubmatches && !c.hasVariables && !c.lazy &&
		len(c.groups) == 0 && !p.Root.HasSubpatterns() {
		if dfa, ok := nfa.TryDeterminize(); ok {
			if min, err := dfa.Minimize(); err == nil {
				m.fsa = min
				m.deterministic = true
			}
		}
	}
	m.fsa.Freeze()

	log.Debug().
		Str("pattern", p.String()).
		Int("states", m.fsa.StateCount()).
		Bool("deterministic", m.deterministic).
		Msg("compiled")
	return m
}

func (m *Matcher) Settings() Settings {
	return m.settings
}

// Fst returns the compiled acceptor.
func (m *Matcher) Fst() *fst.Fst {
	return m.fsa
}

func (m *Matcher) IsDeterministic() bool {
	return m.deterministic
}

// GroupNames lists the capturing groups of the pattern.
func (m *Matcher) GroupNames() []string {
	return append([]string(nil), m.groups...)
}

func (m *Matcher) sequence(data types.Data) *types.Sequence {
	return types.NewSequence(data, m.settings.Direction, m.settings.Filter)
}

// nextStart skips the positions that start where position i starts; those are already
// candidates when a search begins at i.
func nextStart(seq *types.Sequence, i int) int {
	j := i + 1
	for j < seq.Len() && seq.Offset(j) == seq.Offset(i) {
		j++
	}
	return j
}

// matchesAt returns the acceptable matches that begin at position i, best first. Only empty
// matches begin at seq.Len().
func (m *Matcher) matchesAt(data types.Data, seq *types.Sequence, i int) []*Match {
	results := m.fsa.TransduceAt(data, i, m.settings.AnchoredToEnd, m.settings.UseDefaults)
	var matches []*Match
	for _, r := range results {
		match := m.newMatch(data, i, r)
		if match.acceptable() {
			matches = append(matches, match)
		}
	}
	return matches
}

// firstAt returns the best acceptable match that begins at position i.
func (m *Matcher) firstAt(data types.Data, i int) (*Match, bool) {
	matches := make(map[*fst.Result]*Match)
	r, ok := m.fsa.TransduceFirst(data, i, m.settings.AnchoredToEnd, m.settings.UseDefaults, func(r *fst.Result) bool {
		match := m.newMatch(data, i, r)
		if !match.acceptable() {
			return false
		}
		matches[r] = match
		return true
	})
	if !ok {
		return nil, false
	}
	return matches[r], true
}

// search returns the first match at or after position from.
func (m *Matcher) search(data types.Data, seq *types.Sequence, from int) (*Match, bool) {
	for i := from; i <= seq.Len(); i = nextStart(seq, i) {
		if match, ok := m.firstAt(data, i); ok {
			return match, true
		}
		if m.settings.AnchoredToStart {
			break
		}
	}
	return nil, false
}

func (m *Matcher) IsMatch(data types.Data, offset int) bool {
	_, ok := m.Match(data, offset)
	return ok
}

// Match returns the preferred match that starts at or after offset.
func (m *Matcher) Match(data types.Data, offset int) (*Match, bool) {
	seq := m.sequence(data)
	return m.search(data, seq, seq.IndexAt(offset))
}

// Matches iterates the non-overlapping matches from offset on. Each call starts a new
// iteration.
func (m *Matcher) Matches(data types.Data, offset int) *Matches {
	seq := m.sequence(data)
	return &Matches{matcher: m, data: data, seq: seq, pos: seq.IndexAt(offset)}
}

// AllMatches returns every match at every start position from offset on, grouped by start
// position and best first within a position.
func (m *Matcher) AllMatches(data types.Data, offset int) []*Match {
	seq := m.sequence(data)
	var all []*Match
	seen := make(map[string]bool)
	for i := seq.IndexAt(offset); i <= seq.Len(); i = nextStart(seq, i) {
		for _, match := range m.matchesAt(data, seq, i) {
			key := match.key(m.settings.AllSubmatches)
			if seen[key] {
				continue
			}
			seen[key] = true
			all = append(all, match)
		}
		if m.settings.AnchoredToStart {
			break
		}
	}
	return all
}

// resume is the position a search continues from after match.
func (m *Matcher) resume(seq *types.Sequence, match *Match) int {
	if match.span.IsEmpty() {
		return nextStart(seq, match.start)
	}
	if match.next == nil {
		return seq.Len()
	}
	if i := seq.IndexOf(match.next); i >= 0 {
		return i
	}
	return seq.IndexAt(match.next.GetStart(m.settings.Direction))
}

// Matches is a lazy iterator over successive matches.
//
//	it := m.Matches(data, 0)
//	for it.Next() {
//		use(it.Match())
//	}
type Matches struct {
	matcher *Matcher
	data    types.Data
	seq     *types.Sequence
	pos     int
	cur     *Match
	done    bool
}

func (it *Matches) Next() bool {
	if it.done {
		return false
	}
	match, ok := it.matcher.search(it.data, it.seq, it.pos)
	if !ok {
		it.done = true
		it.cur = nil
		return false
	}
	it.cur = match
	it.pos = it.matcher.resume(it.seq, match)
	return true
}

func (it *Matches) Match() *Match {
	return it.cur
}

// All drains the iterator.
func (it *Matches) All() []*Match {
	var matches []*Match
	for it.Next() {
		matches = append(matches, it.Match())
	}
	return matches
}

func (m *Matcher) newMatch(data types.Data, start int, r *fst.Result) *Match {
	info, ok := m.accepting[r.State]
	if !ok {
		info = m.root
	}
	match := &Match{
		data:     data,
		span:     r.Span,
		groups:   make(map[string]types.Span),
		bindings: r.Bindings,
		info:     info,
		next:     r.Next,
		start:    start,
	}
	for name, span := range r.Groups {
		if !span.IsEmpty() && r.Span.Contains(span) {
			match.groups[name] = span
		}
	}
	return match
}

func (match *Match) key(withGroups bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s|%s", match.span, strings.Join(match.info.path, "*"))
	if withGroups {
		names := make([]string, 0, len(match.groups))
		for name := range match.groups {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&sb, "|%s=%s", name, match.groups[name])
		}
	}
	return sb.String()
}
