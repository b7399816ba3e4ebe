package matcher

import (
	"sort"

	"phonorule.dev/machine/featmodel"
	"phonorule.dev/machine/pattern"
	"phonorule.dev/machine/types"
)

// Match is one occurrence of a pattern. Groups that did not take part in the match, or
// matched nothing, are absent.
type Match struct {
	data     types.Data
	span     types.Span
	groups   map[string]types.Span
	bindings featmodel.VariableBindings
	info     *expression
	next     *types.Annotation
	start    int
}

var _ pattern.Match = (*Match)(nil)

func (match *Match) Span() types.Span {
	return match.span
}

// Group returns the span captured by name. EntireMatch always succeeds.
func (match *Match) Group(name string) (types.Span, bool) {
	if name == EntireMatch {
		return match.span, true
	}
	span, ok := match.groups[name]
	return span, ok
}

// Groups lists the names of the groups that captured something, sorted.
func (match *Match) Groups() []string {
	names := make([]string, 0, len(match.groups))
	for name := range match.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (match *Match) Bindings() featmodel.VariableBindings {
	return match.bindings
}

// PatternPath names the nested subpatterns that produced the match, outermost first.
func (match *Match) PatternPath() []string {
	return append([]string(nil), match.info.path...)
}

func (match *Match) Data() types.Data {
	return match.data
}

// Next is the first annotation after the match, nil when the match runs to the end.
func (match *Match) Next() *types.Annotation {
	return match.next
}

func (match *Match) acceptable() bool {
	for _, ok := range match.info.acceptables {
		if !ok(match) {
			return false
		}
	}
	return true
}
