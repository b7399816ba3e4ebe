package fst

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"phonorule.dev/machine/featmodel"
)

var ErrNotDeterminizable = errors.New("transducer is not determinizable")

const (
	maxPendingOutputs     = 100
	maxDeterminizedStates = 10000
)

// detItem is an NFA state together with the outputs read on the way to it that the
// deterministic machine has not emitted yet.
type detItem struct {
	state   StateID
	pending []Output
}

func (item detItem) key() string {
	return fmt.Sprintf("%d:%s", item.state, outputsString(item.pending))
}

type detState struct {
	id    StateID
	items []detItem
}

type contributor struct {
	item detItem
	arc  Arc
}

// region is pos minus every negated constraint, reached through the listed contributors.
type region struct {
	pos     *featmodel.FeatureStruct
	negs    []*featmodel.FeatureStruct
	members []int
}

// Determinize builds an equivalent transducer without epsilon arcs in which no two arcs
// leaving a state accept the same annotation. Overlapping inputs are split into disjoint
// regions; outputs that cannot be decided yet are delayed until the paths agree. Those still
// pending at acceptance become final outputs of the state, one alternative per distinct
// sequence, so ambiguous paths keep their own results.
//
// Regions are exact for subsumption matching. Under unification a partially specified
// annotation may satisfy several regions, each of which then yields its own result.
func (f *Fst) Determinize() (*Fst, error) {
	res := f.newLike()
	if f.start == NoState {
		return res, nil
	}

	index := make(map[string]StateID)
	var queue []*detState
	lookup := func(items []detItem) StateID {
		key := itemsKey(items)
		if id, ok := index[key]; ok {
			return id
		}
		id := res.CreateState()
		index[key] = id
		queue = append(queue, &detState{id: id, items: items})
		return id
	}

	startItems, err := f.detClosure([]detItem{{state: f.start}})
	if err != nil {
		return nil, err
	}
	res.SetStartState(lookup(startItems))

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		var finals [][]Output
		for _, item := range cur.items {
			if !f.states[item.state].accepting {
				continue
			}
			for _, alt := range f.finalAlternatives(item.state) {
				outputs := make([]Output, 0, len(item.pending)+len(alt))
				outputs = append(outputs, item.pending...)
				outputs = append(outputs, alt...)
				if !containsOutputs(finals, outputs) {
					finals = append(finals, outputs)
				}
			}
		}
		switch {
		case len(finals) == 1 && len(finals[0]) == 0:
			res.SetAccepting(cur.id, true)
		case len(finals) > 0:
			for _, outputs := range finals {
				res.AddFinalOutputs(cur.id, outputs...)
			}
		}

		var contributors []contributor
		for _, item := range cur.items {
			for _, id := range f.states[item.state].arcs {
				arc := f.arcs[id]
				if !arc.Input.IsEpsilon() {
					contributors = append(contributors, contributor{item: item, arc: arc})
				}
			}
		}

		for _, r := range partition(contributors) {
			targets := make([]detItem, 0, len(r.members))
			for _, m := range r.members {
				c := contributors[m]
				pending := make([]Output, 0, len(c.item.pending)+len(c.arc.Outputs))
				pending = append(pending, c.item.pending...)
				pending = append(pending, c.arc.Outputs...)
				targets = append(targets, detItem{state: c.arc.Target, pending: pending})
			}
			closed, err := f.detClosure(targets)
			if err != nil {
				return nil, err
			}
			prefix, rest := splitCommonPrefix(closed)
			res.AddArc(cur.id, NewInput(r.pos, r.negs...), lookup(rest), prefix...)
		}

		if res.StateCount() > maxDeterminizedStates {
			f.log.Debug().Int("states", res.StateCount()).Msg("determinization gave up: too many states")
			return nil, fmt.Errorf("%w: more than %d states", ErrNotDeterminizable, maxDeterminizedStates)
		}
	}

	f.log.Debug().
		Int("nfa_states", f.StateCount()).
		Int("dfa_states", res.StateCount()).
		Msg("determinized")
	return res, nil
}

// TryDeterminize returns the deterministic transducer, or false when there is none.
func (f *Fst) TryDeterminize() (*Fst, bool) {
	res, err := f.Determinize()
	if err != nil {
		return nil, false
	}
	return res, true
}

func (f *Fst) IsDeterminizable() bool {
	_, ok := f.TryDeterminize()
	return ok
}

// detClosure follows epsilon arcs, collecting their outputs as pending. Anchors cannot be
// decided without the data, so they make the transducer non-determinizable.
func (f *Fst) detClosure(items []detItem) ([]detItem, error) {
	seen := make(map[string]bool)
	var result []detItem
	stack := append([]detItem(nil), items...)
	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		key := item.key()
		if seen[key] {
			continue
		}
		seen[key] = true
		if len(item.pending) > maxPendingOutputs {
			f.log.Debug().Int("pending", len(item.pending)).Msg("determinization gave up: outputs never resolve")
			return nil, fmt.Errorf("%w: more than %d delayed outputs", ErrNotDeterminizable, maxPendingOutputs)
		}
		result = append(result, item)

		for _, id := range f.states[item.state].arcs {
			arc := f.arcs[id]
			if arc.Input.IsAnchor() {
				return nil, fmt.Errorf("%w: anchor at state %d", ErrNotDeterminizable, item.state)
			}
			if arc.Input.Kind != EpsilonInput {
				continue
			}
			pending := make([]Output, 0, len(item.pending)+len(arc.Outputs))
			pending = append(pending, item.pending...)
			pending = append(pending, arc.Outputs...)
			stack = append(stack, detItem{state: arc.Target, pending: pending})
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].key() < result[j].key()
	})
	return result, nil
}

// partition splits the contributor inputs into pairwise-disjoint regions.
func partition(contributors []contributor) []region {
	var regions []region
	for i, c := range contributors {
		rest := region{pos: c.arc.Input.FeatureStruct, members: []int{i}}
		for _, neg := range c.arc.Input.Negated {
			rest.negs = addNegation(rest.pos, rest.negs, neg)
		}

		var next []region
		for _, r := range regions {
			inter, ok := featmodel.Unify(r.pos, rest.pos)
			if !ok {
				next = append(next, r)
				continue
			}
			var interNegs []*featmodel.FeatureStruct
			for _, neg := range append(append([]*featmodel.FeatureStruct(nil), r.negs...), rest.negs...) {
				interNegs = addNegation(inter, interNegs, neg)
			}
			if isSatisfiable(inter, interNegs) {
				members := append(append([]int(nil), r.members...), i)
				next = append(next, region{pos: inter, negs: interNegs, members: members})
			}

			rNegs := addNegation(r.pos, append([]*featmodel.FeatureStruct(nil), r.negs...), rest.pos)
			if isSatisfiable(r.pos, rNegs) {
				next = append(next, region{pos: r.pos, negs: rNegs, members: r.members})
			}
			rest.negs = addNegation(rest.pos, rest.negs, r.pos)
		}
		if isSatisfiable(rest.pos, rest.negs) {
			next = append(next, rest)
		}
		regions = next
	}
	return regions
}

// addNegation appends neg unless it cannot exclude anything from pos or is already present.
func addNegation(pos *featmodel.FeatureStruct, negs []*featmodel.FeatureStruct, neg *featmodel.FeatureStruct) []*featmodel.FeatureStruct {
	if _, ok := featmodel.Unify(pos, neg); !ok {
		return negs
	}
	for _, n := range negs {
		if n.ValueEquals(neg) {
			return negs
		}
	}
	return append(negs, neg)
}

func splitCommonPrefix(items []detItem) ([]Output, []detItem) {
	if len(items) == 0 {
		return nil, items
	}
	n := len(items[0].pending)
	for _, item := range items[1:] {
		if len(item.pending) < n {
			n = len(item.pending)
		}
		for k := 0; k < n; k++ {
			if !item.pending[k].Equals(items[0].pending[k]) {
				n = k
				break
			}
		}
	}
	if n == 0 {
		return nil, items
	}
	prefix := append([]Output(nil), items[0].pending[:n]...)
	rest := make([]detItem, len(items))
	for i, item := range items {
		rest[i] = detItem{state: item.state, pending: item.pending[n:]}
	}
	sort.SliceStable(rest, func(i, j int) bool {
		return rest[i].key() < rest[j].key()
	})
	return prefix, dedupeItems(rest)
}

func dedupeItems(items []detItem) []detItem {
	out := items[:0]
	var last string
	for i, item := range items {
		key := item.key()
		if i > 0 && key == last {
			continue
		}
		out = append(out, item)
		last = key
	}
	return out
}

func itemsKey(items []detItem) string {
	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = item.key()
	}
	return strings.Join(keys, "|")
}

func containsOutputs(list [][]Output, outputs []Output) bool {
	for _, o := range list {
		if outputsEqual(o, outputs) {
			return true
		}
	}
	return false
}
