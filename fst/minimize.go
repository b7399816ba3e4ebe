package fst

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"phonorule.dev/machine/featmodel"
)

var ErrNotDeterministic = errors.New("transducer is not deterministic")

// Intersect returns an acceptor for the annotation sequences both f and other accept. Arc
// inputs are unified; outputs are taken from f.
func (f *Fst) Intersect(other *Fst) *Fst {
	f, other = f.withFinalArcs(), other.withFinalArcs()
	res := f.newLike()
	if f.start == NoState || other.start == NoState {
		return res
	}
	pairs := make(map[statePair]StateID)
	var queue []statePair
	get := func(p statePair) StateID {
		if id, ok := pairs[p]; ok {
			return id
		}
		id := res.addState(f.states[p.first].accepting && other.states[p.second].accepting)
		pairs[p] = id
		queue = append(queue, p)
		return id
	}
	res.SetStartState(get(statePair{f.start, other.start}))

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		src := pairs[p]
		for _, id1 := range f.states[p.first].arcs {
			arc1 := f.arcs[id1]
			if arc1.Input.IsEpsilon() {
				res.AddArc(src, arc1.Input, get(statePair{arc1.Target, p.second}), arc1.Outputs...)
				continue
			}
			for _, id2 := range other.states[p.second].arcs {
				arc2 := other.arcs[id2]
				if arc2.Input.IsEpsilon() {
					continue
				}
				inter, ok := featmodel.Unify(arc1.Input.FeatureStruct, arc2.Input.FeatureStruct)
				if !ok {
					continue
				}
				negs := append(append([]*featmodel.FeatureStruct(nil), arc1.Input.Negated...), arc2.Input.Negated...)
				if !isSatisfiable(inter, negs) {
					continue
				}
				res.AddArc(src, NewInput(inter, negs...), get(statePair{arc1.Target, arc2.Target}), arc1.Outputs...)
			}
		}
		for _, id2 := range other.states[p.second].arcs {
			arc2 := other.arcs[id2]
			if arc2.Input.IsEpsilon() {
				res.AddArc(src, arc2.Input, get(statePair{p.first, arc2.Target}))
			}
		}
	}
	return res.prune()
}

func arcLabel(arc Arc) string {
	return arc.Input.String() + "/" + outputsString(arc.Outputs)
}

// Minimize merges the states of a deterministic transducer that no sequence of arc labels
// can tell apart. States are numbered in breadth-first order from the start.
func (f *Fst) Minimize() (*Fst, error) {
	if !f.IsDeterministic() {
		return nil, ErrNotDeterministic
	}
	res := f.newLike()
	if f.start == NoState {
		return res, nil
	}

	block := make([]int, len(f.states))
	initial := make(map[string]int)
	for s := range f.states {
		key := f.acceptance(StateID(s))
		id, ok := initial[key]
		if !ok {
			id = len(initial)
			initial[key] = id
		}
		block[s] = id
	}
	count := -1
	for {
		signatures := make(map[string]int)
		next := make([]int, len(f.states))
		for s := range f.states {
			sig := f.signature(StateID(s), block)
			id, ok := signatures[sig]
			if !ok {
				id = len(signatures)
				signatures[sig] = id
			}
			next[s] = id
		}
		block = next
		if len(signatures) == count {
			break
		}
		count = len(signatures)
	}

	ids := make(map[int]StateID)
	var order []StateID
	visit := func(s StateID) StateID {
		if id, ok := ids[block[s]]; ok {
			return id
		}
		id := res.addState(f.states[s].accepting)
		res.states[id].finals = f.states[s].finals
		ids[block[s]] = id
		order = append(order, s)
		return id
	}
	res.SetStartState(visit(f.start))
	for i := 0; i < len(order); i++ {
		s := order[i]
		src := ids[block[s]]
		for _, id := range f.states[s].arcs {
			arc := f.arcs[id]
			res.AddArc(src, arc.Input, visit(arc.Target), arc.Outputs...)
		}
	}

	f.log.Debug().Int("states", f.StateCount()).Int("minimized", res.StateCount()).Msg("minimized")
	return res, nil
}

// acceptance describes whether s accepts and with which final outputs.
func (f *Fst) acceptance(s StateID) string {
	if !f.states[s].accepting {
		return "-"
	}
	parts := make([]string, len(f.states[s].finals))
	for i, outputs := range f.states[s].finals {
		parts[i] = "(" + outputsString(outputs) + ")"
	}
	return "+" + strings.Join(parts, "")
}

func (f *Fst) signature(s StateID, block []int) string {
	parts := make([]string, 0, len(f.states[s].arcs))
	for _, id := range f.states[s].arcs {
		arc := f.arcs[id]
		parts = append(parts, fmt.Sprintf("%s->%d", arcLabel(arc), block[arc.Target]))
	}
	sort.Strings(parts)
	return fmt.Sprintf("%d|%s", block[s], strings.Join(parts, "|"))
}

// IsEquivalentTo reports whether two deterministic transducers accept the same labels with
// the same outputs. Labels are compared structurally.
func (f *Fst) IsEquivalentTo(other *Fst) bool {
	if !f.IsDeterministic() || !other.IsDeterministic() {
		return false
	}
	if f.start == NoState || other.start == NoState {
		return f.start == other.start
	}
	seen := map[statePair]bool{{f.start, other.start}: true}
	queue := []statePair{{f.start, other.start}}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if f.acceptance(p.first) != other.acceptance(p.second) {
			return false
		}
		targets := make(map[string]StateID)
		for _, id := range f.states[p.first].arcs {
			arc := f.arcs[id]
			targets[arcLabel(arc)] = arc.Target
		}
		if len(targets) != len(other.states[p.second].arcs) {
			return false
		}
		for _, id := range other.states[p.second].arcs {
			arc := other.arcs[id]
			t1, ok := targets[arcLabel(arc)]
			if !ok {
				return false
			}
			next := statePair{t1, arc.Target}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return true
}
