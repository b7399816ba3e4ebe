package fst

import (
	"fmt"

	"phonorule.dev/machine/featmodel"
)

type statePair struct {
	first, second StateID
}

// chainKey names the intermediate state reached after step k of an arc of the first
// transducer while the second one sits in state second.
type chainKey struct {
	arc    ArcID
	step   int
	second StateID
}

type composer struct {
	first, second *Fst
	res           *Fst
	pairs         map[statePair]StateID
	chains        map[chainKey]StateID
	queue         []statePair
}

// Compose returns a transducer that behaves like f followed by other: whatever f writes,
// other reads. Each consuming arc of other must carry exactly one action that dequeues.
//
// Final outputs of either transducer are lowered to epsilon arcs first.
func (f *Fst) Compose(other *Fst) *Fst {
	f, other = f.withFinalArcs(), other.withFinalArcs()
	c := &composer{
		first:  f,
		second: other,
		res:    f.newLike(),
		pairs:  make(map[statePair]StateID),
		chains: make(map[chainKey]StateID),
	}
	if f.start == NoState || other.start == NoState {
		return c.res
	}
	c.res.SetStartState(c.pair(statePair{f.start, other.start}))

	for len(c.queue) > 0 {
		p := c.queue[0]
		c.queue = c.queue[1:]
		src := c.pairs[p]

		for _, id := range other.states[p.second].arcs {
			arc2 := other.arcs[id]
			if !arc2.Input.IsEpsilon() {
				continue
			}
			for _, out := range arc2.Outputs {
				if out.Dequeues() {
					panic(fmt.Sprintf("fst: zero-width arc %d of the second transducer dequeues", arc2.ID))
				}
			}
			c.res.AddArc(src, arc2.Input, c.pair(statePair{p.first, arc2.Target}), arc2.Outputs...)
		}

		for _, id := range f.states[p.first].arcs {
			arc1 := f.arcs[id]
			if len(arc1.Outputs) == 0 {
				c.res.AddArc(src, arc1.Input, c.pair(statePair{arc1.Target, p.second}))
				continue
			}
			c.step(src, arc1.Input, arc1, 0, p.second)
		}
	}

	res := c.res.prune()
	f.log.Debug().
		Int("first_states", f.StateCount()).
		Int("second_states", other.StateCount()).
		Int("states", res.StateCount()).
		Msg("composed")
	return res
}

func (c *composer) pair(p statePair) StateID {
	if id, ok := c.pairs[p]; ok {
		return id
	}
	id := c.res.addState(c.first.states[p.first].accepting && c.second.states[p.second].accepting)
	c.pairs[p] = id
	c.queue = append(c.queue, p)
	return id
}

// step lowers output k of arc1 while the second transducer is in q2. The first step carries
// arc1's input; later steps are zero-width and pass through chain states.
func (c *composer) step(from StateID, input Input, arc1 Arc, k int, q2 StateID) {
	action := arc1.Outputs[k]
	target := func(next StateID) StateID {
		if k == len(arc1.Outputs)-1 {
			return c.pair(statePair{arc1.Target, next})
		}
		key := chainKey{arc: arc1.ID, step: k, second: next}
		if id, ok := c.chains[key]; ok {
			return id
		}
		id := c.res.CreateState()
		c.chains[key] = id
		c.step(id, Epsilon(), arc1, k+1, next)
		return id
	}

	if !action.Produces() {
		c.res.AddArc(from, input, target(q2), action)
		return
	}

	compare := producedFeatureStruct(action, arc1.Input)
	if compare == nil {
		return
	}
	for _, id := range c.second.states[q2].arcs {
		arc2 := c.second.arcs[id]
		if arc2.Input.IsEpsilon() {
			continue
		}
		unified, ok := featmodel.Unify(compare, arc2.Input.FeatureStruct)
		if !ok || !isSatisfiable(unified, arc2.Input.Negated) {
			continue
		}

		checkSinglePrimary(arc2)
		var outputs []Output
		for _, out := range arc2.Outputs {
			if out.IsTag() {
				outputs = append(outputs, out)
				continue
			}
			if combined, keep := combineOutputs(action, out); keep {
				outputs = append(outputs, combined)
			}
		}

		in := input
		if k == 0 && action.Kind == IdentityOutput && in.Kind == ConstraintInput {
			in = NewInput(unified, in.Negated...)
		}
		c.res.AddArc(from, in, target(arc2.Target), outputs...)
	}
}

// producedFeatureStruct is what the first transducer writes for action, as seen by the
// second transducer's input constraints.
func producedFeatureStruct(action Output, in Input) *featmodel.FeatureStruct {
	switch action.Kind {
	case IdentityOutput:
		if in.Kind != ConstraintInput {
			return nil
		}
		return in.FeatureStruct
	case PriorityUnionOutput:
		if in.Kind != ConstraintInput {
			return action.FeatureStruct
		}
		return featmodel.PriorityUnion(action.FeatureStruct, in.FeatureStruct)
	}
	return action.FeatureStruct
}

// combineOutputs merges an action of the first transducer with the primary action of the
// arc of the second transducer that read its result. keep is false when nothing remains.
func combineOutputs(first, second Output) (Output, bool) {
	switch second.Kind {
	case IdentityOutput:
		return first, true
	case PriorityUnionOutput:
		switch first.Kind {
		case IdentityOutput:
			return second, true
		case PriorityUnionOutput:
			return PriorityUnion(featmodel.PriorityUnion(second.FeatureStruct, first.FeatureStruct)), true
		case ReplaceOutput:
			return Replace(featmodel.PriorityUnion(second.FeatureStruct, first.FeatureStruct)), true
		case InsertOutput:
			return Insert(featmodel.PriorityUnion(second.FeatureStruct, first.FeatureStruct)), true
		}
	case ReplaceOutput:
		if first.Kind == InsertOutput {
			return Insert(second.FeatureStruct), true
		}
		return second, true
	case RemoveOutput:
		if first.Kind == InsertOutput {
			return Output{}, false
		}
		return second, true
	}
	panic(fmt.Sprintf("fst: cannot compose %s with %s", first, second))
}

func checkSinglePrimary(arc Arc) {
	n := 0
	for _, out := range arc.Outputs {
		if !out.IsTag() {
			if !out.Dequeues() {
				panic(fmt.Sprintf("fst: consuming arc %d of the second transducer inserts", arc.ID))
			}
			n++
		}
	}
	if n != 1 {
		panic(fmt.Sprintf("fst: consuming arc %d of the second transducer has %d actions, want 1", arc.ID, n))
	}
}

// prune drops the states that are unreachable from the start or cannot reach an accepting
// state, keeping the survivors in creation order.
func (f *Fst) prune() *Fst {
	res := f.newLike()
	if f.start == NoState {
		return res
	}

	forward := map[StateID]bool{f.start: true}
	stack := []StateID{f.start}
	reverse := make(map[StateID][]StateID)
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, id := range f.states[s].arcs {
			t := f.arcs[id].Target
			reverse[t] = append(reverse[t], s)
			if !forward[t] {
				forward[t] = true
				stack = append(stack, t)
			}
		}
	}

	live := make(map[StateID]bool)
	for s := range f.states {
		if forward[StateID(s)] && f.states[s].accepting {
			live[StateID(s)] = true
			stack = append(stack, StateID(s))
		}
	}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range reverse[s] {
			if !live[p] {
				live[p] = true
				stack = append(stack, p)
			}
		}
	}
	live[f.start] = true

	ids := make(map[StateID]StateID)
	for s := range f.states {
		if live[StateID(s)] {
			ids[StateID(s)] = res.addState(f.states[s].accepting)
			res.states[ids[StateID(s)]].finals = f.states[s].finals
		}
	}
	res.SetStartState(ids[f.start])
	for s := range f.states {
		src, ok := ids[StateID(s)]
		if !ok {
			continue
		}
		for _, id := range f.states[s].arcs {
			arc := f.arcs[id]
			if tgt, ok := ids[arc.Target]; ok {
				res.AddArc(src, arc.Input, tgt, arc.Outputs...)
			}
		}
	}
	return res
}
