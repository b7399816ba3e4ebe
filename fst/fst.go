package fst

import (
	"fmt"

	"github.com/rs/zerolog"

	"phonorule.dev/machine/featmodel"
	"phonorule.dev/machine/types"
)

type StateID int

type ArcID int

const NoState StateID = -1

// Config holds the settings a transducer is created with.
type Config struct {
	Direction types.Direction
	Filter    types.Filter
	// UseUnification matches inputs by unification instead of subsumption.
	UseUnification bool
	// Operations applies outputs to data during transduction. It defaults to DataOperations.
	Operations Operations
}

type state struct {
	accepting bool
	arcs      []ArcID
	// finals are alternative output sequences applied when a path ends in the state.
	finals [][]Output
}

// Arc is a transition. Priority is the arc's rank among the arcs leaving its source.
type Arc struct {
	ID       ArcID
	Source   StateID
	Target   StateID
	Input    Input
	Outputs  []Output
	Priority int
}

// Fst is a finite-state transducer over feature structure labels. States and arcs live in
// arenas owned by the Fst and are addressed by index.
type Fst struct {
	config Config
	states []state
	arcs   []Arc
	start  StateID
	frozen bool
	log    *zerolog.Logger
}

func New(config Config) *Fst {
	if config.Filter == nil {
		config.Filter = types.AnyFilter
	}
	if config.Operations == nil {
		config.Operations = DataOperations{Direction: config.Direction}
	}
	nop := zerolog.Nop()
	return &Fst{config: config, start: NoState, log: &nop}
}

// SetLogger routes debug traces of determinization and transduction to log.
func (f *Fst) SetLogger(log *zerolog.Logger) {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	f.log = log
}

func (f *Fst) Config() Config {
	return f.config
}

func (f *Fst) Direction() types.Direction {
	return f.config.Direction
}

func (f *Fst) CreateState() StateID {
	return f.addState(false)
}

func (f *Fst) CreateAcceptingState() StateID {
	return f.addState(true)
}

func (f *Fst) addState(accepting bool) StateID {
	f.checkNotFrozen()
	f.states = append(f.states, state{accepting: accepting})
	return StateID(len(f.states) - 1)
}

func (f *Fst) SetStartState(s StateID) {
	f.checkNotFrozen()
	f.checkState(s)
	f.start = s
}

func (f *Fst) StartState() StateID {
	return f.start
}

func (f *Fst) SetAccepting(s StateID, accepting bool) {
	f.checkNotFrozen()
	f.checkState(s)
	f.states[s].accepting = accepting
}

func (f *Fst) IsAccepting(s StateID) bool {
	return f.states[s].accepting
}

// AddFinalOutputs makes s accepting and adds an output sequence that a path ending in s
// applies before it is reported. Each sequence added yields its own result.
func (f *Fst) AddFinalOutputs(s StateID, outputs ...Output) {
	f.checkNotFrozen()
	f.checkState(s)
	f.states[s].accepting = true
	f.states[s].finals = append(f.states[s].finals, append([]Output(nil), outputs...))
}

func (f *Fst) FinalOutputs(s StateID) [][]Output {
	return f.states[s].finals
}

// finalAlternatives lists the output sequences a path ending in s may apply; a state without
// final outputs has the single empty one.
func (f *Fst) finalAlternatives(s StateID) [][]Output {
	if len(f.states[s].finals) == 0 {
		return [][]Output{nil}
	}
	return f.states[s].finals
}

func (f *Fst) hasFinalOutputs() bool {
	for s := range f.states {
		if len(f.states[s].finals) > 0 {
			return true
		}
	}
	return false
}

// withFinalArcs returns f with final outputs rewritten as epsilon arcs into a shared
// accepting state, or f itself when it has none.
func (f *Fst) withFinalArcs() *Fst {
	if !f.hasFinalOutputs() {
		return f
	}
	res := f.newLike()
	for s := range f.states {
		res.addState(f.states[s].accepting && len(f.states[s].finals) == 0)
	}
	if f.start != NoState {
		res.SetStartState(f.start)
	}
	for _, arc := range f.arcs {
		res.AddArc(arc.Source, arc.Input, arc.Target, arc.Outputs...)
	}
	final := res.CreateAcceptingState()
	for s := range f.states {
		for _, outputs := range f.states[s].finals {
			res.AddEpsilonArc(StateID(s), final, outputs...)
		}
	}
	return res
}

func (f *Fst) StateCount() int {
	return len(f.states)
}

func (f *Fst) ArcCount() int {
	return len(f.arcs)
}

// Arcs returns the arcs leaving s in priority order.
func (f *Fst) Arcs(s StateID) []Arc {
	arcs := make([]Arc, len(f.states[s].arcs))
	for i, id := range f.states[s].arcs {
		arcs[i] = f.arcs[id]
	}
	return arcs
}

func (f *Fst) Arc(id ArcID) Arc {
	return f.arcs[id]
}

// AddArc adds a transition with an explicit input and output sequence and returns its target.
func (f *Fst) AddArc(source StateID, input Input, target StateID, outputs ...Output) StateID {
	f.checkNotFrozen()
	f.checkState(source)
	f.checkState(target)
	id := ArcID(len(f.arcs))
	arc := Arc{
		ID:       id,
		Source:   source,
		Target:   target,
		Input:    input,
		Outputs:  append([]Output(nil), outputs...),
		Priority: len(f.states[source].arcs),
	}
	f.arcs = append(f.arcs, arc)
	f.states[source].arcs = append(f.states[source].arcs, id)
	return target
}

// AddIdentityArc consumes an annotation matching in and copies it to the output unchanged.
func (f *Fst) AddIdentityArc(source StateID, in *featmodel.FeatureStruct, target StateID) StateID {
	return f.AddArc(source, NewInput(in), target, Identity())
}

// AddTransducerArc consumes an annotation matching in and overwrites it with out by priority
// union. A nil out deletes the annotation.
func (f *Fst) AddTransducerArc(source StateID, in *featmodel.FeatureStruct, out *featmodel.FeatureStruct, target StateID) StateID {
	if out == nil {
		return f.AddArc(source, NewInput(in), target, Remove())
	}
	return f.AddArc(source, NewInput(in), target, PriorityUnion(out))
}

// AddReplaceArc consumes an annotation matching in and replaces its feature structure.
func (f *Fst) AddReplaceArc(source StateID, in *featmodel.FeatureStruct, out *featmodel.FeatureStruct, target StateID) StateID {
	return f.AddArc(source, NewInput(in), target, Replace(out))
}

// AddInsertArc consumes nothing and inserts a new annotation carrying out.
func (f *Fst) AddInsertArc(source StateID, out *featmodel.FeatureStruct, target StateID) StateID {
	return f.AddArc(source, Epsilon(), target, Insert(out))
}

func (f *Fst) AddEpsilonArc(source StateID, target StateID, outputs ...Output) StateID {
	return f.AddArc(source, Epsilon(), target, outputs...)
}

// Freeze makes the transducer read-only. Frozen transducers are safe for concurrent use.
func (f *Fst) Freeze() {
	for i := range f.arcs {
		arc := &f.arcs[i]
		arc.Input.freeze()
		freezeOutputs(arc.Outputs)
	}
	for s := range f.states {
		for _, outputs := range f.states[s].finals {
			freezeOutputs(outputs)
		}
	}
	f.frozen = true
}

func freezeOutputs(outputs []Output) {
	for _, out := range outputs {
		if out.FeatureStruct != nil {
			out.FeatureStruct.Freeze()
		}
	}
}

func (f *Fst) IsFrozen() bool {
	return f.frozen
}

// IsDeterministic reports whether there are no epsilon arcs and no two arcs leaving a state
// have overlapping inputs. Final outputs do not count against it.
func (f *Fst) IsDeterministic() bool {
	for s := range f.states {
		arcs := f.states[s].arcs
		for i, id := range arcs {
			a := f.arcs[id]
			if a.Input.IsEpsilon() {
				return false
			}
			for _, other := range arcs[i+1:] {
				if a.Input.Overlaps(f.arcs[other].Input) {
					return false
				}
			}
		}
	}
	return true
}

// EpsilonClosure lists the states reachable from s through zero-width arcs, s included.
func (f *Fst) EpsilonClosure(s StateID) []StateID {
	seen := map[StateID]bool{s: true}
	closure := []StateID{s}
	stack := []StateID{s}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, id := range f.states[cur].arcs {
			arc := f.arcs[id]
			if arc.Input.IsEpsilon() && !seen[arc.Target] {
				seen[arc.Target] = true
				closure = append(closure, arc.Target)
				stack = append(stack, arc.Target)
			}
		}
	}
	return closure
}

func (f *Fst) newLike() *Fst {
	res := New(f.config)
	res.log = f.log
	return res
}

func (f *Fst) checkState(s StateID) {
	if s < 0 || int(s) >= len(f.states) {
		panic(fmt.Sprintf("fst: unknown state %d", s))
	}
}

func (f *Fst) checkNotFrozen() {
	if f.frozen {
		panic("fst: transducer is frozen")
	}
}
