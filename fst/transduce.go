package fst

import (
	"fmt"

	"phonorule.dev/machine/featmodel"
	"phonorule.dev/machine/types"
)

// traversal is one branch of a transduction in progress.
type traversal struct {
	state StateID
	index int

	// output is a clone of the input data; owned is false while other branches may still
	// read it, in which case it is copied before the first write.
	output  types.Data
	owned   bool
	mapping map[*types.Annotation]*types.Annotation
	cursor  *types.Annotation

	queue         []*types.Annotation
	first, last   *types.Annotation
	lastDequeued  *types.Annotation
	pendingGroups []string
	groupStarts   map[string]*types.Annotation
	groups        map[string]types.Span

	bindings   featmodel.VariableBindings
	priorities []int
	// visited holds the states entered through zero-width arcs since the last annotation
	// was consumed.
	visited map[StateID]bool
}

func (t *traversal) branch() *traversal {
	c := *t
	c.queue = append([]*types.Annotation(nil), t.queue...)
	c.pendingGroups = append([]string(nil), t.pendingGroups...)
	c.groupStarts = make(map[string]*types.Annotation, len(t.groupStarts))
	for k, v := range t.groupStarts {
		c.groupStarts[k] = v
	}
	c.groups = make(map[string]types.Span, len(t.groups))
	for k, v := range t.groups {
		c.groups[k] = v
	}
	c.bindings = t.bindings.Clone()
	c.priorities = append([]int(nil), t.priorities...)
	c.visited = make(map[StateID]bool, len(t.visited))
	for k, v := range t.visited {
		c.visited[k] = v
	}
	return &c
}

// own copies the output before the branch writes to it.
func (t *traversal) own() {
	if t.owned {
		return
	}
	clone := t.output.Clone()
	remap := types.MapAnnotations(t.output, clone)
	mapping := make(map[*types.Annotation]*types.Annotation, len(t.mapping))
	for in, out := range t.mapping {
		if c, ok := remap[out]; ok {
			mapping[in] = c
		}
	}
	t.output = clone
	t.mapping = mapping
	t.cursor = remap[t.cursor]
	t.owned = true
}

// successor is an arc that can be taken from a traversal, with the sequence position it
// consumes or -1.
type successor struct {
	arc      Arc
	consume  int
	bindings featmodel.VariableBindings
	skip     bool
}

// Transduce runs the transducer over data from start, or from the beginning when start is
// nil, and returns the preferred result. Without startAnchor later start positions are
// tried until one succeeds; with endAnchor a result must consume everything to the end.
func (f *Fst) Transduce(data types.Data, start *types.Annotation, startAnchor bool, endAnchor bool, useDefaults bool) (*Result, bool) {
	results := f.TransduceAll(data, start, startAnchor, endAnchor, useDefaults)
	if len(results) == 0 {
		return nil, false
	}
	return results[0], true
}

// TransduceAll returns every distinct result at the first start position that has any,
// best first.
func (f *Fst) TransduceAll(data types.Data, start *types.Annotation, startAnchor bool, endAnchor bool, useDefaults bool) []*Result {
	if f.start == NoState {
		return nil
	}
	seq := types.NewSequence(data, f.config.Direction, f.config.Filter)
	from := 0
	if start != nil {
		if from = seq.IndexOf(start); from < 0 {
			from = seq.IndexAt(start.GetStart(f.config.Direction))
		}
	}
	for i := from; i <= seq.Len(); i++ {
		results := f.run(data, seq, i, endAnchor, useDefaults, nil)
		if len(results) > 0 || startAnchor {
			return results
		}
	}
	return nil
}

// TransduceAt returns every distinct result that starts at position index of the
// filter-visible sequence, best first. index may be the position past the last annotation.
func (f *Fst) TransduceAt(data types.Data, index int, endAnchor bool, useDefaults bool) []*Result {
	if f.start == NoState {
		return nil
	}
	seq := types.NewSequence(data, f.config.Direction, f.config.Filter)
	if index < 0 || index > seq.Len() {
		return nil
	}
	return f.run(data, seq, index, endAnchor, useDefaults, nil)
}

// TransduceFirst returns the best result that starts at position index and that accept
// approves; it is the first approved entry of TransduceAt. Branches that can only lead to
// lower ranked results than the best one found so far are not explored.
func (f *Fst) TransduceFirst(data types.Data, index int, endAnchor bool, useDefaults bool, accept func(*Result) bool) (*Result, bool) {
	if f.start == NoState {
		return nil, false
	}
	seq := types.NewSequence(data, f.config.Direction, f.config.Filter)
	if index < 0 || index > seq.Len() {
		return nil, false
	}
	if accept == nil {
		accept = func(*Result) bool { return true }
	}
	results := f.run(data, seq, index, endAnchor, useDefaults, accept)
	if len(results) == 0 {
		return nil, false
	}
	return results[0], true
}

// run collects every distinct result, or with first set only the best result first approves.
func (f *Fst) run(data types.Data, seq *types.Sequence, startIndex int, endAnchor bool, useDefaults bool, first func(*Result) bool) []*Result {
	output := data.Clone()
	mapping := types.MapAnnotations(data, output)
	init := &traversal{
		state:       f.start,
		index:       startIndex,
		output:      output,
		owned:       true,
		mapping:     mapping,
		groupStarts: make(map[string]*types.Annotation),
		groups:      make(map[string]types.Span),
		bindings:    featmodel.NewVariableBindings(),
		visited:     map[StateID]bool{f.start: true},
	}
	if startIndex > 0 {
		init.cursor = mapping[seq.At(startIndex-1)]
	}

	var results []*Result
	var best *Result
	seen := make(map[uint64]bool)
	steps := 0
	stack := []*traversal{init}
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if best != nil && outranked(t.priorities, best.Priorities) {
			continue
		}
		steps++

		if f.states[t.state].accepting && (!endAnchor || seq.AtEnd(t.index)) {
			t.owned = false
			for _, done := range f.finish(t, seq) {
				res := f.result(done, seq, startIndex)
				if first != nil {
					if (best == nil || comparePriorities(res.Priorities, best.Priorities) < 0) && first(res) {
						best = res
					}
					continue
				}
				key := resultKey(res, done.index)
				if !seen[key] {
					seen[key] = true
					results = append(results, res)
				}
			}
		}

		succs := f.successors(t, seq, useDefaults)
		if len(succs) > 1 {
			t.owned = false
		}
		for i := len(succs) - 1; i >= 0; i-- {
			next := t
			if len(succs) > 1 {
				next = t.branch()
			}
			if f.advance(next, seq, succs[i]) {
				stack = append(stack, next)
			}
		}
	}

	if best != nil {
		results = []*Result{best}
	}
	sortResults(results)
	f.log.Debug().
		Int("start", startIndex).
		Int("steps", steps).
		Int("results", len(results)).
		Msg("transduced")
	return results
}

func (f *Fst) successors(t *traversal, seq *types.Sequence, useDefaults bool) []successor {
	var succs []successor
	dir := f.config.Direction
	for _, id := range f.states[t.state].arcs {
		arc := f.arcs[id]
		switch arc.Input.Kind {
		case EpsilonInput:
			if !t.visited[arc.Target] {
				succs = append(succs, successor{arc: arc, consume: -1})
			}
		case LeftSideInput, RightSideInput:
			atLeft := seq.AtStart(t.index)
			atRight := seq.AtEnd(t.index)
			if dir == types.RightToLeft {
				atLeft, atRight = atRight, atLeft
			}
			ok := (arc.Input.Kind == LeftSideInput && atLeft) || (arc.Input.Kind == RightSideInput && atRight)
			if ok && !t.visited[arc.Target] {
				succs = append(succs, successor{arc: arc, consume: -1})
			}
		case ConstraintInput:
			for _, j := range seq.Candidates(t.index) {
				bindings := t.bindings.Clone()
				if arc.Input.Matches(seq.At(j).FeatureStruct, f.config.UseUnification, useDefaults, bindings) {
					succs = append(succs, successor{arc: arc, consume: j, bindings: bindings})
				}
			}
		}
	}
	for _, j := range seq.Candidates(t.index) {
		if seq.At(j).Optional {
			succs = append(succs, successor{consume: j, skip: true})
		}
	}
	return succs
}

// finish applies the final outputs of the accepting state t is in. Each alternative gets its
// own branch, ranked by its position among the alternatives.
func (f *Fst) finish(t *traversal, seq *types.Sequence) []*traversal {
	finals := f.states[t.state].finals
	if len(finals) == 0 {
		return []*traversal{t}
	}
	var done []*traversal
	for i, outputs := range finals {
		c := t.branch()
		c.priorities = append(c.priorities, i)
		ok := true
		for _, out := range outputs {
			if ok = f.apply(c, seq, out); !ok {
				break
			}
		}
		if ok {
			done = append(done, c)
		}
	}
	return done
}

// advance applies s to t and reports whether the branch is still viable.
func (f *Fst) advance(t *traversal, seq *types.Sequence, s successor) bool {
	if s.skip {
		t.index = seq.NextIndex(s.consume)
		t.visited = map[StateID]bool{t.state: true}
		return true
	}
	if s.consume >= 0 {
		ann := seq.At(s.consume)
		t.queue = append(t.queue, ann)
		if t.first == nil {
			t.first = ann
		}
		t.last = ann
		t.index = seq.NextIndex(s.consume)
		t.bindings = s.bindings
		t.visited = map[StateID]bool{s.arc.Target: true}
	} else {
		t.visited[s.arc.Target] = true
	}
	t.state = s.arc.Target
	t.priorities = append(t.priorities, s.arc.Priority)
	for _, out := range s.arc.Outputs {
		if !f.apply(t, seq, out) {
			return false
		}
	}
	return true
}

func (f *Fst) apply(t *traversal, seq *types.Sequence, out Output) bool {
	ops := f.config.Operations
	switch out.Kind {
	case EnterGroupOutput:
		t.pendingGroups = append(t.pendingGroups, out.Group)
		return true
	case ExitGroupOutput:
		t.groups[out.Group] = t.groupSpan(out.Group, seq)
		pending := t.pendingGroups[:0]
		for _, name := range t.pendingGroups {
			if name != out.Group {
				pending = append(pending, name)
			}
		}
		t.pendingGroups = pending
		return true
	case InsertOutput:
		t.own()
		fs := featmodel.ApplyBindings(out.FeatureStruct, t.bindings)
		span := ops.Insert(t.output, t.cursor, fs)
		t.cursor = findInserted(t.output, span, fs)
		return true
	}

	if len(t.queue) == 0 {
		return false
	}
	in := t.queue[0]
	t.queue = t.queue[1:]
	for _, name := range t.pendingGroups {
		t.groupStarts[name] = in
	}
	t.pendingGroups = t.pendingGroups[:0]
	t.lastDequeued = in

	switch out.Kind {
	case IdentityOutput:
		t.cursor = t.mapping[in]
	case ReplaceOutput:
		t.own()
		target := t.mapping[in]
		target.FeatureStruct = featmodel.ApplyBindings(out.FeatureStruct, t.bindings)
		ops.Replace(t.output, target)
		t.cursor = target
	case PriorityUnionOutput:
		t.own()
		target := t.mapping[in]
		fs := target.FeatureStruct.Clone()
		fs.PriorityUnion(featmodel.ApplyBindings(out.FeatureStruct, t.bindings))
		target.FeatureStruct = fs
		ops.Replace(t.output, target)
		t.cursor = target
	case RemoveOutput:
		t.own()
		target := t.mapping[in]
		ops.Remove(t.output, target.Span)
	default:
		panic(fmt.Sprintf("fst: unknown output kind %d", out.Kind))
	}
	return true
}

// groupSpan covers the input annotations dequeued since the group was entered. A group that
// dequeued nothing is empty and sits at the current position.
func (t *traversal) groupSpan(name string, seq *types.Sequence) types.Span {
	start, ok := t.groupStarts[name]
	for _, pending := range t.pendingGroups {
		if pending == name {
			ok = false
		}
	}
	if !ok || t.lastDequeued == nil {
		pos := seq.Offset(t.index)
		return types.NewSpan(pos, pos)
	}
	return coverSpan(start.Span, t.lastDequeued.Span)
}

func coverSpan(a, b types.Span) types.Span {
	begin, end := a.Begin, a.End
	if b.Begin < begin {
		begin = b.Begin
	}
	if b.End > end {
		end = b.End
	}
	return types.NewSpan(begin, end)
}

// findInserted locates the annotation carrying fs, falling back to the first with span.
func findInserted(data types.Data, span types.Span, fs *featmodel.FeatureStruct) *types.Annotation {
	for _, ann := range data.Annotations().DepthFirst() {
		if ann.FeatureStruct == fs {
			return ann
		}
	}
	ann, _ := data.Annotations().Find(span)
	return ann
}

func (f *Fst) result(t *traversal, seq *types.Sequence, startIndex int) *Result {
	var span types.Span
	if t.first == nil {
		pos := seq.Offset(startIndex)
		span = types.NewSpan(pos, pos)
	} else {
		span = coverSpan(t.first.Span, t.last.Span)
	}
	res := &Result{
		Output:     t.output,
		Span:       span,
		Groups:     make(map[string]types.Span, len(t.groups)),
		Bindings:   t.bindings.Clone(),
		Priorities: append([]int(nil), t.priorities...),
		State:      t.state,
	}
	for k, v := range t.groups {
		res.Groups[k] = v
	}
	if t.index < seq.Len() {
		res.Next = seq.At(t.index)
	}
	return res
}
