package fst

import (
	"encoding/binary"
	"sort"

	"phonorule.dev/machine/featmodel"
	"phonorule.dev/machine/types"
	"phonorule.dev/machine/utils"
)

// Result is one way a transducer accepted the input.
type Result struct {
	// Output is a rewritten copy of the input data.
	Output types.Data
	// Span covers the input annotations that were consumed.
	Span     types.Span
	Groups   map[string]types.Span
	Bindings featmodel.VariableBindings
	// Priorities lists the priority of every arc taken.
	Priorities []int
	// Next is the first input annotation after the consumed stretch, nil at the end.
	Next *types.Annotation
	// State is the accepting state the path ended in.
	State StateID
}

// Group returns the input span captured by name.
func (r *Result) Group(name string) (types.Span, bool) {
	span, ok := r.Groups[name]
	return span, ok
}

// comparePriorities orders results by the priorities of the arcs they took. When one path
// is a prefix of the other the longer one comes first.
func comparePriorities(a, b []int) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) > len(b):
		return -1
	case len(a) < len(b):
		return 1
	}
	return 0
}

// outranked reports whether every path extending prefix ranks below best: the two differ at
// some shared position where prefix took a later arc.
func outranked(prefix, best []int) bool {
	for i := 0; i < len(prefix) && i < len(best); i++ {
		if prefix[i] != best[i] {
			return prefix[i] > best[i]
		}
	}
	return false
}

func sortResults(results []*Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return comparePriorities(results[i].Priorities, results[j].Priorities) < 0
	})
}

// resultKey identifies results that rewrote the input the same way.
func resultKey(r *Result, next int) uint64 {
	var parts [][]byte
	buf := make([]byte, 8)
	put := func(h uint64) {
		binary.LittleEndian.PutUint64(buf, h)
		parts = append(parts, append([]byte(nil), buf...))
	}
	for _, ann := range r.Output.Annotations().DepthFirst() {
		for _, h := range []types.Hashable{ann.Span, ann.FeatureStruct} {
			put(h.Hash())
		}
	}
	names := make([]string, 0, len(r.Groups))
	for name := range r.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		put(utils.HashString(name))
		put(r.Groups[name].Hash())
	}
	put(uint64(next))
	put(uint64(r.State))
	return utils.HashBytes(parts...)
}
