package fst

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ToGraphViz writes the states reachable from the start state as a GraphViz digraph. Final
// outputs are drawn as epsilon arcs into an extra accepting state.
func (f *Fst) ToGraphViz(w io.Writer) error {
	f = f.withFinalArcs()
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("digraph G {\n"); err != nil {
		return err
	}

	if f.start != NoState {
		visited := map[StateID]bool{f.start: true}
		stack := []StateID{f.start}
		for len(stack) > 0 {
			s := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if _, err := fmt.Fprintf(bw, "  %d [%s];\n", s, f.stateAttributes(s)); err != nil {
				return err
			}
			for _, id := range f.states[s].arcs {
				arc := f.arcs[id]
				label := fmt.Sprintf("%s,%d:%s", arc.Input, arc.Input.EnqueueCount(), outputsString(arc.Outputs))
				label = strings.ReplaceAll(label, `"`, `\"`)
				if _, err := fmt.Fprintf(bw, "  %d -> %d [label=\"%s\"];\n", s, arc.Target, label); err != nil {
					return err
				}
				if !visited[arc.Target] {
					visited[arc.Target] = true
					stack = append(stack, arc.Target)
				}
			}
		}
	}

	if _, err := bw.WriteString("}\n"); err != nil {
		return err
	}
	return bw.Flush()
}

func (f *Fst) stateAttributes(s StateID) string {
	shape, color := "circle", "black"
	if s == f.start {
		shape, color = "diamond", "green"
	} else if f.states[s].accepting {
		color = "red"
	}
	attrs := fmt.Sprintf(`shape="%s", color="%s"`, shape, color)
	if f.states[s].accepting {
		attrs += `, peripheries="2"`
	}
	return attrs
}
