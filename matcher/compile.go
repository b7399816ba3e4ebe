package matcher

import (
	"phonorule.dev/machine/fst"
	"phonorule.dev/machine/pattern"
)

// expression is what an accepting state knows about the subpattern that led to it.
type expression struct {
	path        []string
	acceptables []pattern.Acceptable
}

func (e *expression) child(n *pattern.Node) *expression {
	c := &expression{path: e.path, acceptables: e.acceptables}
	if n.Name != "" {
		c.path = append(append([]string(nil), e.path...), n.Name)
	}
	if n.Acceptable != nil {
		c.acceptables = append(append([]pattern.Acceptable(nil), e.acceptables...), n.Acceptable)
	}
	return c
}

// compiler lowers a pattern to an epsilon NFA acceptor. Consuming arcs carry an identity
// output so that group tags can locate the annotations they enclose.
type compiler struct {
	f         *fst.Fst
	accepting map[fst.StateID]*expression
	groups    map[string]bool

	hasVariables bool
	lazy         bool
}

func newCompiler(f *fst.Fst) *compiler {
	return &compiler{f: f, accepting: make(map[fst.StateID]*expression), groups: make(map[string]bool)}
}

func (c *compiler) compile(root *pattern.Node) {
	start := c.f.CreateState()
	c.f.SetStartState(start)
	c.expression(root, start, &expression{})
}

func (c *compiler) expression(n *pattern.Node, s fst.StateID, parent *expression) {
	info := parent.child(n)
	if n.HasSubpatterns() {
		for _, sub := range n.Children {
			c.expression(sub, c.f.AddEpsilonArc(s, c.f.CreateState()), info)
		}
		return
	}
	end := c.sequence(n.Children, s)
	accept := c.f.AddEpsilonArc(end, c.f.CreateAcceptingState())
	c.accepting[accept] = info
}

func (c *compiler) sequence(nodes []*pattern.Node, s fst.StateID) fst.StateID {
	for _, n := range nodes {
		s = c.node(n, s)
	}
	return s
}

func (c *compiler) node(n *pattern.Node, s fst.StateID) fst.StateID {
	switch n.Kind {
	case pattern.ConstraintNode:
		if n.FeatureStruct.HasVariables() {
			c.hasVariables = true
		}
		return c.f.AddArc(s, fst.NewInput(n.FeatureStruct), c.f.CreateState(), fst.Identity())
	case pattern.AnchorNode:
		in := fst.LeftSide()
		if n.Side == pattern.RightSide {
			in = fst.RightSide()
		}
		return c.f.AddArc(s, in, c.f.CreateState())
	case pattern.GroupNode:
		if n.Name == "" {
			return c.sequence(n.Children, s)
		}
		c.groups[n.Name] = true
		s = c.f.AddEpsilonArc(s, c.f.CreateState(), fst.EnterGroup(n.Name))
		s = c.sequence(n.Children, s)
		return c.f.AddEpsilonArc(s, c.f.CreateState(), fst.ExitGroup(n.Name))
	case pattern.ExpressionNode:
		return c.sequence(n.Children, s)
	case pattern.AlternationNode:
		end := c.f.CreateState()
		for _, branch := range n.Children {
			out := c.node(branch, c.f.AddEpsilonArc(s, c.f.CreateState()))
			c.f.AddEpsilonArc(out, end)
		}
		return end
	case pattern.QuantifierNode:
		return c.quantifier(n, s)
	}
	panic("matcher: unknown pattern node " + n.Kind.String())
}

// choice adds the two ways out of an optional copy in priority order: into the copy or
// around it.
func (c *compiler) choice(s fst.StateID, greedy bool) (enter, bypass fst.StateID) {
	enter, bypass = c.f.CreateState(), c.f.CreateState()
	if greedy {
		c.f.AddEpsilonArc(s, enter)
		c.f.AddEpsilonArc(s, bypass)
	} else {
		c.f.AddEpsilonArc(s, bypass)
		c.f.AddEpsilonArc(s, enter)
	}
	return enter, bypass
}

// quantifier unrolls Min mandatory copies of the child, then either loops the last copy or
// adds Max-Min optional copies.
func (c *compiler) quantifier(n *pattern.Node, s fst.StateID) fst.StateID {
	if !n.Greedy {
		c.lazy = true
	}
	child := n.Child()
	var bypasses []fst.StateID
	current, end := s, s
	if n.Min == 0 {
		enter, bypass := c.choice(s, n.Greedy)
		bypasses = append(bypasses, bypass)
		current = enter
		end = c.node(child, enter)
	} else {
		for i := 0; i < n.Min; i++ {
			current = end
			end = c.node(child, current)
		}
	}

	if n.Max == pattern.Infinite {
		exit := c.f.CreateState()
		if n.Greedy {
			c.f.AddEpsilonArc(end, current)
			c.f.AddEpsilonArc(end, exit)
		} else {
			c.f.AddEpsilonArc(end, exit)
			c.f.AddEpsilonArc(end, current)
		}
		end = exit
	} else {
		copies := n.Max - n.Min
		if n.Min == 0 {
			copies--
		}
		for i := 0; i < copies; i++ {
			enter, bypass := c.choice(end, n.Greedy)
			bypasses = append(bypasses, bypass)
			end = c.node(child, enter)
		}
	}

	for _, bypass := range bypasses {
		c.f.AddEpsilonArc(bypass, end)
	}
	return end
}
