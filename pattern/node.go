package pattern

import (
	"fmt"
	"strings"

	"phonorule.dev/machine/featmodel"
	"phonorule.dev/machine/types"
)

type Kind int

const (
	ConstraintNode Kind = iota
	GroupNode
	QuantifierNode
	AlternationNode
	AnchorNode
	ExpressionNode
)

func (k Kind) String() string {
	switch k {
	case ConstraintNode:
		return "Constraint"
	case GroupNode:
		return "Group"
	case QuantifierNode:
		return "Quantifier"
	case AlternationNode:
		return "Alternation"
	case AnchorNode:
		return "Anchor"
	case ExpressionNode:
		return "Expression"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

type Side int

const (
	LeftSide Side = iota
	RightSide
)

// Infinite is the Max of an unbounded quantifier.
const Infinite = -1

// Match is the view of a candidate match that acceptability predicates inspect.
type Match interface {
	Span() types.Span
	Group(name string) (types.Span, bool)
	Bindings() featmodel.VariableBindings
	PatternPath() []string
	Data() types.Data
}

// Acceptable can reject a structurally valid match.
type Acceptable func(m Match) bool

// Node is one element of a pattern. Which fields are meaningful depends on Kind:
//
//	Constraint   FeatureStruct
//	Group        Name (empty for a plain sequence), Children
//	Quantifier   Min, Max, Greedy, one child
//	Alternation  Children, tried in order
//	Anchor       Side
//	Expression   Name, Acceptable, Children
type Node struct {
	Kind          Kind
	FeatureStruct *featmodel.FeatureStruct
	Name          string
	Min, Max      int
	Greedy        bool
	Side          Side
	Acceptable    Acceptable
	Children      []*Node
}

func Constraint(fs *featmodel.FeatureStruct) *Node {
	return &Node{Kind: ConstraintNode, FeatureStruct: fs}
}

func Group(name string, children ...*Node) *Node {
	return &Node{Kind: GroupNode, Name: name, Children: children}
}

func Quantifier(min, max int, greedy bool, child *Node) *Node {
	return &Node{Kind: QuantifierNode, Min: min, Max: max, Greedy: greedy, Children: []*Node{child}}
}

func Alternation(children ...*Node) *Node {
	return &Node{Kind: AlternationNode, Children: children}
}

func Anchor(side Side) *Node {
	return &Node{Kind: AnchorNode, Side: side}
}

func Expression(name string, acceptable Acceptable, children ...*Node) *Node {
	return &Node{Kind: ExpressionNode, Name: name, Acceptable: acceptable, Children: children}
}

// Child is the quantified node of a Quantifier.
func (n *Node) Child() *Node {
	if len(n.Children) == 0 {
		return nil
	}
	return n.Children[0]
}

// Walk visits n and its descendants depth first until visit returns false.
func (n *Node) Walk(visit func(*Node) bool) bool {
	if !visit(n) {
		return false
	}
	for _, c := range n.Children {
		if !c.Walk(visit) {
			return false
		}
	}
	return true
}

// HasSubpatterns reports whether n is an expression made only of named alternatives.
func (n *Node) HasSubpatterns() bool {
	if n.Kind != ExpressionNode || len(n.Children) == 0 {
		return false
	}
	for _, c := range n.Children {
		if c.Kind != ExpressionNode {
			return false
		}
	}
	return true
}

func (n *Node) HasVariables() bool {
	found := false
	n.Walk(func(c *Node) bool {
		if c.Kind == ConstraintNode && c.FeatureStruct.HasVariables() {
			found = true
		}
		return !found
	})
	return found
}

// Freeze freezes every constraint under n.
func (n *Node) Freeze() {
	n.Walk(func(c *Node) bool {
		if c.Kind == ConstraintNode {
			c.FeatureStruct.Freeze()
		}
		return true
	})
}

func (n *Node) validate() error {
	var err error
	n.Walk(func(c *Node) bool {
		switch c.Kind {
		case ConstraintNode:
			if c.FeatureStruct == nil {
				err = fmt.Errorf("%w: constraint without a feature structure", ErrInvalidPattern)
			}
		case QuantifierNode:
			if len(c.Children) != 1 {
				err = fmt.Errorf("%w: quantifier needs exactly one child", ErrInvalidPattern)
			} else if c.Min < 0 || (c.Max != Infinite && (c.Max < c.Min || c.Max == 0)) {
				err = fmt.Errorf("%w: {%d,%d}", ErrInvalidQuantifier, c.Min, c.Max)
			}
		case AlternationNode:
			if len(c.Children) < 2 {
				err = fmt.Errorf("%w: alternation needs two branches", ErrInvalidPattern)
			}
		}
		return err == nil
	})
	return err
}

func (n *Node) String() string {
	var sb strings.Builder
	n.write(&sb)
	return sb.String()
}

func (n *Node) write(sb *strings.Builder) {
	switch n.Kind {
	case ConstraintNode:
		sb.WriteString(n.FeatureStruct.String())
	case AnchorNode:
		if n.Side == LeftSide {
			sb.WriteString("^")
		} else {
			sb.WriteString("$")
		}
	case QuantifierNode:
		child := n.Child()
		wrap := child.Kind == GroupNode && child.Name == "" && len(child.Children) > 1
		if wrap {
			sb.WriteString("(")
		}
		child.write(sb)
		if wrap {
			sb.WriteString(")")
		}
		switch {
		case n.Min == 0 && n.Max == Infinite:
			sb.WriteString("*")
		case n.Min == 1 && n.Max == Infinite:
			sb.WriteString("+")
		case n.Min == 0 && n.Max == 1:
			sb.WriteString("?")
		case n.Max == Infinite:
			fmt.Fprintf(sb, "{%d,}", n.Min)
		default:
			fmt.Fprintf(sb, "{%d,%d}", n.Min, n.Max)
		}
		if !n.Greedy {
			sb.WriteString("?")
		}
	case AlternationNode:
		sb.WriteString("(")
		for i, c := range n.Children {
			if i > 0 {
				sb.WriteString("|")
			}
			c.write(sb)
		}
		sb.WriteString(")")
	case GroupNode, ExpressionNode:
		named := n.Name != "" && n.Kind == GroupNode
		if named {
			sb.WriteString("(?<" + n.Name + ">")
		} else if n.Kind == ExpressionNode && n.Name != "" {
			sb.WriteString(n.Name + ":")
		}
		sep := " "
		if n.HasSubpatterns() {
			sep = " | "
		}
		for i, c := range n.Children {
			if i > 0 {
				sb.WriteString(sep)
			}
			c.write(sb)
		}
		if named {
			sb.WriteString(")")
		}
	}
}
