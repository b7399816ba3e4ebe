package pattern

import (
	"errors"
	"fmt"

	"phonorule.dev/machine/featmodel"
	"phonorule.dev/machine/types"
)

var (
	ErrInvalidPattern    = errors.New("invalid pattern")
	ErrInvalidQuantifier = errors.New("invalid quantifier")
)

// Pattern is a compiled-ready pattern: a root expression plus the options a matcher takes
// by default. Patterns are not modified after Build.
type Pattern struct {
	Root            *Node
	Direction       types.Direction
	Filter          types.Filter
	AnchoredToStart bool
	AnchoredToEnd   bool
}

func (p *Pattern) Name() string {
	return p.Root.Name
}

func (p *Pattern) String() string {
	return p.Root.String()
}

// Builder assembles a pattern with chained calls. Quantifiers apply to the node added last
// and Or joins the next node with it. Like featmodel.Builder, the first error is kept and
// reported by Build.
//
//	p, err := pattern.New().
//		Annotation(onset).ZeroOrMore().
//		Annotation(nucleus).
//		Build()
type Builder struct {
	name       string
	nodes      []*Node
	acceptable Acceptable

	// alt is the index in nodes of the alternation that Or is extending, or -1.
	alt int
	or  bool
	err error

	dir         types.Direction
	filter      types.Filter
	startAnchor bool
	endAnchor   bool
}

func New() *Builder {
	return &Builder{alt: -1}
}

// Named starts a pattern whose matches report name in their pattern path.
func Named(name string) *Builder {
	return &Builder{name: name, alt: -1}
}

func (b *Builder) sub() *Builder {
	return &Builder{alt: -1}
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (b *Builder) add(n *Node) *Builder {
	if b.err != nil {
		return b
	}
	if !b.or {
		b.nodes = append(b.nodes, n)
		b.alt = -1
		return b
	}
	b.or = false
	last := len(b.nodes) - 1
	if b.alt == last {
		b.nodes[last].Children = append(b.nodes[last].Children, n)
		return b
	}
	b.nodes[last] = Alternation(b.nodes[last], n)
	b.alt = last
	return b
}

// Annotation matches one annotation whose feature structure satisfies fs.
func (b *Builder) Annotation(fs *featmodel.FeatureStruct) *Builder {
	if fs == nil {
		return b.fail(fmt.Errorf("%w: nil feature structure", ErrInvalidPattern))
	}
	return b.add(Constraint(fs))
}

// Constraint is Annotation for a structure still being built; its build error becomes the
// pattern's.
func (b *Builder) Constraint(fb *featmodel.Builder) *Builder {
	fs, err := fb.Build()
	if err != nil {
		return b.fail(fmt.Errorf("%w: %v", ErrInvalidPattern, err))
	}
	return b.add(Constraint(fs))
}

// Group adds a capturing group built by fn. An empty name groups without capturing.
func (b *Builder) Group(name string, fn func(g *Builder)) *Builder {
	g := b.sub()
	fn(g)
	if g.err != nil {
		return b.fail(g.err)
	}
	if g.or {
		return b.fail(fmt.Errorf("%w: Or without a following node in group %q", ErrInvalidPattern, name))
	}
	return b.add(Group(name, g.nodes...))
}

// Subpattern adds a named alternative expression. A pattern made only of subpatterns
// matches any of them and reports which one in the match's pattern path.
func (b *Builder) Subpattern(name string, fn func(s *Builder)) *Builder {
	s := b.sub()
	s.name = name
	fn(s)
	if s.err != nil {
		return b.fail(s.err)
	}
	return b.add(Expression(name, s.acceptable, s.nodes...))
}

// Acceptable sets the predicate of the pattern or subpattern being built.
func (b *Builder) Acceptable(acceptable Acceptable) *Builder {
	b.acceptable = acceptable
	return b
}

// Or makes the next node an alternative to the previous one.
func (b *Builder) Or() *Builder {
	if len(b.nodes) == 0 {
		return b.fail(fmt.Errorf("%w: Or needs a preceding node", ErrInvalidPattern))
	}
	b.or = true
	return b
}

func (b *Builder) LeftSideOfInput() *Builder {
	return b.add(Anchor(LeftSide))
}

func (b *Builder) RightSideOfInput() *Builder {
	return b.add(Anchor(RightSide))
}

func (b *Builder) quantify(min, max int, greedy bool) *Builder {
	if b.err != nil {
		return b
	}
	if len(b.nodes) == 0 || b.or {
		return b.fail(fmt.Errorf("%w: nothing to quantify", ErrInvalidQuantifier))
	}
	if min < 0 || (max != Infinite && (max < min || max == 0)) {
		return b.fail(fmt.Errorf("%w: {%d,%d}", ErrInvalidQuantifier, min, max))
	}
	last := len(b.nodes) - 1
	target := &b.nodes[last]
	if b.alt == last {
		alt := b.nodes[last]
		target = &alt.Children[len(alt.Children)-1]
	}
	*target = Quantifier(min, max, greedy, *target)
	return b
}

func (b *Builder) ZeroOrMore() *Builder {
	return b.quantify(0, Infinite, true)
}

func (b *Builder) OneOrMore() *Builder {
	return b.quantify(1, Infinite, true)
}

func (b *Builder) Optional() *Builder {
	return b.quantify(0, 1, true)
}

// Range repeats the previous node between min and max times; max may be Infinite.
func (b *Builder) Range(min, max int) *Builder {
	return b.quantify(min, max, true)
}

func (b *Builder) LazyZeroOrMore() *Builder {
	return b.quantify(0, Infinite, false)
}

func (b *Builder) LazyOneOrMore() *Builder {
	return b.quantify(1, Infinite, false)
}

func (b *Builder) LazyOptional() *Builder {
	return b.quantify(0, 1, false)
}

func (b *Builder) LazyRange(min, max int) *Builder {
	return b.quantify(min, max, false)
}

func (b *Builder) Direction(dir types.Direction) *Builder {
	b.dir = dir
	return b
}

func (b *Builder) Filter(filter types.Filter) *Builder {
	b.filter = filter
	return b
}

func (b *Builder) AnchoredToStart() *Builder {
	b.startAnchor = true
	return b
}

func (b *Builder) AnchoredToEnd() *Builder {
	b.endAnchor = true
	return b
}

func (b *Builder) Err() error {
	return b.err
}

// Build freezes the constraints and returns the pattern.
func (b *Builder) Build() (*Pattern, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.or {
		return nil, fmt.Errorf("%w: Or without a following node", ErrInvalidPattern)
	}
	root := Expression(b.name, b.acceptable, b.nodes...)
	if err := root.validate(); err != nil {
		return nil, err
	}
	root.Freeze()
	filter := b.filter
	if filter == nil {
		filter = types.AnyFilter
	}
	return &Pattern{
		Root:            root,
		Direction:       b.dir,
		Filter:          filter,
		AnchoredToStart: b.startAnchor,
		AnchoredToEnd:   b.endAnchor,
	}, nil
}

// Value is Build for patterns known to be valid. It panics on error.
func (b *Builder) Value() *Pattern {
	p, err := b.Build()
	if err != nil {
		panic(err)
	}
	return p
}
