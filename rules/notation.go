package rules

import (
	"fmt"
	"strings"

	"phonorule.dev/machine/featmodel"
	"phonorule.dev/machine/grammar"
)

const (
	wordBoundary = "#"
	null         = "0"
)

// Element is one position of a rule side: a feature bundle, a single character, or the word
// boundary.
type Element struct {
	FeatureStruct *featmodel.FeatureStruct
	// Character is set when the element was written as a character of the grammar.
	Character *grammar.Character
	Boundary  bool
}

func (e Element) String() string {
	switch {
	case e.Boundary:
		return wordBoundary
	case e.Character != nil:
		return e.Character.Representation
	}
	return e.FeatureStruct.String()
}

// Parse reads a rule side in bracket notation. Characters of the grammar stand for
// themselves, "[...]" holds feature symbols, "#" is the word boundary and "0" alone is the
// empty side. Inside brackets "αvoice" and "-αvoice" agree or disagree with variable α.
func Parse(g *grammar.Grammar, notation string) ([]Element, error) {
	notation = strings.TrimSpace(notation)
	if notation == "" || notation == null {
		return nil, nil
	}
	runes := []rune(notation)
	var elements []Element
	for i := 0; i < len(runes); {
		switch r := runes[i]; {
		case r == ' ' || r == '\t':
			i++
		case r == '#':
			elements = append(elements, Element{Boundary: true})
			i++
		case r == '[':
			end := i + 1
			for end < len(runes) && runes[end] != ']' {
				end++
			}
			if end == len(runes) {
				return nil, fmt.Errorf("%w: unclosed bracket in %q", ErrInvalidRule, notation)
			}
			fs, err := bundle(g, string(runes[i+1:end]))
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRule, notation, err)
			}
			elements = append(elements, Element{FeatureStruct: fs})
			i = end + 1
		default:
			c, n, ok := g.LongestCharacter(runes, i)
			if !ok {
				return nil, fmt.Errorf("%w: unknown character %q in %q", ErrInvalidRule, string(r), notation)
			}
			elements = append(elements, Element{FeatureStruct: c.FeatureStruct, Character: c})
			i += n
		}
	}
	return elements, nil
}

func bundle(g *grammar.Grammar, body string) (*featmodel.FeatureStruct, error) {
	b := featmodel.New(g.System)
	for _, token := range strings.FieldsFunc(body, func(r rune) bool { return r == ' ' || r == ',' }) {
		agree := true
		if strings.HasPrefix(token, "-α") {
			agree = false
			token = token[1:]
		}
		if strings.HasPrefix(token, "α") {
			name := "α"
			feature := strings.TrimPrefix(token, name)
			if agree {
				b.Feature(feature).EqualToVariable(name)
			} else {
				b.Feature(feature).NotEqualToVariable(name)
			}
			continue
		}
		b.Symbol(token)
	}
	fs, err := b.Build()
	if err != nil {
		return nil, err
	}
	fs.Freeze()
	return fs, nil
}
