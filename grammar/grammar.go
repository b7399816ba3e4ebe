package grammar

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"phonorule.dev/machine/featmodel"
	"phonorule.dev/machine/types"
	"phonorule.dev/machine/utils"
)

const (
	// StrRepFeature holds the written form of boundaries and segmented characters.
	StrRepFeature = "strRep"

	TypeSegment  = "Seg"
	TypeBoundary = "Bdry"
	TypeWord     = "Word"
)

var (
	ErrInvalidGrammar   = errors.New("invalid grammar")
	ErrUnknownCharacter = errors.New("unknown character")
	ErrUnrenderable     = errors.New("annotation matches no character")
)

type FeatureDecl struct {
	ID      string   `yaml:"id" json:"id"`
	Type    string   `yaml:"type" json:"type"`
	Symbols []string `yaml:"symbols" json:"symbols"`
	Default string   `yaml:"default" json:"default"`
}

type TypeDecl struct {
	ID      string   `yaml:"id" json:"id"`
	Symbols []string `yaml:"symbols" json:"symbols"`
}

type SegmentDecl struct {
	Representation string   `yaml:"rep" json:"rep"`
	Symbols        []string `yaml:"symbols" json:"symbols"`
}

// RuleDecl is a rewrite rule "target -> change / left _ right" in bracket notation; the
// rules package compiles it.
type RuleDecl struct {
	Name      string `yaml:"name" json:"name"`
	Target    string `yaml:"target" json:"target"`
	Change    string `yaml:"change" json:"change"`
	Left      string `yaml:"left" json:"left"`
	Right     string `yaml:"right" json:"right"`
	Direction string `yaml:"direction" json:"direction"`
}

// Declaration is the YAML form of a grammar.
type Declaration struct {
	Name       string        `yaml:"name" json:"name"`
	Version    string        `yaml:"version" json:"version"`
	Type       TypeDecl      `yaml:"type" json:"type"`
	Features   []FeatureDecl `yaml:"features" json:"features"`
	Segments   []SegmentDecl `yaml:"segments" json:"segments"`
	Boundaries []string      `yaml:"boundaries" json:"boundaries"`
	Rules      []RuleDecl    `yaml:"rules" json:"rules"`
}

// Character is an entry of the character table.
type Character struct {
	Representation string
	Boundary       bool
	FeatureStruct  *featmodel.FeatureStruct
}

// Grammar is a frozen feature system together with the characters and rules declared over it.
type Grammar struct {
	Name    string
	Version string
	System  *featmodel.FeatureSystem
	Type    *featmodel.Feature
	StrRep  *featmodel.Feature
	Rules   []RuleDecl

	characters []*Character
	table      utils.PrefixTree
}

func Load(r io.Reader) (*Grammar, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var decl Declaration
	if err := yaml.Unmarshal(buf, &decl); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGrammar, err)
	}
	return New(decl)
}

func LoadFile(filePath string) (*Grammar, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Load(file)
}

// New builds and freezes the feature system of decl and its character table.
func New(decl Declaration) (*Grammar, error) {
	sys := featmodel.NewFeatureSystem()
	g := &Grammar{Name: decl.Name, Version: decl.Version, System: sys, Rules: decl.Rules}

	if decl.Type.ID == "" || len(decl.Type.Symbols) == 0 {
		return nil, fmt.Errorf("%w: %q declares no type feature", ErrInvalidGrammar, decl.Name)
	}
	typeFeature, err := sys.AddSymbolicFeature(decl.Type.ID, decl.Type.Symbols...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGrammar, err)
	}
	g.Type = typeFeature
	for _, id := range []string{TypeSegment, TypeBoundary} {
		if _, ok := typeFeature.Symbol(id); !ok {
			return nil, fmt.Errorf("%w: type feature lacks %q", ErrInvalidGrammar, id)
		}
	}

	for _, fd := range decl.Features {
		var f *featmodel.Feature
		switch fd.Type {
		case "", "symbolic":
			f, err = sys.AddSymbolicFeature(fd.ID, fd.Symbols...)
		case "string":
			f, err = sys.AddStringFeature(fd.ID)
		case "complex":
			f, err = sys.AddComplexFeature(fd.ID)
		default:
			err = fmt.Errorf("feature %q has unknown type %q", fd.ID, fd.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGrammar, err)
		}
		if fd.Default != "" {
			if err := sys.SetDefault(f.ID, fd.Default); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidGrammar, err)
			}
		}
	}

	strRep, ok := sys.Feature(StrRepFeature)
	if !ok {
		if strRep, err = sys.AddStringFeature(StrRepFeature); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGrammar, err)
		}
	}
	g.StrRep = strRep
	sys.Freeze()

	for _, sd := range decl.Segments {
		fs, err := featmodel.New(sys).Symbol(TypeSegment).Symbol(sd.Symbols...).Build()
		if err != nil {
			return nil, fmt.Errorf("%w: segment %q: %v", ErrInvalidGrammar, sd.Representation, err)
		}
		if err := g.addCharacter(&Character{Representation: sd.Representation, FeatureStruct: fs}); err != nil {
			return nil, err
		}
	}
	for _, rep := range decl.Boundaries {
		fs := featmodel.New(sys).Symbol(TypeBoundary).Feature(StrRepFeature).EqualTo(rep).Value()
		if err := g.addCharacter(&Character{Representation: rep, Boundary: true, FeatureStruct: fs}); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Grammar) addCharacter(c *Character) error {
	if c.Representation == "" {
		return fmt.Errorf("%w: empty character representation", ErrInvalidGrammar)
	}
	if _, ok := g.Character(c.Representation); ok {
		return fmt.Errorf("%w: character %q declared twice", ErrInvalidGrammar, c.Representation)
	}
	c.FeatureStruct.Freeze()
	g.characters = append(g.characters, c)
	g.table.Add(c.Representation, c)
	return nil
}

// Hash identifies the grammar name and version, for cache keys.
func (g *Grammar) Hash() uint64 {
	return utils.HashString(g.Name + "@" + g.Version)
}

func (g *Grammar) Characters() []*Character {
	return append([]*Character(nil), g.characters...)
}

func (g *Grammar) Character(rep string) (*Character, bool) {
	for _, c := range g.characters {
		if c.Representation == rep {
			return c, true
		}
	}
	return nil, false
}

// LongestCharacter returns the longest character whose representation starts runes[from:]
// and the number of runes it covers.
func (g *Grammar) LongestCharacter(runes []rune, from int) (*Character, int, bool) {
	value, n, ok := g.table.LongestPrefix(runes, from)
	if !ok {
		return nil, 0, false
	}
	return value.(*Character), n, true
}

// Value is the structure a character takes in segmented data. Segments carry their written
// form in strRep.
func (g *Grammar) Value(c *Character) *featmodel.FeatureStruct {
	fs := c.FeatureStruct.Clone()
	if !c.Boundary {
		fs.AddValue(g.StrRep, featmodel.NewStringValue(c.Representation))
	}
	return fs
}

// TypeValue returns a structure holding only the given type symbol.
func (g *Grammar) TypeValue(symbol string) *featmodel.FeatureStruct {
	return featmodel.New(g.System).Symbol(symbol).Value()
}

// SegmentFilter shows segments and boundaries only.
func (g *Grammar) SegmentFilter() types.Filter {
	return types.NewDisjointFilter(
		types.NewFeatureFilter(g.TypeValue(TypeSegment)),
		types.NewFeatureFilter(g.TypeValue(TypeBoundary)),
	)
}

// Segment splits word into characters, longest representation first. Each character takes
// one offset; segments also record their written form in strRep.
func (g *Grammar) Segment(word string) (*types.AnnotatedData, error) {
	runes := []rune(word)
	var chars []*Character
	for i := 0; i < len(runes); {
		c, n, ok := g.LongestCharacter(runes, i)
		if !ok {
			return nil, fmt.Errorf("%w: %q in %q", ErrUnknownCharacter, string(runes[i]), word)
		}
		chars = append(chars, c)
		i += n
	}

	data := types.NewAnnotatedData(len(chars))
	for i, c := range chars {
		data.Annotations().AddSpan(i, i+1, g.Value(c))
	}
	return data, nil
}

// Render writes the segments and boundaries of data back as text.
func (g *Grammar) Render(data types.Data) (string, error) {
	seq := types.NewSequence(data, types.LeftToRight, g.SegmentFilter())
	var sb strings.Builder
	for i := 0; i < seq.Len(); i++ {
		ann := seq.At(i)
		c, ok := g.characterFor(ann.FeatureStruct)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnrenderable, ann)
		}
		sb.WriteString(c.Representation)
	}
	return sb.String(), nil
}

// characterFor finds the character whose structure equals fs. Segments sharing a structure
// are told apart by strRep.
func (g *Grammar) characterFor(fs *featmodel.FeatureStruct) (*Character, bool) {
	rep := ""
	if v, ok := fs.StringValue(g.StrRep); ok && len(v.Values()) == 1 {
		rep = v.Values()[0]
	}
	bare := fs.Clone()
	bare.RemoveValue(g.StrRep)

	var match *Character
	for _, c := range g.characters {
		if c.Boundary {
			if fs.ValueEquals(c.FeatureStruct) {
				return c, true
			}
			continue
		}
		if bare.ValueEquals(c.FeatureStruct) {
			if c.Representation == rep {
				return c, true
			}
			if match == nil {
				match = c
			}
		}
	}
	return match, match != nil
}
