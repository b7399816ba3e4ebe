package grammar

import (
	"bytes"
	_ "embed"
	"sync"
)

//go:embed phonetic.yaml
var phoneticYAML []byte

var (
	builtinOnce sync.Once
	builtin     *Grammar
)

// Builtin returns the embedded phonetic grammar: fourteen binary phonetic features with an
// unspecified default, the Type feature and an ASCII character table.
func Builtin() *Grammar {
	builtinOnce.Do(func() {
		g, err := Load(bytes.NewReader(phoneticYAML))
		if err != nil {
			panic(err)
		}
		builtin = g
	})
	return builtin
}
