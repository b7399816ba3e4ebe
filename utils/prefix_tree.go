package utils

type PrefixTreeNode struct {
	Value    interface{}
	HasValue bool
	Children map[rune]*PrefixTreeNode
}

// PrefixTree maps rune sequences to values and supports longest-prefix lookups.
type PrefixTree struct {
	Root PrefixTreeNode
}

func (pTree *PrefixTree) Add(key string, value interface{}) {
	if len(key) == 0 {
		return
	}

	node := &pTree.Root
	for _, r := range key {
		if node.Children == nil {
			node.Children = make(map[rune]*PrefixTreeNode)
		}
		childNode, isOk := node.Children[r]
		if !isOk {
			childNode = &PrefixTreeNode{}
			node.Children[r] = childNode
		}
		node = childNode
	}

	node.Value = value
	node.HasValue = true
}

// LongestPrefix finds the longest key that is a prefix of runes[from:] and
// returns its value along with the number of runes it covers.
func (pTree *PrefixTree) LongestPrefix(runes []rune, from int) (interface{}, int, bool) {
	node := &pTree.Root
	var value interface{}
	length := 0
	found := false
	for i := from; i < len(runes); i++ {
		childNode, isOk := node.Children[runes[i]]
		if !isOk {
			break
		}
		node = childNode
		if node.HasValue {
			value = node.Value
			length = i - from + 1
			found = true
		}
	}
	return value, length, found
}
