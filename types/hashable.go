package types

type Hashable interface {
	Hash() uint64
}
