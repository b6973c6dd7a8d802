//go:build test

package blockstore

const (
	// DefaultMaxBlocks is the maximum number of live blocks if not configured.
	DefaultMaxBlocks = 16

	// BTreeDegree is the degree of the tree indexing resident blocks.
	BTreeDegree = 2
)
