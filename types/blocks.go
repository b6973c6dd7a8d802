package types

const (
	// BlockSize is the size of every raw block handed out by the block store.
	BlockSize = 1 << 20 // 1 MiB

	// PrimaryKeyColumn is the column whose null bitmap doubles as the tuple presence bitmap of a block.
	PrimaryKeyColumn ColumnID = 0
)

// BlockID is the opaque identity of a block, stored verbatim in its header.
type BlockID uint32

// ColumnID is the position of the column inside the block layout.
type ColumnID uint16

// SlotOffset is the zero-based position of the tuple inside a block. It is uniform across all columns.
type SlotOffset uint32

// RawBlock is the fixed-size memory region backing a block.
// It is owned by the block store and only borrowed by accessors for the duration of a call.
type RawBlock [BlockSize]byte
