package access

import (
	"github.com/AlanDZQ/noisepage/blocks"
	"github.com/AlanDZQ/noisepage/layout"
	"github.com/AlanDZQ/noisepage/pkg/bitmap"
	"github.com/AlanDZQ/noisepage/types"
)

// TupleAccessStrategy reads, writes and allocates tuples inside blocks sharing the same layout.
// It keeps no per-block state, so one instance serves all the blocks of the schema concurrently.
//
// Column and slot offsets are not validated. Callers must pass column < NumAttrs and pos < NumSlots.
type TupleAccessStrategy struct {
	layout layout.BlockLayout
}

// New returns new tuple access strategy for the layout.
func New(l layout.BlockLayout) *TupleAccessStrategy {
	return &TupleAccessStrategy{
		layout: l,
	}
}

// Layout returns the layout used by the strategy.
func (s *TupleAccessStrategy) Layout() layout.BlockLayout {
	return s.layout
}

// ColumnNullBitmap returns the null bitmap of the column.
func (s *TupleAccessStrategy) ColumnNullBitmap(block *types.RawBlock, column types.ColumnID) bitmap.Bitmap {
	return s.column(block, column).NullBitmap()
}

// ColumnStart returns the packed values of the column.
func (s *TupleAccessStrategy) ColumnStart(block *types.RawBlock, column types.ColumnID) []byte {
	return s.column(block, column).ColumnStart(s.layout.AttrSize(column))
}

// AccessWithNullCheck returns the attribute of the tuple or nil if the attribute is null.
func (s *TupleAccessStrategy) AccessWithNullCheck(
	block *types.RawBlock,
	column types.ColumnID,
	pos types.SlotOffset,
) []byte {
	mb := s.column(block, column)
	if !mb.NullBitmap().Test(uint32(pos)) {
		return nil
	}
	return s.value(mb, column, pos)
}

// AccessForceNotNull marks the attribute as not null and returns it.
// It is used by the writer about to store the value.
func (s *TupleAccessStrategy) AccessForceNotNull(
	block *types.RawBlock,
	column types.ColumnID,
	pos types.SlotOffset,
) []byte {
	mb := s.column(block, column)
	// Noop if not null.
	mb.NullBitmap().Flip(uint32(pos), false)
	return s.value(mb, column, pos)
}

// SetNull marks the attribute as null. Called on the primary key column it frees the slot.
func (s *TupleAccessStrategy) SetNull(block *types.RawBlock, column types.ColumnID, pos types.SlotOffset) {
	// Noop if already null.
	s.ColumnNullBitmap(block, column).Flip(uint32(pos), true)
}

// Allocate claims the first free slot of the block. It returns false if the block is full,
// then the caller should allocate the tuple in another block.
func (s *TupleAccessStrategy) Allocate(block *types.RawBlock) (types.SlotOffset, bool) {
	presence := s.ColumnNullBitmap(block, types.PrimaryKeyColumn)
	for pos, ok := presence.NextUnset(0); ok; pos, ok = presence.NextUnset(pos + 1) {
		// Slot might be taken by another writer since it was found.
		if presence.Flip(pos, false) {
			return types.SlotOffset(pos), true
		}
	}
	return 0, false
}

// IsAllocated reports whether the slot is occupied by a tuple.
func (s *TupleAccessStrategy) IsAllocated(block *types.RawBlock, pos types.SlotOffset) bool {
	return s.ColumnNullBitmap(block, types.PrimaryKeyColumn).Test(uint32(pos))
}

func (s *TupleAccessStrategy) column(block *types.RawBlock, column types.ColumnID) blocks.MiniBlock {
	return blocks.HeaderOf(block, s.layout).Column(column)
}

func (s *TupleAccessStrategy) value(mb blocks.MiniBlock, column types.ColumnID, pos types.SlotOffset) []byte {
	size := uint32(s.layout.AttrSize(column))
	start := size * uint32(pos)
	return mb.ColumnStart(s.layout.AttrSize(column))[start : start+size : start+size]
}
