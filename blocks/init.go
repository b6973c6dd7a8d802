package blocks

import (
	"github.com/AlanDZQ/noisepage/layout"
	"github.com/AlanDZQ/noisepage/types"
)

// InitializeRawBlock writes the header of the block and divides the rest of it into mini blocks, one per column.
// Raw block must be zeroed, the way it is handed out by the block store. Zeroed bitmaps mean that all the slots
// are free and all the attributes are null, so they are not touched here.
func InitializeRawBlock(raw *types.RawBlock, l layout.BlockLayout, id types.BlockID) Header {
	h := HeaderOf(raw, l)
	h.fixed.V.BlockID = id
	h.fixed.V.NumRecords = 0
	h.fixed.V.NumSlots = l.NumSlots()

	offsets := h.AttrOffsets()
	offset := l.HeaderSize()
	for i := range offsets {
		offsets[i] = offset
		offset += l.MiniBlockSize(types.ColumnID(i))
	}

	*h.numAttrs() = l.NumAttrs()
	copy(h.AttrSizes(), l.AttrSizes())

	return h
}
