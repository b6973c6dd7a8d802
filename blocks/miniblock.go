package blocks

import (
	"github.com/AlanDZQ/noisepage/pkg/bitmap"
	"github.com/AlanDZQ/noisepage/types"
)

// MiniBlock is the view of a single column stored inside a block:
//
//	| null bitmap (padded to byte) | val 0 | val 1 | ... | val num slots - 1 |
//
// Zero in the bitmap means null.
type MiniBlock struct {
	raw      *types.RawBlock
	offset   uint32
	numSlots uint32
}

func miniBlockAt(raw *types.RawBlock, offset, numSlots uint32) MiniBlock {
	return MiniBlock{
		raw:      raw,
		offset:   offset,
		numSlots: numSlots,
	}
}

// NullBitmap returns the null bitmap of the column.
func (mb MiniBlock) NullBitmap() bitmap.Bitmap {
	b, err := bitmap.View(mb.raw[:], mb.offset, mb.numSlots)
	if err != nil {
		panic(err)
	}
	return b
}

// ColumnStart returns the packed values of the column. Value at slot pos starts at pos * attribute size.
func (mb MiniBlock) ColumnStart(attrSize uint8) []byte {
	start := mb.offset + bitmap.Size(mb.numSlots)
	return mb.raw[start : start+mb.numSlots*uint32(attrSize)]
}
