package layout

import (
	"github.com/pkg/errors"

	"github.com/AlanDZQ/noisepage/types"
)

// Widths of the header fields.
const (
	BlockIDWidth    = 4
	NumRecordsWidth = 4
	NumSlotsWidth   = 4
	AttrOffsetWidth = 4
	NumAttrsWidth   = 2
	AttrSizeWidth   = 1
)

// Offsets of the fixed part of the header.
const (
	BlockIDOffset     = 0
	NumRecordsOffset  = BlockIDOffset + BlockIDWidth
	NumSlotsOffset    = NumRecordsOffset + NumRecordsWidth
	AttrOffsetsOffset = NumSlotsOffset + NumSlotsWidth
)

// BlockLayout describes the physical shape of blocks storing tuples of one schema.
// It is computed once per schema and never changes afterwards.
type BlockLayout struct {
	numAttrs   uint16
	attrSizes  []uint8
	tupleSize  uint32
	headerSize uint32
	numSlots   uint32
}

// New computes the layout of blocks storing tuples with the provided attribute sizes.
// Attribute 0 must be (part of) the primary key.
func New(numAttrs uint16, attrSizes []uint8) (BlockLayout, error) {
	if numAttrs == 0 {
		return BlockLayout{}, errors.New("layout must contain at least the primary key attribute")
	}
	if int(numAttrs) != len(attrSizes) {
		return BlockLayout{}, errors.Errorf("number of attributes %d does not match number of attribute sizes %d",
			numAttrs, len(attrSizes))
	}

	var tupleSize uint32
	for i, size := range attrSizes {
		if size == 0 {
			return BlockLayout{}, errors.Errorf("attribute %d has zero size", i)
		}
		tupleSize += uint32(size)
	}

	headerSize := HeaderSize(numAttrs)
	numSlots := NumSlots(types.BlockSize, headerSize, tupleSize, numAttrs)
	if numSlots < 1 {
		return BlockLayout{}, errors.Errorf("layout with tuple size %d and %d attributes does not fit a single slot",
			tupleSize, numAttrs)
	}

	return BlockLayout{
		numAttrs:   numAttrs,
		attrSizes:  append([]uint8(nil), attrSizes...),
		tupleSize:  tupleSize,
		headerSize: headerSize,
		numSlots:   uint32(numSlots),
	}, nil
}

// MustNew is like New but panics if the layout is invalid.
func MustNew(numAttrs uint16, attrSizes []uint8) BlockLayout {
	l, err := New(numAttrs, attrSizes)
	if err != nil {
		panic(err)
	}
	return l
}

// HeaderSize returns the size of the block header for the number of attributes.
func HeaderSize(numAttrs uint16) uint32 {
	return BlockIDWidth + NumRecordsWidth + NumSlotsWidth +
		uint32(numAttrs)*AttrOffsetWidth +
		NumAttrsWidth +
		uint32(numAttrs)*AttrSizeWidth
}

// NumSlots returns the number of tuples fitting into the block of the given size.
// Every slot takes tupleSize bytes of values and one bit per attribute in null bitmaps.
// One slot is subtracted so every bitmap may be padded to the full byte.
// The result may be zero or negative if not even a single slot fits.
func NumSlots(blockSize, headerSize, tupleSize uint32, numAttrs uint16) int64 {
	if headerSize >= blockSize {
		return -1
	}
	return int64(8*uint64(blockSize-headerSize)/(8*uint64(tupleSize)+uint64(numAttrs))) - 1
}

// NumAttrs returns the number of attributes.
func (l BlockLayout) NumAttrs() uint16 {
	return l.numAttrs
}

// AttrSize returns the byte width of the attribute.
func (l BlockLayout) AttrSize(column types.ColumnID) uint8 {
	return l.attrSizes[column]
}

// AttrSizes returns a copy of all the attribute widths.
func (l BlockLayout) AttrSizes() []uint8 {
	return append([]uint8(nil), l.attrSizes...)
}

// TupleSize returns the sum of attribute widths.
func (l BlockLayout) TupleSize() uint32 {
	return l.tupleSize
}

// HeaderSize returns the size of the block header.
func (l BlockLayout) HeaderSize() uint32 {
	return l.headerSize
}

// NumSlots returns the maximum number of tuples stored in a block.
func (l BlockLayout) NumSlots() uint32 {
	return l.numSlots
}

// NumAttrsOffset returns the header offset of the attribute count.
func (l BlockLayout) NumAttrsOffset() uint32 {
	return AttrOffsetsOffset + uint32(l.numAttrs)*AttrOffsetWidth
}

// AttrSizesOffset returns the header offset of the attribute size table.
func (l BlockLayout) AttrSizesOffset() uint32 {
	return l.NumAttrsOffset() + NumAttrsWidth
}

// BitmapSize returns the number of bytes occupied by a null bitmap of a mini block.
func (l BlockLayout) BitmapSize() uint32 {
	return (l.numSlots + 7) / 8
}

// MiniBlockSize returns the number of bytes occupied by the mini block of the column.
func (l BlockLayout) MiniBlockSize(column types.ColumnID) uint32 {
	return l.BitmapSize() + l.numSlots*uint32(l.attrSizes[column])
}

// Equal reports whether both layouts describe the same schema.
func (l BlockLayout) Equal(l2 BlockLayout) bool {
	if l.numAttrs != l2.numAttrs {
		return false
	}
	for i := range l.attrSizes {
		if l.attrSizes[i] != l2.attrSizes[i] {
			return false
		}
	}
	return true
}
