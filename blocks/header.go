package blocks

import (
	"unsafe"

	"github.com/outofforest/photon"
	"github.com/pkg/errors"

	"github.com/AlanDZQ/noisepage/layout"
	"github.com/AlanDZQ/noisepage/types"
)

// ErrNotInitialized is returned by ReadLayout if the block has never been initialized.
var ErrNotInitialized = errors.New("block has not been initialized")

// fixedHeader is the part of the header whose shape does not depend on the layout.
type fixedHeader struct {
	BlockID    types.BlockID
	NumRecords uint32
	NumSlots   uint32
}

// Header is the view of the header stored at the beginning of an initialized block:
//
//	| block id | num records | num slots | attr offsets[num attrs] | num attrs (16-bit) | attr sizes[num attrs] (8-bit) |
//
// Except for num records all the fields are written once, during initialization.
type Header struct {
	raw    *types.RawBlock
	fixed  photon.Union[*fixedHeader]
	layout layout.BlockLayout
}

// HeaderOf returns the header view of the block built using the layout.
func HeaderOf(raw *types.RawBlock, l layout.BlockLayout) Header {
	return Header{
		raw:    raw,
		fixed:  photon.NewFromBytes[fixedHeader](raw[:layout.AttrOffsetsOffset]),
		layout: l,
	}
}

// ReadLayout rebuilds the layout stored in the header of an initialized block.
func ReadLayout(raw *types.RawBlock) (layout.BlockLayout, error) {
	numSlots := *(*uint32)(unsafe.Pointer(&raw[layout.NumSlotsOffset]))
	if numSlots == 0 {
		return layout.BlockLayout{}, errors.WithStack(ErrNotInitialized)
	}

	// The first mini block starts right after the header, so its offset determines the attribute count.
	firstOffset := *(*uint32)(unsafe.Pointer(&raw[layout.AttrOffsetsOffset]))
	fixedSize := layout.HeaderSize(0)
	perAttr := layout.HeaderSize(1) - fixedSize
	if firstOffset <= fixedSize || firstOffset >= types.BlockSize || (firstOffset-fixedSize)%perAttr != 0 {
		return layout.BlockLayout{}, errors.Errorf("invalid offset of the first mini block: %d", firstOffset)
	}
	numAttrs := (firstOffset - fixedSize) / perAttr
	if numAttrs > 0xffff {
		return layout.BlockLayout{}, errors.Errorf("invalid number of attributes: %d", numAttrs)
	}

	numAttrsOffset := layout.AttrOffsetsOffset + numAttrs*layout.AttrOffsetWidth
	if stored := *(*uint16)(unsafe.Pointer(&raw[numAttrsOffset])); uint32(stored) != numAttrs {
		return layout.BlockLayout{}, errors.Errorf("stored number of attributes %d does not match header size", stored)
	}

	sizesOffset := numAttrsOffset + layout.NumAttrsWidth
	l, err := layout.New(uint16(numAttrs), raw[sizesOffset:sizesOffset+numAttrs])
	if err != nil {
		return layout.BlockLayout{}, err
	}
	if l.NumSlots() != numSlots {
		return layout.BlockLayout{}, errors.Errorf("stored number of slots %d does not match layout: %d",
			numSlots, l.NumSlots())
	}

	expected := l.HeaderSize()
	for i, offset := range HeaderOf(raw, l).AttrOffsets() {
		if offset != expected {
			return layout.BlockLayout{}, errors.Errorf("stored offset %d of column %d does not match layout: %d",
				offset, i, expected)
		}
		expected += l.MiniBlockSize(types.ColumnID(i))
	}
	return l, nil
}

// BlockID returns the identity of the block.
func (h Header) BlockID() types.BlockID {
	return h.fixed.V.BlockID
}

// NumRecords returns the reference to the record counter. It is the only mutable header field,
// it should be modified using atomic operations.
func (h Header) NumRecords() *uint32 {
	return &h.fixed.V.NumRecords
}

// NumSlots returns the number of slots in the block.
func (h Header) NumSlots() uint32 {
	return h.fixed.V.NumSlots
}

// AttrOffsets returns the table of mini block offsets, indexed by column.
func (h Header) AttrOffsets() []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(&h.raw[layout.AttrOffsetsOffset])), h.layout.NumAttrs())
}

// AttrOffset returns the offset of the column's mini block.
func (h Header) AttrOffset(column types.ColumnID) uint32 {
	return h.AttrOffsets()[column]
}

// NumAttrs returns the number of attributes stored in the header.
func (h Header) NumAttrs() uint16 {
	return *h.numAttrs()
}

// AttrSizes returns the table of attribute sizes, indexed by column.
func (h Header) AttrSizes() []uint8 {
	offset := h.layout.AttrSizesOffset()
	return h.raw[offset : offset+uint32(h.layout.NumAttrs())]
}

// Column returns the mini block of the column.
func (h Header) Column(column types.ColumnID) MiniBlock {
	return miniBlockAt(h.raw, h.AttrOffset(column), h.NumSlots())
}

func (h Header) numAttrs() *uint16 {
	return (*uint16)(unsafe.Pointer(&h.raw[h.layout.NumAttrsOffset()]))
}
