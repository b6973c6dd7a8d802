package blocks

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/AlanDZQ/noisepage/layout"
	"github.com/AlanDZQ/noisepage/types"
)

func TestInitializeWritesHeader(t *testing.T) {
	requireT := require.New(t)

	l := layout.MustNew(2, []uint8{4, 8})
	raw := new(types.RawBlock)
	h := InitializeRawBlock(raw, l, 42)

	requireT.EqualValues(42, h.BlockID())
	requireT.EqualValues(0, *h.NumRecords())
	requireT.Equal(l.NumSlots(), h.NumSlots())
	requireT.EqualValues(2, h.NumAttrs())
	requireT.Equal([]uint8{4, 8}, h.AttrSizes())

	bitmapSize := (l.NumSlots() + 7) / 8
	requireT.Equal([]uint32{24, 24 + bitmapSize + 4*l.NumSlots()}, h.AttrOffsets())
}

func TestHeaderBinaryLayout(t *testing.T) {
	requireT := require.New(t)

	l := layout.MustNew(2, []uint8{4, 8})
	raw := new(types.RawBlock)
	InitializeRawBlock(raw, l, 0x01020304)

	bitmapSize := (l.NumSlots() + 7) / 8

	expected := make([]byte, 0, l.HeaderSize())
	expected = binary.NativeEndian.AppendUint32(expected, 0x01020304)
	expected = binary.NativeEndian.AppendUint32(expected, 0)
	expected = binary.NativeEndian.AppendUint32(expected, l.NumSlots())
	expected = binary.NativeEndian.AppendUint32(expected, 24)
	expected = binary.NativeEndian.AppendUint32(expected, 24+bitmapSize+4*l.NumSlots())
	expected = binary.NativeEndian.AppendUint16(expected, 2)
	expected = append(expected, 4, 8)

	requireT.Equal(expected, raw[:l.HeaderSize()])
}

func TestMiniBlocksFitIntoBlock(t *testing.T) {
	requireT := require.New(t)

	l := layout.MustNew(5, []uint8{8, 1, 3, 255, 2})
	raw := new(types.RawBlock)
	h := InitializeRawBlock(raw, l, 1)

	prevEnd := l.HeaderSize()
	for i := types.ColumnID(0); i < 5; i++ {
		mb := h.Column(i)
		requireT.Equal(prevEnd, h.AttrOffset(i))

		values := mb.ColumnStart(l.AttrSize(i))
		requireT.Len(values, int(l.NumSlots()*uint32(l.AttrSize(i))))

		start := uintptr(unsafe.Pointer(&values[0])) - uintptr(unsafe.Pointer(&raw[0]))
		requireT.EqualValues(h.AttrOffset(i)+(l.NumSlots()+7)/8, start)

		prevEnd = uint32(start) + uint32(len(values))
	}
	requireT.LessOrEqual(prevEnd, uint32(types.BlockSize))
}

func TestBitmapsAreZeroAfterInitialization(t *testing.T) {
	requireT := require.New(t)

	l := layout.MustNew(3, []uint8{4, 8, 1})
	h := InitializeRawBlock(new(types.RawBlock), l, 7)

	for i := types.ColumnID(0); i < 3; i++ {
		nullBitmap := h.Column(i).NullBitmap()
		requireT.Equal(l.NumSlots(), nullBitmap.Len())
		requireT.Zero(nullBitmap.Count())
	}
	requireT.EqualValues(0, *h.NumRecords())
}

func TestReadLayout(t *testing.T) {
	requireT := require.New(t)

	for _, sizes := range [][]uint8{{4}, {4, 8}, {8, 1, 3, 255, 2}, make1s(300)} {
		l := layout.MustNew(uint16(len(sizes)), sizes)
		raw := new(types.RawBlock)
		InitializeRawBlock(raw, l, 3)

		l2, err := ReadLayout(raw)
		requireT.NoError(err)
		requireT.True(l.Equal(l2))
		requireT.Equal(l.NumSlots(), l2.NumSlots())
	}
}

func TestReadLayoutOfUninitializedBlock(t *testing.T) {
	requireT := require.New(t)

	_, err := ReadLayout(new(types.RawBlock))
	requireT.ErrorIs(err, ErrNotInitialized)
}

func TestReadLayoutOfCorruptedBlock(t *testing.T) {
	requireT := require.New(t)

	l := layout.MustNew(2, []uint8{4, 8})
	raw := new(types.RawBlock)
	h := InitializeRawBlock(raw, l, 3)

	h.AttrSizes()[1] = 16
	_, err := ReadLayout(raw)
	requireT.Error(err)
}

func TestReadLayoutOfCorruptedOffsets(t *testing.T) {
	requireT := require.New(t)

	l := layout.MustNew(3, []uint8{4, 8, 2})
	for column := 1; column < 3; column++ {
		for _, offset := range []uint32{types.BlockSize - 1, 0} {
			raw := new(types.RawBlock)
			h := InitializeRawBlock(raw, l, 3)
			h.AttrOffsets()[column] = offset

			_, err := ReadLayout(raw)
			requireT.Error(err, "column %d, offset %d", column, offset)
		}
	}

	raw := new(types.RawBlock)
	h := InitializeRawBlock(raw, l, 3)
	h.AttrOffsets()[2]++
	_, err := ReadLayout(raw)
	requireT.Error(err)
}

func TestRecordCounterIsStoredInBlock(t *testing.T) {
	requireT := require.New(t)

	l := layout.MustNew(1, []uint8{8})
	raw := new(types.RawBlock)
	h := InitializeRawBlock(raw, l, 3)

	*h.NumRecords() = 5
	requireT.EqualValues(5, HeaderOf(raw, l).fixed.V.NumRecords)
	requireT.EqualValues(5, binary.NativeEndian.Uint32(raw[layout.NumRecordsOffset:]))
}

func make1s(n int) []uint8 {
	sizes := make([]uint8, n)
	for i := range sizes {
		sizes[i] = 1
	}
	return sizes
}
