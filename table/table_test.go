package table

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AlanDZQ/noisepage/blocks"
	"github.com/AlanDZQ/noisepage/blockstore"
	"github.com/AlanDZQ/noisepage/layout"
	"github.com/AlanDZQ/noisepage/types"
)

func TestInsertSelect(t *testing.T) {
	requireT := require.New(t)

	table := newTable(t, layout.MustNew(3, []uint8{4, 8, 2}))

	slot, err := table.Insert(Row{key(1), []byte{1, 2, 3, 4, 5, 6, 7, 8}, nil})
	requireT.NoError(err)
	requireT.Equal(TupleSlot{Block: 1, Offset: 0}, slot)

	slot2, err := table.Insert(Row{key(2), nil, []byte{9, 9}})
	requireT.NoError(err)
	requireT.Equal(TupleSlot{Block: 1, Offset: 1}, slot2)

	row, exists := table.Select(slot)
	requireT.True(exists)
	requireT.Equal(Row{key(1), {1, 2, 3, 4, 5, 6, 7, 8}, nil}, row)

	row, exists = table.Select(slot2)
	requireT.True(exists)
	requireT.Equal(Row{key(2), nil, {9, 9}}, row)

	requireT.EqualValues(2, table.NumRecords())
}

func TestInvalidRows(t *testing.T) {
	requireT := require.New(t)

	table := newTable(t, layout.MustNew(2, []uint8{4, 8}))

	_, err := table.Insert(Row{key(1)})
	requireT.Error(err)

	_, err = table.Insert(Row{nil, make([]byte, 8)})
	requireT.ErrorIs(err, ErrNullPrimaryKey)

	_, err = table.Insert(Row{key(1), make([]byte, 7)})
	requireT.ErrorIs(err, ErrValueSize)

	requireT.Zero(table.NumBlocks())
}

func TestUpdate(t *testing.T) {
	requireT := require.New(t)

	table := newTable(t, layout.MustNew(2, []uint8{4, 2}))

	slot, err := table.Insert(Row{key(1), nil})
	requireT.NoError(err)

	requireT.NoError(table.Update(slot, 1, []byte{7, 7}))
	row, exists := table.Select(slot)
	requireT.True(exists)
	requireT.Equal(Row{key(1), {7, 7}}, row)

	requireT.NoError(table.Update(slot, 1, nil))
	row, exists = table.Select(slot)
	requireT.True(exists)
	requireT.Equal(Row{key(1), nil}, row)

	requireT.NoError(table.Update(slot, 0, key(5)))
	row, exists = table.Select(slot)
	requireT.True(exists)
	requireT.Equal(Row{key(5), nil}, row)

	requireT.ErrorIs(table.Update(slot, 0, nil), ErrNullPrimaryKey)
	requireT.ErrorIs(table.Update(slot, 1, []byte{1}), ErrValueSize)
	requireT.Error(table.Update(slot, 2, []byte{1, 1}))
	requireT.ErrorIs(table.Update(TupleSlot{Block: 1, Offset: 1}, 1, []byte{1, 1}), ErrInvalidSlot)
	requireT.ErrorIs(table.Update(TupleSlot{Block: 2, Offset: 0}, 1, []byte{1, 1}), ErrInvalidSlot)
}

func TestDeleteAndReuse(t *testing.T) {
	requireT := require.New(t)

	table := newTable(t, layout.MustNew(2, []uint8{4, 8}))

	var slots []TupleSlot
	for i := 0; i < 5; i++ {
		slot, err := table.Insert(Row{key(uint32(i)), make([]byte, 8)})
		requireT.NoError(err)
		slots = append(slots, slot)
	}

	requireT.NoError(table.Delete(slots[2]))
	requireT.ErrorIs(table.Delete(slots[2]), ErrInvalidSlot)
	_, exists := table.Select(slots[2])
	requireT.False(exists)
	requireT.EqualValues(4, table.NumRecords())

	slot, err := table.Insert(Row{key(100), nil})
	requireT.NoError(err)
	requireT.Equal(slots[2], slot)

	// Values of the deleted tuple are not visible in the new one.
	row, exists := table.Select(slot)
	requireT.True(exists)
	requireT.Equal(Row{key(100), nil}, row)
	requireT.EqualValues(5, table.NumRecords())
}

func TestInsertSpillsToNewBlock(t *testing.T) {
	requireT := require.New(t)

	l := layout.MustNew(4, []uint8{255, 255, 255, 255})
	table := newTable(t, l)
	numSlots := l.NumSlots()

	row := Row{make([]byte, 255), nil, nil, nil}
	for i := uint32(0); i < numSlots; i++ {
		slot, err := table.Insert(row)
		requireT.NoError(err)
		requireT.Equal(TupleSlot{Block: 1, Offset: types.SlotOffset(i)}, slot)
	}
	requireT.Equal(1, table.NumBlocks())

	slot, err := table.Insert(row)
	requireT.NoError(err)
	requireT.Equal(TupleSlot{Block: 2, Offset: 0}, slot)
	requireT.Equal(2, table.NumBlocks())
	requireT.EqualValues(numSlots+1, table.NumRecords())
}

func TestSourceExhausted(t *testing.T) {
	requireT := require.New(t)

	l := layout.MustNew(4, []uint8{255, 255, 255, 255})
	store := blockstore.New(blockstore.Config{MaxBlocks: 1})
	t.Cleanup(func() {
		requireT.NoError(store.Close())
	})
	table, err := New(Config{Layout: l, Source: store})
	requireT.NoError(err)

	row := Row{make([]byte, 255), nil, nil, nil}
	for i := uint32(0); i < l.NumSlots(); i++ {
		_, err := table.Insert(row)
		requireT.NoError(err)
	}
	_, err = table.Insert(row)
	requireT.ErrorIs(err, blockstore.ErrStoreFull)
}

func TestConcurrentInserts(t *testing.T) {
	const (
		nGoroutines = 8
		nRows       = 300
	)

	requireT := require.New(t)

	l := layout.MustNew(4, []uint8{4, 255, 255, 4})
	table := newTable(t, l)

	slots := make([][]TupleSlot, nGoroutines)
	errs := make([]error, nGoroutines)
	var wg sync.WaitGroup
	wg.Add(nGoroutines)
	for g := 0; g < nGoroutines; g++ {
		go func(g int) {
			defer wg.Done()
			for i := 0; i < nRows; i++ {
				slot, err := table.Insert(Row{key(uint32(g*nRows + i)), nil, nil, key(uint32(g))})
				if err != nil {
					errs[g] = err
					return
				}
				slots[g] = append(slots[g], slot)
			}
		}(g)
	}
	wg.Wait()

	seen := map[TupleSlot]struct{}{}
	for g := 0; g < nGoroutines; g++ {
		requireT.NoError(errs[g])
		for i, slot := range slots[g] {
			_, exists := seen[slot]
			requireT.False(exists)
			seen[slot] = struct{}{}

			row, exists := table.Select(slot)
			requireT.True(exists)
			requireT.Equal(key(uint32(g*nRows+i)), row[0])
			requireT.Equal(key(uint32(g)), row[3])
		}
	}
	requireT.Len(seen, nGoroutines*nRows)
	requireT.EqualValues(nGoroutines*nRows, table.NumRecords())
	// 2021 slots per block.
	requireT.Equal(2, table.NumBlocks())
}

func TestScan(t *testing.T) {
	requireT := require.New(t)

	table := newTable(t, layout.MustNew(2, []uint8{4, 1}))

	var slots []TupleSlot
	for i := 0; i < 10; i++ {
		slot, err := table.Insert(Row{key(uint32(i)), []byte{byte(i)}})
		requireT.NoError(err)
		slots = append(slots, slot)
	}
	requireT.NoError(table.Delete(slots[3]))
	requireT.NoError(table.Delete(slots[7]))

	var keys []uint32
	table.Scan(func(slot TupleSlot, row Row) bool {
		keys = append(keys, binary.LittleEndian.Uint32(row[0]))
		return len(keys) < 6
	})
	requireT.Equal([]uint32{0, 1, 2, 4, 5, 6}, keys)
}

func TestAttach(t *testing.T) {
	requireT := require.New(t)

	l := layout.MustNew(2, []uint8{4, 8})
	store := blockstore.New(blockstore.Config{})
	t.Cleanup(func() {
		requireT.NoError(store.Close())
	})

	table, err := New(Config{Layout: l, Source: store})
	requireT.NoError(err)
	slot, err := table.Insert(Row{key(1), nil})
	requireT.NoError(err)

	raw, exists := store.Lookup(slot.Block)
	requireT.True(exists)

	table2, err := New(Config{Layout: l, Source: store})
	requireT.NoError(err)
	requireT.NoError(table2.Attach(raw))
	requireT.Error(table2.Attach(raw))

	row, exists := table2.Select(slot)
	requireT.True(exists)
	requireT.Equal(Row{key(1), nil}, row)

	table3, err := New(Config{Layout: layout.MustNew(2, []uint8{8, 4}), Source: store})
	requireT.NoError(err)
	requireT.Error(table3.Attach(raw))

	_, raw2, err := store.Get()
	requireT.NoError(err)
	requireT.Error(table2.Attach(raw2))

	blocks.InitializeRawBlock(raw2, l, 100)
	requireT.NoError(table2.Attach(raw2))
	requireT.Equal(2, table2.NumBlocks())
}

func TestInvalidConfig(t *testing.T) {
	requireT := require.New(t)

	_, err := New(Config{Source: blockstore.New(blockstore.Config{})})
	requireT.Error(err)

	_, err = New(Config{Layout: layout.MustNew(1, []uint8{4})})
	requireT.Error(err)
}

func newTable(t *testing.T, l layout.BlockLayout) *DataTable {
	store := blockstore.New(blockstore.Config{})
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	table, err := New(Config{Layout: l, Source: store})
	require.NoError(t, err)
	return table
}

func key(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}
