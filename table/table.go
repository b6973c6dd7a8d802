package table

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/AlanDZQ/noisepage/access"
	"github.com/AlanDZQ/noisepage/blocks"
	"github.com/AlanDZQ/noisepage/layout"
	"github.com/AlanDZQ/noisepage/types"
)

var (
	// ErrInvalidSlot is returned if the slot does not point to the live tuple of the table.
	ErrInvalidSlot = errors.New("invalid tuple slot")

	// ErrNullPrimaryKey is returned on attempt to store null in the primary key column.
	ErrNullPrimaryKey = errors.New("primary key attribute must not be null")

	// ErrValueSize is returned if the size of the value does not match the size of the attribute.
	ErrValueSize = errors.New("value size does not match attribute size")
)

// BlockSource supplies zeroed raw blocks.
type BlockSource interface {
	Get() (types.BlockID, *types.RawBlock, error)
}

// Row is the tuple. Nil attribute means null.
type Row [][]byte

// TupleSlot identifies the tuple inside the table.
type TupleSlot struct {
	Block  types.BlockID
	Offset types.SlotOffset
}

// Config stores table configuration.
type Config struct {
	// Layout is the layout of blocks storing the tuples.
	Layout layout.BlockLayout

	// Source supplies new blocks.
	Source BlockSource

	// Logger is used to report lifecycle events. slog.Default() is used if nil.
	Logger *slog.Logger
}

// DataTable stores tuples of a single schema in blocks.
// Concurrent inserts are safe. Concurrent access to the same tuple must be serialized by the caller.
type DataTable struct {
	layout   layout.BlockLayout
	accessor *access.TupleAccessStrategy
	source   BlockSource
	log      *slog.Logger

	mu     sync.RWMutex
	blocks []*types.RawBlock
	byID   map[types.BlockID]*types.RawBlock
}

// New creates new data table.
func New(config Config) (*DataTable, error) {
	if config.Layout.NumAttrs() == 0 {
		return nil, errors.New("layout is not defined")
	}
	if config.Source == nil {
		return nil, errors.New("block source is not defined")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &DataTable{
		layout:   config.Layout,
		accessor: access.New(config.Layout),
		source:   config.Source,
		log:      config.Logger.With("component", "table"),
		byID:     map[types.BlockID]*types.RawBlock{},
	}, nil
}

// Layout returns the layout of table blocks.
func (t *DataTable) Layout() layout.BlockLayout {
	return t.layout
}

// Attach adds an already initialized block to the table.
func (t *DataTable) Attach(raw *types.RawBlock) error {
	l, err := blocks.ReadLayout(raw)
	if err != nil {
		return err
	}
	if !l.Equal(t.layout) {
		return errors.New("layout of the block does not match the table")
	}

	id := blocks.HeaderOf(raw, t.layout).BlockID()

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.byID[id]; exists {
		return errors.Errorf("block %d has been already attached", id)
	}
	t.addBlock(id, raw)
	return nil
}

// NumBlocks returns the number of blocks used by the table.
func (t *DataTable) NumBlocks() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.blocks)
}

// NumRecords returns the number of tuples stored in the table.
func (t *DataTable) NumRecords() uint64 {
	var n uint64
	for _, raw := range t.snapshot() {
		n += uint64(atomic.LoadUint32(t.header(raw).NumRecords()))
	}
	return n
}

// Insert stores the tuple and returns its slot.
func (t *DataTable) Insert(row Row) (TupleSlot, error) {
	if err := t.validateRow(row); err != nil {
		return TupleSlot{}, err
	}

	var tried int
	for {
		blockList := t.snapshot()
		for _, raw := range blockList[tried:] {
			if pos, ok := t.accessor.Allocate(raw); ok {
				return t.write(raw, pos, row), nil
			}
		}
		tried = len(blockList)

		if err := t.grow(tried); err != nil {
			return TupleSlot{}, err
		}
	}
}

// Select returns the tuple stored in the slot. Returned values are copies.
func (t *DataTable) Select(slot TupleSlot) (Row, bool) {
	raw, exists := t.block(slot)
	if !exists || !t.accessor.IsAllocated(raw, slot.Offset) {
		return nil, false
	}

	row := make(Row, t.layout.NumAttrs())
	for i := range row {
		if value := t.accessor.AccessWithNullCheck(raw, types.ColumnID(i), slot.Offset); value != nil {
			row[i] = append([]byte(nil), value...)
		}
	}
	return row, true
}

// Update replaces the attribute of the tuple. Nil value sets the attribute to null.
func (t *DataTable) Update(slot TupleSlot, column types.ColumnID, value []byte) error {
	if column >= types.ColumnID(t.layout.NumAttrs()) {
		return errors.Errorf("column %d does not exist", column)
	}
	if value == nil && column == types.PrimaryKeyColumn {
		return errors.WithStack(ErrNullPrimaryKey)
	}
	if value != nil && len(value) != int(t.layout.AttrSize(column)) {
		return errors.Wrapf(ErrValueSize, "column %d: expected %d bytes, got %d",
			column, t.layout.AttrSize(column), len(value))
	}

	raw, exists := t.block(slot)
	if !exists || !t.accessor.IsAllocated(raw, slot.Offset) {
		return errors.WithStack(ErrInvalidSlot)
	}

	if value == nil {
		t.accessor.SetNull(raw, column, slot.Offset)
		return nil
	}
	copy(t.accessor.AccessForceNotNull(raw, column, slot.Offset), value)
	return nil
}

// Delete removes the tuple. Its slot may be reused by future inserts.
func (t *DataTable) Delete(slot TupleSlot) error {
	raw, exists := t.block(slot)
	if !exists || !t.accessor.IsAllocated(raw, slot.Offset) {
		return errors.WithStack(ErrInvalidSlot)
	}

	// Non-key attributes are nulled first, so the slot looks fresh when it is allocated again.
	for i := types.ColumnID(1); i < types.ColumnID(t.layout.NumAttrs()); i++ {
		t.accessor.SetNull(raw, i, slot.Offset)
	}
	if !t.accessor.ColumnNullBitmap(raw, types.PrimaryKeyColumn).Flip(uint32(slot.Offset), true) {
		return errors.WithStack(ErrInvalidSlot)
	}
	atomic.AddUint32(t.header(raw).NumRecords(), ^uint32(0))
	return nil
}

// Scan calls fn for every tuple stored in the table, in the order of blocks and slots, until fn returns false.
func (t *DataTable) Scan(fn func(slot TupleSlot, row Row) bool) {
	for _, raw := range t.snapshot() {
		id := t.header(raw).BlockID()
		presence := t.accessor.ColumnNullBitmap(raw, types.PrimaryKeyColumn)
		for i := uint32(0); i < presence.Len(); i++ {
			if !presence.Test(i) {
				continue
			}
			slot := TupleSlot{Block: id, Offset: types.SlotOffset(i)}
			row, exists := t.Select(slot)
			if !exists {
				continue
			}
			if !fn(slot, row) {
				return
			}
		}
	}
}

func (t *DataTable) validateRow(row Row) error {
	if len(row) != int(t.layout.NumAttrs()) {
		return errors.Errorf("row has %d attributes, expected %d", len(row), t.layout.NumAttrs())
	}
	if row[types.PrimaryKeyColumn] == nil {
		return errors.WithStack(ErrNullPrimaryKey)
	}
	for i, value := range row {
		if value != nil && len(value) != int(t.layout.AttrSize(types.ColumnID(i))) {
			return errors.Wrapf(ErrValueSize, "column %d: expected %d bytes, got %d",
				i, t.layout.AttrSize(types.ColumnID(i)), len(value))
		}
	}
	return nil
}

func (t *DataTable) write(raw *types.RawBlock, pos types.SlotOffset, row Row) TupleSlot {
	for i, value := range row {
		column := types.ColumnID(i)
		if value == nil {
			t.accessor.SetNull(raw, column, pos)
			continue
		}
		copy(t.accessor.AccessForceNotNull(raw, column, pos), value)
	}

	h := t.header(raw)
	atomic.AddUint32(h.NumRecords(), 1)
	return TupleSlot{Block: h.BlockID(), Offset: pos}
}

// grow adds new block to the table unless another inserter did it already.
func (t *DataTable) grow(seen int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.blocks) > seen {
		return nil
	}

	id, raw, err := t.source.Get()
	if err != nil {
		return err
	}
	blocks.InitializeRawBlock(raw, t.layout, id)
	t.addBlock(id, raw)

	t.log.Debug("block added", "blockID", id, "blocks", len(t.blocks))
	return nil
}

func (t *DataTable) addBlock(id types.BlockID, raw *types.RawBlock) {
	t.blocks = append(t.blocks, raw)
	t.byID[id] = raw
}

func (t *DataTable) block(slot TupleSlot) (*types.RawBlock, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	raw, exists := t.byID[slot.Block]
	if !exists || uint32(slot.Offset) >= t.layout.NumSlots() {
		return nil, false
	}
	return raw, true
}

func (t *DataTable) snapshot() []*types.RawBlock {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.blocks[:len(t.blocks):len(t.blocks)]
}

func (t *DataTable) header(raw *types.RawBlock) blocks.Header {
	return blocks.HeaderOf(raw, t.layout)
}
