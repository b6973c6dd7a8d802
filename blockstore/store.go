package blockstore

import (
	"log/slog"
	"sync"

	"github.com/google/btree"
	"github.com/pkg/errors"

	"github.com/AlanDZQ/noisepage/blocks"
	"github.com/AlanDZQ/noisepage/persistence"
	"github.com/AlanDZQ/noisepage/types"
)

var (
	// ErrStoreFull is returned if the maximum number of live blocks has been reached.
	ErrStoreFull = errors.New("block store is full")

	// ErrClosed is returned if the store has been closed.
	ErrClosed = errors.New("block store is closed")
)

var zeroBlock = new(types.RawBlock)

// Config stores block store configuration.
type Config struct {
	// MaxBlocks is the maximum number of live blocks. DefaultMaxBlocks is used if zero.
	MaxBlocks int

	// Logger is used to report lifecycle events. slog.Default() is used if nil.
	Logger *slog.Logger
}

type entry struct {
	id  types.BlockID
	raw *types.RawBlock
}

func lessEntry(a, b entry) bool {
	return a.id < b.id
}

// Store hands out zeroed raw blocks with stable addresses. It is safe for concurrent use.
type Store struct {
	maxBlocks int
	log       *slog.Logger

	mu       sync.Mutex
	closed   bool
	nextID   types.BlockID
	resident *btree.BTreeG[entry]
	free     []*types.RawBlock
}

// New creates new block store.
func New(config Config) *Store {
	if config.MaxBlocks <= 0 {
		config.MaxBlocks = DefaultMaxBlocks
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Store{
		maxBlocks: config.MaxBlocks,
		log:       config.Logger.With("component", "blockstore"),
		nextID:    1,
		resident:  btree.NewG[entry](BTreeDegree, lessEntry),
	}
}

// Get returns new zeroed block together with its id.
func (s *Store) Get() (types.BlockID, *types.RawBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, nil, errors.WithStack(ErrClosed)
	}
	if s.resident.Len() >= s.maxBlocks {
		return 0, nil, errors.WithStack(ErrStoreFull)
	}

	raw, err := s.region()
	if err != nil {
		return 0, nil, err
	}

	id := s.nextID
	s.nextID++
	s.resident.ReplaceOrInsert(entry{id: id, raw: raw})

	s.log.Debug("block allocated", "blockID", id, "live", s.resident.Len())
	return id, raw, nil
}

// Lookup returns the live block.
func (s *Store) Lookup(id types.BlockID) (*types.RawBlock, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.resident.Get(entry{id: id})
	if !exists {
		return nil, false
	}
	return e.raw, true
}

// Release returns the block to the store. Its memory is zeroed and reused by future blocks.
// Caller must not access the block after releasing it.
func (s *Store) Release(id types.BlockID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.resident.Delete(entry{id: id})
	if !exists {
		return errors.Errorf("block %d does not exist", id)
	}

	s.recycle(e.raw)

	s.log.Debug("block released", "blockID", id, "live", s.resident.Len())
	return nil
}

// Len returns the number of live blocks.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.resident.Len()
}

// Ascend calls fn for every live block in the order of ids, until fn returns false.
// fn is called without holding the lock, so it may use the store.
func (s *Store) Ascend(fn func(id types.BlockID, raw *types.RawBlock) bool) {
	for _, e := range s.snapshot() {
		if !fn(e.id, e.raw) {
			return
		}
	}
}

// Flush writes all the live blocks to the persistent store. Addresses of released blocks are zeroed.
func (s *Store) Flush(p *persistence.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.WithStack(ErrClosed)
	}

	lastID := s.nextID - 1
	for id := types.BlockID(1); id <= lastID; id++ {
		data := zeroBlock
		if e, exists := s.resident.Get(entry{id: id}); exists {
			data = e.raw
		}
		if err := p.WriteBlock(id, data[:]); err != nil {
			return err
		}
	}
	if err := p.SetLastBlock(lastID); err != nil {
		return err
	}
	if err := p.Sync(); err != nil {
		return err
	}

	s.log.Info("blocks flushed", "live", s.resident.Len(), "lastBlockID", lastID)
	return nil
}

// Load reads all the initialized blocks from the persistent store. The store must be empty.
// Zeroed blocks are skipped, any other block with an invalid header fails the load.
func (s *Store) Load(p *persistence.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.WithStack(ErrClosed)
	}
	if s.resident.Len() > 0 || s.nextID != 1 {
		return errors.New("blocks can be loaded into the empty store only")
	}

	lastID := p.LastBlock()
	for id := types.BlockID(1); id <= lastID; id++ {
		raw, err := s.region()
		if err != nil {
			return err
		}
		if err := p.ReadBlock(id, raw[:]); err != nil {
			s.recycle(raw)
			return err
		}
		if _, err := blocks.ReadLayout(raw); err != nil {
			s.recycle(raw)
			if !errors.Is(err, blocks.ErrNotInitialized) {
				return errors.Wrapf(err, "loading block %d", id)
			}
			// Block was released before the flush.
			continue
		}
		if s.resident.Len() >= s.maxBlocks {
			s.recycle(raw)
			return errors.WithStack(ErrStoreFull)
		}
		s.resident.ReplaceOrInsert(entry{id: id, raw: raw})
	}
	s.nextID = lastID + 1

	s.log.Info("blocks loaded", "live", s.resident.Len(), "lastBlockID", lastID)
	return nil
}

// Close releases the memory of all the blocks. Blocks must not be accessed after closing the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	release := func(raw *types.RawBlock) {
		if err := freeRegion(raw); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.resident.Ascend(func(e entry) bool {
		release(e.raw)
		return true
	})
	for _, raw := range s.free {
		release(raw)
	}
	s.resident.Clear(false)
	s.free = nil

	return firstErr
}

func (s *Store) region() (*types.RawBlock, error) {
	if n := len(s.free); n > 0 {
		raw := s.free[n-1]
		s.free = s.free[:n-1]
		return raw, nil
	}
	return allocRegion()
}

// recycle zeroes the region and keeps it for future blocks.
func (s *Store) recycle(raw *types.RawBlock) {
	clear(raw[:])
	s.free = append(s.free, raw)
}

func (s *Store) snapshot() []entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]entry, 0, s.resident.Len())
	s.resident.Ascend(func(e entry) bool {
		entries = append(entries, e)
		return true
	})
	return entries
}
