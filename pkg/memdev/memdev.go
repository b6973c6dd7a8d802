package memdev

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

var _ io.ReadWriteSeeker = &MemDev{}

// MemDev keeps the content of a block device in memory. It is safe for concurrent use,
// but the position is shared, so callers seeking concurrently must serialize themselves.
type MemDev struct {
	mu     sync.Mutex
	pos    int64
	blocks []byte
}

// New returns device of the given byte size.
func New(size int64) *MemDev {
	return &MemDev{blocks: make([]byte, size)}
}

// Seek moves the position used by the next Read or Write.
func (md *MemDev) Seek(offset int64, whence int) (int64, error) {
	md.mu.Lock()
	defer md.mu.Unlock()

	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = md.pos
	case io.SeekEnd:
		base = int64(len(md.blocks))
	default:
		return 0, errors.Errorf("invalid whence: %d", whence)
	}

	pos := base + offset
	if pos < 0 || pos > int64(len(md.blocks)) {
		return 0, errors.Errorf("position %d is outside the device", pos)
	}
	md.pos = pos
	return pos, nil
}

// Read copies data starting at the current position. io.EOF is returned at the end of the device.
func (md *MemDev) Read(p []byte) (int, error) {
	md.mu.Lock()
	defer md.mu.Unlock()

	if len(p) == 0 {
		return 0, nil
	}
	if md.pos == int64(len(md.blocks)) {
		return 0, io.EOF
	}
	n := copy(p, md.blocks[md.pos:])
	md.pos += int64(n)
	return n, nil
}

// Write stores data at the current position. Data crossing the end of the device are cut
// and io.ErrShortWrite is returned.
func (md *MemDev) Write(p []byte) (int, error) {
	md.mu.Lock()
	defer md.mu.Unlock()

	n := copy(md.blocks[md.pos:], p)
	md.pos += int64(n)
	if n < len(p) {
		return n, errors.WithStack(io.ErrShortWrite)
	}
	return n, nil
}

// Sync is a no-op.
func (md *MemDev) Sync() error {
	return nil
}

// Size returns the byte size of the device.
func (md *MemDev) Size() int64 {
	return int64(len(md.blocks))
}
