//go:build unix

package blockstore

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/AlanDZQ/noisepage/types"
)

// allocRegion maps anonymous memory for the block. Mapped pages are zeroed by the kernel,
// page aligned and never moved.
func allocRegion() (*types.RawBlock, error) {
	data, err := unix.Mmap(-1, 0, types.BlockSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return (*types.RawBlock)(data), nil
}

func freeRegion(raw *types.RawBlock) error {
	return errors.WithStack(unix.Munmap(raw[:]))
}
