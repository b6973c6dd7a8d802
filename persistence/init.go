package persistence

import (
	"crypto/sha256"
	"io"
	"math/rand"

	"github.com/outofforest/photon"
	"github.com/pkg/errors"

	"github.com/AlanDZQ/noisepage/types"
)

const (
	// minNBlocks is the minimum number of blocks which must fit into the device: superblock and one data block.
	minNBlocks = 2

	// checksumsOffset is the offset, inside address 0, of the table storing checksums of data blocks.
	// Entry of block N is stored at checksumsOffset + N*checksumWidth.
	checksumsOffset = 512
	checksumWidth   = 8

	// maxNBlocks is the maximum number of blocks whose checksums fit into the table.
	maxNBlocks = (types.BlockSize - checksumsOffset) / checksumWidth

	// storeSubject defines an identifier used to detect if block store exists on the device.
	storeSubject = 0b0100001000000000100000010010000100010010110000100010010001000101
)

// Dev is the interface required from the device.
type Dev interface {
	io.ReadWriteSeeker
	Sync() error
	Size() int64
}

// ErrAlreadyInitialized is returned if during initialization, another block store is detected on the device.
var ErrAlreadyInitialized = errors.New("block store has been already initialized on the provided device")

// Superblock is stored at address 0 and describes the block file.
type Superblock struct {
	Checksum  [sha256.Size]byte
	StoreID   uint64
	BlockSize uint64
	NBlocks   uint64
	LastBlock uint64
}

// ComputeChecksum computes checksum of the superblock.
func (sb Superblock) ComputeChecksum() [sha256.Size]byte {
	sb.Checksum = [sha256.Size]byte{}
	return sha256.Sum256(photon.NewFromValue(&sb).B)
}

// Initialize initializes new block store on the device.
func Initialize(dev Dev, overwrite bool) error {
	if err := validateDev(dev, overwrite); err != nil {
		return err
	}

	sBlock := photon.NewFromValue(&Superblock{
		StoreID:   rand.Uint64() | storeSubject,
		BlockSize: types.BlockSize,
		NBlocks:   min(uint64(dev.Size()/types.BlockSize), maxNBlocks),
	})
	sBlock.V.Checksum = sBlock.V.ComputeChecksum()

	// Whole address 0 is written to clear checksums left by the previous store.
	address0 := make([]byte, types.BlockSize)
	copy(address0, sBlock.B)
	if err := writeSuperblock(dev, address0); err != nil {
		return err
	}
	return errors.WithStack(dev.Sync())
}

func validateDev(dev Dev, overwrite bool) error {
	size := dev.Size()
	nBlocks := uint64(size / types.BlockSize)

	if nBlocks < minNBlocks {
		return errors.Errorf("device is too small, minimum size is: %d bytes, provided: %d",
			minNBlocks*types.BlockSize, size)
	}

	sBlock, err := loadSuperblock(dev)
	if err != nil {
		return err
	}

	if sBlock.V.StoreID&storeSubject == storeSubject && !overwrite {
		return errors.WithStack(ErrAlreadyInitialized)
	}

	return nil
}

func loadSuperblock(dev Dev) (photon.Union[*Superblock], error) {
	if _, err := dev.Seek(0, io.SeekStart); err != nil {
		return photon.Union[*Superblock]{}, errors.WithStack(err)
	}

	sBlock := photon.NewFromValue(&Superblock{})
	if _, err := io.ReadFull(dev, sBlock.B); err != nil {
		return photon.Union[*Superblock]{}, errors.WithStack(err)
	}

	return sBlock, nil
}

func writeSuperblock(dev Dev, b []byte) error {
	if _, err := dev.Seek(0, io.SeekStart); err != nil {
		return errors.WithStack(err)
	}
	if _, err := dev.Write(b); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
