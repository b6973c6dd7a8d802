package persistence

import (
	"encoding/hex"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/outofforest/photon"
	"github.com/pkg/errors"

	"github.com/AlanDZQ/noisepage/types"
)

// ErrChecksumMismatch is returned if the content of the block does not match the checksum stored with it.
var ErrChecksumMismatch = errors.New("block checksum mismatch")

// Store represents persistent storage of raw blocks. Block with id N is stored at address N,
// address 0 is taken by the superblock followed by the table of block checksums.
type Store struct {
	dev    Dev
	sBlock photon.Union[*Superblock]
}

// OpenStore opens the persistent store.
func OpenStore(dev Dev) (*Store, error) {
	sBlock, err := loadSuperblock(dev)
	if err != nil {
		return nil, err
	}
	if err := validateSuperblock(dev, sBlock); err != nil {
		return nil, err
	}

	return &Store{
		dev:    dev,
		sBlock: sBlock,
	}, nil
}

// NBlocks returns the number of block addresses available on the device, including the superblock.
func (s *Store) NBlocks() uint64 {
	return s.sBlock.V.NBlocks
}

// LastBlock returns the highest block id persisted in the store.
func (s *Store) LastBlock() types.BlockID {
	return types.BlockID(s.sBlock.V.LastBlock)
}

// SetLastBlock stores the highest block id persisted in the store.
func (s *Store) SetLastBlock(id types.BlockID) error {
	if uint64(id) >= s.sBlock.V.NBlocks {
		return errors.Errorf("block %d does not fit into the device of %d blocks", id, s.sBlock.V.NBlocks)
	}
	s.sBlock.V.LastBlock = uint64(id)
	s.sBlock.V.Checksum = s.sBlock.V.ComputeChecksum()
	return writeSuperblock(s.dev, s.sBlock.B)
}

// ReadBlock reads the addressed block and verifies its checksum.
func (s *Store) ReadBlock(id types.BlockID, p []byte) error {
	if err := s.validateAccess(id, p); err != nil {
		return err
	}

	if err := s.readAt(int64(id)*types.BlockSize, p); err != nil {
		return err
	}

	var stored uint64
	if err := s.readAt(checksumAddress(id), photon.NewFromValue(&stored).B); err != nil {
		return err
	}
	if computed := xxhash.Sum64(p); computed != stored {
		return errors.Wrapf(ErrChecksumMismatch, "block %d, computed: %x, stored: %x", id, computed, stored)
	}
	return nil
}

// WriteBlock writes the addressed block together with its checksum.
func (s *Store) WriteBlock(id types.BlockID, p []byte) error {
	if err := s.validateAccess(id, p); err != nil {
		return err
	}

	if err := s.writeAt(int64(id)*types.BlockSize, p); err != nil {
		return err
	}

	checksum := xxhash.Sum64(p)
	return s.writeAt(checksumAddress(id), photon.NewFromValue(&checksum).B)
}

// Sync forces data to be written to the dev.
func (s *Store) Sync() error {
	return errors.WithStack(s.dev.Sync())
}

func (s *Store) validateAccess(id types.BlockID, p []byte) error {
	if len(p) != types.BlockSize {
		return errors.Errorf("invalid size of buffer: %d", len(p))
	}
	if id == 0 {
		return errors.New("block 0 is reserved for the superblock")
	}
	if uint64(id) >= s.sBlock.V.NBlocks {
		return errors.Errorf("block %d does not fit into the device of %d blocks", id, s.sBlock.V.NBlocks)
	}
	return nil
}

func (s *Store) readAt(address int64, p []byte) error {
	if _, err := s.dev.Seek(address, io.SeekStart); err != nil {
		return errors.WithStack(err)
	}
	if _, err := io.ReadFull(s.dev, p); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (s *Store) writeAt(address int64, p []byte) error {
	if _, err := s.dev.Seek(address, io.SeekStart); err != nil {
		return errors.WithStack(err)
	}
	if _, err := s.dev.Write(p); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func checksumAddress(id types.BlockID) int64 {
	return checksumsOffset + int64(id)*checksumWidth
}

func validateSuperblock(dev Dev, sBlock photon.Union[*Superblock]) error {
	if sBlock.V.StoreID&storeSubject != storeSubject {
		return errors.New("device does not contain block store")
	}

	checksumComputed := sBlock.V.ComputeChecksum()
	if sBlock.V.Checksum != checksumComputed {
		return errors.Errorf("checksum mismatch for the superblock, computed: %s, stored: %s",
			hex.EncodeToString(checksumComputed[:]), hex.EncodeToString(sBlock.V.Checksum[:]))
	}

	if sBlock.V.BlockSize != types.BlockSize {
		return errors.Errorf("block size mismatch, expected: %d, stored: %d", types.BlockSize, sBlock.V.BlockSize)
	}

	if sBlock.V.NBlocks > maxNBlocks {
		return errors.Errorf("number of blocks %d exceeds the capacity of the checksum table: %d",
			sBlock.V.NBlocks, maxNBlocks)
	}

	if nBlocks := uint64(dev.Size() / types.BlockSize); sBlock.V.NBlocks > nBlocks {
		return errors.Errorf("device is smaller than expected, expected blocks: %d, available: %d",
			sBlock.V.NBlocks, nBlocks)
	}

	return nil
}
