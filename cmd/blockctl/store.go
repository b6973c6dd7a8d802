package main

import (
	"github.com/AlanDZQ/noisepage/blockstore"
	"github.com/AlanDZQ/noisepage/persistence"
	"github.com/AlanDZQ/noisepage/pkg/filedev"
)

// openedStore groups everything needed to work with the block file.
type openedStore struct {
	dev         *filedev.FileDev
	persistence *persistence.Store
	blocks      *blockstore.Store
}

func openStore(path string) (*openedStore, error) {
	dev, err := filedev.Open(path, 0)
	if err != nil {
		return nil, err
	}

	p, err := persistence.OpenStore(dev)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}

	bs := blockstore.New(blockstore.Config{MaxBlocks: int(p.NBlocks() - 1)})
	if err := bs.Load(p); err != nil {
		_ = bs.Close()
		_ = dev.Close()
		return nil, err
	}

	return &openedStore{
		dev:         dev,
		persistence: p,
		blocks:      bs,
	}, nil
}

func (s *openedStore) flush() error {
	return s.blocks.Flush(s.persistence)
}

func (s *openedStore) close() error {
	if err := s.blocks.Close(); err != nil {
		_ = s.dev.Close()
		return err
	}
	return s.dev.Close()
}
