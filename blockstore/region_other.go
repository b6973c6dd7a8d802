//go:build !unix

package blockstore

import (
	"github.com/AlanDZQ/noisepage/types"
)

func allocRegion() (*types.RawBlock, error) {
	return new(types.RawBlock), nil
}

func freeRegion(raw *types.RawBlock) error {
	return nil
}
