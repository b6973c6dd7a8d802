package main

import (
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/AlanDZQ/noisepage/persistence"
	"github.com/AlanDZQ/noisepage/pkg/filedev"
	"github.com/AlanDZQ/noisepage/types"
)

var (
	createBlocks    int
	createOverwrite bool
)

func init() {
	cmd := newCreateCmd()
	cmd.Flags().IntVar(&createBlocks, "blocks", 16, "Number of data blocks the file can store")
	cmd.Flags().BoolVar(&createOverwrite, "overwrite", false, "Overwrite existing block store")
	rootCmd.AddCommand(cmd)
}

func newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <file>",
		Short: "Create new block file",
		Long: `The create command creates the file and initializes the block store in it.

Example:
  blockctl create blocks.dat --blocks 64`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if createBlocks < 1 {
				return errors.Errorf("invalid number of blocks: %d", createBlocks)
			}

			dev, err := filedev.Open(args[0], int64(createBlocks+1)*types.BlockSize)
			if err != nil {
				return err
			}
			defer dev.Close()

			if err := persistence.Initialize(dev, createOverwrite); err != nil {
				return err
			}

			slog.Debug("block store created", "path", args[0], "size", dev.Size())
			fmt.Fprintf(cmd.OutOrStdout(), "created %s with space for %d blocks\n",
				args[0], dev.Size()/types.BlockSize-1)
			return nil
		},
	}
}
