package main

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/AlanDZQ/noisepage/blocks"
	"github.com/AlanDZQ/noisepage/table"
	"github.com/AlanDZQ/noisepage/types"
)

var (
	fillSizes     []int
	fillRows      int
	fillNullEvery int
)

func init() {
	cmd := newFillCmd()
	cmd.Flags().IntSliceVar(&fillSizes, "sizes", nil, "Comma separated attribute sizes, primary key first")
	cmd.Flags().IntVar(&fillRows, "rows", 1000, "Number of rows to insert")
	cmd.Flags().IntVar(&fillNullEvery, "null-every", 0, "Store null in non-key attributes of every n-th row (0 = never)")
	_ = cmd.MarkFlagRequired("sizes")
	rootCmd.AddCommand(cmd)
}

func newFillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fill <file>",
		Short: "Insert synthetic rows into the block file",
		Long: `The fill command inserts generated rows into blocks of the given layout.
Existing blocks of the same layout are filled first, new blocks are added when they are full.

Example:
  blockctl fill blocks.dat --sizes 4,8 --rows 100000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFill(cmd, args[0])
		},
	}
}

func runFill(cmd *cobra.Command, path string) error {
	l, err := parseLayout(fillSizes)
	if err != nil {
		return err
	}
	if fillRows < 0 {
		return errors.Errorf("invalid number of rows: %d", fillRows)
	}

	s, err := openStore(path)
	if err != nil {
		return err
	}
	defer s.close()

	t, err := table.New(table.Config{Layout: l, Source: s.blocks})
	if err != nil {
		return err
	}

	var attachErr error
	s.blocks.Ascend(func(id types.BlockID, raw *types.RawBlock) bool {
		blockLayout, err := blocks.ReadLayout(raw)
		if err != nil || !blockLayout.Equal(l) {
			slog.Debug("skipping block of different layout", "blockID", id)
			return true
		}
		attachErr = t.Attach(raw)
		return attachErr == nil
	})
	if attachErr != nil {
		return attachErr
	}

	for i := 0; i < fillRows; i++ {
		if _, err := t.Insert(syntheticRow(l.AttrSizes(), i)); err != nil {
			return errors.Wrapf(err, "inserting row %d", i)
		}
	}

	if err := s.flush(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "inserted %d rows, table has %d rows in %d blocks\n",
		fillRows, t.NumRecords(), t.NumBlocks())
	return nil
}

func syntheticRow(sizes []uint8, i int) table.Row {
	row := make(table.Row, len(sizes))
	for column, size := range sizes {
		if column != 0 && fillNullEvery > 0 && i%fillNullEvery == 0 {
			continue
		}
		var seed [8]byte
		binary.LittleEndian.PutUint64(seed[:], uint64(i)+uint64(column))
		value := make([]byte, size)
		for j := range value {
			value[j] = seed[j%len(seed)]
		}
		row[column] = value
	}
	return row
}
