package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AlanDZQ/noisepage/access"
	"github.com/AlanDZQ/noisepage/blocks"
	"github.com/AlanDZQ/noisepage/types"
)

func init() {
	rootCmd.AddCommand(newInspectCmd())
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print headers of blocks stored in the file",
		Long: `The inspect command prints the header of every block stored in the file
together with the number of occupied slots and non-null attributes.

Example:
  blockctl inspect blocks.dat`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(args[0])
			if err != nil {
				return err
			}
			defer s.close()

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "blocks: %d, capacity: %d\n", s.blocks.Len(), s.persistence.NBlocks()-1)

			var inspectErr error
			s.blocks.Ascend(func(id types.BlockID, raw *types.RawBlock) bool {
				inspectErr = inspectBlock(w, raw)
				return inspectErr == nil
			})
			return inspectErr
		},
	}
}

func inspectBlock(w io.Writer, raw *types.RawBlock) error {
	l, err := blocks.ReadLayout(raw)
	if err != nil {
		return err
	}
	h := blocks.HeaderOf(raw, l)
	strategy := access.New(l)

	fmt.Fprintf(w, "block %d: slots %d, records %d, attributes %d\n",
		h.BlockID(), h.NumSlots(), *h.NumRecords(), h.NumAttrs())
	for i := types.ColumnID(0); i < types.ColumnID(h.NumAttrs()); i++ {
		fmt.Fprintf(w, "  column %d: size %d, offset %d, not null %d\n",
			i, h.AttrSizes()[i], h.AttrOffset(i), strategy.ColumnNullBitmap(raw, i).Count())
	}
	return nil
}
