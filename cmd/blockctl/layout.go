package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AlanDZQ/noisepage/layout"
	"github.com/AlanDZQ/noisepage/types"
)

var layoutSizes []int

func init() {
	cmd := newLayoutCmd()
	cmd.Flags().IntSliceVar(&layoutSizes, "sizes", nil, "Comma separated attribute sizes, primary key first")
	_ = cmd.MarkFlagRequired("sizes")
	rootCmd.AddCommand(cmd)
}

func newLayoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layout",
		Short: "Print the layout of blocks for the attribute sizes",
		Long: `The layout command computes the physical shape of a block storing tuples
with the given attribute sizes.

Example:
  blockctl layout --sizes 4,8`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := parseLayout(layoutSizes)
			if err != nil {
				return err
			}
			printLayout(cmd.OutOrStdout(), l)
			return nil
		},
	}
}

func printLayout(w io.Writer, l layout.BlockLayout) {
	fmt.Fprintf(w, "block size:  %d\n", types.BlockSize)
	fmt.Fprintf(w, "attributes:  %d\n", l.NumAttrs())
	fmt.Fprintf(w, "tuple size:  %d\n", l.TupleSize())
	fmt.Fprintf(w, "header size: %d\n", l.HeaderSize())
	fmt.Fprintf(w, "slots:       %d\n", l.NumSlots())

	offset := l.HeaderSize()
	for i := types.ColumnID(0); i < types.ColumnID(l.NumAttrs()); i++ {
		fmt.Fprintf(w, "column %d: size %d, offset %d, values at %d\n",
			i, l.AttrSize(i), offset, offset+l.BitmapSize())
		offset += l.MiniBlockSize(i)
	}
	fmt.Fprintf(w, "unused:      %d\n", types.BlockSize-offset)
}
