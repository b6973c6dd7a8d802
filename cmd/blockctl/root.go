package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/AlanDZQ/noisepage/layout"
)

var (
	// Global flags
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "blockctl",
	Short: "Create, fill and inspect block files",
	Long: `blockctl computes block layouts and manages files storing
column-organized blocks of fixed size.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// parseLayout builds the layout from attribute sizes given on the command line.
func parseLayout(sizes []int) (layout.BlockLayout, error) {
	attrSizes := make([]uint8, 0, len(sizes))
	for i, size := range sizes {
		if size <= 0 || size > 0xff {
			return layout.BlockLayout{}, errors.Errorf("attribute %d: size %d is out of range [1, 255]", i, size)
		}
		attrSizes = append(attrSizes, uint8(size))
	}
	if len(attrSizes) > 0xffff {
		return layout.BlockLayout{}, errors.Errorf("too many attributes: %d", len(attrSizes))
	}
	return layout.New(uint16(len(attrSizes)), attrSizes)
}
