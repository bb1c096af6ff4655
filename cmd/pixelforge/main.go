package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pixelforge",
		Short:         "Resize, crop, rotate, cut out, inpaint and compress images",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("out", "o", "./pixelforge-out", "Output directory")
	root.PersistentFlags().String("format", "", "Output format: jpeg, png or webp")
	root.PersistentFlags().Int("quality", 0, "Encoder quality 1-100 (0 uses the default)")
	root.PersistentFlags().BoolP("quiet", "q", false, "Do not print progress")

	root.AddCommand(
		newResizeCmd(),
		newCropCmd(),
		newRotateCmd(),
		newRemoveBackgroundCmd(),
		newInpaintCmd(),
		newCompressCmd(),
		newConvertJPEGCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
