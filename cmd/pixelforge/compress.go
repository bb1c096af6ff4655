package main

import (
	"github.com/dunamismax/pixelforge/internal/domain"
	"github.com/spf13/cobra"
)

func newCompressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compress [files...]",
		Short: "Re-encode images below their original size",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, _ := cmd.Flags().GetString("mode")
			return runBatch(cmd, args, domain.PipelineStep{
				ID:     "compress",
				Action: domain.ActionCompress,
				Mode:   mode,
			})
		},
	}
	cmd.Flags().String("mode", "balanced", "Compression mode: maximum, balanced or quality")
	return cmd
}

func newConvertJPEGCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert-jpeg [files...]",
		Short: "Flatten images onto white and encode them as JPEG",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, args, domain.PipelineStep{
				ID:     "convert-jpeg",
				Action: domain.ActionConvertJPEG,
			})
		},
	}
}
