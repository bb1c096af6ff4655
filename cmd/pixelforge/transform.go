package main

import (
	"github.com/dunamismax/pixelforge/internal/domain"
	"github.com/dunamismax/pixelforge/internal/raster"
	"github.com/spf13/cobra"
)

func newResizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resize [files...]",
		Short: "Scale images to a width and/or height",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			width, _ := cmd.Flags().GetInt("width")
			height, _ := cmd.Flags().GetInt("height")
			return runBatch(cmd, args, domain.PipelineStep{
				ID:     "resize",
				Action: domain.ActionResize,
				Width:  width,
				Height: height,
			})
		},
	}
	cmd.Flags().IntP("width", "W", 0, "Target width (0 keeps the aspect ratio)")
	cmd.Flags().IntP("height", "H", 0, "Target height (0 keeps the aspect ratio)")
	return cmd
}

func newCropCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crop [files...]",
		Short: "Cut a rectangle out of images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rect raster.Rect
			rect.X, _ = cmd.Flags().GetFloat64("x")
			rect.Y, _ = cmd.Flags().GetFloat64("y")
			rect.Width, _ = cmd.Flags().GetFloat64("width")
			rect.Height, _ = cmd.Flags().GetFloat64("height")
			return runBatch(cmd, args, domain.PipelineStep{
				ID:     "crop",
				Action: domain.ActionCrop,
				Crop:   &rect,
			})
		},
	}
	cmd.Flags().Float64("x", 0, "Left edge")
	cmd.Flags().Float64("y", 0, "Top edge")
	cmd.Flags().Float64P("width", "W", 0, "Crop width")
	cmd.Flags().Float64P("height", "H", 0, "Crop height")
	cmd.MarkFlagRequired("width")
	cmd.MarkFlagRequired("height")
	return cmd
}

func newRotateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotate [files...]",
		Short: "Rotate images clockwise by 90, 180 or 270 degrees",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			degrees, _ := cmd.Flags().GetInt("degrees")
			return runBatch(cmd, args, domain.PipelineStep{
				ID:      "rotate",
				Action:  domain.ActionRotate,
				Degrees: degrees,
			})
		},
	}
	cmd.Flags().IntP("degrees", "d", 90, "Clockwise angle")
	return cmd
}

func newRemoveBackgroundCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove-bg [files...]",
		Short: "Make the estimated background transparent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			step := domain.PipelineStep{ID: "remove-bg", Action: domain.ActionRemoveBackground}
			if cmd.Flags().Changed("strength") {
				strength, _ := cmd.Flags().GetFloat64("strength")
				step.Strength = &strength
			}
			return runBatch(cmd, args, step)
		},
	}
	cmd.Flags().Float64P("strength", "s", 0.6, "Removal strength 0-1")
	return cmd
}
