package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dunamismax/pixelforge/internal/domain"
	"github.com/dunamismax/pixelforge/internal/inpaint"
	"github.com/spf13/cobra"
)

func newInpaintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inpaint [files...]",
		Short: "Fill a masked region from its surroundings",
		Long: "Fill a masked region from its surroundings. The mask is either an image whose\n" +
			"opaque pixels mark the region, or brush strokes given as x,y,radius.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			maskPath, _ := cmd.Flags().GetString("mask")
			rawStrokes, _ := cmd.Flags().GetStringArray("stroke")
			if maskPath == "" && len(rawStrokes) == 0 {
				return errors.New("inpaint needs --mask or at least one --stroke")
			}

			strokes := make([]inpaint.BrushStroke, 0, len(rawStrokes))
			for _, raw := range rawStrokes {
				s, err := parseStroke(raw)
				if err != nil {
					return err
				}
				strokes = append(strokes, s)
			}

			maskWidth, _ := cmd.Flags().GetInt("mask-width")
			maskHeight, _ := cmd.Flags().GetInt("mask-height")
			return runBatch(cmd, args, domain.PipelineStep{
				ID:         "inpaint",
				Action:     domain.ActionInpaint,
				MaskKey:    maskPath,
				Strokes:    strokes,
				MaskWidth:  maskWidth,
				MaskHeight: maskHeight,
			})
		},
	}
	cmd.Flags().StringP("mask", "m", "", "Mask image path")
	cmd.Flags().StringArray("stroke", nil, "Brush dab as x,y,radius (repeatable)")
	cmd.Flags().Int("mask-width", 0, "Width of the canvas the strokes were painted on (0 uses the image width)")
	cmd.Flags().Int("mask-height", 0, "Height of the canvas the strokes were painted on (0 uses the image height)")
	return cmd
}

func parseStroke(raw string) (inpaint.BrushStroke, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 3 {
		return inpaint.BrushStroke{}, fmt.Errorf("stroke %q: want x,y,radius", raw)
	}
	var vals [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return inpaint.BrushStroke{}, fmt.Errorf("stroke %q: %w", raw, err)
		}
		vals[i] = v
	}
	return inpaint.BrushStroke{X: vals[0], Y: vals[1], Radius: vals[2]}, nil
}
