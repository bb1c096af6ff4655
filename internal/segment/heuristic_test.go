package segment

import (
	"context"
	"errors"
	"image/color"
	"slices"
	"testing"

	"github.com/dunamismax/pixelforge/internal/raster"
)

func TestRemoveBackgroundSolidColorIsTransparent(t *testing.T) {
	h := NewHeuristic(DefaultOptions())
	for _, strength := range []float64{0, 0.3, 0.6, 1} {
		src := solid(t, 20, 12, color.NRGBA{R: 40, G: 180, B: 90, A: 255})
		out, err := h.RemoveBackground(context.Background(), src, strength, nil)
		if err != nil {
			t.Fatalf("strength %.1f: %v", strength, err)
		}
		for i := 3; i < len(out.Pix); i += 4 {
			if out.Pix[i] != 0 {
				t.Fatalf("strength %.1f: expected alpha 0 at sample %d, got %d", strength, i, out.Pix[i])
			}
		}
	}
}

func TestRemoveBackgroundAllBlackAtFullStrength(t *testing.T) {
	src := solid(t, 4, 4, color.NRGBA{A: 255})
	if bg := EstimateBackground(src, 8); bg != (color.NRGBA{A: 255}) {
		t.Fatalf("expected black background estimate, got %+v", bg)
	}

	out, err := NewHeuristic(DefaultOptions()).RemoveBackground(context.Background(), src, 1, nil)
	if err != nil {
		t.Fatalf("remove background: %v", err)
	}
	for i := 3; i < len(out.Pix); i += 4 {
		if out.Pix[i] != 0 {
			t.Fatalf("expected fully transparent output, got alpha %d", out.Pix[i])
		}
	}
}

func TestRemoveBackgroundKeepsForegroundOpaque(t *testing.T) {
	src := solid(t, 9, 9, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	for y := 3; y < 6; y++ {
		for x := 3; x < 6; x++ {
			src.Set(x, y, color.NRGBA{R: 200, A: 255})
		}
	}

	// Strength 0 disables feathering, so the matte is exactly the hard mask.
	out, err := NewHeuristic(DefaultOptions()).RemoveBackground(context.Background(), src, 0, nil)
	if err != nil {
		t.Fatalf("remove background: %v", err)
	}
	if got := out.At(4, 4); got != (color.NRGBA{R: 200, A: 255}) {
		t.Fatalf("expected opaque foreground pixel, got %+v", got)
	}
	if got := out.At(0, 0); got != (color.NRGBA{R: 255, G: 255, B: 255, A: 0}) {
		t.Fatalf("expected transparent background with RGB untouched, got %+v", got)
	}
	if src.At(0, 0).A != 255 {
		t.Fatal("input buffer was mutated")
	}
}

func TestRemoveBackgroundFeathersEdges(t *testing.T) {
	src := solid(t, 40, 40, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	for y := 10; y < 30; y++ {
		for x := 10; x < 30; x++ {
			src.Set(x, y, color.NRGBA{A: 255})
		}
	}

	out, err := NewHeuristic(DefaultOptions()).RemoveBackground(context.Background(), src, 0.3, nil)
	if err != nil {
		t.Fatalf("remove background: %v", err)
	}
	edge := out.At(10, 20).A
	if edge == 0 || edge == 255 {
		t.Fatalf("expected partial alpha on the feathered edge, got %d", edge)
	}
	if out.At(20, 20).A < edge {
		t.Fatal("expected the centre to be at least as opaque as the edge")
	}
}

func TestRemoveBackgroundZeroBlurKeepsHardEdges(t *testing.T) {
	src := solid(t, 40, 40, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	for y := 10; y < 30; y++ {
		for x := 10; x < 30; x++ {
			src.Set(x, y, color.NRGBA{A: 255})
		}
	}

	opts := DefaultOptions()
	opts.BlurMax = 0
	out, err := NewHeuristic(opts).RemoveBackground(context.Background(), src, 0.3, nil)
	if err != nil {
		t.Fatalf("remove background: %v", err)
	}
	for i := 3; i < len(out.Pix); i += 4 {
		if a := out.Pix[i]; a != 0 && a != 255 {
			t.Fatalf("expected a hard matte, got alpha %d at sample %d", a, i)
		}
	}
	if out.At(10, 20).A != 255 || out.At(9, 20).A != 0 {
		t.Fatalf("expected the edge to switch between neighbouring pixels")
	}
}

func TestOptionsZeroThresholdAndBlurAreKept(t *testing.T) {
	got := NewHeuristic(Options{BaseThreshold: 0, BlurMax: 0}).Options()
	if got.BaseThreshold != 0 || got.BlurMax != 0 {
		t.Fatalf("expected zero threshold and blur to be kept, got %+v", got)
	}
	if got.SampleStep != 8 || got.MaxThreshold != 180 {
		t.Fatalf("expected other fields to default, got %+v", got)
	}

	got = NewHeuristic(Options{BaseThreshold: -1, BlurMax: -1}).Options()
	if got.BaseThreshold != 32 || got.BlurMax != 18 {
		t.Fatalf("expected negative values to default, got %+v", got)
	}
}

func TestRemoveBackgroundClampsStrength(t *testing.T) {
	src := solid(t, 16, 16, color.NRGBA{R: 10, G: 10, B: 10, A: 255})
	src.Set(8, 8, color.NRGBA{R: 250, G: 250, B: 250, A: 255})

	h := NewHeuristic(DefaultOptions())
	high, _ := h.RemoveBackground(context.Background(), src, 7, nil)
	one, _ := h.RemoveBackground(context.Background(), src, 1, nil)
	if !high.Equal(one) {
		t.Fatal("expected strength above 1 to behave like 1")
	}
	low, _ := h.RemoveBackground(context.Background(), src, -3, nil)
	zero, _ := h.RemoveBackground(context.Background(), src, 0, nil)
	if !low.Equal(zero) {
		t.Fatal("expected negative strength to behave like 0")
	}
}

func TestRemoveBackgroundReportsMilestones(t *testing.T) {
	var got []int
	src := solid(t, 8, 8, color.NRGBA{R: 1, A: 255})
	_, err := NewHeuristic(DefaultOptions()).RemoveBackground(context.Background(), src, 0.5, func(p int) {
		got = append(got, p)
	})
	if err != nil {
		t.Fatalf("remove background: %v", err)
	}
	if want := []int{10, 40, 70, 100}; !slices.Equal(got, want) {
		t.Fatalf("progress = %v, want %v", got, want)
	}
}

func TestRemoveBackgroundRejectsMissingPixels(t *testing.T) {
	h := NewHeuristic(DefaultOptions())
	if _, err := h.RemoveBackground(context.Background(), nil, 0.5, nil); !errors.Is(err, raster.ErrContextUnavailable) {
		t.Fatalf("expected ErrContextUnavailable, got %v", err)
	}
	broken := &raster.Buffer{Width: 3, Height: 3, Pix: make([]uint8, 4)}
	if _, err := h.RemoveBackground(context.Background(), broken, 0.5, nil); !errors.Is(err, raster.ErrContextUnavailable) {
		t.Fatalf("expected ErrContextUnavailable, got %v", err)
	}
}

func TestEstimateBackgroundRoundsBorderMean(t *testing.T) {
	src := solid(t, 2, 1, color.NRGBA{A: 255})
	src.Set(0, 0, color.NRGBA{R: 1, G: 2, B: 0, A: 255})
	// Each pixel of a one-row image is sampled three times; red averages 0.5.
	bg := EstimateBackground(src, 1)
	if bg.R != 1 || bg.G != 1 || bg.B != 0 {
		t.Fatalf("unexpected estimate %+v", bg)
	}

	empty, _ := raster.NewBuffer(0, 0)
	if got := EstimateBackground(empty, 8); got != (color.NRGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Fatalf("expected white for empty image, got %+v", got)
	}
}

func TestThresholdInterpolates(t *testing.T) {
	opts := DefaultOptions()
	if got := Threshold(opts, 0); got != 32 {
		t.Fatalf("threshold(0) = %v", got)
	}
	if got := Threshold(opts, 1); got != 180 {
		t.Fatalf("threshold(1) = %v", got)
	}
	if got := Threshold(opts, 0.5); got != 106 {
		t.Fatalf("threshold(0.5) = %v", got)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	remover, err := reg.New(HeuristicStrategy, Options{})
	if err != nil {
		t.Fatalf("new heuristic: %v", err)
	}
	if h, ok := remover.(*Heuristic); !ok || h.Options().SampleStep != 8 {
		t.Fatalf("expected heuristic with defaults, got %#v", remover)
	}

	if _, err := reg.New("onnx", Options{}); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}

	model := func(Options) (Remover, error) { return NewHeuristic(Options{}), nil }
	if err := reg.Register("model", model); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register("model", model); !errors.Is(err, ErrDuplicateStrategy) {
		t.Fatalf("expected ErrDuplicateStrategy, got %v", err)
	}
	if got := reg.Names(); !slices.Equal(got, []string{"heuristic", "model"}) {
		t.Fatalf("unexpected names %v", got)
	}
}

func solid(t *testing.T, w, h int, c color.NRGBA) *raster.Buffer {
	t.Helper()

	buf, err := raster.NewBuffer(w, h)
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}
	buf.Fill(c)
	return buf
}
