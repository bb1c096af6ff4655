package geometry

import (
	"errors"
	"image/color"
	"math"
	"testing"

	"github.com/dunamismax/pixelforge/internal/raster"
)

func TestResizeRejectsNonPositiveTarget(t *testing.T) {
	src := gradient(t, 8, 8)
	for _, tc := range []struct{ w, h int }{{0, 4}, {4, 0}, {-1, 4}} {
		if _, err := Resize(src, tc.w, tc.h); !errors.Is(err, raster.ErrInvalidDimension) {
			t.Fatalf("resize %dx%d: expected ErrInvalidDimension, got %v", tc.w, tc.h, err)
		}
	}
}

func TestResizeRejectsHugeTarget(t *testing.T) {
	src := gradient(t, 8, 8)
	for _, tc := range []struct{ w, h int }{{1 << 40, 1 << 40}, {1 << 20, 1 << 20}, {raster.MaxPixels, 2}} {
		if _, err := Resize(src, tc.w, tc.h); !errors.Is(err, raster.ErrInvalidDimension) {
			t.Fatalf("resize %dx%d: expected ErrInvalidDimension, got %v", tc.w, tc.h, err)
		}
	}
}

func TestResizeProducesTargetSize(t *testing.T) {
	src := gradient(t, 40, 20)
	out, err := Resize(src, 13, 31)
	if err != nil {
		t.Fatalf("resize: %v", err)
	}
	if out.Width != 13 || out.Height != 31 || len(out.Pix) != 13*31*4 {
		t.Fatalf("unexpected output %dx%d with %d samples", out.Width, out.Height, len(out.Pix))
	}
}

func TestResizeIsIdempotentOnSameTarget(t *testing.T) {
	src := gradient(t, 64, 48)
	once, err := Resize(src, 20, 15)
	if err != nil {
		t.Fatalf("resize: %v", err)
	}
	twice, err := Resize(once, 20, 15)
	if err != nil {
		t.Fatalf("resize again: %v", err)
	}
	if !once.Equal(twice) {
		t.Fatal("expected resize to the same target to be byte-identical")
	}
	if &once.Pix[0] == &twice.Pix[0] {
		t.Fatal("expected a fresh buffer, got an alias")
	}
}

func TestResizeIsDeterministic(t *testing.T) {
	src := gradient(t, 50, 30)
	a, _ := Resize(src, 77, 41)
	b, _ := Resize(src, 77, 41)
	if !a.Equal(b) {
		t.Fatal("expected identical output across runs")
	}
}

func TestResizeSolidColorStaysSolid(t *testing.T) {
	src, _ := raster.NewBuffer(10, 10)
	src.Fill(color.NRGBA{R: 30, G: 60, B: 90, A: 255})

	out, err := Resize(src, 25, 7)
	if err != nil {
		t.Fatalf("resize: %v", err)
	}
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			if got := out.At(x, y); got != (color.NRGBA{R: 30, G: 60, B: 90, A: 255}) {
				t.Fatalf("pixel (%d,%d) = %+v, want solid colour", x, y, got)
			}
		}
	}
}

func TestCropCopiesRegion(t *testing.T) {
	src := gradient(t, 10, 8)
	out, err := Crop(src, raster.Rect{X: 2, Y: 3, Width: 4, Height: 2})
	if err != nil {
		t.Fatalf("crop: %v", err)
	}
	if out.Width != 4 || out.Height != 2 {
		t.Fatalf("expected 4x2, got %dx%d", out.Width, out.Height)
	}
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			if out.At(x, y) != src.At(x+2, y+3) {
				t.Fatalf("pixel (%d,%d) does not match source", x, y)
			}
		}
	}
}

func TestCropClampsOutOfRangeRect(t *testing.T) {
	src := gradient(t, 10, 8)
	tests := []struct {
		name string
		in   raster.Rect
		want [4]int
	}{
		{name: "negative origin", in: raster.Rect{X: -5, Y: -1, Width: 3, Height: 3}, want: [4]int{0, 0, 3, 3}},
		{name: "overflowing origin", in: raster.Rect{X: 9, Y: 7, Width: 4, Height: 4}, want: [4]int{6, 4, 4, 4}},
		{name: "fractional values", in: raster.Rect{X: 1.9, Y: 2.2, Width: 3.7, Height: 2.9}, want: [4]int{1, 2, 3, 2}},
		{name: "zero size", in: raster.Rect{X: 4, Y: 4, Width: 0, Height: 0.5}, want: [4]int{4, 4, 1, 1}},
		{name: "oversized", in: raster.Rect{X: 3, Y: 3, Width: 50, Height: 50}, want: [4]int{0, 0, 10, 8}},
		{name: "beyond int range", in: raster.Rect{Width: 1e30, Height: 4}, want: [4]int{0, 0, 10, 4}},
		{name: "far origin", in: raster.Rect{X: -1e30, Y: 1e30, Width: 2, Height: 2}, want: [4]int{0, 6, 2, 2}},
		{name: "not a number", in: raster.Rect{X: math.NaN(), Y: 1, Width: math.NaN(), Height: math.Inf(1)}, want: [4]int{0, 0, 1, 8}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ClampRect(tc.in, src.Width, src.Height)
			if got.Min.X != tc.want[0] || got.Min.Y != tc.want[1] || got.Dx() != tc.want[2] || got.Dy() != tc.want[3] {
				t.Fatalf("ClampRect(%+v) = %v, want %v", tc.in, got, tc.want)
			}
			if _, err := Crop(src, tc.in); err != nil {
				t.Fatalf("crop: %v", err)
			}
		})
	}
}

func TestCropOfEmptyImageFails(t *testing.T) {
	src, _ := raster.NewBuffer(0, 5)
	if _, err := Crop(src, raster.Rect{Width: 1, Height: 1}); !errors.Is(err, raster.ErrEmptyRegion) {
		t.Fatalf("expected ErrEmptyRegion, got %v", err)
	}
}

func TestRecropOfFullResultIsIdentity(t *testing.T) {
	src := gradient(t, 30, 20)
	r := raster.Rect{X: 5, Y: 4, Width: 12, Height: 9}
	first, err := Crop(src, r)
	if err != nil {
		t.Fatalf("crop: %v", err)
	}
	second, err := Crop(first, raster.Rect{Width: r.Width, Height: r.Height})
	if err != nil {
		t.Fatalf("recrop: %v", err)
	}
	if !first.Equal(second) {
		t.Fatal("expected re-cropping the full result to be a no-op")
	}
}

func TestRotateQuarterTurnIsClockwise(t *testing.T) {
	src, _ := raster.NewBuffer(3, 2)
	// a b c
	// d e f
	names := []uint8{'a', 'b', 'c', 'd', 'e', 'f'}
	for i, n := range names {
		src.Set(i%3, i/3, color.NRGBA{R: n, A: 255})
	}

	out, err := Rotate(src, 90)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if out.Width != 2 || out.Height != 3 {
		t.Fatalf("expected swapped 2x3 canvas, got %dx%d", out.Width, out.Height)
	}
	// d a
	// e b
	// f c
	want := []uint8{'d', 'a', 'e', 'b', 'f', 'c'}
	for i, n := range want {
		if got := out.At(i%2, i/2).R; got != n {
			t.Fatalf("pixel %d = %q, want %q", i, got, n)
		}
	}
}

func TestRotateFourQuarterTurnsIsIdentity(t *testing.T) {
	src := gradient(t, 7, 4)
	out := src
	for i := 0; i < 4; i++ {
		var err error
		out, err = Rotate(out, 90)
		if err != nil {
			t.Fatalf("rotate %d: %v", i, err)
		}
	}
	if !out.Equal(src) {
		t.Fatal("expected four quarter turns to restore the input")
	}
}

func TestRotateHalfTurnKeepsSize(t *testing.T) {
	src := gradient(t, 5, 3)
	out, err := Rotate(src, 180)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if out.Width != 5 || out.Height != 3 {
		t.Fatalf("expected 5x3, got %dx%d", out.Width, out.Height)
	}
	if out.At(0, 0) != src.At(4, 2) {
		t.Fatal("expected top-left to come from bottom-right")
	}

	back, _ := Rotate(src, 270)
	forward, _ := Rotate(back, 90)
	if !forward.Equal(src) {
		t.Fatal("expected 270 then 90 to restore the input")
	}
}

func TestRotateRejectsOtherAngles(t *testing.T) {
	src := gradient(t, 2, 2)
	for _, deg := range []int{45, -90, 360, 1} {
		if _, err := Rotate(src, deg); !errors.Is(err, raster.ErrUnsupportedAngle) {
			t.Fatalf("rotate %d: expected ErrUnsupportedAngle, got %v", deg, err)
		}
	}
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{w: 4000, h: 3000, max: 2000, wantW: 2000, wantH: 1500},
		{w: 1000, h: 3000, max: 2000, wantW: 667, wantH: 2000},
		{w: 1500, h: 800, max: 2000, wantW: 1500, wantH: 800},
	}
	for _, tc := range tests {
		gotW, gotH := FitWithin(tc.w, tc.h, tc.max)
		if gotW != tc.wantW || gotH != tc.wantH {
			t.Fatalf("FitWithin(%d,%d,%d) = %dx%d, want %dx%d", tc.w, tc.h, tc.max, gotW, gotH, tc.wantW, tc.wantH)
		}
	}
}

func gradient(t *testing.T, w, h int) *raster.Buffer {
	t.Helper()

	buf, err := raster.NewBuffer(w, h)
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			buf.Set(x, y, color.NRGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: uint8((x*7 + y*13) % 256),
				A: 255,
			})
		}
	}
	return buf
}
