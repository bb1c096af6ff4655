package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestJobIDsDisambiguatesRepeatedNames(t *testing.T) {
	got := jobIDs([]string{"a/photo.png", "b/photo.jpg", "c/other.png", "photo-2.png", "d/photo.webp"})
	want := []string{"photo", "photo-2", "other", "photo-2-2", "photo-3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("jobIDs()[%d]=%q, want %q", i, got[i], want[i])
		}
	}
}

func TestRatioSuffix(t *testing.T) {
	smaller, larger := 25.0, -12.0
	tests := []struct {
		ratio *float64
		want  string
	}{
		{nil, ""},
		{&smaller, " (25.0% smaller)"},
		{&larger, " (12.0% larger)"},
	}
	for _, tc := range tests {
		if got := ratioSuffix(tc.ratio); got != tc.want {
			t.Fatalf("ratioSuffix() = %q, want %q", got, tc.want)
		}
	}
}

func TestParseStroke(t *testing.T) {
	s, err := parseStroke("12, 4.5,3")
	if err != nil {
		t.Fatalf("parse stroke: %v", err)
	}
	if s.X != 12 || s.Y != 4.5 || s.Radius != 3 {
		t.Fatalf("unexpected stroke %+v", s)
	}

	for _, bad := range []string{"1,2", "a,b,c", ""} {
		if _, err := parseStroke(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestResizeCommandWritesOutput(t *testing.T) {
	dir := t.TempDir()
	input := writeTestPNG(t, dir, "input.png", 40, 20)
	outDir := filepath.Join(dir, "out")

	stdout, err := execute(t, "resize", "--width", "20", "--out", outDir, "-q", input)
	if err != nil {
		t.Fatalf("resize: %v", err)
	}
	if !strings.Contains(stdout, "20x10") {
		t.Fatalf("expected new dimensions in output, got %q", stdout)
	}
	if _, err := os.Stat(filepath.Join(outDir, "input", "resize.png")); err != nil {
		t.Fatalf("expected output file: %v", err)
	}
}

func TestInpaintCommandUsesStrokes(t *testing.T) {
	dir := t.TempDir()
	input := writeTestPNG(t, dir, "mark.png", 16, 16)
	outDir := filepath.Join(dir, "out")

	if _, err := execute(t, "inpaint", "--stroke", "8,8,3", "--out", outDir, "-q", input); err != nil {
		t.Fatalf("inpaint: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "mark", "inpaint.png")); err != nil {
		t.Fatalf("expected output file: %v", err)
	}
}

func TestCommandsRejectBadArguments(t *testing.T) {
	dir := t.TempDir()
	input := writeTestPNG(t, dir, "input.png", 8, 8)
	outDir := filepath.Join(dir, "out")

	tests := map[string][]string{
		"odd angle":    {"rotate", "--degrees", "45", "--out", outDir, input},
		"no mask":      {"inpaint", "--out", outDir, input},
		"bad mode":     {"compress", "--mode", "tiny", "--out", outDir, input},
		"no inputs":    {"convert-jpeg", "--out", outDir},
		"missing file": {"resize", "--width", "4", "--out", outDir, "-q", filepath.Join(dir, "nope.png")},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := execute(t, args...); err == nil {
				t.Fatalf("expected %v to fail", args)
			}
		})
	}
}

func TestBatchCountsFailedFiles(t *testing.T) {
	dir := t.TempDir()
	good := writeTestPNG(t, dir, "good.png", 8, 8)
	outDir := filepath.Join(dir, "out")

	_, err := execute(t, "rotate", "--out", outDir, "-q", good, filepath.Join(dir, "gone.png"))
	if err == nil || !strings.Contains(err.Error(), "1 of 2 files failed") {
		t.Fatalf("expected one failed file out of two, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "good", "rotate.png")); err != nil {
		t.Fatalf("expected the good file to be written: %v", err)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func writeTestPNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 5), G: uint8(y * 5), B: 120, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write png: %v", err)
	}
	return path
}
