package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dunamismax/pixelforge/internal/codec"
	"github.com/dunamismax/pixelforge/internal/config"
	"github.com/dunamismax/pixelforge/internal/domain"
	"github.com/dunamismax/pixelforge/internal/pipeline"
	"github.com/dunamismax/pixelforge/internal/telemetry"
	"github.com/spf13/cobra"
)

// runBatch applies step to every input file and prints one line per output.
func runBatch(cmd *cobra.Command, inputs []string, step domain.PipelineStep) error {
	flags := cmd.Flags()
	outDir, _ := flags.GetString("out")
	step.Format, _ = flags.GetString("format")
	step.Quality, _ = flags.GetInt("quality")
	quiet, _ := flags.GetBool("quiet")

	if err := step.Validate(); err != nil {
		return err
	}

	if err := codec.Startup(); err != nil {
		return fmt.Errorf("codec startup: %w", err)
	}
	defer codec.Shutdown()

	cfg := config.Load()
	shutdownTracing, err := telemetry.SetupTracing(cmd.Context(), "pixelforge-cli", cfg.Telemetry, nil)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	engine, err := pipeline.NewEngine(codec.Default(), pipeline.EngineOptionsFromConfig(cfg.Engine))
	if err != nil {
		return err
	}
	logOut := cmd.ErrOrStderr()
	if quiet {
		logOut = io.Discard
	}
	proc, err := pipeline.NewLocalProcessor(outDir,
		pipeline.WithTransformer(engine),
		pipeline.WithLogger(log.New(logOut, "[pixelforge] ", log.LstdFlags|log.Lmsgprefix)),
	)
	if err != nil {
		return err
	}

	reqs := make([]pipeline.Request, len(inputs))
	for i, jobID := range jobIDs(inputs) {
		reqs[i] = pipeline.Request{
			JobID:      jobID,
			SourceType: pipeline.SourceTypeLocalFile,
			ObjectKey:  inputs[i],
			Pipeline:   []domain.PipelineStep{step},
		}
	}

	progress := make(chan pipeline.Progress, 16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		printProgress(logOut, len(reqs), progress)
	}()

	out := cmd.OutOrStdout()
	failed := 0
	for res := range proc.ProcessBatch(cmd.Context(), reqs, progress) {
		if res.Err != nil {
			failed++
			fmt.Fprintf(out, "%s: error: %v\n", res.Request.ObjectKey, res.Err)
			continue
		}
		fileFailed := false
		for _, o := range res.Result.Outputs {
			if !o.Success {
				fileFailed = true
				fmt.Fprintf(out, "%s: %s failed: %s\n", res.Request.ObjectKey, o.StepID, o.Error)
				continue
			}
			fmt.Fprintf(out, "%s -> %s %dx%d %d bytes%s\n",
				res.Request.ObjectKey, o.Path, o.Width, o.Height, o.Bytes, ratioSuffix(o.CompressionRatio))
		}
		if fileFailed {
			failed++
		}
	}
	close(progress)
	wg.Wait()

	if err := cmd.Context().Err(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(inputs))
	}
	return nil
}

func printProgress(w io.Writer, total int, progress <-chan pipeline.Progress) {
	for p := range progress {
		fmt.Fprintf(w, "[%d/%d] %s %3d%%\n", p.Index+1, total, p.JobID, p.Percent)
	}
}

func ratioSuffix(ratio *float64) string {
	if ratio == nil {
		return ""
	}
	if *ratio < 0 {
		return fmt.Sprintf(" (%.1f%% larger)", -*ratio)
	}
	return fmt.Sprintf(" (%.1f%% smaller)", *ratio)
}

// jobIDs names each input's output directory after its base name. A name
// already taken gets the first free index suffix.
func jobIDs(inputs []string) []string {
	ids := make([]string, len(inputs))
	used := make(map[string]bool, len(inputs))
	for i, in := range inputs {
		base := filepath.Base(in)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		if name == "" || name == "." {
			name = "image"
		}
		id := name
		for n := 2; used[id]; n++ {
			id = fmt.Sprintf("%s-%d", name, n)
		}
		used[id] = true
		ids[i] = id
	}
	return ids
}
