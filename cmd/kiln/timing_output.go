package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"kiln/internal/buildpipeline"
	"kiln/internal/chunk"
)

func printStageTimings(out io.Writer, timings buildpipeline.Timings) {
	if out == nil {
		return
	}
	for _, stage := range buildpipeline.Stages {
		if timings.Has(stage) {
			fmt.Fprintf(out, "%-6s %.1f ms\n", stage, toMillis(timings.Duration(stage)))
		}
	}
	fmt.Fprintf(out, "total  %.1f ms\n", toMillis(timings.Sum(buildpipeline.Stages...)))
}

// printChunkSizes lists every chunk with its file and size, marking the ones
// this build wrote.
func printChunkSizes(out io.Writer, res *chunk.Result, fsys afero.Fs) {
	if out == nil || res == nil {
		return
	}
	written := make(map[string]bool, len(res.Updated))
	for _, name := range res.Updated {
		written[name] = true
	}
	for _, c := range res.Chunks {
		mark := " "
		if written[c.Name] {
			mark = "*"
		}
		size := uint64(len(c.Code))
		if fsys != nil {
			if fi, err := fsys.Stat("/" + c.File); err == nil && fi.Size() > 0 {
				size = uint64(fi.Size())
			}
		}
		fmt.Fprintf(out, "%s %-10s %-8s %-40s %9s\n", mark, c.Name, c.Kind, c.File, humanize.Bytes(size))
	}
	for _, a := range res.Assets {
		fmt.Fprintf(out, "  %-10s %-8s %s\n", "", "asset", a)
	}
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
