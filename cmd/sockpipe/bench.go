// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/bassosimone/sockpipe"
	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	benchChunk string
	benchSize  string
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Stream bytes through one pipe and report the throughput",
	RunE: func(cmd *cobra.Command, args []string) error {
		size, err := humanize.ParseBytes(benchSize)
		if err != nil {
			return fmt.Errorf("--size: %w", err)
		}
		chunk, err := humanize.ParseBytes(benchChunk)
		if err != nil || chunk <= 0 {
			return fmt.Errorf("--chunk: invalid value %q", benchChunk)
		}

		result, err := bench(cmd.Context(), rootConfig, rootLogger, size, int(chunk))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "bench: %s in %s (%s/s)\n",
			humanize.IBytes(result.Bytes),
			result.Elapsed.Round(time.Millisecond),
			humanize.IBytes(result.Rate()))
		return nil
	},
}

// benchResult is the outcome of [bench].
type benchResult struct {
	Bytes   uint64
	Elapsed time.Duration
}

// Rate returns the throughput in bytes per second.
func (r benchResult) Rate() uint64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return uint64(float64(r.Bytes) / r.Elapsed.Seconds())
}

// bench writes size bytes in chunk sized writes on one end of a fresh pipe
// while draining the other end.
func bench(ctx context.Context, cfg *sockpipe.Config, logger sockpipe.SLogger, size uint64, chunk int) (benchResult, error) {
	pipe, err := sockpipe.NewPipeFunc(cfg, logger).Call(ctx, sockpipe.Unit{})
	if err != nil {
		return benchResult{}, err
	}
	defer pipe.Close()

	t0 := time.Now()
	received, err := stream(ctx, pipe, size, chunk)
	if err != nil {
		return benchResult{}, err
	}
	elapsed := time.Since(t0)

	if uint64(received) != size {
		return benchResult{}, fmt.Errorf("received %d bytes, want %d", received, size)
	}
	return benchResult{Bytes: size, Elapsed: elapsed}, nil
}

// stream writes size bytes on the second end of pipe while draining the
// first end and returns how many bytes were drained.
//
// When either side fails, or ctx is done, the pipe is closed so that the
// other side stops as well.
func stream(ctx context.Context, pipe *sockpipe.Pipe, size uint64, chunk int) (int64, error) {
	group, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { pipe.Close() })
	defer stop()

	var received int64
	group.Go(func() error {
		var err error
		received, err = io.Copy(io.Discard, pipe.Conns[0])
		return err
	})
	group.Go(func() error {
		buf := make([]byte, chunk)
		for remaining := size; remaining > 0; {
			count := min(remaining, uint64(len(buf)))
			if _, err := pipe.Conns[1].Write(buf[:count]); err != nil {
				return err
			}
			remaining -= count
		}
		// end of stream stops the reader
		return sockpipe.Shutdown(pipe.Conns[1])
	})
	err := group.Wait()
	return received, err
}

func init() {
	benchCmd.Flags().StringVar(&benchChunk, "chunk", "64KiB", "size of each write")
	benchCmd.Flags().StringVar(&benchSize, "size", "256MiB", "total number of bytes to stream")
	rootCmd.AddCommand(benchCmd)
}
