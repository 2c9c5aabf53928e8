// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bassosimone/sockpipe"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	selftestCount    int
	selftestParallel int
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Create pipes concurrently and check that data and end of stream flow",
	RunE: func(cmd *cobra.Command, args []string) error {
		if selftestCount <= 0 {
			return fmt.Errorf("selftest requires a positive count")
		}
		table := sockpipe.NewTable(rootConfig, rootLogger)
		defer table.CloseAll()

		t0 := time.Now()
		if err := selftest(cmd.Context(), table, selftestCount, selftestParallel); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "selftest: %d pipes ok in %s\n",
			selftestCount, time.Since(t0).Round(time.Millisecond))
		return nil
	},
}

// selftest runs count pipe checks, at most parallel at a time.
func selftest(ctx context.Context, table *sockpipe.Table, count, parallel int) error {
	group, ctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		group.SetLimit(parallel)
	}
	for idx := range count {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return checkPipe(ctx, table, idx)
		})
	}
	return group.Wait()
}

// checkPipe round-trips a message each way and then checks end of stream.
//
// Both handles are closed on return, whether or not the check succeeds.
func checkPipe(ctx context.Context, table *sockpipe.Table, idx int) (err error) {
	fds, err := table.Pipe(ctx)
	if err != nil {
		return fmt.Errorf("pipe #%d: %w", idx, err)
	}
	defer func() {
		for _, fd := range fds {
			// fds[1] is already closed when the check succeeds
			if cerr := table.Close(fd); cerr != nil && !errors.Is(cerr, sockpipe.ErrInvalidHandle) && err == nil {
				err = fmt.Errorf("pipe #%d: %w", idx, cerr)
			}
		}
	}()

	for _, dir := range [][2]int{{fds[1], fds[0]}, {fds[0], fds[1]}} {
		message := fmt.Appendf(nil, "pipe #%d: %d -> %d", idx, dir[0], dir[1])
		if _, err := table.Write(dir[0], message); err != nil {
			return fmt.Errorf("pipe #%d: %w", idx, err)
		}
		got, err := readExactly(table, dir[1], len(message))
		if err != nil {
			return fmt.Errorf("pipe #%d: %w", idx, err)
		}
		if !bytes.Equal(message, got) {
			return fmt.Errorf("pipe #%d: got %q, want %q", idx, got, message)
		}
	}

	if err := table.Close(fds[1]); err != nil {
		return fmt.Errorf("pipe #%d: %w", idx, err)
	}
	count, err := table.Read(fds[0], make([]byte, 1))
	if err != nil {
		return fmt.Errorf("pipe #%d: %w", idx, err)
	}
	if count != 0 {
		return fmt.Errorf("pipe #%d: read %d bytes after close", idx, count)
	}
	return nil
}

// readExactly reads size bytes from fd, failing on a premature end of stream.
func readExactly(table *sockpipe.Table, fd, size int) ([]byte, error) {
	buf := make([]byte, size)
	for offset := 0; offset < size; {
		count, err := table.Read(fd, buf[offset:])
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, fmt.Errorf("unexpected end of stream after %d bytes", offset)
		}
		offset += count
	}
	return buf, nil
}

func init() {
	selftestCmd.Flags().IntVarP(&selftestCount, "count", "n", 16, "number of pipes to create")
	selftestCmd.Flags().IntVar(&selftestParallel, "parallel", 0, "maximum number of concurrent pipes (0 means unlimited)")
	rootCmd.AddCommand(selftestCmd)
}
