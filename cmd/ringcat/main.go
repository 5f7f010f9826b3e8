package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bamsammich/ringio/internal/cli"
	"github.com/bamsammich/ringio/internal/engine"
	"github.com/bamsammich/ringio/internal/stats"
	"github.com/bamsammich/ringio/internal/ui"
)

var version = "dev"

// outputBufferSize batches segment writes when stdout is a pipe or file.
const outputBufferSize = 1 << 20

func main() {
	os.Exit(run())
}

func run() int {
	var opts cli.Options

	rootCmd := &cobra.Command{
		Use:   "ringcat [flags] <file>...",
		Short: "Concatenate files to standard output using io_uring",
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.ShowVersion {
				return nil
			}
			return cobra.MinimumNArgs(1)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.ShowVersion {
				fmt.Fprintf(os.Stdout, "ringcat %s\n", version)
				return nil
			}

			opts.LoadConfig(cmd.Flags())
			if err := opts.Validate(); err != nil {
				return err
			}

			logging, err := cli.SetupLogging(&opts, os.Stderr)
			if err != nil {
				return err
			}
			defer logging.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			collector := stats.NewCollector()
			ring, err := engine.NewRing(opts.QueueDepth,
				engine.WithName("cat"),
				engine.WithLogger(logging.Logger),
				engine.WithStats(collector),
			)
			if err != nil {
				slog.Error("ring setup failed", "error", err)
				return &cli.ExitError{Code: 1}
			}
			defer func() {
				if cerr := ring.Close(); cerr != nil {
					slog.Warn("close ring", "error", cerr)
				}
			}()

			var out io.Writer = os.Stdout
			var bw *bufio.Writer
			if !ui.IsTTY(os.Stdout) {
				bw = bufio.NewWriterSize(os.Stdout, outputBufferSize)
				out = bw
			}

			events, stopEvents := logging.Events()
			cat := &engine.Concatenator{
				Ring:   ring,
				Alloc:  engine.NewMmapAllocator(collector),
				Out:    out,
				Stats:  collector,
				Logger: logging.Logger,
				Events: events,
			}
			err = cat.Cat(ctx, args)
			stopEvents()

			if bw != nil {
				// Whatever was read before a failure still goes out.
				if ferr := bw.Flush(); ferr != nil && err == nil {
					err = fmt.Errorf("write output: %w", ferr)
				}
			}

			if opts.Verbose {
				fmt.Fprintln(os.Stderr, collector.Snapshot())
			}

			if err != nil {
				slog.Error("cat failed", "error", err)
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}

	opts.RegisterFlags(rootCmd.Flags())
	rootCmd.AddCommand(cli.NewDocsCommand(version))

	return cli.Execute(rootCmd, os.Stderr)
}
