package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bamsammich/ringio/internal/cli"
	"github.com/bamsammich/ringio/internal/engine"
	"github.com/bamsammich/ringio/internal/stats"
)

var version = "dev"

func main() {
	os.Exit(run())
}

//nolint:revive // cognitive-complexity: CLI entry point wires rings, copier and logging
func run() int {
	var opts cli.Options

	rootCmd := &cobra.Command{
		Use:   "ringcp [flags] <source> <destination>",
		Short: "Copy a file using two io_uring rings",
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.ShowVersion {
				return nil
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.ShowVersion {
				fmt.Fprintf(os.Stdout, "ringcp %s\n", version)
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
			newRing := func(name string) (*engine.Ring, error) {
				return engine.NewRing(opts.QueueDepth,
					engine.WithName(name),
					engine.WithAsync(),
					engine.WithLogger(logging.Logger),
					engine.WithStats(collector),
				)
			}

			readRing, err := newRing("read")
			if err != nil {
				slog.Error("ring setup failed", "ring", "read", "error", err)
				return &cli.ExitError{Code: 1}
			}
			defer closeRing(readRing)

			writeRing, err := newRing("write")
			if err != nil {
				slog.Error("ring setup failed", "ring", "write", "error", err)
				return &cli.ExitError{Code: 1}
			}
			defer closeRing(writeRing)

			events, stopEvents := logging.Events()
			cp := &engine.Copier{
				ReadRing:  readRing,
				WriteRing: writeRing,
				Alloc:     engine.NewMmapAllocator(collector),
				Direct:    opts.Direct,
				Verify:    opts.Verify,
				Stats:     collector,
				Logger:    logging.Logger,
				Events:    events,
			}
			src, dst := args[0], args[1]
			res, err := cp.CopyFile(ctx, src, dst)
			stopEvents()

			if opts.Verbose {
				fmt.Fprintf(os.Stderr, "%s -> %s: %s in %d blocks (direct=%t verified=%t)\n",
					src, dst, stats.FormatBytes(res.Bytes), res.Blocks, res.Direct, res.Verified)
				fmt.Fprintln(os.Stderr, collector.Snapshot())
			}

			if err != nil {
				slog.Error("copy failed", "src", src, "dst", dst, "error", err)
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}

	opts.RegisterFlags(rootCmd.Flags())
	opts.RegisterCopyFlags(rootCmd.Flags())
	rootCmd.AddCommand(cli.NewDocsCommand(version))

	return cli.Execute(rootCmd, os.Stderr)
}

func closeRing(r *engine.Ring) {
	if err := r.Close(); err != nil {
		slog.Warn("close ring", "error", err)
	}
}
