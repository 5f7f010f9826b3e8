// Package cli holds the flag, config and logging plumbing shared by ringcat
// and ringcp.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/ringio/internal/config"
	"github.com/bamsammich/ringio/internal/engine"
	"github.com/bamsammich/ringio/internal/event"
	"github.com/bamsammich/ringio/internal/ui"
)

// Options are the flags every ringio binary accepts.
type Options struct {
	Verbose     bool
	Quiet       bool
	LogFile     string
	QueueDepth  uint32
	ShowVersion bool

	// ringcp only.
	Direct bool
	Verify bool
}

// RegisterFlags adds the common flags to fs.
func (o *Options) RegisterFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.ShowVersion, "version", false, "print version and exit")
	fs.BoolVarP(&o.Verbose, "verbose", "v", false, "verbose output (debug log and stats summary)")
	fs.BoolVarP(&o.Quiet, "quiet", "q", false, "suppress all output except errors")
	fs.StringVar(&o.LogFile, "log", "", "write structured JSON log to FILE")
	fs.Uint32Var(&o.QueueDepth, "queue-depth", engine.DefaultQueueDepth, "io_uring submission queue depth")
}

// RegisterCopyFlags adds the ringcp-only flags to fs.
func (o *Options) RegisterCopyFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Direct, "direct", true, "open the destination with O_DIRECT when the size is block aligned")
	fs.BoolVar(&o.Verify, "verify", false, "verify checksums after copy (BLAKE3)")
}

// ApplyConfig applies config file defaults for flags not explicitly set on
// the CLI. Flags that fs does not define are left alone.
func (o *Options) ApplyConfig(fs *pflag.FlagSet, defaults config.DefaultsConfig) {
	unset := func(name string) bool {
		return fs.Lookup(name) != nil && !fs.Changed(name)
	}
	if unset("queue-depth") && defaults.QueueDepth != nil {
		o.QueueDepth = *defaults.QueueDepth
	}
	if unset("direct") && defaults.Direct != nil {
		o.Direct = *defaults.Direct
	}
	if unset("verify") && defaults.Verify != nil {
		o.Verify = *defaults.Verify
	}
}

// LoadConfig loads the config file and applies it to o. A broken config file
// is logged and ignored.
func (o *Options) LoadConfig(fs *pflag.FlagSet) {
	cfg, err := config.Load()
	if err != nil {
		slog.Warn("failed to load config", "error", err)
		return
	}
	o.ApplyConfig(fs, cfg.Defaults)
}

// Validate rejects flag combinations that cannot work.
func (o *Options) Validate() error {
	if o.Verbose && o.Quiet {
		return errors.New("--verbose and --quiet are mutually exclusive")
	}
	if o.QueueDepth == 0 {
		return errors.New("--queue-depth must be positive")
	}
	return nil
}

// Level returns the stderr log level selected by the flags.
func (o *Options) Level() slog.Level {
	switch {
	case o.Verbose:
		return slog.LevelDebug
	case o.Quiet:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logging is the configured logger plus the optional JSON log file.
type Logging struct {
	Logger *slog.Logger

	file   *os.File
	events *slog.Logger // JSON only; nil without --log
}

// SetupLogging builds the text handler on stderr and, with --log, a JSON
// handler on the log file at debug level. The result is installed as the
// slog default.
func SetupLogging(o *Options, stderr io.Writer) (*Logging, error) {
	textHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: o.Level(),
	})
	l := &Logging{}
	var logHandler slog.Handler = textHandler
	if o.LogFile != "" {
		lf, err := os.Create(o.LogFile)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
		logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
		l.file = lf
		l.events = slog.New(jsonHandler)
	}
	l.Logger = slog.New(logHandler)
	slog.SetDefault(l.Logger)
	return l, nil
}

// Events returns a channel for pipeline events and a function that stops
// the consumer once the pipeline is done. Without --log the channel is nil
// and events are not produced at all.
func (l *Logging) Events() (chan<- event.Event, func()) {
	if l.events == nil {
		return nil, func() {}
	}
	ch := make(chan event.Event, 256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			l.events.LogAttrs(context.Background(), slog.LevelInfo, "ringio.event", ev.Attrs()...)
		}
	}()
	return ch, func() {
		close(ch)
		<-done
	}
}

// Close closes the log file, if any.
func (l *Logging) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ExitError carries a process exit code out of a cobra RunE.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// Execute runs root and maps its error to a process exit code. Errors other
// than *ExitError are printed to stderr and exit with 1.
func Execute(root *cobra.Command, stderr io.Writer) int {
	if err := root.Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
