// Package event defines the per-file progress records the pipelines emit.
package event

import (
	"log/slog"
	"time"
)

// Type identifies the kind of event.
type Type int

const (
	FileStarted Type = iota + 1
	FileCompleted
	FileFailed
	VerifyOK
	VerifyFailed
)

var typeNames = [...]string{
	FileStarted:   "FileStarted",
	FileCompleted: "FileCompleted",
	FileFailed:    "FileFailed",
	VerifyOK:      "VerifyOK",
	VerifyFailed:  "VerifyFailed",
}

func (t Type) String() string {
	if int(t) > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single progress event from a pipeline.
type Event struct {
	Type      Type
	Timestamp time.Time
	Path      string
	Dst       string // copy destination, empty for cat
	Size      int64  // file size, or bytes transferred on completion
	Blocks    int
	Error     error
}

// Attrs renders e as slog attributes for structured logs.
func (e Event) Attrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("type", e.Type.String()),
		slog.String("path", e.Path),
		slog.Int64("size", e.Size),
		slog.Int("blocks", e.Blocks),
	}
	if e.Dst != "" {
		attrs = append(attrs, slog.String("dst", e.Dst))
	}
	if e.Error != nil {
		attrs = append(attrs, slog.String("error", e.Error.Error()))
	}
	return attrs
}

// Emit sends e on ch with its timestamp set. It never blocks: when ch is nil
// or full the event is dropped.
func Emit(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case ch <- e:
	default:
	}
}
