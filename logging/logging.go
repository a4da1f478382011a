// Package logging sets up the process wide slog logger. Output can be held
// back in a buffer while an interactive command owns the terminal, and is
// always teed to the log file if one is configured.
package logging

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

type Options struct {
	Level  string
	Format string
	// File, if set, receives every log line in addition to the target.
	File string
	// Buffer starts in buffering mode; see SetOutput.
	Buffer bool
}

type teeWriter struct {
	mu        sync.Mutex
	buffer    bytes.Buffer
	target    io.Writer
	file      *os.File
	buffering bool
}

func (w *teeWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	if w.buffering {
		w.buffer.Write(p)
	} else if w.target != nil {
		if _, err := w.target.Write(p); err != nil {
			firstErr = err
		}
	}
	if w.file != nil {
		if _, err := w.file.Write(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return len(p), firstErr
}

var writer = &teeWriter{target: os.Stderr}

// ParseLevel maps DEBUG, INFO, WARN and ERROR (any case) to a slog level.
// Anything else is INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init installs a new default logger writing to stderr.
func Init(opts Options) error {
	w := &teeWriter{target: os.Stderr, buffering: opts.Buffer}
	if opts.File != "" {
		file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		w.file = file
	}
	writer = w

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var handler slog.Handler
	if strings.ToLower(opts.Format) == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// SetOutput flushes buffered lines to target and writes live from now on.
func SetOutput(target io.Writer) error {
	writer.mu.Lock()
	defer writer.mu.Unlock()

	if writer.buffer.Len() > 0 {
		if _, err := target.Write(writer.buffer.Bytes()); err != nil {
			return err
		}
		writer.buffer.Reset()
	}
	writer.target = target
	writer.buffering = false
	return nil
}

// BufferOutput holds lines back until the next SetOutput or Close.
func BufferOutput() {
	writer.mu.Lock()
	defer writer.mu.Unlock()
	writer.buffering = true
}

// Close flushes buffered lines to the target and closes the log file.
func Close() error {
	writer.mu.Lock()
	defer writer.mu.Unlock()

	var firstErr error
	if writer.buffer.Len() > 0 {
		target := writer.target
		if target == nil {
			target = os.Stderr
		}
		if _, err := target.Write(writer.buffer.Bytes()); err != nil {
			firstErr = err
		}
		writer.buffer.Reset()
	}
	writer.buffering = false
	if writer.file != nil {
		if err := writer.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		writer.file = nil
	}
	return firstErr
}
