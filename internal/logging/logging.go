// Package logging builds the component loggers every package accepts.
//
// Each component gets a *log.Logger with a bracketed prefix ("[sync] ",
// "[driver] ", ...). Output goes to stderr and, when a file is configured,
// to a size-rotated log file.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures log output.
type Options struct {
	// File is the log file path. Empty disables file output.
	File string
	// MaxSizeMB rotates the file once it reaches this size.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept.
	MaxBackups int
	// Quiet drops stderr output.
	Quiet bool
	// Stderr replaces os.Stderr, for tests.
	Stderr io.Writer
}

// Sink is the shared destination of all component loggers.
type Sink struct {
	out     io.Writer
	rotator *lumberjack.Logger
}

// Open creates a sink for opts.
func Open(opts Options) *Sink {
	var writers []io.Writer
	if !opts.Quiet {
		if opts.Stderr != nil {
			writers = append(writers, opts.Stderr)
		} else {
			writers = append(writers, os.Stderr)
		}
	}

	s := &Sink{}
	if opts.File != "" {
		if opts.MaxSizeMB <= 0 {
			opts.MaxSizeMB = 10
		}
		if opts.MaxBackups <= 0 {
			opts.MaxBackups = 3
		}
		s.rotator = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		writers = append(writers, s.rotator)
	}

	switch len(writers) {
	case 0:
		s.out = io.Discard
	case 1:
		s.out = writers[0]
	default:
		s.out = io.MultiWriter(writers...)
	}
	return s
}

// Logger returns a logger prefixed with the component name.
func (s *Sink) Logger(component string) *log.Logger {
	return log.New(s.out, "["+component+"] ", log.LstdFlags)
}

// Writer returns the underlying writer.
func (s *Sink) Writer() io.Writer {
	return s.out
}

// Close closes the log file, if any.
func (s *Sink) Close() error {
	if s.rotator == nil {
		return nil
	}
	return s.rotator.Close()
}
