// Package logger provides the daemon's configured zerolog logger.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ServiceName is attached to every log line.
const ServiceName = "alarmd"

// Options selects level and outputs.
type Options struct {
	Level string    // debug|info|warn|error
	File  string    // rotating JSON log file; empty disables it
	Out   io.Writer // console output, usually os.Stderr
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger writing to opts.Out, human-readable when it is a
// terminal, and also to opts.File when set. Close the returned io.Closer on
// shutdown to flush the file.
// Call sites should use .Stack() on error events to include stacks.
func New(opts Options) (zerolog.Logger, io.Closer) {
	zerolog.ErrorStackMarshaler = func(err error) interface{} {
		type stackTracer interface{ StackTrace() pkgerrors.StackTrace }
		if _, ok := err.(stackTracer); !ok {
			err = pkgerrors.WithStack(err)
		}
		return zpkgerrors.MarshalStack(err)
	}

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer
	if opts.Out != nil {
		writers = append(writers, console(opts.Out))
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     7, // days
			Compress:   true,
		}
		writers = append(writers, file)
		closer = file
	}

	var w io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		w = writers[0]
	default:
		w = zerolog.MultiLevelWriter(writers...)
	}

	return zerolog.New(w).Level(level).With().
		Str("service", ServiceName).
		Timestamp().
		Logger(), closer
}

func console(out io.Writer) io.Writer {
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	return out
}
