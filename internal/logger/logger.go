// Package logger builds the zerolog loggers used across sheetmyself.
package logger

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing to w at level. console selects the
// human-readable writer.
func New(w io.Writer, level zerolog.Level, console bool) zerolog.Logger {
	if console {
		w = zerolog.ConsoleWriter{Out: w, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
