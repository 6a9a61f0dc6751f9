package logging

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. Pretty switches to zerolog's console writer.
func New(level string, w io.Writer, pretty bool) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("parse log level %q: %w", level, err)
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}
