package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// newLogger returns a console logger at the named level.
func newLogger(w io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	out := zerolog.ConsoleWriter{
		Out:         w,
		NoColor:     true,
		TimeFormat:  "2006-01-02 15:04:05.000",
		FormatLevel: func(i interface{}) string { return strings.ToUpper(fmt.Sprintf("[%-5s]", i)) },
	}
	return zerolog.New(out).With().Timestamp().Str("app", "regrid").Logger(), nil
}
