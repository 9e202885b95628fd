// Package logging wires up the zerolog global logger every binary in
// this module shares, the structured-logging stand-in for the plain
// `log` package the teacher's cmd/server/main.go uses.
package logging

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger: console-pretty output for a
// local terminal, or raw JSON when PATHERY_JSON_LOGS is set (for
// production, where a log shipper wants structured lines).
func Init(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if os.Getenv("PATHERY_JSON_LOGS") != "" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
}
