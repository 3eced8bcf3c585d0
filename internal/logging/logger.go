// Package logging holds the process-wide logger the library writes
// through. It defaults to a no-op logger so embedding applications stay
// silent until they install a destination.
package logging

import "github.com/rs/zerolog"

var Logger zerolog.Logger

func init() {
	SetGlobalLogger(zerolog.Nop())
}

// SetGlobalLogger replaces the process logger.
func SetGlobalLogger(logger zerolog.Logger) {
	Logger = logger
}

func Err(err error) *zerolog.Event { return Logger.Err(err) }

func Debug() *zerolog.Event { return Logger.Debug() }

func Info() *zerolog.Event { return Logger.Info() }

func Warn() *zerolog.Event { return Logger.Warn() }

func Error() *zerolog.Event { return Logger.Error() }
