package netcore

import (
	"os"

	"github.com/rs/zerolog"
)

// Log is the package-level logger every component writes through. Default
// level is info; callers reconfigure it with SetLogLevel or by replacing it
// outright before constructing an EventLoop.
var Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Str("component", "netcore").Logger().Level(zerolog.InfoLevel)

// SetLogLevel adjusts the package logger's minimum level, e.g.
// netcore.SetLogLevel(zerolog.DebugLevel) while chasing a reactor issue.
func SetLogLevel(level zerolog.Level) {
	Log = Log.Level(level)
}
