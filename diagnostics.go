package netcore

import (
	"io"

	"github.com/felixge/fgprof"
)

// ProfileReactors starts an fgprof profile covering both on-CPU and
// off-CPU (blocked-in-poll) time across every reactor goroutine, and
// returns a stop function that writes the collapsed profile to w.
// Off-CPU visibility matters here specifically because a reactor worker
// spends most of its life parked in Poll -- a pure CPU profiler would show
// nothing.
func ProfileReactors(w io.Writer) (stop func() error) {
	return fgprof.Start(w, fgprof.FormatFolded)
}
