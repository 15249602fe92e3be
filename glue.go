package netcore

import "github.com/fz-systems/netcore/internal"

// ignoreSigpipeOnce masks SIGPIPE process-wide before the first socket is
// created. NewReactor calls it, so every socket -- dialed, listening or
// accepted -- goes through this one choke point.
func ignoreSigpipeOnce() {
	internal.IgnoreSigpipe()
}
