//go:build !linux

package mprisbridge

import "github.com/mdurel/chime"

// Bridge is a no-op reactor on platforms without a session bus.
type Bridge struct {
	chime.ReactorBase
}

// New returns a no-op bridge on non-Linux platforms.
func New(name, identity string) *Bridge {
	return &Bridge{}
}
