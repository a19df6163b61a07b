package store

import "github.com/yourusername/flowfence/core"

// Store persists exported bucket snapshots keyed by client. A snapshot saved
// by one process can be picked up by a later one, so a client's budget
// survives restarts. Get returns nil for an unknown key; write failures are
// logged and swallowed so a storage outage degrades limiting instead of
// taking requests down with it.
type Store interface {
	Get(key string) *core.State
	Set(key string, st *core.State)
	Delete(key string)
	Clear()
}
