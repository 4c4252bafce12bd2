// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package tether

import (
	"sync"

	"github.com/creachadair/mds/mapset"
)

// A registry is the set of open connections belonging to a running server.
// All operations are serialized by a single lock, so the set is linearizable.
// A zero registry is ready for use.
type registry struct {
	μ      sync.Mutex
	conns  mapset.Set[*Conn]
	closed bool // no further additions are permitted
}

// add adds c to the registry and reports whether it did so. Once the registry
// has been closed, add refuses all connections.
func (r *registry) add(c *Conn) bool {
	r.μ.Lock()
	defer r.μ.Unlock()
	if r.closed {
		return false
	}
	if r.conns == nil {
		r.conns = mapset.New[*Conn]()
	}
	r.conns.Add(c)
	return true
}

// remove removes c from the registry and reports whether it was present.
func (r *registry) remove(c *Conn) bool {
	r.μ.Lock()
	defer r.μ.Unlock()
	if !r.conns.Has(c) {
		return false
	}
	r.conns.Remove(c)
	return true
}

// snapshot returns the current members of the registry in arbitrary order.
func (r *registry) snapshot() []*Conn {
	r.μ.Lock()
	defer r.μ.Unlock()
	return r.conns.Slice()
}

func (r *registry) len() int {
	r.μ.Lock()
	defer r.μ.Unlock()
	return r.conns.Len()
}

// close marks the registry closed and returns its members at that moment.
// Members are not removed: each is removed by its own receive loop when it
// exits.
func (r *registry) close() []*Conn {
	r.μ.Lock()
	defer r.μ.Unlock()
	r.closed = true
	return r.conns.Slice()
}
