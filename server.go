// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package tether

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/creachadair/mds/value"
	"github.com/creachadair/taskgroup"
)

// A ConnFunc is a callback invoked with a connection accepted by a server.
type ConnFunc func(*Conn)

// A DataFunc is a callback invoked with each frame received by a server on
// the connection c. A DataFunc may reply to the sender with c.Send, or send
// to other connections through the server.
type DataFunc func(c *Conn, text string)

// Bounds on the delay after a failed accept.
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = 1 * time.Second
)

// A Server accepts connections on a TCP listener and exchanges text frames
// with each connected peer. A zero-valued Server is ready for use, but must
// not be copied after any method has been called.
//
// Call Start to bind an address and begin accepting connections. The server
// runs until Stop is called. Use SendTo and Broadcast to send frames to
// connected peers.
//
// Register callbacks with the On* methods to observe the server. Callbacks
// are invoked on background goroutines. The data callback for a connection
// runs on that connection's receive goroutine, so frames from one peer are
// delivered in order; frames from different peers may interleave. A callback
// must not call Stop.
type Server struct {
	run sync.Mutex // serializes Start and Stop

	μ       sync.Mutex
	lst     net.Listener
	reg     *registry
	tasks   *taskgroup.Group
	cancel  context.CancelFunc
	running bool
	hooks   serverHooks
}

type serverHooks struct {
	onStart      func()
	onStop       func()
	onConnect    ConnFunc
	onDisconnect ConnFunc
	onData       DataFunc
	onError      func(error)
}

// NewServer constructs a new unstarted server.
func NewServer() *Server { return new(Server) }

// Start binds a TCP listener to the given address and port, and starts
// accepting connections in the background. If port == 0, the system chooses
// a port; use Addr to find out which.
//
// If s is already running, Start does nothing and returns nil. If the address
// cannot be bound, Start reports an error of concrete type *Error and the
// server does not start.
func (s *Server) Start(address string, port int) error {
	addr := net.JoinHostPort(address, strconv.Itoa(port))
	if port < 0 || port > 65535 {
		return &Error{Op: "listen", Addr: addr, Err: fmt.Errorf("invalid port %d", port)}
	}

	s.run.Lock()
	defer s.run.Unlock()
	if s.IsRunning() {
		return nil
	}
	lst, err := net.Listen("tcp", addr)
	if err != nil {
		return &Error{Op: "listen", Addr: addr, Err: err}
	}
	s.startLocked(lst)
	return nil
}

// StartListener starts the server accepting connections from lst.  The
// server takes ownership of lst and closes it when stopped. If s is already
// running, StartListener does nothing and returns nil, and the caller retains
// ownership of lst.
//
// The caller should not close lst directly. If it does, the server reports an
// "accept" error wrapping net.ErrClosed and accepts no further connections,
// but it remains running with its open connections until Stop is called.
func (s *Server) StartListener(lst net.Listener) error {
	s.run.Lock()
	defer s.run.Unlock()
	if !s.IsRunning() {
		s.startLocked(lst)
	}
	return nil
}

// startLocked starts the accept loop on lst. The caller must hold s.run.
func (s *Server) startLocked(lst net.Listener) {
	ctx, cancel := context.WithCancel(context.Background())
	reg := new(registry)
	g := taskgroup.New(nil)

	s.μ.Lock()
	s.lst = lst
	s.reg = reg
	s.tasks = g
	s.cancel = cancel
	s.running = true
	h := s.hooks
	s.μ.Unlock()

	if h.onStart != nil {
		h.onStart()
	}
	g.Go(func() error {
		s.acceptLoop(ctx, lst, reg, g)
		return nil
	})
}

// Stop stops accepting connections, closes every open connection, and blocks
// until all of them have reported their disconnection. Stop does nothing if s
// is not running. After Stop returns it is safe to start s again.
func (s *Server) Stop() {
	s.run.Lock()
	defer s.run.Unlock()

	s.μ.Lock()
	if !s.running {
		s.μ.Unlock()
		return
	}
	lst, reg, g, cancel := s.lst, s.reg, s.tasks, s.cancel
	s.running = false
	s.lst = nil
	s.tasks = nil
	s.cancel = nil
	s.μ.Unlock()

	cancel()
	lst.Close()
	for _, c := range reg.close() {
		c.shutdown()
	}
	g.Wait() // each receive loop removes its connection on exit

	if h := s.callbacks(); h.onStop != nil {
		h.onStop()
	}
}

// IsRunning reports whether s has been started and not yet stopped.
func (s *Server) IsRunning() bool {
	s.μ.Lock()
	defer s.μ.Unlock()
	return s.running
}

// ConnectedCount reports the number of connections currently open.
func (s *Server) ConnectedCount() int {
	s.μ.Lock()
	reg := s.reg
	s.μ.Unlock()
	if reg == nil {
		return 0
	}
	return reg.len()
}

// Conns returns a snapshot of the connections currently open, in arbitrary
// order.
func (s *Server) Conns() []*Conn {
	s.μ.Lock()
	reg := s.reg
	s.μ.Unlock()
	if reg == nil {
		return nil
	}
	return reg.snapshot()
}

// Addr returns the address the server is listening on, or nil if it is not
// running.
func (s *Server) Addr() net.Addr {
	s.μ.Lock()
	defer s.μ.Unlock()
	if s.lst == nil {
		return nil
	}
	return s.lst.Addr()
}

// Metrics returns a metrics map for the server. It is safe for the caller to
// add additional metrics to the map while the server is active.
func (s *Server) Metrics() *expvar.Map { return rootMetrics.emap }

// SendTo sends text as a single frame to c. It is equivalent to c.Send(text),
// and does nothing if c is nil.
func (s *Server) SendTo(c *Conn, text string) {
	if c != nil {
		c.Send(text)
	}
}

// Broadcast sends text as a single frame to every connection open at the time
// of the call. The sends proceed concurrently, and Broadcast blocks until all
// of them have finished.  A failed send affects only its own connection.
func (s *Server) Broadcast(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	s.μ.Lock()
	reg := s.reg
	s.μ.Unlock()
	if reg == nil {
		return
	}
	rootMetrics.broadcasts.Add(1)

	g := taskgroup.New(nil)
	for _, c := range reg.snapshot() {
		g.Go(func() error {
			c.Send(text)
			return nil
		})
	}
	g.Wait()
}

// OnStart registers a callback invoked each time the server starts.  Passing
// nil removes the callback. OnStart returns s to permit chaining.
func (s *Server) OnStart(f func()) *Server {
	s.μ.Lock()
	defer s.μ.Unlock()
	s.hooks.onStart = f
	return s
}

// OnStop registers a callback invoked each time the server stops, after all
// its connections have closed. Passing nil removes the callback. OnStop
// returns s to permit chaining.
func (s *Server) OnStop(f func()) *Server {
	s.μ.Lock()
	defer s.μ.Unlock()
	s.hooks.onStop = f
	return s
}

// OnConnect registers a callback invoked when a connection is accepted,
// before any of its frames are delivered. Passing nil removes the callback.
// OnConnect returns s to permit chaining.
func (s *Server) OnConnect(f ConnFunc) *Server {
	s.μ.Lock()
	defer s.μ.Unlock()
	s.hooks.onConnect = f
	return s
}

// OnDisconnect registers a callback invoked exactly once for each accepted
// connection, after it has closed and been removed from the server. Passing
// nil removes the callback. OnDisconnect returns s to permit chaining.
func (s *Server) OnDisconnect(f ConnFunc) *Server {
	s.μ.Lock()
	defer s.μ.Unlock()
	s.hooks.onDisconnect = f
	return s
}

// OnData registers a callback invoked for each non-empty frame received.
// Passing nil removes the callback. OnData returns s to permit chaining.
//
// If the callback panics, the panic is recovered and reported as an error,
// and the connection continues.
func (s *Server) OnData(f DataFunc) *Server {
	s.μ.Lock()
	defer s.μ.Unlock()
	s.hooks.onData = f
	return s
}

// OnError registers a callback invoked with errors that occur in the
// background: failed accepts, and failed reads or writes on a connection.
// Errors passed to the callback have concrete type *Error, except for
// recovered panics from a data callback. Passing nil removes the callback.
// OnError returns s to permit chaining.
func (s *Server) OnError(f func(error)) *Server {
	s.μ.Lock()
	defer s.μ.Unlock()
	s.hooks.onError = f
	return s
}

func (s *Server) callbacks() serverHooks {
	s.μ.Lock()
	defer s.μ.Unlock()
	return s.hooks
}

func (s *Server) reportError(err error) {
	if h := s.callbacks(); h.onError != nil {
		h.onError(err)
	}
}

// acceptLoop accepts connections from lst until ctx ends or lst closes.
func (s *Server) acceptLoop(ctx context.Context, lst net.Listener, reg *registry, g *taskgroup.Group) {
	var delay time.Duration
	for {
		nc, err := lst.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			} else if errors.Is(err, net.ErrClosed) {
				// The listener was closed other than by Stop. Open connections
				// are unaffected, and the server runs until Stop is called.
				s.reportError(opError("accept", lst.Addr(), err))
				return
			}
			rootMetrics.acceptErr.Add(1)
			s.reportError(opError("accept", lst.Addr(), err))

			// Back off before retrying, so a persistent failure does not spin.
			delay = value.Cond(delay == 0, minAcceptDelay, min(2*delay, maxAcceptDelay))
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}
		delay = 0

		c := newConn(nc, s.reportError)
		if !reg.add(c) {
			c.finish(nil) // the server is stopping
			continue
		}
		rootMetrics.connAccepted.Add(1)
		if h := s.callbacks(); h.onConnect != nil {
			h.onConnect(c)
		}
		g.Go(func() error {
			s.serve(c, reg)
			return nil
		})
	}
}

// serve runs the receive loop for c, then removes it from reg and completes
// its close path.
func (s *Server) serve(c *Conn, reg *registry) {
	err := c.receive(func(text string) {
		h := s.callbacks()
		if h.onData == nil {
			return
		}
		defer func() {
			if x := recover(); x != nil {
				s.reportError(fmt.Errorf("data callback panicked (recovered): %v", x))
			}
		}()
		h.onData(c, text)
	})
	if err != nil {
		s.reportError(err)
	}
	reg.remove(c)
	c.finish(func() {
		if h := s.callbacks(); h.onDisconnect != nil {
			h.onDisconnect(c)
		}
	})
}
