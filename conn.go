// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package tether

import (
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/creachadair/tether/frame"
	"github.com/google/uuid"
)

// State describes the lifecycle state of a connection.
//
// A connection moves forward through the states in order and never returns to
// an earlier one. Connections accepted by a server begin in Open.
type State int32

const (
	Connecting State = iota // outbound dial in progress (clients only)
	Open                    // connected and exchanging frames
	Closing                 // shutting down, sends are discarded
	Closed                  // socket released and disconnect reported
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Open:
		return "OPEN"
	case Closing:
		return "CLOSING"
	case Closed:
		return "CLOSED"
	default:
		return fmt.Sprintf("state %d", int32(s))
	}
}

// A Conn is one end of a framed text connection, either accepted by a Server
// or dialed by a Client. The methods of a Conn are safe for concurrent use.
//
// A Conn is serviced by exactly one receive goroutine, which owns its frame
// buffer and drives it through the close path when the stream ends.
type Conn struct {
	id     string
	nc     net.Conn
	state  atomic.Int32
	report func(error) // error callback of the owner
	done   chan struct{}

	wμ   sync.Mutex // held while writing, so frames are written whole
	once sync.Once
}

func newConn(nc net.Conn, report func(error)) *Conn {
	c := &Conn{
		id:     uuid.NewString(),
		nc:     nc,
		report: report,
		done:   make(chan struct{}),
	}
	c.state.Store(int32(Open))
	rootMetrics.connActive.Add(1)
	return c
}

// ID returns a unique identifier for c, suitable for logging.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the network address of the remote peer.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// LocalAddr returns the local network address of c.
func (c *Conn) LocalAddr() net.Addr { return c.nc.LocalAddr() }

// State reports the current lifecycle state of c.
func (c *Conn) State() State { return State(c.state.Load()) }

// Done returns a channel that is closed when c reaches the Closed state.
func (c *Conn) Done() <-chan struct{} { return c.done }

// String returns a human-friendly rendering of the connection.
func (c *Conn) String() string {
	return fmt.Sprintf("Conn(ID=%s, Remote=%v, %v)", c.id, c.nc.RemoteAddr(), c.State())
}

// Send writes text to the remote peer as a single frame. If text is empty or
// consists only of whitespace, or if c is not open, Send does nothing.
//
// Send does not report errors to its caller. If the write fails, the error is
// passed to the error callback of the server or client that owns c, and the
// connection is closed.
func (c *Conn) Send(text string) {
	if strings.TrimSpace(text) == "" || c.State() != Open {
		return
	}
	wire := frame.Encode(text)

	c.wμ.Lock()
	nw, err := c.nc.Write(wire)
	c.wμ.Unlock()

	rootMetrics.bytesSent.Add(int64(nw))
	if err != nil {
		// Only the first failure is reported. If the connection was already
		// closing, the write lost a race with shutdown and is not an error.
		if c.closing() {
			rootMetrics.sendErr.Add(1)
			c.report(opError("write", c.nc.RemoteAddr(), err))
			c.nc.Close()
		}
		return
	}
	rootMetrics.frameSent.Add(1)
}

// closing moves c from Open to Closing, and reports whether this call made
// that transition.
func (c *Conn) closing() bool {
	return c.state.CompareAndSwap(int32(Open), int32(Closing))
}

// shutdown moves c to Closing and closes its socket, which interrupts any
// pending read so the receive loop can complete the close path.
func (c *Conn) shutdown() {
	if c.closing() {
		c.nc.Close()
	}
}

// receive reads from c until the stream ends, passing each complete frame to
// emit in order. It returns nil if the stream ended by orderly close from
// either side, otherwise the error that ended it. On return c is Closing.
func (c *Conn) receive(emit func(string)) error {
	var fb frame.Buffer
	deliver := func(text string) {
		rootMetrics.frameRecv.Add(1)
		emit(text)
	}
	buf := make([]byte, frame.ChunkSize)
	for {
		nr, err := c.nc.Read(buf)
		if nr > 0 {
			rootMetrics.bytesRecv.Add(int64(nr))
			fb.Feed(buf[:nr], deliver)
		} else if err == nil {
			err = io.EOF // a zero-length read means the peer closed
		}
		if err != nil {
			// If c was not open, the close was initiated locally and the read
			// error is the expected result of that.
			if !c.closing() || treatErrorAsSuccess(err) {
				return nil
			}
			rootMetrics.readErr.Add(1)
			return opError("read", c.nc.RemoteAddr(), err)
		}
	}
}

// finish completes the close path for c: It releases the socket, calls
// notify if it is not nil, and then marks c Closed. Only the first call has
// any effect.
func (c *Conn) finish(notify func()) {
	c.once.Do(func() {
		c.closing()
		c.nc.Close()
		rootMetrics.connActive.Add(-1)
		if notify != nil {
			notify()
		}
		c.state.Store(int32(Closed))
		close(c.done)
	})
}
