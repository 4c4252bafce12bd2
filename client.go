// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package tether

import (
	"context"
	"expvar"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/creachadair/taskgroup"
)

// DefaultConnectTimeout is the dial timeout used by Connect when the caller
// does not specify one.
const DefaultConnectTimeout = 4 * time.Second

// A Client maintains at most one outbound connection to a server and
// exchanges text frames with it. A zero-valued Client is ready for use, but
// must not be copied after any method has been called.
//
// The client reads frames from the connection in the background and delivers
// them in order to the callback registered with OnData.
type Client struct {
	dial sync.Mutex // serializes Connect

	μ       sync.Mutex
	conn    *Conn
	dialing bool
	tasks   *taskgroup.Group
	hooks   clientHooks
}

type clientHooks struct {
	onData       func(string)
	onDisconnect func()
	onError      func(error)
}

// NewClient constructs a new unconnected client.
func NewClient() *Client { return new(Client) }

// Connect dials a TCP connection to host and port, and starts receiving
// frames from it. If timeout ≤ 0, DefaultConnectTimeout is used. The dial is
// also abandoned if ctx ends first.
//
// If c is already connected, the existing connection is disconnected first.
// If the dial fails, Connect reports an error of concrete type *Error, and c
// is left unconnected.
func (c *Client) Connect(ctx context.Context, host string, port int, timeout time.Duration) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	if port <= 0 || port > 65535 {
		return &Error{Op: "dial", Addr: addr, Err: fmt.Errorf("invalid port %d", port)}
	}
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	c.dial.Lock()
	defer c.dial.Unlock()
	c.Disconnect()

	c.μ.Lock()
	c.dialing = true
	c.μ.Unlock()

	rootMetrics.dials.Add(1)
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var d net.Dialer
	nc, err := d.DialContext(dctx, "tcp", addr)

	c.μ.Lock()
	c.dialing = false
	if err != nil {
		c.μ.Unlock()
		rootMetrics.dialErr.Add(1)
		return &Error{Op: "dial", Addr: addr, Err: err}
	}
	conn := newConn(nc, c.reportError)
	g := taskgroup.New(nil)
	c.conn = conn
	c.tasks = g
	c.μ.Unlock()

	g.Go(func() error {
		c.serve(conn)
		return nil
	})
	return nil
}

// Send sends text to the server as a single frame. If text is empty or
// consists only of whitespace, or if c is not connected, Send does nothing.
// A write error is reported to the error callback and closes the connection.
func (c *Client) Send(text string) {
	if conn := c.current(); conn != nil {
		conn.Send(text)
	}
}

// IsConnected reports whether c currently holds a connection. The report is
// approximate: a connection broken by the network is not noticed until the
// next read or write on it fails.
func (c *Client) IsConnected() bool { return c.current() != nil }

// State reports the lifecycle state of the client's connection: Connecting
// while a dial is in progress, the state of the current connection if there
// is one, and otherwise Closed.
func (c *Client) State() State {
	c.μ.Lock()
	defer c.μ.Unlock()
	if c.dialing {
		return Connecting
	} else if c.conn != nil {
		return c.conn.State()
	}
	return Closed
}

// RemoteAddr returns the address of the server c is connected to, or nil if
// c is not connected.
func (c *Client) RemoteAddr() net.Addr {
	if conn := c.current(); conn != nil {
		return conn.RemoteAddr()
	}
	return nil
}

// Disconnect closes the current connection, if any. It does not wait for the
// receive goroutine to exit; use Wait for that. It is safe to call Disconnect
// when c is not connected, and from inside a callback.
func (c *Client) Disconnect() {
	c.μ.Lock()
	conn := c.conn
	c.conn = nil
	c.μ.Unlock()
	if conn != nil {
		conn.shutdown()
	}
}

// Wait blocks until the receive goroutine for the most recent connection has
// exited and its disconnect callback has returned. Wait must not be called
// from inside a callback.
func (c *Client) Wait() {
	c.μ.Lock()
	g := c.tasks
	c.μ.Unlock()
	if g != nil {
		g.Wait()
	}
}

// Metrics returns a metrics map for the client. It is shared with servers.
func (c *Client) Metrics() *expvar.Map { return rootMetrics.emap }

// OnData registers a callback invoked with each non-empty frame received from
// the server. Passing nil removes the callback. OnData returns c to permit
// chaining.
func (c *Client) OnData(f func(text string)) *Client {
	c.μ.Lock()
	defer c.μ.Unlock()
	c.hooks.onData = f
	return c
}

// OnDisconnect registers a callback invoked exactly once for each connection
// after it closes, whether by Disconnect, by the server, or by an error.
// Passing nil removes the callback. OnDisconnect returns c to permit chaining.
func (c *Client) OnDisconnect(f func()) *Client {
	c.μ.Lock()
	defer c.μ.Unlock()
	c.hooks.onDisconnect = f
	return c
}

// OnError registers a callback invoked with read and write errors on the
// connection. Passing nil removes the callback. OnError returns c to permit
// chaining.
func (c *Client) OnError(f func(error)) *Client {
	c.μ.Lock()
	defer c.μ.Unlock()
	c.hooks.onError = f
	return c
}

func (c *Client) current() *Conn {
	c.μ.Lock()
	defer c.μ.Unlock()
	return c.conn
}

func (c *Client) callbacks() clientHooks {
	c.μ.Lock()
	defer c.μ.Unlock()
	return c.hooks
}

func (c *Client) reportError(err error) {
	if h := c.callbacks(); h.onError != nil {
		h.onError(err)
	}
}

// serve runs the receive loop for conn, then releases it.
func (c *Client) serve(conn *Conn) {
	err := conn.receive(func(text string) {
		h := c.callbacks()
		if h.onData == nil {
			return
		}
		defer func() {
			if x := recover(); x != nil {
				c.reportError(fmt.Errorf("data callback panicked (recovered): %v", x))
			}
		}()
		h.onData(text)
	})
	if err != nil {
		c.reportError(err)
	}

	c.μ.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.μ.Unlock()
	conn.finish(func() {
		if h := c.callbacks(); h.onDisconnect != nil {
			h.onDisconnect()
		}
	})
}
