// Package linktest provides support code for testing servers and clients.
package linktest

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/creachadair/tether"
)

// Timeout bounds how long Next waits for an event.
var Timeout = 5 * time.Second

// bufSize is the capacity of each recorder channel. A callback blocks if the
// test does not drain its channel.
const bufSize = 256

// A Message is a frame received by a server, with its connection.
type Message struct {
	Conn *tether.Conn
	Text string
}

// A Recorder captures the callbacks of a server on buffered channels, so that
// a test can wait for them in order.
type Recorder struct {
	Started      chan struct{}
	Stopped      chan struct{}
	Connected    chan *tether.Conn
	Disconnected chan *tether.Conn
	Data         chan Message
	Errors       chan error
}

// NewRecorder constructs a new empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		Started:      make(chan struct{}, bufSize),
		Stopped:      make(chan struct{}, bufSize),
		Connected:    make(chan *tether.Conn, bufSize),
		Disconnected: make(chan *tether.Conn, bufSize),
		Data:         make(chan Message, bufSize),
		Errors:       make(chan error, bufSize),
	}
}

// Attach registers callbacks on s that record to r, replacing any callbacks
// already registered. It returns s.
func (r *Recorder) Attach(s *tether.Server) *tether.Server {
	return s.
		OnStart(func() { r.Started <- struct{}{} }).
		OnStop(func() { r.Stopped <- struct{}{} }).
		OnConnect(func(c *tether.Conn) { r.Connected <- c }).
		OnDisconnect(func(c *tether.Conn) { r.Disconnected <- c }).
		OnData(func(c *tether.Conn, text string) { r.Data <- Message{Conn: c, Text: text} }).
		OnError(func(err error) { r.Errors <- err })
}

// NewServer starts a server on an ephemeral loopback port with a recorder
// attached. The server is stopped when the test ends; a test that checks for
// leaked goroutines should stop it explicitly first.
func NewServer(t testing.TB) (*tether.Server, *Recorder) {
	t.Helper()
	rec := NewRecorder()
	s := rec.Attach(tether.NewServer())
	if err := s.Start("127.0.0.1", 0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Stop)
	Next(t, rec.Started)
	t.Logf("Server listening at %v", s.Addr())
	return s, rec
}

// HostPort returns the host and port where s is listening.
func HostPort(t testing.TB, s *tether.Server) (string, int) {
	t.Helper()
	addr := s.Addr()
	if addr == nil {
		t.Fatal("Server is not running")
	}
	host, ps, err := net.SplitHostPort(addr.String())
	if err != nil {
		t.Fatalf("Invalid server address: %v", err)
	}
	port, err := strconv.Atoi(ps)
	if err != nil {
		t.Fatalf("Invalid server port: %v", err)
	}
	return host, port
}

// Dial opens a plain TCP connection to s, for tests that need to control the
// bytes on the wire. The connection is closed when the test ends.
func Dial(t testing.TB, s *tether.Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// Connect dials a new client to s. The client is disconnected when the test
// ends.
func Connect(t testing.TB, s *tether.Server, c *tether.Client) *tether.Client {
	t.Helper()
	host, port := HostPort(t, s)
	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()
	if err := c.Connect(ctx, host, port, 0); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { c.Disconnect(); c.Wait() })
	return c
}

// Next waits for and returns the next value from ch. It fails the test if no
// value arrives within Timeout.
func Next[T any](t testing.TB, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(Timeout):
		t.Fatalf("Timed out after %v waiting for %T", Timeout, *new(T))
		panic("unreachable")
	}
}

// Quiet fails the test if a value arrives on ch within d.
func Quiet[T any](t testing.TB, ch <-chan T, d time.Duration) {
	t.Helper()
	select {
	case v := <-ch:
		t.Errorf("Unexpected %T: %v", v, v)
	case <-time.After(d):
	}
}

// Local is a server with one connected client, suitable for testing.
type Local struct {
	Server *tether.Server
	Events *Recorder    // server callbacks
	Conn   *tether.Conn // the server side of the client's connection

	Client *tether.Client
	Frames chan string // frames received by the client
}

// NewLocal starts a loopback server and connects a client to it.
func NewLocal(t testing.TB) *Local {
	t.Helper()
	s, rec := NewServer(t)
	frames := make(chan string, bufSize)
	c := Connect(t, s, tether.NewClient().OnData(func(text string) { frames <- text }))
	return &Local{
		Server: s,
		Events: rec,
		Conn:   Next(t, rec.Connected),
		Client: c,
		Frames: frames,
	}
}

// Stop disconnects the client and stops the server, and blocks until both
// have finished.
func (l *Local) Stop() {
	l.Client.Disconnect()
	l.Client.Wait()
	l.Server.Stop()
}
