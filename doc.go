// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

// Package tether implements a minimal message-framed text protocol over TCP.
//
// Peers exchange UTF-8 text messages over a stream connection. Each message
// on the wire is terminated by a single ";" byte (see package frame). There
// is no escaping, no encryption, and no authentication: the protocol is
// meant for trusted local transports, such as a host process talking to a
// program it launched.
//
// # Servers
//
// A [Server] accepts connections from any number of peers:
//
//	s := tether.NewServer().
//	   OnData(func(c *tether.Conn, text string) {
//	      log.Printf("%s says %q", c.RemoteAddr(), text)
//	      c.Send("got it")
//	   })
//	if err := s.Start("127.0.0.1", 8080); err != nil {
//	   log.Fatalf("Start: %v", err)
//	}
//	defer s.Stop()
//
// Each accepted connection is serviced by its own goroutine, which splits the
// incoming stream into frames and passes them in order to the data callback.
// To send to every connected peer at once, use [Server.Broadcast].
//
// # Clients
//
// A [Client] dials a single connection to a server:
//
//	c := tether.NewClient().OnData(func(text string) {
//	   fmt.Println(text)
//	})
//	if err := c.Connect(ctx, "127.0.0.1", 8080, 0); err != nil {
//	   log.Fatalf("Connect: %v", err)
//	}
//	c.Send("hello")
//	...
//	c.Disconnect()
//
// # Connections
//
// Every connection, accepted or dialed, moves through the states Connecting
// (clients only), Open, Closing and Closed. A connection reports its
// disconnection exactly once, whether it was closed by the remote peer, by
// a local Stop or Disconnect, or by a read or write error.
//
// Sends are best effort: [Conn.Send], [Server.SendTo], [Server.Broadcast] and
// [Client.Send] never return errors. A failed write is reported to the error
// callback of the server or client that owns the connection, and closes that
// connection only.
//
// # Callbacks
//
// Servers and clients report activity through callbacks registered with their
// On* methods. There is one callback of each kind; registering another
// replaces it. Callbacks run on background goroutines and must be safe for
// concurrent use with the rest of the program.
//
// # Metrics
//
// Servers and clients maintain a shared collection of metrics.  Use the
// Metrics method to obtain an [expvar.Map] containing them:
//
//   - conns_accepted: counter of connections accepted by servers
//   - conns_active: gauge of connections open, in either direction
//   - accept_errors: counter of failed accepts
//   - dials: counter of outbound connection attempts
//   - dial_errors: counter of outbound attempts that failed
//   - frames_received: counter of non-empty frames received
//   - frames_sent: counter of frames sent
//   - bytes_received: counter of bytes read from connections
//   - bytes_sent: counter of bytes written to connections
//   - send_errors: counter of writes that failed
//   - read_errors: counter of reads that failed other than by orderly close
//   - broadcasts: counter of calls to Broadcast
package tether
