// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package eventlog records the activity of tether servers and clients to a
// zerolog logger.
//
// Attach a logger to a server to log all its callbacks:
//
//	log := eventlog.New(zerolog.New(os.Stderr).With().Timestamp().Logger())
//	srv := log.Attach(tether.NewServer())
//
// Attaching replaces the callbacks of the server. To combine logging with
// other behaviour, call the methods of the Logger from your own callbacks.
//
// Lifecycle events are logged at info level, frames at debug level, and
// errors at error level.
package eventlog

import (
	"errors"

	"github.com/creachadair/tether"
	"github.com/rs/zerolog"
)

// A Logger writes tether events to a zerolog logger.
type Logger struct {
	log zerolog.Logger
}

// New constructs a Logger that writes to log.
func New(log zerolog.Logger) *Logger { return &Logger{log: log} }

// Attach registers callbacks on s that log each event, and returns s.
func (l *Logger) Attach(s *tether.Server) *tether.Server {
	return s.
		OnStart(func() { l.Started(s) }).
		OnStop(l.Stopped).
		OnConnect(l.Connected).
		OnDisconnect(l.Disconnected).
		OnData(l.Data).
		OnError(l.Error)
}

// AttachClient registers callbacks on c that log each event, and returns c.
func (l *Logger) AttachClient(c *tether.Client) *tether.Client {
	return c.
		OnData(l.ClientData).
		OnDisconnect(l.ClientDisconnected).
		OnError(l.Error)
}

// Started logs the start of s.
func (l *Logger) Started(s *tether.Server) {
	ev := l.log.Info()
	if addr := s.Addr(); addr != nil {
		ev = ev.Stringer("addr", addr)
	}
	ev.Msg("server started")
}

// Stopped logs the stop of a server.
func (l *Logger) Stopped() { l.log.Info().Msg("server stopped") }

// Connected logs a new connection accepted by a server.
func (l *Logger) Connected(c *tether.Conn) {
	l.log.Info().Str("conn", c.ID()).Stringer("addr", c.RemoteAddr()).Msg("client connected")
}

// Disconnected logs the close of a connection accepted by a server.
func (l *Logger) Disconnected(c *tether.Conn) {
	l.log.Info().Str("conn", c.ID()).Stringer("addr", c.RemoteAddr()).Msg("client disconnected")
}

// Data logs a frame received by a server.
func (l *Logger) Data(c *tether.Conn, text string) {
	l.log.Debug().Str("conn", c.ID()).Str("text", text).Msg("data received")
}

// ClientData logs a frame received by a client.
func (l *Logger) ClientData(text string) {
	l.log.Debug().Str("text", text).Msg("data received")
}

// ClientDisconnected logs the close of a client connection.
func (l *Logger) ClientDisconnected() { l.log.Info().Msg("disconnected") }

// Error logs an error reported by a server or client. Errors of concrete type
// *tether.Error are logged with their operation and address as fields.
func (l *Logger) Error(err error) {
	ev := l.log.Error()
	var te *tether.Error
	if errors.As(err, &te) {
		ev = ev.Str("op", te.Op)
		if te.Addr != "" {
			ev = ev.Str("addr", te.Addr)
		}
		err = te.Err
	}
	ev.Err(err).Msg("error occurred")
}
