// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package tether

import (
	"errors"
	"fmt"
	"io"
	"net"
)

// Error is the concrete type of errors reported by servers and clients, both
// as return values and through error callbacks.
type Error struct {
	Op   string // one of "listen", "accept", "dial", "read", "write"
	Addr string // the network address involved, if known
	Err  error  // the underlying error
}

// Error satisfies the error interface.
func (e *Error) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

// Unwrap reports the underlying error of e.
func (e *Error) Unwrap() error { return e.Err }

func opError(op string, addr net.Addr, err error) *Error {
	e := &Error{Op: op, Err: err}
	if addr != nil {
		e.Addr = addr.String()
	}
	return e
}

// treatErrorAsSuccess reports whether err indicates an orderly end of a stream
// rather than a failure.
func treatErrorAsSuccess(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
