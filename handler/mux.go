// Copyright (C) 2023 Michael J. Fromberger. All Rights Reserved.

package handler

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/creachadair/tether"
)

// A Mux dispatches frames to callbacks by command name. The command name of a
// frame is its first space-separated word, and the callback receives the rest
// of the frame with leading spaces removed. A zero Mux is ready for use.
//
//	m := handler.NewMux().
//	   Handle("echo", handler.ParamResult(echo)).
//	   Handle("time", handler.ParamResult(now))
//	srv.OnData(m.Dispatch)
//
// A frame whose command has no handler is answered with an error frame.
type Mux struct {
	μ  sync.Mutex
	fn map[string]tether.DataFunc
}

// NewMux constructs a new empty Mux.
func NewMux() *Mux { return new(Mux) }

// Handle registers f as the handler for the named command. It is safe to call
// this while the mux is in use. Passing a nil f removes any handler for name.
// Handle returns m to permit chaining. Handle will panic if name contains
// whitespace.
//
// As a special case, if name == "" the handler is called, with the entire
// frame, for any command that does not have a more specific handler.
func (m *Mux) Handle(name string, f tether.DataFunc) *Mux {
	if strings.ContainsAny(name, " \t\r\n") {
		panic(fmt.Sprintf("invalid command name %q", name))
	}
	m.μ.Lock()
	defer m.μ.Unlock()
	if m.fn == nil {
		m.fn = make(map[string]tether.DataFunc)
	}
	if f == nil {
		delete(m.fn, name)
	} else {
		m.fn[name] = f
	}
	return m
}

// Commands returns the names of the commands with registered handlers, in
// lexicographic order. The wildcard handler is not included.
func (m *Mux) Commands() []string {
	m.μ.Lock()
	defer m.μ.Unlock()
	out := slices.Sorted(maps.Keys(m.fn))
	if len(out) != 0 && out[0] == "" {
		out = out[1:] // the wildcard sorts first
	}
	return out
}

// Dispatch routes a frame received on c to its handler. It has the signature
// of a tether.DataFunc, so m.Dispatch can be registered with Server.OnData.
func (m *Mux) Dispatch(c *tether.Conn, text string) {
	name, rest, _ := strings.Cut(strings.TrimLeft(text, " "), " ")
	rest = strings.TrimLeft(rest, " ")

	m.μ.Lock()
	var f tether.DataFunc
	var ok bool
	if name != "" {
		f, ok = m.fn[name]
	}
	if !ok {
		f, ok = m.fn[""]
		rest = text
	}
	m.μ.Unlock()

	if !ok {
		replyError(c, fmt.Errorf("unknown command %q", name))
		return
	}
	f(c, rest)
}
