// Copyright (C) 2023 Michael J. Fromberger. All Rights Reserved.

// Package handler provides adapters to the tether.DataFunc type for functions
// with other signatures, and a Mux that dispatches frames by command name.
//
// An adapted function receives the text of a frame and returns a result. A
// non-empty result is sent back to the connection the frame came from. An
// error is sent back as a frame of the form "error: <message>".
//
// Parameters may be string or []byte, or a type whose pointer supports the
// encoding.TextUnmarshaler interface.
//
// Results may be string or []byte, or any type that supports the
// encoding.TextMarshaler or fmt.Stringer interfaces. A result whose encoding
// contains the frame delimiter is answered with an error instead.
package handler

import (
	"bytes"
	"encoding"
	"errors"
	"fmt"
	"strings"

	"github.com/creachadair/tether"
	"github.com/creachadair/tether/frame"
)

// ParamResultError adapts a function f that accepts parameters of type P and
// returns a result of type R and an error, to a tether.DataFunc.
func ParamResultError[P, R any](f func(*tether.Conn, P) (R, error)) tether.DataFunc {
	return func(c *tether.Conn, text string) {
		var p P
		if err := unmarshal(text, &p); err != nil {
			replyError(c, err)
			return
		}
		r, err := f(c, p)
		if err != nil {
			replyError(c, err)
			return
		}
		reply(c, r)
	}
}

// ParamResult adapts a function f that accepts parameters of type P and
// returns a result of type R without error, to a tether.DataFunc.
func ParamResult[P, R any](f func(*tether.Conn, P) R) tether.DataFunc {
	return ParamResultError(func(c *tether.Conn, p P) (R, error) {
		return f(c, p), nil
	})
}

// ParamError adapts a function f that accepts parameters of type P and returns
// an error with no result, to a tether.DataFunc. Nothing is sent back unless f
// reports an error.
func ParamError[P any](f func(*tether.Conn, P) error) tether.DataFunc {
	return func(c *tether.Conn, text string) {
		var p P
		if err := unmarshal(text, &p); err != nil {
			replyError(c, err)
		} else if err := f(c, p); err != nil {
			replyError(c, err)
		}
	}
}

// reply sends the encoding of v back to c. A result containing the frame
// delimiter cannot be sent as one frame, and is replaced by an error.
func reply(c *tether.Conn, v any) {
	text, err := marshal(v)
	if err != nil {
		replyError(c, err)
		return
	}
	if strings.IndexByte(text, frame.Delimiter) >= 0 {
		replyError(c, errors.New("result contains the frame delimiter"))
		return
	}
	c.Send(text) // ignores empty results
}

// replyError sends err back to c. The message is altered so that it cannot
// be mistaken for more than one frame.
func replyError(c *tether.Conn, err error) {
	msg := strings.ReplaceAll(err.Error(), string(rune(frame.Delimiter)), ",")
	c.Send("error: " + msg)
}

// unmarshal decodes text into v. The concrete type of v must be a pointer to a
// []byte or string, or must implement encoding.TextUnmarshaler.
func unmarshal(text string, v any) error {
	switch t := v.(type) {
	case *string:
		*t = text
	case *[]byte:
		*t = bytes.Clone([]byte(text))
	case encoding.TextUnmarshaler:
		return t.UnmarshalText([]byte(text))
	default:
		return fmt.Errorf("cannot unmarshal into %T", v)
	}
	return nil
}

// marshal encodes v into text. The concrete type of v must be a []byte or
// string (or a pointer to these); otherwise it must implement either the
// encoding.TextMarshaler or the fmt.Stringer interface. If v implements both,
// TextMarshaler is preferred.
//
// As a special case if v is a nil pointer to a string or []byte, the result is
// empty without error.
func marshal(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case *string:
		if t == nil {
			return "", nil
		}
		return *t, nil
	case []byte:
		return string(t), nil
	case *[]byte:
		if t == nil {
			return "", nil
		}
		return string(*t), nil
	case encoding.TextMarshaler:
		data, err := t.MarshalText()
		return string(data), err
	case fmt.Stringer:
		return t.String(), nil
	default:
		return "", fmt.Errorf("cannot marshal %T", v)
	}
}
