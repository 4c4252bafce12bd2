// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package tether_test

import (
	"strings"
	"testing"

	"github.com/creachadair/tether"
	"github.com/creachadair/tether/frame"
	"github.com/creachadair/tether/linktest"
)

var payload = "fuzzy wuzzy was a bear, fuzzy wuzzy had no hair, fuzzy wuzzy wasn't fuzzy was he?"

func BenchmarkFeed(b *testing.B) {
	wire := []byte(strings.Repeat(payload+";", 32))

	b.Run("Whole", func(b *testing.B) {
		var fb frame.Buffer
		for b.Loop() {
			fb.Feed(wire, nil)
		}
	})
	b.Run("Chunked", func(b *testing.B) {
		var fb frame.Buffer
		for b.Loop() {
			for i := 0; i < len(wire); i += 37 {
				fb.Feed(wire[i:min(i+37, len(wire))], nil)
			}
		}
	})
}

func BenchmarkRoundTrip(b *testing.B) {
	loc := linktest.NewLocal(b)
	defer loc.Stop()

	loc.Server.OnData(func(c *tether.Conn, text string) { c.Send(text) })
	for b.Loop() {
		loc.Client.Send(payload)
		if got := linktest.Next(b, loc.Frames); got != payload {
			b.Fatalf("Reply: got %q, want %q", got, payload)
		}
	}
}
