// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package frame_test

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/creachadair/tether/frame"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"", ";"},
		{"hello", "hello;"},
		{"two words", "two words;"},
		{"héllo, wörld", "héllo, wörld;"},
	}
	for _, tc := range tests {
		if got := string(frame.Encode(tc.input)); got != tc.want {
			t.Errorf("Encode(%q): got %q, want %q", tc.input, got, tc.want)
		}
	}

	// Append should extend an existing buffer in place.
	got := frame.Append(frame.Encode("a"), "b")
	if string(got) != "a;b;" {
		t.Errorf("Append: got %q, want %q", got, "a;b;")
	}
}

func TestScan(t *testing.T) {
	tests := []struct {
		input    string
		want     []string
		consumed int
	}{
		{"", nil, 0},
		{"partial", nil, 0},
		{";", nil, 1},
		{";;", nil, 2},
		{"a;", []string{"a"}, 2},
		{"a;;b;", []string{"a", "b"}, 5},
		{"a;b;rest", []string{"a", "b"}, 4},
		{";;x;;", []string{"x"}, 5},
	}
	for _, tc := range tests {
		var got []string
		nc, nf := frame.Scan([]byte(tc.input), func(s string) { got = append(got, s) })
		if diff := cmp.Diff(tc.want, got, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("Scan(%q) frames (-want, +got):\n%s", tc.input, diff)
		}
		if nc != tc.consumed {
			t.Errorf("Scan(%q) consumed: got %d, want %d", tc.input, nc, tc.consumed)
		}
		if nf != len(tc.want) {
			t.Errorf("Scan(%q) count: got %d, want %d", tc.input, nf, len(tc.want))
		}
	}
}

func TestBuffer(t *testing.T) {
	var fb frame.Buffer
	var got []string
	emit := func(s string) { got = append(got, s) }

	// A frame split across two reads is delivered once, when complete.
	if n := fb.Feed([]byte("hello;wor"), emit); n != 1 {
		t.Errorf("Feed 1: got %d frames, want 1", n)
	}
	if got, want := string(fb.Pending()), "wor"; got != want {
		t.Errorf("Pending: got %q, want %q", got, want)
	}
	if n := fb.Feed([]byte("ld;"), emit); n != 1 {
		t.Errorf("Feed 2: got %d frames, want 1", n)
	}
	if diff := cmp.Diff([]string{"hello", "world"}, got); diff != "" {
		t.Errorf("Frames (-want, +got):\n%s", diff)
	}
	if fb.Len() != 0 {
		t.Errorf("Len: got %d, want 0", fb.Len())
	}

	// Adjacent delimiters produce nothing.
	got = nil
	if n := fb.Feed([]byte(";;"), emit); n != 0 || len(got) != 0 {
		t.Errorf("Feed empty frames: got %d frames %q, want none", n, got)
	}

	// Reset discards a pending partial frame.
	fb.Feed([]byte("junk"), emit)
	fb.Reset()
	fb.Feed([]byte("ok;"), emit)
	if diff := cmp.Diff([]string{"ok"}, got); diff != "" {
		t.Errorf("After reset (-want, +got):\n%s", diff)
	}
}

func TestBufferUnterminated(t *testing.T) {
	var fb frame.Buffer
	chunk := []byte(strings.Repeat("x", frame.ChunkSize))
	for range 64 {
		if n := fb.Feed(chunk, nil); n != 0 {
			t.Fatalf("Feed: got %d frames, want 0", n)
		}
	}
	if got, want := fb.Len(), 64*frame.ChunkSize; got != want {
		t.Errorf("Len: got %d, want %d", got, want)
	}
	var got string
	fb.Feed([]byte(";"), func(s string) { got = s })
	if len(got) != 64*frame.ChunkSize {
		t.Errorf("Frame length: got %d, want %d", len(got), 64*frame.ChunkSize)
	}
}

func TestBufferMultibyte(t *testing.T) {
	// Split a multi-byte encoding across reads; the frame must be intact.
	const msg = "服务器已收到消息"
	wire := frame.Encode(msg)

	var fb frame.Buffer
	var got []string
	for _, b := range wire {
		fb.Feed([]byte{b}, func(s string) { got = append(got, s) })
	}
	if diff := cmp.Diff([]string{msg}, got); diff != "" {
		t.Errorf("Frames (-want, +got):\n%s", diff)
	}
}

func TestChunking(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	// Generate a batch of messages without delimiters, encode them onto a
	// single stream, then deliver the stream in randomly-sized chunks.
	const numTrials = 50
	for trial := range numTrials {
		msgs := make([]string, 1+rng.IntN(40))
		var wire []byte
		for i := range msgs {
			msgs[i] = randomText(rng, 1+rng.IntN(300))
			wire = frame.Append(wire, msgs[i])
		}

		var fb frame.Buffer
		var got []string
		for len(wire) > 0 {
			n := min(len(wire), 1+rng.IntN(2*frame.ChunkSize))
			fb.Feed(wire[:n], func(s string) { got = append(got, s) })
			wire = wire[n:]
		}
		if diff := cmp.Diff(msgs, got); diff != "" {
			t.Fatalf("Trial %d: frames (-want, +got):\n%s", trial+1, diff)
		}
		if fb.Len() != 0 {
			t.Errorf("Trial %d: %d bytes left over", trial+1, fb.Len())
		}
	}
}

func randomText(rng *rand.Rand, n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz ABC0123456789,.:-éü中文"
	runes := []rune(alphabet)
	var sb strings.Builder
	for range n {
		sb.WriteRune(runes[rng.IntN(len(runes))])
	}
	return sb.String()
}
