// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package frame implements the delimiter framing used by tether connections.
//
// A frame is a run of UTF-8 text terminated by a single [Delimiter] byte.  The
// delimiter is not part of the frame content, and there is no escaping: a
// payload containing the delimiter will be split at that point.
//
// To encode a frame for the wire, use [Append] or [Encode]:
//
//	conn.Write(frame.Encode("hello"))  // writes "hello;"
//
// To reassemble frames from a stream of reads, keep a [Buffer] for each
// stream and feed it each chunk as it arrives:
//
//	var fb frame.Buffer
//	for {
//	   nr, err := conn.Read(buf)
//	   fb.Feed(buf[:nr], func(text string) { handle(text) })
//	   ...
//	}
package frame

import "bytes"

const (
	// Delimiter is the byte that terminates each frame on the wire.
	Delimiter = ';'

	// ChunkSize is the size of the read buffer used by connections.
	ChunkSize = 1024
)

// Append appends the wire encoding of text to dst and returns the updated
// slice. The encoding is the bytes of text followed by a Delimiter.
func Append(dst []byte, text string) []byte {
	return append(append(dst, text...), Delimiter)
}

// Encode returns the wire encoding of text.
func Encode(text string) []byte {
	return Append(make([]byte, 0, len(text)+1), text)
}

// Scan splits the complete frames from the front of buf, calling emit with the
// text of each non-empty frame in order. It returns the number of bytes of buf
// consumed, including delimiters, and the number of frames emitted. The bytes
// of buf following the last delimiter are not consumed.
//
// Empty frames, such as those produced by two adjacent delimiters, are
// consumed but not emitted. If emit == nil, frames are counted but discarded.
func Scan(buf []byte, emit func(string)) (consumed, frames int) {
	for {
		i := bytes.IndexByte(buf[consumed:], Delimiter)
		if i < 0 {
			return consumed, frames
		}
		if i > 0 {
			frames++
			if emit != nil {
				emit(string(buf[consumed : consumed+i]))
			}
		}
		consumed += i + 1
	}
}

// A Buffer accumulates bytes from a stream and splits them into frames.  The
// zero value is ready for use as an empty buffer.
//
// A Buffer is not safe for concurrent use; it is meant to be owned by the one
// goroutine reading the stream.
type Buffer struct {
	buf []byte
}

// Feed appends data to the buffer and calls emit for each complete non-empty
// frame now available, in order. Any incomplete frame at the end is retained
// for a subsequent call. Feed reports the number of frames emitted.
//
// The buffer has no size limit: a stream that never sends a delimiter grows
// the buffer without bound.
func (b *Buffer) Feed(data []byte, emit func(string)) int {
	if bytes.IndexByte(data, Delimiter) < 0 {
		// The retained prefix is already known to be delimiter-free.
		b.buf = append(b.buf, data...)
		return 0
	}
	b.buf = append(b.buf, data...)
	nc, nf := Scan(b.buf, emit)
	b.buf = b.buf[:copy(b.buf, b.buf[nc:])]
	return nf
}

// Len reports the number of bytes in b not yet consumed as part of a frame.
func (b *Buffer) Len() int { return len(b.buf) }

// Pending returns a copy of the bytes of b not yet consumed.
func (b *Buffer) Pending() []byte { return bytes.Clone(b.buf) }

// Reset discards the contents of b and leaves it empty.
func (b *Buffer) Reset() { b.buf = b.buf[:0] }
