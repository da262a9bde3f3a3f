// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

const (
	// Terminator ends every frame in both directions.
	Terminator = '\r'

	// MaxFrameSize bounds a single command frame, terminator included.
	MaxFrameSize = 256
)

type FrameTooLongError struct {
	Length int
}

func (e *FrameTooLongError) Error() string {
	return fmt.Sprintf("frame exceeds %d bytes (%d buffered)", MaxFrameSize, e.Length)
}

// Reader splits a byte stream into terminator-delimited frames.
// A read error (e.g. a serial timeout) keeps the partial frame, so the next
// ReadFrame call resumes where the previous one stopped.
// After an oversized frame the rest of that line, up to the next terminator,
// is discarded rather than handed out as a frame of its own.
type Reader struct {
	br      *bufio.Reader
	pending []byte
	discard bool
}

// NewReader creates a frame reader on r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, MaxFrameSize)}
}

// ReadFrame returns the next frame without its terminator. A stray '\n' left
// over from a "\r\n" sender is dropped from the start of the frame.
func (r *Reader) ReadFrame() (string, error) {
	for {
		chunk, err := r.br.ReadSlice(Terminator)
		if r.discard {
			switch {
			case err == nil:
				r.discard = false
				continue
			case errors.Is(err, bufio.ErrBufferFull):
				continue
			default:
				return "", err
			}
		}
		r.pending = append(r.pending, chunk...)

		if len(r.pending) > MaxFrameSize {
			n := len(r.pending)
			r.pending = r.pending[:0]
			// The terminator has not been seen yet unless ReadSlice found it.
			r.discard = err != nil
			return "", &FrameTooLongError{Length: n}
		}

		switch {
		case err == nil:
			frame := r.pending[:len(r.pending)-1]
			if len(frame) > 0 && frame[0] == '\n' {
				frame = frame[1:]
			}
			s := string(frame)
			r.pending = r.pending[:0]
			return s, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return "", err
		}
	}
}

// Pending reports whether a partial frame is buffered or an oversized one is
// still being skipped.
func (r *Reader) Pending() bool {
	return len(r.pending) > 0 || r.discard
}

// Encode appends the terminator to a reply.
func Encode(reply string) []byte {
	buf := make([]byte, 0, len(reply)+1)
	buf = append(buf, reply...)
	return append(buf, Terminator)
}
