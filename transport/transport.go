// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/ffutop/psu-emulator/wire"
)

// FrameHandler handles one command frame (terminator stripped).
// ok reports whether reply should be written back; a false ok means the
// device stays silent, which is also how faults look on the wire.
type FrameHandler func(ctx context.Context, frame string) (reply string, ok bool)

// Upstream is a channel a controller talks to the emulated device through.
type Upstream interface {
	// Start serves the channel and blocks until ctx is done or the channel fails.
	Start(ctx context.Context, handler FrameHandler) error
	Close() error
}

// ServeStream runs the half-duplex request/reply loop on rw: each frame is
// handled and its reply written before the next frame is read.
// transient decides whether a read error should be skipped (serial timeouts);
// nil treats every read error as the end of the stream.
func ServeStream(ctx context.Context, rw io.ReadWriter, handler FrameHandler, transient func(error) bool) error {
	r := wire.NewReader(rw)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, err := r.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var tooLong *wire.FrameTooLongError
			if errors.As(err, &tooLong) {
				slog.Warn("Discarding oversized frame", "length", tooLong.Length)
				if transient != nil {
					continue
				}
				return err
			}
			if transient != nil && transient(err) {
				continue
			}
			if r.Pending() {
				slog.Debug("Dropping partial frame at end of stream", "err", err)
			}
			return err
		}

		reply, ok := handler(ctx, frame)
		if !ok {
			continue
		}
		if _, err := rw.Write(wire.Encode(reply)); err != nil {
			return err
		}
	}
}
