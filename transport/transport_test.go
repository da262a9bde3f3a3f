// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

type stream struct {
	in  io.Reader
	out bytes.Buffer
}

func (s *stream) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s *stream) Write(p []byte) (int, error) { return s.out.Write(p) }

func TestServeStream_OversizedLineIsNotExecuted(t *testing.T) {
	rw := &stream{in: strings.NewReader(strings.Repeat("X", 512) + "N\rS0\r")}

	var frames []string
	handler := func(ctx context.Context, frame string) (string, bool) {
		frames = append(frames, frame)
		return "ok", frame == "S0"
	}
	transient := func(err error) bool { return !errors.Is(err, io.EOF) }

	err := ServeStream(context.Background(), rw, handler, transient)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("ServeStream() error = %v, want EOF", err)
	}
	if strings.Join(frames, "|") != "S0" {
		t.Errorf("frames handled = %q, want only S0", frames)
	}
	if got := rw.out.String(); got != "ok\r" {
		t.Errorf("written = %q", got)
	}
}

func TestServeStream_OversizedFrameEndsStrictStream(t *testing.T) {
	rw := &stream{in: strings.NewReader(strings.Repeat("X", 512) + "\rS0\r")}
	handler := func(ctx context.Context, frame string) (string, bool) {
		t.Errorf("handler called with %q", frame)
		return "", false
	}
	if err := ServeStream(context.Background(), rw, handler, nil); err == nil {
		t.Fatal("expected an error for an oversized frame without a transient policy")
	}
}
