// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package tty

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ffutop/psu-emulator/internal/config"
)

var errReadTimeout = errors.New("serial: timeout")

// mockPort replays input in chunks, reporting a timeout between chunks.
type mockPort struct {
	mu     sync.Mutex
	chunks [][]byte
	reads  int
	out    bytes.Buffer
}

func (m *mockPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reads >= 2*len(m.chunks) {
		return 0, io.EOF
	}
	i := m.reads
	m.reads++
	if i%2 == 1 {
		return 0, errReadTimeout
	}
	return copy(p, m.chunks[i/2]), nil
}

func (m *mockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.out.Write(p)
}

func (m *mockPort) written() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.out.String()
}

func TestScanLoop(t *testing.T) {
	port := &mockPort{chunks: [][]byte{
		[]byte("ADR 0\rN"),
		[]byte("\rAD "),
		[]byte("1\rXYZ\rS"),
		[]byte("0\r"),
	}}

	var frames []string
	handler := func(ctx context.Context, frame string) (string, bool) {
		frames = append(frames, frame)
		switch frame {
		case "AD 1":
			return "100000", true
		case "S0":
			return ".", true
		}
		return "", false
	}

	s := &Server{Config: config.SerialConfig{Device: "/tmp/pts1"}}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := s.scanLoop(ctx, port, handler); err != nil {
		t.Fatalf("scanLoop() error = %v", err)
	}

	want := []string{"ADR 0", "N", "AD 1", "XYZ", "S0"}
	if len(frames) != len(want) {
		t.Fatalf("frames = %q, want %q", frames, want)
	}
	for i := range want {
		if frames[i] != want[i] {
			t.Errorf("frame %d = %q, want %q", i, frames[i], want[i])
		}
	}
	if got := port.written(); got != "100000\r.\r" {
		t.Errorf("written = %q", got)
	}
}

func TestPortConfig(t *testing.T) {
	cfg := config.SerialConfig{
		Device:            "/dev/ttyUSB0",
		BaudRate:          19200,
		DataBits:          8,
		Parity:            "E",
		StopBits:          1,
		Timeout:           250 * time.Millisecond,
		RS485:             true,
		RtsHighDuringSend: true,
	}
	pc := portConfig(cfg)
	if pc.Address != cfg.Device || pc.BaudRate != 19200 || pc.Parity != "E" || pc.Timeout != cfg.Timeout {
		t.Errorf("portConfig() = %+v", pc)
	}
	if !pc.RS485.Enabled || !pc.RS485.RtsHighDuringSend {
		t.Errorf("RS485 settings not mapped: %+v", pc.RS485)
	}
}
