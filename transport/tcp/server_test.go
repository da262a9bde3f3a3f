// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package tcp

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"
)

func TestServer_Start_And_Handle(t *testing.T) {
	// Pre-allocate a port so the test knows where to dial.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	s := NewServer(addr)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := func(ctx context.Context, frame string) (string, bool) {
		switch frame {
		case "AD 1":
			return "100000", true
		case "S0":
			return "!..", true
		}
		return "", false
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Start(ctx, handler)
	}()

	var conn net.Conn
	for i := 0; i < 20; i++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if conn == nil {
		t.Fatalf("Failed to connect to server after retries, last error: %v", err)
	}
	defer conn.Close()

	// Silent commands are interleaved: only the replying ones produce output.
	if _, err := conn.Write([]byte("N\rAD 1\rgarbage\rS0\r")); err != nil {
		t.Fatalf("Failed to write request: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	br := bufio.NewReader(conn)
	for _, want := range []string{"100000\r", "!..\r"} {
		got, err := br.ReadString('\r')
		if err != nil {
			t.Fatalf("Failed to read response: %v", err)
		}
		if got != want {
			t.Errorf("reply = %q, want %q", got, want)
		}
	}

	cancel()
	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Start returned %v after cancel", err)
		}
	case <-time.After(time.Second):
		t.Error("server did not stop after cancel")
	}
}

func TestServer_OversizedFrameClosesConnection(t *testing.T) {
	s := NewServer("127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Start(ctx, func(ctx context.Context, frame string) (string, bool) { return frame, true })

	var addr net.Addr
	for i := 0; i < 50 && addr == nil; i++ {
		time.Sleep(10 * time.Millisecond)
		addr = s.Addr()
	}
	if addr == nil {
		t.Fatal("server did not start")
	}

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	huge := make([]byte, 600)
	for i := range huge {
		huge[i] = 'A'
	}
	conn.Write(huge)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 16)
	if _, err := conn.Read(buf); err == nil {
		t.Error("expected the server to close the connection")
	}
}

func TestServer_LifeCycle(t *testing.T) {
	s := NewServer("127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Start(ctx, func(ctx context.Context, frame string) (string, bool) { return "", false })
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_ConnectionAfterCloseIsDropped(t *testing.T) {
	s := NewServer("127.0.0.1:0")
	s.Close()

	server, client := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		s.handleConnection(context.Background(), server, func(ctx context.Context, frame string) (string, bool) {
			t.Errorf("handler called with %q after Close", frame)
			return "", false
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("connection accepted after Close was served")
	}
	client.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := client.Read(make([]byte, 1)); err == nil {
		t.Error("expected the late connection to be closed")
	}
	if len(s.conns) != 0 {
		t.Errorf("late connection left tracked: %d", len(s.conns))
	}
}
