// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/ffutop/psu-emulator/transport"
)

// Server exposes the device as a TCP byte stream, one frame loop per client.
type Server struct {
	Address string

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
}

// NewServer creates a new TCP Server.
func NewServer(address string) *Server {
	return &Server{
		Address: address,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start listens and serves clients until ctx is done.
func (s *Server) Start(ctx context.Context, handler transport.FrameHandler) error {
	listener, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Address, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.closed = false
	s.mu.Unlock()
	slog.Info("TCP stream server listening", "addr", listener.Addr())

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("Failed to accept connection", "err", err)
			continue
		}
		go s.handleConnection(ctx, conn, handler)
	}
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close closes the listener and every open client connection.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	return err
}

// track records conn for Close. It reports false when the server is already
// closed, in which case conn was not recorded.
func (s *Server) track(conn net.Conn, open bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !open {
		delete(s.conns, conn)
		return true
	}
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn, handler transport.FrameHandler) {
	defer conn.Close()
	// A client accepted while Close ran would otherwise outlive the server.
	if !s.track(conn, true) || ctx.Err() != nil {
		return
	}
	defer s.track(conn, false)
	slog.Info("New TCP client connected", "addr", conn.RemoteAddr())

	err := transport.ServeStream(ctx, conn, handler, nil)
	switch {
	case err == nil, errors.Is(err, io.EOF):
		slog.Info("TCP client disconnected", "addr", conn.RemoteAddr())
	case errors.Is(err, net.ErrClosed):
	default:
		slog.Error("TCP client connection failed", "addr", conn.RemoteAddr(), "err", err)
	}
}
