// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tty

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ffutop/psu-emulator/internal/config"
	"github.com/ffutop/psu-emulator/transport"
	"github.com/grid-x/serial"
)

// Server exposes the device on a serial port, the way the real PSU is wired.
type Server struct {
	Config config.SerialConfig

	mu   sync.Mutex
	port io.ReadWriteCloser
}

// NewServer creates a new serial Server.
func NewServer(cfg config.SerialConfig) *Server {
	return &Server{
		Config: cfg,
	}
}

// Start opens the port and serves frames until ctx is done.
func (s *Server) Start(ctx context.Context, handler transport.FrameHandler) error {
	port, err := serial.Open(portConfig(s.Config))
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.Config.Device, err)
	}
	s.mu.Lock()
	s.port = port
	s.mu.Unlock()
	defer s.Close()
	slog.Info("Serial server listening", "device", s.Config.Device, "baudRate", s.Config.BaudRate)

	// handle close
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	return s.scanLoop(ctx, port, handler)
}

func portConfig(cfg config.SerialConfig) *serial.Config {
	spConfig := &serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.Timeout, // Read timeout
	}
	if cfg.RS485 {
		spConfig.RS485.Enabled = true
		spConfig.RS485.DelayRtsBeforeSend = cfg.DelayRtsBeforeSend
		spConfig.RS485.DelayRtsAfterSend = cfg.DelayRtsAfterSend
		spConfig.RS485.RtsHighDuringSend = cfg.RtsHighDuringSend
		spConfig.RS485.RtsHighAfterSend = cfg.RtsHighAfterSend
		spConfig.RS485.RxDuringTx = cfg.RxDuringTx
	}
	return spConfig
}

// scanLoop serves frames on port. Read timeouts are expected on an idle line
// and only end the loop once ctx is done.
func (s *Server) scanLoop(ctx context.Context, port io.ReadWriter, handler transport.FrameHandler) error {
	err := transport.ServeStream(ctx, port, handler, func(err error) bool {
		return !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe)
	})
	if errors.Is(err, io.EOF) {
		slog.Info("Serial port closed", "device", s.Config.Device)
		return nil
	}
	return err
}

// Close closes the port if it is open.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.port != nil {
		err = s.port.Close()
		s.port = nil
	}
	return err
}
