// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package dialer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ffutop/psu-emulator/transport"
)

const (
	dialTimeout   = 10 * time.Second
	retryInterval = time.Second
)

// Client serves the device over an outbound TCP connection, for terminal
// servers that expect the device end to connect to them. A dropped
// connection is redialed until ctx is done.
type Client struct {
	Address string
	Timeout time.Duration
	Retry   time.Duration

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// NewClient allocates and initializes a dialing Client.
func NewClient(address string) *Client {
	return &Client{
		Address: address,
		Timeout: dialTimeout,
		Retry:   retryInterval,
	}
}

// Start dials Address and serves frames on the connection, reconnecting on failure.
func (c *Client) Start(ctx context.Context, handler transport.FrameHandler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	for {
		conn, err := c.connect(ctx)
		if err != nil {
			if c.isClosed() || ctx.Err() != nil {
				return nil
			}
			slog.Warn("Failed to dial controller", "addr", c.Address, "err", err)
		} else {
			slog.Info("Connected to controller", "addr", c.Address)
			err = transport.ServeStream(ctx, conn, handler, nil)
			c.drop(conn)
			if c.isClosed() || ctx.Err() != nil {
				return nil
			}
			if err != nil && !errors.Is(err, io.EOF) {
				slog.Warn("Controller connection failed", "addr", c.Address, "err", err)
			} else {
				slog.Info("Controller closed connection", "addr", c.Address)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.Retry):
		}
	}
}

// Close closes the connection and stops redialing.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.close()
	return nil
}

// connect dials a new connection and records it for Close.
func (c *Client) connect(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: c.Timeout}
	conn, err := d.DialContext(ctx, "tcp", c.Address)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		conn.Close()
		return nil, net.ErrClosed
	}
	c.conn = conn
	return conn, nil
}

func (c *Client) drop(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.close()
	} else {
		conn.Close()
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// close closes the connection and resets the state. Caller must hold the mutex.
func (c *Client) close() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
