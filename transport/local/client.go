// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package local

import (
	"context"
	"errors"
	"sync"

	"github.com/ffutop/psu-emulator/transport"
)

// ErrNotStarted is returned by Send before Start or after Close.
var ErrNotStarted = errors.New("local: upstream not started")

// Client is an in-process upstream: frames passed to Send reach the device
// without a socket. It keeps the half-duplex contract of the stream
// transports, so concurrent Sends are handled one at a time.
type Client struct {
	mu      sync.Mutex
	handler transport.FrameHandler
	ctx     context.Context
	ready   chan struct{}
	once    sync.Once
}

// NewClient creates a new Local Client.
func NewClient() *Client {
	return &Client{ready: make(chan struct{})}
}

// Start registers handler and blocks until ctx is done.
func (c *Client) Start(ctx context.Context, handler transport.FrameHandler) error {
	c.mu.Lock()
	c.handler = handler
	c.ctx = ctx
	c.mu.Unlock()
	c.once.Do(func() { close(c.ready) })

	<-ctx.Done()
	c.Close()
	return nil
}

// Ready is closed once Start has registered its handler.
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

// Send delivers one frame (without terminator) and returns the device reply.
// ok is false when the device stays silent.
func (c *Client) Send(frame string) (reply string, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler == nil {
		return "", false, ErrNotStarted
	}
	reply, ok = c.handler(c.ctx, frame)
	return reply, ok, nil
}

// Close detaches the handler.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = nil
	return nil
}
