// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package emulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ffutop/psu-emulator/internal/backdoor"
	"github.com/ffutop/psu-emulator/internal/config"
	"github.com/ffutop/psu-emulator/internal/metrics"
	"github.com/ffutop/psu-emulator/internal/persistence"
	"github.com/ffutop/psu-emulator/internal/protocol"
	"github.com/ffutop/psu-emulator/internal/psu"
	"github.com/ffutop/psu-emulator/transport"
	"github.com/ffutop/psu-emulator/transport/dialer"
	"github.com/ffutop/psu-emulator/transport/tcp"
	"github.com/ffutop/psu-emulator/transport/tty"
)

// Emulator represents one emulated power supply chain.
// It serves the wire protocol on every Upstream and the backdoor on its own server,
// all against a single Registry.
type Emulator struct {
	Name      string
	Upstreams []transport.Upstream
	Backdoor  *backdoor.Server

	registry *psu.Registry
	codec    *protocol.Codec
	surface  *backdoor.Surface
	storage  persistence.Storage
	dirty    chan struct{}
}

// New creates an Emulator. backdoorServer and storage may be nil.
func New(name string, registry *psu.Registry, dialect protocol.Dialect, upstreams []transport.Upstream, backdoorServer *backdoor.Server, storage persistence.Storage) *Emulator {
	e := &Emulator{
		Name:      name,
		Upstreams: upstreams,
		Backdoor:  backdoorServer,
		registry:  registry,
		codec:     protocol.NewCodec(dialect, registry),
		surface:   backdoor.NewSurface(registry),
		storage:   storage,
		dirty:     make(chan struct{}, 1),
	}
	if storage != nil {
		registry.OnChange(e.markDirty)
	}
	return e
}

// FromConfig builds the registry, dialect, upstreams, backdoor and mirror described by cfg.
func FromConfig(cfg *config.Config) (*Emulator, error) {
	specs := make([]psu.SupplySpec, 0, len(cfg.Device.Supplies))
	for _, s := range cfg.Device.Supplies {
		specs = append(specs, psu.SupplySpec{
			Address:          s.Address,
			FullscaleVoltage: s.FullscaleVoltage,
			FullscaleCurrent: s.FullscaleCurrent,
		})
	}
	registry, err := psu.NewRegistry(specs)
	if err != nil {
		return nil, err
	}

	dialect, err := protocol.NewDialect(cfg.Device.Dialect, statusLayout(cfg.Device.StatusLayout))
	if err != nil {
		return nil, err
	}

	var upstreams []transport.Upstream
	for i, usCfg := range cfg.Upstreams {
		switch usCfg.Type {
		case "tcp":
			upstreams = append(upstreams, tcp.NewServer(usCfg.Tcp.Address))
		case "tcp_dial":
			upstreams = append(upstreams, dialer.NewClient(usCfg.Tcp.Address))
		case "serial":
			upstreams = append(upstreams, tty.NewServer(usCfg.Serial))
		default:
			return nil, fmt.Errorf("upstreams[%d]: unknown type %q", i, usCfg.Type)
		}
	}

	storage, err := persistence.Open(cfg.Mirror.Type, cfg.Mirror.Path)
	if err != nil {
		return nil, err
	}

	e := New(cfg.Device.Name, registry, dialect, upstreams, nil, storage)
	if cfg.Backdoor.Enabled {
		e.Backdoor = backdoor.NewServer(cfg.Backdoor.Address, e.surface, cfg.Backdoor.CorsOrigins)
	}
	return e, nil
}

func statusLayout(c config.StatusLayoutConfig) protocol.StatusLayout {
	layout := protocol.DefaultStatusLayout
	layout.InterlockBit = c.InterlockBit
	layout.PowerBit = c.PowerBit
	layout.InvertPower = c.InvertPower
	if len(c.Set) == 1 {
		layout.Set = c.Set[0]
	}
	if len(c.Clear) == 1 {
		layout.Clear = c.Clear[0]
	}
	return layout
}

// Registry returns the device state shared by every channel.
func (e *Emulator) Registry() *psu.Registry {
	return e.registry
}

// Surface returns the in-process backdoor.
func (e *Emulator) Surface() *backdoor.Surface {
	return e.surface
}

// Start starts the mirror, the backdoor and all upstream servers, and blocks until ctx is done.
func (e *Emulator) Start(ctx context.Context) error {
	if e.Backdoor != nil {
		if err := e.Backdoor.Start(ctx); err != nil {
			if e.storage != nil {
				e.storage.Close()
			}
			return fmt.Errorf("backdoor: %w", err)
		}
	}

	var wg sync.WaitGroup
	if e.storage != nil {
		e.markDirty()
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.mirror(ctx)
		}()
	}

	for i, us := range e.Upstreams {
		wg.Add(1)
		go func(ups transport.Upstream, idx int) {
			defer wg.Done()
			slog.Info("Starting upstream", "device", e.Name, "index", idx, "dialect", e.codec.Dialect().Name())
			if err := ups.Start(ctx, e.handleFrame); err != nil {
				slog.Error("Upstream stopped with error", "device", e.Name, "index", idx, "err", err)
			}
		}(us, i)
	}

	<-ctx.Done()

	// Graceful shutdown
	for _, us := range e.Upstreams {
		us.Close()
	}
	if e.Backdoor != nil {
		e.Backdoor.Close()
	}

	wg.Wait()
	if e.storage != nil {
		return e.storage.Close()
	}
	return nil
}

// handleFrame is the central dispatch function for every upstream.
func (e *Emulator) handleFrame(ctx context.Context, frame string) (string, bool) {
	dialect := e.codec.Dialect().Name()

	res, err := e.codec.Handle(frame)
	if err != nil {
		op := res.Command.Op.String()
		if errors.Is(err, protocol.ErrMalformedCommand) || errors.Is(err, protocol.ErrMalformedArgument) {
			op = "invalid"
		}
		metrics.RecordCommand(dialect, op, metrics.OutcomeFault)
		if errors.Is(err, psu.ErrUnknownChannel) {
			slog.Error("Command failed", "device", e.Name, "frame", frame, "err", err)
		} else {
			slog.Debug("Command ignored", "device", e.Name, "frame", frame, "err", err)
		}
		return "", false
	}

	op := res.Command.Op.String()
	switch {
	case res.Dropped:
		metrics.RecordCommand(dialect, metrics.OpAny, metrics.OutcomeDropped)
		slog.Debug("Channel disconnected, frame dropped", "device", e.Name, "frame", frame)
		return "", false
	case res.HasReply:
		metrics.RecordCommand(dialect, op, metrics.OutcomeReplied)
		return res.Reply, true
	default:
		metrics.RecordCommand(dialect, op, metrics.OutcomeSilent)
		return "", false
	}
}

// markDirty runs under the registry lock; it only signals the mirror worker.
func (e *Emulator) markDirty() {
	select {
	case e.dirty <- struct{}{}:
	default:
	}
}

func (e *Emulator) mirror(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			e.saveMirror()
			return
		case <-e.dirty:
			e.saveMirror()
		}
	}
}

func (e *Emulator) saveMirror() {
	if err := e.storage.Save(e.registry.Snapshot()); err != nil {
		slog.Error("Failed to mirror device state", "device", e.Name, "err", err)
	}
}
