// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package protocol

import (
	"math"
	"strconv"

	"github.com/ffutop/psu-emulator/internal/psu"
)

// Result describes how a frame was handled.
type Result struct {
	Command Command
	// Reply holds the reply text without terminator. Only meaningful when HasReply is set.
	Reply    string
	HasReply bool
	// Dropped is set when the channel was disconnected and the frame was ignored.
	Dropped bool
}

// Codec turns frames into registry operations and replies for one dialect.
// It holds no state of its own.
type Codec struct {
	dialect  Dialect
	registry *psu.Registry
}

// NewCodec creates a codec for dialect on top of registry.
func NewCodec(dialect Dialect, registry *psu.Registry) *Codec {
	return &Codec{dialect: dialect, registry: registry}
}

// Dialect returns the codec's dialect.
func (c *Codec) Dialect() Dialect {
	return c.dialect
}

// Handle processes one frame (terminator already stripped). Errors never produce
// a reply; callers log them and stay silent on the wire. When the channel is
// disconnected nothing is parsed or executed.
func (c *Codec) Handle(frame string) (Result, error) {
	var res Result

	run := c.registry.View
	cmd, parseErr := c.dialect.Parse(frame)
	if parseErr == nil && cmd.Op.Mutates() {
		run = c.registry.Update
	}

	err := run(func(tx *psu.Tx) error {
		if !tx.Connected() {
			res.Dropped = true
			return nil
		}
		if parseErr != nil {
			return parseErr
		}
		res.Command = cmd
		reply, hasReply, err := c.execute(tx, cmd)
		if err != nil {
			return err
		}
		res.Reply, res.HasReply = reply, hasReply
		return nil
	})
	if err != nil {
		return Result{Command: cmd}, err
	}
	return res, nil
}

func (c *Codec) execute(tx *psu.Tx, cmd Command) (string, bool, error) {
	if cmd.Op == OpSelect {
		tx.Select(cmd.Arg)
		return "", false, nil
	}

	s, err := tx.Current()
	if err != nil {
		return "", false, err
	}

	switch cmd.Op {
	case OpPowerOff:
		s.Power = false
	case OpPowerOn:
		s.Power = true
	case OpReset:
		s.Reset()
	case OpReadCurrent, OpReadSetpoint:
		return directCounts(s.Current, s.FullscaleCurrent), true, nil
	case OpReadVoltage:
		return directCounts(s.Voltage, s.FullscaleVoltage), true, nil
	case OpSetCurrent:
		s.Current = float64(cmd.Arg) / psu.FullScaleCounts * s.FullscaleCurrent
	case OpReadChannel:
		counts, err := s.ReadADC(cmd.Arg)
		if err != nil {
			return "", false, err
		}
		return strconv.Itoa(counts), true, nil
	case OpSetChannel:
		if err := s.SetDAC(cmd.Arg, cmd.Value); err != nil {
			return "", false, err
		}
	case OpStatus:
		return c.dialect.EncodeStatus(s), true, nil
	}
	return "", false, nil
}

func directCounts(value, fullscale float64) string {
	return strconv.Itoa(int(math.Round(psu.Normalized(value, fullscale, DirectScale))))
}
