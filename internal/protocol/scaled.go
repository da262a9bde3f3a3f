// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package protocol

import (
	"fmt"
	"strings"

	"github.com/ffutop/psu-emulator/internal/psu"
)

// StatusLayout describes the two-character S1 reply of the scaled dialect.
// The bit positions and polarity have not been confirmed against hardware,
// so they stay configurable.
type StatusLayout struct {
	InterlockBit int
	PowerBit     int
	Set          byte
	Clear        byte
	InvertPower  bool
}

// DefaultStatusLayout puts the aggregate interlock at bit 0 and power at bit 1,
// with '!' for a true flag.
var DefaultStatusLayout = StatusLayout{
	InterlockBit: 0,
	PowerBit:     1,
	Set:          flagSet,
	Clear:        flagClear,
}

// Validate checks the layout addresses both characters exactly once.
func (l StatusLayout) Validate() error {
	if l.InterlockBit < 0 || l.InterlockBit > 1 || l.PowerBit < 0 || l.PowerBit > 1 {
		return fmt.Errorf("protocol: status bits must be 0 or 1 (interlock %d, power %d)", l.InterlockBit, l.PowerBit)
	}
	if l.InterlockBit == l.PowerBit {
		return fmt.Errorf("protocol: interlock and power share status bit %d", l.PowerBit)
	}
	if l.Set == l.Clear {
		return fmt.Errorf("protocol: set and clear characters are both %q", l.Set)
	}
	return nil
}

func (l StatusLayout) char(b bool) byte {
	if b {
		return l.Set
	}
	return l.Clear
}

// ScaledDialect (dialect B) exchanges ADC/DAC counts and reports a single aggregate interlock.
//
//	ADR <int>        select address
//	F / N            power off / on
//	AD <ch>          read channel (0 current, 1 voltage)
//	DA <ch> <counts> set channel
//	S1               two-character status
//	RS               reset the aggregate interlock
type ScaledDialect struct {
	Layout StatusLayout
}

func (ScaledDialect) Name() string { return DialectScaled }

func (ScaledDialect) Parse(frame string) (Command, error) {
	if cmd, ok, err := parseCommon(frame); ok {
		return cmd, err
	}
	if frame == "S1" {
		return Command{Op: OpStatus}, nil
	}
	if arg, ok := strings.CutPrefix(frame, "AD "); ok {
		ch, err := parseInt("channel", arg)
		if err != nil {
			return Command{}, err
		}
		return Command{Op: OpReadChannel, Arg: ch}, nil
	}
	if args, ok := strings.CutPrefix(frame, "DA "); ok {
		chArg, valArg, found := strings.Cut(args, " ")
		if !found {
			return Command{}, fmt.Errorf("%w: DA needs channel and value, got %q", ErrMalformedArgument, args)
		}
		ch, err := parseInt("channel", chArg)
		if err != nil {
			return Command{}, err
		}
		v, err := parseInt("value", valArg)
		if err != nil {
			return Command{}, err
		}
		return Command{Op: OpSetChannel, Arg: ch, Value: v}, nil
	}
	return Command{}, fmt.Errorf("%w: %q", ErrMalformedCommand, frame)
}

func (d ScaledDialect) EncodeStatus(s *psu.Supply) string {
	power := s.Power
	if d.Layout.InvertPower {
		power = !power
	}
	var buf [2]byte
	buf[d.Layout.InterlockBit] = d.Layout.char(s.Interlock)
	buf[d.Layout.PowerBit] = d.Layout.char(power)
	return string(buf[:])
}
