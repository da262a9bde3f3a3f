// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package protocol

import (
	"fmt"
	"strings"

	"github.com/ffutop/psu-emulator/internal/psu"
)

// DirectScale is the count that corresponds to fullscale in direct-dialect readbacks.
const DirectScale = 100_000

// DirectDialect (dialect A) reads values directly and reports every named interlock in S0.
//
//	ADR <int>  select address
//	F / N      power off / on
//	AD 1       read current
//	AD 2       read voltage
//	RA         read current setpoint
//	WA <int>   set current, counts of 1/1,000,000 fullscale
//	S0         status: not-power followed by every interlock
//	RS         reset interlocks
type DirectDialect struct{}

func (DirectDialect) Name() string { return DialectDirect }

func (DirectDialect) Parse(frame string) (Command, error) {
	if cmd, ok, err := parseCommon(frame); ok {
		return cmd, err
	}
	switch frame {
	case "AD 1":
		return Command{Op: OpReadCurrent}, nil
	case "AD 2":
		return Command{Op: OpReadVoltage}, nil
	case "RA":
		return Command{Op: OpReadSetpoint}, nil
	case "S0":
		return Command{Op: OpStatus}, nil
	}
	if arg, ok := strings.CutPrefix(frame, "WA "); ok {
		v, err := parseInt("setpoint", arg)
		if err != nil {
			return Command{}, err
		}
		return Command{Op: OpSetCurrent, Arg: v}, nil
	}
	return Command{}, fmt.Errorf("%w: %q", ErrMalformedCommand, frame)
}

// EncodeStatus renders '!' for power OFF, then one character per interlock in declared order.
func (DirectDialect) EncodeStatus(s *psu.Supply) string {
	buf := make([]byte, 0, 1+psu.InterlockCount)
	buf = append(buf, flagChar(!s.Power))
	for _, v := range s.Interlocks {
		buf = append(buf, flagChar(v))
	}
	return string(buf)
}
