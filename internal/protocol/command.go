// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Op is a decoded command operation.
type Op int

const (
	OpSelect Op = iota
	OpPowerOff
	OpPowerOn
	OpReadCurrent
	OpReadVoltage
	OpReadSetpoint
	OpSetCurrent
	OpReadChannel
	OpSetChannel
	OpStatus
	OpReset
)

var opNames = [...]string{
	OpSelect:       "select",
	OpPowerOff:     "power_off",
	OpPowerOn:      "power_on",
	OpReadCurrent:  "read_current",
	OpReadVoltage:  "read_voltage",
	OpReadSetpoint: "read_setpoint",
	OpSetCurrent:   "set_current",
	OpReadChannel:  "read_channel",
	OpSetChannel:   "set_channel",
	OpStatus:       "status",
	OpReset:        "reset",
}

func (o Op) String() string {
	if o < 0 || int(o) >= len(opNames) {
		return fmt.Sprintf("Op(%d)", int(o))
	}
	return opNames[o]
}

// Mutates reports whether executing the operation can change device state.
func (o Op) Mutates() bool {
	switch o {
	case OpSelect, OpPowerOff, OpPowerOn, OpSetCurrent, OpSetChannel, OpReset:
		return true
	}
	return false
}

// Command is a parsed frame. Arg carries the address, channel or setpoint;
// Value carries the second argument of a set-channel command.
type Command struct {
	Op    Op
	Arg   int
	Value int
}

// Select is ADR <int>, shared by both dialects.
const cmdSelect = "ADR "

// parseSelect decodes the address argument. Addresses are non-negative.
func parseSelect(arg string) (Command, error) {
	addr, err := strconv.ParseUint(arg, 10, 31)
	if err != nil {
		return Command{}, fmt.Errorf("%w: address %q", ErrMalformedArgument, arg)
	}
	return Command{Op: OpSelect, Arg: int(addr)}, nil
}

func parseInt(what, arg string) (int, error) {
	v, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrMalformedArgument, what, arg)
	}
	return v, nil
}

// parseCommon handles the commands whose grammar is identical in both dialects.
func parseCommon(frame string) (Command, bool, error) {
	switch frame {
	case "F":
		return Command{Op: OpPowerOff}, true, nil
	case "N":
		return Command{Op: OpPowerOn}, true, nil
	case "RS":
		return Command{Op: OpReset}, true, nil
	}
	if arg, ok := strings.CutPrefix(frame, cmdSelect); ok {
		cmd, err := parseSelect(arg)
		return cmd, true, err
	}
	return Command{}, false, nil
}
