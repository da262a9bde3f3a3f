// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package psu

import "fmt"

// Interlock identifies one of the named safety/fault conditions reported in the status word.
// The declared order is the order of the characters in the dialect A status reply.
type Interlock int

const (
	PowerOnCmd Interlock = iota
	PM1Error
	PM2Error
	PM3Error
	PM4Error
	PM5Error
	InError
	RUError
	PM1Warning
	PM2Warning
	PM3Warning
	PM4Warning
	PM5Warning
	InWarning
	RUWarning
	IsRemote
	MagnetTempInterlock
	MagnetWaterInterlock
	InterlockBPS1
	InterlockBPS2
	InterlockPPS1
	InterlockPPS2
	InterlockSpare1
	InterlockSpare2
	OutputOvervoltage
	OutputOvercurrent
	OutputUnbalanced
	EmStop
	DoorOpen
	ControlSwitch
	SelfTestFailed

	// InterlockCount is the size of the fixed interlock set.
	InterlockCount int = iota
)

var interlockNames = [InterlockCount]string{
	PowerOnCmd:           "power_on_cmd",
	PM1Error:             "pm1_error",
	PM2Error:             "pm2_error",
	PM3Error:             "pm3_error",
	PM4Error:             "pm4_error",
	PM5Error:             "pm5_error",
	InError:              "in_error",
	RUError:              "ru_error",
	PM1Warning:           "pm1_warning",
	PM2Warning:           "pm2_warning",
	PM3Warning:           "pm3_warning",
	PM4Warning:           "pm4_warning",
	PM5Warning:           "pm5_warning",
	InWarning:            "in_warning",
	RUWarning:            "ru_warning",
	IsRemote:             "is_remote",
	MagnetTempInterlock:  "magnet_temp_interlock",
	MagnetWaterInterlock: "magnet_water_interlock",
	InterlockBPS1:        "interlock_bps1",
	InterlockBPS2:        "interlock_bps2",
	InterlockPPS1:        "interlock_pps1",
	InterlockPPS2:        "interlock_pps2",
	InterlockSpare1:      "interlock_spare1",
	InterlockSpare2:      "interlock_spare2",
	OutputOvervoltage:    "output_overvoltage",
	OutputOvercurrent:    "output_overcurrent",
	OutputUnbalanced:     "output_unbalanced",
	EmStop:               "em_stop",
	DoorOpen:             "door_open",
	ControlSwitch:        "control_switch",
	SelfTestFailed:       "self_test_failed",
}

var interlockByName = func() map[string]Interlock {
	m := make(map[string]Interlock, InterlockCount)
	for i, name := range interlockNames {
		m[name] = Interlock(i)
	}
	return m
}()

// String returns the interlock name as used by the backdoor.
func (i Interlock) String() string {
	if i < 0 || int(i) >= InterlockCount {
		return fmt.Sprintf("Interlock(%d)", int(i))
	}
	return interlockNames[i]
}

// ParseInterlock looks up an interlock by name. Names are case-sensitive.
func ParseInterlock(name string) (Interlock, error) {
	i, ok := interlockByName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownInterlock, name)
	}
	return i, nil
}

// Interlocks returns every interlock in declared order.
func Interlocks() []Interlock {
	all := make([]Interlock, InterlockCount)
	for i := range all {
		all[i] = Interlock(i)
	}
	return all
}
