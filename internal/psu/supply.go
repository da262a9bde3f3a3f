// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package psu

import (
	"fmt"
	"math"
)

// FullScaleCounts is the normalized integer that corresponds to fullscale on the ADC/DAC channels.
const FullScaleCounts = 1_000_000

// Channel indices used by the ADC/DAC commands.
const (
	ChannelCurrent = 0
	ChannelVoltage = 1
)

// Supply holds the electrical and interlock state of one addressable unit.
// Voltage and Current are physical values. They are not clamped on write;
// encodings clamp when converting to counts.
type Supply struct {
	Address int

	Power   bool
	Voltage float64
	Current float64

	FullscaleVoltage float64
	FullscaleCurrent float64

	// Interlocks is indexed by Interlock, in declared order.
	Interlocks [InterlockCount]bool
	// Interlock is the single aggregate interlock flag reported by the scaled dialect.
	Interlock bool
}

// SupplySpec is the construction-time description of a supply.
type SupplySpec struct {
	Address          int
	FullscaleVoltage float64
	FullscaleCurrent float64
}

// NewSupply creates a powered-off supply with all interlocks clear.
func NewSupply(spec SupplySpec) *Supply {
	return &Supply{
		Address:          spec.Address,
		FullscaleVoltage: spec.FullscaleVoltage,
		FullscaleCurrent: spec.FullscaleCurrent,
	}
}

// Reset clears every interlock flag. Power, voltage and current are left alone.
func (s *Supply) Reset() {
	s.Interlocks = [InterlockCount]bool{}
	s.Interlock = false
}

// Tripped reports whether any named interlock is set.
func (s *Supply) Tripped() bool {
	for _, v := range s.Interlocks {
		if v {
			return true
		}
	}
	return false
}

// SetInterlock writes a single named interlock.
func (s *Supply) SetInterlock(i Interlock, v bool) {
	s.Interlocks[i] = v
}

// ReadADC converts the physical value of a channel to counts in [0, FullScaleCounts], truncating.
func (s *Supply) ReadADC(channel int) (int, error) {
	value, fullscale, err := s.channel(channel)
	if err != nil {
		return 0, err
	}
	return int(math.Trunc(Normalized(value, fullscale, FullScaleCounts))), nil
}

// SetDAC is the inverse of ReadADC: it stores counts as a physical value.
func (s *Supply) SetDAC(channel int, counts int) error {
	_, fullscale, err := s.channel(channel)
	if err != nil {
		return err
	}
	v := float64(counts) / FullScaleCounts * fullscale
	if channel == ChannelCurrent {
		s.Current = v
	} else {
		s.Voltage = v
	}
	return nil
}

func (s *Supply) channel(channel int) (value, fullscale float64, err error) {
	switch channel {
	case ChannelCurrent:
		return s.Current, s.FullscaleCurrent, nil
	case ChannelVoltage:
		return s.Voltage, s.FullscaleVoltage, nil
	default:
		return 0, 0, fmt.Errorf("%w: %d", ErrUnknownChannel, channel)
	}
}

// Normalized scales value/fullscale to [0, scale].
func Normalized(value, fullscale, scale float64) float64 {
	if fullscale <= 0 {
		return 0
	}
	n := value / fullscale * scale
	if n < 0 {
		return 0
	}
	if n > scale {
		return scale
	}
	return n
}
