// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package psu

import "errors"

var (
	// ErrUnknownAddress is returned when no supply is populated at the addressed slot.
	ErrUnknownAddress = errors.New("psu: unknown address")
	// ErrUnknownChannel is returned for an ADC/DAC channel other than 0 (current) or 1 (voltage).
	ErrUnknownChannel = errors.New("psu: unknown channel")
	// ErrUnknownInterlock is returned for an interlock name outside the fixed set.
	ErrUnknownInterlock = errors.New("psu: unknown interlock")
)
