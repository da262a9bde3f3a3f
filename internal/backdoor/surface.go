// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package backdoor

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/ffutop/psu-emulator/internal/metrics"
	"github.com/ffutop/psu-emulator/internal/psu"
)

var (
	ErrUnknownFunction = errors.New("backdoor: unknown function")
	ErrUnknownProperty = errors.New("backdoor: unknown property")
	ErrInvalidValue    = errors.New("backdoor: invalid value")
	ErrArguments       = errors.New("backdoor: wrong arguments")
)

// Property names accepted by SetProperty and GetProperty.
const (
	PropPower     = "power"
	PropVoltage   = "voltage"
	PropCurrent   = "current"
	PropInterlock = "interlock"
	// Read-only: fixed at construction.
	PropFullscaleVoltage = "fullscale_voltage"
	PropFullscaleCurrent = "fullscale_current"
)

// Surface forces device state for test fixtures, bypassing the wire protocol
// and any scaling. Every call goes through the registry lock.
type Surface struct {
	registry *psu.Registry
}

// NewSurface creates a backdoor on registry.
func NewSurface(registry *psu.Registry) *Surface {
	metrics.SetConnected(registry.Connected())
	return &Surface{registry: registry}
}

// SetProperty writes one supply field. value is a bool for power/interlock and
// a number for voltage/current.
func (s *Surface) SetProperty(address int, field string, value any) error {
	return s.registry.Update(func(tx *psu.Tx) error {
		sup, err := tx.Supply(address)
		if err != nil {
			return err
		}
		switch field {
		case PropPower, PropInterlock:
			b, err := toBool(value)
			if err != nil {
				return err
			}
			if field == PropPower {
				sup.Power = b
			} else {
				sup.Interlock = b
			}
		case PropVoltage, PropCurrent:
			f, err := toFloat(value)
			if err != nil {
				return err
			}
			if field == PropVoltage {
				sup.Voltage = f
			} else {
				sup.Current = f
			}
		case PropFullscaleVoltage, PropFullscaleCurrent:
			return fmt.Errorf("%w: %s is fixed at construction", ErrUnknownProperty, field)
		default:
			return fmt.Errorf("%w: %q", ErrUnknownProperty, field)
		}
		return nil
	})
}

// GetProperty reads one supply field.
func (s *Surface) GetProperty(address int, field string) (any, error) {
	var v any
	err := s.registry.View(func(tx *psu.Tx) error {
		sup, err := tx.Supply(address)
		if err != nil {
			return err
		}
		switch field {
		case PropPower:
			v = sup.Power
		case PropInterlock:
			v = sup.Interlock
		case PropVoltage:
			v = sup.Voltage
		case PropCurrent:
			v = sup.Current
		case PropFullscaleVoltage:
			v = sup.FullscaleVoltage
		case PropFullscaleCurrent:
			v = sup.FullscaleCurrent
		default:
			return fmt.Errorf("%w: %q", ErrUnknownProperty, field)
		}
		return nil
	})
	return v, err
}

// SetVoltage is shorthand for SetProperty(address, "voltage", v).
func (s *Surface) SetVoltage(address int, v float64) error {
	return s.SetProperty(address, PropVoltage, v)
}

// SetInterlock writes a named interlock. An empty name addresses the single
// aggregate interlock of the scaled dialect.
func (s *Surface) SetInterlock(address int, name string, value bool) error {
	var ilk psu.Interlock
	if name != "" {
		var err error
		if ilk, err = psu.ParseInterlock(name); err != nil {
			return err
		}
	}
	return s.registry.Update(func(tx *psu.Tx) error {
		sup, err := tx.Supply(address)
		if err != nil {
			return err
		}
		if name == "" {
			sup.Interlock = value
		} else {
			sup.SetInterlock(ilk, value)
		}
		return nil
	})
}

// Interlock reads a named interlock, or the aggregate one for an empty name.
func (s *Surface) Interlock(address int, name string) (bool, error) {
	var ilk psu.Interlock
	if name != "" {
		var err error
		if ilk, err = psu.ParseInterlock(name); err != nil {
			return false, err
		}
	}
	var v bool
	err := s.registry.View(func(tx *psu.Tx) error {
		sup, err := tx.Supply(address)
		if err != nil {
			return err
		}
		if name == "" {
			v = sup.Interlock
		} else {
			v = sup.Interlocks[ilk]
		}
		return nil
	})
	return v, err
}

// SetConnected simulates link loss or recovery.
func (s *Surface) SetConnected(connected bool) {
	s.registry.SetConnected(connected)
	metrics.SetConnected(connected)
}

// Connected reports the link state.
func (s *Surface) Connected() bool {
	return s.registry.Connected()
}

// Addresses lists the populated supply addresses in ascending order.
func (s *Surface) Addresses() []int {
	return s.registry.Addresses()
}

// Reinitialize rebuilds every supply and reconnects the link.
func (s *Surface) Reinitialize() {
	s.registry.Reinitialize()
	metrics.SetConnected(true)
}

// Snapshot returns the whole device state.
func (s *Surface) Snapshot() *psu.Snapshot {
	return s.registry.Snapshot()
}

type function struct {
	arity int
	call  func(s *Surface, args []any) (any, error)
}

var functions = map[string]function{
	"set_property": {3, func(s *Surface, args []any) (any, error) {
		addr, field, err := addressAndName(args)
		if err != nil {
			return nil, err
		}
		return nil, s.SetProperty(addr, field, args[2])
	}},
	"get_property": {2, func(s *Surface, args []any) (any, error) {
		addr, field, err := addressAndName(args)
		if err != nil {
			return nil, err
		}
		return s.GetProperty(addr, field)
	}},
	"set_voltage": {2, func(s *Surface, args []any) (any, error) {
		addr, err := toAddress(args[0])
		if err != nil {
			return nil, err
		}
		v, err := toFloat(args[1])
		if err != nil {
			return nil, err
		}
		return nil, s.SetVoltage(addr, v)
	}},
	"set_interlock": {3, func(s *Surface, args []any) (any, error) {
		addr, name, err := addressAndName(args)
		if err != nil {
			return nil, err
		}
		v, err := toBool(args[2])
		if err != nil {
			return nil, err
		}
		return nil, s.SetInterlock(addr, name, v)
	}},
	"get_interlock": {2, func(s *Surface, args []any) (any, error) {
		addr, name, err := addressAndName(args)
		if err != nil {
			return nil, err
		}
		return s.Interlock(addr, name)
	}},
	"set_connected": {1, func(s *Surface, args []any) (any, error) {
		v, err := toBool(args[0])
		if err != nil {
			return nil, err
		}
		s.SetConnected(v)
		return nil, nil
	}},
	"get_connected": {0, func(s *Surface, args []any) (any, error) {
		return s.Connected(), nil
	}},
	"reinitialize": {0, func(s *Surface, args []any) (any, error) {
		s.Reinitialize()
		return nil, nil
	}},
}

// Functions lists the names Call accepts.
func Functions() []string {
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call invokes a backdoor function by name with positional arguments, as
// decoded from JSON (numbers as float64 or json.Number).
func (s *Surface) Call(name string, args []any) (any, error) {
	fn, ok := functions[name]
	if !ok {
		metrics.RecordBackdoorCall(name, false)
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, name)
	}
	if len(args) != fn.arity {
		metrics.RecordBackdoorCall(name, false)
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrArguments, name, fn.arity, len(args))
	}

	result, err := fn.call(s, args)
	metrics.RecordBackdoorCall(name, err == nil)
	if err != nil {
		slog.Warn("Backdoor call failed", "function", name, "args", args, "err", err)
		return nil, err
	}
	slog.Debug("Backdoor call", "function", name, "args", args)
	return result, nil
}

func addressAndName(args []any) (int, string, error) {
	addr, err := toAddress(args[0])
	if err != nil {
		return 0, "", err
	}
	name, ok := args[1].(string)
	if !ok {
		return 0, "", fmt.Errorf("%w: expected a name, got %T", ErrArguments, args[1])
	}
	return addr, name, nil
}

func toAddress(v any) (int, error) {
	f, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("%w: address: %v", ErrArguments, err)
	}
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, fmt.Errorf("%w: address must be a non-negative integer, got %v", ErrArguments, v)
	}
	return int(f), nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: expected a number, got %T", ErrInvalidValue, v)
	}
}

// toBool accepts booleans and the 0/1 integers some harnesses send for them.
func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case float64, int, int64, json.Number:
		f, _ := toFloat(b)
		switch f {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
	}
	return false, fmt.Errorf("%w: expected a boolean, got %v", ErrInvalidValue, v)
}
