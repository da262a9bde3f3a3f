// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package protocol

import (
	"errors"
	"strings"
	"testing"

	"github.com/ffutop/psu-emulator/internal/psu"
)

func newTestCodec(t *testing.T, d Dialect, specs ...psu.SupplySpec) (*Codec, *psu.Registry) {
	t.Helper()
	if len(specs) == 0 {
		specs = []psu.SupplySpec{{Address: 0, FullscaleVoltage: 150, FullscaleCurrent: 500}}
	}
	r, err := psu.NewRegistry(specs)
	if err != nil {
		t.Fatal(err)
	}
	return NewCodec(d, r), r
}

// send runs frames in order and returns the reply of the last one.
func send(t *testing.T, c *Codec, frames ...string) Result {
	t.Helper()
	var res Result
	for _, f := range frames {
		var err error
		res, err = c.Handle(f)
		if err != nil {
			t.Fatalf("Handle(%q): %v", f, err)
		}
	}
	return res
}

func TestDirect_CurrentScenario(t *testing.T) {
	c, _ := newTestCodec(t, DirectDialect{})

	for _, f := range []string{"ADR 0", "N", "WA 500000"} {
		if res := send(t, c, f); res.HasReply {
			t.Errorf("%q should not reply, got %q", f, res.Reply)
		}
	}

	// Setpoints are in millionths of fullscale, readbacks in hundred-thousandths.
	if res := send(t, c, "AD 1"); !res.HasReply || res.Reply != "50000" {
		t.Errorf("AD 1 = %+v, want 50000", res)
	}
	send(t, c, "WA 1000000")
	if res := send(t, c, "AD 1"); res.Reply != "100000" {
		t.Errorf("AD 1 at fullscale = %q, want 100000", res.Reply)
	}
	if res := send(t, c, "RA"); res.Reply != "100000" {
		t.Errorf("RA = %q, want 100000", res.Reply)
	}

	status := send(t, c, "S0").Reply
	if len(status) != 1+psu.InterlockCount {
		t.Fatalf("status length = %d, want %d", len(status), 1+psu.InterlockCount)
	}
	if status[0] != '.' {
		t.Errorf("power on should encode as '.', got %q", status[0])
	}

	send(t, c, "RS")
	status = send(t, c, "S0").Reply
	if strings.Trim(status[1:], ".") != "" {
		t.Errorf("all interlocks should be clear after RS, got %q", status)
	}
}

func TestDirect_StatusBits(t *testing.T) {
	c, r := newTestCodec(t, DirectDialect{})

	if got := send(t, c, "S0").Reply; got != "!"+strings.Repeat(".", psu.InterlockCount) {
		t.Errorf("initial status = %q", got)
	}

	for _, i := range psu.Interlocks() {
		_ = r.Update(func(tx *psu.Tx) error {
			s, _ := tx.Supply(0)
			s.Reset()
			s.SetInterlock(i, true)
			return nil
		})
		status := send(t, c, "S0").Reply
		if status[1+int(i)] != '!' || strings.Count(status, "!") != 2 {
			t.Errorf("%v: status = %q", i, status)
		}
	}

	send(t, c, "RS")
	if got := send(t, c, "S0").Reply; strings.Count(got, "!") != 1 {
		t.Errorf("only the power flag should remain after RS, got %q", got)
	}
}

func TestDirect_Voltage(t *testing.T) {
	c, r := newTestCodec(t, DirectDialect{})
	tests := []struct {
		voltage float64
		want    string
	}{
		{0, "0"},
		{0.1, "67"},
		{75, "50000"},
		{150, "100000"},
		{200, "100000"},
	}
	for _, tt := range tests {
		_ = r.Update(func(tx *psu.Tx) error {
			s, _ := tx.Supply(0)
			s.Voltage = tt.voltage
			return nil
		})
		if got := send(t, c, "AD 2").Reply; got != tt.want {
			t.Errorf("voltage %v: AD 2 = %q, want %q", tt.voltage, got, tt.want)
		}
	}
}

func TestDirect_ParseErrors(t *testing.T) {
	tests := []struct {
		frame string
		want  error
	}{
		{"", ErrMalformedCommand},
		{"X", ErrMalformedCommand},
		{"f", ErrMalformedCommand},
		{"AD 3", ErrMalformedCommand},
		{"S1", ErrMalformedCommand},
		{"DA 1 5", ErrMalformedCommand},
		{"N ", ErrMalformedCommand},
		{"ADR x", ErrMalformedArgument},
		{"ADR -1", ErrMalformedArgument},
		{"ADR ", ErrMalformedArgument},
		{"WA 1.5", ErrMalformedArgument},
		{"WA", ErrMalformedCommand},
	}
	for _, tt := range tests {
		t.Run(tt.frame, func(t *testing.T) {
			c, _ := newTestCodec(t, DirectDialect{})
			res, err := c.Handle(tt.frame)
			if !errors.Is(err, tt.want) {
				t.Errorf("Handle(%q) error = %v, want %v", tt.frame, err, tt.want)
			}
			if res.HasReply {
				t.Errorf("Handle(%q) must not reply, got %q", tt.frame, res.Reply)
			}
		})
	}
}

func TestCodec_UnknownAddress(t *testing.T) {
	for _, d := range []Dialect{DirectDialect{}, ScaledDialect{Layout: DefaultStatusLayout}} {
		t.Run(d.Name(), func(t *testing.T) {
			c, r := newTestCodec(t, d)
			send(t, c, "ADR 4")
			for _, f := range []string{"N", "F", "RS", "AD 1"} {
				res, err := c.Handle(f)
				if !errors.Is(err, psu.ErrUnknownAddress) {
					t.Errorf("Handle(%q) error = %v, want ErrUnknownAddress", f, err)
				}
				if res.HasReply {
					t.Errorf("Handle(%q) replied %q", f, res.Reply)
				}
			}
			if s, _ := r.Snapshot().Supply(0); s.Power {
				t.Error("unknown address must not touch supply 0")
			}

			// A malformed frame does not corrupt later exchanges.
			_, _ = c.Handle("garbage")
			send(t, c, "ADR 0", "N")
			if s, _ := r.Snapshot().Supply(0); !s.Power {
				t.Error("supply 0 should be on after re-addressing")
			}
		})
	}
}

func TestCodec_DaisyChain(t *testing.T) {
	c, r := newTestCodec(t, DirectDialect{},
		psu.SupplySpec{Address: 0, FullscaleVoltage: 150, FullscaleCurrent: 500},
		psu.SupplySpec{Address: 7, FullscaleVoltage: 10, FullscaleCurrent: 20},
	)
	send(t, c, "ADR 7", "N", "WA 250000")
	if got := send(t, c, "AD 1").Reply; got != "25000" {
		t.Errorf("AD 1 on supply 7 = %q, want 25000", got)
	}
	snap := r.Snapshot()
	s7, _ := snap.Supply(7)
	s0, _ := snap.Supply(0)
	if !s7.Power || s7.Current != 5 {
		t.Errorf("supply 7 = %+v", s7)
	}
	if s0.Power || s0.Current != 0 {
		t.Errorf("supply 0 should be untouched, got %+v", s0)
	}
}

func TestCodec_Disconnected(t *testing.T) {
	frames := []string{"ADR 0", "N", "F", "AD 1", "AD 2", "RA", "WA 5", "S0", "S1", "RS", "DA 1 5", "AD 9", "ADR 99", "garbage", ""}
	for _, d := range []Dialect{DirectDialect{}, ScaledDialect{Layout: DefaultStatusLayout}} {
		t.Run(d.Name(), func(t *testing.T) {
			c, r := newTestCodec(t, d)
			r.SetConnected(false)
			before := r.Snapshot()
			for _, f := range frames {
				res, err := c.Handle(f)
				if err != nil {
					t.Errorf("Handle(%q) while disconnected returned error %v", f, err)
				}
				if res.HasReply || !res.Dropped {
					t.Errorf("Handle(%q) while disconnected = %+v", f, res)
				}
			}
			after := r.Snapshot()
			s0, _ := before.Supply(0)
			s1, _ := after.Supply(0)
			if s0 != s1 || before.Address != after.Address {
				t.Error("disconnected channel must not mutate state")
			}

			r.SetConnected(true)
			if res := send(t, c, "N"); res.Dropped {
				t.Error("frame dropped after reconnect")
			}
		})
	}
}

func TestNewDialect(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"direct", DialectDirect, false},
		{"A", DialectDirect, false},
		{"", DialectDirect, false},
		{"scaled", DialectScaled, false},
		{"S1", DialectScaled, false},
		{"modbus", "", true},
	}
	for _, tt := range tests {
		d, err := NewDialect(tt.name, DefaultStatusLayout)
		if (err != nil) != tt.wantErr {
			t.Errorf("NewDialect(%q) error = %v", tt.name, err)
			continue
		}
		if err == nil && d.Name() != tt.want {
			t.Errorf("NewDialect(%q) = %s, want %s", tt.name, d.Name(), tt.want)
		}
	}

	if _, err := NewDialect("scaled", StatusLayout{InterlockBit: 1, PowerBit: 1, Set: '!', Clear: '.'}); err == nil {
		t.Error("overlapping status bits should be rejected")
	}
}
