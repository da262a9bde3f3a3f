// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ffutop/psu-emulator/internal/persistence"
	"github.com/ffutop/psu-emulator/internal/psu"
)

func TestDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.bin")

	sup := psu.Supply{Address: 3, Power: true, Voltage: 12.5, FullscaleVoltage: 150, FullscaleCurrent: 500}
	sup.SetInterlock(psu.DoorOpen, true)
	st := persistence.NewFileStorage(path)
	if err := st.Save(&psu.Snapshot{Connected: true, Address: 3, Supplies: []psu.Supply{sup}}); err != nil {
		t.Fatal(err)
	}
	st.Close()

	var buf bytes.Buffer
	if err := dump(&buf, path); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"connected=true address=3 supplies=1", "supply 3: power=true voltage=12.5/150", "tripped=true", "  door_open\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("dump output missing %q:\n%s", want, out)
		}
	}
}

func TestDump_Missing(t *testing.T) {
	if err := dump(&bytes.Buffer{}, filepath.Join(t.TempDir(), "nope.bin")); err == nil {
		t.Error("expected an error for a missing mirror file")
	}
}
