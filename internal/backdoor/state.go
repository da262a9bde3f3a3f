// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package backdoor

import "github.com/ffutop/psu-emulator/internal/psu"

// SupplyState is the JSON form of one supply.
type SupplyState struct {
	Address          int             `json:"address"`
	Power            bool            `json:"power"`
	Voltage          float64         `json:"voltage"`
	Current          float64         `json:"current"`
	FullscaleVoltage float64         `json:"fullscale_voltage"`
	FullscaleCurrent float64         `json:"fullscale_current"`
	Interlock        bool            `json:"interlock"`
	Tripped          bool            `json:"tripped"`
	Interlocks       map[string]bool `json:"interlocks"`
}

// State is the JSON form of a psu.Snapshot.
type State struct {
	Connected bool          `json:"connected"`
	Address   int           `json:"address"`
	Supplies  []SupplyState `json:"supplies"`
}

func stateJSON(snap *psu.Snapshot) State {
	st := State{
		Connected: snap.Connected,
		Address:   snap.Address,
		Supplies:  make([]SupplyState, 0, len(snap.Supplies)),
	}
	for _, sup := range snap.Supplies {
		ilks := make(map[string]bool, psu.InterlockCount)
		for _, ilk := range psu.Interlocks() {
			ilks[ilk.String()] = sup.Interlocks[ilk]
		}
		st.Supplies = append(st.Supplies, SupplyState{
			Address:          sup.Address,
			Power:            sup.Power,
			Voltage:          sup.Voltage,
			Current:          sup.Current,
			FullscaleVoltage: sup.FullscaleVoltage,
			FullscaleCurrent: sup.FullscaleCurrent,
			Interlock:        sup.Interlock,
			Tripped:          sup.Tripped(),
			Interlocks:       ilks,
		})
	}
	return st
}
