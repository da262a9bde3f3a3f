// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package psu

// Snapshot is a point-in-time copy of the registry.
type Snapshot struct {
	Connected bool
	Address   int
	Supplies  []Supply
}

// Supply returns the copied supply at address, if present.
func (s *Snapshot) Supply(address int) (Supply, bool) {
	for _, sup := range s.Supplies {
		if sup.Address == address {
			return sup, true
		}
	}
	return Supply{}, false
}
