// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package psu

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry owns every Supply on the channel, the current-address cursor and the
// connected flag. All three live behind one mutex: wire commands and backdoor
// calls never observe each other half-applied.
type Registry struct {
	mu sync.Mutex

	specs     []SupplySpec
	supplies  map[int]*Supply
	address   int
	connected bool

	onChange []func()
}

// NewRegistry validates the specs and builds a registry with one supply per spec.
func NewRegistry(specs []SupplySpec) (*Registry, error) {
	if len(specs) == 0 {
		return nil, errors.New("psu: at least one supply is required")
	}
	seen := make(map[int]struct{}, len(specs))
	for _, spec := range specs {
		if spec.Address < 0 {
			return nil, fmt.Errorf("psu: negative address %d", spec.Address)
		}
		if _, dup := seen[spec.Address]; dup {
			return nil, fmt.Errorf("psu: duplicate address %d", spec.Address)
		}
		seen[spec.Address] = struct{}{}
		if spec.FullscaleVoltage <= 0 || spec.FullscaleCurrent <= 0 {
			return nil, fmt.Errorf("psu: supply %d: fullscale values must be positive (voltage %v, current %v)",
				spec.Address, spec.FullscaleVoltage, spec.FullscaleCurrent)
		}
	}

	r := &Registry{specs: append([]SupplySpec(nil), specs...)}
	r.reinitialize()
	return r, nil
}

// OnChange registers fn to be called after every successful Update.
// fn runs with the registry lock held and must not block or call back into the registry.
func (r *Registry) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = append(r.onChange, fn)
}

// Update runs fn as one exclusive transaction that may mutate state.
func (r *Registry) Update(fn func(tx *Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := fn(&Tx{r: r}); err != nil {
		return err
	}
	for _, notify := range r.onChange {
		notify()
	}
	return nil
}

// View runs fn as one exclusive read-only transaction.
func (r *Registry) View(fn func(tx *Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return fn(&Tx{r: r})
}

// Reinitialize rebuilds every supply, resets the cursor to 0 and reconnects the channel.
func (r *Registry) Reinitialize() {
	_ = r.Update(func(tx *Tx) error {
		tx.Reinitialize()
		return nil
	})
}

// Connected reports the channel link state.
func (r *Registry) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// SetConnected toggles the channel link state.
func (r *Registry) SetConnected(connected bool) {
	_ = r.Update(func(tx *Tx) error {
		tx.SetConnected(connected)
		return nil
	})
}

// Addresses returns the populated addresses in ascending order.
func (r *Registry) Addresses() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addresses()
}

// Snapshot returns a deep copy of the whole registry state.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := &Snapshot{
		Connected: r.connected,
		Address:   r.address,
		Supplies:  make([]Supply, 0, len(r.supplies)),
	}
	for _, addr := range r.addresses() {
		snap.Supplies = append(snap.Supplies, *r.supplies[addr])
	}
	return snap
}

func (r *Registry) reinitialize() {
	r.supplies = make(map[int]*Supply, len(r.specs))
	for _, spec := range r.specs {
		r.supplies[spec.Address] = NewSupply(spec)
	}
	r.address = 0
	r.connected = true
}

func (r *Registry) addresses() []int {
	addrs := make([]int, 0, len(r.supplies))
	for addr := range r.supplies {
		addrs = append(addrs, addr)
	}
	sort.Ints(addrs)
	return addrs
}

func (r *Registry) lookup(address int) (*Supply, error) {
	s, ok := r.supplies[address]
	if !ok {
		return nil, fmt.Errorf("%w: %d (available %v)", ErrUnknownAddress, address, r.addresses())
	}
	return s, nil
}

// Tx is the view of the registry inside Update or View. It is only valid for
// the duration of the callback.
type Tx struct {
	r *Registry
}

// Select moves the current-address cursor. The address is not validated here.
func (tx *Tx) Select(address int) {
	tx.r.address = address
}

// Address returns the current-address cursor.
func (tx *Tx) Address() int {
	return tx.r.address
}

// Current resolves the supply at the current address.
func (tx *Tx) Current() (*Supply, error) {
	return tx.r.lookup(tx.r.address)
}

// Supply resolves the supply at an explicit address.
func (tx *Tx) Supply(address int) (*Supply, error) {
	return tx.r.lookup(address)
}

// Connected reports the channel link state.
func (tx *Tx) Connected() bool {
	return tx.r.connected
}

// SetConnected toggles the channel link state.
func (tx *Tx) SetConnected(connected bool) {
	tx.r.connected = connected
}

// Reinitialize rebuilds every supply from its spec.
func (tx *Tx) Reinitialize() {
	tx.r.reinitialize()
}
