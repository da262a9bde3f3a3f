// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"sync"

	"github.com/ffutop/psu-emulator/internal/psu"
)

// MemoryStorage keeps the last snapshot in memory (non-persistent).
type MemoryStorage struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (ms *MemoryStorage) Load() (*psu.Snapshot, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return decode(ms.data)
}

func (ms *MemoryStorage) Save(snap *psu.Snapshot) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	size := sizeFor(len(snap.Supplies))
	if len(ms.data) != size {
		ms.data = make([]byte, size)
	}
	encode(ms.data, snap)
	return nil
}

func (ms *MemoryStorage) Close() error {
	return nil
}
