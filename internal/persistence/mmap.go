// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
	"github.com/ffutop/psu-emulator/internal/psu"
)

// MmapStorage mirrors snapshots into a memory-mapped file, so other processes
// can watch the device state by mapping the same file.
type MmapStorage struct {
	path string

	mu   sync.Mutex
	file *os.File
	data mmap.MMap
}

// NewMmapStorage creates a new MmapStorage.
func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{
		path: path,
	}
}

// mapSize (re)maps the file at exactly size bytes. Caller must hold the mutex.
func (ms *MmapStorage) mapSize(size int) error {
	if ms.file == nil {
		f, err := os.OpenFile(ms.path, os.O_RDWR|os.O_CREATE, 0644)
		if err != nil {
			return fmt.Errorf("failed to open mmap file: %w", err)
		}
		ms.file = f
	}
	if ms.data != nil && len(ms.data) == size {
		return nil
	}
	if ms.data != nil {
		if err := ms.data.Unmap(); err != nil {
			return fmt.Errorf("munmap failed: %w", err)
		}
		ms.data = nil
	}

	fi, err := ms.file.Stat()
	if err != nil {
		return err
	}
	if fi.Size() != int64(size) {
		if err := ms.file.Truncate(int64(size)); err != nil {
			return fmt.Errorf("failed to resize mmap file: %w", err)
		}
	}

	data, err := mmap.Map(ms.file, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("mmap failed: %w", err)
	}
	ms.data = data
	return nil
}

// Load maps the existing file and decodes it.
func (ms *MmapStorage) Load() (*psu.Snapshot, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.data == nil {
		fi, err := os.Stat(ms.path)
		if os.IsNotExist(err) || (err == nil && fi.Size() < headerSize) {
			return nil, ErrNoSnapshot
		}
		if err != nil {
			return nil, err
		}
		if err := ms.mapSize(int(fi.Size())); err != nil {
			return nil, err
		}
	}
	return decode(ms.data)
}

// Save writes the snapshot into the mapping and flushes it.
func (ms *MmapStorage) Save(snap *psu.Snapshot) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if err := ms.mapSize(sizeFor(len(snap.Supplies))); err != nil {
		return err
	}
	encode(ms.data, snap)
	return ms.data.Flush()
}

// Close unmaps and closes the file.
func (ms *MmapStorage) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var err error
	if ms.data != nil {
		if e := ms.data.Unmap(); e != nil {
			err = e
		}
		ms.data = nil
	}
	if ms.file != nil {
		if e := ms.file.Close(); e != nil {
			err = e
		}
		ms.file = nil
	}
	return err
}
