// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ffutop/psu-emulator/internal/psu"
)

// FileStorage mirrors snapshots with plain file writes followed by fsync.
type FileStorage struct {
	path string

	mu   sync.Mutex
	file *os.File
	data []byte
}

// NewFileStorage creates a new FileStorage.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{
		path: path,
	}
}

func (ms *FileStorage) open() error {
	if ms.file != nil {
		return nil
	}
	// Open file, creating if necessary
	f, err := os.OpenFile(ms.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	ms.file = f
	return nil
}

// Load reads the mirror file.
func (ms *FileStorage) Load() (*psu.Snapshot, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if err := ms.open(); err != nil {
		return nil, err
	}
	if _, err := ms.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(ms.file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return decode(data)
}

// Save rewrites the mirror file and syncs it to disk.
func (ms *FileStorage) Save(snap *psu.Snapshot) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if err := ms.open(); err != nil {
		return err
	}

	size := sizeFor(len(snap.Supplies))
	if len(ms.data) != size {
		if err := ms.file.Truncate(int64(size)); err != nil {
			return fmt.Errorf("failed to resize file: %w", err)
		}
		ms.data = make([]byte, size)
	}
	encode(ms.data, snap)

	if _, err := ms.file.WriteAt(ms.data, 0); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := ms.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file to disk: %w", err)
	}
	return nil
}

// Close the file.
func (ms *FileStorage) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.file == nil {
		return nil
	}
	err := ms.file.Close()
	ms.file = nil
	ms.data = nil
	return err
}
