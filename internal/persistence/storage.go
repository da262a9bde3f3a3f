// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"log/slog"

	"github.com/ffutop/psu-emulator/internal/psu"
)

// Storage mirrors the live registry state somewhere an operator can inspect it.
// The mirror is write-behind: it is never read back into the registry.
type Storage interface {
	// Load returns the last mirrored snapshot, or ErrNoSnapshot.
	Load() (*psu.Snapshot, error)

	// Save replaces the mirrored snapshot.
	Save(snap *psu.Snapshot) error

	Close() error
}

// Open creates the storage for a mirror type: "memory", "file" or "mmap".
func Open(kind, path string) (Storage, error) {
	switch kind {
	case "file":
		slog.Info("Mirroring device state to file", "path", path)
		return NewFileStorage(path), nil
	case "mmap":
		slog.Info("Mirroring device state to mmap", "path", path)
		return NewMmapStorage(path), nil
	case "memory", "":
		slog.Info("Mirroring device state in memory (non-persistent)")
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("persistence: unknown mirror type %q", kind)
	}
}
