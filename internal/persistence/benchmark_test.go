// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package persistence

import (
	"path/filepath"
	"testing"
)

// BenchmarkMemoryStorage_Save benchmarks mirroring into memory (baseline).
func BenchmarkMemoryStorage_Save(b *testing.B) {
	ms := NewMemoryStorage()
	snap := testSnapshot()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		snap.Supplies[0].Current = float64(i)
		_ = ms.Save(snap)
	}
}

// BenchmarkFileStorage_Save benchmarks WriteAt plus fsync.
func BenchmarkFileStorage_Save(b *testing.B) {
	ms := NewFileStorage(filepath.Join(b.TempDir(), "bench_file.bin"))
	defer ms.Close()
	snap := testSnapshot()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		snap.Supplies[0].Current = float64(i)
		if err := ms.Save(snap); err != nil {
			b.Fatalf("Save failed: %v", err)
		}
	}
}

// BenchmarkMmapStorage_Save benchmarks an in-place update plus msync.
func BenchmarkMmapStorage_Save(b *testing.B) {
	ms := NewMmapStorage(filepath.Join(b.TempDir(), "bench_mmap.bin"))
	defer ms.Close()
	snap := testSnapshot()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		snap.Supplies[0].Current = float64(i)
		if err := ms.Save(snap); err != nil {
			b.Fatalf("Save failed: %v", err)
		}
	}
}

// BenchmarkMmapStorage_Load benchmarks decoding from a mapped file.
func BenchmarkMmapStorage_Load(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench_mmap_load.bin")
	ms := NewMmapStorage(path)
	if err := ms.Save(testSnapshot()); err != nil {
		b.Fatal(err)
	}
	defer ms.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ms.Load(); err != nil {
			b.Fatalf("Load failed: %v", err)
		}
	}
}
