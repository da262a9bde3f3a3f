// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/ffutop/psu-emulator/internal/psu"
)

// Mirror file layout, little-endian:
//
//	Header (16 bytes)
//	  0  magic "PSUM"
//	  4  version   uint16
//	  6  count     uint16
//	  8  connected uint8
//	 12  cursor    uint32
//	Record (64 bytes, one per supply, ascending address)
//	  0  address           uint32
//	  4  flags             uint8 (bit0 power, bit1 aggregate interlock)
//	  8  voltage           float64
//	 16  current           float64
//	 24  fullscale voltage float64
//	 32  fullscale current float64
//	 40  interlocks        uint64 (bit i = Interlock(i))
//	 48  reserved
const (
	headerSize = 16
	recordSize = 64
	version    = 1
	magic      = "PSUM"

	flagPower     = 1 << 0
	flagInterlock = 1 << 1
)

var (
	// ErrNoSnapshot is returned by Load when nothing has been mirrored yet.
	ErrNoSnapshot = errors.New("persistence: no snapshot")
	// ErrCorrupt is returned when mirror data does not match the layout.
	ErrCorrupt = errors.New("persistence: corrupt mirror")
)

func sizeFor(count int) int {
	return headerSize + count*recordSize
}

// encode serializes snap into buf, which must be sizeFor(len(snap.Supplies)) long.
func encode(buf []byte, snap *psu.Snapshot) {
	le := binary.LittleEndian
	clear(buf)

	copy(buf[0:4], magic)
	le.PutUint16(buf[4:], version)
	le.PutUint16(buf[6:], uint16(len(snap.Supplies)))
	if snap.Connected {
		buf[8] = 1
	}
	le.PutUint32(buf[12:], uint32(snap.Address))

	for i, s := range snap.Supplies {
		rec := buf[headerSize+i*recordSize : headerSize+(i+1)*recordSize]
		le.PutUint32(rec[0:], uint32(s.Address))
		var flags byte
		if s.Power {
			flags |= flagPower
		}
		if s.Interlock {
			flags |= flagInterlock
		}
		rec[4] = flags
		le.PutUint64(rec[8:], math.Float64bits(s.Voltage))
		le.PutUint64(rec[16:], math.Float64bits(s.Current))
		le.PutUint64(rec[24:], math.Float64bits(s.FullscaleVoltage))
		le.PutUint64(rec[32:], math.Float64bits(s.FullscaleCurrent))
		var bits uint64
		for j, v := range s.Interlocks {
			if v {
				bits |= 1 << uint(j)
			}
		}
		le.PutUint64(rec[40:], bits)
	}
}

// decode parses a mirror image.
func decode(data []byte) (*psu.Snapshot, error) {
	if len(data) < headerSize || isZero(data[:headerSize]) {
		return nil, ErrNoSnapshot
	}
	le := binary.LittleEndian
	if string(data[0:4]) != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorrupt, data[0:4])
	}
	if v := le.Uint16(data[4:]); v != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	count := int(le.Uint16(data[6:]))
	if len(data) < sizeFor(count) {
		return nil, fmt.Errorf("%w: %d records need %d bytes, have %d", ErrCorrupt, count, sizeFor(count), len(data))
	}

	snap := &psu.Snapshot{
		Connected: data[8] != 0,
		Address:   int(le.Uint32(data[12:])),
		Supplies:  make([]psu.Supply, count),
	}
	for i := range snap.Supplies {
		rec := data[headerSize+i*recordSize : headerSize+(i+1)*recordSize]
		s := &snap.Supplies[i]
		s.Address = int(le.Uint32(rec[0:]))
		s.Power = rec[4]&flagPower != 0
		s.Interlock = rec[4]&flagInterlock != 0
		s.Voltage = math.Float64frombits(le.Uint64(rec[8:]))
		s.Current = math.Float64frombits(le.Uint64(rec[16:]))
		s.FullscaleVoltage = math.Float64frombits(le.Uint64(rec[24:]))
		s.FullscaleCurrent = math.Float64frombits(le.Uint64(rec[32:]))
		bits := le.Uint64(rec[40:])
		for j := range s.Interlocks {
			s.Interlocks[j] = bits&(1<<uint(j)) != 0
		}
	}
	return snap, nil
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
