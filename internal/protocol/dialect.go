// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package protocol

import (
	"fmt"
	"strings"

	"github.com/ffutop/psu-emulator/internal/psu"
)

// Dialect is one firmware revision of the command grammar. Both dialects share
// the Supply and Registry core and differ only in parsing and status encoding.
type Dialect interface {
	Name() string
	Parse(frame string) (Command, error)
	EncodeStatus(s *psu.Supply) string
}

// Dialect names accepted by NewDialect.
const (
	DialectDirect = "direct"
	DialectScaled = "scaled"
)

// NewDialect selects a dialect by name. layout only applies to the scaled dialect.
func NewDialect(name string, layout StatusLayout) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case DialectDirect, "a", "s0", "":
		return DirectDialect{}, nil
	case DialectScaled, "b", "s1":
		if err := layout.Validate(); err != nil {
			return nil, err
		}
		return ScaledDialect{Layout: layout}, nil
	default:
		return nil, fmt.Errorf("protocol: unknown dialect %q", name)
	}
}

const (
	flagSet   = '!'
	flagClear = '.'
)

func flagChar(b bool) byte {
	if b {
		return flagSet
	}
	return flagClear
}
