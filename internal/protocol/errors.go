// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package protocol

import "errors"

var (
	// ErrMalformedCommand is returned for a frame that matches no command of the dialect.
	ErrMalformedCommand = errors.New("protocol: malformed command")
	// ErrMalformedArgument is returned when a numeric argument does not parse.
	ErrMalformedArgument = errors.New("protocol: malformed argument")
)
