// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package monitor

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownMonitorType   = errors.New("unknown monitor type")
	ErrDuplicateMonitorType = errors.New("monitor type already registered")
	ErrNoMonitor            = errors.New("creator returned no monitor")
	ErrPropertyNotFound     = errors.New("property not found")
	ErrMonitorOverflow      = errors.New("event queue overflow")
	ErrAlreadyRunning       = errors.New("monitor is already running")
	ErrInvalidFilter        = errors.New("invalid filter")
	ErrUnknownEventFlag     = errors.New("unknown event flag")
)

// StartError is returned by backends that fail to acquire the native
// resources needed to watch a path.
type StartError struct {
	Path string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("monitoring %s: %v", e.Path, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}
