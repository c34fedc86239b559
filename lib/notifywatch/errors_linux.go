// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build linux && !(android && amd64)
// +build linux
// +build !android !amd64

package notifywatch

import (
	"errors"

	"golang.org/x/sys/unix"
)

func reachedMaxUserWatches(err error) bool {
	return errors.Is(err, unix.EMFILE) || errors.Is(err, unix.ENOSPC)
}
