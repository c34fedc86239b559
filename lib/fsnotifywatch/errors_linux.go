// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build linux
// +build linux

package fsnotifywatch

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

func interpretAddError(err error) error {
	if errors.Is(err, unix.EMFILE) || errors.Is(err, unix.ENOSPC) {
		return fmt.Errorf("%w (inotify limits reached, increase fs.inotify.max_user_watches and fs.inotify.max_user_instances)", err)
	}
	return err
}
