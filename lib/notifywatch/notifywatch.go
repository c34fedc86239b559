// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package notifywatch implements a monitor backend on top of
// github.com/syncthing/notify, which uses the native recursive facility of
// each platform (FSEvents, ReadDirectoryChangesW, inotify, kqueue). It is
// not available on darwin and solaris without cgo, nor on android/amd64.
package notifywatch

const (
	Name = "notify_monitor"

	// PropBufferSize sets the number of native events buffered before an
	// overflow is reported.
	PropBufferSize = "notify.buffer_size"
)
