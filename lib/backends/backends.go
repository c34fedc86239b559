// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package backends registers every monitor backend available on the
// current platform. Import it for its side effects.
package backends

import (
	_ "github.com/syncthing/fsmonitor/lib/fsnotifywatch"
	_ "github.com/syncthing/fsmonitor/lib/notifywatch"
	_ "github.com/syncthing/fsmonitor/lib/pollwatch"
)
