// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build !linux && !(solaris && !cgo) && !(darwin && !cgo)
// +build !linux
// +build !solaris cgo
// +build !darwin cgo

package notifywatch

func reachedMaxUserWatches(error) bool {
	return false
}
