// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package monitor

import (
	"fmt"
	"math/bits"
	"strings"
	"time"
)

// EventFlag is a set of change types. A single flag has exactly one bit set,
// NoOp has none.
type EventFlag uint32

const (
	NoOp             EventFlag = 0
	PlatformSpecific EventFlag = 1 << (iota - 1)
	Created
	Updated
	Removed
	Renamed
	OwnerModified
	AttributeModified
	MovedFrom
	MovedTo
	IsFile
	IsDir
	IsSymLink
	Link
	Overflow

	allFlags = Overflow<<1 - 1
)

var flagNames = map[EventFlag]string{
	NoOp:              "NoOp",
	PlatformSpecific:  "PlatformSpecific",
	Created:           "Created",
	Updated:           "Updated",
	Removed:           "Removed",
	Renamed:           "Renamed",
	OwnerModified:     "OwnerModified",
	AttributeModified: "AttributeModified",
	MovedFrom:         "MovedFrom",
	MovedTo:           "MovedTo",
	IsFile:            "IsFile",
	IsDir:             "IsDir",
	IsSymLink:         "IsSymLink",
	Link:              "Link",
	Overflow:          "Overflow",
}

// AllEventFlags returns every single flag, NoOp excluded, in ascending bit
// order.
func AllEventFlags() []EventFlag {
	return allFlags.Split()
}

// ParseEventFlag returns the flag with the given name. The comparison is
// case insensitive.
func ParseEventFlag(name string) (EventFlag, error) {
	for flag, flagName := range flagNames {
		if strings.EqualFold(flagName, name) {
			return flag, nil
		}
	}
	return NoOp, fmt.Errorf("%w: %q", ErrUnknownEventFlag, name)
}

// Has returns true if every flag in other is also set in f.
func (f EventFlag) Has(other EventFlag) bool {
	return f&other == other
}

// Split returns the individual flags of the set in ascending bit order.
func (f EventFlag) Split() []EventFlag {
	flags := make([]EventFlag, 0, bits.OnesCount32(uint32(f)))
	for rest := f; rest != 0; rest &= rest - 1 {
		flags = append(flags, rest&-rest)
	}
	return flags
}

// Names returns the names of the individual flags in the set.
func (f EventFlag) Names() []string {
	if f == NoOp {
		return []string{flagNames[NoOp]}
	}
	split := f.Split()
	names := make([]string, len(split))
	for i, flag := range split {
		if name, ok := flagNames[flag]; ok {
			names[i] = name
		} else {
			names[i] = fmt.Sprintf("0x%x", uint32(flag))
		}
	}
	return names
}

func (f EventFlag) String() string {
	return strings.Join(f.Names(), ",")
}

// Event is a change of Path, observed at Time. Backends always deliver at
// least one flag, except for the synthetic overflow event which has an empty
// path.
type Event struct {
	Path  string
	Time  time.Time
	Flags EventFlag
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s %v", e.Time.Format(time.RFC3339Nano), e.Path, e.Flags)
}
