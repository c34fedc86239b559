// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import "github.com/syncthing/fsmonitor/lib/monitor"

// FilterType is the textual form of monitor.FilterType. The zero value is
// include, as an omitted type in a file means include.
type FilterType int32

const (
	FilterTypeInclude FilterType = 0
	FilterTypeExclude FilterType = 1
	FilterTypeUnknown FilterType = -1
)

func (t FilterType) String() string {
	switch t {
	case FilterTypeInclude:
		return "include"
	case FilterTypeExclude:
		return "exclude"
	default:
		return "unknown"
	}
}

func (t FilterType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *FilterType) UnmarshalText(bs []byte) error {
	switch string(bs) {
	case "include", "":
		*t = FilterTypeInclude
	case "exclude":
		*t = FilterTypeExclude
	default:
		*t = FilterTypeUnknown
	}
	return nil
}

func (t FilterType) monitorType() monitor.FilterType {
	if t == FilterTypeExclude {
		return monitor.FilterExclude
	}
	return monitor.FilterInclude
}

// FilterSyntax is the textual form of monitor.Syntax.
type FilterSyntax int32

const (
	FilterSyntaxBasic    FilterSyntax = 0
	FilterSyntaxExtended FilterSyntax = 1
	FilterSyntaxGlob     FilterSyntax = 2
	FilterSyntaxUnknown  FilterSyntax = -1
)

func (s FilterSyntax) String() string {
	switch s {
	case FilterSyntaxBasic:
		return "basic"
	case FilterSyntaxExtended:
		return "extended"
	case FilterSyntaxGlob:
		return "glob"
	default:
		return "unknown"
	}
}

func (s FilterSyntax) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *FilterSyntax) UnmarshalText(bs []byte) error {
	switch string(bs) {
	case "basic", "":
		*s = FilterSyntaxBasic
	case "extended":
		*s = FilterSyntaxExtended
	case "glob":
		*s = FilterSyntaxGlob
	default:
		*s = FilterSyntaxUnknown
	}
	return nil
}

func (s FilterSyntax) monitorSyntax() monitor.Syntax {
	switch s {
	case FilterSyntaxExtended:
		return monitor.SyntaxExtended
	case FilterSyntaxGlob:
		return monitor.SyntaxGlob
	default:
		return monitor.SyntaxBasic
	}
}
