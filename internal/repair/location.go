// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package repair

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Location is a path-valued settings entry: either a plain filesystem path or
// a file-backed connection URI such as sqlite:////abs/superset.db. URIs that
// name a network host (postgresql://user@host/db) are kept verbatim in Opaque
// and are never relocated. Driver options after the path of a URI
// (?check_same_thread=false) are kept in Query, delimiter included, so Path
// is always a plain filesystem path.
type Location struct {
	Scheme string
	Path   string
	Query  string
	Opaque string
}

// ParseLocation parses a stored location string.
func ParseLocation(s string) (Location, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Location{}, nil
	}
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		return Location{Path: s}, nil
	}
	if scheme == "" || strings.ContainsAny(scheme, `/\`) {
		return Location{}, fmt.Errorf("invalid location %q", s)
	}
	if !strings.HasPrefix(rest, "/") {
		return Location{Scheme: scheme, Opaque: s}, nil
	}
	loc := Location{Scheme: scheme, Path: rest[1:]}
	if i := strings.IndexAny(loc.Path, "?#"); i >= 0 {
		loc.Path, loc.Query = loc.Path[:i], loc.Path[i:]
	}
	return loc, nil
}

// IsPath reports whether the location refers to the local filesystem.
func (l Location) IsPath() bool {
	return l.Opaque == ""
}

// IsZero reports whether the location is unset.
func (l Location) IsZero() bool {
	return l.Path == "" && l.Opaque == "" && l.Query == ""
}

// String renders the location in its stored form.
func (l Location) String() string {
	switch {
	case l.Opaque != "":
		return l.Opaque
	case l.Scheme == "":
		return l.Path
	default:
		return l.Scheme + ":///" + l.Path + l.Query
	}
}

// MarshalJSON encodes the location as a string.
func (l Location) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a location string.
func (l *Location) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseLocation(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
