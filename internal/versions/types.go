// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package versions resolves which engine and modloader builds exist and
// whether a requested combination may be installed.
package versions

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrCatalogUnavailable means the source failed and no snapshot was ever fetched.
var ErrCatalogUnavailable = errors.New("version catalog unavailable")

// LoaderKind names a modloader family.
type LoaderKind string

const (
	LoaderNone     LoaderKind = "none"
	LoaderForge    LoaderKind = "forge"
	LoaderNeoForge LoaderKind = "neoforge"
	LoaderFabric   LoaderKind = "fabric"
)

// LoaderKinds lists every accepted kind, LoaderNone first.
func LoaderKinds() []LoaderKind {
	return []LoaderKind{LoaderNone, LoaderForge, LoaderNeoForge, LoaderFabric}
}

// ParseLoaderKind maps user input to a kind; "" means none.
func ParseLoaderKind(s string) (LoaderKind, error) {
	k := LoaderKind(strings.ToLower(strings.TrimSpace(s)))
	if k == "" {
		return LoaderNone, nil
	}
	for _, known := range LoaderKinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown loader kind %q", s)
}

// LoaderBuild is one modloader release for an engine version.
type LoaderBuild struct {
	Version      string     `json:"version"`
	Recommended  bool       `json:"recommended"`
	Latest       bool       `json:"latest"`
	Bugged       bool       `json:"bugged"`
	Published    *time.Time `json:"published,omitempty"`
	InstallerURL string     `json:"installer_url,omitempty"`
}

// Engines is the engine-version list as served by the resolver.
type Engines struct {
	Versions  []string
	FetchedAt time.Time
	Stale     bool
}

// Loaders is the build list for one (kind, engine) pair.
type Loaders struct {
	Kind      LoaderKind
	Engine    string
	Builds    []LoaderBuild
	FetchedAt time.Time
	Stale     bool
}

// Combo is a requested engine/modloader combination.
type Combo struct {
	Engine        string
	LoaderKind    LoaderKind
	LoaderVersion string
	AllowBugged   bool
}

// compareVersions orders dotted numeric versions; non-numeric parts compare
// lexically.
func compareVersions(a, b string) int {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var sa, sb string
		if i < len(pa) {
			sa = pa[i]
		}
		if i < len(pb) {
			sb = pb[i]
		}
		na, errA := strconv.Atoi(sa)
		nb, errB := strconv.Atoi(sb)
		switch {
		case errA == nil && errB == nil:
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
		case sa != sb:
			return strings.Compare(sa, sb)
		}
	}
	return 0
}
