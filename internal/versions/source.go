// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package versions

import (
	"context"
	"errors"
	"sort"
)

// Source is the upstream the resolver refreshes from.
type Source interface {
	Engines(ctx context.Context) ([]string, error)
	Loaders(ctx context.Context, kind LoaderKind, engine string) ([]LoaderBuild, error)
}

// StaticSource serves a fixed catalog. Err, when set, fails every call.
type StaticSource struct {
	EngineVersions []string
	Builds         map[LoaderKind]map[string][]LoaderBuild
	Err            error
}

var _ Source = (*StaticSource)(nil)

func (s *StaticSource) Engines(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	out := append([]string(nil), s.EngineVersions...)
	sort.SliceStable(out, func(i, j int) bool { return compareVersions(out[i], out[j]) > 0 })
	return out, nil
}

func (s *StaticSource) Loaders(ctx context.Context, kind LoaderKind, engine string) ([]LoaderBuild, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if kind == LoaderNone {
		return nil, errors.New("no builds for loader kind none")
	}
	return append([]LoaderBuild(nil), s.Builds[kind][engine]...), nil
}
