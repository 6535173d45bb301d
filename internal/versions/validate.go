// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package versions

import (
	"context"
	"fmt"
	"slices"

	"github.com/ManuGH/mcfleet/internal/validate"
)

// Validate checks c against the catalog and returns it normalised. An empty
// loader version picks the recommended build, else the latest one.
// Catalog outages are returned as-is, never as validation errors.
func (r *Resolver) Validate(ctx context.Context, c Combo) (Combo, error) {
	if c.Engine == "" {
		return Combo{}, validate.Fail("engine_version", "engine version is required", c.Engine)
	}
	kind, err := ParseLoaderKind(string(c.LoaderKind))
	if err != nil {
		return Combo{}, validate.Fail("loader_kind", err.Error(), c.LoaderKind)
	}
	c.LoaderKind = kind

	engines, err := r.Engines(ctx)
	if err != nil {
		return Combo{}, err
	}
	if !slices.Contains(engines.Versions, c.Engine) {
		return Combo{}, validate.Fail("engine_version", fmt.Sprintf("unknown engine version %q", c.Engine), c.Engine)
	}

	if kind == LoaderNone {
		if c.LoaderVersion != "" {
			return Combo{}, validate.Fail("loader_version", "loader version given without a loader kind", c.LoaderVersion)
		}
		return c, nil
	}

	loaders, err := r.Loaders(ctx, kind, c.Engine)
	if err != nil {
		return Combo{}, err
	}
	if len(loaders.Builds) == 0 {
		return Combo{}, validate.Fail("loader_version", fmt.Sprintf("no %s builds for engine %s", kind, c.Engine), c.Engine)
	}

	if c.LoaderVersion == "" {
		b, ok := pickDefault(loaders.Builds, c.AllowBugged)
		if !ok {
			return Combo{}, validate.Fail("loader_version", fmt.Sprintf("no usable %s build for engine %s", kind, c.Engine), "")
		}
		c.LoaderVersion = b.Version
		return c, nil
	}

	i := slices.IndexFunc(loaders.Builds, func(b LoaderBuild) bool { return b.Version == c.LoaderVersion })
	if i < 0 {
		return Combo{}, validate.Fail("loader_version",
			fmt.Sprintf("%s %s is not compatible with engine %s", kind, c.LoaderVersion, c.Engine), c.LoaderVersion)
	}
	if loaders.Builds[i].Bugged && !c.AllowBugged {
		return Combo{}, validate.Fail("loader_version",
			fmt.Sprintf("%s %s is marked bugged", kind, c.LoaderVersion), c.LoaderVersion)
	}
	return c, nil
}

func pickDefault(builds []LoaderBuild, allowBugged bool) (LoaderBuild, bool) {
	usable := func(b LoaderBuild) bool { return allowBugged || !b.Bugged }
	for _, b := range builds {
		if b.Recommended && usable(b) {
			return b, true
		}
	}
	for _, b := range builds {
		if b.Latest && usable(b) {
			return b, true
		}
	}
	var best LoaderBuild
	found := false
	for _, b := range builds {
		if usable(b) && (!found || compareVersions(b.Version, best.Version) > 0) {
			best, found = b, true
		}
	}
	return best, found
}
