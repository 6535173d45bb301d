// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup spawns workloads as process-group leaders and tears the
// whole group down when a graceful stop runs out of time.
package procgroup

import "errors"

var (
	ErrKillFailed = errors.New("kill operation failed")
)
