// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ManuGH/mcfleet/internal/procgroup"
	"github.com/ManuGH/mcfleet/internal/workload"
)

// DefaultCommandKey is the fallback entry in a Launcher's command table.
const DefaultCommandKey = "default"

// DefaultCommands mirror how vanilla and modern Forge servers are launched.
func DefaultCommands() map[string]string {
	return map[string]string{
		DefaultCommandKey: "java -Xms${memory_mb}M -Xmx${memory_mb}M -jar server.jar nogui",
		"forge":           "java -Xms${memory_mb}M -Xmx${memory_mb}M @libraries/net/minecraftforge/forge/${engine_version}-${loader_version}/unix_args.txt nogui",
		"neoforge":        "java -Xms${memory_mb}M -Xmx${memory_mb}M @libraries/net/neoforged/neoforge/${loader_version}/unix_args.txt nogui",
		"fabric":          "java -Xms${memory_mb}M -Xmx${memory_mb}M -jar fabric-server-launch.jar nogui",
	}
}

// Launcher turns a workload definition into a ready-to-start command.
type Launcher struct {
	// Commands maps loader kind to a command template. Fields are split on
	// whitespace before ${var} expansion, so values may contain spaces.
	Commands map[string]string
	// Env is appended to the daemon's environment.
	Env []string
}

// Command builds the process for w. The command runs in w.Path as the
// leader of a new process group.
func (l Launcher) Command(w workload.Workload) (*exec.Cmd, error) {
	tmpl, ok := l.Commands[w.LoaderKind]
	if !ok || strings.TrimSpace(tmpl) == "" {
		tmpl = l.Commands[DefaultCommandKey]
	}
	fields := strings.Fields(tmpl)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w for loader %q", ErrNoCommand, w.LoaderKind)
	}

	vars := map[string]string{
		"memory_mb":      strconv.Itoa(w.MemoryMB),
		"engine_version": w.EngineVersion,
		"loader_version": w.LoaderVersion,
		"server_name":    w.Name,
		"server_path":    w.Path,
	}
	var unknown []string
	expand := func(key string) string {
		v, ok := vars[key]
		if !ok {
			unknown = append(unknown, key)
		}
		return v
	}
	args := make([]string, len(fields))
	for i, f := range fields {
		args[i] = os.Expand(f, expand)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("launch command for %q: unknown variables %s", w.LoaderKind, strings.Join(unknown, ", "))
	}

	cmd := exec.Command(args[0], args[1:]...) // #nosec G204
	cmd.Dir = w.Path
	if len(l.Env) > 0 {
		cmd.Env = append(os.Environ(), l.Env...)
	}
	procgroup.Set(cmd)
	return cmd, nil
}
