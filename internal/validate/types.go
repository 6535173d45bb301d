// SPDX-License-Identifier: MIT
package validate

import (
	"fmt"
	"net"
	"strconv"
)

// LogLevels are the values accepted for log.level.
var LogLevels = []string{"trace", "debug", "info", "warn", "error"}

// LogLevel validates a log level name.
func (v *Validator) LogLevel(field, value string) {
	v.OneOf(field, value, LogLevels)
}

// ListenAddr validates a host:port listen address. Port 0 asks the kernel
// for an ephemeral port and is accepted.
func (v *Validator) ListenAddr(field, addr string) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid listen address: %v", err), addr)
		return
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		v.AddError(field, "port must be a number between 0 and 65535", addr)
	}
}
