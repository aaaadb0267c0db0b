// Package procname labels the running process so replicas show up by role in ps and top.
package procname

import (
	"errors"
	"os"
	"strings"
)

// ErrEmpty is returned for a blank name.
var ErrEmpty = errors.New("empty process name")

// Set renames the process. On Linux the kernel comm name is truncated to 15 bytes;
// elsewhere only os.Args[0] changes.
func Set(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmpty
	}
	if len(os.Args) > 0 {
		os.Args[0] = name
	}
	return setComm(name)
}

// ForRole builds "<app>-<role>", e.g. swstarter-serve.
func ForRole(app, role string) string {
	role = strings.TrimSpace(role)
	if role == "" {
		return app
	}
	return app + "-" + role
}
