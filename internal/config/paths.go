package config

import (
	"os"
	"path/filepath"
	"strings"
)

// defaultLogsSubdir is used when paths.logs / LOG_DIR are unset.
const defaultLogsSubdir = "logs"

// configBaseDir is the directory relative runtime paths hang off: the config file's
// directory when one was read, otherwise the working directory.
func configBaseDir(configPath string, fileRead bool) string {
	if fileRead {
		if abs, err := filepath.Abs(configPath); err == nil {
			return filepath.Dir(abs)
		}
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// resolvePath anchors raw at base unless it is absolute. A blank raw takes fallback.
func resolvePath(base, raw, fallback string) string {
	target := strings.TrimSpace(raw)
	if target == "" {
		target = fallback
	}
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	if base == "" {
		base = "."
	}
	return filepath.Join(base, target)
}
