package util

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LoadPrompt returns <dir>/<name>.txt when it exists and is non-empty,
// otherwise the built-in fallback. An empty dir means built-ins only.
func LoadPrompt(dir, name, fallback string) string {
	if dir == "" {
		return fallback
	}
	p := filepath.Join(dir, name+".txt")
	b, err := os.ReadFile(p)
	if err != nil || len(strings.TrimSpace(string(b))) == 0 {
		return fallback
	}
	slog.Info("util: prompt override", "name", name, "path", p)
	return strings.TrimSpace(string(b))
}
