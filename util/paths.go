package util

import (
	"os"
	"path/filepath"
)

// ConfigDirs lists the directories searched for config files, most
// specific first: the working directory, $XDG_CONFIG_HOME/fedinbox,
// ~/.config/fedinbox and /etc/fedinbox.
func ConfigDirs() []string {
	dirs := []string{"."}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, Name))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", Name))
	}
	return append(dirs, filepath.Join("/etc", Name))
}

// ResolveFilePath returns the first existing filename among ConfigDirs.
// Absolute paths are returned unchanged, and a file found nowhere resolves
// to the working directory.
func ResolveFilePath(filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	for _, dir := range ConfigDirs() {
		candidate := filepath.Join(dir, filename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return filename
}
