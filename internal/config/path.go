package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir picks a data directory for the host platform. XDG wins when
// set; otherwise a conventional per-OS location is probed, ending at
// ~/.chatqueue when nothing better exists.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "chatqueue")
	}

	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data"
	}

	switch {
	case isDir("/var/lib"):
		return "/var/lib/chatqueue"
	case isDir(filepath.Join(home, "Library")):
		// macOS
		return filepath.Join(home, "Library", "Application Support", "ChatQueue")
	case isDir(filepath.Join(home, "AppData")):
		// windows
		return filepath.Join(home, "AppData", "Local", "ChatQueue")
	}
	return filepath.Join(home, ".chatqueue")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
