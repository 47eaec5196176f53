package u

import (
	"os"
	"path/filepath"
	"strings"
)

// FileExists returns true if path exists and is a regular file
func FileExists(path string) bool {
	st, err := os.Lstat(path)
	return err == nil && st.Mode().IsRegular()
}

// ExpandTildeInPath converts ~/foo to /home/me/foo
// returns path unchanged if it doesn't start with ~
func ExpandTildeInPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}

// HomeDirPath returns path relative to user's home directory
// e.g. HomeDirPath(".twaps", "twaps.json") => /home/me/.twaps/twaps.json
func HomeDirPath(elem ...string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	parts := append([]string{home}, elem...)
	return filepath.Join(parts...), nil
}
