// Package common provides shared constants, types, and utilities
// used across shuttle-manager.
package common

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// DefaultConfigDir returns the path to the application configuration
// directory. It honors XDG_CONFIG_HOME and does not create the directory.
func DefaultConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, ConfigDirName), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", WrapError(err, "failed to get home directory")
	}

	return filepath.Join(homeDir, ".config", ConfigDirName), nil
}

// RunDir returns the per-user directory holding runtime data for the given
// prefix, below the system temp directory.
func RunDir(prefix string) string {
	return filepath.Join(os.TempDir(), prefix+"-"+currentUsername())
}

// currentUsername returns the login name of the invoking user, falling back
// to $USER and finally the numeric uid.
func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return strconv.Itoa(os.Getuid())
}

// EnsureDir ensures a directory exists, creating it if necessary.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0700)
}

// EnsurePrivateDir creates path like EnsureDir, then refuses it unless it
// is a real directory owned by the current user with no group or other
// permissions. A directory under the shared temp dir may have been created
// by someone else first.
func EnsurePrivateDir(path string) error {
	if err := EnsureDir(path); err != nil {
		return err
	}
	if isSymlink(path) {
		return fmt.Errorf("%w: %s is a symlink", ErrInsecureDir, path)
	}

	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInsecureDir, path)
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return fmt.Errorf("%w: %s has mode %#o, want 0700", ErrInsecureDir, path, perm)
	}

	var stat unix.Stat_t
	if err := unix.Lstat(path, &stat); err != nil {
		return err
	}
	if int(stat.Uid) != unix.Getuid() {
		return fmt.Errorf("%w: %s is owned by uid %d", ErrInsecureDir, path, stat.Uid)
	}
	return nil
}

// isSymlink checks if a path is a symbolic link.
// Returns false if path doesn't exist (safe to create).
func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeSymlink != 0
}
