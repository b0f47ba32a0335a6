// Package vpn provides tunnel session management functionality.
// This file contains the Manager type which starts, stops and tracks the
// tunnel process of each profile through its PID file.
package vpn

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/yllada/shuttle-manager/common"
	"github.com/yllada/shuttle-manager/config"
	"github.com/yllada/shuttle-manager/profile"
)

// ProfileError is returned by every failed profile operation. Its message
// is meant for users; errors.Is matches the kind (one of the common.Err*
// profile and session sentinels) as well as the underlying cause.
type ProfileError struct {
	// Kind classifies the failure.
	Kind error
	// Err is the underlying cause, if any.
	Err error

	msg string
}

func newProfileError(kind, cause error, format string, args ...any) *ProfileError {
	return &ProfileError{
		Kind: kind,
		Err:  cause,
		msg:  fmt.Sprintf(format, args...),
	}
}

func (e *ProfileError) Error() string {
	return e.msg
}

func (e *ProfileError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Options configures a Manager. Zero values select the defaults.
type Options struct {
	// ConfigDir holds the profiles and config documents.
	ConfigDir string
	// RunDir holds runtime data; PID files live in its sessions
	// subdirectory.
	RunDir string
	// Stdout receives the launcher's standard output. Nil discards it.
	Stdout io.Writer
}

// Manager orchestrates tunnel sessions for the profiles in the
// configuration store. The PID file of a profile is the only record of its
// session; no state is kept in memory.
type Manager struct {
	configDir   string
	runDir      string
	sessionsDir string
	store       *config.Store
	stdout      io.Writer

	signal     signalFunc
	terminator *Terminator
}

// NewManager creates a Manager, resolving default directories once.
// LoadConfig must be called before any profile operation.
func NewManager(opts Options) (*Manager, error) {
	configDir := opts.ConfigDir
	if configDir == "" {
		dir, err := common.DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		configDir = dir
	}

	runDir := opts.RunDir
	if runDir == "" {
		runDir = common.RunDir(common.RunDirPrefix)
	}

	return &Manager{
		configDir:   configDir,
		runDir:      runDir,
		sessionsDir: filepath.Join(runDir, common.SessionsDirName),
		store:       config.NewStore(configDir),
		stdout:      opts.Stdout,
		signal:      unix.Kill,
		terminator:  NewTerminator(),
	}, nil
}

// ConfigDir returns the configuration directory.
func (m *Manager) ConfigDir() string {
	return m.configDir
}

// PIDFile returns the path of the PID file for the named profile.
func (m *Manager) PIDFile(name string) string {
	return filepath.Join(m.sessionsDir, name+common.PIDFileSuffix)
}

// LoadConfig creates the configuration and sessions directories if needed
// and loads the configuration store. The runtime and sessions directories
// must be private to the current user, since PID files found there are
// trusted as signal targets.
func (m *Manager) LoadConfig() error {
	if err := common.EnsureDir(m.configDir); err != nil {
		return common.WrapError(err, "failed to create directory")
	}
	for _, dir := range []string{m.runDir, m.sessionsDir} {
		if err := common.EnsurePrivateDir(dir); err != nil {
			return common.WrapError(err, "failed to prepare runtime directory")
		}
	}
	return m.store.Load()
}

// CreateProfile builds a profile from details, registers it under name and
// saves the configuration. Running sessions are not affected.
func (m *Manager) CreateProfile(name string, details map[string]any) error {
	if err := validateName(name); err != nil {
		return newProfileError(common.ErrInvalidProfile, err, "%s", err)
	}

	p, err := profile.FromConfig(details)
	if err != nil {
		return newProfileError(common.ErrInvalidProfile, err, "%s", err)
	}

	if err := m.store.AddProfile(name, p); err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return newProfileError(common.ErrDuplicateName, err, "profile name already in use: %s", name)
		}
		return err
	}

	common.LogInfo("Created profile %s", name)
	return m.store.Save()
}

// UpdateProfile applies details to an existing profile and saves the
// configuration. A running session keeps the command line it was started
// with until restarted.
func (m *Manager) UpdateProfile(name string, details map[string]any) error {
	p, err := m.Profile(name)
	if err != nil {
		return err
	}

	if err := p.Update(details); err != nil {
		return newProfileError(common.ErrInvalidProfile, err, "%s", err)
	}

	if err := m.store.ReplaceProfile(name, p); err != nil {
		return newProfileError(common.ErrProfileNotFound, err, "unknown profile: %s", name)
	}

	common.LogInfo("Updated profile %s", name)
	return m.store.Save()
}

// RemoveProfile deletes the named profile and saves the configuration.
// A running session for the profile is left alone.
func (m *Manager) RemoveProfile(name string) error {
	if err := m.store.RemoveProfile(name); err != nil {
		return newProfileError(common.ErrProfileNotFound, err, "unknown profile: %s", name)
	}

	// The PID file is only read here so a stale one is not reclaimed.
	if _, err := readPIDFile(m.PIDFile(name)); err == nil {
		common.LogWarn("Profile %s removed while it still has a session PID file", name)
	}

	common.LogInfo("Removed profile %s", name)
	return m.store.Save()
}

// Profiles returns all profiles keyed by name.
func (m *Manager) Profiles() map[string]*profile.Profile {
	return m.store.Profiles()
}

// ProfileNames returns the profile names in sorted order.
func (m *Manager) ProfileNames() []string {
	return m.store.Names()
}

// Profile returns the named profile.
func (m *Manager) Profile(name string) (*profile.Profile, error) {
	p, err := m.store.Profile(name)
	if err != nil {
		return nil, newProfileError(common.ErrProfileNotFound, err, "unknown profile: %s", name)
	}
	return p, nil
}

// Executable returns the tunnel executable in use.
func (m *Manager) Executable() string {
	return m.store.Executable()
}

// IsRunning reports whether the PID file of the named profile points to a
// live process. A PID file for a process that no longer exists is removed.
func (m *Manager) IsRunning(name string) bool {
	pidFile := m.PIDFile(name)

	pid, err := readPIDFile(pidFile)
	if err != nil {
		return false
	}

	alive, err := processExists(m.signal, pid)
	if err != nil {
		common.LogWarn("Could not probe process %d of profile %s: %v", pid, name, err)
		return true
	}
	if alive {
		return true
	}

	common.LogDebug("Removing stale PID file %s", pidFile)
	if err := os.Remove(pidFile); err != nil && !os.IsNotExist(err) {
		common.LogWarn("Could not remove stale PID file %s: %v", pidFile, err)
	}
	return false
}

// Cmdline returns the command line starting the named profile as a daemon
// writing its PID file, followed by extraArgs.
func (m *Manager) Cmdline(name string, extraArgs []string) ([]string, error) {
	p, err := m.Profile(name)
	if err != nil {
		return nil, err
	}

	extraOpts := append([]string{"--daemon", "--pidfile", m.PIDFile(name)}, extraArgs...)
	return p.Cmdline(m.Executable(), extraOpts), nil
}

// StartProfile launches the tunnel for the named profile and waits for the
// launcher to exit. The tunnel is expected to daemonize and write its own
// PID file; that is not verified here.
func (m *Manager) StartProfile(name string, extraArgs []string) error {
	if m.IsRunning(name) {
		return newProfileError(common.ErrAlreadyRunning, nil, "profile is already running")
	}

	cmdline, err := m.Cmdline(name, extraArgs)
	if err != nil {
		return err
	}

	common.LogInfo("Starting profile %s: %s", name, strings.Join(cmdline, " "))

	var stderr bytes.Buffer
	cmd := exec.Command(cmdline[0], cmdline[1:]...)
	cmd.Stdout = m.stdout
	cmd.Stderr = &stderr
	// The daemonized tunnel may keep the stderr pipe open after the
	// launcher exits.
	cmd.WaitDelay = common.LauncherWaitDelay

	err = cmd.Run()
	if errors.Is(err, exec.ErrWaitDelay) {
		err = nil
	}
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = exitErr.Error()
		}
		common.LogError("Profile %s failed to start: %s", name, detail)
		return newProfileError(common.ErrStartFailed, err, "profile failed to start: %s", detail)
	}

	common.LogError("Could not run %s: %v", cmdline[0], err)
	return newProfileError(common.ErrStartFailed, err, "profile failed to start: %s", err)
}

// StopProfile terminates the tunnel process of the named profile. It
// succeeds only once the process is confirmed gone.
func (m *Manager) StopProfile(name string) error {
	if _, err := m.Profile(name); err != nil {
		return err
	}

	if !m.IsRunning(name) {
		return newProfileError(common.ErrNotRunning, nil, "profile is not running")
	}

	pid, err := readPIDFile(m.PIDFile(name))
	if err != nil {
		return newProfileError(common.ErrStopFailed, err, "failed to stop profile: %s", err)
	}

	common.LogInfo("Stopping profile %s (pid %d)", name, pid)
	if err := m.terminator.KillAndWait(pid); err != nil {
		common.LogError("Could not stop profile %s: %v", name, err)
		return newProfileError(common.ErrStopFailed, err, "failed to stop profile: %s", err)
	}

	return nil
}

// RestartProfile stops the named profile if it is running, then starts it.
// If the stop succeeds and the start fails, the profile stays stopped.
func (m *Manager) RestartProfile(name string, extraArgs []string) error {
	if m.IsRunning(name) {
		if err := m.StopProfile(name); err != nil {
			return err
		}
	}
	return m.StartProfile(name, extraArgs)
}

// readPIDFile parses the process id stored in path.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	// pid_t is 32 bits; wider values would be truncated by kill(2).
	pid, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid PID file %s: %w", path, err)
	}
	// 0 and negative values would signal process groups.
	if pid <= 0 {
		return 0, fmt.Errorf("invalid PID %d in %s", pid, path)
	}
	return int(pid), nil
}

// validateName rejects names that can't be used as a PID file name.
func validateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsRune(name, os.PathSeparator) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("invalid profile name: %q", name)
	}
	return nil
}
