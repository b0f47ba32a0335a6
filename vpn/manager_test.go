package vpn

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"syscall"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/yllada/shuttle-manager/common"
	"github.com/yllada/shuttle-manager/profile"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	root := t.TempDir()

	m, err := NewManager(Options{
		ConfigDir: filepath.Join(root, "config"),
		RunDir:    filepath.Join(root, "run"),
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if err := m.LoadConfig(); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	return m
}

// useKiller routes every signal the manager sends through f.
func useKiller(m *Manager, f *fakeKiller) {
	m.signal = f.signal
	m.terminator = newTestTerminator(f)
}

// useExecutable points the manager at a shell script with the given body.
func useExecutable(t *testing.T, m *Manager, body string) {
	t.Helper()
	script := filepath.Join(t.TempDir(), "tunnel")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatal(err)
	}
	setExecutable(t, m, script)
}

func setExecutable(t *testing.T, m *Manager, path string) {
	t.Helper()
	config := fmt.Sprintf("executable: %q\n", path)
	if err := os.WriteFile(filepath.Join(m.ConfigDir(), common.ConfigFileName), []byte(config), 0600); err != nil {
		t.Fatal(err)
	}
	if err := m.LoadConfig(); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
}

func writePID(t *testing.T, m *Manager, name, content string) {
	t.Helper()
	if err := os.WriteFile(m.PIDFile(name), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func createProfile(t *testing.T, m *Manager, name string, subnets ...string) {
	t.Helper()
	if err := m.CreateProfile(name, map[string]any{"subnets": subnets}); err != nil {
		t.Fatalf("CreateProfile(%s) error = %v", name, err)
	}
}

func assertKind(t *testing.T, err, kind error, message string) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("error = %v, want kind %v", err, kind)
	}
	var profileErr *ProfileError
	if !errors.As(err, &profileErr) {
		t.Fatalf("error = %T, want *ProfileError", err)
	}
	if message != "" && err.Error() != message {
		t.Errorf("error message = %q, want %q", err.Error(), message)
	}
}

func TestNewManager_Defaults(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	m, err := NewManager(Options{})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if want := filepath.Join(xdg, common.ConfigDirName); m.ConfigDir() != want {
		t.Errorf("ConfigDir() = %q, want %q", m.ConfigDir(), want)
	}
	if filepath.Dir(m.runDir) != filepath.Clean(os.TempDir()) {
		t.Errorf("runDir = %q, want a directory in %q", m.runDir, os.TempDir())
	}
	if !strings.HasPrefix(filepath.Base(m.runDir), common.RunDirPrefix+"-") {
		t.Errorf("runDir = %q, want prefix %q", m.runDir, common.RunDirPrefix)
	}
	if want := filepath.Join(m.runDir, common.SessionsDirName); m.sessionsDir != want {
		t.Errorf("sessionsDir = %q, want %q", m.sessionsDir, want)
	}
}

func TestManager_LoadConfigRejectsSharedRunDir(t *testing.T) {
	root := t.TempDir()
	runDir := filepath.Join(root, "run")
	if err := os.Mkdir(runDir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(runDir, 0777); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(Options{ConfigDir: filepath.Join(root, "config"), RunDir: runDir})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if err := m.LoadConfig(); !errors.Is(err, common.ErrInsecureDir) {
		t.Errorf("LoadConfig() error = %v, want ErrInsecureDir", err)
	}
	if fileExists(m.sessionsDir) {
		t.Error("LoadConfig() should not create sessions inside a shared directory")
	}
}

func TestManager_LoadConfigCreatesDirectories(t *testing.T) {
	m := newTestManager(t)

	for _, dir := range []string{m.ConfigDir(), m.sessionsDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("Stat(%s) error = %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}
}

func TestManager_PIDFile(t *testing.T) {
	m := newTestManager(t)

	want := filepath.Join(m.runDir, "sessions", "work.pid")
	if got := m.PIDFile("work"); got != want {
		t.Errorf("PIDFile() = %q, want %q", got, want)
	}
}

func TestManager_CreateProfile(t *testing.T) {
	m := newTestManager(t)

	details := map[string]any{
		"remote":  "user@host",
		"subnets": []string{"10.0.0.0/24"},
		"dns":     true,
	}
	if err := m.CreateProfile("work", details); err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}

	want := &profile.Profile{Remote: "user@host", Subnets: []string{"10.0.0.0/24"}, DNS: true}
	got, err := m.Profile("work")
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("Profile() = %+v, want %+v", got, want)
	}

	// A fresh manager sees the saved profile.
	reloaded, err := NewManager(Options{ConfigDir: m.ConfigDir(), RunDir: m.runDir})
	if err != nil {
		t.Fatal(err)
	}
	if err := reloaded.LoadConfig(); err != nil {
		t.Fatal(err)
	}
	if got, err := reloaded.Profile("work"); err != nil || !got.Equal(want) {
		t.Errorf("reloaded Profile() = %+v, %v", got, err)
	}
}

func TestManager_CreateProfileDuplicate(t *testing.T) {
	m := newTestManager(t)
	createProfile(t, m, "work", "10.0.0.0/24")

	err := m.CreateProfile("work", map[string]any{"subnets": []string{"192.168.0.0/16"}})
	assertKind(t, err, common.ErrDuplicateName, "profile name already in use: work")

	got, _ := m.Profile("work")
	if !got.Equal(profile.New("10.0.0.0/24")) {
		t.Errorf("duplicate create changed the profile: %+v", got)
	}
}

func TestManager_CreateProfileInvalid(t *testing.T) {
	tests := []struct {
		name        string
		profileName string
		details     map[string]any
		message     string
	}{
		{"missing subnets", "work", map[string]any{"dns": true}, "profile missing 'subnets' config"},
		{"unknown field", "work", map[string]any{"subnets": []string{"10.0.0.0/24"}, "bogus": 1}, "invalid profile config 'bogus'"},
		{"path in name", "a/b", map[string]any{"subnets": []string{"10.0.0.0/24"}}, `invalid profile name: "a/b"`},
		{"empty name", "", map[string]any{"subnets": []string{"10.0.0.0/24"}}, `invalid profile name: ""`},
		{"dot dot", "..", map[string]any{"subnets": []string{"10.0.0.0/24"}}, `invalid profile name: ".."`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t)

			err := m.CreateProfile(tt.profileName, tt.details)
			assertKind(t, err, common.ErrInvalidProfile, tt.message)
			if len(m.ProfileNames()) != 0 {
				t.Errorf("invalid create registered %v", m.ProfileNames())
			}
		})
	}
}

func TestManager_UpdateProfile(t *testing.T) {
	m := newTestManager(t)
	createProfile(t, m, "work", "10.0.0.0/24")

	if err := m.UpdateProfile("work", map[string]any{"auto-nets": true, "remote": "host"}); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	got, _ := m.Profile("work")
	want := &profile.Profile{Subnets: []string{"10.0.0.0/24"}, AutoNets: true, Remote: "host"}
	if !got.Equal(want) {
		t.Errorf("Profile() = %+v, want %+v", got, want)
	}

	err := m.UpdateProfile("work", map[string]any{"dns": "yes"})
	assertKind(t, err, common.ErrInvalidProfile, "invalid value for profile config 'dns'")
	if again, _ := m.Profile("work"); !again.Equal(want) {
		t.Errorf("failed update changed the profile: %+v", again)
	}

	err = m.UpdateProfile("nope", map[string]any{"dns": true})
	assertKind(t, err, common.ErrProfileNotFound, "unknown profile: nope")
}

func TestManager_RemoveProfile(t *testing.T) {
	m := newTestManager(t)
	createProfile(t, m, "work", "10.0.0.0/24")
	createProfile(t, m, "home", "192.168.0.0/16")

	if err := m.RemoveProfile("work"); err != nil {
		t.Fatalf("RemoveProfile() error = %v", err)
	}
	if got := m.ProfileNames(); !reflect.DeepEqual(got, []string{"home"}) {
		t.Errorf("ProfileNames() = %v, want [home]", got)
	}

	if err := m.LoadConfig(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Profile("work"); !errors.Is(err, common.ErrProfileNotFound) {
		t.Errorf("removed profile still persisted: %v", err)
	}
}

func TestManager_RemoveProfileNotFound(t *testing.T) {
	m := newTestManager(t)

	err := m.RemoveProfile("nope")
	assertKind(t, err, common.ErrProfileNotFound, "unknown profile: nope")
}

func TestManager_RemoveRunningProfileLeavesSession(t *testing.T) {
	m := newTestManager(t)
	createProfile(t, m, "work", "10.0.0.0/24")
	writePID(t, m, "work", strconv.Itoa(os.Getpid()))

	if err := m.RemoveProfile("work"); err != nil {
		t.Fatalf("RemoveProfile() error = %v", err)
	}
	if !fileExists(m.PIDFile("work")) {
		t.Error("RemoveProfile() should not touch the PID file of a running session")
	}
}

func TestManager_RemoveProfileKeepsStalePIDFile(t *testing.T) {
	m := newTestManager(t)
	f := &fakeKiller{respond: goneAfter(0)}
	useKiller(m, f)
	createProfile(t, m, "work", "10.0.0.0/24")
	writePID(t, m, "work", "4242")

	if err := m.RemoveProfile("work"); err != nil {
		t.Fatalf("RemoveProfile() error = %v", err)
	}
	if !fileExists(m.PIDFile("work")) {
		t.Error("RemoveProfile() should not reclaim a stale PID file")
	}
	if len(f.signals) != 0 {
		t.Errorf("RemoveProfile() sent %v, want no signals", f.signals)
	}
}

func TestManager_Profiles(t *testing.T) {
	m := newTestManager(t)
	createProfile(t, m, "b", "10.0.0.0/24")
	createProfile(t, m, "a", "10.1.0.0/24")

	profiles := m.Profiles()
	if len(profiles) != 2 {
		t.Fatalf("Profiles() has %d entries, want 2", len(profiles))
	}
	if !profiles["a"].Equal(profile.New("10.1.0.0/24")) {
		t.Errorf("Profiles()[a] = %+v", profiles["a"])
	}
	if got := m.ProfileNames(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("ProfileNames() = %v, want [a b]", got)
	}
}

func TestManager_IsRunning(t *testing.T) {
	tests := []struct {
		name    string
		content *string
		running bool
	}{
		{"no pid file", nil, false},
		{"empty pid file", ptr(""), false},
		{"not a number", ptr("garbage"), false},
		{"zero pid", ptr("0"), false},
		{"negative pid", ptr("-1"), false},
		{"pid out of range", ptr("4294967295"), false},
		{"live process", ptr(strconv.Itoa(os.Getpid()) + "\n"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t)
			if tt.content != nil {
				writePID(t, m, "work", *tt.content)
			}

			if got := m.IsRunning("work"); got != tt.running {
				t.Errorf("IsRunning() = %v, want %v", got, tt.running)
			}
		})
	}
}

func ptr(s string) *string {
	return &s
}

func TestManager_OutOfRangePIDIsNeverSignalled(t *testing.T) {
	for _, content := range []string{"4294967295", "2147483648", "-4294967297"} {
		t.Run(content, func(t *testing.T) {
			m := newTestManager(t)
			f := &fakeKiller{}
			useKiller(m, f)
			createProfile(t, m, "work", "10.0.0.0/24")
			writePID(t, m, "work", content+"\n")

			if m.IsRunning("work") {
				t.Error("IsRunning() = true for an out of range PID")
			}
			err := m.StopProfile("work")
			assertKind(t, err, common.ErrNotRunning, "profile is not running")
			if len(f.signals) != 0 {
				t.Errorf("sent %v to %v, want no signals", f.signals, f.pids)
			}
		})
	}
}

func TestManager_IsRunningRemovesStalePIDFile(t *testing.T) {
	m := newTestManager(t)
	f := &fakeKiller{respond: goneAfter(0)}
	useKiller(m, f)
	writePID(t, m, "work", "4242")

	if m.IsRunning("work") {
		t.Error("IsRunning() = true for a process that is gone")
	}
	if fileExists(m.PIDFile("work")) {
		t.Error("stale PID file should have been removed")
	}
	if !reflect.DeepEqual(f.pids, []int{4242}) || f.signals[0] != 0 {
		t.Errorf("probe sent %v to %v, want signal 0 to 4242", f.signals, f.pids)
	}
}

func TestManager_IsRunningKeepsFileOnProbeError(t *testing.T) {
	tests := []struct {
		name   string
		result error
	}{
		{"not permitted", unix.EPERM},
		{"unexpected error", unix.EINVAL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t)
			useKiller(m, &fakeKiller{respond: func(int, syscall.Signal) error { return tt.result }})
			writePID(t, m, "work", "4242")

			if !m.IsRunning("work") {
				t.Error("IsRunning() = false, want true")
			}
			if !fileExists(m.PIDFile("work")) {
				t.Error("PID file should be kept")
			}
		})
	}
}

func TestManager_Cmdline(t *testing.T) {
	m := newTestManager(t)
	createProfile(t, m, "work", "10.0.0.0/24")

	got, err := m.Cmdline("work", []string{"--extra1"})
	if err != nil {
		t.Fatalf("Cmdline() error = %v", err)
	}
	want := []string{
		"sshuttle", "10.0.0.0/24",
		"--daemon", "--pidfile", m.PIDFile("work"), "--extra1",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Cmdline() = %v, want %v", got, want)
	}

	setExecutable(t, m, "/opt/bin/sshuttle")
	got, err = m.Cmdline("work", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != "/opt/bin/sshuttle" {
		t.Errorf("Cmdline()[0] = %q, want the configured executable", got[0])
	}

	_, err = m.Cmdline("nope", nil)
	assertKind(t, err, common.ErrProfileNotFound, "unknown profile: nope")
}

func TestManager_StartProfile(t *testing.T) {
	m := newTestManager(t)
	createProfile(t, m, "work", "10.0.0.0/24")
	argsFile := filepath.Join(t.TempDir(), "args")
	useExecutable(t, m, fmt.Sprintf(`printf '%%s\n' "$@" > %q`, argsFile))

	if err := m.StartProfile("work", []string{"--verbose"}); err != nil {
		t.Fatalf("StartProfile() error = %v", err)
	}

	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("launcher did not run: %v", err)
	}
	got := strings.Split(strings.TrimSpace(string(data)), "\n")
	want := []string{"10.0.0.0/24", "--daemon", "--pidfile", m.PIDFile("work"), "--verbose"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("launcher args = %v, want %v", got, want)
	}
}

func TestManager_StartProfileFailure(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		message string
	}{
		{"stderr output", "echo boom >&2\nexit 1", "profile failed to start: boom"},
		{"silent failure", "exit 3", "profile failed to start: exit status 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t)
			createProfile(t, m, "work", "10.0.0.0/24")
			useExecutable(t, m, tt.script)

			err := m.StartProfile("work", nil)
			assertKind(t, err, common.ErrStartFailed, tt.message)
		})
	}
}

func TestManager_StartProfileMissingExecutable(t *testing.T) {
	m := newTestManager(t)
	createProfile(t, m, "work", "10.0.0.0/24")
	setExecutable(t, m, filepath.Join(t.TempDir(), "missing"))

	err := m.StartProfile("work", nil)
	assertKind(t, err, common.ErrStartFailed, "")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want it to wrap os.ErrNotExist", err)
	}
}

func TestManager_StartProfileAlreadyRunning(t *testing.T) {
	m := newTestManager(t)
	createProfile(t, m, "work", "10.0.0.0/24")
	marker := filepath.Join(t.TempDir(), "spawned")
	useExecutable(t, m, fmt.Sprintf("touch %q", marker))
	writePID(t, m, "work", strconv.Itoa(os.Getpid()))

	err := m.StartProfile("work", nil)
	assertKind(t, err, common.ErrAlreadyRunning, "profile is already running")
	if fileExists(marker) {
		t.Error("StartProfile() spawned a process for a running profile")
	}
}

func TestManager_StartProfileNotFound(t *testing.T) {
	m := newTestManager(t)

	err := m.StartProfile("nope", nil)
	assertKind(t, err, common.ErrProfileNotFound, "unknown profile: nope")
}

func TestManager_StopProfile(t *testing.T) {
	m := newTestManager(t)
	createProfile(t, m, "work", "10.0.0.0/24")
	writePID(t, m, "work", "4242")
	// Alive for the probe, gone after the first SIGTERM.
	f := &fakeKiller{respond: func(n int, sig syscall.Signal) error {
		if n >= 2 {
			return unix.ESRCH
		}
		return nil
	}}
	useKiller(m, f)

	if err := m.StopProfile("work"); err != nil {
		t.Fatalf("StopProfile() error = %v", err)
	}
	want := []syscall.Signal{0, unix.SIGTERM, unix.SIGTERM}
	if !reflect.DeepEqual(f.signals, want) {
		t.Errorf("signals = %v, want %v", f.signals, want)
	}
	for _, pid := range f.pids {
		if pid != 4242 {
			t.Errorf("signalled pid %d, want 4242", pid)
		}
	}
}

func TestManager_StopProfileNotRunning(t *testing.T) {
	tests := []struct {
		name    string
		content *string
	}{
		{"no pid file", nil},
		{"unparseable pid file", ptr("not-a-pid")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t)
			createProfile(t, m, "work", "10.0.0.0/24")
			f := &fakeKiller{}
			useKiller(m, f)
			if tt.content != nil {
				writePID(t, m, "work", *tt.content)
			}

			err := m.StopProfile("work")
			assertKind(t, err, common.ErrNotRunning, "profile is not running")
			if len(f.signals) != 0 {
				t.Errorf("sent %v, want no signals", f.signals)
			}
		})
	}
}

func TestManager_StopProfileNotFound(t *testing.T) {
	m := newTestManager(t)

	err := m.StopProfile("nope")
	assertKind(t, err, common.ErrProfileNotFound, "unknown profile: nope")
}

func TestManager_StopProfileFailure(t *testing.T) {
	t.Run("process survives", func(t *testing.T) {
		m := newTestManager(t)
		createProfile(t, m, "work", "10.0.0.0/24")
		writePID(t, m, "work", "4242")
		useKiller(m, &fakeKiller{})

		err := m.StopProfile("work")
		assertKind(t, err, common.ErrStopFailed, "failed to stop profile: failed to kill process 4242")
		var killErr *KillError
		if !errors.As(err, &killErr) || killErr.PID != 4242 {
			t.Errorf("error = %v, want *KillError for 4242", err)
		}
	})

	t.Run("permission denied", func(t *testing.T) {
		m := newTestManager(t)
		createProfile(t, m, "work", "10.0.0.0/24")
		writePID(t, m, "work", "4242")
		useKiller(m, &fakeKiller{respond: func(n int, sig syscall.Signal) error {
			if sig == 0 {
				return nil
			}
			return unix.EPERM
		}})

		err := m.StopProfile("work")
		assertKind(t, err, common.ErrStopFailed, "")
		if !errors.Is(err, os.ErrPermission) {
			t.Errorf("error = %v, want it to match os.ErrPermission", err)
		}
	})
}

func TestManager_RestartProfile(t *testing.T) {
	m := newTestManager(t)
	createProfile(t, m, "work", "10.0.0.0/24")
	marker := filepath.Join(t.TempDir(), "spawned")
	useExecutable(t, m, fmt.Sprintf("touch %q", marker))
	writePID(t, m, "work", "4242")

	// The process dies on the first SIGTERM and stays gone.
	dead := false
	f := &fakeKiller{respond: func(_ int, sig syscall.Signal) error {
		if dead {
			return unix.ESRCH
		}
		if sig == unix.SIGTERM {
			dead = true
		}
		return nil
	}}
	useKiller(m, f)

	if err := m.RestartProfile("work", nil); err != nil {
		t.Fatalf("RestartProfile() error = %v", err)
	}
	if f.count(unix.SIGTERM) != 2 {
		t.Errorf("signals = %v, want the session stopped first", f.signals)
	}
	if !fileExists(marker) {
		t.Error("RestartProfile() did not start the profile")
	}
	if fileExists(m.PIDFile("work")) {
		t.Error("stale PID file should have been removed before starting")
	}
}

func TestManager_RestartStoppedProfile(t *testing.T) {
	m := newTestManager(t)
	createProfile(t, m, "work", "10.0.0.0/24")
	marker := filepath.Join(t.TempDir(), "spawned")
	useExecutable(t, m, fmt.Sprintf("touch %q", marker))

	if err := m.RestartProfile("work", nil); err != nil {
		t.Fatalf("RestartProfile() error = %v", err)
	}
	if !fileExists(marker) {
		t.Error("RestartProfile() did not start the profile")
	}
}

func TestProfileError(t *testing.T) {
	cause := errors.New("cause")
	err := newProfileError(common.ErrStopFailed, cause, "failed to stop profile: %s", cause)

	if err.Error() != "failed to stop profile: cause" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, common.ErrStopFailed) || !errors.Is(err, cause) {
		t.Error("error should match its kind and its cause")
	}
	if errors.Is(err, common.ErrStartFailed) {
		t.Error("error should not match other kinds")
	}

	bare := newProfileError(common.ErrNotRunning, nil, "profile is not running")
	if got := bare.Unwrap(); len(got) != 1 {
		t.Errorf("Unwrap() = %v, want only the kind", got)
	}
}
