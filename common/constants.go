// Package common provides shared constants, types, and utilities
// used across shuttle-manager.
package common

import "time"

// Application metadata.
const (
	// AppName is the display name of the application.
	AppName = "shuttle-manager"
	// ConfigDirName is the name of the configuration directory.
	ConfigDirName = "shuttle-manager"
	// RunDirPrefix prefixes the per-user runtime directory in the system
	// temp directory.
	RunDirPrefix = "shuttle-manager"
	// SessionsDirName is the runtime subdirectory holding PID files.
	SessionsDirName = "sessions"
)

// File names used by the application.
const (
	ProfilesFileName = "profiles.yaml"
	ConfigFileName   = "config.yaml"
	LogFileName      = "shuttle-manager.log"
	PIDFileSuffix    = ".pid"
)

// DefaultExecutable is the tunnel executable used when the configuration
// does not override it.
const DefaultExecutable = "sshuttle"

// Termination timings for a profile's tunnel process.
const (
	// KillInterval is the delay between successive signals.
	KillInterval = 200 * time.Millisecond
	// KillGraceWindow is how long SIGTERM is repeated before escalating.
	KillGraceWindow = 2 * time.Second
	// KillForceWindow is how long SIGKILL is repeated before giving up.
	KillForceWindow = 1 * time.Second
	// LauncherWaitDelay bounds the wait for output pipes inherited by a
	// daemonized child once the launcher itself has exited.
	LauncherWaitDelay = 2 * time.Second
)
