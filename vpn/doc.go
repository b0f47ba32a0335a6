// Package vpn provides tunnel session management for shuttle-manager.
//
// This package implements the session side of the application:
//
//   - Profile management: Creating, updating, and deleting named profiles
//     through the configuration store
//   - Session lifecycle: Starting, stopping, and restarting the tunnel
//     process of a profile
//   - Liveness: Deciding whether a profile is running from its PID file
//
// # Architecture
//
// The package is organized around two types:
//
//   - Manager: Maps profile names to command lines and PID files, and
//     drives the configuration store
//   - Terminator: Ends a process with SIGTERM, escalating to SIGKILL
//
// # Session Flow
//
// A typical session:
//
//  1. The command line calls Manager.StartProfile
//  2. Manager launches the tunnel with --daemon and --pidfile and waits for
//     the launcher to exit
//  3. The daemonized tunnel writes its PID file under the sessions directory
//  4. Manager.IsRunning probes that PID with signal 0, removing the file
//     once the process is gone
//  5. Manager.StopProfile signals the PID until it disappears
//
// # Concurrency
//
// No session state is held in memory, so independent invocations of the
// program observe each other's sessions through the filesystem. A Manager
// itself is not safe for concurrent use.
package vpn
