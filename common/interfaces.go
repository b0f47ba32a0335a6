// Package common provides shared constants, types, and utilities
// used across shuttle-manager.
package common

// SessionStatus represents the state of a profile's tunnel session.
type SessionStatus int

const (
	StatusStopped SessionStatus = iota
	StatusActive
)

// SessionStatusOf maps a running flag to its status.
func SessionStatusOf(running bool) SessionStatus {
	if running {
		return StatusActive
	}
	return StatusStopped
}

// String returns the status label shown to users.
func (s SessionStatus) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}
