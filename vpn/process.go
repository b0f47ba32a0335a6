// Package vpn provides tunnel session management functionality.
// This file contains the signal primitives used to probe and terminate
// tunnel processes known only by their PID.
package vpn

import (
	"errors"
	"fmt"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/yllada/shuttle-manager/common"
)

// signalFunc delivers sig to the process identified by pid.
type signalFunc func(pid int, sig syscall.Signal) error

// KillError reports a process that survived both termination phases.
type KillError struct {
	PID int
}

func (e *KillError) Error() string {
	return fmt.Sprintf("failed to kill process %d", e.PID)
}

// processExists probes pid with signal 0. A missing process is the only
// outcome reported as false; EPERM means the process exists but belongs to
// someone else.
func processExists(signal signalFunc, pid int) (bool, error) {
	err := signal(pid, 0)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, unix.ESRCH):
		return false, nil
	case errors.Is(err, unix.EPERM):
		return true, nil
	default:
		return false, err
	}
}

// Terminator ends a process with escalating signals: SIGTERM is repeated
// over GraceWindow, then SIGKILL over ForceWindow, one attempt every
// Interval including both ends of each window. The zero value signals with
// kill(2) and sleeps for real.
type Terminator struct {
	Interval    time.Duration
	GraceWindow time.Duration
	ForceWindow time.Duration

	signal signalFunc
	sleep  func(time.Duration)
}

// NewTerminator returns a Terminator using the default timings and the
// real kill(2) primitive.
func NewTerminator() *Terminator {
	return &Terminator{
		Interval:    common.KillInterval,
		GraceWindow: common.KillGraceWindow,
		ForceWindow: common.KillForceWindow,
		signal:      unix.Kill,
		sleep:       time.Sleep,
	}
}

// KillAndWait signals pid until it no longer exists. It returns nil as soon
// as a signal fails with ESRCH, a *KillError if the process outlives both
// windows, and any other signal error unchanged without retrying.
func (t *Terminator) KillAndWait(pid int) error {
	phases := []struct {
		sig    syscall.Signal
		window time.Duration
	}{
		{unix.SIGTERM, t.GraceWindow},
		{unix.SIGKILL, t.ForceWindow},
	}

	signal, sleep := t.signal, t.sleep
	if signal == nil {
		signal = unix.Kill
	}
	if sleep == nil {
		sleep = time.Sleep
	}

	interval := t.interval()
	for _, phase := range phases {
		for elapsed := time.Duration(0); elapsed <= phase.window; elapsed += interval {
			if err := signal(pid, phase.sig); err != nil {
				if errors.Is(err, unix.ESRCH) {
					common.LogDebug("Process %d is gone", pid)
					return nil
				}
				return err
			}
			sleep(interval)
		}
		common.LogDebug("Process %d survived %v for %v", pid, phase.sig, phase.window)
	}

	return &KillError{PID: pid}
}

// attempts returns how many signals KillAndWait sends before giving up.
func (t *Terminator) attempts() int {
	interval := t.interval()
	return int(t.GraceWindow/interval) + int(t.ForceWindow/interval) + 2
}

func (t *Terminator) interval() time.Duration {
	if t.Interval <= 0 {
		return common.KillInterval
	}
	return t.Interval
}
