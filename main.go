// Package main provides the entry point for shuttle-manager.
// shuttle-manager keeps named sshuttle profiles and starts, stops and
// tracks one tunnel session per profile.
//
// Usage:
//
//	shuttle-manager [flags] COMMAND [args]
//
// Environment:
//
//	The sshuttle executable must be installed, or configured through the
//	"executable" option in config.yaml.
package main

import (
	"fmt"
	"os"

	"github.com/yllada/shuttle-manager/cli"
	"github.com/yllada/shuttle-manager/common"
)

// Build-time variables injected via ldflags (-X main.appVersion=x.y.z)
// Default values are used for local development builds
var (
	appVersion = "dev"
	buildTime  = "unknown"
	commitSHA  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	defer common.CloseLogger()

	return cli.New(versionString(), os.Stdout, os.Stderr).Execute(os.Args[1:])
}

// versionString returns the version with build details when available.
func versionString() string {
	if buildTime == "unknown" {
		return appVersion
	}
	return fmt.Sprintf("%s (build %s, commit %s)", appVersion, buildTime, commitSHA)
}
