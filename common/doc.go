// Package common provides shared constants, errors, logging, and path
// helpers used throughout shuttle-manager.
//
// This package serves as the foundation for cross-cutting concerns:
//
//   - Constants: Application name, file names, default executable and
//     termination timings
//   - Errors: Sentinel errors for consistent error handling across packages
//   - Logger: Leveled logging to stderr with an optional rotating log file
//   - Utils: Configuration and runtime directory resolution
//
// # Usage
//
//	import "github.com/yllada/shuttle-manager/common"
//
//	common.LogInfo("Starting profile %s", name)
//
//	if errors.Is(err, common.ErrProfileNotFound) {
//	    // Handle missing profile
//	}
package common
