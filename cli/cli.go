// Package cli provides the command-line interface for shuttle-manager.
// Every operation of the session manager is exposed as a cobra subcommand.
package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/yllada/shuttle-manager/common"
	"github.com/yllada/shuttle-manager/vpn"
)

// Process exit codes.
const (
	ExitOK = 0
	// ExitFailure covers usage errors and a negative is-running answer.
	ExitFailure = 1
	// ExitProfileError is returned when a profile operation fails.
	ExitProfileError = 2
	// ExitSetupError is returned when configuration can't be loaded or
	// saved.
	ExitSetupError = 3
)

// logDirName is the subdirectory of the config dir holding log files.
const logDirName = "logs"

// ExitError carries the exit code of a failed command. A nil Err exits
// silently.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitError maps a manager error to its exit code.
func exitError(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	var profileErr *vpn.ProfileError
	if errors.As(err, &profileErr) {
		return &ExitError{Code: ExitProfileError, Err: err}
	}
	return &ExitError{Code: ExitSetupError, Err: err}
}

// CLI represents the command-line interface.
type CLI struct {
	version string
	stdout  io.Writer
	stderr  io.Writer

	// Global flags.
	configDir string
	runDir    string
	verbose   bool
	logFile   bool

	manager *vpn.Manager
}

// New creates a new CLI instance writing to the given streams.
func New(version string, stdout, stderr io.Writer) *CLI {
	return &CLI{
		version: version,
		stdout:  stdout,
		stderr:  stderr,
	}
}

// Execute runs the command line in args and returns the process exit code.
func (c *CLI) Execute(args []string) int {
	root := c.NewRootCommand()
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return ExitOK
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintf(c.stderr, "Error: %v\n", exitErr.Err)
		}
		return exitErr.Code
	}

	fmt.Fprintf(c.stderr, "Error: %v\n", err)
	fmt.Fprintf(c.stderr, "Run '%s --help' for usage.\n", root.CommandPath())
	return ExitFailure
}

// NewRootCommand builds the command tree.
func (c *CLI) NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           common.AppName,
		Short:         "Manage multiple sshuttle VPN sessions",
		Version:       c.version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := common.LevelWarn
			if c.verbose {
				level = common.LevelDebug
			}
			common.GetLogger().SetOutput(c.stderr)
			return common.InitLogger(common.LogConfig{Level: level})
		},
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)
	root.SetVersionTemplate("{{printf \"%s %s\\n\" .Name .Version}}")

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configDir, "config", "C", "", "configuration directory (default $XDG_CONFIG_HOME/shuttle-manager)")
	flags.StringVar(&c.runDir, "rundir", "", "runtime directory for session PID files (default in the system temp dir)")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVar(&c.logFile, "log-file", false, "also log to a rotating file in the configuration directory")

	root.AddCommand(
		c.newListCommand(),
		c.newShowCommand(),
		c.newCreateCommand(),
		c.newUpdateCommand(),
		c.newDeleteCommand(),
		c.newStartCommand(),
		c.newStopCommand(),
		c.newRestartCommand(),
		c.newIsRunningCommand(),
		c.newGetCommandCommand(),
	)
	return root
}

// loadManager creates the session manager and loads its configuration on
// first use.
func (c *CLI) loadManager() (*vpn.Manager, error) {
	if c.manager != nil {
		return c.manager, nil
	}

	manager, err := vpn.NewManager(vpn.Options{
		ConfigDir: c.configDir,
		RunDir:    c.runDir,
		Stdout:    c.stdout,
	})
	if err != nil {
		return nil, &ExitError{Code: ExitSetupError, Err: err}
	}

	if c.logFile {
		logDir := filepath.Join(manager.ConfigDir(), logDirName)
		if err := common.GetLogger().EnableFileLogging(logDir); err != nil {
			common.LogWarn("Could not enable file logging: %v", err)
		}
	}

	if err := manager.LoadConfig(); err != nil {
		return nil, &ExitError{Code: ExitSetupError, Err: err}
	}

	c.manager = manager
	return manager, nil
}

// println writes a line of command output.
func (c *CLI) println(args ...any) {
	fmt.Fprintln(c.stdout, args...)
}
