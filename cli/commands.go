package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/yllada/shuttle-manager/profile"
)

func (c *CLI) newListCommand() *cobra.Command {
	var (
		verbose bool
		format  string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List defined profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isListFormat(format) {
				return errInvalidFormat(format)
			}
			manager, err := c.loadManager()
			if err != nil {
				return err
			}
			output, err := newListing(manager, c.stdout).Output(format, verbose)
			if err != nil {
				return err
			}
			_, err = c.stdout.Write([]byte(output))
			return err
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose-list", "V", false, "show every profile field")
	cmd.Flags().StringVarP(&format, "format", "f", formatTable,
		"listing format ("+strings.Join(listFormats(), ", ")+")")
	cobra.CheckErr(cmd.RegisterFlagCompletionFunc("format", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return listFormats(), cobra.ShellCompDirectiveNoFileComp
	}))
	return cmd
}

func (c *CLI) newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "show NAME",
		Short:             "Show profile configuration",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: c.completeProfiles(anyState),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := c.loadManager()
			if err != nil {
				return err
			}
			details, err := newListing(manager, c.stdout).Details(args[0])
			if err != nil {
				return exitError(err)
			}
			c.println(details)
			return nil
		},
	}
}

// profileFlags holds the profile fields settable from the command line.
type profileFlags struct {
	remote         string
	autoHosts      bool
	autoNets       bool
	dns            bool
	excludeSubnets []string
	seedHosts      []string
	extraOpts      string
}

func (f *profileFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.remote, "remote", "r", "", "remote host to connect to")
	flags.BoolVarP(&f.autoHosts, "auto-hosts", "H", false, "automatically update /etc/hosts with hosts from VPN")
	flags.BoolVarP(&f.autoNets, "auto-nets", "N", false, "automatically route additional nets from server")
	flags.BoolVarP(&f.dns, "dns", "d", false, "forward DNS queries through the VPN")
	flags.StringSliceVarP(&f.excludeSubnets, "exclude-subnets", "x", nil, "exclude subnets from VPN forward")
	flags.StringSliceVarP(&f.seedHosts, "seed-hosts", "S", nil, "hosts to seed to auto-hosts")
	flags.StringVar(&f.extraOpts, "extra-opts", "", "extra arguments to pass to sshuttle command line")
}

// details returns the fields set on the command line, keyed by profile
// field. Subnets are included when given.
func (f *profileFlags) details(cmd *cobra.Command, subnets []string) map[string]any {
	details := make(map[string]any)
	if len(subnets) > 0 {
		details[profile.FieldSubnets] = subnets
	}

	changed := cmd.Flags().Changed
	if changed("remote") {
		details[profile.FieldRemote] = f.remote
	}
	if changed("auto-hosts") {
		details[profile.FieldAutoHosts] = f.autoHosts
	}
	if changed("auto-nets") {
		details[profile.FieldAutoNets] = f.autoNets
	}
	if changed("dns") {
		details[profile.FieldDNS] = f.dns
	}
	if changed("exclude-subnets") {
		details[profile.FieldExcludeSubnets] = f.excludeSubnets
	}
	if changed("seed-hosts") {
		details[profile.FieldSeedHosts] = f.seedHosts
	}
	if changed("extra-opts") {
		details[profile.FieldExtraOpts] = strings.Fields(f.extraOpts)
	}
	return details
}

func (c *CLI) newCreateCommand() *cobra.Command {
	var fields profileFlags

	cmd := &cobra.Command{
		Use:   "create NAME SUBNET...",
		Short: "Define a new profile",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := c.loadManager()
			if err != nil {
				return err
			}
			return exitError(manager.CreateProfile(args[0], fields.details(cmd, args[1:])))
		},
	}
	fields.register(cmd)
	return cmd
}

func (c *CLI) newUpdateCommand() *cobra.Command {
	var fields profileFlags

	cmd := &cobra.Command{
		Use:               "update NAME [SUBNET...]",
		Short:             "Change fields of an existing profile",
		Long:              "Change fields of an existing profile. Subnets, when given, replace the current ones; running sessions pick up changes on restart.",
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: c.completeProfiles(anyState),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := c.loadManager()
			if err != nil {
				return err
			}
			return exitError(manager.UpdateProfile(args[0], fields.details(cmd, args[1:])))
		},
	}
	fields.register(cmd)
	return cmd
}

func (c *CLI) newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "delete NAME",
		Short:             "Delete an existing profile",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: c.completeProfiles(anyState),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := c.loadManager()
			if err != nil {
				return err
			}
			return exitError(manager.RemoveProfile(args[0]))
		},
	}
}

func (c *CLI) newStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "start NAME [ARGS...]",
		Short:             "Start a VPN session for a profile",
		Long:              "Start a VPN session for a profile. Arguments after the name are passed to the sshuttle command line.",
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: c.completeProfiles(onlyStopped),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := c.loadManager()
			if err != nil {
				return err
			}
			if err := manager.StartProfile(args[0], args[1:]); err != nil {
				return exitError(err)
			}
			c.println("Profile started")
			return nil
		},
	}
	// Flags after the profile name belong to sshuttle.
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func (c *CLI) newStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "stop NAME",
		Short:             "Stop a running VPN session for a profile",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: c.completeProfiles(onlyRunning),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := c.loadManager()
			if err != nil {
				return err
			}
			if err := manager.StopProfile(args[0]); err != nil {
				return exitError(err)
			}
			c.println("Profile stopped")
			return nil
		},
	}
}

func (c *CLI) newRestartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "restart NAME [ARGS...]",
		Short:             "Restart a VPN session for a profile",
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: c.completeProfiles(onlyRunning),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := c.loadManager()
			if err != nil {
				return err
			}
			if err := manager.RestartProfile(args[0], args[1:]); err != nil {
				return exitError(err)
			}
			c.println("Profile restarted")
			return nil
		},
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func (c *CLI) newIsRunningCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "is-running NAME",
		Short:             "Return whether a profile is running",
		Long:              "Exit with status 0 if the profile's session is running, 1 otherwise.",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: c.completeProfiles(anyState),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := c.loadManager()
			if err != nil {
				return err
			}
			if _, err := manager.Profile(args[0]); err != nil {
				return exitError(err)
			}
			if !manager.IsRunning(args[0]) {
				return &ExitError{Code: ExitFailure}
			}
			return nil
		},
	}
}

func (c *CLI) newGetCommandCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "get-command NAME",
		Short:             "Print the sshuttle command for a profile",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: c.completeProfiles(anyState),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := c.loadManager()
			if err != nil {
				return err
			}
			cmdline, err := manager.Cmdline(args[0], nil)
			if err != nil {
				return exitError(err)
			}
			c.println(strings.Join(cmdline, " "))
			return nil
		},
	}
}
