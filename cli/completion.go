package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// stateFilter selects profiles by session state for completion.
type stateFilter int

const (
	anyState stateFilter = iota
	onlyRunning
	onlyStopped
)

func (f stateFilter) match(running bool) bool {
	switch f {
	case onlyRunning:
		return running
	case onlyStopped:
		return !running
	default:
		return true
	}
}

// completeProfiles completes the profile name argument with the names that
// start with the typed prefix and match filter.
func (c *CLI) completeProfiles(filter stateFilter) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		manager, err := c.loadManager()
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}

		var names []string
		for _, name := range manager.ProfileNames() {
			if !strings.HasPrefix(name, toComplete) {
				continue
			}
			if filter == anyState || filter.match(manager.IsRunning(name)) {
				names = append(names, name)
			}
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	}
}
