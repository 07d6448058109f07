package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jake-scott/nuki-checkin/internal/pkg/nukiapi"
)

var _locksCmdOpts struct {
	sort bool
	name string
	id   string
}

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "Query the smart locks of the account",
}

var locksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every smart lock",

	RunE: func(cmd *cobra.Command, args []string) error {
		api, cancel, err := newAPIClient()
		if err != nil {
			return err
		}
		defer cancel()

		locks, err := api.AllLocks()
		if err != nil {
			return err
		}

		if _locksCmdOpts.sort {
			sort.Sort(nukiapi.ByApartment(locks))
		}

		return renderLocks(os.Stdout, locks)
	},
}

var locksFindCmd = &cobra.Command{
	Use:   "find",
	Short: "Find a smart lock by name or ID",

	PreRunE: func(cmd *cobra.Command, args []string) error {
		if (_locksCmdOpts.name == "") == (_locksCmdOpts.id == "") {
			return fmt.Errorf("exactly one of --name or --id is required")
		}
		return nil
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		api, cancel, err := newAPIClient()
		if err != nil {
			return err
		}
		defer cancel()

		var lock *nukiapi.Smartlock
		if _locksCmdOpts.name != "" {
			lock, err = api.SmartlockByName(_locksCmdOpts.name)
		} else {
			lock, err = api.SmartlockByID(_locksCmdOpts.id)
		}
		if err != nil {
			return err
		}

		return renderLocks(os.Stdout, []nukiapi.Smartlock{*lock})
	},
}

func init() {
	locksListCmd.Flags().BoolVar(&_locksCmdOpts.sort, "sort", false, "sort by apartment number")
	locksFindCmd.Flags().StringVar(&_locksCmdOpts.name, "name", "", "case insensitive part of the lock name")
	locksFindCmd.Flags().StringVar(&_locksCmdOpts.id, "id", "", "smart lock ID")

	locksCmd.AddCommand(locksListCmd, locksFindCmd)
	rootCmd.AddCommand(locksCmd)
}
