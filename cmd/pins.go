package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/nuki-checkin/internal/pkg/logging"
	"github.com/jake-scott/nuki-checkin/internal/pkg/nukiapi"
)

var _pinsCmdOpts struct {
	lockID   string
	lockName string
	allLocks bool

	pinID   string
	pinName string

	begin    string
	end      string
	checkIn  string
	checkOut string
	code     string
	dryRun   bool

	set []string
}

var pinsCmd = &cobra.Command{
	Use:   "pins",
	Short: "Manage the keypad codes and other authorizations of a lock",
}

var pinsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the authorizations of one lock, or of every lock",

	RunE: func(cmd *cobra.Command, args []string) error {
		api, cancel, err := newAPIClient()
		if err != nil {
			return err
		}
		defer cancel()

		if _pinsCmdOpts.allLocks {
			locks, err := api.AllLocks()
			if err != nil {
				return err
			}

			byLock, err := nukiapi.CollectPins(api, locks, viper.GetInt("nuki.max-concurrent"))
			if err != nil {
				return err
			}

			return renderPinsByLock(os.Stdout, locks, byLock)
		}

		lockID, err := resolveLock(api)
		if err != nil {
			return err
		}

		pins, err := api.AllPins(lockID)
		if err != nil {
			return err
		}

		return renderPins(os.Stdout, pins)
	},
}

var pinsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the authorization with an exact name",

	PreRunE: func(cmd *cobra.Command, args []string) error {
		if _pinsCmdOpts.pinName == "" {
			return fmt.Errorf("--name is required")
		}
		return nil
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		api, cancel, err := newAPIClient()
		if err != nil {
			return err
		}
		defer cancel()

		lockID, err := resolveLock(api)
		if err != nil {
			return err
		}

		pin, err := api.GetPin(lockID, _pinsCmdOpts.pinName)
		if err != nil {
			return err
		}

		return renderPins(os.Stdout, []nukiapi.Pin{*pin})
	},
}

var pinsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create a keypad code valid from check-in to check-out",

	RunE: func(cmd *cobra.Command, args []string) error {
		api, cancel, err := newAPIClient()
		if err != nil {
			return err
		}
		defer cancel()

		lockID, err := resolveLock(api)
		if err != nil {
			return err
		}

		req, err := keyRequestFromFlags(lockID)
		if err != nil {
			return err
		}

		code, err := api.SetKey(req)
		if err != nil {
			if code != "" {
				logging.Logger(nil).WithField("pin", code).Error("pin was not stored on the lock")
			}
			return err
		}

		return renderSetKey(os.Stdout, req, code)
	},
}

var pinsDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete an authorization",

	RunE: func(cmd *cobra.Command, args []string) error {
		return withPin(func(api nukiapi.WebAPI, lockID, pinID string) error {
			return api.DeletePin(lockID, pinID)
		})
	},
}

var pinsDeactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Disable an authorization without deleting it",

	RunE: func(cmd *cobra.Command, args []string) error {
		return withPin(func(api nukiapi.WebAPI, lockID, pinID string) error {
			return api.DeactivatePin(lockID, pinID)
		})
	},
}

var pinsUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Change fields of an authorization",
	Example: "  nuki-checkin pins update --lock 17 --id 42 --set name=guest --set enabled=false " +
		"--set allowedUntilDate='\"2021-03-08T10:00:00.000Z\"'",

	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := parseSetValues(_pinsCmdOpts.set)
		if err != nil {
			return err
		}
		if len(values) == 0 {
			return fmt.Errorf("nothing to update, use --set key=value")
		}

		return withPin(func(api nukiapi.WebAPI, lockID, pinID string) error {
			return api.UpdatePin(lockID, pinID, values)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{pinsListCmd, pinsGetCmd, pinsSetCmd, pinsDeleteCmd, pinsDeactivateCmd, pinsUpdateCmd} {
		c.Flags().StringVar(&_pinsCmdOpts.lockID, "lock", "", "smart lock ID")
		c.Flags().StringVar(&_pinsCmdOpts.lockName, "lock-name", "", "case insensitive part of the smart lock name, instead of --lock")
	}

	pinsListCmd.Flags().BoolVar(&_pinsCmdOpts.allLocks, "all-locks", false, "list the authorizations of every lock")

	pinsGetCmd.Flags().StringVar(&_pinsCmdOpts.pinName, "name", "", "exact name of the authorization")

	pinsSetCmd.Flags().StringVar(&_pinsCmdOpts.begin, "begin", "", "first day of the stay, YYYY-MM-DD")
	pinsSetCmd.Flags().StringVar(&_pinsCmdOpts.end, "end", "", "last day of the stay, YYYY-MM-DD")
	pinsSetCmd.Flags().StringVar(&_pinsCmdOpts.checkIn, "checkin", "", "check-in time of day, HH:MM[:SS]")
	pinsSetCmd.Flags().StringVar(&_pinsCmdOpts.checkOut, "checkout", "", "check-out time of day, HH:MM[:SS]")
	pinsSetCmd.Flags().StringVar(&_pinsCmdOpts.pinName, "name", "", "name of the new authorization")
	pinsSetCmd.Flags().StringVar(&_pinsCmdOpts.code, "pin", "", "six digit code, generated if not set")
	pinsSetCmd.Flags().BoolVar(&_pinsCmdOpts.dryRun, "dry-run", false, "log the request instead of sending it")
	for _, f := range []string{"begin", "end", "checkin", "checkout"} {
		errPanic(pinsSetCmd.MarkFlagRequired(f))
	}

	for _, c := range []*cobra.Command{pinsDeleteCmd, pinsDeactivateCmd, pinsUpdateCmd} {
		c.Flags().StringVar(&_pinsCmdOpts.pinID, "id", "", "authorization ID")
		c.Flags().StringVar(&_pinsCmdOpts.pinName, "name", "", "exact authorization name, instead of --id")
	}

	pinsUpdateCmd.Flags().StringArrayVar(&_pinsCmdOpts.set, "set", nil, "field=value to change, values are JSON or plain strings (repeatable)")

	pinsCmd.AddCommand(pinsListCmd, pinsGetCmd, pinsSetCmd, pinsDeleteCmd, pinsDeactivateCmd, pinsUpdateCmd)
	rootCmd.AddCommand(pinsCmd)
}

// resolveLock returns the lock ID from --lock, or looks up --lock-name
func resolveLock(api nukiapi.WebAPI) (string, error) {
	switch {
	case _pinsCmdOpts.lockID != "" && _pinsCmdOpts.lockName != "":
		return "", fmt.Errorf("--lock and --lock-name are mutually exclusive")
	case _pinsCmdOpts.lockID != "":
		return _pinsCmdOpts.lockID, nil
	case _pinsCmdOpts.lockName != "":
		lock, err := api.SmartlockByName(_pinsCmdOpts.lockName)
		if err != nil {
			return "", err
		}
		logging.Logger(nil).Debugf("using %s", lock)
		return lock.ID, nil
	}

	return "", fmt.Errorf("one of --lock or --lock-name is required")
}

// resolvePin returns the authorization ID from --id, or looks up --name
func resolvePin(api nukiapi.WebAPI, lockID string) (string, error) {
	switch {
	case _pinsCmdOpts.pinID != "" && _pinsCmdOpts.pinName != "":
		return "", fmt.Errorf("--id and --name are mutually exclusive")
	case _pinsCmdOpts.pinID != "":
		return _pinsCmdOpts.pinID, nil
	case _pinsCmdOpts.pinName != "":
		pin, err := api.GetPin(lockID, _pinsCmdOpts.pinName)
		if err != nil {
			return "", err
		}
		return pin.ID, nil
	}

	return "", fmt.Errorf("one of --id or --name is required")
}

func withPin(fn func(api nukiapi.WebAPI, lockID, pinID string) error) error {
	api, cancel, err := newAPIClient()
	if err != nil {
		return err
	}
	defer cancel()

	lockID, err := resolveLock(api)
	if err != nil {
		return err
	}

	pinID, err := resolvePin(api, lockID)
	if err != nil {
		return err
	}

	return fn(api, lockID, pinID)
}

func keyRequestFromFlags(lockID string) (nukiapi.KeyRequest, error) {
	req := nukiapi.KeyRequest{
		LockID: lockID,
		Name:   _pinsCmdOpts.pinName,
		Pin:    _pinsCmdOpts.code,
		DryRun: _pinsCmdOpts.dryRun,
	}

	var err error
	if req.BeginDate, err = nukiapi.ParseDate(_pinsCmdOpts.begin); err != nil {
		return req, err
	}
	if req.EndDate, err = nukiapi.ParseDate(_pinsCmdOpts.end); err != nil {
		return req, err
	}
	if req.CheckIn, err = nukiapi.ParseTimeOfDay(_pinsCmdOpts.checkIn); err != nil {
		return req, err
	}
	if req.CheckOut, err = nukiapi.ParseTimeOfDay(_pinsCmdOpts.checkOut); err != nil {
		return req, err
	}

	if req.EndDate.Before(req.BeginDate) {
		return req, fmt.Errorf("--end %s is before --begin %s", _pinsCmdOpts.end, _pinsCmdOpts.begin)
	}

	return req, nil
}

type setKeyResult struct {
	LockID string `json:"lockId" yaml:"lockId"`
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
	Pin    string `json:"pin" yaml:"pin"`
	From   string `json:"allowedFromDate" yaml:"allowedFromDate"`
	Until  string `json:"allowedUntilDate" yaml:"allowedUntilDate"`
	DryRun bool   `json:"dryRun" yaml:"dryRun"`
}

func renderSetKey(w io.Writer, req nukiapi.KeyRequest, code string) error {
	res := setKeyResult{
		LockID: req.LockID,
		Name:   req.PinName(),
		Pin:    code,
		From:   nukiapi.FormatAPITime(nukiapi.Combine(req.BeginDate, req.CheckIn)),
		Until:  nukiapi.FormatAPITime(nukiapi.Combine(req.EndDate, req.CheckOut)),
		DryRun: req.DryRun,
	}

	return render(w, outputFormat(), res, func(tw io.Writer) {
		fmt.Fprintf(tw, "pin:\t%s\n", res.Pin)
		fmt.Fprintf(tw, "lock:\t%s\n", res.LockID)
		fmt.Fprintf(tw, "valid:\t%s - %s\n", res.From, res.Until)
		if res.DryRun {
			fmt.Fprintln(tw, "dry run:\tnothing was sent")
		}
	})
}

// parseSetValues turns key=value pairs into an update payload.  Values that
// parse as JSON keep their type, anything else is sent as a string.
func parseSetValues(pairs []string) (map[string]interface{}, error) {
	values := map[string]interface{}{}

	for _, pair := range pairs {
		i := strings.Index(pair, "=")
		if i < 1 {
			return nil, fmt.Errorf("bad --set value [%s], want key=value", pair)
		}

		key, raw := pair[:i], pair[i+1:]

		var v interface{}
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		values[key] = v
	}

	return values, nil
}
