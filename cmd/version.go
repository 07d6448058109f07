package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jake-scott/nuki-checkin/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display the version number of the tool",

	RunE: func(cmd *cobra.Command, args []string) error {
		return doVersion(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

type versionResult struct {
	Version string `json:"version" yaml:"version"`
}

func doVersion(w io.Writer) error {
	v := versionResult{Version: version.Version}

	return render(w, outputFormat(), v, func(tw io.Writer) {
		fmt.Fprintf(tw, "nuki-checkin version %s\n", v.Version)
	})
}
