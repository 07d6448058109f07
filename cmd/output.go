package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/go-openapi/swag"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jake-scott/nuki-checkin/internal/pkg/nukiapi"
)

// render writes data in the configured output format.  text is called with a
// column aligned writer for the human readable form.
func render(w io.Writer, format string, data interface{}, text func(tw io.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "    ")
		return errors.Wrap(enc.Encode(data), "writing JSON")

	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return errors.Wrap(err, "writing YAML")
		}
		return enc.Close()

	case "text":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		text(tw)
		return tw.Flush()
	}

	return fmt.Errorf("bad output format: [%s]", format)
}

func outputFormat() string {
	return viper.GetString("output")
}

func lockMaps(locks []nukiapi.Smartlock) []map[string]interface{} {
	out := make([]map[string]interface{}, len(locks))
	for i, l := range locks {
		out[i] = l.ToMap()
	}
	return out
}

func pinMaps(pins []nukiapi.Pin) []map[string]interface{} {
	out := make([]map[string]interface{}, len(pins))
	for i, p := range pins {
		m := p.ToMap()
		delete(m, "raw")
		out[i] = m
	}
	return out
}

func renderLocks(w io.Writer, locks []nukiapi.Smartlock) error {
	return render(w, outputFormat(), lockMaps(locks), func(tw io.Writer) {
		fmt.Fprintln(tw, "ID\tNAME")
		for _, l := range locks {
			fmt.Fprintf(tw, "%s\t%s\n", l.ID, l.Name)
		}
	})
}

func writePinRows(tw io.Writer, pins []nukiapi.Pin) {
	for _, p := range pins {
		lastActive := "never"
		if p.LastActiveDate != nil {
			lastActive = nukiapi.FormatAPITime(*p.LastActiveDate)
		}

		until := "-"
		if p.ExtendedInfos {
			until = nukiapi.FormatAPITime(swag.TimeValue(p.AllowedUntilDate))
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%d\t%s\t%s\n",
			p.ID, p.Name, p.Code, p.Enabled, p.LockCount, lastActive, until)
	}
}

const pinHeader = "ID\tNAME\tCODE\tENABLED\tLOCKS\tLAST ACTIVE\tUNTIL"

func renderPins(w io.Writer, pins []nukiapi.Pin) error {
	return render(w, outputFormat(), pinMaps(pins), func(tw io.Writer) {
		fmt.Fprintln(tw, pinHeader)
		writePinRows(tw, pins)
	})
}

// renderPinsByLock prints the pins of several locks, keyed by lock ID.  Pins
// keep the order the API listed them in.
func renderPinsByLock(w io.Writer, locks []nukiapi.Smartlock, byLock map[string][]nukiapi.Pin) error {
	data := map[string][]map[string]interface{}{}
	for id, pins := range byLock {
		data[id] = pinMaps(pins)
	}

	return render(w, outputFormat(), data, func(tw io.Writer) {
		for i, l := range locks {
			if i > 0 {
				fmt.Fprintln(tw)
			}
			fmt.Fprintf(tw, "%s (%s)\n", l.Name, l.ID)
			fmt.Fprintln(tw, pinHeader)
			writePinRows(tw, byLock[l.ID])
		}
	})
}
