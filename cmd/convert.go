package cmd

import (
	"fmt"
	"strings"

	"github.com/Mohsinsiddi/w3fund/internal/ui"
	"github.com/Mohsinsiddi/w3fund/internal/units"
	"github.com/spf13/cobra"
)

const gweiDecimals = 9

var convertCmd = &cobra.Command{
	Use:   "convert <amount> [unit]",
	Short: "Convert between ETH, Gwei and Wei",
	Long: `Convert between Ethereum denomination units.

Units: eth (default), gwei, wei, raw
"raw" takes an integer as the contract returns it and applies the same
magnitude correction the campaign list applies.

Examples:
  w3fund convert 1.5                 # → gwei + wei
  w3fund convert 50 gwei             # → eth + wei
  w3fund convert 1000000000 wei      # → eth + gwei
  w3fund convert 2000000000000000000000000000000000000000000 raw`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		unit := "eth"
		if len(args) > 1 {
			unit = strings.ToLower(args[1])
		}
		pairs, err := conversion(args[0], unit)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.KeyValueBlock("Unit Conversion", pairs))
		return nil
	},
}

// conversion returns the rows convert prints.
func conversion(amount, unit string) ([][2]string, error) {
	var scale int
	switch unit {
	case "eth", "ether":
		scale = units.EtherDecimals
	case "gwei":
		scale = gweiDecimals
	case "wei":
		scale = 0
	case "raw":
		raw, err := units.ParseUnits(amount, 0)
		if err != nil {
			return nil, err
		}
		corrected := "no"
		if units.IsInflated(raw) {
			corrected = "yes, divided by 10^18"
		}
		return [][2]string{
			{"Input", raw.String()},
			{"Corrected", corrected},
			{"ETH", units.FormatMagnitude(raw) + " ETH"},
		}, nil
	default:
		return nil, fmt.Errorf("unknown unit %q: use eth, gwei, wei or raw", unit)
	}

	// Scaling by the unit's decimals always lands on wei.
	wei, err := units.ParseUnits(amount, scale)
	if err != nil {
		return nil, err
	}
	return [][2]string{
		{"Input", strings.TrimSpace(amount) + " " + unit},
		{"ETH", units.FormatEther(wei) + " ETH"},
		{"Gwei", units.ToDecimalString(wei, gweiDecimals) + " gwei"},
		{"Wei", wei.String() + " wei"},
		{"Hex", "0x" + wei.Text(16)},
	}, nil
}
