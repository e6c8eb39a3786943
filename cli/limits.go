package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/doveaia/forkguard/forklimit"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var limitsJSON bool

// limitOptions is replaced in tests.
var limitOptions = func() forklimit.Options {
	return forklimit.Options{}
}

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Show the fork worker limit for this process",
	Long: `Compute the maximum number of fork workers this process may spawn.

The limit is 1 when the platform cannot fork or the process is classified as a
daemon (see 'forkguard detect'). Otherwise MAX_FORK_WORKERS is used when it
holds a positive integer, then the CPU affinity count. A limit of 0 means no
cap could be determined.`,
	Example: `  forkguard limits
  MAX_FORK_WORKERS=4 forkguard limits --json`,
	RunE: runLimits,
}

func init() {
	limitsCmd.Flags().BoolVarP(&limitsJSON, "json", "j", false, "Output in JSON format")
}

func runLimits(cmd *cobra.Command, args []string) error {
	limits := computeLimits()

	if limitsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(limits)
	}

	fmt.Fprint(cmd.OutOrStdout(), renderLimits(limits))
	return nil
}

// computeLimits builds the limiter inputs from config and runs it once.
func computeLimits() forklimit.Limits {
	opts := limitOptions()
	if opts.Classify == nil {
		opts.Classify = configuredDetector().Classify
	}
	if opts.EnvVar == "" && cfg != nil {
		opts.EnvVar = cfg.Fork.EnvVar
	}
	opts.Log = logrus.WithField("component", "forklimit")
	return forklimit.Compute(opts)
}

func renderLimits(l forklimit.Limits) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Fork worker limits") + "\n\n")

	workers := strconv.Itoa(l.MaxForkWorkers)
	if l.IsUnbounded() {
		workers = "unbounded"
	}
	b.WriteString(row("Max fork workers:", workers))
	b.WriteString(row("Source:", string(l.Source)))

	fork := interactiveStyle.Render("enabled")
	if !l.ForkEnabled() {
		fork = daemonStyle.Render("disabled")
	}
	b.WriteString(row("Forking:", fork))

	if l.Daemon != nil {
		b.WriteString(row("Classification:", fmt.Sprintf("%s (%s)", l.Daemon.Verdict, l.Daemon.Reason)))
	}
	return b.String()
}
