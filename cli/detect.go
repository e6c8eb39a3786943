package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/doveaia/forkguard/procenv"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var detectJSON bool

// newDetector and parentName are replaced in tests.
var (
	newDetector = procenv.NewDetector
	parentName  = lookupProcessName
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Classify this process as daemon or interactive",
	Long: `Report whether forkguard considers the current process a daemon, and which
check decided it:

  init-parent       re-parented to init (parent pid 1)
  session-leader    session id equals process id
  not-terminal      standard output is a pipe, file or /dev/null
  no-descriptor     standard output has no file descriptor (assumed daemon)
  descriptor-error  standard output descriptor is invalid (assumed daemon)
  terminal          standard output is an interactive terminal
  no-stdout         standard output is unavailable`,
	Example: `  # Human-readable classification
  forkguard detect

  # JSON for scripts
  forkguard detect --json`,
	RunE: runDetect,
}

func init() {
	detectCmd.Flags().BoolVarP(&detectJSON, "json", "j", false, "Output in JSON format")
}

// detectOutput is the JSON shape of the detect command.
type detectOutput struct {
	Daemon     bool   `json:"daemon"`
	ParentName string `json:"parent_name,omitempty"`
	Error      string `json:"error,omitempty"`
	procenv.Classification
}

func runDetect(cmd *cobra.Command, args []string) error {
	d := configuredDetector()
	c := d.Classify()

	out := detectOutput{
		Daemon:         c.IsDaemon(),
		ParentName:     parentName(c.PPID),
		Classification: c,
	}
	if c.Err != nil {
		out.Error = c.Err.Error()
	}

	if detectJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprint(cmd.OutOrStdout(), renderClassification(out))
	return nil
}

// configuredDetector applies the config to a detector for this process.
func configuredDetector() *procenv.Detector {
	d := newDetector()
	if cfg != nil && cfg.Fork.InitPID > 0 {
		d.InitPID = cfg.Fork.InitPID
	}
	d.Log = logrus.WithField("component", "detector")
	return d
}

func renderClassification(out detectOutput) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Process classification") + "\n\n")

	verdict := interactiveStyle.Render("interactive")
	if out.Daemon {
		verdict = daemonStyle.Render("daemon")
	}
	if out.Verdict == procenv.Indeterminate {
		verdict += dimStyle.Render(" (assumed, terminal state unknown)")
	}
	b.WriteString(row("Verdict:", verdict))
	b.WriteString(row("Reason:", string(out.Reason)))
	b.WriteString(row("PID:", strconv.Itoa(out.PID)))

	parent := strconv.Itoa(out.PPID)
	if out.ParentName != "" {
		parent += dimStyle.Render(" (" + out.ParentName + ")")
	}
	b.WriteString(row("Parent PID:", parent))

	sid := "unsupported"
	if out.SID >= 0 {
		sid = strconv.Itoa(out.SID)
	}
	b.WriteString(row("Session ID:", sid))

	if out.Error != "" {
		b.WriteString(row("Error:", out.Error))
	}
	return b.String()
}

// lookupProcessName returns the executable name of pid, or "" if unknown.
func lookupProcessName(pid int) string {
	if pid <= 0 {
		return ""
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		logrus.WithError(err).WithField("pid", pid).Debug("parent process lookup failed")
		return ""
	}
	name, err := p.Name()
	if err != nil {
		logrus.WithError(err).WithField("pid", pid).Debug("parent process name unavailable")
		return ""
	}
	return name
}
