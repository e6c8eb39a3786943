// Package forklimit computes how many fork workers the process may spawn.
//
// The limit is computed once, at startup, by Compute or Detect and handed to
// whatever runs the workers. It is a plain value and never changes afterwards.
package forklimit

import (
	"os"
	"strconv"
	"strings"

	"github.com/doveaia/forkguard/procenv"
	"github.com/sirupsen/logrus"
)

const (
	// EnvMaxForkWorkers overrides the CPU affinity derived limit
	EnvMaxForkWorkers = "MAX_FORK_WORKERS"
	// Unbounded is the MaxForkWorkers value meaning "no cap from this package"
	Unbounded = 0
)

// Source names where a limit came from.
type Source string

const (
	SourceForkUnsupported Source = "fork-unsupported"
	SourceDaemon          Source = "daemon"
	SourceEnv             Source = "env"
	SourceCPUAffinity     Source = "cpu-affinity"
	SourceUnbounded       Source = "unbounded"
)

// Limits is the resolved fork worker configuration.
type Limits struct {
	MaxForkWorkers int    `json:"max_fork_workers"`
	Source         Source `json:"source"`
	// Daemon is the classification consulted, nil when forking is unsupported.
	Daemon *procenv.Classification `json:"daemon,omitempty"`
}

// ForkEnabled reports whether more than one worker may be forked.
func (l Limits) ForkEnabled() bool {
	return l.MaxForkWorkers != 1
}

// IsUnbounded reports whether no explicit cap could be determined.
func (l Limits) IsUnbounded() bool {
	return l.MaxForkWorkers == Unbounded
}

// Workers clamps a requested worker count to the limit. Requests below one
// are raised to one.
func (l Limits) Workers(requested int) int {
	if requested < 1 {
		requested = 1
	}
	if !l.IsUnbounded() && requested > l.MaxForkWorkers {
		return l.MaxForkWorkers
	}
	return requested
}

// Options supplies the inputs of Compute. Nil fields use the running process.
type Options struct {
	// EnvVar is the override variable name, EnvMaxForkWorkers if empty.
	EnvVar    string
	LookupEnv func(key string) (string, bool)

	CanFork     func() bool
	Classify    func() procenv.Classification
	CPUAffinity func() (int, error)

	Log logrus.FieldLogger
}

// Detect computes the limits of the running process.
func Detect() Limits {
	return Compute(Options{})
}

// Compute resolves the fork worker limit. Forking is disabled (limit 1) when
// the platform cannot fork or the process is classified as a daemon.
// Otherwise the environment override wins, then the CPU affinity count.
func Compute(opts Options) Limits {
	opts.setDefaults()
	log := opts.Log

	if !opts.CanFork() {
		log.WithField("source", SourceForkUnsupported).Debug("fork disabled, max fork workers: 1")
		return Limits{MaxForkWorkers: 1, Source: SourceForkUnsupported}
	}

	c := opts.Classify()
	if c.IsDaemon() {
		log.WithFields(logrus.Fields{
			"source": SourceDaemon,
			"reason": c.Reason,
		}).Debug("running as daemon, max fork workers: 1")
		return Limits{MaxForkWorkers: 1, Source: SourceDaemon, Daemon: &c}
	}

	if raw, ok := opts.LookupEnv(opts.EnvVar); ok {
		n, err := parseWorkers(raw)
		if err == nil {
			log.WithFields(logrus.Fields{
				"source": SourceEnv,
				"env":    opts.EnvVar,
			}).Debugf("max fork workers: %d", n)
			return Limits{MaxForkWorkers: n, Source: SourceEnv, Daemon: &c}
		}
		log.WithError(err).WithField("env", opts.EnvVar).Debug("ignoring invalid worker override")
	}

	n, err := opts.CPUAffinity()
	if err != nil || n < 1 {
		entry := log.WithField("source", SourceUnbounded)
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Debug("cpu affinity unavailable, max fork workers unbounded")
		return Limits{MaxForkWorkers: Unbounded, Source: SourceUnbounded, Daemon: &c}
	}

	log.WithField("source", SourceCPUAffinity).Debugf("max fork workers: %d", n)
	return Limits{MaxForkWorkers: n, Source: SourceCPUAffinity, Daemon: &c}
}

func (o *Options) setDefaults() {
	if o.EnvVar == "" {
		o.EnvVar = EnvMaxForkWorkers
	}
	if o.LookupEnv == nil {
		o.LookupEnv = os.LookupEnv
	}
	if o.CanFork == nil {
		o.CanFork = ForkSupported
	}
	if o.Classify == nil {
		o.Classify = procenv.NewDetector().Classify
	}
	if o.CPUAffinity == nil {
		o.CPUAffinity = CPUAffinity
	}
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
}

// parseWorkers accepts a base 10 integer, surrounding whitespace allowed.
func parseWorkers(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, &strconv.NumError{Func: "parseWorkers", Num: s, Err: strconv.ErrRange}
	}
	return n, nil
}
