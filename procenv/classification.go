package procenv

import (
	"encoding/json"
	"fmt"
)

// Verdict is the outcome of a classification.
type Verdict int

const (
	// NotDaemon means the process is attached to an interactive terminal
	NotDaemon Verdict = iota
	// Daemon means one of the daemon traits was observed
	Daemon
	// Indeterminate means terminal attachment could not be checked; treated as Daemon
	Indeterminate
)

func (v Verdict) String() string {
	switch v {
	case NotDaemon:
		return "not-daemon"
	case Daemon:
		return "daemon"
	case Indeterminate:
		return "indeterminate"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the verdict by name.
func (v Verdict) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// UnmarshalJSON decodes a verdict name written by MarshalJSON.
func (v *Verdict) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for _, candidate := range []Verdict{NotDaemon, Daemon, Indeterminate} {
		if candidate.String() == name {
			*v = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown verdict %q", name)
}

// Reason names the check that decided a classification.
type Reason string

const (
	ReasonInitParent      Reason = "init-parent"
	ReasonSessionLeader   Reason = "session-leader"
	ReasonNoStdout        Reason = "no-stdout"
	ReasonNoDescriptor    Reason = "no-descriptor"
	ReasonDescriptorError Reason = "descriptor-error"
	ReasonNotTerminal     Reason = "not-terminal"
	ReasonTerminal        Reason = "terminal"
)

// Classification records why a process was or was not considered a daemon.
type Classification struct {
	Verdict Verdict `json:"verdict"`
	Reason  Reason  `json:"reason"`
	PID     int     `json:"pid"`
	PPID    int     `json:"ppid"`
	SID     int     `json:"sid"` // -1 when the platform has no sessions
	Err     error   `json:"-"`
}

// IsDaemon collapses the verdict; Indeterminate counts as a daemon.
func (c Classification) IsDaemon() bool {
	return c.Verdict != NotDaemon
}
