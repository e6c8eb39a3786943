// Package procenv classifies the current process as daemon-like or
// interactive from its ancestry, session and standard output.
package procenv

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// DefaultInitPID is the pid processes are re-parented to when detached.
const DefaultInitPID = 1

var (
	// ErrInvalidDescriptor is returned by a stream whose descriptor is closed or unset
	ErrInvalidDescriptor = errors.New("invalid file descriptor")
	// ErrSessionUnsupported is returned by Getsid on platforms without sessions
	ErrSessionUnsupported = errors.New("session ids are not supported on this platform")
)

// invalidFd is what (*os.File).Fd reports for a nil or closed file.
const invalidFd = ^uintptr(0)

// Detector holds the OS primitives used to classify a process.
// Every field may be replaced, which is how tests simulate other processes.
// Nil function fields fall back to the running process, except Stdout: a nil
// Stdout means the process has no standard output.
type Detector struct {
	InitPID int

	Getpid  func() int
	Getppid func() int
	Getsid  func(pid int) (int, error)

	// Stdout returns the standard output stream, or nil if there is none.
	// A nil *os.File counts as none.
	Stdout func() io.Writer

	// IsTerminal reports whether fd refers to an interactive terminal.
	IsTerminal func(fd uintptr) (bool, error)

	Log logrus.FieldLogger
}

// NewDetector returns a Detector wired to the running process.
func NewDetector() *Detector {
	return &Detector{
		InitPID:    DefaultInitPID,
		Getpid:     os.Getpid,
		Getppid:    os.Getppid,
		Getsid:     getsid,
		Stdout:     stdout,
		IsTerminal: isTerminal,
		Log:        logrus.StandardLogger(),
	}
}

// IsDaemonProcess reports whether the running process looks like a daemon.
func IsDaemonProcess() bool {
	return NewDetector().IsDaemonProcess()
}

// IsDaemonProcess collapses Classify to a boolean.
func (d *Detector) IsDaemonProcess() bool {
	return d.Classify().IsDaemon()
}

// Classify evaluates ancestry, session leadership and terminal attachment,
// in that order. It never fails: anything that cannot be determined is
// reported as Indeterminate.
func (d *Detector) Classify() Classification {
	d = d.withDefaults()
	c := Classification{
		PID:  d.Getpid(),
		PPID: d.Getppid(),
	}
	c.SID = -1
	if sid, err := d.Getsid(0); err == nil {
		c.SID = sid
	} else {
		d.logger().WithError(err).Debug("session id unavailable, skipping session check")
	}

	switch {
	case c.PPID == d.initPID():
		c.Verdict, c.Reason = Daemon, ReasonInitParent
	case c.SID >= 0 && c.SID == c.PID:
		c.Verdict, c.Reason = Daemon, ReasonSessionLeader
	default:
		d.classifyStdout(&c)
	}

	entry := d.logger().WithFields(logrus.Fields{
		"pid":     c.PID,
		"ppid":    c.PPID,
		"sid":     c.SID,
		"verdict": c.Verdict,
		"reason":  c.Reason,
	})
	if c.Err != nil {
		entry = entry.WithError(c.Err)
	}
	entry.Debug("classified process")

	return c
}

func (d *Detector) classifyStdout(c *Classification) {
	var out io.Writer
	if d.Stdout != nil {
		out = d.Stdout()
	}
	if f, isFile := out.(*os.File); out == nil || (isFile && f == nil) {
		c.Verdict, c.Reason = NotDaemon, ReasonNoStdout
		return
	}

	fd, ok, err := descriptor(out)
	if !ok {
		c.Verdict, c.Reason = Indeterminate, ReasonNoDescriptor
		return
	}
	if err != nil {
		c.Verdict, c.Reason = Indeterminate, ReasonDescriptorError
		c.Err = fmt.Errorf("failed to get stdout descriptor: %w", err)
		return
	}

	tty, err := d.IsTerminal(fd)
	if err != nil {
		c.Verdict, c.Reason = Indeterminate, ReasonDescriptorError
		c.Err = fmt.Errorf("failed to query terminal on fd %d: %w", fd, err)
		return
	}
	if tty {
		c.Verdict, c.Reason = NotDaemon, ReasonTerminal
		return
	}
	c.Verdict, c.Reason = Daemon, ReasonNotTerminal
}

// descriptor extracts an OS file descriptor from w. ok is false when w has
// no descriptor accessor at all.
func descriptor(w io.Writer) (fd uintptr, ok bool, err error) {
	switch f := w.(type) {
	case interface{ Fd() (uintptr, error) }:
		fd, err = f.Fd()
	case interface{ Fd() uintptr }:
		fd = f.Fd()
	default:
		return 0, false, nil
	}
	if err == nil && fd == invalidFd {
		err = ErrInvalidDescriptor
	}
	return fd, true, err
}

// withDefaults returns a copy of d with unset primitives wired to the
// running process.
func (d *Detector) withDefaults() *Detector {
	wired := Detector{}
	if d != nil {
		wired = *d
	}
	if wired.Getpid == nil {
		wired.Getpid = os.Getpid
	}
	if wired.Getppid == nil {
		wired.Getppid = os.Getppid
	}
	if wired.Getsid == nil {
		wired.Getsid = getsid
	}
	if wired.IsTerminal == nil {
		wired.IsTerminal = isTerminal
	}
	return &wired
}

func (d *Detector) initPID() int {
	if d.InitPID == 0 {
		return DefaultInitPID
	}
	return d.InitPID
}

func (d *Detector) logger() logrus.FieldLogger {
	if d.Log == nil {
		return logrus.StandardLogger()
	}
	return d.Log
}

// stdout avoids handing out a typed nil when os.Stdout has been cleared.
func stdout() io.Writer {
	if os.Stdout == nil {
		return nil
	}
	return os.Stdout
}
