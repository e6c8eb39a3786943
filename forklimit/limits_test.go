package forklimit

import (
	"errors"
	"testing"

	"github.com/doveaia/forkguard/procenv"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func classified(v procenv.Verdict) func() procenv.Classification {
	return func() procenv.Classification {
		return procenv.Classification{Verdict: v, Reason: procenv.ReasonTerminal}
	}
}

func testOptions(daemon procenv.Verdict, vars map[string]string, cpus int) Options {
	logger, _ := test.NewNullLogger()
	return Options{
		LookupEnv:   env(vars),
		CanFork:     func() bool { return true },
		Classify:    classified(daemon),
		CPUAffinity: func() (int, error) { return cpus, nil },
		Log:         logger,
	}
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name    string
		verdict procenv.Verdict
		vars    map[string]string
		cpus    int
		want    int
		source  Source
	}{
		{"env override", procenv.NotDaemon, map[string]string{EnvMaxForkWorkers: "3"}, 8, 3, SourceEnv},
		{"env override with whitespace", procenv.NotDaemon, map[string]string{EnvMaxForkWorkers: " 12\n"}, 8, 12, SourceEnv},
		{"env override above cpu count", procenv.NotDaemon, map[string]string{EnvMaxForkWorkers: "64"}, 8, 64, SourceEnv},
		{"env unset", procenv.NotDaemon, nil, 8, 8, SourceCPUAffinity},
		{"env not an integer", procenv.NotDaemon, map[string]string{EnvMaxForkWorkers: "many"}, 6, 6, SourceCPUAffinity},
		{"env empty", procenv.NotDaemon, map[string]string{EnvMaxForkWorkers: ""}, 6, 6, SourceCPUAffinity},
		{"env zero", procenv.NotDaemon, map[string]string{EnvMaxForkWorkers: "0"}, 6, 6, SourceCPUAffinity},
		{"env negative", procenv.NotDaemon, map[string]string{EnvMaxForkWorkers: "-2"}, 6, 6, SourceCPUAffinity},
		{"env float", procenv.NotDaemon, map[string]string{EnvMaxForkWorkers: "2.5"}, 6, 6, SourceCPUAffinity},
		{"daemon ignores env", procenv.Daemon, map[string]string{EnvMaxForkWorkers: "3"}, 8, 1, SourceDaemon},
		{"indeterminate counts as daemon", procenv.Indeterminate, nil, 8, 1, SourceDaemon},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := Compute(testOptions(tt.verdict, tt.vars, tt.cpus))
			assert.Equal(t, tt.want, l.MaxForkWorkers)
			assert.Equal(t, tt.source, l.Source)
			require.NotNil(t, l.Daemon)
			assert.Equal(t, tt.verdict, l.Daemon.Verdict)
		})
	}
}

func TestCompute_ForkUnsupported(t *testing.T) {
	opts := testOptions(procenv.NotDaemon, map[string]string{EnvMaxForkWorkers: "3"}, 8)
	opts.CanFork = func() bool { return false }
	opts.Classify = func() procenv.Classification {
		t.Fatal("detector must not run when forking is unsupported")
		return procenv.Classification{}
	}

	l := Compute(opts)
	assert.Equal(t, 1, l.MaxForkWorkers)
	assert.Equal(t, SourceForkUnsupported, l.Source)
	assert.Nil(t, l.Daemon)
	assert.False(t, l.ForkEnabled())
}

func TestCompute_ClassifiesOnce(t *testing.T) {
	calls := 0
	opts := testOptions(procenv.NotDaemon, nil, 4)
	opts.Classify = func() procenv.Classification {
		calls++
		return procenv.Classification{Verdict: procenv.NotDaemon}
	}

	Compute(opts)
	assert.Equal(t, 1, calls)
}

func TestCompute_AffinityUnavailable(t *testing.T) {
	opts := testOptions(procenv.NotDaemon, map[string]string{EnvMaxForkWorkers: "nope"}, 0)
	opts.CPUAffinity = func() (int, error) { return 0, errors.New("unsupported") }

	l := Compute(opts)
	assert.Equal(t, Unbounded, l.MaxForkWorkers)
	assert.Equal(t, SourceUnbounded, l.Source)
	assert.True(t, l.IsUnbounded())
	assert.True(t, l.ForkEnabled())
}

func TestCompute_EmptyAffinitySet(t *testing.T) {
	l := Compute(testOptions(procenv.NotDaemon, nil, 0))
	assert.Equal(t, SourceUnbounded, l.Source)
}

func TestCompute_CustomEnvVar(t *testing.T) {
	opts := testOptions(procenv.NotDaemon, map[string]string{
		EnvMaxForkWorkers:  "3",
		"PIPELINE_WORKERS": "5",
	}, 8)
	opts.EnvVar = "PIPELINE_WORKERS"

	l := Compute(opts)
	assert.Equal(t, 5, l.MaxForkWorkers)
}

func TestCompute_ProcessEnvironment(t *testing.T) {
	t.Setenv(EnvMaxForkWorkers, "7")

	opts := testOptions(procenv.NotDaemon, nil, 2)
	opts.LookupEnv = nil

	assert.Equal(t, 7, Compute(opts).MaxForkWorkers)
}

func TestLimits_Workers(t *testing.T) {
	assert.Equal(t, 1, Limits{MaxForkWorkers: 1}.Workers(16))
	assert.Equal(t, 4, Limits{MaxForkWorkers: 4}.Workers(16))
	assert.Equal(t, 2, Limits{MaxForkWorkers: 4}.Workers(2))
	assert.Equal(t, 1, Limits{MaxForkWorkers: 4}.Workers(0))
	assert.Equal(t, 32, Limits{MaxForkWorkers: Unbounded}.Workers(32))
}

func TestDetect_NeverBelowOne(t *testing.T) {
	l := Detect()
	if l.IsUnbounded() {
		assert.Equal(t, SourceUnbounded, l.Source)
		return
	}
	assert.GreaterOrEqual(t, l.MaxForkWorkers, 1)
	if l.Daemon != nil && l.Daemon.IsDaemon() {
		assert.Equal(t, 1, l.MaxForkWorkers)
	}
}

func TestCompute_UnboundedLogsErrorOnlyWhenPresent(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		hasError bool
	}{
		{"empty affinity set", nil, false},
		{"affinity call failed", errors.New("unsupported"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, hook := test.NewNullLogger()
			logger.SetLevel(logrus.DebugLevel)

			opts := testOptions(procenv.NotDaemon, nil, 0)
			opts.CPUAffinity = func() (int, error) { return 0, tt.err }
			opts.Log = logger

			l := Compute(opts)
			require.Equal(t, SourceUnbounded, l.Source)

			entry := hook.LastEntry()
			require.NotNil(t, entry)
			assert.Equal(t, SourceUnbounded, entry.Data["source"])
			_, ok := entry.Data[logrus.ErrorKey]
			assert.Equal(t, tt.hasError, ok)
		})
	}
}
