package scorer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/oncopredict/oncopredict/pkg/config"
	"github.com/oncopredict/oncopredict/pkg/risk"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrTimeout is returned when the engine does not exit within the
	// configured timeout.
	ErrTimeout = errors.New("scorer timed out")

	// ErrBusy is returned when the caller's context ends while waiting
	// for a free process slot.
	ErrBusy = errors.New("scorer busy")
)

// Output is what a finished process produced.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner starts the engine process and waits for it to exit. A non-zero
// exit is reported through Output.ExitCode, not through the error.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (*Output, error)
}

// killGracePeriod bounds how long Run waits for output pipes after the
// process is killed. Children of a forking launcher may still hold them.
const killGracePeriod = 500 * time.Millisecond

// ExecRunner runs processes with os/exec.
type ExecRunner struct{}

// Run starts name in dir and waits for it to exit. When ctx ends the
// process and its process group are killed, and Run returns within
// killGracePeriod even if a child keeps stdout open.
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (*Output, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // G204: binary from local config
	cmd.Dir = dir
	cmd.WaitDelay = killGracePeriod
	killProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := &Output{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	if err != nil {
		return out, err
	}
	return out, nil
}

// Scorer invokes the external scoring engine once per request.
type Scorer struct {
	java    string
	jar     string
	class   string
	dir     string
	variant risk.Variant
	timeout time.Duration
	sem     *semaphore.Weighted
	runner  Runner
}

// Option customizes a Scorer.
type Option func(*Scorer)

// WithRunner replaces the process runner.
func WithRunner(r Runner) Option {
	return func(s *Scorer) {
		s.runner = r
	}
}

// New validates cfg and returns a Scorer. The jar must exist and the Java
// binary must resolve, otherwise a *risk.ConfigurationError is returned.
func New(cfg config.Scorer, opts ...Option) (*Scorer, error) {
	variant, err := risk.ParseVariant(cfg.Output)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConcurrent <= 0 {
		return nil, fmt.Errorf("max concurrent processes must be positive: %d", cfg.MaxConcurrent)
	}
	if cfg.Class == "" {
		return nil, &risk.ConfigurationError{Resource: "scorer class", Detail: "class name not set"}
	}

	if _, err := os.Stat(cfg.Jar); err != nil {
		return nil, &risk.ConfigurationError{
			Resource: "h2o-genmodel.jar",
			Detail:   fmt.Sprintf("not found at %s", cfg.Jar),
		}
	}

	java, err := exec.LookPath(cfg.Java)
	if err != nil {
		return nil, &risk.ConfigurationError{
			Resource: "java runtime",
			Detail:   fmt.Sprintf("%s not found on PATH", cfg.Java),
		}
	}

	s := &Scorer{
		java:    java,
		jar:     cfg.Jar,
		class:   cfg.Class,
		dir:     cfg.WorkDir,
		variant: variant,
		timeout: cfg.Timeout,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		runner:  ExecRunner{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Variant returns the output contract this scorer parses.
func (s *Scorer) Variant() risk.Variant {
	return s.variant
}

// Classpath returns the engine classpath: the work dir, holding the
// compiled scorer class, followed by the genmodel jar.
func (s *Scorer) Classpath() string {
	dir := s.dir
	if dir == "" {
		dir = "."
	}
	return dir + string(filepath.ListSeparator) + s.jar
}

// Command returns the program arguments for a feature vector.
func (s *Scorer) Command(v risk.FeatureVector) []string {
	args := make([]string, 0, 3+risk.FeatureCount)
	args = append(args, "-cp", s.Classpath(), s.class)
	return append(args, v.Args()...)
}

// Score runs the engine for v and parses its output.
func (s *Scorer) Score(ctx context.Context, v risk.FeatureVector) (*risk.ScoreResult, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBusy, err)
	}
	defer s.sem.Release(1)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := s.runner.Run(ctx, s.dir, s.java, s.Command(v)...)
	slog.Debug("scorer finished", "duration", time.Since(start), "error", err)

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, s.timeout)
		}
		return nil, ctxErr
	}
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, &risk.ConfigurationError{Resource: "java runtime", Detail: err.Error()}
		}
		return nil, fmt.Errorf("running scorer: %w", err)
	}

	if out.ExitCode != 0 {
		return nil, &risk.ExternalProcessError{
			ExitCode: out.ExitCode,
			Stderr:   strings.TrimSpace(out.Stderr),
		}
	}

	return risk.Parse(s.variant, out.Stdout)
}
