// Package orchestrator runs parallel worker phases and the verify/spiral
// loop around them.
//
// A worker phase launches up to Config.Instances workers with a staggered
// start. Each worker leases its own checklist items, owns its own tool
// chain and transcript, and reports into a shared StopCoordinator. When
// any worker confirms the completion token, the others finish their
// current turn and exit. A worker that fails has its leases restored.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/afkcode/internal/checklist"
	"github.com/Iron-Ham/afkcode/internal/coordinator"
	"github.com/Iron-Ham/afkcode/internal/lease"
	"github.com/Iron-Ham/afkcode/internal/logging"
	"github.com/Iron-Ham/afkcode/internal/runner"
	"github.com/Iron-Ham/afkcode/internal/verifier"
)

// VerifierName names the verifier's transcript and chain.
const VerifierName = "verifier"

// Defaults for the supervisor's bounded waits and launch polling.
const (
	DefaultStopWait     = 300 * time.Second
	DefaultShutdownWait = 60 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

// Config holds orchestration settings.
type Config struct {
	Instances int
	// Warmup is the delay before launching each worker after the first.
	Warmup time.Duration
	// StopWait bounds the wait for workers to settle after a stop signal.
	StopWait time.Duration
	// ShutdownWait bounds the same wait after an interrupt.
	ShutdownWait time.Duration

	// Checkout leases ItemsPerInstance items matching Filters to each
	// worker before launch.
	Checkout         bool
	BasePath         string
	ItemsPerInstance int
	Filters          checklist.Filters
	// ScanPolicy decides what counts as incomplete when gating a phase.
	ScanPolicy checklist.Policy

	// Verify runs the verifier after each worker phase.
	Verify bool
	// Spiral restarts the workers while the verifier keeps finding work,
	// at most MaxSpirals times.
	Spiral     bool
	MaxSpirals int

	// Run is passed to every worker's runner.
	Run runner.Config
}

// ChainFactory builds an independent tool chain for the worker or
// verifier called name, reporting to sink.
type ChainFactory func(name string, sink logging.Sink) (runner.Chain, error)

// SinkFactory opens the transcript for name: a worker id or VerifierName.
// The returned function releases it.
type SinkFactory func(name string) (logging.Sink, func())

// Orchestrator runs worker phases and the spiral loop. A zero value is
// not usable; construct with New.
type Orchestrator struct {
	cfg      Config
	newChain ChainFactory
	openSink SinkFactory

	leases   *lease.Manager
	verifier *verifier.Verifier
	shutdown *coordinator.Shutdown

	sink   logging.Sink
	logger *logging.Logger
	runID  string
	poll   time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSinkFactory sets how per-worker transcripts are opened.
func WithSinkFactory(f SinkFactory) Option {
	return func(o *Orchestrator) { o.openSink = f }
}

// WithLeaseManager sets the lease manager used when Config.Checkout is on.
func WithLeaseManager(m *lease.Manager) Option {
	return func(o *Orchestrator) { o.leases = m }
}

// WithVerifier sets the verifier used when Config.Verify is on.
func WithVerifier(v *verifier.Verifier) Option {
	return func(o *Orchestrator) { o.verifier = v }
}

// WithShutdown sets the interrupt flag.
func WithShutdown(s *coordinator.Shutdown) Option {
	return func(o *Orchestrator) { o.shutdown = s }
}

// WithSink sets the supervisor's own transcript.
func WithSink(s logging.Sink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithLogger sets the structured logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(o *Orchestrator) { o.runID = id }
}

// WithPollInterval sets how often warmup and supervision re-check the
// stop and shutdown flags.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.poll = d }
}

// New creates an Orchestrator. newChain is required.
func New(cfg Config, newChain ChainFactory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		newChain: newChain,
		sink:     logging.Discard,
		logger:   logging.NopLogger(),
		poll:     DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.openSink == nil {
		o.openSink = consoleSinks
	}
	if o.runID == "" {
		o.runID = NewRunID()
	}
	if o.cfg.StopWait <= 0 {
		o.cfg.StopWait = DefaultStopWait
	}
	if o.cfg.ShutdownWait <= 0 {
		o.cfg.ShutdownWait = DefaultShutdownWait
	}
	o.logger = o.logger.WithRun(o.runID)
	return o
}

// RunID identifies this orchestration in the structured log.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// NewRunID returns "run-<utc timestamp>-<8 hex chars>".
func NewRunID() string {
	return fmt.Sprintf("run-%s-%s", time.Now().UTC().Format("20060102-150405"), uuid.New().String()[:8])
}

// consoleSinks echoes every transcript to the terminal with a name prefix.
func consoleSinks(name string) (logging.Sink, func()) {
	prefix := "[" + name + "] "
	if _, err := strconv.Atoi(name); err == nil {
		prefix = "[worker " + name + "] "
	}
	t, _ := logging.OpenTranscript("", logging.WithEcho(os.Stdout, os.Stderr), logging.WithPrefix(prefix))
	return t, func() { _ = t.Close() }
}

func (o *Orchestrator) interrupted(ctx context.Context) bool {
	return o.shutdown.IsSet() || ctx.Err() != nil
}
