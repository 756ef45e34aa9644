// Package runner drives the turn-by-turn loops that feed prompts to an
// LLM tool chain: the single worker loop, the controller/worker loop and
// the worker loop run by each parallel instance.
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/afkcode/internal/checklist"
	"github.com/Iron-Ham/afkcode/internal/coordinator"
	"github.com/Iron-Ham/afkcode/internal/logging"
	"github.com/Iron-Ham/afkcode/internal/prompt"
)

// Chain is the part of ai.Chain a loop needs.
type Chain interface {
	Invoke(ctx context.Context, prompt string) (stdout, stderr string, err error)
	InvokeWithoutThinking(ctx context.Context, prompt string) (stdout, stderr string, err error)
}

// Config holds the per-run settings shared by every loop.
type Config struct {
	// Checklist is the file referenced with "@" at the top of each prompt.
	Checklist        string
	WorkerPrompt     string
	ControllerPrompt string
	CompletionToken  string
	// Sleep is the pause between turns.
	Sleep time.Duration

	// ScanCompletion treats a turn after which the scanner finds no
	// incomplete items under ScanBasePath as a confirmed stop.
	ScanCompletion bool
	ScanBasePath   string
	ScanPolicy     checklist.Policy
}

// Runner executes loops for one worker. It is not safe for concurrent
// use; parallel instances each get their own Runner and Chain.
type Runner struct {
	cfg      Config
	chain    Chain
	sink     logging.Sink
	logger   *logging.Logger
	shutdown *coordinator.Shutdown
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithSink sets the transcript.
func WithSink(s logging.Sink) Option {
	return func(r *Runner) { r.sink = s }
}

// WithLogger sets the structured logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithShutdown sets the interrupt flag polled between turns.
func WithShutdown(s *coordinator.Shutdown) Option {
	return func(r *Runner) { r.shutdown = s }
}

// WithClock replaces time.Now for transcript timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New creates a Runner.
func New(cfg Config, chain Chain, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		chain:  chain,
		sink:   logging.Discard,
		logger: logging.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// interrupted reports whether the loop must exit at this boundary.
func (r *Runner) interrupted(ctx context.Context) bool {
	return r.shutdown.IsSet() || ctx.Err() != nil
}

// sleep pauses between turns. It returns early on shutdown or when ctx
// is done.
func (r *Runner) sleep(ctx context.Context) {
	r.sink.Message(fmt.Sprintf("Sleeping %d seconds before next prompt...", int(r.cfg.Sleep/time.Second)))
	if r.cfg.Sleep <= 0 {
		return
	}

	timer := time.NewTimer(r.cfg.Sleep)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-r.shutdown.Done():
	}
}

func (r *Runner) workerTurn(ctx context.Context, iteration int, items []checklist.Item) (string, error) {
	r.sink.Message(fmt.Sprintf("mode=worker iteration=%d turn=normal", iteration))

	p := prompt.Build(r.cfg.Checklist, prompt.WorkItems(items)+r.cfg.WorkerPrompt, r.cfg.CompletionToken)
	stdout, stderr, err := r.chain.Invoke(ctx, p)
	if err != nil {
		return "", err
	}
	r.sink.Output("worker", stdout, stderr)
	return stdout, nil
}

func (r *Runner) confirmationTurn(ctx context.Context, iteration int, previous string) (string, error) {
	r.sink.Message(fmt.Sprintf("mode=worker iteration=%d turn=confirmation", iteration))

	p := prompt.Confirmation(r.cfg.Checklist, r.cfg.CompletionToken, previous)
	stdout, stderr, err := r.chain.Invoke(ctx, p)
	if err != nil {
		return "", err
	}
	r.sink.Output("confirmation", stdout, stderr)
	return stdout, nil
}

// checklistsComplete runs the scanner when ScanCompletion is on. Scanner
// errors are reported and treated as "not complete".
func (r *Runner) checklistsComplete() bool {
	if !r.cfg.ScanCompletion {
		return false
	}
	has, err := checklist.HasIncompleteItems(r.cfg.ScanBasePath, r.cfg.ScanPolicy)
	if err != nil {
		r.sink.Warning(fmt.Sprintf("Warning: Scanner error: %v", err))
		return false
	}
	if !has {
		r.sink.Message("Scanner: No incomplete items remain. Treating as confirmed stop.")
	}
	return !has
}

// RunWorkerLoop repeats the worker prompt until the completion token is
// emitted and then confirmed on a follow-up turn, or shutdown is
// requested. A tool chain failure ends the loop with that error.
func (r *Runner) RunWorkerLoop(ctx context.Context) error {
	iteration := 1
	var last string
	sawStop := false

	for {
		if r.interrupted(ctx) {
			r.sink.Message("Shutdown requested. Exiting loop.")
			return nil
		}

		if sawStop {
			out, err := r.confirmationTurn(ctx, iteration, last)
			if err != nil {
				return err
			}
			if prompt.ContainsToken(out, r.cfg.CompletionToken) {
				r.sink.Message("Stop token confirmed; exiting.")
				return nil
			}
			sawStop = false
			last = out
			r.sleep(ctx)
			continue
		}

		out, err := r.workerTurn(ctx, iteration, nil)
		if err != nil {
			return err
		}
		sawStop = prompt.ContainsToken(out, r.cfg.CompletionToken)
		last = out
		iteration++

		if !sawStop && r.checklistsComplete() {
			return nil
		}
		if r.interrupted(ctx) {
			return nil
		}
		r.sleep(ctx)
	}
}

// RunParallelWorker is the loop body of parallel instance id. It behaves
// like RunWorkerLoop, includes the leased items in each worker prompt,
// reports its iteration boundaries to coord and also exits once another
// instance has signaled stop. A confirmed stop is signaled to coord.
//
// The caller records the returned result with coord.MarkCompleted.
func (r *Runner) RunParallelWorker(ctx context.Context, coord *coordinator.StopCoordinator, id int, items []checklist.Item) (coordinator.Result, error) {
	iteration := 1
	var last string
	sawStop := false

	for {
		if r.interrupted(ctx) {
			r.sink.Message("Shutdown requested. Exiting loop.")
			return coordinator.ShutdownResult(), nil
		}
		if coord.ShouldStop() {
			r.sink.Message("Stop signaled by another instance. Exiting loop.")
			return coordinator.ShutdownResult(), nil
		}

		coord.MarkIterationStart(id)

		if sawStop {
			out, err := r.confirmationTurn(ctx, iteration, last)
			if err != nil {
				return coordinator.Result{}, err
			}
			if prompt.ContainsToken(out, r.cfg.CompletionToken) {
				r.sink.Message("Stop token confirmed; exiting.")
				r.logger.Info("stop confirmed", "iteration", iteration)
				coord.SignalStop(id)
				return coordinator.StopConfirmedResult(), nil
			}
			sawStop = false
			last = out
		} else {
			out, err := r.workerTurn(ctx, iteration, items)
			if err != nil {
				return coordinator.Result{}, err
			}
			sawStop = prompt.ContainsToken(out, r.cfg.CompletionToken)
			last = out
			iteration++

			if !sawStop && r.checklistsComplete() {
				coord.SignalStop(id)
				return coordinator.StopConfirmedResult(), nil
			}
		}

		coord.MarkIterationComplete(id)
		r.logger.Debug("iteration complete", "iteration", iteration-1, "saw_stop", sawStop)

		if r.interrupted(ctx) || coord.ShouldStop() {
			continue
		}
		r.sleep(ctx)
	}
}

// RunControllerLoop alternates controller and worker prompts. When the
// controller emits the completion token, a no-thinking invocation checks
// the emission was deliberate before the loop exits.
func (r *Runner) RunControllerLoop(ctx context.Context) error {
	turns := []struct {
		label    string
		template string
	}{
		{"controller", r.cfg.ControllerPrompt},
		{"worker", r.cfg.WorkerPrompt},
	}

	for iteration := 0; ; iteration++ {
		if r.interrupted(ctx) {
			r.sink.Message("Shutdown requested. Exiting loop.")
			return nil
		}

		turn := turns[iteration%len(turns)]
		p := prompt.Build(r.cfg.Checklist, turn.template, r.cfg.CompletionToken)

		r.sink.Message(fmt.Sprintf("\n[%s] Running %s prompt...", r.now().Format(time.DateTime), turn.label))

		stdout, stderr, err := r.chain.Invoke(ctx, p)
		if err != nil {
			return err
		}
		r.sink.Output(turn.label, stdout, stderr)

		if turn.label == "controller" && completionDetected(stdout, r.cfg.CompletionToken) {
			if r.verifyCompletionIntent(ctx, stdout) {
				return nil
			}
		}

		if r.interrupted(ctx) {
			return nil
		}
		r.sleep(ctx)
	}
}

// completionDetected is case-sensitive, unlike ContainsToken, because the
// controller's emission is double-checked anyway.
func completionDetected(stdout, token string) bool {
	return token != "" && strings.Contains(stdout, token)
}

func (r *Runner) verifyCompletionIntent(ctx context.Context, stdout string) bool {
	token := r.cfg.CompletionToken
	r.sink.Message(fmt.Sprintf("Completion token '%s' detected. Verifying intent with LLM...", token))

	out, _, err := r.chain.InvokeWithoutThinking(ctx, prompt.CompletionIntent(stdout, token))
	if err != nil {
		r.sink.Warning(fmt.Sprintf("Warning: Failed to verify completion intent: %v. Treating as unconfirmed.", err))
		return false
	}

	if strings.Contains(out, token) {
		r.sink.Message("LLM confirmed intentional completion. Exiting loop.")
		return true
	}
	r.sink.Message("LLM did not confirm intentional completion. Continuing loop.")
	return false
}
