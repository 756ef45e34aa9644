package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/afkcode/internal/checklist"
	"github.com/Iron-Ham/afkcode/internal/coordinator"
	"github.com/Iron-Ham/afkcode/internal/errors"
	"github.com/Iron-Ham/afkcode/internal/runner"
)

// WorkerReport is what one worker did during a phase.
type WorkerReport struct {
	ID       int
	Launched bool
	Items    []checklist.Item
	Result   coordinator.Result
	// Err is the loop's error, including a recovered panic.
	Err      error
	Panicked bool
	// Restored counts leases put back after a failure.
	Restored int
}

// PhaseReport summarizes a worker phase.
type PhaseReport struct {
	Workers []WorkerReport
	// StopConfirmed is set when some worker confirmed the completion token.
	StopConfirmed bool
	// Settled is false when a bounded wait expired with workers still
	// mid-turn.
	Settled bool
}

// Launched returns how many workers were started.
func (r *PhaseReport) Launched() int {
	n := 0
	for _, w := range r.Workers {
		if w.Launched {
			n++
		}
	}
	return n
}

// Failed returns the reports of workers that ended with an error.
func (r *PhaseReport) Failed() []WorkerReport {
	var failed []WorkerReport
	for _, w := range r.Workers {
		if w.Err != nil {
			failed = append(failed, w)
		}
	}
	return failed
}

// RunWorkersPhase launches the workers, supervises them until they stop,
// settle or finish, then waits for every launched worker to return.
func (o *Orchestrator) RunWorkersPhase(ctx context.Context) (*PhaseReport, error) {
	n := o.cfg.Instances
	coord := coordinator.New(n, o.logger)
	reports := make([]WorkerReport, n)
	for id := range reports {
		reports[id].ID = id
	}

	o.sink.Message(fmt.Sprintf("Starting %d parallel LLM instances with %ds warmup delay",
		n, int(o.cfg.Warmup/time.Second)))
	o.logger.Info("worker phase started", "instances", n, "warmup", o.cfg.Warmup.String())

	var wg conc.WaitGroup
	leasing := o.cfg.Checkout && o.leases != nil

	launched := 0
	for id := 0; id < n; id++ {
		if id > 0 && o.cfg.Warmup > 0 {
			o.sink.Message(fmt.Sprintf("Waiting %ds before launching instance %d...", int(o.cfg.Warmup/time.Second), id))
			if !o.warmup(ctx, coord) {
				o.sink.Message(fmt.Sprintf("Stop signaled during warmup, not launching instance %d", id))
				break
			}
		}
		if coord.ShouldStop() || o.interrupted(ctx) {
			o.sink.Message(fmt.Sprintf("Stop signaled before launching instance %d", id))
			break
		}

		var items []checklist.Item
		if leasing {
			var refused bool
			items, refused = o.checkout(id)
			if refused {
				leasing = false
			}
		}

		sink, closeSink := o.openSink(strconv.Itoa(id))
		chain, err := o.newChain(strconv.Itoa(id), sink)
		if err != nil {
			closeSink()
			o.sink.Warning(fmt.Sprintf("Instance %d error: %v", id, err))
			o.restore(id, items)
			reports[id].Items = items
			reports[id].Err = errors.NewWorkerError(id, "build tool chain", err)
			reports[id].Result = coordinator.ErrorResult(err.Error())
			coord.MarkCompleted(id, reports[id].Result)
			continue
		}

		r := runner.New(o.cfg.Run, chain,
			runner.WithSink(sink),
			runner.WithLogger(o.logger.WithWorker(id)),
			runner.WithShutdown(o.shutdown),
		)

		reports[id].Launched = true
		reports[id].Items = items
		report := &reports[id]
		wg.Go(func() {
			defer closeSink()
			o.runWorker(ctx, coord, r, report)
		})
		launched++
		o.sink.Message(fmt.Sprintf("Launched instance %d", id))
	}

	// Workers never launched cannot report; complete them so waits and
	// the all-completed check only track launched ones.
	for id := range reports {
		if !reports[id].Launched && !coord.IsCompleted(id) {
			coord.MarkCompleted(id, coordinator.ShutdownResult())
			reports[id].Result = coordinator.ShutdownResult()
		}
	}

	settled := o.supervise(ctx, coord)
	wg.Wait()

	phase := &PhaseReport{Workers: reports, StopConfirmed: coord.ShouldStop(), Settled: settled}
	for _, w := range reports {
		if !w.Launched {
			continue
		}
		switch {
		case w.Panicked:
			o.sink.Warning(fmt.Sprintf("Instance %d thread panicked", w.ID))
		case w.Err != nil:
			o.sink.Warning(fmt.Sprintf("Instance %d error: %v", w.ID, w.Err))
		default:
			o.sink.Message(fmt.Sprintf("Instance %d completed: %s", w.ID, w.Result))
		}
	}
	o.logger.Info("worker phase finished",
		"launched", launched,
		"failed", len(phase.Failed()),
		"stop_confirmed", phase.StopConfirmed,
	)
	return phase, nil
}

// runWorker runs one worker loop, converting a panic into an error, and
// records the outcome in coord. Failed workers give their leases back.
func (o *Orchestrator) runWorker(ctx context.Context, coord *coordinator.StopCoordinator, r *runner.Runner, report *WorkerReport) {
	id := report.ID
	var (
		result coordinator.Result
		err    error
		pc     panics.Catcher
	)
	pc.Try(func() {
		result, err = r.RunParallelWorker(ctx, coord, id, report.Items)
	})
	if rec := pc.Recovered(); rec != nil {
		report.Panicked = true
		err = errors.NewWorkerError(id, "loop aborted", fmt.Errorf("%w: %w", errors.ErrWorkerPanic, rec.AsError()))
		o.logger.Error("worker panicked", "worker", id, "panic", fmt.Sprint(rec.Value), "stack", string(rec.Stack))
	}

	if err != nil {
		if errors.GetSeverity(err) >= errors.SeverityError {
			o.logger.Error("worker failed", "worker", id, "error", err.Error())
		} else {
			o.logger.Warn("worker stopped early", "worker", id, "error", err.Error())
		}
		report.Restored = o.restore(id, report.Items)
		report.Err = err
		report.Result = coordinator.ErrorResult(err.Error())
		coord.MarkCompleted(id, report.Result)
		return
	}
	report.Result = result
	coord.MarkCompleted(id, result)
}

// checkout leases items for worker id. refused is set when the lock could
// not be taken, so later workers skip leasing instead of each waiting out
// the lock timeout.
func (o *Orchestrator) checkout(id int) (items []checklist.Item, refused bool) {
	res, err := o.leases.Checkout(o.cfg.ItemsPerInstance, o.cfg.Filters, id)
	if err != nil {
		o.sink.Warning(fmt.Sprintf("Warning: Failed to checkout work items for instance %d: %v", id, err))
		return nil, errors.Is(err, errors.ErrLockTimeout)
	}
	if len(res.Items) > 0 {
		o.sink.Message(fmt.Sprintf("Instance %d checked out %d work item(s)", id, len(res.Items)))
	}
	return res.Items, false
}

// restore puts back every lease of a failed worker and returns how many
// were restored. A lease that is already gone is not an error.
func (o *Orchestrator) restore(id int, items []checklist.Item) int {
	if len(items) == 0 || o.leases == nil {
		return 0
	}
	restored, err := o.leases.RestoreAll(items)
	if err != nil {
		o.sink.Warning(fmt.Sprintf("Warning: Failed to restore work items for instance %d: %v", id, err))
	}
	return restored
}

// warmup sleeps the stagger delay, polling the stop and shutdown flags.
// It returns false when the launch should be abandoned.
func (o *Orchestrator) warmup(ctx context.Context, coord *coordinator.StopCoordinator) bool {
	deadline := time.NewTimer(o.cfg.Warmup)
	defer deadline.Stop()
	tick := time.NewTicker(o.poll)
	defer tick.Stop()

	for {
		if coord.ShouldStop() || o.interrupted(ctx) {
			return false
		}
		select {
		case <-deadline.C:
			return !coord.ShouldStop() && !o.interrupted(ctx)
		case <-tick.C:
		case <-o.shutdown.Done():
		case <-ctx.Done():
		}
	}
}

// supervise waits until a worker confirms stop, shutdown is requested or
// every worker has completed. After a stop or shutdown it waits, bounded,
// for the others to settle and reports whether they did.
func (o *Orchestrator) supervise(ctx context.Context, coord *coordinator.StopCoordinator) bool {
	for {
		changed := coord.Changed()

		if coord.ShouldStop() {
			o.sink.Message("Stop confirmed. Waiting for all instances to finish current iteration...")
			return coord.WaitForAllComplete(o.cfg.StopWait)
		}
		if o.interrupted(ctx) {
			o.sink.Message("Shutdown requested. Waiting for instances to finish...")
			return coord.WaitForAllComplete(o.cfg.ShutdownWait)
		}
		if coord.AllCompleted() {
			return true
		}

		select {
		case <-changed:
		case <-o.shutdown.Done():
		case <-ctx.Done():
		case <-time.After(o.poll):
		}
	}
}
