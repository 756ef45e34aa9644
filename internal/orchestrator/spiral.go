package orchestrator

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/afkcode/internal/checklist"
	"github.com/Iron-Ham/afkcode/internal/verifier"
)

// StopReason records why Run returned.
type StopReason string

const (
	// StopShutdown: an interrupt arrived.
	StopShutdown StopReason = "shutdown"
	// StopWorkersDone: verification is off and the worker phase ended.
	StopWorkersDone StopReason = "workers_done"
	// StopNoNewWork: the verifier added nothing.
	StopNoNewWork StopReason = "no_new_work"
	// StopSpiralOff: the verifier found work but spiraling is off.
	StopSpiralOff StopReason = "spiral_disabled"
	// StopMaxSpirals: the spiral ceiling was reached.
	StopMaxSpirals StopReason = "max_spirals"
	// StopVerifierError: the verifier failed.
	StopVerifierError StopReason = "verifier_error"
)

// RunReport summarizes a full orchestration.
type RunReport struct {
	RunID  string
	Phases []*PhaseReport
	// Spirals counts verifier runs that found new work.
	Spirals int
	Reason  StopReason
}

// Failed returns every failed worker across all phases.
func (r *RunReport) Failed() []WorkerReport {
	var failed []WorkerReport
	for _, p := range r.Phases {
		failed = append(failed, p.Failed()...)
	}
	return failed
}

// Run alternates worker phases and verification. Without verification it
// returns after one worker phase. With it, a verifier that finds new work
// restarts the workers when spiraling is on, up to MaxSpirals times.
func (o *Orchestrator) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{RunID: o.runID}
	o.logger.Info("run started",
		"instances", o.cfg.Instances,
		"verify", o.cfg.Verify,
		"spiral", o.cfg.Spiral,
	)

	for {
		if o.interrupted(ctx) {
			o.sink.Message("Shutdown requested. Exiting spiral loop.")
			report.Reason = StopShutdown
			break
		}

		if report.Spirals > 0 {
			o.sink.Message(fmt.Sprintf("=== Spiral iteration %d ===", report.Spirals))
		}

		if o.hasWork() {
			phase, err := o.RunWorkersPhase(ctx)
			if err != nil {
				return report, err
			}
			report.Phases = append(report.Phases, phase)
		}

		if o.interrupted(ctx) {
			o.sink.Message("Shutdown requested after worker phase. Exiting.")
			report.Reason = StopShutdown
			break
		}

		if !o.cfg.Verify || o.verifier == nil {
			report.Reason = StopWorkersDone
			break
		}

		o.sink.Message("=== Starting verification phase ===")
		result, err := o.verify(ctx)
		if err != nil {
			o.sink.Warning(fmt.Sprintf("Verifier error: %v. Exiting.", err))
			report.Reason = StopVerifierError
			break
		}

		if result.Outcome != verifier.FoundWork {
			o.sink.Message("Verifier confirmed: no new work found. Project complete.")
			report.Reason = StopNoNewWork
			break
		}

		report.Spirals++
		o.sink.Message(fmt.Sprintf("Verifier found %d new work items (spiral %d)", result.NewItems, report.Spirals))

		if !o.cfg.Spiral {
			o.sink.Message("Spiral mode disabled. Exiting after verification.")
			report.Reason = StopSpiralOff
			break
		}
		if report.Spirals >= o.cfg.MaxSpirals {
			o.sink.Message(fmt.Sprintf("Reached maximum spirals (%d). Exiting.", o.cfg.MaxSpirals))
			report.Reason = StopMaxSpirals
			break
		}
		o.sink.Message(fmt.Sprintf("Restarting workers for spiral iteration %d...", report.Spirals+1))
	}

	o.logger.Info("run finished", "reason", string(report.Reason), "spirals", report.Spirals)
	return report, nil
}

// hasWork gates a worker phase on the scanner when leasing is on. Scanner
// errors run the phase anyway.
func (o *Orchestrator) hasWork() bool {
	if !o.cfg.Checkout {
		return true
	}
	has, err := checklist.HasIncompleteItems(o.cfg.BasePath, o.cfg.ScanPolicy)
	switch {
	case err != nil:
		o.sink.Warning(fmt.Sprintf("Warning: Scanner error: %v. Running workers anyway.", err))
		return true
	case !has:
		o.sink.Message("Scanner: No incomplete items found before worker phase.")
		return false
	default:
		return true
	}
}

// verify runs the verifier with its own chain and transcript.
func (o *Orchestrator) verify(ctx context.Context) (*verifier.Result, error) {
	sink, closeSink := o.openSink(VerifierName)
	defer closeSink()

	chain, err := o.newChain(VerifierName, sink)
	if err != nil {
		return nil, err
	}
	return o.verifier.Run(ctx, chain, sink)
}
