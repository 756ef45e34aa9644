package coordinator

import "fmt"

// State is the lifecycle position of one worker.
type State int

const (
	// Running means the worker is inside a turn, or about to start one.
	Running State = iota
	// FinishingIteration means the worker finished a turn and is at a safe
	// point for shutdown.
	FinishingIteration
	// Completed is terminal.
	Completed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case FinishingIteration:
		return "finishing_iteration"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ResultKind classifies how a worker completed.
type ResultKind int

const (
	// StopConfirmed means the worker confirmed the completion token.
	StopConfirmed ResultKind = iota
	// ShutdownRequested means the worker exited because of an external shutdown or
	// another worker's stop.
	ShutdownRequested
	// Failed means the worker loop returned an error or panicked.
	Failed
)

func (k ResultKind) String() string {
	switch k {
	case StopConfirmed:
		return "stop_confirmed"
	case ShutdownRequested:
		return "shutdown"
	case Failed:
		return "error"
	default:
		return fmt.Sprintf("ResultKind(%d)", int(k))
	}
}

// Result is the outcome of a completed worker.
type Result struct {
	Kind ResultKind
	// Message describes the failure when Kind is Failed.
	Message string
}

// StopConfirmedResult is the result of a worker that confirmed the stop token.
func StopConfirmedResult() Result { return Result{Kind: StopConfirmed} }

// ShutdownResult is the result of a worker that exited on shutdown.
func ShutdownResult() Result { return Result{Kind: ShutdownRequested} }

// ErrorResult is the result of a failed worker.
func ErrorResult(msg string) Result { return Result{Kind: Failed, Message: msg} }

// IsError reports whether the worker failed.
func (r Result) IsError() bool { return r.Kind == Failed }

func (r Result) String() string {
	switch r.Kind {
	case StopConfirmed:
		return "stop confirmed"
	case ShutdownRequested:
		return "shutdown"
	case Failed:
		return "error: " + r.Message
	default:
		return r.Kind.String()
	}
}

// Status is one worker's state and, once Completed, its result.
type Status struct {
	State  State
	Result Result
}

// Settled reports whether the worker is at a point where the supervisor
// may stop waiting for it.
func (s Status) Settled() bool {
	return s.State == Completed || s.State == FinishingIteration
}

func (s Status) String() string {
	if s.State == Completed {
		return "completed (" + s.Result.String() + ")"
	}
	return s.State.String()
}
