// Package errors provides centralized error definitions and error handling utilities
// for afkcode. It defines domain-specific errors, semantic error types,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - LeaseError: checkout, restore and validation of checklist leases
//   - ToolError: invocation of external LLM command-line tools
//   - WorkerError: a worker loop that failed or panicked
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//   - TimeoutError: operation timed out
//
// # Usage
//
//	err := errors.NewLeaseError("marker changed since selection", errors.ErrLeaseValidation).
//		WithFile("pkg/AGENTS.md").WithLine(12)
//
//	if errors.Is(err, errors.ErrLeaseValidation) { ... }
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions so callers only import this package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Lease-related sentinel errors
var (
	// ErrLeaseValidation indicates a selected item no longer matches the file on disk.
	ErrLeaseValidation = New("checklist item changed since selection")
	// ErrLockTimeout indicates the checklist lock could not be acquired in time.
	ErrLockTimeout = New("timed out acquiring checklist lock")
	// ErrNoLeaseID indicates a restore was requested for an item without a lease.
	ErrNoLeaseID = New("item has no lease id")
)

// Tool-related sentinel errors
var (
	// ErrToolSpawn indicates the tool process could not be started.
	ErrToolSpawn = New("failed to start tool")
	// ErrToolFailed indicates the tool exited non-zero and produced no output.
	ErrToolFailed = New("tool exited with failure")
	// ErrToolsExhausted indicates every configured tool is rate limited.
	ErrToolsExhausted = New("All LLM tools exhausted due to rate limits")
	// ErrUnknownTool indicates a tool name that has no descriptor.
	ErrUnknownTool = New("unknown LLM tool")
	// ErrNoTools indicates an empty tool list.
	ErrNoTools = New("no LLM tools configured")
)

// Worker-related sentinel errors
var (
	// ErrWorkerPanic indicates a worker goroutine panicked.
	ErrWorkerPanic = New("worker panicked")
)

// General sentinel errors
var (
	ErrTimeout      = New("operation timed out")
	ErrCanceled     = New("operation canceled")
	ErrInvalidInput = New("invalid input")
	ErrNotFound     = New("not found")
)

// -----------------------------------------------------------------------------
// Base Error
// -----------------------------------------------------------------------------

// AFKError is implemented by every typed error in this package.
type AFKError interface {
	error
	Unwrap() error
	Is(target error) bool
	Severity() Severity
	IsRetryable() bool
	IsUserFacing() bool
}

type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error { return e.cause }

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func (e *baseError) Severity() Severity { return e.severity }

func (e *baseError) IsRetryable() bool { return e.retryable }

func (e *baseError) IsUserFacing() bool { return e.userFacing }

// format renders "<kind> [k=v, ...]: message: cause".
func (e *baseError) format(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// LeaseError represents failures while leasing or releasing checklist items.
//
// Example:
//
//	err := errors.NewLeaseError("restore failed", ioErr).WithFile("AGENTS.md").WithLeaseID("a3f7")
//	fmt.Println(err) // "lease error [file=AGENTS.md, lease=a3f7]: restore failed: ..."
type LeaseError struct {
	baseError
	File    string
	Line    int
	LeaseID string
}

// NewLeaseError creates a new LeaseError. Errors caused by a lock timeout
// are retryable.
func NewLeaseError(message string, cause error) *LeaseError {
	return &LeaseError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  errors.Is(cause, ErrLockTimeout),
			userFacing: true,
		},
	}
}

// WithFile adds the checklist file path to the error context.
func (e *LeaseError) WithFile(path string) *LeaseError {
	e.File = path
	return e
}

// WithLine adds the 1-indexed line number to the error context.
func (e *LeaseError) WithLine(line int) *LeaseError {
	e.Line = line
	return e
}

// WithLeaseID adds the lease id to the error context.
func (e *LeaseError) WithLeaseID(id string) *LeaseError {
	e.LeaseID = id
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *LeaseError) WithRetryable(r bool) *LeaseError {
	e.retryable = r
	return e
}

func (e *LeaseError) Error() string {
	var parts []string
	if e.File != "" {
		parts = append(parts, fmt.Sprintf("file=%s", e.File))
	}
	if e.Line > 0 {
		parts = append(parts, fmt.Sprintf("line=%d", e.Line))
	}
	if e.LeaseID != "" {
		parts = append(parts, fmt.Sprintf("lease=%s", e.LeaseID))
	}
	return e.format("lease error", parts)
}

// Is checks if this error matches the target.
func (e *LeaseError) Is(target error) bool {
	if _, ok := target.(*LeaseError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ToolError represents failures invoking an external LLM tool.
//
// Example:
//
//	err := errors.NewToolError("spawn", execErr).WithTool("gemini")
type ToolError struct {
	baseError
	Tool string
}

// NewToolError creates a new ToolError.
func NewToolError(message string, cause error) *ToolError {
	return &ToolError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithTool adds the tool name to the error context.
func (e *ToolError) WithTool(name string) *ToolError {
	e.Tool = name
	return e
}

// WithSeverity sets the error severity.
func (e *ToolError) WithSeverity(s Severity) *ToolError {
	e.severity = s
	return e
}

func (e *ToolError) Error() string {
	var parts []string
	if e.Tool != "" {
		parts = append(parts, fmt.Sprintf("tool=%s", e.Tool))
	}
	return e.format("tool error", parts)
}

// Is checks if this error matches the target.
func (e *ToolError) Is(target error) bool {
	if _, ok := target.(*ToolError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// WorkerError represents a worker loop that ended with a failure.
type WorkerError struct {
	baseError
	WorkerID int
}

// NewWorkerError creates a new WorkerError for the given worker index.
func NewWorkerError(workerID int, message string, cause error) *WorkerError {
	return &WorkerError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
		WorkerID: workerID,
	}
}

func (e *WorkerError) Error() string {
	return e.format("worker error", []string{fmt.Sprintf("worker=%d", e.WorkerID)})
}

// Is checks if this error matches the target.
func (e *WorkerError) Is(target error) bool {
	if _, ok := target.(*WorkerError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
//	err := errors.NewNotFoundError("lease", "a3f7")
//	fmt.Println(err) // "lease 'a3f7' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	if errors.Is(target, ErrNotFound) {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
//	err := errors.NewValidationError("worker count must be positive").WithField("parallel.instances").WithValue(0)
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return e.format("validation error", parts)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
//	err := errors.NewTimeoutError("acquire checklist lock", 30*time.Second)
//	fmt.Println(err) // "timeout error: acquire checklist lock (timeout: 30s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError. Timeouts are retryable.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable reports whether err is a transient condition that may succeed
// on retry: typed errors marked retryable, timeouts and lock timeouts.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var afkErr AFKError
	if As(err, &afkErr) && afkErr.IsRetryable() {
		return true
	}

	return Is(err, ErrTimeout) || Is(err, ErrLockTimeout)
}

// IsUserFacing reports whether the error message is safe to print as-is.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var afkErr AFKError
	if As(err, &afkErr) {
		return afkErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity of err, defaulting to SeverityError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityInfo
	}
	var afkErr AFKError
	if As(err, &afkErr) {
		return afkErr.Severity()
	}
	return SeverityError
}

// Wrap annotates err with message. It returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf annotates err with a formatted message. It returns nil if err is nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
