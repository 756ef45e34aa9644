package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Sink receives the human-readable transcript of a loop: progress lines,
// warnings and raw tool output. Implementations must be safe for
// concurrent use.
type Sink interface {
	Message(msg string)
	Warning(msg string)
	Output(label, stdout, stderr string)
}

type discard struct{}

func (discard) Message(string)                {}
func (discard) Warning(string)                {}
func (discard) Output(string, string, string) {}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

// Transcript is a Sink that appends to a plain-text file and echoes to
// console writers. Either side may be absent.
type Transcript struct {
	mu     sync.Mutex
	file   *os.File
	stdout io.Writer
	stderr io.Writer
	prefix string
	now    func() time.Time
}

// TranscriptOption configures a Transcript.
type TranscriptOption func(*Transcript)

// WithEcho sets the console writers. Nil writers disable that stream.
func WithEcho(stdout, stderr io.Writer) TranscriptOption {
	return func(t *Transcript) {
		t.stdout = stdout
		t.stderr = stderr
	}
}

// WithPrefix prepends prefix to echoed message and warning lines.
func WithPrefix(prefix string) TranscriptOption {
	return func(t *Transcript) { t.prefix = prefix }
}

// WithTimeSource replaces time.Now for message timestamps.
func WithTimeSource(now func() time.Time) TranscriptOption {
	return func(t *Transcript) { t.now = now }
}

// OpenTranscript appends to path. An empty path produces a console-only
// transcript. When the file cannot be opened the transcript is still
// returned, console-only, together with the error so the caller can warn.
func OpenTranscript(path string, opts ...TranscriptOption) (*Transcript, error) {
	t := &Transcript{now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	if path == "" {
		return t, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return t, fmt.Errorf("open transcript %s: %w", path, err)
	}
	t.file = f
	return t, nil
}

// Message records a progress line.
func (t *Transcript) Message(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.echoLine(t.stdout, msg)
	t.logLine(msg)
}

// Warning records a problem the caller recovered from.
func (t *Transcript) Warning(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.echoLine(t.stderr, msg)
	t.logLine(msg)
}

// Output records one tool invocation's captured streams between a header
// and a footer naming label.
func (t *Transcript) Output(label, stdout, stderr string) {
	up := strings.ToUpper(label)
	header := fmt.Sprintf("\n--- %s OUTPUT ---\n", up)
	footer := fmt.Sprintf("--- END %s OUTPUT ---\n\n", up)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.write(t.stdout, header)
	t.write(t.file, header)
	if stdout != "" {
		t.write(t.stdout, stdout)
		t.write(t.file, stdout)
	}
	if stderr != "" {
		t.write(t.stderr, stderr)
		t.write(t.file, stderr)
	}
	t.write(t.stdout, footer)
	t.write(t.file, footer)
}

func (t *Transcript) echoLine(w io.Writer, msg string) {
	t.write(w, t.prefix+msg+"\n")
}

func (t *Transcript) logLine(msg string) {
	t.write(t.file, fmt.Sprintf("[%s] %s\n", t.now().Format(time.DateTime), msg))
}

// write ignores errors: a broken transcript must never stop the loop.
func (t *Transcript) write(w io.Writer, s string) {
	if w == nil {
		return
	}
	if f, ok := w.(*os.File); ok && f == nil {
		return
	}
	_, _ = io.WriteString(w, s)
}

// Close closes the transcript file.
func (t *Transcript) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}
