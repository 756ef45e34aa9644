package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/afkcode/internal/checklist"
	"github.com/Iron-Ham/afkcode/internal/config"
	"github.com/Iron-Ham/afkcode/internal/console"
	"github.com/Iron-Ham/afkcode/internal/coordinator"
	"github.com/Iron-Ham/afkcode/internal/logging"
	"github.com/Iron-Ham/afkcode/internal/testutil"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "afkcode" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "afkcode")
	}

	cmdMap := make(map[string]*cobra.Command)
	for _, c := range rootCmd.Commands() {
		cmdMap[c.Name()] = c
	}
	for _, expected := range []string{"run", "status", "config"} {
		if cmdMap[expected] == nil {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}

	sub := make(map[string]bool)
	for _, c := range configCmd.Commands() {
		sub[c.Name()] = true
	}
	for _, expected := range []string{"show", "path", "check"} {
		if !sub[expected] {
			t.Errorf("expected config subcommand %q not found", expected)
		}
	}
}

func TestRunFlagsAreBound(t *testing.T) {
	for name := range runFlags {
		if runCmd.Flags().Lookup(name) == nil {
			t.Errorf("flag --%s is bound but not defined", name)
		}
	}
}

func TestInterruptHandler(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := testutil.NewFakeClock(start)

	var errOut bytes.Buffer
	exitCode := -1
	h := &interruptHandler{
		shutdown: coordinator.NewShutdown(),
		con:      console.New(&bytes.Buffer{}, &errOut),
		now:      clock.Now,
		exit:     func(code int) { exitCode = code },
	}

	h.handle()
	if !h.shutdown.IsSet() {
		t.Fatal("first interrupt should request shutdown")
	}
	if exitCode != -1 {
		t.Fatalf("first interrupt exited with %d", exitCode)
	}
	if !strings.Contains(errOut.String(), "Finishing current turn") {
		t.Errorf("stderr = %q", errOut.String())
	}

	clock.Advance(6 * time.Second)
	h.handle()
	if exitCode != -1 {
		t.Fatalf("interrupt outside the window exited with %d", exitCode)
	}

	clock.Advance(2 * time.Second)
	h.handle()
	if exitCode != exitInterrupted {
		t.Errorf("exit code = %d, want %d", exitCode, exitInterrupted)
	}
	if !strings.Contains(errOut.String(), "Force exiting") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestTranscriptPath(t *testing.T) {
	tests := []struct {
		base, name, want string
	}{
		{"afkcode.log", "0", "afkcode.log.0"},
		{"logs/run.log", "verifier", "logs/run.log.verifier"},
		{"", "0", ""},
	}
	for _, tt := range tests {
		if got := transcriptPath(tt.base, tt.name); got != tt.want {
			t.Errorf("transcriptPath(%q, %q) = %q, want %q", tt.base, tt.name, got, tt.want)
		}
	}
}

func TestOrchestratorConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Parallel.Instances = 4
	cfg.Checkout.IncludeBlocked = true
	cfg.Checkout.BasePath = "work"
	cfg.Scan.CountUnverified = true
	cfg.Verify.Enabled = true
	cfg.Verify.Spiral = true
	cfg.Run.SleepSeconds = 3

	oc := orchestratorConfig(cfg)

	if oc.Instances != 4 || oc.BasePath != "work" || !oc.Verify || !oc.Spiral {
		t.Errorf("orchestratorConfig() = %+v", oc)
	}
	want := checklist.Filters{Incomplete: true, Blocked: true}
	if oc.Filters != want {
		t.Errorf("Filters = %+v, want %+v", oc.Filters, want)
	}
	if !oc.ScanPolicy.CountUnverified || oc.ScanPolicy.CountBlocked {
		t.Errorf("ScanPolicy = %+v", oc.ScanPolicy)
	}
	if oc.Run.Sleep != 3*time.Second {
		t.Errorf("Run.Sleep = %v", oc.Run.Sleep)
	}
	if oc.Run.ScanBasePath != "work" {
		t.Errorf("Run.ScanBasePath = %q", oc.Run.ScanBasePath)
	}
}

func TestNewStatusReport(t *testing.T) {
	dir := testutil.SetupChecklistDir(t, map[string]string{
		"AGENTS.md":     "- [ ] one\n- [x] two\n",
		"pkg/AGENTS.md": "- [x] done\n",
	})
	scan, err := checklist.Scan(dir, checklist.Policy{})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	r := newStatusReport(dir, scan)
	if r.Complete || r.TotalIncomplete != 1 {
		t.Errorf("report = %+v", r)
	}
	if len(r.Files) != 2 {
		t.Fatalf("files = %+v", r.Files)
	}
	if !r.Files[0].Root || r.Files[0].Incomplete != 1 {
		t.Errorf("root file = %+v", r.Files[0])
	}
	if r.Files[1].Root || r.Files[1].Incomplete != 0 {
		t.Errorf("component file = %+v", r.Files[1])
	}
}

func TestPrintStatus(t *testing.T) {
	dir := testutil.SetupChecklistDir(t, map[string]string{
		"AGENTS.md": "- [ ] one\n- [ ] two\n",
	})

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		if err := printStatus(console.New(&out, &out), dir, checklist.Policy{}, "json"); err != nil {
			t.Fatalf("printStatus() error = %v", err)
		}
		var r statusReport
		if err := json.Unmarshal(out.Bytes(), &r); err != nil {
			t.Fatalf("invalid json %q: %v", out.String(), err)
		}
		if r.TotalIncomplete != 2 {
			t.Errorf("total_incomplete = %d, want 2", r.TotalIncomplete)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var out bytes.Buffer
		if err := printStatus(console.New(&out, &out), dir, checklist.Policy{}, "yaml"); err != nil {
			t.Fatalf("printStatus() error = %v", err)
		}
		var r statusReport
		if err := yaml.Unmarshal(out.Bytes(), &r); err != nil {
			t.Fatalf("invalid yaml %q: %v", out.String(), err)
		}
		if r.Summary != "2 incomplete items across 1 files (1 files scanned)" {
			t.Errorf("summary = %q", r.Summary)
		}
	})

	t.Run("text", func(t *testing.T) {
		var out bytes.Buffer
		if err := printStatus(console.New(&out, &out), dir, checklist.Policy{}, "text"); err != nil {
			t.Fatalf("printStatus() error = %v", err)
		}
		if !strings.Contains(out.String(), "   2 AGENTS.md") {
			t.Errorf("output = %q", out.String())
		}
	})

	t.Run("missing directory", func(t *testing.T) {
		var out bytes.Buffer
		err := printStatus(console.New(&out, &out), filepath.Join(dir, "missing"), checklist.Policy{}, "text")
		if err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestStatusCommand_RejectsUnknownFormat(t *testing.T) {
	defer func() { statusFormat = "text" }()
	_, err := executeCommand(rootCmd, "status", t.TempDir(), "--format", "xml")
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("err = %v", err)
	}
}

func TestConfigPathCommand(t *testing.T) {
	out, err := executeCommand(rootCmd, "config", "path")
	if err != nil {
		t.Fatalf("config path error = %v", err)
	}
	for _, want := range []string{"Search paths:", "afkcode.{toml,yaml}", "AFKCODE_"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigShowCommand(t *testing.T) {
	out, err := executeCommand(rootCmd, "config", "show")
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	var cfg config.Config
	body := out[strings.Index(out, "\n")+1:]
	if err := yaml.Unmarshal([]byte(body), &cfg); err != nil {
		t.Fatalf("config show is not yaml: %v\n%s", err, out)
	}
	if cfg.Run.CompletionToken == "" || cfg.Parallel.Instances < 1 {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

// fakeToolConfig returns a configuration whose only tool is a shell
// script that always prints the completion token.
func fakeToolConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	testutil.SkipIfNoShell(t)

	cfg := config.Default()
	cfg.Run.Checklist = filepath.Join(dir, checklist.FileName)
	cfg.Run.SleepSeconds = 0
	cfg.Tools.Order = "fake"
	cfg.Tools.Custom = map[string]config.CustomToolConfig{
		"fake": {
			Command: "sh",
			Args:    []string{"-c", "cat >/dev/null; echo " + cfg.Run.CompletionToken},
		},
	}
	cfg.Parallel.Warmup = 0
	cfg.Checkout.BasePath = dir
	cfg.Logging.File = filepath.Join(dir, "afkcode.log")
	return cfg
}

func TestExecute_SingleWorker(t *testing.T) {
	dir := testutil.SetupChecklistDir(t, map[string]string{"AGENTS.md": "- [ ] one\n"})
	cfg := fakeToolConfig(t, dir)

	var out bytes.Buffer
	err := execute(context.Background(), cfg, console.New(&out, &out), logging.NopLogger(), coordinator.NewShutdown())
	if err != nil {
		t.Fatalf("execute() error = %v", err)
	}
	if !strings.Contains(out.String(), "Stop token confirmed; exiting.") {
		t.Errorf("output = %q", out.String())
	}
	if log := testutil.ReadFile(t, cfg.Logging.File); !strings.Contains(log, "WORKER OUTPUT") {
		t.Errorf("transcript = %q", log)
	}
}

func TestExecute_Parallel(t *testing.T) {
	dir := testutil.SetupChecklistDir(t, map[string]string{
		"AGENTS.md": "- [ ] one\n- [ ] two\n- [ ] three\n",
	})
	cfg := fakeToolConfig(t, dir)
	cfg.Parallel.Instances = 2

	// Workers share the console, so the buffer must be.
	out := &syncBuffer{}
	err := execute(context.Background(), cfg, console.New(out, out), logging.NopLogger(), coordinator.NewShutdown())
	if err != nil {
		t.Fatalf("execute() error = %v", err)
	}

	// Worker 1 is not launched when worker 0 confirms first.
	content := testutil.ReadFile(t, filepath.Join(dir, "AGENTS.md"))
	if got := len(regexp.MustCompile(`\[ip:[a-f0-9]{4}\]`).FindAllString(content, -1)); got < 1 || got > 2 {
		t.Errorf("leased items = %d, want 1 or 2:\n%s", got, content)
	}
	if !strings.Contains(out.String(), "finished: workers_done") {
		t.Errorf("output = %q", out.String())
	}
	for _, name := range []string{"afkcode.log", "afkcode.log.0"} {
		if log := testutil.ReadFile(t, filepath.Join(dir, name)); log == "" {
			t.Errorf("%s is empty", name)
		}
	}
}

func TestExecute_ShutdownBeforeStart(t *testing.T) {
	dir := testutil.SetupChecklistDir(t, map[string]string{"AGENTS.md": "- [ ] one\n"})
	cfg := fakeToolConfig(t, dir)
	shutdown := coordinator.NewShutdown()
	shutdown.Set()

	var out bytes.Buffer
	if err := execute(context.Background(), cfg, console.New(&out, &out), logging.NopLogger(), shutdown); err != nil {
		t.Fatalf("execute() error = %v", err)
	}
	if strings.Contains(out.String(), "WORKER OUTPUT") {
		t.Error("no turn should run after shutdown")
	}
}

func TestEnsureChecklist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "AGENTS.md")
	if err := ensureChecklist(path); err != nil {
		t.Fatalf("ensureChecklist() error = %v", err)
	}
	if got := testutil.ReadFile(t, path); got != "" {
		t.Errorf("new checklist = %q, want empty", got)
	}

	testutil.WriteFiles(t, filepath.Dir(path), map[string]string{"AGENTS.md": "- [ ] keep\n"})
	if err := ensureChecklist(path); err != nil {
		t.Fatalf("ensureChecklist() error = %v", err)
	}
	if got := testutil.ReadFile(t, path); got != "- [ ] keep\n" {
		t.Errorf("existing checklist changed: %q", got)
	}
}
