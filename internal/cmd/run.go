package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/afkcode/internal/ai"
	"github.com/Iron-Ham/afkcode/internal/checklist"
	"github.com/Iron-Ham/afkcode/internal/config"
	"github.com/Iron-Ham/afkcode/internal/console"
	"github.com/Iron-Ham/afkcode/internal/coordinator"
	"github.com/Iron-Ham/afkcode/internal/errors"
	"github.com/Iron-Ham/afkcode/internal/git"
	"github.com/Iron-Ham/afkcode/internal/lease"
	"github.com/Iron-Ham/afkcode/internal/logging"
	"github.com/Iron-Ham/afkcode/internal/orchestrator"
	"github.com/Iron-Ham/afkcode/internal/runner"
	"github.com/Iron-Ham/afkcode/internal/verifier"
)

var runCmd = &cobra.Command{
	Use:   "run [checklist]",
	Short: "Run the worker loop against a checklist",
	Long: `Run LLM tools in a loop against a checklist until the completion token
is emitted and confirmed.

With --instances greater than one, workers run in parallel and each
leases its own items from the AGENTS.md files under --base-path. With
--verify, a verifier audits the checklists after the workers stop, and
with --spiral the workers restart while the verifier keeps finding work.

Press Ctrl+C once to finish the current turn and exit; press it again
within 5 seconds to exit immediately.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

// runFlags maps flag names to config keys.
var runFlags = map[string]string{
	"mode":               "run.mode",
	"worker-prompt":      "run.worker_prompt",
	"controller-prompt":  "run.controller_prompt",
	"completion-token":   "run.completion_token",
	"sleep-seconds":      "run.sleep_seconds",
	"scan-completion":    "run.scan_completion",
	"tools":              "tools.order",
	"gemini-model":       "tools.gemini.model",
	"codex-model":        "tools.codex.model",
	"claude-model":       "tools.claude.model",
	"rate-limit-timeout": "tools.rate_limit_timeout",
	"invocation-timeout": "tools.invocation_timeout",
	"instances":          "parallel.instances",
	"warmup":             "parallel.warmup",
	"checkout":           "checkout.enabled",
	"base-path":          "checkout.base_path",
	"items-per-instance": "checkout.items_per_instance",
	"include-unverified": "checkout.include_unverified",
	"include-blocked":    "checkout.include_blocked",
	"verify":             "verify.enabled",
	"verifier-prompt":    "verify.prompt_file",
	"spiral":             "verify.spiral",
	"max-spirals":        "verify.max_spirals",
	"commit":             "verify.commit",
	"log-file":           "logging.file",
	"debug-log":          "logging.debug_file",
	"log-level":          "logging.level",
}

func init() {
	rootCmd.AddCommand(runCmd)

	d := config.Default()
	f := runCmd.Flags()

	f.String("mode", d.Run.Mode, "loop mode: worker or controller (controller is single-instance only)")
	f.String("worker-prompt", "", "worker prompt template ({checklist} and {completion_token} are substituted)")
	f.String("controller-prompt", "", "controller prompt template")
	f.String("completion-token", d.Run.CompletionToken, "token that ends the loop once confirmed")
	f.Int("sleep-seconds", d.Run.SleepSeconds, "pause between turns")
	f.Bool("scan-completion", d.Run.ScanCompletion, "stop once no checklist has incomplete items")

	f.String("tools", d.Tools.Order, "comma-separated LLM tools in fallback order")
	f.String("gemini-model", "", "model passed to gemini")
	f.String("codex-model", "", "model passed to codex")
	f.String("claude-model", "", "model passed to claude")
	f.Duration("rate-limit-timeout", d.Tools.RateLimitTimeout, "how long a rate-limited tool is skipped")
	f.Duration("invocation-timeout", d.Tools.InvocationTimeout, "cap on one tool run (0 for none)")

	f.IntP("instances", "n", d.Parallel.Instances, "number of parallel workers")
	f.Duration("warmup", d.Parallel.Warmup, "delay between worker launches")
	f.Bool("checkout", d.Checkout.Enabled, "lease checklist items to parallel workers")
	f.String("base-path", d.Checkout.BasePath, "directory searched for AGENTS.md files")
	f.Int("items-per-instance", d.Checkout.ItemsPerInstance, "items leased to each worker")
	f.Bool("include-unverified", d.Checkout.IncludeUnverified, "also lease [x] items")
	f.Bool("include-blocked", d.Checkout.IncludeBlocked, "also lease [BLOCKED] items")

	f.Bool("verify", d.Verify.Enabled, "run the verifier after the workers stop")
	f.String("verifier-prompt", "", "file holding a custom verifier prompt template")
	f.Bool("spiral", d.Verify.Spiral, "restart workers while the verifier finds new work")
	f.Int("max-spirals", d.Verify.MaxSpirals, "maximum verifier-triggered restarts")
	f.Bool("commit", d.Verify.Commit, "git commit checklist edits after each verification")

	f.String("log-file", d.Logging.File, "transcript file (workers append .<id>)")
	f.String("debug-log", "", "structured JSON debug log file")
	f.String("log-level", d.Logging.Level, "debug log level: debug, info, warn, error")

	for name, key := range runFlags {
		_ = viper.BindPFlag(key, f.Lookup(name))
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		viper.Set("run.checklist", args[0])
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	con := console.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	if err := ensureChecklist(cfg.Run.Checklist); err != nil {
		return err
	}

	shutdown := coordinator.NewShutdown()
	stop := notifyInterrupts(shutdown, con)
	defer stop()

	return execute(cmd.Context(), cfg, con, logger, shutdown)
}

// execute picks the loop for cfg: the controller loop, the orchestrator
// when several workers or the verifier are wanted, or the single worker
// loop.
func execute(ctx context.Context, cfg *config.Config, con *console.Console, logger *logging.Logger, shutdown *coordinator.Shutdown) error {
	switch {
	case cfg.Run.Mode == config.ModeController:
		return runSingle(ctx, cfg, con, logger, shutdown, true)
	case cfg.Parallel.Instances > 1 || cfg.Verify.Enabled:
		return runOrchestrated(ctx, cfg, con, logger, shutdown)
	default:
		return runSingle(ctx, cfg, con, logger, shutdown, false)
	}
}

func runSingle(ctx context.Context, cfg *config.Config, con *console.Console, logger *logging.Logger, shutdown *coordinator.Shutdown, controller bool) error {
	t, err := logging.OpenTranscript(cfg.Logging.File, logging.WithEcho(con.Out(), con.Err()))
	if err != nil {
		con.Warn(fmt.Sprintf("Warning: %v. Continuing without logging to file.", err))
	} else if cfg.Logging.File != "" {
		t.Message("Logging to: " + cfg.Logging.File)
	}
	defer func() { _ = t.Close() }()

	chain, err := ai.NewChainFromConfig(cfg.Tools, ai.WithSink(t), ai.WithLogger(logger))
	if err != nil {
		return err
	}

	r := runner.New(runnerConfig(cfg), chain,
		runner.WithSink(t),
		runner.WithLogger(logger),
		runner.WithShutdown(shutdown),
	)
	if controller {
		return r.RunControllerLoop(ctx)
	}
	return r.RunWorkerLoop(ctx)
}

func runOrchestrated(ctx context.Context, cfg *config.Config, con *console.Console, logger *logging.Logger, shutdown *coordinator.Shutdown) error {
	supervisor, err := logging.OpenTranscript(cfg.Logging.File,
		logging.WithEcho(con.Out(), con.Err()),
		logging.WithPrefix(con.Prefix("afkcode")),
	)
	if err != nil {
		con.Warn(fmt.Sprintf("Warning: %v. Continuing without logging to file.", err))
	}
	defer func() { _ = supervisor.Close() }()

	openSink := sinkFactory(cfg, con)

	opts := []orchestrator.Option{
		orchestrator.WithSinkFactory(openSink),
		orchestrator.WithSink(supervisor),
		orchestrator.WithLogger(logger),
		orchestrator.WithShutdown(shutdown),
	}
	if cfg.Checkout.Enabled {
		opts = append(opts, orchestrator.WithLeaseManager(lease.NewManager(cfg.Checkout.BasePath,
			lease.WithLockTimeout(cfg.Checkout.LockTimeout),
			lease.WithLogger(logger),
		)))
	}
	if cfg.Verify.Enabled {
		opts = append(opts, orchestrator.WithVerifier(newVerifier(cfg, logger, supervisor)))
	}

	o := orchestrator.New(orchestratorConfig(cfg), chainFactory(cfg, logger), opts...)
	con.Header(fmt.Sprintf("afkcode %s: %d worker(s)", o.RunID(), cfg.Parallel.Instances))

	report, err := o.Run(ctx)
	if err != nil {
		return err
	}
	return summarize(con, report)
}

// summarize prints how the run ended. It fails only when every launched
// worker of the last phase failed.
func summarize(con *console.Console, report *orchestrator.RunReport) error {
	failed := report.Failed()
	for _, w := range failed {
		con.Warn(fmt.Sprintf("worker %d failed: %v", w.ID, w.Err))
	}

	msg := fmt.Sprintf("Run %s finished: %s", report.RunID, report.Reason)
	if report.Spirals > 0 {
		msg += fmt.Sprintf(" after %d spiral(s)", report.Spirals)
	}
	if len(failed) > 0 {
		con.Warn(msg)
	} else {
		con.Success(msg)
	}

	if len(report.Phases) == 0 {
		return nil
	}
	last := report.Phases[len(report.Phases)-1]
	if n := last.Launched(); n > 0 && len(last.Failed()) == n {
		return fmt.Errorf("all %d workers failed", n)
	}
	return nil
}

// newVerifier builds the verifier. A missing repository only disables
// committing.
func newVerifier(cfg *config.Config, logger *logging.Logger, sink logging.Sink) *verifier.Verifier {
	opts := []verifier.Option{verifier.WithLogger(logger)}
	if cfg.Verify.Commit {
		repo, err := git.Open(cfg.Checkout.BasePath)
		if err != nil {
			sink.Warning(fmt.Sprintf("Warning: verify.commit is set but %v. Checklist edits will not be committed.", err))
		} else {
			opts = append(opts, verifier.WithCommitter(repo))
		}
	}
	return verifier.New(verifier.Config{
		BasePath:        cfg.Checkout.BasePath,
		PromptFile:      cfg.Verify.PromptFile,
		CompletionToken: cfg.Run.CompletionToken,
		Policy:          scanPolicy(cfg),
	}, opts...)
}

func runnerConfig(cfg *config.Config) runner.Config {
	return runner.Config{
		Checklist:        cfg.Run.Checklist,
		WorkerPrompt:     cfg.Run.WorkerPrompt,
		ControllerPrompt: cfg.Run.ControllerPrompt,
		CompletionToken:  cfg.Run.CompletionToken,
		Sleep:            cfg.Run.Sleep(),
		ScanCompletion:   cfg.Run.ScanCompletion,
		ScanBasePath:     cfg.Checkout.BasePath,
		ScanPolicy:       scanPolicy(cfg),
	}
}

func orchestratorConfig(cfg *config.Config) orchestrator.Config {
	return orchestrator.Config{
		Instances:        cfg.Parallel.Instances,
		Warmup:           cfg.Parallel.Warmup,
		StopWait:         cfg.Parallel.StopWait,
		ShutdownWait:     cfg.Parallel.ShutdownWait,
		Checkout:         cfg.Checkout.Enabled,
		BasePath:         cfg.Checkout.BasePath,
		ItemsPerInstance: cfg.Checkout.ItemsPerInstance,
		Filters: checklist.Filters{
			Incomplete: true,
			Unverified: cfg.Checkout.IncludeUnverified,
			Blocked:    cfg.Checkout.IncludeBlocked,
		},
		ScanPolicy: scanPolicy(cfg),
		Verify:     cfg.Verify.Enabled,
		Spiral:     cfg.Verify.Spiral,
		MaxSpirals: cfg.Verify.MaxSpirals,
		Run:        runnerConfig(cfg),
	}
}

func scanPolicy(cfg *config.Config) checklist.Policy {
	return checklist.Policy{
		CountUnverified: cfg.Scan.CountUnverified,
		CountBlocked:    cfg.Scan.CountBlocked,
	}
}

// chainFactory gives every worker and the verifier its own chain, so
// rate-limit bookkeeping is never shared.
func chainFactory(cfg *config.Config, logger *logging.Logger) orchestrator.ChainFactory {
	return func(name string, sink logging.Sink) (runner.Chain, error) {
		chain, err := ai.NewChainFromConfig(cfg.Tools,
			ai.WithSink(sink),
			ai.WithLogger(logger.With("chain", name)),
		)
		if err != nil {
			return nil, err
		}
		return chain, nil
	}
}

// sinkFactory opens "<logging.file>.<name>" echoed to the console with a
// per-name prefix.
func sinkFactory(cfg *config.Config, con *console.Console) orchestrator.SinkFactory {
	return func(name string) (logging.Sink, func()) {
		t, err := logging.OpenTranscript(transcriptPath(cfg.Logging.File, name),
			logging.WithEcho(con.Out(), con.Err()),
			logging.WithPrefix(con.Prefix(name)),
		)
		if err != nil {
			con.Warn(fmt.Sprintf("Warning: %v. Continuing without logging to file.", err))
		}
		return t, func() { _ = t.Close() }
	}
}

func transcriptPath(base, name string) string {
	if base == "" {
		return ""
	}
	return base + "." + name
}

func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	if cfg.DebugFile == "" {
		return logging.NopLogger(), nil
	}
	logger, err := logging.NewLogger(cfg.DebugFile, cfg.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open debug log")
	}
	return logger, nil
}

// ensureChecklist creates an empty checklist, and its directory, when
// none exists yet.
func ensureChecklist(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "create checklist directory")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "create checklist %s", path)
	}
	return f.Close()
}
