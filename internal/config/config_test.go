package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Run.Checklist != "AGENTS.md" {
		t.Errorf("Run.Checklist = %q, want %q", cfg.Run.Checklist, "AGENTS.md")
	}
	if cfg.Run.Mode != ModeWorker {
		t.Errorf("Run.Mode = %q, want %q", cfg.Run.Mode, ModeWorker)
	}
	if cfg.Run.CompletionToken != "__ALL_TASKS_COMPLETE__" {
		t.Errorf("Run.CompletionToken = %q", cfg.Run.CompletionToken)
	}
	if cfg.Run.Sleep() != 15*time.Second {
		t.Errorf("Run.Sleep() = %v, want 15s", cfg.Run.Sleep())
	}
	if cfg.Tools.Order != "gemini,codex,claude" {
		t.Errorf("Tools.Order = %q", cfg.Tools.Order)
	}
	if cfg.Tools.RateLimitTimeout != 5*time.Minute {
		t.Errorf("Tools.RateLimitTimeout = %v, want 5m", cfg.Tools.RateLimitTimeout)
	}
	if cfg.Parallel.Instances != 1 {
		t.Errorf("Parallel.Instances = %d, want 1", cfg.Parallel.Instances)
	}
	if cfg.Parallel.Warmup != 30*time.Second {
		t.Errorf("Parallel.Warmup = %v, want 30s", cfg.Parallel.Warmup)
	}
	if cfg.Parallel.StopWait != 300*time.Second || cfg.Parallel.ShutdownWait != 60*time.Second {
		t.Errorf("Parallel waits = %v/%v", cfg.Parallel.StopWait, cfg.Parallel.ShutdownWait)
	}
	if !cfg.Checkout.Enabled || cfg.Checkout.ItemsPerInstance != 1 {
		t.Errorf("Checkout = %+v", cfg.Checkout)
	}
	if cfg.Checkout.LockTimeout != 30*time.Second {
		t.Errorf("Checkout.LockTimeout = %v, want 30s", cfg.Checkout.LockTimeout)
	}
	if cfg.Verify.Enabled || cfg.Verify.MaxSpirals != 5 {
		t.Errorf("Verify = %+v", cfg.Verify)
	}
	if cfg.Logging.File != "afkcode.log" || cfg.Logging.DebugFile != "" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestDefault_IsValid(t *testing.T) {
	if errs := Default().Validate(); len(errs) > 0 {
		t.Fatalf("default config should validate, got %v", ValidationErrors(errs))
	}
}

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tools.RateLimitTimeout != 5*time.Minute {
		t.Errorf("RateLimitTimeout = %v", cfg.Tools.RateLimitTimeout)
	}
	if cfg.Run.WorkerPrompt != Default().Run.WorkerPrompt {
		t.Errorf("WorkerPrompt = %q", cfg.Run.WorkerPrompt)
	}
}

func TestLoad_FromFile(t *testing.T) {
	resetViper(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "afkcode.yaml")
	content := `
run:
  mode: controller
  sleep_seconds: 0
tools:
  order: "claude, mytool"
  rate_limit_timeout: 90s
  claude:
    model: opus
  custom:
    mytool:
      command: /usr/local/bin/mytool
      args: ["--batch"]
      prompt_as_arg: true
      rate_limit_patterns: ["slow down"]
parallel:
  warmup: 2s
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Run.Mode != ModeController {
		t.Errorf("Run.Mode = %q", cfg.Run.Mode)
	}
	if cfg.Run.SleepSeconds != 0 {
		t.Errorf("Run.SleepSeconds = %d", cfg.Run.SleepSeconds)
	}
	if cfg.Tools.RateLimitTimeout != 90*time.Second {
		t.Errorf("RateLimitTimeout = %v", cfg.Tools.RateLimitTimeout)
	}
	if cfg.Tools.Claude.Model != "opus" || cfg.Tools.Claude.Command != "claude" {
		t.Errorf("Tools.Claude = %+v", cfg.Tools.Claude)
	}
	custom, ok := cfg.Tools.Custom["mytool"]
	if !ok {
		t.Fatalf("custom tool missing: %+v", cfg.Tools.Custom)
	}
	if !custom.PromptAsArg || len(custom.Args) != 1 || custom.RateLimitPatterns[0] != "slow down" {
		t.Errorf("custom tool = %+v", custom)
	}
	if cfg.Parallel.Warmup != 2*time.Second {
		t.Errorf("Warmup = %v", cfg.Parallel.Warmup)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	resetViper(t)
	viper.Set("parallel.instances", 0)
	viper.Set("run.mode", "manager")

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	errs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("error type = %T, want ValidationErrors", err)
	}
	if len(errs) != 2 {
		t.Errorf("got %d errors, want 2: %v", len(errs), errs)
	}
}

func TestGet_FallsBackToDefaults(t *testing.T) {
	resetViper(t)
	viper.Set("tools.order", "")

	cfg := Get()
	if cfg.Tools.Order != Default().Tools.Order {
		t.Errorf("Get() should fall back to defaults, got order %q", cfg.Tools.Order)
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("uses XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
		if got := ConfigDir(); got != "/tmp/xdg/afkcode" {
			t.Errorf("ConfigDir() = %q", got)
		}
	})

	t.Run("falls back to home", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		t.Setenv("HOME", "/home/someone")
		if got := ConfigDir(); got != "/home/someone/.config/afkcode" {
			t.Errorf("ConfigDir() = %q", got)
		}
	})

	t.Run("search paths start with the working directory", func(t *testing.T) {
		paths := SearchPaths()
		if len(paths) != 2 || paths[0] != "." {
			t.Errorf("SearchPaths() = %v", paths)
		}
	})
}
