package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/afkcode/internal/prompt"
)

// Config represents the complete afkcode configuration
type Config struct {
	Run      RunConfig      `mapstructure:"run" yaml:"run"`
	Tools    ToolsConfig    `mapstructure:"tools" yaml:"tools"`
	Parallel ParallelConfig `mapstructure:"parallel" yaml:"parallel"`
	Checkout CheckoutConfig `mapstructure:"checkout" yaml:"checkout"`
	Scan     ScanConfig     `mapstructure:"scan" yaml:"scan"`
	Verify   VerifyConfig   `mapstructure:"verify" yaml:"verify"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// RunConfig controls a single worker's turn loop
type RunConfig struct {
	// Checklist is the primary checklist referenced as @path in prompts
	Checklist string `mapstructure:"checklist" yaml:"checklist"`
	// Mode is "worker" or "controller". Controller mode is single-instance only.
	Mode string `mapstructure:"mode" yaml:"mode"`
	// WorkerPrompt and ControllerPrompt are templates with {checklist}
	// and {completion_token} placeholders
	WorkerPrompt     string `mapstructure:"worker_prompt" yaml:"worker_prompt"`
	ControllerPrompt string `mapstructure:"controller_prompt" yaml:"controller_prompt"`
	// CompletionToken ends the loop when confirmed
	CompletionToken string `mapstructure:"completion_token" yaml:"completion_token"`
	// SleepSeconds is the pause between turns
	SleepSeconds int `mapstructure:"sleep_seconds" yaml:"sleep_seconds"`
	// ScanCompletion stops a worker once no checklist has incomplete items
	ScanCompletion bool `mapstructure:"scan_completion" yaml:"scan_completion"`
}

// Sleep returns the pause between turns as a duration
func (r RunConfig) Sleep() time.Duration {
	return time.Duration(r.SleepSeconds) * time.Second
}

// ToolConfig overrides a built-in tool
type ToolConfig struct {
	Command string `mapstructure:"command" yaml:"command"`
	Model   string `mapstructure:"model" yaml:"model,omitempty"`
}

// CustomToolConfig describes an additional tool
type CustomToolConfig struct {
	Command           string   `mapstructure:"command" yaml:"command"`
	Args              []string `mapstructure:"args" yaml:"args,omitempty"`
	ModelFlag         string   `mapstructure:"model_flag" yaml:"model_flag,omitempty"`
	Model             string   `mapstructure:"model" yaml:"model,omitempty"`
	PromptAsArg       bool     `mapstructure:"prompt_as_arg" yaml:"prompt_as_arg"`
	RateLimitPatterns []string `mapstructure:"rate_limit_patterns" yaml:"rate_limit_patterns,omitempty"`
}

// ToolsConfig controls the tool fallback chain
type ToolsConfig struct {
	// Order is a comma-separated list of tool names, most preferred first
	Order string `mapstructure:"order" yaml:"order"`
	// RateLimitTimeout is how long a rate-limited tool is skipped
	RateLimitTimeout time.Duration `mapstructure:"rate_limit_timeout" yaml:"rate_limit_timeout"`
	// InvocationTimeout caps one tool run; 0 disables the cap
	InvocationTimeout time.Duration `mapstructure:"invocation_timeout" yaml:"invocation_timeout"`

	Gemini ToolConfig                  `mapstructure:"gemini" yaml:"gemini"`
	Codex  ToolConfig                  `mapstructure:"codex" yaml:"codex"`
	Claude ToolConfig                  `mapstructure:"claude" yaml:"claude"`
	Custom map[string]CustomToolConfig `mapstructure:"custom" yaml:"custom,omitempty"`
}

// ParallelConfig controls the worker orchestrator
type ParallelConfig struct {
	// Instances is the worker count; more than one enables the orchestrator
	Instances int `mapstructure:"instances" yaml:"instances"`
	// Warmup staggers worker launches
	Warmup time.Duration `mapstructure:"warmup" yaml:"warmup"`
	// StopWait bounds the wait for workers after one confirms a stop
	StopWait time.Duration `mapstructure:"stop_wait" yaml:"stop_wait"`
	// ShutdownWait bounds the wait for workers after an interrupt
	ShutdownWait time.Duration `mapstructure:"shutdown_wait" yaml:"shutdown_wait"`
}

// CheckoutConfig controls leasing of checklist items to workers
type CheckoutConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	BasePath          string        `mapstructure:"base_path" yaml:"base_path"`
	ItemsPerInstance  int           `mapstructure:"items_per_instance" yaml:"items_per_instance"`
	IncludeUnverified bool          `mapstructure:"include_unverified" yaml:"include_unverified"`
	IncludeBlocked    bool          `mapstructure:"include_blocked" yaml:"include_blocked"`
	LockTimeout       time.Duration `mapstructure:"lock_timeout" yaml:"lock_timeout"`
}

// ScanConfig sets which markers count as incomplete
type ScanConfig struct {
	CountUnverified bool `mapstructure:"count_unverified" yaml:"count_unverified"`
	CountBlocked    bool `mapstructure:"count_blocked" yaml:"count_blocked"`
}

// VerifyConfig controls the verifier and spiral loop
type VerifyConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// PromptFile replaces the built-in verifier template
	PromptFile string `mapstructure:"prompt_file" yaml:"prompt_file,omitempty"`
	// Spiral re-runs the workers while the verifier keeps finding work
	Spiral     bool `mapstructure:"spiral" yaml:"spiral"`
	MaxSpirals int  `mapstructure:"max_spirals" yaml:"max_spirals"`
	// Commit stages and commits checklist edits after each verification
	Commit bool `mapstructure:"commit" yaml:"commit"`
}

// LoggingConfig controls the transcript and the structured debug log
type LoggingConfig struct {
	// File is the transcript base path; workers append .<id>
	File string `mapstructure:"file" yaml:"file"`
	// DebugFile is the JSON debug log; empty disables it
	DebugFile  string `mapstructure:"debug_file" yaml:"debug_file,omitempty"`
	Level      string `mapstructure:"level" yaml:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// Tool names with built-in invocation conventions
const (
	ToolGemini = "gemini"
	ToolCodex  = "codex"
	ToolClaude = "claude"
)

// BuiltinTools returns the built-in tool names in default preference order
func BuiltinTools() []string {
	return []string{ToolGemini, ToolCodex, ToolClaude}
}

// Run modes
const (
	ModeWorker     = "worker"
	ModeController = "controller"
)

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Checklist:        "AGENTS.md",
			Mode:             ModeWorker,
			WorkerPrompt:     prompt.DefaultWorker,
			ControllerPrompt: prompt.DefaultController,
			CompletionToken:  prompt.DefaultCompletionToken,
			SleepSeconds:     15,
		},
		Tools: ToolsConfig{
			Order:            "gemini,codex,claude",
			RateLimitTimeout: 5 * time.Minute,
			Gemini:           ToolConfig{Command: ToolGemini},
			Codex:            ToolConfig{Command: ToolCodex},
			Claude:           ToolConfig{Command: ToolClaude},
		},
		Parallel: ParallelConfig{
			Instances:    1,
			Warmup:       30 * time.Second,
			StopWait:     300 * time.Second,
			ShutdownWait: 60 * time.Second,
		},
		Checkout: CheckoutConfig{
			Enabled:          true,
			BasePath:         ".",
			ItemsPerInstance: 1,
			LockTimeout:      30 * time.Second,
		},
		Verify: VerifyConfig{
			MaxSpirals: 5,
		},
		Logging: LoggingConfig{
			File:       "afkcode.log",
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Run defaults
	viper.SetDefault("run.checklist", defaults.Run.Checklist)
	viper.SetDefault("run.mode", defaults.Run.Mode)
	viper.SetDefault("run.worker_prompt", defaults.Run.WorkerPrompt)
	viper.SetDefault("run.controller_prompt", defaults.Run.ControllerPrompt)
	viper.SetDefault("run.completion_token", defaults.Run.CompletionToken)
	viper.SetDefault("run.sleep_seconds", defaults.Run.SleepSeconds)
	viper.SetDefault("run.scan_completion", defaults.Run.ScanCompletion)

	// Tool defaults
	viper.SetDefault("tools.order", defaults.Tools.Order)
	viper.SetDefault("tools.rate_limit_timeout", defaults.Tools.RateLimitTimeout)
	viper.SetDefault("tools.invocation_timeout", defaults.Tools.InvocationTimeout)
	viper.SetDefault("tools.gemini.command", defaults.Tools.Gemini.Command)
	viper.SetDefault("tools.gemini.model", defaults.Tools.Gemini.Model)
	viper.SetDefault("tools.codex.command", defaults.Tools.Codex.Command)
	viper.SetDefault("tools.codex.model", defaults.Tools.Codex.Model)
	viper.SetDefault("tools.claude.command", defaults.Tools.Claude.Command)
	viper.SetDefault("tools.claude.model", defaults.Tools.Claude.Model)

	// Parallel defaults
	viper.SetDefault("parallel.instances", defaults.Parallel.Instances)
	viper.SetDefault("parallel.warmup", defaults.Parallel.Warmup)
	viper.SetDefault("parallel.stop_wait", defaults.Parallel.StopWait)
	viper.SetDefault("parallel.shutdown_wait", defaults.Parallel.ShutdownWait)

	// Checkout defaults
	viper.SetDefault("checkout.enabled", defaults.Checkout.Enabled)
	viper.SetDefault("checkout.base_path", defaults.Checkout.BasePath)
	viper.SetDefault("checkout.items_per_instance", defaults.Checkout.ItemsPerInstance)
	viper.SetDefault("checkout.include_unverified", defaults.Checkout.IncludeUnverified)
	viper.SetDefault("checkout.include_blocked", defaults.Checkout.IncludeBlocked)
	viper.SetDefault("checkout.lock_timeout", defaults.Checkout.LockTimeout)

	// Scan defaults
	viper.SetDefault("scan.count_unverified", defaults.Scan.CountUnverified)
	viper.SetDefault("scan.count_blocked", defaults.Scan.CountBlocked)

	// Verify defaults
	viper.SetDefault("verify.enabled", defaults.Verify.Enabled)
	viper.SetDefault("verify.prompt_file", defaults.Verify.PromptFile)
	viper.SetDefault("verify.spiral", defaults.Verify.Spiral)
	viper.SetDefault("verify.max_spirals", defaults.Verify.MaxSpirals)
	viper.SetDefault("verify.commit", defaults.Verify.Commit)

	// Logging defaults
	viper.SetDefault("logging.file", defaults.Logging.File)
	viper.SetDefault("logging.debug_file", defaults.Logging.DebugFile)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "afkcode")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".afkcode"
	}
	return filepath.Join(home, ".config", "afkcode")
}

// ConfigName is the config file name without extension. Viper accepts
// afkcode.toml, afkcode.yaml and the other formats it knows.
const ConfigName = "afkcode"

// SearchPaths returns the directories searched for the config file, in
// order.
func SearchPaths() []string {
	return []string{".", ConfigDir()}
}
