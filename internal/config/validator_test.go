package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "parallel.instances",
		Value:   0,
		Message: "must be at least 1",
	}

	expected := "parallel.instances: must be at least 1 (got: 0)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "a", Value: 1, Message: "bad"},
			{Field: "b", Value: 2, Message: "worse"},
		}
		got := errs.Error()
		if !strings.HasPrefix(got, "2 validation errors:\n") {
			t.Errorf("Error() = %q", got)
		}
		if !strings.Contains(got, "  2. b: worse (got: 2)") {
			t.Errorf("Error() = %q", got)
		}
	})
}

func TestParseToolOrder(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"gemini,codex,claude", []string{"gemini", "codex", "claude"}},
		{" Claude , ,Codex ", []string{"claude", "codex"}},
		{"", nil},
		{" , ", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseToolOrder(tt.in), "ParseToolOrder(%q)", tt.in)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"empty checklist", func(c *Config) { c.Run.Checklist = " " }, "run.checklist"},
		{"bad mode", func(c *Config) { c.Run.Mode = "boss" }, "run.mode"},
		{"empty token", func(c *Config) { c.Run.CompletionToken = "" }, "run.completion_token"},
		{"negative sleep", func(c *Config) { c.Run.SleepSeconds = -1 }, "run.sleep_seconds"},
		{"no tools", func(c *Config) { c.Tools.Order = " , " }, "tools.order"},
		{"unknown tool", func(c *Config) { c.Tools.Order = "gemini,gpt" }, "tools.order"},
		{"custom tool without command", func(c *Config) {
			c.Tools.Order = "mine"
			c.Tools.Custom = map[string]CustomToolConfig{"mine": {}}
		}, "tools.custom.mine.command"},
		{"zero rate limit timeout", func(c *Config) { c.Tools.RateLimitTimeout = 0 }, "tools.rate_limit_timeout"},
		{"negative invocation timeout", func(c *Config) { c.Tools.InvocationTimeout = -time.Second }, "tools.invocation_timeout"},
		{"zero instances", func(c *Config) { c.Parallel.Instances = 0 }, "parallel.instances"},
		{"too many instances", func(c *Config) { c.Parallel.Instances = 65 }, "parallel.instances"},
		{"parallel controller", func(c *Config) {
			c.Parallel.Instances = 2
			c.Run.Mode = ModeController
		}, "run.mode"},
		{"negative warmup", func(c *Config) { c.Parallel.Warmup = -time.Second }, "parallel.warmup"},
		{"zero stop wait", func(c *Config) { c.Parallel.StopWait = 0 }, "parallel.stop_wait"},
		{"zero shutdown wait", func(c *Config) { c.Parallel.ShutdownWait = 0 }, "parallel.shutdown_wait"},
		{"empty base path", func(c *Config) { c.Checkout.BasePath = "" }, "checkout.base_path"},
		{"zero items", func(c *Config) { c.Checkout.ItemsPerInstance = 0 }, "checkout.items_per_instance"},
		{"zero lock timeout", func(c *Config) { c.Checkout.LockTimeout = 0 }, "checkout.lock_timeout"},
		{"spiral without verify", func(c *Config) { c.Verify.Spiral = true }, "verify.spiral"},
		{"spiral ceiling", func(c *Config) {
			c.Verify.Enabled = true
			c.Verify.Spiral = true
			c.Verify.MaxSpirals = 0
		}, "verify.max_spirals"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"negative size", func(c *Config) { c.Logging.MaxSizeMB = -1 }, "logging.max_size_mb"},
		{"negative backups", func(c *Config) { c.Logging.MaxBackups = -1 }, "logging.max_backups"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			errs := cfg.Validate()
			require.NotEmpty(t, errs)
			fields := make([]string, len(errs))
			for i, e := range errs {
				fields[i] = e.Field
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestValidate_CheckoutDisabledSkipsCheckoutFields(t *testing.T) {
	cfg := Default()
	cfg.Checkout.Enabled = false
	cfg.Checkout.ItemsPerInstance = 0
	assert.Empty(t, cfg.Validate())
}

func TestValidate_LevelIsCaseInsensitive(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "DEBUG"
	assert.Empty(t, cfg.Validate())
}

// validConfig returns a config whose tools resolve to executables present
// on every test machine.
func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := Default()
	cfg.Checkout.BasePath = t.TempDir()
	cfg.Tools.Order = "sh"
	cfg.Tools.Custom = map[string]CustomToolConfig{"sh": {Command: "sh"}}
	return cfg
}

func TestValidateDeep_Valid(t *testing.T) {
	require.NoError(t, validConfig(t).ValidateDeep(""))
}

func TestValidateDeep_StructuralErrorsFirst(t *testing.T) {
	cfg := validConfig(t)
	cfg.Parallel.Instances = 0

	err := cfg.ValidateDeep("")
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
}

func TestValidateDeep_MissingExecutable(t *testing.T) {
	cfg := validConfig(t)
	cfg.Tools.Order = "claude,sh"
	cfg.Tools.Claude.Command = "definitely-not-an-llm-cli-xyz"

	err := cfg.ValidateDeep("")

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	require.Len(t, fieldErrs, 1)
	assert.Equal(t, "tools.claude.command", fieldErrs[0].Field)
	assert.Contains(t, fieldErrs[0].Err.Error(), "executable not found")
}

func TestValidateDeep_Paths(t *testing.T) {
	cfg := validConfig(t)
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	cfg.Checkout.BasePath = file
	cfg.Verify.PromptFile = filepath.Join(t.TempDir(), "missing.md")

	err := cfg.ValidateDeep("")

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Len(t, fieldErrs, 2)
	fields := []string{fieldErrs[0].Field, fieldErrs[1].Field}
	assert.ElementsMatch(t, []string{"checkout.base_path", "verify.prompt_file"}, fields)
}

func TestValidateDeep_ConfigFile(t *testing.T) {
	cfg := validConfig(t)

	t.Run("missing file is fine", func(t *testing.T) {
		assert.NoError(t, cfg.ValidateDeep(filepath.Join(t.TempDir(), "afkcode.yaml")))
	})

	t.Run("directory is rejected", func(t *testing.T) {
		err := cfg.ValidateDeep(t.TempDir())
		var fieldErrs criterio.FieldErrors
		require.ErrorAs(t, err, &fieldErrs)
		assert.Equal(t, "config_file", fieldErrs[0].Field)
	})
}
