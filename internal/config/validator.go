package config

import (
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"

	"github.com/hay-kot/criterio"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "parallel.instances")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidModes returns the list of valid run modes
func ValidModes() []string {
	return []string{ModeWorker, ModeController}
}

// ParseToolOrder splits a comma-separated tool list, trimming blanks and
// lower-casing names.
func ParseToolOrder(order string) []string {
	var names []string
	for _, name := range strings.Split(order, ",") {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateRun()...)
	errors = append(errors, c.validateTools()...)
	errors = append(errors, c.validateParallel()...)
	errors = append(errors, c.validateCheckout()...)
	errors = append(errors, c.validateVerify()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateRun() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Run.Checklist) == "" {
		errors = append(errors, ValidationError{
			Field:   "run.checklist",
			Value:   c.Run.Checklist,
			Message: "must not be empty",
		})
	}

	if !slices.Contains(ValidModes(), c.Run.Mode) {
		errors = append(errors, ValidationError{
			Field:   "run.mode",
			Value:   c.Run.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidModes(), ", ")),
		})
	}

	if strings.TrimSpace(c.Run.CompletionToken) == "" {
		errors = append(errors, ValidationError{
			Field:   "run.completion_token",
			Value:   c.Run.CompletionToken,
			Message: "must not be empty",
		})
	}

	if c.Run.SleepSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "run.sleep_seconds",
			Value:   c.Run.SleepSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateTools() []ValidationError {
	var errors []ValidationError

	names := ParseToolOrder(c.Tools.Order)
	if len(names) == 0 {
		errors = append(errors, ValidationError{
			Field:   "tools.order",
			Value:   c.Tools.Order,
			Message: "must name at least one tool",
		})
	}
	for _, name := range names {
		if slices.Contains(BuiltinTools(), name) {
			continue
		}
		if _, ok := c.Tools.Custom[name]; ok {
			continue
		}
		errors = append(errors, ValidationError{
			Field:   "tools.order",
			Value:   name,
			Message: fmt.Sprintf("unknown tool (built-in: %s; or define tools.custom.%s)", strings.Join(BuiltinTools(), ", "), name),
		})
	}

	for name, custom := range c.Tools.Custom {
		if strings.TrimSpace(custom.Command) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("tools.custom.%s.command", name),
				Value:   custom.Command,
				Message: "must not be empty",
			})
		}
	}

	if c.Tools.RateLimitTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "tools.rate_limit_timeout",
			Value:   c.Tools.RateLimitTimeout,
			Message: "must be positive",
		})
	}

	if c.Tools.InvocationTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "tools.invocation_timeout",
			Value:   c.Tools.InvocationTimeout,
			Message: "must be non-negative (0 disables the limit)",
		})
	}

	return errors
}

func (c *Config) validateParallel() []ValidationError {
	var errors []ValidationError

	if c.Parallel.Instances < 1 {
		errors = append(errors, ValidationError{
			Field:   "parallel.instances",
			Value:   c.Parallel.Instances,
			Message: "must be at least 1",
		})
	}

	// Reasonable upper bound; every worker runs its own LLM process
	const maxInstances = 64
	if c.Parallel.Instances > maxInstances {
		errors = append(errors, ValidationError{
			Field:   "parallel.instances",
			Value:   c.Parallel.Instances,
			Message: fmt.Sprintf("exceeds maximum of %d", maxInstances),
		})
	}

	if c.Parallel.Instances > 1 && c.Run.Mode == ModeController {
		errors = append(errors, ValidationError{
			Field:   "run.mode",
			Value:   c.Run.Mode,
			Message: "controller mode runs a single instance; set parallel.instances to 1",
		})
	}

	if c.Parallel.Warmup < 0 {
		errors = append(errors, ValidationError{
			Field:   "parallel.warmup",
			Value:   c.Parallel.Warmup,
			Message: "must be non-negative",
		})
	}

	if c.Parallel.StopWait <= 0 {
		errors = append(errors, ValidationError{
			Field:   "parallel.stop_wait",
			Value:   c.Parallel.StopWait,
			Message: "must be positive",
		})
	}

	if c.Parallel.ShutdownWait <= 0 {
		errors = append(errors, ValidationError{
			Field:   "parallel.shutdown_wait",
			Value:   c.Parallel.ShutdownWait,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateCheckout() []ValidationError {
	var errors []ValidationError

	if !c.Checkout.Enabled {
		return nil
	}

	if strings.TrimSpace(c.Checkout.BasePath) == "" {
		errors = append(errors, ValidationError{
			Field:   "checkout.base_path",
			Value:   c.Checkout.BasePath,
			Message: "must not be empty",
		})
	}

	if c.Checkout.ItemsPerInstance < 1 {
		errors = append(errors, ValidationError{
			Field:   "checkout.items_per_instance",
			Value:   c.Checkout.ItemsPerInstance,
			Message: "must be at least 1",
		})
	}

	if c.Checkout.LockTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "checkout.lock_timeout",
			Value:   c.Checkout.LockTimeout,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateVerify() []ValidationError {
	var errors []ValidationError

	if c.Verify.Spiral && c.Verify.MaxSpirals < 1 {
		errors = append(errors, ValidationError{
			Field:   "verify.max_spirals",
			Value:   c.Verify.MaxSpirals,
			Message: "must be at least 1 when spiral is enabled",
		})
	}

	if c.Verify.Spiral && !c.Verify.Enabled {
		errors = append(errors, ValidationError{
			Field:   "verify.spiral",
			Value:   c.Verify.Spiral,
			Message: "requires verify.enabled",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative (0 disables rotation)",
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

// ValidateDeep runs Validate and then checks the filesystem and PATH:
// the checkout base directory, the verifier prompt file, the config file
// itself and every tool executable in tools.order. Field failures are
// returned as criterio.FieldErrors.
func (c *Config) ValidateDeep(configPath string) error {
	if errs := c.Validate(); len(errs) > 0 {
		return ValidationErrors(errs)
	}

	return criterio.ValidateStruct(
		validateConfigFile(configPath),
		c.validatePaths(),
		c.validateExecutables(),
	)
}

func validateConfigFile(configPath string) error {
	if configPath == "" {
		return nil
	}

	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil // defaults are used
	}
	if err != nil {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("cannot access: %w", err))
	}
	if info.IsDir() {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
	}
	return nil
}

func (c *Config) validatePaths() error {
	var checks []error
	if c.Checkout.Enabled || c.Verify.Enabled {
		checks = append(checks, criterio.Run("checkout.base_path", c.Checkout.BasePath, isDirectory))
	}
	checks = append(checks, criterio.Run("verify.prompt_file", c.Verify.PromptFile, isReadableFileOrEmpty))
	return criterio.ValidateStruct(checks...)
}

func (c *Config) validateExecutables() error {
	var errs criterio.FieldErrorsBuilder
	for _, name := range ParseToolOrder(c.Tools.Order) {
		command := c.commandFor(name)
		if command == "" {
			continue
		}
		if _, err := exec.LookPath(command); err != nil {
			errs = errs.Append(fmt.Sprintf("tools.%s.command", name), fmt.Errorf("executable not found: %s", command))
		}
	}
	return errs.ToError()
}

// commandFor returns the executable configured for a tool name.
func (c *Config) commandFor(name string) string {
	switch name {
	case ToolGemini:
		return c.Tools.Gemini.Command
	case ToolCodex:
		return c.Tools.Codex.Command
	case ToolClaude:
		return c.Tools.Claude.Command
	}
	return c.Tools.Custom[name].Command
}

func isDirectory(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

func isReadableFileOrEmpty(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot read: %w", err)
	}
	return f.Close()
}
