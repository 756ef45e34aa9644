// Package ai invokes external LLM command-line tools and falls back
// between them when one is rate limited or fails.
package ai

import (
	"strings"

	"github.com/Iron-Ham/afkcode/internal/config"
	"github.com/Iron-Ham/afkcode/internal/errors"
)

// Tool describes how to run one LLM command-line tool.
type Tool struct {
	// Name identifies the tool in logs and rate-limit bookkeeping.
	Name    string
	Command string
	// Args always precede the model flag and the prompt.
	Args      []string
	ModelFlag string
	Model     string
	// PromptAsArg passes the prompt as the last positional argument
	// instead of on stdin.
	PromptAsArg bool
	// RateLimitPatterns are matched case-insensitively against the
	// combined stdout and stderr.
	RateLimitPatterns []string
	// NoThinkingArgs are appended, and NoThinkingPrefix prepended to the
	// prompt, when thinking is disabled.
	NoThinkingArgs   []string
	NoThinkingPrefix string
}

// Gemini returns the built-in gemini descriptor.
func Gemini() Tool {
	return Tool{
		Name:        config.ToolGemini,
		Command:     "gemini",
		Args:        []string{"--yolo"},
		ModelFlag:   "-m",
		PromptAsArg: true,
		RateLimitPatterns: []string{
			"rate limit",
			"quota exceeded",
			"429",
			"too many requests",
			"resource exhausted",
		},
	}
}

// Codex returns the built-in codex descriptor.
func Codex() Tool {
	return Tool{
		Name:      config.ToolCodex,
		Command:   "codex",
		Args:      []string{"exec"},
		ModelFlag: "-m",
		RateLimitPatterns: []string{
			"rate limit reached",
			"rate_limit_error",
			"429",
			"too many requests",
		},
		NoThinkingArgs: []string{"-c", `model_reasoning_effort="minimal"`},
	}
}

// Claude returns the built-in claude descriptor.
func Claude() Tool {
	return Tool{
		Name:      config.ToolClaude,
		Command:   "claude",
		Args:      []string{"--print", "--dangerously-skip-permissions"},
		ModelFlag: "--model",
		RateLimitPatterns: []string{
			"usage limit reached",
			"rate limit reached",
			"rate_limit_error",
			"429",
			"limit will reset",
		},
		NoThinkingPrefix: "<thinking_mode>disabled</thinking_mode>\n\n",
	}
}

// Argv returns the arguments and the stdin payload for one invocation.
// stdin is empty when the prompt travels as an argument.
func (t Tool) Argv(prompt string, thinking bool) (args []string, stdin string) {
	args = append(args, t.Args...)
	if t.Model != "" && t.ModelFlag != "" {
		args = append(args, t.ModelFlag, t.Model)
	}
	if !thinking {
		args = append(args, t.NoThinkingArgs...)
		prompt = t.NoThinkingPrefix + prompt
	}
	if t.PromptAsArg {
		return append(args, prompt), ""
	}
	return args, prompt
}

// IsRateLimited reports whether the combined output matches one of the
// tool's rate-limit patterns.
func (t Tool) IsRateLimited(stdout, stderr string) bool {
	combined := strings.ToLower(stdout + stderr)
	for _, p := range t.RateLimitPatterns {
		if p != "" && strings.Contains(combined, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// ToolsFromConfig builds the ordered tool list for a chain. Built-in
// tools take their command and model overrides from cfg; any other name
// must be defined under tools.custom.
func ToolsFromConfig(cfg config.ToolsConfig) ([]Tool, error) {
	names := config.ParseToolOrder(cfg.Order)
	if len(names) == 0 {
		return nil, errors.NewToolError("no LLM tools configured", errors.ErrNoTools)
	}

	tools := make([]Tool, 0, len(names))
	for _, name := range names {
		tool, err := toolFromConfig(name, cfg)
		if err != nil {
			return nil, err
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

func toolFromConfig(name string, cfg config.ToolsConfig) (Tool, error) {
	var (
		tool     Tool
		override config.ToolConfig
	)
	switch name {
	case config.ToolGemini:
		tool, override = Gemini(), cfg.Gemini
	case config.ToolCodex:
		tool, override = Codex(), cfg.Codex
	case config.ToolClaude:
		tool, override = Claude(), cfg.Claude
	default:
		custom, ok := cfg.Custom[name]
		if !ok {
			return Tool{}, errors.NewToolError("unsupported LLM tool", errors.ErrUnknownTool).WithTool(name)
		}
		return Tool{
			Name:              name,
			Command:           custom.Command,
			Args:              custom.Args,
			ModelFlag:         custom.ModelFlag,
			Model:             custom.Model,
			PromptAsArg:       custom.PromptAsArg,
			RateLimitPatterns: custom.RateLimitPatterns,
		}, nil
	}

	if override.Command != "" {
		tool.Command = override.Command
	}
	tool.Model = override.Model
	return tool, nil
}
