package ai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Iron-Ham/afkcode/internal/config"
	"github.com/Iron-Ham/afkcode/internal/errors"
	"github.com/Iron-Ham/afkcode/internal/logging"
)

// DefaultRateLimitTimeout is how long a rate-limited tool is skipped.
const DefaultRateLimitTimeout = 5 * time.Minute

// Chain invokes the most preferred usable tool, falling back down the list
// when a tool is rate limited or fails. Rate-limited tools become
// preferred again once their timeout has elapsed.
//
// Each worker owns its own Chain; the mutex only guards against a caller
// sharing one by accident.
type Chain struct {
	mu      sync.Mutex
	tools   []Tool
	current int
	limited map[string]time.Time
	timeout time.Duration

	now     func() time.Time
	invoker Invoker
	sink    logging.Sink
	logger  *logging.Logger
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithRateLimitTimeout overrides DefaultRateLimitTimeout.
func WithRateLimitTimeout(d time.Duration) ChainOption {
	return func(c *Chain) { c.timeout = d }
}

// WithClock replaces time.Now for rate-limit bookkeeping.
func WithClock(now func() time.Time) ChainOption {
	return func(c *Chain) { c.now = now }
}

// WithInvoker replaces the process invoker.
func WithInvoker(inv Invoker) ChainOption {
	return func(c *Chain) { c.invoker = inv }
}

// WithSink sets the transcript that receives tool-selection messages.
func WithSink(s logging.Sink) ChainOption {
	return func(c *Chain) { c.sink = s }
}

// WithLogger sets the structured logger.
func WithLogger(l *logging.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

// NewChain creates a Chain over tools, most preferred first.
func NewChain(tools []Tool, opts ...ChainOption) (*Chain, error) {
	if len(tools) == 0 {
		return nil, errors.NewToolError("no LLM tools configured", errors.ErrNoTools)
	}
	c := &Chain{
		tools:   append([]Tool(nil), tools...),
		limited: make(map[string]time.Time),
		timeout: DefaultRateLimitTimeout,
		now:     time.Now,
		invoker: ProcessInvoker{},
		sink:    logging.Discard,
		logger:  logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewChainFromConfig builds a Chain over the tools named in cfg, with
// the configured rate-limit window and per-invocation timeout. opts are
// applied last.
func NewChainFromConfig(cfg config.ToolsConfig, opts ...ChainOption) (*Chain, error) {
	tools, err := ToolsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	base := []ChainOption{WithInvoker(ProcessInvoker{Timeout: cfg.InvocationTimeout})}
	if cfg.RateLimitTimeout > 0 {
		base = append(base, WithRateLimitTimeout(cfg.RateLimitTimeout))
	}
	return NewChain(tools, append(base, opts...)...)
}

// Current returns the name of the tool the next call will try first,
// before any rate-limit reset.
func (c *Chain) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tools[c.current].Name
}

// Invoke runs prompt through the chain.
func (c *Chain) Invoke(ctx context.Context, prompt string) (stdout, stderr string, err error) {
	return c.invoke(ctx, prompt, true)
}

// InvokeWithoutThinking runs prompt with each tool's reasoning mode
// turned down, for short yes/no checks.
func (c *Chain) InvokeWithoutThinking(ctx context.Context, prompt string) (stdout, stderr string, err error) {
	return c.invoke(ctx, prompt, false)
}

func (c *Chain) invoke(ctx context.Context, prompt string, thinking bool) (string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetToPreferred()

	for {
		tool := c.tools[c.current]
		if thinking {
			c.sink.Message(fmt.Sprintf("Using LLM tool: %s", tool.Name))
		} else {
			c.sink.Message(fmt.Sprintf("Using LLM tool: %s (thinking disabled)", tool.Name))
		}

		start := c.now()
		stdout, stderr, err := c.invoker.Invoke(ctx, tool, prompt, thinking)
		c.logger.Debug("tool invocation finished",
			"tool", tool.Name,
			"duration_ms", c.now().Sub(start).Milliseconds(),
			"stdout_bytes", len(stdout),
			"stderr_bytes", len(stderr),
			"error", err,
		)

		if err != nil {
			if ctx.Err() != nil {
				return stdout, stderr, err
			}
			c.sink.Message(fmt.Sprintf("Error invoking %s: %v", tool.Name, err))
			c.logger.Warn("tool invocation failed", "tool", tool.Name, "error", err)
			if !c.advance() {
				return stdout, stderr, err
			}
			continue
		}

		if tool.IsRateLimited(stdout, stderr) {
			c.limited[tool.Name] = c.now()
			c.sink.Message(fmt.Sprintf("Rate limit detected for %s. Temporarily squelching for %s.", tool.Name, humanDuration(c.timeout)))
			c.logger.Warn("tool rate limited", "tool", tool.Name)
			if !c.advance() {
				return stdout, stderr, errors.NewToolError("fallback chain", errors.ErrToolsExhausted).WithTool(tool.Name)
			}
			continue
		}

		return stdout, stderr, nil
	}
}

// resetToPreferred moves back to the most preferred tool ahead of the
// current one whose rate limit has expired. Tools that failed without
// being rate limited have no record and are always eligible.
func (c *Chain) resetToPreferred() {
	for i := 0; i < c.current; i++ {
		name := c.tools[i].Name
		if at, ok := c.limited[name]; ok && c.now().Sub(at) < c.timeout {
			continue
		}
		c.sink.Message(fmt.Sprintf("Rate limit timeout expired for %s. Resetting to preferred tool.", name))
		c.current = i
		return
	}
}

func (c *Chain) advance() bool {
	if c.current >= len(c.tools)-1 {
		return false
	}
	c.current++
	c.sink.Message(fmt.Sprintf("Switching to fallback tool: %s", c.tools[c.current].Name))
	return true
}

func humanDuration(d time.Duration) string {
	if d%time.Minute != 0 {
		return d.String()
	}
	if m := int(d / time.Minute); m != 1 {
		return fmt.Sprintf("%d minutes", m)
	}
	return "1 minute"
}
