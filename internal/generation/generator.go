package generation

import (
	"context"
	"log/slog"

	"novelforge/internal/agent"
	"novelforge/internal/core"
)

// maxParseAttempts bounds the escalation loop. Transport failures are never
// retried here; only parse failures consume attempts.
const maxParseAttempts = 3

// Generator wraps the transport with the structured-output protocol: a
// fixed system prompt per task, a token budget, and a bounded retry loop
// that progressively strengthens the JSON-format instruction.
type Generator struct {
	transport agent.ChatCompleter
	logger    *slog.Logger
}

type GeneratorOption func(*Generator)

func WithLogger(logger *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		g.logger = logger
	}
}

func NewGenerator(transport agent.ChatCompleter, opts ...GeneratorOption) *Generator {
	g := &Generator{
		transport: transport,
		logger:    slog.Default().With("component", "generator"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Options tunes one generation request.
type Options struct {
	// MaxTokens overrides the task's default token budget when > 0.
	MaxTokens int
	// Temperature overrides the default of 0.7 when set. A pointer so an
	// explicit 0 (deterministic sampling) is distinguishable from unset.
	Temperature *float64
	// UsePlanningModel routes the request to the planning model when the
	// transport carries one.
	UsePlanningModel bool
}

// Generate runs one structured-output request. On a parse failure with
// attempts remaining, the escalation suffix for that attempt is appended to
// the last user message and the same conversation is re-sent; the system
// prompt and original request are never rewritten. Exhausting all attempts
// yields a *core.StructuredOutputError; transport failures surface
// unchanged and consume no further attempts.
func (g *Generator) Generate(ctx context.Context, task Task, prompt string, opts Options) (map[string]any, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = TokenBudget(task)
	}
	temperature := 0.7
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}

	messages := []agent.Message{
		{Role: agent.RoleSystem, Content: SystemPrompt(task)},
		{Role: agent.RoleUser, Content: prompt},
	}

	var lastContent string
	for attempt := 1; attempt <= maxParseAttempts; attempt++ {
		g.logger.Debug("generation attempt",
			"task", string(task),
			"attempt", attempt,
			"max_attempts", maxParseAttempts,
			"max_tokens", maxTokens,
			"planning", opts.UsePlanningModel)

		result, err := g.transport.ChatComplete(ctx, messages, maxTokens, temperature, opts.UsePlanningModel)
		if err != nil {
			g.logger.Error("transport failure",
				"task", string(task),
				"attempt", attempt,
				"error", err)
			return nil, err
		}
		lastContent = result.Content

		if thinking := ExtractThinking(result.Content); thinking != "" {
			g.logger.Debug("model thinking detected",
				"task", string(task),
				"thinking_length", len(thinking))
		}

		obj, ok := ExtractObject(result.Content)
		if ok {
			if attempt > 1 {
				g.logger.Info("structured output recovered after escalation",
					"task", string(task),
					"attempt", attempt)
			}
			return obj, nil
		}

		g.logger.Warn("structured output parse failed",
			"task", string(task),
			"attempt", attempt,
			"response_length", len(result.Content))

		if attempt < maxParseAttempts {
			messages = escalate(messages, attempt)
		}
	}

	return nil, &core.StructuredOutputError{
		Task:     string(task),
		Attempts: maxParseAttempts,
		LastText: tail(lastContent, 500),
	}
}

// escalate appends the format-enforcement suffix for the given attempt to
// the last user message, leaving the rest of the conversation untouched.
func escalate(messages []agent.Message, attempt int) []agent.Message {
	out := make([]agent.Message, len(messages))
	copy(out, messages)
	if len(out) > 0 && out[len(out)-1].Role == agent.RoleUser {
		out[len(out)-1].Content += EscalationSuffix(attempt)
	}
	return out
}

// EscalationSuffix maps an attempt index (1-based, counting failures so
// far) to the instruction appended before the next attempt.
func EscalationSuffix(attempt int) string {
	switch attempt {
	case 1:
		return `

IMPORTANT REMINDER: respond strictly in JSON format.
- Wrap the JSON in a ` + "```json```" + ` code block
- Use double quotes around every string
- Do not add any explanatory text before or after the JSON
- Make sure every bracket and comma is balanced

Example:
` + "```json" + `
{
    "key": "value"
}
` + "```"
	case 2:
		return `

FINAL WARNING: JSON only.
- Output nothing but JSON, no other text
- Standard JSON syntax only, no single quotes
- Numbers without quotes
- Booleans as true/false, never True/False
- No trailing comma after the last element

Output the JSON immediately, with no explanation.`
	default:
		return `

JSON format checklist:
- ` + "```json```" + ` code block
- double-quoted strings
- unquoted numbers
- true/false booleans
- no trailing commas
- balanced brackets

Output valid JSON now.`
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
