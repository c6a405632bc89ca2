package agent

import "context"

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token accounting as returned by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is a completed chat turn.
type Result struct {
	Content string
	Usage   Usage
	Model   string
}

// ChatCompleter is the transport capability the generation layer consumes.
// Implementations must surface transport failures as *core.TransportError
// and must not attempt any JSON interpretation of the content.
type ChatCompleter interface {
	ChatComplete(ctx context.Context, messages []Message, maxTokens int, temperature float64, usePlanningModel bool) (*Result, error)
}

const (
	RoleSystem = "system"
	RoleUser   = "user"
)
