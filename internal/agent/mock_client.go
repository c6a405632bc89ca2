package agent

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedClient replays a fixed sequence of responses and records every
// conversation it was sent. Tests use it as a deterministic model oracle.
type ScriptedClient struct {
	mu        sync.Mutex
	responses []ScriptedResponse
	calls     [][]Message
}

// ScriptedResponse is one scripted turn: either content or an error.
type ScriptedResponse struct {
	Content string
	Err     error
}

func NewScriptedClient(responses ...ScriptedResponse) *ScriptedClient {
	return &ScriptedClient{responses: responses}
}

// Script appends further responses to the sequence.
func (s *ScriptedClient) Script(responses ...ScriptedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, responses...)
}

func (s *ScriptedClient) ChatComplete(ctx context.Context, messages []Message, maxTokens int, temperature float64, usePlanningModel bool) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recorded := make([]Message, len(messages))
	copy(recorded, messages)
	s.calls = append(s.calls, recorded)

	if len(s.calls) > len(s.responses) {
		return nil, fmt.Errorf("scripted client exhausted after %d responses", len(s.responses))
	}
	r := s.responses[len(s.calls)-1]
	if r.Err != nil {
		return nil, r.Err
	}
	return &Result{Content: r.Content}, nil
}

// Calls returns every conversation sent so far, in order.
func (s *ScriptedClient) Calls() [][]Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Message, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many requests have been made.
func (s *ScriptedClient) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
