package llm

import (
	"context"
	"strings"
	"sync"
)

// MockCompleter returns scripted replies. With no script it echoes the last
// user message, which is enough to exercise a pipeline end to end.
type MockCompleter struct {
	mu      sync.Mutex
	replies []string
	next    int
	Err     error

	Calls [][]Message
}

func NewMockCompleter(replies ...string) *MockCompleter {
	return &MockCompleter{replies: replies}
}

func (m *MockCompleter) Complete(ctx context.Context, messages []Message) (string, error) {
	return m.Stream(ctx, messages, nil)
}

func (m *MockCompleter) Stream(_ context.Context, messages []Message, onDelta func(delta string) error) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, messages)
	err := m.Err
	reply := ""
	if err == nil {
		if m.next < len(m.replies) {
			reply = m.replies[m.next]
			m.next++
		} else {
			reply = "You said: " + lastUserContent(messages)
		}
	}
	m.mu.Unlock()

	if err != nil {
		return "", err
	}
	if onDelta != nil {
		// Deliver in word-sized deltas to mimic streaming.
		for _, word := range strings.SplitAfter(reply, " ") {
			if word == "" {
				continue
			}
			if err := onDelta(word); err != nil {
				return reply, err
			}
		}
	}
	return reply, nil
}

func lastUserContent(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
