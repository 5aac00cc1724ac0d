// Package llmtest provides a scripted chat model for tests.
package llmtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ReplyFunc produces the model answer for one prompt.
type ReplyFunc func(ctx context.Context, input []*schema.Message) (string, error)

// ChatModel records every prompt it receives and answers through Reply.
type ChatModel struct {
	mu    sync.Mutex
	calls [][]*schema.Message
	Reply ReplyFunc
}

var _ model.BaseChatModel = (*ChatModel)(nil)

// New returns a model that answers "reply N" to the N-th call.
func New() *ChatModel {
	m := &ChatModel{}
	m.Reply = func(context.Context, []*schema.Message) (string, error) {
		return fmt.Sprintf("reply %d", m.Calls()), nil
	}
	return m
}

// Echo returns a model that answers with the content of the last prompt message.
func Echo(prefix string) *ChatModel {
	return &ChatModel{Reply: func(_ context.Context, input []*schema.Message) (string, error) {
		if len(input) == 0 {
			return prefix, nil
		}
		return prefix + input[len(input)-1].Content, nil
	}}
}

func (m *ChatModel) record(input []*schema.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([]*schema.Message, len(input))
	copy(copied, input)
	m.calls = append(m.calls, copied)
}

// Calls returns how many prompts were received.
func (m *ChatModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Prompt returns the i-th prompt received.
func (m *ChatModel) Prompt(i int) []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[i]
}

// Prompts returns every prompt received so far.
func (m *ChatModel) Prompts() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]*schema.Message(nil), m.calls...)
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.record(input)
	text, err := m.Reply(ctx, input)
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(text, nil), nil
}

func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.record(input)
	text, err := m.Reply(ctx, input)
	if err != nil {
		return nil, err
	}

	parts := strings.SplitAfter(text, " ")
	chunks := make([]*schema.Message, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		chunks = append(chunks, schema.AssistantMessage(part, nil))
	}
	return schema.StreamReaderFromArray(chunks), nil
}
