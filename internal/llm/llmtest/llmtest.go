// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/llm"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
)

// Reply is one scripted answer.
type Reply struct {
	Text    string
	Err     error
	NoUsage bool
	Delay   time.Duration
	Vector  []float32
}

// Call is one recorded request.
type Call struct {
	Operation model.OperationType
	Request   *llm.CompletionRequest
	Input     string
}

// Client answers from per-operation queues. The last reply of a queue repeats.
// Operations with no script get DefaultText.
type Client struct {
	DefaultText string

	mu      sync.Mutex
	replies map[model.OperationType][]Reply
	calls   []Call
}

// New returns an empty scripted client.
func New() *Client {
	return &Client{
		DefaultText: "ok",
		replies:     make(map[model.OperationType][]Reply),
	}
}

// On queues replies for op.
func (c *Client) On(op model.OperationType, replies ...Reply) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies[op] = append(c.replies[op], replies...)
	return c
}

// Text is shorthand for queuing plain text replies.
func (c *Client) Text(op model.OperationType, texts ...string) *Client {
	replies := make([]Reply, len(texts))
	for i, t := range texts {
		replies[i] = Reply{Text: t}
	}
	return c.On(op, replies...)
}

// Name implements llm.Client.
func (c *Client) Name() string { return "scripted" }

// Models implements llm.Client.
func (c *Client) Models() []string { return []string{"scripted-1"} }

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	op := llm.OperationFromContext(ctx)
	r := c.next(Call{Operation: op, Request: req})
	if err := wait(ctx, r.Delay); err != nil {
		return nil, err
	}
	if r.Err != nil {
		return nil, r.Err
	}

	resp := &llm.CompletionResponse{Content: r.Text, Model: "scripted-1"}
	if !r.NoUsage {
		resp.TokensIn = 10
		resp.TokensOut = len(r.Text)/4 + 1
		resp.UsageReported = true
	}
	return resp, nil
}

// Embed implements llm.Embedder.
func (c *Client) Embed(ctx context.Context, _ string, input string) (*llm.EmbeddingResponse, error) {
	op := llm.OperationFromContext(ctx)
	r := c.next(Call{Operation: op, Input: input})
	if err := wait(ctx, r.Delay); err != nil {
		return nil, err
	}
	if r.Err != nil {
		return nil, r.Err
	}
	vec := r.Vector
	if vec == nil {
		vec = []float32{0.1, 0.2, 0.3}
	}
	resp := &llm.EmbeddingResponse{Vector: vec, Model: "scripted-embed"}
	if !r.NoUsage {
		resp.TokensIn = 8
		resp.UsageReported = true
	}
	return resp, nil
}

// Calls returns every recorded request.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// Count returns how many calls were made for op.
func (c *Client) Count(op model.OperationType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call.Operation == op {
			n++
		}
	}
	return n
}

func (c *Client) next(call Call) Reply {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)

	q := c.replies[call.Operation]
	switch len(q) {
	case 0:
		return Reply{Text: c.DefaultText}
	case 1:
		return q[0]
	}
	r := q[0]
	c.replies[call.Operation] = q[1:]
	return r
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrUnavailable is a generic transient provider failure.
var ErrUnavailable = errors.New("503 service unavailable")
