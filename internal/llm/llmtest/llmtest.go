// Package llmtest provides deterministic llm.Client doubles for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/mohammad-safakhou/climarisk/internal/llm"
)

// ErrScriptExhausted is returned once every scripted reply was consumed.
var ErrScriptExhausted = errors.New("llmtest: no scripted reply left")

// Reply is one scripted backend answer.
type Reply struct {
	Content string
	Err     error
}

// Text scripts a successful answer.
func Text(content string) Reply { return Reply{Content: content} }

// Fail scripts a backend error.
func Fail(err error) Reply { return Reply{Err: err} }

// ScriptedClient replays replies in order and records every request.
// When Respond is set it answers instead of the script.
type ScriptedClient struct {
	Replies []Reply
	Respond func(req llm.Request) (string, error)

	mu    sync.Mutex
	calls []llm.Request
	next  int
}

// NewScripted builds a client replaying the given contents.
func NewScripted(contents ...string) *ScriptedClient {
	c := &ScriptedClient{}
	for _, content := range contents {
		c.Replies = append(c.Replies, Text(content))
	}
	return c
}

// Converse implements llm.Client.
func (c *ScriptedClient) Converse(ctx context.Context, req llm.Request) (llm.Message, error) {
	c.mu.Lock()
	c.calls = append(c.calls, cloneRequest(req))
	respond := c.Respond
	var reply Reply
	exhausted := false
	if respond == nil {
		if c.next >= len(c.Replies) {
			exhausted = true
		} else {
			reply = c.Replies[c.next]
			c.next++
		}
	}
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return llm.Message{}, err
	}
	if respond != nil {
		content, err := respond(req)
		if err != nil {
			return llm.Message{}, err
		}
		return llm.Assistant(content), nil
	}
	if exhausted {
		return llm.Message{}, ErrScriptExhausted
	}
	if reply.Err != nil {
		return llm.Message{}, reply.Err
	}
	return llm.Assistant(reply.Content), nil
}

// Calls returns the recorded requests.
func (c *ScriptedClient) Calls() []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Request(nil), c.calls...)
}

// CallCount returns the number of requests received.
func (c *ScriptedClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func cloneRequest(req llm.Request) llm.Request {
	req.Messages = append([]llm.Message(nil), req.Messages...)
	return req
}
