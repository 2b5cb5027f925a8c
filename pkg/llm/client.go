// Package llm provides the generation clients: a local client wrapping
// in-process model backends (gpt4all, llama.cpp) and an external client
// calling a chat-completion HTTP API.
package llm

import "context"

// Client generates a textual reply for a prompt.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
