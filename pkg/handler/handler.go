// Package handler turns inbound gateway events into generation requests and
// normalizes the result into an HTTP-style response envelope.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/misaki-ai/misaki/pkg/audit"
	cachepkg "github.com/misaki-ai/misaki/pkg/cache/sqlite"
	"github.com/misaki-ai/misaki/pkg/llm"
	"github.com/misaki-ai/misaki/pkg/models"
	"github.com/misaki-ai/misaki/pkg/router"
)

// Response is the HTTP-style envelope returned to the transport layer,
// compatible with API gateway / serverless proxy integrations.
type Response struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// Selector picks an engine for a piece of user input.
type Selector interface {
	Select(userInput string) router.Result
}

// Handler processes inbound events. The zero dependencies are re-read from
// the environment per request; tests inject fixed selectors and fallbacks.
type Handler struct {
	newSelector func() Selector
	newFallback func() llm.Client
	auditor     *audit.Logger
	replies     *cachepkg.Cache
}

// Option configures a Handler.
type Option func(*Handler)

// WithSelector fixes the engine selector instead of rebuilding one from the
// environment per request.
func WithSelector(s Selector) Option {
	return func(h *Handler) { h.newSelector = func() Selector { return s } }
}

// WithFallback overrides the external fallback client factory.
func WithFallback(f func() llm.Client) Option {
	return func(h *Handler) { h.newFallback = f }
}

// WithAudit attaches a generation audit log.
func WithAudit(a *audit.Logger) Option {
	return func(h *Handler) { h.auditor = a }
}

// WithReplyCache attaches an exact-match reply cache consulted before
// routing.
func WithReplyCache(c *cachepkg.Cache) Option {
	return func(h *Handler) { h.replies = c }
}

// New creates a Handler. Without options, settings and clients come from
// the environment on every request.
func New(opts ...Option) *Handler {
	h := &Handler{
		newSelector: func() Selector { return router.FromEnv() },
		newFallback: func() llm.Client { return llm.ExternalFromEnv() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// inputError marks malformed or missing request fields. It surfaces as a
// 400 and is never retried.
type inputError struct{ msg string }

func (e *inputError) Error() string { return e.msg }

// ParseEvent extracts the user input from an inbound event.
func ParseEvent(event map[string]any) (string, error) {
	var payload any = event

	if body, ok := event["body"]; ok {
		payload = body
		if s, ok := body.(string); ok {
			if s == "" {
				s = "{}"
			}
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err != nil {
				return "", &inputError{msg: "Invalid JSON body"}
			}
			payload = decoded
		}
	}

	obj, ok := payload.(map[string]any)
	if !ok {
		return "", &inputError{msg: "Event body must be a JSON object"}
	}

	text, ok, err := normalizeConversation(obj)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &inputError{msg: "Missing 'input' field in request body"}
	}
	return text, nil
}

// normalizeConversation extracts a textual prompt from payload. Precedence:
// input, then conversation, then messages; first present key wins.
func normalizeConversation(payload map[string]any) (string, bool, error) {
	if raw, ok := payload["input"]; ok {
		s, ok := raw.(string)
		if !ok {
			return "", false, &inputError{msg: "'input' must be a string"}
		}
		return s, true, nil
	}

	if raw, ok := payload["conversation"]; ok {
		switch v := raw.(type) {
		case string:
			return v, true, nil
		case []any:
			lines := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return "", false, &inputError{msg: "'conversation' must be a string or list of strings"}
				}
				lines = append(lines, s)
			}
			return strings.Join(lines, "\n"), true, nil
		default:
			return "", false, &inputError{msg: "'conversation' must be a string or list of strings"}
		}
	}

	if raw, ok := payload["messages"]; ok {
		list, ok := raw.([]any)
		if !ok {
			return "", false, &inputError{msg: "'messages' must be a list"}
		}
		var compiled []string
		for _, item := range list {
			message, ok := item.(map[string]any)
			if !ok {
				return "", false, &inputError{msg: "Each message must be an object"}
			}
			content, ok := message["content"].(string)
			if !ok {
				return "", false, &inputError{msg: "Each message requires a string 'content'"}
			}
			if role, ok := message["role"].(string); ok && strings.TrimSpace(role) != "" {
				compiled = append(compiled, strings.TrimSpace(role)+": "+content)
			} else {
				compiled = append(compiled, content)
			}
		}
		if len(compiled) == 0 {
			return "", false, &inputError{msg: "'messages' must contain at least one item"}
		}
		return strings.Join(compiled, "\n"), true, nil
	}

	return "", false, nil
}

// HandleRaw decodes a raw JSON event and handles it.
func (h *Handler) HandleRaw(ctx context.Context, raw []byte) Response {
	var event map[string]any
	if err := json.Unmarshal(raw, &event); err != nil {
		return errorResponse("Invalid JSON body", http.StatusBadRequest)
	}
	return h.Handle(ctx, event)
}

// Handle processes one inbound event and returns the response envelope.
func (h *Handler) Handle(ctx context.Context, event map[string]any) Response {
	userInput, err := ParseEvent(event)
	if err != nil {
		log.Printf("invalid event: %v", err)
		return errorResponse(err.Error(), http.StatusBadRequest)
	}

	start := time.Now()

	if h.replies != nil {
		if reply, engine, ok := h.replies.Get(cachepkg.HashPrompt(userInput)); ok {
			resp := successResponse(reply, engine)
			h.record(engine, resp.StatusCode, userInput, reply, nil, start)
			return resp
		}
	}

	routing := h.newSelector().Select(userInput)

	text, err := routing.Client.Generate(ctx, userInput)
	if err != nil {
		var localErr *llm.LocalError
		if errors.As(err, &localErr) {
			log.Printf("local llm %s error: %v", localErr.Kind, err)
		} else {
			log.Printf("failed to generate response: %v", err)
		}

		if routing.Engine == router.EngineLocal {
			if resp, ok := h.attemptExternalFallback(ctx, userInput, start); ok {
				return resp
			}
		}
		resp := errorResponse("Failed to generate response", http.StatusInternalServerError)
		h.record(string(routing.Engine), resp.StatusCode, userInput, "", err, start)
		return resp
	}

	h.cacheReply(userInput, text, string(routing.Engine))
	resp := successResponse(text, string(routing.Engine))
	h.record(string(routing.Engine), resp.StatusCode, userInput, text, nil, start)
	return resp
}

// attemptExternalFallback tries the external engine once after a local
// failure. A failed fallback is swallowed; there is no fallback-of-fallback.
func (h *Handler) attemptExternalFallback(ctx context.Context, userInput string, start time.Time) (Response, bool) {
	client := h.newFallback()
	text, err := client.Generate(ctx, userInput)
	if err != nil {
		log.Printf("external llm fallback failed: %v", err)
		return Response{}, false
	}

	h.cacheReply(userInput, text, string(router.EngineExternal))
	resp := successResponse(text, string(router.EngineExternal))
	h.record(string(router.EngineExternal), resp.StatusCode, userInput, text, nil, start)
	return resp, true
}

func (h *Handler) cacheReply(prompt, reply, engine string) {
	if h.replies == nil {
		return
	}
	if err := h.replies.Put(cachepkg.HashPrompt(prompt), engine, reply); err != nil {
		log.Printf("reply cache put error: %v", err)
	}
}

// record inserts an audit entry asynchronously; the request does not wait
// on the audit database.
func (h *Handler) record(engine string, status int, prompt, reply string, genErr error, start time.Time) {
	if h.auditor == nil {
		return
	}
	entry := models.AuditEntry{
		Engine:     engine,
		StatusCode: status,
		Prompt:     prompt,
		Response:   reply,
		LatencyMs:  time.Since(start).Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if genErr != nil {
		entry.Error = genErr.Error()
	}
	go func() {
		if err := h.auditor.Log(context.Background(), entry); err != nil {
			log.Printf("audit log error: %v", err)
		}
	}()
}

func successResponse(text, engine string) Response {
	return newResponse(http.StatusOK, map[string]any{
		"response": text,
		"engine":   engine,
	})
}

func errorResponse(message string, status int) Response {
	return newResponse(status, map[string]any{"error": message})
}

// newResponse serializes body once. Non-ASCII characters are preserved
// unescaped.
func newResponse(status int, body map[string]any) Response {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		return Response{
			StatusCode: http.StatusInternalServerError,
			Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
			Body:       `{"error":"Failed to encode response"}`,
		}
	}
	return Response{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
		Body:       strings.TrimSuffix(buf.String(), "\n"),
	}
}
