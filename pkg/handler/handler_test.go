package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cachepkg "github.com/misaki-ai/misaki/pkg/cache/sqlite"
	"github.com/misaki-ai/misaki/pkg/llm"
	"github.com/misaki-ai/misaki/pkg/router"
)

type stubClient struct {
	reply string
	err   error
	calls int
}

func (c *stubClient) Generate(ctx context.Context, prompt string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

type stubSelector struct {
	engine router.Engine
	client llm.Client
}

func (s stubSelector) Select(string) router.Result {
	return router.Result{Engine: s.engine, Client: s.client}
}

func decodeBody(t *testing.T, resp Response) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
		t.Fatalf("body is not JSON: %v (%s)", err, resp.Body)
	}
	return body
}

func TestParseEventInput(t *testing.T) {
	got, err := ParseEvent(map[string]any{"input": "こんばんは"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "こんばんは" {
		t.Errorf("expected input returned verbatim, got %q", got)
	}
}

func TestParseEventInputNotString(t *testing.T) {
	_, err := ParseEvent(map[string]any{"input": 42.0})
	if err == nil || err.Error() != "'input' must be a string" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseEventConversationString(t *testing.T) {
	got, err := ParseEvent(map[string]any{"conversation": "一行目"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "一行目" {
		t.Errorf("unexpected text: %q", got)
	}
}

func TestParseEventConversationList(t *testing.T) {
	got, err := ParseEvent(map[string]any{"conversation": []any{"一行目", "二行目", "三行目"}})
	if err != nil {
		t.Fatal(err)
	}
	if got != "一行目\n二行目\n三行目" {
		t.Errorf("expected newline join in order, got %q", got)
	}
}

func TestParseEventConversationBadElement(t *testing.T) {
	_, err := ParseEvent(map[string]any{"conversation": []any{"ok", 1.0}})
	if err == nil || err.Error() != "'conversation' must be a string or list of strings" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseEventMessages(t *testing.T) {
	got, err := ParseEvent(map[string]any{"messages": []any{
		map[string]any{"role": "user", "content": "こんばんは"},
		map[string]any{"content": "いらっしゃい"},
		map[string]any{"role": "  ", "content": "二杯目どうぞ"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	want := "user: こんばんは\nいらっしゃい\n二杯目どうぞ"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestParseEventMessagesErrors(t *testing.T) {
	cases := []struct {
		event map[string]any
		want  string
	}{
		{map[string]any{"messages": "nope"}, "'messages' must be a list"},
		{map[string]any{"messages": []any{"nope"}}, "Each message must be an object"},
		{map[string]any{"messages": []any{map[string]any{"role": "user"}}}, "Each message requires a string 'content'"},
		{map[string]any{"messages": []any{}}, "'messages' must contain at least one item"},
	}
	for _, tc := range cases {
		_, err := ParseEvent(tc.event)
		if err == nil || err.Error() != tc.want {
			t.Errorf("event %v: expected %q, got %v", tc.event, tc.want, err)
		}
	}
}

func TestParseEventPrecedence(t *testing.T) {
	got, err := ParseEvent(map[string]any{
		"input":        "from input",
		"conversation": "from conversation",
		"messages":     []any{map[string]any{"content": "from messages"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "from input" {
		t.Errorf("expected 'input' to win, got %q", got)
	}
}

func TestParseEventBodyString(t *testing.T) {
	got, err := ParseEvent(map[string]any{"body": `{"input": "hi"}`})
	if err != nil {
		t.Fatal(err)
	}
	if got != "hi" {
		t.Errorf("unexpected text: %q", got)
	}
}

func TestParseEventBodyStructured(t *testing.T) {
	got, err := ParseEvent(map[string]any{"body": map[string]any{"input": "hi"}})
	if err != nil {
		t.Fatal(err)
	}
	if got != "hi" {
		t.Errorf("unexpected text: %q", got)
	}
}

func TestParseEventEmptyBody(t *testing.T) {
	// An empty body string parses as an empty object.
	_, err := ParseEvent(map[string]any{"body": ""})
	if err == nil || err.Error() != "Missing 'input' field in request body" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseEventNonObjectBody(t *testing.T) {
	_, err := ParseEvent(map[string]any{"body": `["a", "b"]`})
	if err == nil || err.Error() != "Event body must be a JSON object" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestHandleLocalSuccess(t *testing.T) {
	local := &stubClient{reply: "ローカル応答"}
	h := New(WithSelector(stubSelector{engine: router.EngineLocal, client: local}))

	resp := h.Handle(context.Background(), map[string]any{"input": "こんばんは"})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, resp.Body)
	}
	if got := resp.Headers["Content-Type"]; got != "application/json; charset=utf-8" {
		t.Errorf("unexpected content type %q", got)
	}
	body := decodeBody(t, resp)
	if body["response"] != "ローカル応答" || body["engine"] != "local" {
		t.Errorf("unexpected body: %v", body)
	}
	// Non-ASCII stays unescaped in the serialized body.
	if !strings.Contains(resp.Body, "ローカル応答") {
		t.Errorf("expected raw UTF-8 in body, got %s", resp.Body)
	}
}

func TestHandleInvalidJSONBody(t *testing.T) {
	h := New(WithSelector(stubSelector{engine: router.EngineExternal, client: &stubClient{reply: "x"}}))

	resp := h.Handle(context.Background(), map[string]any{"body": "{invalid"})

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["error"] != "Invalid JSON body" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestHandleMissingInput(t *testing.T) {
	h := New(WithSelector(stubSelector{engine: router.EngineExternal, client: &stubClient{reply: "x"}}))

	resp := h.Handle(context.Background(), map[string]any{"body": `{"message":"hi"}`})

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["error"] != "Missing 'input' field in request body" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestHandleLocalFailureFallsBackToExternal(t *testing.T) {
	local := &stubClient{err: &llm.LocalError{Kind: llm.KindConfiguration, Msg: "no backend"}}
	fallback := &stubClient{reply: "外部応答"}

	h := New(
		WithSelector(stubSelector{engine: router.EngineLocal, client: local}),
		WithFallback(func() llm.Client { return fallback }),
	)

	resp := h.Handle(context.Background(), map[string]any{"input": "こんばんは"})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, resp.Body)
	}
	body := decodeBody(t, resp)
	if body["response"] != "外部応答" || body["engine"] != "external" {
		t.Errorf("unexpected body: %v", body)
	}
	if fallback.calls != 1 {
		t.Errorf("expected exactly one fallback call, got %d", fallback.calls)
	}
}

func TestHandleFallbackAlsoFails(t *testing.T) {
	local := &stubClient{err: &llm.LocalError{Kind: llm.KindConfiguration, Msg: "no backend"}}
	fallback := &stubClient{err: &llm.ExternalError{Kind: llm.KindTransport, Msg: "down"}}

	h := New(
		WithSelector(stubSelector{engine: router.EngineLocal, client: local}),
		WithFallback(func() llm.Client { return fallback }),
	)

	resp := h.Handle(context.Background(), map[string]any{"input": "こんばんは"})

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["error"] != "Failed to generate response" {
		t.Errorf("unexpected body: %v", body)
	}
	if fallback.calls != 1 {
		t.Errorf("expected exactly one fallback call, got %d", fallback.calls)
	}
}

func TestHandleExternalFailureNoFallback(t *testing.T) {
	external := &stubClient{err: &llm.ExternalError{Kind: llm.KindTransport, Msg: "down"}}
	fallback := &stubClient{reply: "should not be used"}

	h := New(
		WithSelector(stubSelector{engine: router.EngineExternal, client: external}),
		WithFallback(func() llm.Client { return fallback }),
	)

	resp := h.Handle(context.Background(), map[string]any{"input": "hi"})

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if fallback.calls != 0 {
		t.Errorf("external route must not fall back, got %d calls", fallback.calls)
	}
}

func TestHandleNonLocalErrorStillFallsBack(t *testing.T) {
	// Any generation failure on the local route triggers the fallback,
	// not just configuration errors.
	local := &stubClient{err: context.DeadlineExceeded}
	fallback := &stubClient{reply: "rescued"}

	h := New(
		WithSelector(stubSelector{engine: router.EngineLocal, client: local}),
		WithFallback(func() llm.Client { return fallback }),
	)

	resp := h.Handle(context.Background(), map[string]any{"input": "hi"})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["response"] != "rescued" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestHandleReplyCache(t *testing.T) {
	replies, err := cachepkg.New(filepath.Join(t.TempDir(), "cache.db"), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = replies.Close() })

	local := &stubClient{reply: "ローカル応答"}
	h := New(
		WithSelector(stubSelector{engine: router.EngineLocal, client: local}),
		WithReplyCache(replies),
	)

	event := map[string]any{"input": "こんばんは"}
	if resp := h.Handle(context.Background(), event); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp := h.Handle(context.Background(), event)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	if local.calls != 1 {
		t.Errorf("expected the second request served from cache, got %d generate calls", local.calls)
	}
	body := decodeBody(t, resp)
	if body["response"] != "ローカル応答" || body["engine"] != "local" {
		t.Errorf("unexpected cached body: %v", body)
	}
}

func TestHandleRaw(t *testing.T) {
	h := New(WithSelector(stubSelector{engine: router.EngineLocal, client: &stubClient{reply: "ok"}}))

	resp := h.HandleRaw(context.Background(), []byte(`{"input": "hi"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = h.HandleRaw(context.Background(), []byte(`not json`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
