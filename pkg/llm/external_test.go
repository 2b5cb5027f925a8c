package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/misaki-ai/misaki/pkg/models"
)

func TestExternalEmptyPromptGreeting(t *testing.T) {
	c := NewExternalClient("", "http://unreachable.invalid")

	got, err := c.Generate(context.Background(), "   ")
	if err != nil {
		t.Fatal(err)
	}
	if got != "本日はどのようにお手伝いしましょうか？" {
		t.Errorf("unexpected greeting: %q", got)
	}
}

func TestExternalNoEndpointStandby(t *testing.T) {
	c := NewExternalClient("sk-test", "")

	got, err := c.Generate(context.Background(), "こんばんは")
	if err != nil {
		t.Fatal(err)
	}
	if got != "外部モデルとの連携は現在待機中です。" {
		t.Errorf("unexpected standby reply: %q", got)
	}
}

func TestExternalGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("expected bearer auth, got %q", got)
		}

		var req models.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "gpt-3.5-turbo" {
			t.Errorf("unexpected model %q", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "こんばんは" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		json.NewEncoder(w).Encode(models.ChatCompletionResponse{
			Choices: []models.Choice{
				{Message: models.ChatMessage{Role: "assistant", Content: " いらっしゃいませ "}},
			},
		})
	}))
	defer srv.Close()

	c := NewExternalClient("sk-test", srv.URL)
	got, err := c.Generate(context.Background(), "こんばんは")
	if err != nil {
		t.Fatal(err)
	}
	// Content is returned as-is, no trimming.
	if got != " いらっしゃいませ " {
		t.Errorf("unexpected reply: %q", got)
	}
}

func TestExternalNoAuthHeaderWithoutKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("expected no auth header, got %q", got)
		}
		json.NewEncoder(w).Encode(models.ChatCompletionResponse{
			Choices: []models.Choice{{Message: models.ChatMessage{Content: "ok"}}},
		})
	}))
	defer srv.Close()

	c := NewExternalClient("", srv.URL)
	if _, err := c.Generate(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}
}

func TestExternalTransportError(t *testing.T) {
	c := NewExternalClient("", "http://127.0.0.1:1/unreachable")

	_, err := c.Generate(context.Background(), "hi")
	var extErr *ExternalError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected *ExternalError, got %v", err)
	}
	if extErr.Kind != KindTransport {
		t.Errorf("expected transport kind, got %s", extErr.Kind)
	}
}

func TestExternalErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewExternalClient("", srv.URL)
	_, err := c.Generate(context.Background(), "hi")
	var extErr *ExternalError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected *ExternalError, got %v", err)
	}
}

func TestExternalMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewExternalClient("", srv.URL)
	_, err := c.Generate(context.Background(), "hi")
	var extErr *ExternalError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected *ExternalError, got %v", err)
	}
	if extErr.Kind != KindMalformedResponse {
		t.Errorf("expected malformed-response kind, got %s", extErr.Kind)
	}
}

func TestExternalNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.ChatCompletionResponse{})
	}))
	defer srv.Close()

	c := NewExternalClient("", srv.URL)
	if _, err := c.Generate(context.Background(), "hi"); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestExternalEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.ChatCompletionResponse{
			Choices: []models.Choice{{Message: models.ChatMessage{Content: ""}}},
		})
	}))
	defer srv.Close()

	c := NewExternalClient("", srv.URL)
	_, err := c.Generate(context.Background(), "hi")
	var extErr *ExternalError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected *ExternalError, got %v", err)
	}
}

func TestExternalFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("LLM_API_ENDPOINT", "https://example.com/v1/chat/completions")

	c := ExternalFromEnv()
	if c.APIKey != "sk-env" || c.Endpoint != "https://example.com/v1/chat/completions" {
		t.Errorf("unexpected client: %+v", c)
	}
}
