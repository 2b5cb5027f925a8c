package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/misaki-ai/misaki/pkg/models"
	"github.com/misaki-ai/misaki/pkg/persona"
)

const (
	externalModel   = "gpt-3.5-turbo"
	externalTimeout = 10 * time.Second

	// Fixed replies used when no network call is made.
	emptyPromptGreeting = "本日はどのようにお手伝いしましょうか？"
	standbyReply        = "外部モデルとの連携は現在待機中です。"
)

// ExternalClient calls a chat-completion style HTTP endpoint. When no
// endpoint is configured it degrades to a fixed acknowledgement so the
// system stays usable without external credentials.
type ExternalClient struct {
	APIKey   string
	Endpoint string

	httpClient *http.Client
}

// NewExternalClient creates a client for the given endpoint and key.
func NewExternalClient(apiKey, endpoint string) *ExternalClient {
	return &ExternalClient{
		APIKey:   apiKey,
		Endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: externalTimeout,
		},
	}
}

// ExternalFromEnv creates a client configured via environment variables.
func ExternalFromEnv() *ExternalClient {
	return NewExternalClient(os.Getenv("OPENAI_API_KEY"), os.Getenv("LLM_API_ENDPOINT"))
}

// Generate implements Client.
func (c *ExternalClient) Generate(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return emptyPromptGreeting, nil
	}

	if c.Endpoint == "" {
		return standbyReply, nil
	}

	reqBody := models.ChatCompletionRequest{
		Model: externalModel,
		Messages: []models.ChatMessage{
			{Role: "system", Content: persona.SystemPrompt},
			{Role: "user", Content: prompt},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", &ExternalError{Kind: KindOther, Msg: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", &ExternalError{Kind: KindConfiguration, Msg: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ExternalError{Kind: KindTransport, Msg: "failed to reach the external LLM API", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ExternalError{Kind: KindTransport, Msg: "read response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &ExternalError{
			Kind: KindTransport,
			Msg:  fmt.Sprintf("external LLM API returned status %d", resp.StatusCode),
		}
	}

	var completion models.ChatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", &ExternalError{Kind: KindMalformedResponse, Msg: "failed to reach the external LLM API", Err: err}
	}

	if len(completion.Choices) == 0 {
		return "", &ExternalError{Kind: KindMalformedResponse, Msg: "unexpected response from external LLM API"}
	}
	content := completion.Choices[0].Message.Content
	if content == "" {
		return "", &ExternalError{Kind: KindMalformedResponse, Msg: "external LLM response did not contain text"}
	}
	return content, nil
}
