package llm

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
)

// LocalClient runs prompts against an in-process model backend. The client
// itself is a cheap wrapper constructed per request; the expensive model
// handle lives in the shared ModelCache.
type LocalClient struct {
	ModelPath   string
	Backend     string // auto | gpt4all | llama | llama.cpp
	MaxTokens   int
	Temperature float64

	cache *ModelCache

	mu          sync.Mutex
	handle      ModelHandle
	backendName string
}

// NewLocalClient creates a client backed by the given model cache.
func NewLocalClient(cache *ModelCache) *LocalClient {
	if cache == nil {
		cache = defaultCache
	}
	return &LocalClient{
		MaxTokens:   256,
		Temperature: 0.7,
		cache:       cache,
	}
}

// LocalFromEnv creates a client configured via environment variables,
// backed by the given cache (nil means the process default).
func LocalFromEnv(cache *ModelCache) *LocalClient {
	c := NewLocalClient(cache)
	c.Backend = os.Getenv("LOCAL_LLM_BACKEND")
	c.ModelPath = os.Getenv("LOCAL_LLM_MODEL")
	c.MaxTokens = envInt("LOCAL_LLM_MAX_TOKENS", 256)
	c.Temperature = envFloat("LOCAL_LLM_TEMPERATURE", 0.7)
	return c
}

// backendForName maps a resolved backend name to its implementation.
func (c *LocalClient) backendForName(name string) (Backend, bool) {
	switch name {
	case "gpt4all":
		return GPT4AllBackend{}, true
	case "llama.cpp":
		return LlamaCppBackend{}, true
	default:
		return nil, false
	}
}

// ensureBackend resolves and memoizes the backend for this instance. Runs
// at most once per client; later calls return the resolved state.
func (c *LocalClient) ensureBackend() (string, ModelHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle != nil {
		// Invariant: the name is set whenever the handle is.
		if c.backendName == "" {
			return "", nil, &LocalError{Kind: KindConfiguration, Msg: "backend could not be determined"}
		}
		return c.backendName, c.handle, nil
	}

	requested := strings.ToLower(c.Backend)
	if requested == "" {
		requested = "auto"
	}

	var candidates []Backend
	if requested == "auto" || requested == "gpt4all" {
		candidates = append(candidates, GPT4AllBackend{})
	}
	if requested == "auto" || requested == "llama" || requested == "llama.cpp" {
		candidates = append(candidates, LlamaCppBackend{})
	}
	if len(candidates) == 0 {
		return "", nil, &LocalError{Kind: KindConfiguration, Msg: "unknown backend: " + c.Backend}
	}

	var attempted []string
	var lastErr error
	for _, backend := range candidates {
		attempted = append(attempted, backend.Name())
		handle, err := c.cache.GetOrCreate(backend.Name(), c.ModelPath, func() (ModelHandle, error) {
			return backend.Load(c.ModelPath, LoadOptions{})
		})
		if err != nil {
			lastErr = err
			log.Printf("local llm backend %s unavailable: %v", backend.Name(), err)
			continue
		}
		c.handle = handle
		c.backendName = backend.Name()
		break
	}

	if c.handle == nil {
		return "", nil, &LocalError{
			Kind: KindConfiguration,
			Msg:  "backend(s) unavailable (attempted: " + strings.Join(attempted, ", ") + ")",
			Err:  lastErr,
		}
	}
	return c.backendName, c.handle, nil
}

// Generate implements Client. The local call is blocking; no cancellation
// is propagated into the backend.
func (c *LocalClient) Generate(_ context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", &LocalError{Kind: KindConfiguration, Msg: "prompt must not be empty"}
	}

	name, handle, err := c.ensureBackend()
	if err != nil {
		return "", err
	}

	backend, ok := c.backendForName(name)
	if !ok {
		return "", &LocalError{Kind: KindConfiguration, Msg: "unsupported backend selected: " + name}
	}

	text, err := backend.Complete(handle, prompt, GenerateOptions{
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	})
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", &LocalError{Kind: KindMalformedResponse, Msg: name + " returned an empty response"}
	}
	return text, nil
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s value: %q", name, v)
		return def
	}
	return n
}

func envFloat(name string, def float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("invalid %s value: %q", name, v)
		return def
	}
	return f
}
