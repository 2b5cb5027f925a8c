// Package router selects the generation engine for a request.
package router

import (
	"strings"

	"github.com/misaki-ai/misaki/pkg/config"
	"github.com/misaki-ai/misaki/pkg/llm"
)

// Engine identifies the selected generation backend.
type Engine string

const (
	// EngineLocal serves the reply from an in-process model.
	EngineLocal Engine = "local"
	// EngineExternal serves the reply from the remote HTTP API.
	EngineExternal Engine = "external"
)

// Result is the outcome of a routing decision.
type Result struct {
	Engine Engine
	Client llm.Client
}

// externalKeywords marks requests that need the external model: translation,
// summarization and advanced-analysis asks, in Japanese and English. The
// match is a plain substring check on trimmed lower-cased text.
var externalKeywords = []string{"高度", "翻訳", "英語", "英訳", "要約", "analysis", "summarize"}

// Router chooses between the local and external pipelines. It retains no
// state between calls: clients are cheap wrappers constructed fresh per
// decision, and the expensive model handles live in the shared cache.
type Router struct {
	settings config.Settings
	cache    *llm.ModelCache
}

// New creates a Router for the given settings, with local clients backed by
// cache (nil means the process default cache).
func New(settings config.Settings, cache *llm.ModelCache) *Router {
	return &Router{settings: settings, cache: cache}
}

// FromEnv creates a Router with settings read from the environment.
func FromEnv() *Router {
	return New(config.FromEnv(), nil)
}

// Select picks the engine for userInput.
func (r *Router) Select(userInput string) Result {
	text := strings.ToLower(strings.TrimSpace(userInput))
	if r.settings.UseLocalLLM && !requiresExternal(text) {
		return Result{Engine: EngineLocal, Client: llm.LocalFromEnv(r.cache)}
	}
	return Result{Engine: EngineExternal, Client: llm.ExternalFromEnv()}
}

// requiresExternal reports whether text asks for a capability only the
// external model provides.
func requiresExternal(text string) bool {
	if text == "" {
		return false
	}
	for _, keyword := range externalKeywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
