package llm

import (
	"fmt"
	"os"
	"path/filepath"
)

// ModelHandle is an opaque loaded model owned by the model cache. Each
// backend type-asserts its own handle kind in Complete.
type ModelHandle any

// LoadOptions carries backend construction parameters.
type LoadOptions struct {
	ContextSize int
	Threads     int
}

// GenerateOptions carries sampling parameters for a completion call.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
}

// Backend is one local model runtime. The per-backend call-convention
// differences (parameter naming, response shape) are normalized inside each
// variant rather than leaked to the local client.
type Backend interface {
	Name() string
	Load(modelPath string, opts LoadOptions) (ModelHandle, error)
	Complete(handle ModelHandle, prompt string, opts GenerateOptions) (string, error)
}

// llamaContextSize is the fixed context window for llama.cpp models.
const llamaContextSize = 2048

// GPT4AllBackend loads and runs models through the gpt4all runtime.
type GPT4AllBackend struct{}

// Name returns "gpt4all".
func (GPT4AllBackend) Name() string { return "gpt4all" }

// Load constructs a gpt4all model from the file's base name and containing
// directory.
func (b GPT4AllBackend) Load(modelPath string, _ LoadOptions) (ModelHandle, error) {
	rt := registeredGPT4All()
	if rt == nil {
		return nil, &LocalError{Kind: KindConfiguration, Msg: "backend 'gpt4all' is not installed"}
	}
	if modelPath == "" {
		return nil, &LocalError{
			Kind: KindConfiguration,
			Msg:  "LOCAL_LLM_MODEL must point to a GPT4All model when using the gpt4all backend",
		}
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, &LocalError{Kind: KindConfiguration, Msg: fmt.Sprintf("GPT4All model not found at %s", modelPath)}
	}

	model, err := rt.New(filepath.Base(modelPath), filepath.Dir(modelPath))
	if err != nil {
		return nil, &LocalError{Kind: KindConfiguration, Msg: "failed to initialise GPT4All", Err: err}
	}
	return model, nil
}

// Complete runs a completion against a gpt4all handle.
func (b GPT4AllBackend) Complete(handle ModelHandle, prompt string, opts GenerateOptions) (string, error) {
	model, ok := handle.(GPT4AllModel)
	if !ok {
		return "", &LocalError{Kind: KindConfiguration, Msg: "cached handle is not a GPT4All model"}
	}
	text, err := model.Generate(prompt, opts.MaxTokens, opts.Temperature)
	if err != nil {
		return "", &LocalError{Kind: KindOther, Msg: "GPT4All generation failed", Err: err}
	}
	return text, nil
}

// LlamaCppBackend loads and runs models through the llama.cpp runtime.
type LlamaCppBackend struct {
	// Threads overrides the thread count; zero means use the
	// LOCAL_LLM_THREADS environment default.
	Threads int
}

// Name returns "llama.cpp".
func (LlamaCppBackend) Name() string { return "llama.cpp" }

// Load constructs a llama.cpp model with a fixed 2048-token context window.
func (b LlamaCppBackend) Load(modelPath string, opts LoadOptions) (ModelHandle, error) {
	rt := registeredLlama()
	if rt == nil {
		return nil, &LocalError{Kind: KindConfiguration, Msg: "backend 'llama.cpp' is not installed"}
	}
	if modelPath == "" {
		return nil, &LocalError{
			Kind: KindConfiguration,
			Msg:  "LOCAL_LLM_MODEL must point to a GGUF/GGML file when using the llama.cpp backend",
		}
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, &LocalError{Kind: KindConfiguration, Msg: fmt.Sprintf("llama.cpp model not found at %s", modelPath)}
	}

	contextSize := opts.ContextSize
	if contextSize == 0 {
		contextSize = llamaContextSize
	}
	threads := opts.Threads
	if threads == 0 {
		threads = b.Threads
	}
	if threads == 0 {
		threads = envInt("LOCAL_LLM_THREADS", 4)
	}

	model, err := rt.New(modelPath, contextSize, threads)
	if err != nil {
		return nil, &LocalError{Kind: KindConfiguration, Msg: "failed to initialise llama.cpp", Err: err}
	}
	return model, nil
}

// Complete runs a completion against a llama.cpp handle and extracts the
// first choice's text.
func (b LlamaCppBackend) Complete(handle ModelHandle, prompt string, opts GenerateOptions) (string, error) {
	model, ok := handle.(LlamaModel)
	if !ok {
		return "", &LocalError{Kind: KindConfiguration, Msg: "cached handle is not a llama.cpp model"}
	}
	completion, err := model.CreateCompletion(prompt, opts.MaxTokens, opts.Temperature)
	if err != nil {
		return "", &LocalError{Kind: KindOther, Msg: "llama.cpp generation failed", Err: err}
	}
	if completion == nil || len(completion.Choices) == 0 {
		return "", &LocalError{Kind: KindMalformedResponse, Msg: "llama.cpp response format invalid"}
	}
	return completion.Choices[0].Text, nil
}
