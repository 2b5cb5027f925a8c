package llm

import "sync"

// The native model runtimes are external collaborators. A build that links
// gpt4all or llama.cpp bindings registers them here at init time; without a
// registration the matching backend reports itself as not installed, and
// tests register stubs.

// GPT4AllModel is a loaded gpt4all model.
type GPT4AllModel interface {
	// Generate produces a completion. The native API names the sampling
	// parameter temp rather than temperature.
	Generate(prompt string, maxTokens int, temp float64) (string, error)
}

// GPT4AllRuntime constructs gpt4all models from a model file name and its
// containing directory.
type GPT4AllRuntime interface {
	New(modelName, modelDir string) (GPT4AllModel, error)
}

// Completion is the structured result of a llama.cpp completion call.
type Completion struct {
	Choices []CompletionChoice `json:"choices"`
}

// CompletionChoice is one candidate completion.
type CompletionChoice struct {
	Text string `json:"text"`
}

// LlamaModel is a loaded llama.cpp model.
type LlamaModel interface {
	CreateCompletion(prompt string, maxTokens int, temperature float64) (*Completion, error)
}

// LlamaRuntime constructs llama.cpp models from a model file path.
type LlamaRuntime interface {
	New(modelPath string, contextSize, threads int) (LlamaModel, error)
}

var (
	runtimeMu      sync.RWMutex
	gpt4allRuntime GPT4AllRuntime
	llamaRuntime   LlamaRuntime
)

// RegisterGPT4AllRuntime installs the gpt4all runtime for the process.
// A nil runtime uninstalls it.
func RegisterGPT4AllRuntime(rt GPT4AllRuntime) {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	gpt4allRuntime = rt
}

// RegisterLlamaRuntime installs the llama.cpp runtime for the process.
// A nil runtime uninstalls it.
func RegisterLlamaRuntime(rt LlamaRuntime) {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	llamaRuntime = rt
}

func registeredGPT4All() GPT4AllRuntime {
	runtimeMu.RLock()
	defer runtimeMu.RUnlock()
	return gpt4allRuntime
}

func registeredLlama() LlamaRuntime {
	runtimeMu.RLock()
	defer runtimeMu.RUnlock()
	return llamaRuntime
}
