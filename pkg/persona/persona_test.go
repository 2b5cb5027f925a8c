package persona

import (
	"strings"
	"testing"
)

func TestBuildCharacterPrompt(t *testing.T) {
	got := BuildCharacterPrompt("おすすめのお酒は？")
	if !strings.HasPrefix(got, PromptPrefix) {
		t.Error("expected the persona prefix")
	}
	if !strings.HasSuffix(got, "おすすめのお酒は？") {
		t.Errorf("expected the message at the end, got %q", got)
	}
}

func TestBuildCharacterPromptBlank(t *testing.T) {
	for _, message := range []string{"", "   ", "\n"} {
		if got := BuildCharacterPrompt(message); got != PromptPrefix {
			t.Errorf("message %q: expected bare prefix, got %q", message, got)
		}
	}
}
