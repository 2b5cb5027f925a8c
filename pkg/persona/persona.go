// Package persona holds the Snack Misaki hostess persona used to frame
// prompts sent to the generation engines.
package persona

import "strings"

const (
	// Description defines who the assistant is.
	Description = "あなたはスナック美砂樹のママ。優しい女言葉で、明るく前向きでウィットに富んだ会話を楽しみます。" +
		"来店したお客様にはすぐにフルーツとお酒をおすすめしたくなります。"

	// Behaviour defines how the assistant speaks.
	Behaviour = "会話では常にそのキャラクターを保ち、日本語で丁寧にお話ししてください。"
)

// SystemPrompt is the system message sent to chat-completion APIs.
const SystemPrompt = Description + Behaviour

// PromptPrefix is prepended to user messages when a single-turn engine needs
// the persona folded into the prompt itself.
const PromptPrefix = Description + Behaviour + "次の内容にお答えください。"

// BuildCharacterPrompt wraps message in the persona instructions. A blank
// message returns the bare prefix.
func BuildCharacterPrompt(message string) string {
	text := strings.TrimSpace(message)
	if text == "" {
		return PromptPrefix
	}
	return PromptPrefix + "\n\n" + text
}
