package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/misaki-ai/misaki/pkg/handler"
	"github.com/misaki-ai/misaki/pkg/persona"
	"github.com/spf13/cobra"
)

func newGenerateCmd() *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "generate [text...]",
		Short: "Generate a single reply from the terminal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if !plain {
				text = persona.BuildCharacterPrompt(text)
			}

			resp := handler.New().Handle(cmd.Context(), map[string]any{"input": text})

			var body struct {
				Response string `json:"response"`
				Engine   string `json:"engine"`
				Error    string `json:"error"`
			}
			if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			if body.Error != "" {
				return fmt.Errorf("%s", body.Error)
			}

			fmt.Printf("[%s] %s\n", body.Engine, body.Response)
			return nil
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "send the text without the persona wrapper")
	return cmd
}
