package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/abd2220/retail-copilot/internal/graph"
)

var (
	askID         string
	askFormatHint string
	askDebug      bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a single question",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askID, "id", "", "question id (a run id is used when empty)")
	askCmd.Flags().StringVar(&askFormatHint, "format-hint", "str", "answer type: int, float, str, list[...] or {...}")
	askCmd.Flags().BoolVar(&askDebug, "debug", false, "print the full run state instead of the answer")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := parseQuestionArgs(args)
	if question == "" {
		return errors.New("question is empty")
	}
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	state := a.agent.Run(ctx, graph.Question{ID: askID, Question: question, FormatHint: askFormatHint})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if askDebug {
		return enc.Encode(state)
	}
	return enc.Encode(state.FinalAnswer)
}
