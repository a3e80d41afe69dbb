package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/abd2220/retail-copilot/internal/batch"
)

var (
	batchInput   string
	batchOutput  string
	batchWorkers int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Answer every question in a JSONL file",
	Long: `Reads one {"id", "question", "format_hint"} record per line and writes one
answer record per line, in input order. --out may be a local path or
s3://bucket/key to upload the results to the configured object store.`,
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&batchInput, "batch", "", "input JSONL file")
	batchCmd.Flags().StringVar(&batchOutput, "out", "outputs_hybrid.jsonl", "output path or s3://bucket/key")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 1, "questions answered in parallel")
	batchCmd.MarkFlagRequired("batch")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sink, err := batch.OpenSink(batchOutput, a.cfg.ObjectStore)
	if err != nil {
		return err
	}

	f, err := os.Open(batchInput)
	if err != nil {
		return fmt.Errorf("open batch: %w", err)
	}
	questions, err := batch.ReadQuestions(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", batchInput, err)
	}

	answers := batch.Run(ctx, a.agent, questions, batchWorkers, a.logger)

	var buf bytes.Buffer
	if err := batch.WriteResults(&buf, answers); err != nil {
		return err
	}
	if err := sink.Put(ctx, buf.Bytes()); err != nil {
		return err
	}
	a.logger.Info("results written", "questions", len(answers), "out", sink.String())
	return nil
}
