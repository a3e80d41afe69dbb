// Package batch answers a JSONL file of questions, one independent run per
// question, and writes the answers in input order.
package batch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abd2220/retail-copilot/internal/graph"
)

// Runner answers one question. *graph.Agent satisfies it.
type Runner interface {
	Run(ctx context.Context, q graph.Question) *graph.RunState
}

// ReadQuestions parses one question record per line. Blank lines are skipped.
func ReadQuestions(r io.Reader) ([]graph.Question, error) {
	var questions []graph.Question
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var q graph.Question
		if err := json.Unmarshal([]byte(text), &q); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if strings.TrimSpace(q.Question) == "" {
			return nil, fmt.Errorf("line %d: question is empty", line)
		}
		questions = append(questions, q)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	return questions, nil
}

// Run answers every question with at most workers runs in flight. Answers
// come back in input order; a failed question yields its diagnostic answer
// and never stops the batch.
func Run(ctx context.Context, runner Runner, questions []graph.Question, workers int, logger *slog.Logger) []*graph.FinalAnswer {
	if workers < 1 {
		workers = 1
	}
	answers := make([]*graph.FinalAnswer, len(questions))
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(workers)
	for i, q := range questions {
		g.Go(func() error {
			s := runner.Run(ctx, q)
			answers[i] = s.FinalAnswer
			logger.Info("question answered", "index", i, "id", q.ID, "route", s.Route,
				"outcome", s.FinalAnswer.Outcome(), "retry_count", s.RetryCount)
			return nil
		})
	}
	g.Wait()

	logger.Info("batch finished", "questions", len(questions), "workers", workers, "elapsed", time.Since(start))
	return answers
}

// WriteResults writes one answer per line.
func WriteResults(w io.Writer, answers []*graph.FinalAnswer) error {
	enc := json.NewEncoder(w)
	for _, a := range answers {
		if err := enc.Encode(a); err != nil {
			return fmt.Errorf("encode answer %s: %w", a.ID, err)
		}
	}
	return nil
}
