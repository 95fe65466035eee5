package classification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/feichai0017/document-intelligence/internal/models"
	"github.com/feichai0017/document-intelligence/pkg/logger"
)

const llmPrompt = `You are a zero-shot document classifier.
For each hypothesis below, estimate the probability that the document entails it.
Respond with a single JSON object mapping each label to a number between 0 and 1.

Hypotheses:
%s
Document:
"""
%s
"""`

// LLMScorer asks a chat model to rate every hypothesis at once.
type LLMScorer struct {
	model    llms.Model
	attempts int
	logger   logger.Logger
}

func NewLLMScorer(model llms.Model, log logger.Logger) *LLMScorer {
	return &LLMScorer{model: model, attempts: 2, logger: log.Named("llm-scorer")}
}

func (s *LLMScorer) Score(ctx context.Context, text string, labels []string) ([]models.LabelScore, error) {
	var hyps strings.Builder
	for _, l := range labels {
		fmt.Fprintf(&hyps, "- %s: "+HypothesisTemplate+"\n", l, l)
	}
	prompt := fmt.Sprintf(llmPrompt, hyps.String(), text)

	var lastErr error
	for attempt := 0; attempt < s.attempts; attempt++ {
		out, err := llms.GenerateFromSinglePrompt(ctx, s.model, prompt, llms.WithTemperature(0), llms.WithJSONMode())
		if err != nil {
			return nil, fmt.Errorf("generate: %w", err)
		}
		scores, err := parseScores(out, labels)
		if err == nil {
			return scores, nil
		}
		lastErr = err
		s.logger.Warn("Unparseable classifier response",
			logger.Int("attempt", attempt+1),
			logger.Error(err))
	}
	return nil, lastErr
}

// parseScores reads a label→probability object out of a model reply,
// tolerating code fences and surrounding prose. Labels missing from the
// reply score zero.
func parseScores(reply string, labels []string) ([]models.LabelScore, error) {
	start, end := strings.Index(reply, "{"), strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	var raw map[string]float64
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("decode scores: %w", err)
	}
	scores := make([]models.LabelScore, len(labels))
	for i, l := range labels {
		v := raw[l]
		scores[i] = models.LabelScore{Label: l, Score: min(max(v, 0), 1)}
	}
	return scores, nil
}
