package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/feichai0017/document-intelligence/pkg/logger"
)

const (
	FallbackAnswer = "I couldn't find relevant information to answer your question."
	answerChars    = 500
)

var staticSuggestions = []string{
	"Search for contracts and legal documents",
	"Find financial reports and invoices",
	"Look for technical documentation",
	"Search for policy documents",
}

const maxSuggestions = 5

// Summarizer turns retrieved passages into an answer.
type Summarizer interface {
	Summarize(ctx context.Context, question string, passages []string) (string, error)
}

// TemplateSummarizer answers with a fixed sentence chosen by the
// question's wording, followed by the start of the passages. It does not
// generate text.
type TemplateSummarizer struct{}

func (TemplateSummarizer) Summarize(_ context.Context, question string, passages []string) (string, error) {
	if len(passages) == 0 {
		return FallbackAnswer, nil
	}
	combined := prefix(strings.Join(passages, " "), answerChars)
	q := strings.ToLower(question)
	switch {
	case strings.Contains(q, "what"):
		return fmt.Sprintf("Based on the documents, I found relevant information: %s...", combined), nil
	case strings.Contains(q, "how"):
		return fmt.Sprintf("The documents suggest the following approach: %s...", combined), nil
	default:
		return fmt.Sprintf("Here's what I found in the documents: %s...", combined), nil
	}
}

// Source is one document an answer drew on.
type Source struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity_score"`
}

type Answer struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Sources  []Source `json:"sources"`
}

// Answer ranks the requester's documents against question, keeps the top
// few regardless of score and summarizes their redacted text. It never
// fails: internal errors produce the fallback sentence.
func (s *Searcher) Answer(ctx context.Context, requester, question string, docIDs []string) Answer {
	out := Answer{Question: question, Answer: FallbackAnswer, Sources: []Source{}}

	ranked, _, err := s.rank(ctx, requester, question, docIDs, NoThreshold)
	if err != nil {
		s.logger.Error("Question answering failed", logger.Error(err))
		return out
	}
	if len(ranked) > s.cfg.QATopK {
		ranked = ranked[:s.cfg.QATopK]
	}

	passages := make([]string, 0, len(ranked))
	for _, r := range ranked {
		out.Sources = append(out.Sources, Source{
			DocumentID: r.doc.ID,
			Title:      r.doc.Title,
			Similarity: r.similarity,
		})
		if r.doc.RedactedText != "" {
			passages = append(passages, prefix(r.doc.RedactedText, s.cfg.PrefixChars))
		}
	}

	answer, err := s.summarizer.Summarize(ctx, question, passages)
	if err != nil {
		s.logger.Error("Summarizer failed", logger.Error(err))
		return out
	}
	out.Answer = answer
	return out
}

// Suggestions proposes queries from the requester's own tags followed by
// a fixed list. It returns an empty list on any failure.
func (s *Searcher) Suggestions(ctx context.Context, requester, query string) []string {
	docs, err := s.store.ListDocumentsByOwner(ctx, requester, "")
	if err != nil {
		s.logger.Error("Failed to load tags for suggestions", logger.Error(err))
		return []string{}
	}

	seen := make(map[string]bool)
	var tags []string
	for _, d := range docs {
		for _, t := range d.Tags {
			if t != "" && !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}
	sort.Strings(tags)
	if len(tags) > maxSuggestions {
		tags = tags[:maxSuggestions]
	}

	q := strings.ToLower(query)
	out := make([]string, 0, maxSuggestions)
	for _, t := range tags {
		if strings.Contains(q, strings.ToLower(t)) {
			out = append(out, fmt.Sprintf("Find documents tagged with '%s'", t))
		}
	}
	out = append(out, staticSuggestions...)
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}
