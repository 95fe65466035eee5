// Package classification assigns topic tags to documents by zero-shot
// scoring against a runtime-editable label set.
package classification

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/feichai0017/document-intelligence/internal/models"
	"github.com/feichai0017/document-intelligence/pkg/logger"
)

// HypothesisTemplate frames each candidate label for zero-shot scoring.
const HypothesisTemplate = "This document is about %s."

var ErrNoLabels = errors.New("no candidate labels")

// Scorer rates text against every label. Results may come back in any
// order but must cover the given labels only.
type Scorer interface {
	Score(ctx context.Context, text string, labels []string) ([]models.LabelScore, error)
}

// Suggestion is the outcome of tagging one text.
type Suggestion struct {
	Tags   []string
	Scores []models.LabelScore
}

// SectionScores is the classification of one word section.
type SectionScores struct {
	Index  int                 `json:"section_id"`
	Text   string              `json:"text"`
	Scores []models.LabelScore `json:"classification"`
}

type SectionResult struct {
	Overall       []models.LabelScore `json:"overall_classification"`
	Sections      []SectionScores     `json:"section_classifications"`
	TotalSections int                 `json:"total_sections"`
}

// Classifier ranks labels for a text and filters them into tags.
type Classifier struct {
	scorer Scorer
	logger logger.Logger

	mu     sync.RWMutex
	labels []string

	maxTags     int
	threshold   float64
	maxChars    int
	sectionSize int
	sectioned   bool
	pool        *ants.Pool
}

type Option func(*Classifier)

func WithMaxTags(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.maxTags = n
		}
	}
}

func WithThreshold(t float64) Option {
	return func(c *Classifier) { c.threshold = t }
}

func WithMaxChars(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.maxChars = n
		}
	}
}

func WithSectionSize(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.sectionSize = n
		}
	}
}

// WithSectionedTagging makes SuggestTags rank by section averages for
// texts longer than one section.
func WithSectionedTagging(on bool) Option {
	return func(c *Classifier) { c.sectioned = on }
}

// WithPool scores sections concurrently on pool.
func WithPool(pool *ants.Pool) Option {
	return func(c *Classifier) { c.pool = pool }
}

func NewClassifier(scorer Scorer, labels []string, log logger.Logger, opts ...Option) *Classifier {
	c := &Classifier{
		scorer:      scorer,
		logger:      log.Named("classifier"),
		labels:      dedupe(labels),
		maxTags:     5,
		threshold:   0.3,
		maxChars:    1000,
		sectionSize: 1000,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Labels returns a copy of the current label set.
func (c *Classifier) Labels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.labels)
}

// AddLabel appends label unless present. It reports whether the set changed.
func (c *Classifier) AddLabel(label string) bool {
	label = strings.TrimSpace(label)
	if label == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if slices.Contains(c.labels, label) {
		return false
	}
	c.labels = append(c.labels, label)
	c.logger.Info("Added label", logger.String("label", label))
	return true
}

// RemoveLabel drops label. It reports whether the set changed.
func (c *Classifier) RemoveLabel(label string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := slices.Index(c.labels, label)
	if i < 0 {
		return false
	}
	c.labels = slices.Delete(c.labels, i, i+1)
	c.logger.Info("Removed label", logger.String("label", label))
	return true
}

// Classify scores text against labels, or the current set when labels is
// nil, and returns them best first.
func (c *Classifier) Classify(ctx context.Context, text string, labels []string) ([]models.LabelScore, error) {
	if labels == nil {
		labels = c.Labels()
	}
	if len(labels) == 0 {
		return nil, ErrNoLabels
	}
	scores, err := c.scorer.Score(ctx, c.truncate(text), labels)
	if err != nil {
		return nil, fmt.Errorf("score labels: %w", err)
	}
	rank(scores, labels)
	if len(scores) > 0 {
		c.logger.Debug("Document classified",
			logger.String("top_label", scores[0].Label),
			logger.Float64("top_score", scores[0].Score))
	}
	return scores, nil
}

// SuggestTags keeps ranked labels scoring at least the threshold, up to
// the tag limit.
func (c *Classifier) SuggestTags(ctx context.Context, text string) (Suggestion, error) {
	var (
		scores []models.LabelScore
		err    error
	)
	if c.sectioned && len(strings.Fields(text)) > c.sectionSize {
		var res SectionResult
		res, err = c.ClassifyBySections(ctx, text)
		scores = res.Overall
	} else {
		scores, err = c.Classify(ctx, text, nil)
	}
	if err != nil {
		return Suggestion{}, err
	}
	return Suggestion{Tags: c.filter(scores), Scores: scores}, nil
}

func (c *Classifier) filter(scores []models.LabelScore) []string {
	tags := make([]string, 0, c.maxTags)
	for _, s := range scores {
		if len(tags) == c.maxTags {
			break
		}
		if s.Score >= c.threshold {
			tags = append(tags, s.Label)
		}
	}
	return tags
}

// ClassifyBySections classifies each fixed-size word section and ranks
// labels by their mean score over the sections that scored them.
func (c *Classifier) ClassifyBySections(ctx context.Context, text string) (SectionResult, error) {
	labels := c.Labels()
	if len(labels) == 0 {
		return SectionResult{}, ErrNoLabels
	}
	sections := splitSections(text, c.sectionSize)
	if len(sections) == 0 {
		return SectionResult{}, nil
	}

	results := make([]SectionScores, len(sections))
	errs := make([]error, len(sections))
	run := func(i int) {
		scores, err := c.Classify(ctx, sections[i], labels)
		results[i] = SectionScores{Index: i, Text: sections[i], Scores: scores}
		errs[i] = err
	}

	if c.pool == nil || len(sections) == 1 {
		for i := range sections {
			run(i)
		}
	} else {
		var wg sync.WaitGroup
		for i := range sections {
			wg.Add(1)
			if err := c.pool.Submit(func() {
				defer wg.Done()
				run(i)
			}); err != nil {
				wg.Done()
				run(i)
			}
		}
		wg.Wait()
	}
	if err := errors.Join(errs...); err != nil {
		return SectionResult{}, err
	}

	c.logger.Debug("Classified sections", logger.Int("sections", len(sections)))
	return SectionResult{
		Overall:       aggregate(results, labels),
		Sections:      results,
		TotalSections: len(sections),
	}, nil
}

func aggregate(sections []SectionScores, labels []string) []models.LabelScore {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, s := range sections {
		for _, ls := range s.Scores {
			sums[ls.Label] += ls.Score
			counts[ls.Label]++
		}
	}
	out := make([]models.LabelScore, 0, len(sums))
	for label, sum := range sums {
		out = append(out, models.LabelScore{Label: label, Score: sum / float64(counts[label])})
	}
	rank(out, labels)
	return out
}

// truncate keeps the first maxChars characters of text.
func (c *Classifier) truncate(text string) string {
	n := 0
	for i := range text {
		if n == c.maxChars {
			return text[:i] + "..."
		}
		n++
	}
	return text
}

func splitSections(text string, size int) []string {
	words := strings.Fields(text)
	var sections []string
	for i := 0; i < len(words); i += size {
		sections = append(sections, strings.Join(words[i:min(i+size, len(words))], " "))
	}
	return sections
}

// rank sorts scores descending; ties keep the order of labels.
func rank(scores []models.LabelScore, labels []string) {
	pos := make(map[string]int, len(labels))
	for i, l := range labels {
		pos[l] = i
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return pos[scores[i].Label] < pos[scores[j].Label]
	})
}

func dedupe(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l != "" && !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	return out
}
