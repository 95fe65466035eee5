package redaction

import (
	"context"
	"math/big"
	"net"
	"regexp"
	"strings"

	"github.com/feichai0017/document-intelligence/internal/models"
)

// Pattern is one regular expression recogniser. Validate, when set, can
// reject a match (checksums, address parsing).
type Pattern struct {
	Type     string
	Regex    *regexp.Regexp
	Score    float64
	Validate func(match string) bool
	// Group selects a capture group as the span, 0 is the whole match.
	Group int
}

// DefaultPatterns covers the structured identifiers.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Type:  "EMAIL_ADDRESS",
			Regex: regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
			Score: 1.0,
		},
		{
			Type:     "CREDIT_CARD",
			Regex:    regexp.MustCompile(`\b(?:\d[ \-]?){12,18}\d\b`),
			Score:    0.95,
			Validate: luhnValid,
		},
		{
			Type:     "IBAN_CODE",
			Regex:    regexp.MustCompile(`\b[A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,4})?\b`),
			Score:    0.95,
			Validate: ibanValid,
		},
		{
			Type:  "US_SSN",
			Regex: regexp.MustCompile(`\b(?:00[1-9]|0[1-9]\d|[1-578]\d{2}|6[0-57-9]\d|66[0-57-9])-(?:0[1-9]|[1-9]\d)-(?:000[1-9]|00[1-9]\d|0[1-9]\d{2}|[1-9]\d{3})\b`),
			Score: 0.85,
		},
		{
			Type:     "IP_ADDRESS",
			Regex:    regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b|\b(?:[0-9A-Fa-f]{1,4}:){7}[0-9A-Fa-f]{1,4}\b`),
			Score:    0.9,
			Validate: func(s string) bool { return net.ParseIP(s) != nil },
		},
		{
			Type:  "PHONE_NUMBER",
			Regex: regexp.MustCompile(`(?:\+\d{1,3}[ .\-]?)?(?:\(\d{2,4}\)|\b\d{3})[ .\-]?\d{3}[ .\-]?\d{4}\b`),
			Score: 0.75,
		},
		{
			Type: "DATE_TIME",
			Regex: regexp.MustCompile(`(?i)\b(?:\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4}|` +
				`(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.? \d{1,2},? \d{4}|` +
				`\d{1,2} (?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]* \d{4})\b`),
			Score: 0.6,
		},
		{
			Type:  "CRYPTO",
			Regex: regexp.MustCompile(`\b(?:bc1[a-z0-9]{25,39}|[13][a-km-zA-HJ-NP-Z1-9]{25,34})\b`),
			Score: 0.5,
		},
		{
			Type:  "US_PASSPORT",
			Regex: regexp.MustCompile(`(?i)\bpassport(?: (?:no\.?|number|#))?:? ?([A-Z0-9]{9})\b`),
			Score: 0.6,
			Group: 1,
		},
	}
}

// PatternRecognizer matches a fixed list of regular expressions.
type PatternRecognizer struct {
	patterns []Pattern
}

func NewPatternRecognizer(patterns ...Pattern) *PatternRecognizer {
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}
	return &PatternRecognizer{patterns: patterns}
}

func (r *PatternRecognizer) Recognize(ctx context.Context, text string) ([]models.Entity, error) {
	var spans []models.Entity
	for _, p := range r.patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, loc := range p.Regex.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[0], loc[1]
			if p.Group > 0 && len(loc) > 2*p.Group+1 && loc[2*p.Group] >= 0 {
				start, end = loc[2*p.Group], loc[2*p.Group+1]
			}
			match := text[start:end]
			if p.Validate != nil && !p.Validate(match) {
				continue
			}
			spans = append(spans, models.Entity{
				Type:  p.Type,
				Start: start,
				End:   end,
				Score: p.Score,
				Text:  match,
			})
		}
	}
	return spans, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func luhnValid(s string) bool {
	digits := digitsOnly(s)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func ibanValid(s string) bool {
	iban := strings.ReplaceAll(s, " ", "")
	if len(iban) < 15 || len(iban) > 34 {
		return false
	}
	rearranged := iban[4:] + iban[:4]
	var numeric strings.Builder
	for _, c := range rearranged {
		switch {
		case c >= '0' && c <= '9':
			numeric.WriteRune(c)
		case c >= 'A' && c <= 'Z':
			numeric.WriteString(big.NewInt(int64(c-'A') + 10).String())
		default:
			return false
		}
	}
	n, ok := new(big.Int).SetString(numeric.String(), 10)
	if !ok {
		return false
	}
	return new(big.Int).Mod(n, big.NewInt(97)).Int64() == 1
}
