package redaction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-intelligence/internal/models"
)

func typesFound(t *testing.T, r Recognizer, text string) map[string][]string {
	t.Helper()
	spans, err := r.Recognize(context.Background(), text)
	require.NoError(t, err)
	found := make(map[string][]string)
	for _, s := range ResolveOverlaps(spans) {
		found[s.Type] = append(found[s.Type], text[s.Start:s.End])
	}
	return found
}

func TestPatternRecognizer(t *testing.T) {
	r := NewPatternRecognizer()
	tests := []struct {
		name string
		text string
		typ  string
		want []string
	}{
		{"email", "mail jane.doe@corp.example.org today", "EMAIL_ADDRESS", []string{"jane.doe@corp.example.org"}},
		{"valid card", "card 4111 1111 1111 1111 on file", "CREDIT_CARD", []string{"4111 1111 1111 1111"}},
		{"luhn failure", "card 4111 1111 1111 1112 on file", "CREDIT_CARD", nil},
		{"ipv4", "host 192.168.1.10 is up", "IP_ADDRESS", []string{"192.168.1.10"}},
		{"invalid ipv4", "version 999.1.1.1 shipped", "IP_ADDRESS", nil},
		{"ssn", "SSN 123-45-6789", "US_SSN", []string{"123-45-6789"}},
		{"iban", "pay to DE89 3704 0044 0532 0130 00 now", "IBAN_CODE", []string{"DE89 3704 0044 0532 0130 00"}},
		{"bad iban checksum", "pay to DE00 3704 0044 0532 0130 00 now", "IBAN_CODE", nil},
		{"phone", "call (555) 123-4567 now", "PHONE_NUMBER", []string{"(555) 123-4567"}},
		{"iso date", "signed 2024-03-01", "DATE_TIME", []string{"2024-03-01"}},
		{"written date", "signed March 5, 2024", "DATE_TIME", []string{"March 5, 2024"}},
		{"passport", "passport number: X12345678", "US_PASSPORT", []string{"X12345678"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, typesFound(t, r, tt.text)[tt.typ])
		})
	}
}

func TestNameRecognizer(t *testing.T) {
	r := NewNameRecognizer("Zephyr")
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"given plus surname", "Contact John Doe at noon", []string{"John Doe"}},
		{"honorific", "Signed by Dr. Okonkwo yesterday", []string{"Dr. Okonkwo"}},
		{"honorific wins over given name", "Ask Ms. Sarah Lee", []string{"Ms. Sarah Lee"}},
		{"two adjacent people", "John Smith Jane Doe", []string{"John Smith", "Jane Doe"}},
		{"middle name", "Mary Ann Jones signed", []string{"Mary Ann Jones"}},
		{"extra given name", "Zephyr Quill wrote it", []string{"Zephyr Quill"}},
		{"lone given name", "John went home", nil},
		{"placeholders", "Contact [PERSON] at [EMAIL]", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, typesFound(t, r, tt.text)["PERSON"])
		})
	}
}

func TestResolveOverlaps(t *testing.T) {
	spans := []models.Entity{
		{Type: "PHONE_NUMBER", Start: 5, End: 17, Score: 0.75},
		{Type: "CREDIT_CARD", Start: 0, End: 19, Score: 0.95},
		{Type: "PERSON", Start: 30, End: 38, Score: 0.8},
		{Type: "PERSON", Start: 30, End: 34, Score: 0.8},
		{Type: "EMAIL_ADDRESS", Start: 20, End: 29, Score: 1},
	}
	got := ResolveOverlaps(spans)
	require.Len(t, got, 3)
	assert.Equal(t, "CREDIT_CARD", got[0].Type)
	assert.Equal(t, "EMAIL_ADDRESS", got[1].Type)
	assert.Equal(t, 38, got[2].End)
}

func TestCompositeRecognizerFailsWhole(t *testing.T) {
	c := NewCompositeRecognizer(NewPatternRecognizer(), stubRecognizer{err: errors.New("down")})
	_, err := c.Recognize(context.Background(), "a@b.co")
	assert.Error(t, err)
}
