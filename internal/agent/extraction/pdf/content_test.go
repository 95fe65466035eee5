package pdf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/feichai0017/document-intelligence/pkg/logger"
)

func TestParseContentText(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "show and position",
			content: "BT /F1 12 Tf 72 712 Td (Hello, World!) Tj 0 -14 Td [(Invoi) 30 (ce) -300 (42)] TJ ET",
			want:    "Hello, World!\nInvoice 42",
		},
		{
			name:    "escapes",
			content: `BT (a \(b\) c\\) Tj ET`,
			want:    `a (b) c\`,
		},
		{
			name:    "octal escape",
			content: `BT (\101\102C) Tj ET`,
			want:    "ABC",
		},
		{
			name:    "hex string",
			content: "BT <48656C6C6F> Tj ET",
			want:    "Hello",
		},
		{
			name:    "utf16 hex string",
			content: "BT <FEFF00480069> Tj ET",
			want:    "Hi",
		},
		{
			name:    "quote operator moves to next line",
			content: "BT (first) Tj (second) ' ET",
			want:    "first\nsecond",
		},
		{
			name:    "inline image is skipped",
			content: "q BI /W 1 /H 1 /BPC 8 ID \x00\xff\x10 EI Q BT (after) Tj ET",
			want:    "after",
		},
		{
			name:    "comments and dictionaries",
			content: "% header\n/Span <</MCID 0>> BDC BT (tagged) Tj ET EMC",
			want:    "tagged",
		},
		{
			name:    "no text",
			content: "q 1 0 0 1 0 0 cm 0 0 100 100 re f Q",
			want:    "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseContentText([]byte(tt.content)))
		})
	}
}

func TestExtractorsRejectGarbage(t *testing.T) {
	ctx := context.Background()
	garbage := []byte("this is not a pdf at all")

	text, err := NewPlainTextExtractor(logger.NewNop()).ExtractText(ctx, garbage)
	assert.Error(t, err)
	assert.Empty(t, text)

	text, err = NewContentStreamExtractor(logger.NewNop()).ExtractText(ctx, garbage)
	assert.Error(t, err)
	assert.Empty(t, text)

	assert.Equal(t, 0, PageCount(garbage))
}
