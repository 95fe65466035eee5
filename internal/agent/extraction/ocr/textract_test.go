package ocr

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-intelligence/pkg/logger"
)

type fakeTextract struct {
	out *textract.DetectDocumentTextOutput
	err error
	got *textract.DetectDocumentTextInput
}

func (f *fakeTextract) DetectDocumentText(_ context.Context, in *textract.DetectDocumentTextInput, _ ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error) {
	f.got = in
	return f.out, f.err
}

func TestTextractKeepsConfidentLines(t *testing.T) {
	fake := &fakeTextract{out: &textract.DetectDocumentTextOutput{
		Blocks: []types.Block{
			{BlockType: types.BlockTypePage},
			{BlockType: types.BlockTypeLine, Text: aws.String("Invoice 42"), Confidence: aws.Float32(99)},
			{BlockType: types.BlockTypeWord, Text: aws.String("Invoice"), Confidence: aws.Float32(99)},
			{BlockType: types.BlockTypeLine, Text: aws.String("smudge"), Confidence: aws.Float32(12)},
			{BlockType: types.BlockTypeLine, Text: aws.String("Total: 10"), Confidence: aws.Float32(80)},
		},
	}}
	tx := newTextract(fake, logger.NewNop())

	text, err := tx.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)))
	require.NoError(t, err)
	assert.Equal(t, "Invoice 42\nTotal: 10", text)
	require.NotNil(t, fake.got)
	assert.NotEmpty(t, fake.got.Document.Bytes)
}

func TestTextractPropagatesErrors(t *testing.T) {
	tx := newTextract(&fakeTextract{err: errors.New("throttled")}, logger.NewNop())
	_, err := tx.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 1, 1)))
	assert.ErrorContains(t, err, "throttled")
}
