package embedding

import (
	"fmt"
	"strings"

	"github.com/feichai0017/document-intelligence/internal/models"
)

// SplitChunks cuts text into windows of size whitespace tokens. Window i
// starts at token i*(size-overlap); splitting stops after the window that
// reaches the last token. Text that fits in one window comes back as a
// single chunk holding the original string.
func SplitChunks(text string, size, overlap int) ([]models.Chunk, error) {
	if size < 1 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidChunking, size, overlap)
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}
	if len(words) <= size {
		return []models.Chunk{{Index: 0, Text: text, StartWord: 0, EndWord: len(words)}}, nil
	}

	step := size - overlap
	chunks := make([]models.Chunk, 0, (len(words)+step-1)/step)
	for start := 0; start < len(words); start += step {
		end := min(start+size, len(words))
		chunks = append(chunks, models.Chunk{
			Index:     len(chunks),
			Text:      strings.Join(words[start:end], " "),
			StartWord: start,
			EndWord:   end,
		})
		if end == len(words) {
			break
		}
	}
	return chunks, nil
}

// Reassemble joins chunks in offset order, dropping the overlapping
// prefix of every window after the first.
func Reassemble(chunks []models.Chunk) []string {
	var words []string
	covered := 0
	for _, c := range chunks {
		cw := strings.Fields(c.Text)
		skip := covered - c.StartWord
		if skip < 0 || skip > len(cw) {
			skip = 0
		}
		words = append(words, cw[skip:]...)
		covered = c.StartWord + len(cw)
	}
	return words
}
