package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashEncoder is a deterministic bag-of-words encoder: each lowercased
// token is hashed into one signed bucket and the vector is L2-normalised.
// Texts sharing vocabulary score high. It needs no model and backs the
// "hash" provider used in tests and offline runs.
type HashEncoder struct {
	dimension int
}

func NewHashEncoder(dimension int) *HashEncoder {
	return &HashEncoder{dimension: dimension}
}

func (h *HashEncoder) Encode(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dimension)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, tok := range tokens {
		f := fnv.New64a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dimension))
		if sum&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}

func (h *HashEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = h.Encode(ctx, t)
	}
	return out, nil
}
