package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/document-intelligence/pkg/logger"
)

const defaultCacheTTL = 24 * time.Hour

// CachedEncoder memoises vectors in redis, keyed by model and text hash.
// Cache failures are logged and fall through to the wrapped encoder.
type CachedEncoder struct {
	next   Encoder
	client redis.UniversalClient
	model  string
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedEncoder(next Encoder, client redis.UniversalClient, model string, ttl time.Duration, log logger.Logger) *CachedEncoder {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedEncoder{next: next, client: client, model: model, ttl: ttl, logger: log.Named("embedding-cache")}
}

func (c *CachedEncoder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("docintel:embed:%s:%s", c.model, hex.EncodeToString(sum[:]))
}

func (c *CachedEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if vec, derr := decodeVector(raw); derr == nil {
			return vec, nil
		}
		c.logger.Warn("Discarding corrupt cache entry", logger.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("Embedding cache read failed", logger.Error(err))
	}

	vec, err := c.next.Encode(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, key, encodeVector(vec), c.ttl).Err(); err != nil {
		c.logger.Warn("Embedding cache write failed", logger.Error(err))
	}
	return vec, nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("vector payload length %d not a multiple of 4", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec, nil
}
