package embeddings

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// DefaultHashDimensions is the vector size of the local hashing embedder
const DefaultHashDimensions = 384

// Ensure HashEmbedder implements Embedder interface at compile time
var _ Embedder = (*HashEmbedder)(nil)

// HashEmbedder is a local, deterministic bag-of-words embedder.
// Every lowercased token is hashed into one of dims buckets with a hash-derived
// sign, and the result is L2-normalised. Texts sharing vocabulary end up close
// under cosine distance, which is enough for offline use and tests.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a hashing embedder with the given dimensionality
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultHashDimensions
	}
	return &HashEmbedder{dims: dims}
}

// Embed generates an embedding for a single text string
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.vector(text), nil
}

// EmbedBatch generates embeddings for multiple text strings
func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("texts cannot be empty")
	}

	result := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := h.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		result[i] = vec
	}
	return result, nil
}

// Health always succeeds; there is no remote service
func (h *HashEmbedder) Health(context.Context) error {
	return nil
}

func (h *HashEmbedder) vector(text string) []float32 {
	vec := make([]float32, h.dims)

	tokens := tokenize(text)
	if len(tokens) == 0 {
		// Punctuation-only input still needs a non-zero vector
		tokens = []string{text}
	}

	for _, tok := range tokens {
		sum := xxhash.Sum64String(tok)
		bucket := sum % uint64(h.dims)
		if sum>>63 == 1 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// Every token cancelled out; fall back to a single bucket
		vec[xxhash.Sum64String(text)%uint64(h.dims)] = 1
		return vec
	}

	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
