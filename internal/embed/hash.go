package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/ppiankov/inspecta/internal/util"
)

const defaultHashDimensions = 512

// Hash is a local feature-hashing embedder over word unigrams and character
// trigrams. It needs no network and is fully deterministic, which makes it the
// offline default and the embedder used in tests.
type Hash struct {
	dims int
}

// NewHash creates a hashing embedder with the given number of dimensions
func NewHash(dims int) *Hash {
	if dims <= 0 {
		dims = defaultHashDimensions
	}
	return &Hash{dims: dims}
}

// Embed hashes text into a unit vector
func (h *Hash) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("hash embeddings", err)
	}

	v := make([]float32, h.dims)
	for _, word := range tokenize(text) {
		h.add(v, "w:"+word, 1)
		padded := []rune("#" + word + "#")
		for i := 0; i+3 <= len(padded); i++ {
			h.add(v, "t:"+string(padded[i:i+3]), 0.5)
		}
	}
	return Normalize(v), nil
}

// EmbedBatch embeds each text in order
func (h *Hash) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the vector size
func (h *Hash) Dimensions() int {
	return h.dims
}

// ModelName identifies the hashing scheme so cached vectors never mix with other models
func (h *Hash) ModelName() string {
	return fmt.Sprintf("hash-trigram-%d", h.dims)
}

func (h *Hash) add(v []float32, feature string, weight float32) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dims))
	if sum>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(util.Fold(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
