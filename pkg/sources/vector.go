// Package sources provides the built-in candidate sources: a dense-vector
// similarity index, a BM25 lexical index and a knowledge-graph traverser.
// Each implements retrieval.Source and stays replaceable behind it.
package sources

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/fusemem/fusemem/pkg/retrieval"
)

// ErrDimensionMismatch is returned when a vector's length does not match the
// index dimension.
var ErrDimensionMismatch = fmt.Errorf("sources: vector dimension mismatch")

// Embedder turns query text into a dense vector. Implementations may call a
// remote model; Fetch passes its context through.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// VectorSource is a brute-force cosine-similarity index over document
// embeddings. It is exact rather than approximate; for corpora past a few
// hundred thousand vectors swap in an ANN index behind the Source interface.
type VectorSource struct {
	mu        sync.RWMutex
	dimension int
	embedder  Embedder
	vectors   map[string][]float32
	metadata  map[string]map[string]string
}

// NewVectorSource creates a vector source over the given embedder.
func NewVectorSource(embedder Embedder) *VectorSource {
	return &VectorSource{
		dimension: embedder.Dimension(),
		embedder:  embedder,
		vectors:   make(map[string][]float32),
		metadata:  make(map[string]map[string]string),
	}
}

// Name implements retrieval.Source.
func (s *VectorSource) Name() string { return retrieval.EngineVector }

// Deferred implements retrieval.Source. Embedding plus a full scan is cheap
// enough to run on every query.
func (s *VectorSource) Deferred() bool { return false }

// Index adds or replaces a document embedding.
func (s *VectorSource) Index(id string, vector []float32, meta map[string]string) error {
	if len(vector) != s.dimension {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, s.dimension, len(vector))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors[id] = vector
	s.metadata[id] = meta
	return nil
}

// IndexText embeds the content and indexes the result.
func (s *VectorSource) IndexText(ctx context.Context, id, content string, meta map[string]string) error {
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("sources: embed %q: %w", id, err)
	}
	return s.Index(id, vec, meta)
}

// Remove deletes a document from the index.
func (s *VectorSource) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vectors, id)
	delete(s.metadata, id)
}

// Len returns the number of indexed documents.
func (s *VectorSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

// Fetch implements retrieval.Source: embed the query, scan, filter, rank.
func (s *VectorSource) Fetch(ctx context.Context, q retrieval.Query, limit int) ([]retrieval.Candidate, error) {
	query, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("sources: embed query: %w", err)
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: embedder produced %d, index expects %d", ErrDimensionMismatch, len(query), s.dimension)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		id    string
		score float64
	}
	results := make([]scored, 0, len(s.vectors))
	for id, vec := range s.vectors {
		if !matchesFilters(s.metadata[id], q.Filters) {
			continue
		}
		results = append(results, scored{id: id, score: cosineSimilarity(query, vec)})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].id < results[j].id
	})
	if limit < len(results) {
		results = results[:limit]
	}

	candidates := make([]retrieval.Candidate, len(results))
	for i, r := range results {
		candidates[i] = retrieval.Candidate{ID: r.id, Score: r.score}
	}
	return candidates, nil
}

// Save persists the index to a file.
// Format: [dimension:uint32][count:uint32] then per document:
// [idLen:uint16][id][metaCount:uint16]([kLen:uint16][k][vLen:uint16][v])*
// [vector:float32*dim]
func (s *VectorSource) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sources: save vector index: %w", err)
	}
	defer f.Close()

	if err := binary.Write(f, binary.LittleEndian, uint32(s.dimension)); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(s.vectors))); err != nil {
		return err
	}
	for id, vec := range s.vectors {
		if err := writeString(f, id); err != nil {
			return err
		}
		meta := s.metadata[id]
		if err := binary.Write(f, binary.LittleEndian, uint16(len(meta))); err != nil {
			return err
		}
		for k, v := range meta {
			if err := writeString(f, k); err != nil {
				return err
			}
			if err := writeString(f, v); err != nil {
				return err
			}
		}
		if err := binary.Write(f, binary.LittleEndian, vec); err != nil {
			return err
		}
	}
	return nil
}

// Load restores the index from a file written by Save.
func (s *VectorSource) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("sources: load vector index: %w", err)
	}
	defer f.Close()

	var dim, count uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return err
	}
	if int(dim) != s.dimension {
		return fmt.Errorf("%w: file has %d, index expects %d", ErrDimensionMismatch, dim, s.dimension)
	}
	if err := binary.Read(f, binary.LittleEndian, &count); err != nil {
		return err
	}

	vectors := make(map[string][]float32, count)
	metadata := make(map[string]map[string]string, count)
	for i := uint32(0); i < count; i++ {
		id, err := readString(f)
		if err != nil {
			return err
		}
		var metaCount uint16
		if err := binary.Read(f, binary.LittleEndian, &metaCount); err != nil {
			return err
		}
		var meta map[string]string
		if metaCount > 0 {
			meta = make(map[string]string, metaCount)
			for j := uint16(0); j < metaCount; j++ {
				k, err := readString(f)
				if err != nil {
					return err
				}
				v, err := readString(f)
				if err != nil {
					return err
				}
				meta[k] = v
			}
		}
		vec := make([]float32, dim)
		if err := binary.Read(f, binary.LittleEndian, vec); err != nil {
			return err
		}
		vectors[id] = vec
		metadata[id] = meta
	}

	s.mu.Lock()
	s.vectors = vectors
	s.metadata = metadata
	s.mu.Unlock()
	return nil
}

func writeString(w io.Writer, v string) error {
	// The on-disk length prefix is uint16; letting a longer string wrap
	// would desync every record after it on Load.
	if len(v) > math.MaxUint16 {
		return fmt.Errorf("sources: string of %d bytes exceeds the %d-byte index format limit", len(v), math.MaxUint16)
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(v))); err != nil {
		return err
	}
	_, err := w.Write([]byte(v))
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// matchesFilters applies AND semantics over the query's metadata filters.
func matchesFilters(meta map[string]string, filters map[string]string) bool {
	for k, want := range filters {
		if meta[k] != want {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// HashingEmbedder is a deterministic, dependency-free embedder: tokens are
// feature-hashed into a fixed number of buckets and the result is
// L2-normalized. Good enough for tests and air-gapped deployments; production
// setups plug a model-backed Embedder in instead.
type HashingEmbedder struct {
	dim int
}

// NewHashingEmbedder creates a hashing embedder with the given dimension.
func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashingEmbedder{dim: dim}
}

// Dimension implements Embedder.
func (e *HashingEmbedder) Dimension() int { return e.dim }

// Embed implements Embedder.
func (e *HashingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	for _, tok := range hashTokens(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		bucket := int(sum % uint32(e.dim))
		sign := float32(1)
		if sum&0x80000000 != 0 {
			sign = -1
		}
		vec[bucket] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

func hashTokens(text string) []string {
	var tokens []string
	var current strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
			continue
		}
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}
