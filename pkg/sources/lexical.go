package sources

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/fusemem/fusemem/pkg/retrieval"
)

// LexicalSource is an in-memory BM25 full-text index. Exact term matching
// makes it the engine of choice for identifier-shaped queries: ticket
// numbers, codes and paths that embeddings smear into noise.
type LexicalSource struct {
	mu sync.RWMutex

	k1 float64
	b  float64

	// term -> documents containing it
	inverted map[string]map[string]struct{}

	// document -> term frequencies
	termFreqs map[string]map[string]int

	docLengths map[string]int
	metadata   map[string]map[string]string

	totalDocs int
	totalLen  int

	stopWords map[string]struct{}
}

// NewLexicalSource creates a BM25 index. k1 controls term-frequency
// saturation, b controls length normalization; zero values select the
// conventional 1.5 and 0.75.
func NewLexicalSource(k1, b float64) *LexicalSource {
	if k1 <= 0 {
		k1 = 1.5
	}
	if b <= 0 {
		b = 0.75
	}
	return &LexicalSource{
		k1:         k1,
		b:          b,
		inverted:   make(map[string]map[string]struct{}),
		termFreqs:  make(map[string]map[string]int),
		docLengths: make(map[string]int),
		metadata:   make(map[string]map[string]string),
		stopWords:  lexicalStopWords(),
	}
}

// Name implements retrieval.Source.
func (s *LexicalSource) Name() string { return retrieval.EngineLexical }

// Deferred implements retrieval.Source. Inverted-index lookups are the
// cheapest fetch in the system.
func (s *LexicalSource) Deferred() bool { return false }

// Index adds or replaces a document.
func (s *LexicalSource) Index(id, content string, meta map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.termFreqs[id]; exists {
		s.removeLocked(id)
	}

	tokens := s.tokenize(content)
	freqs := make(map[string]int)
	for _, tok := range tokens {
		freqs[tok]++
	}

	s.termFreqs[id] = freqs
	s.docLengths[id] = len(tokens)
	s.metadata[id] = meta
	s.totalDocs++
	s.totalLen += len(tokens)

	for term := range freqs {
		if s.inverted[term] == nil {
			s.inverted[term] = make(map[string]struct{})
		}
		s.inverted[term][id] = struct{}{}
	}
}

// Remove deletes a document from the index.
func (s *LexicalSource) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *LexicalSource) removeLocked(id string) {
	freqs, exists := s.termFreqs[id]
	if !exists {
		return
	}
	for term := range freqs {
		if docs, ok := s.inverted[term]; ok {
			delete(docs, id)
			if len(docs) == 0 {
				delete(s.inverted, term)
			}
		}
	}
	s.totalLen -= s.docLengths[id]
	s.totalDocs--
	delete(s.termFreqs, id)
	delete(s.docLengths, id)
	delete(s.metadata, id)
}

// Len returns the number of indexed documents.
func (s *LexicalSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalDocs
}

// Fetch implements retrieval.Source.
func (s *LexicalSource) Fetch(_ context.Context, q retrieval.Query, limit int) ([]retrieval.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.totalDocs == 0 {
		return nil, nil
	}
	queryTokens := s.tokenize(q.Text)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	avgDL := float64(s.totalLen) / float64(s.totalDocs)

	seen := make(map[string]struct{})
	for _, tok := range queryTokens {
		for id := range s.inverted[tok] {
			if !matchesFilters(s.metadata[id], q.Filters) {
				continue
			}
			seen[id] = struct{}{}
		}
	}

	type scored struct {
		id    string
		score float64
	}
	results := make([]scored, 0, len(seen))
	for id := range seen {
		if score := s.scoreLocked(id, queryTokens, avgDL); score > 0 {
			results = append(results, scored{id: id, score: score})
		}
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

// scoreLocked computes the BM25 score of one document against the query
// tokens. Caller holds at least the read lock.
func (s *LexicalSource) scoreLocked(id string, queryTokens []string, avgDL float64) float64 {
	docLen := float64(s.docLengths[id])
	freqs := s.termFreqs[id]
	score := 0.0

	for _, term := range queryTokens {
		tf := float64(freqs[term])
		if tf == 0 {
			continue
		}
		// IDF: log((N - n + 0.5) / (n + 0.5) + 1)
		n := float64(len(s.inverted[term]))
		idf := math.Log((float64(s.totalDocs)-n+0.5)/(n+0.5) + 1.0)

		numerator := tf * (s.k1 + 1)
		denominator := tf + s.k1*(1-s.b+s.b*docLen/avgDL)
		score += idf * numerator / denominator
	}
	return score
}

// tokenize lowercases and splits on non-alphanumerics, dropping stop words.
// CJK runes become single-rune tokens.
func (s *LexicalSource) tokenize(text string) []string {
	text = strings.ToLower(text)
	tokens := make([]string, 0, len(text)/4)
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		tok := current.String()
		if _, stop := s.stopWords[tok]; !stop {
			tokens = append(tokens, tok)
		}
		current.Reset()
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if unicode.Is(unicode.Han, r) {
				flush()
				tokens = append(tokens, string(r))
				continue
			}
			current.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}

func lexicalStopWords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "is", "are", "was", "were", "be", "been", "being",
		"have", "has", "had", "do", "does", "did", "will", "would", "could",
		"should", "may", "might", "shall", "can", "to", "of", "in", "for",
		"on", "with", "at", "by", "from", "as", "into", "through", "during",
		"before", "after", "between", "out", "over", "under", "then", "once",
		"and", "but", "or", "nor", "not", "so", "if", "when", "where", "how",
		"what", "which", "who", "this", "that", "these", "those", "it", "its",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
