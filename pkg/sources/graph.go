package sources

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/fusemem/fusemem/pkg/retrieval"
)

// GraphConfig configures the graph source.
type GraphConfig struct {
	// DefaultDepth is the traversal depth when the query carries no hint.
	DefaultDepth int

	// Decay attenuates scores per hop so distant neighbors rank below the
	// entities the query named. Must be in (0, 1].
	Decay float64
}

// DefaultGraphConfig returns the default traversal parameters.
func DefaultGraphConfig() GraphConfig {
	return GraphConfig{
		DefaultDepth: 2,
		Decay:        0.5,
	}
}

// GraphNode is one entity in the knowledge graph.
type GraphNode struct {
	ID      string
	Name    string
	Aliases []string
	Meta    map[string]string
}

type graphEdge struct {
	to     string
	weight float64
}

// GraphSource retrieves by entity traversal: query tokens are matched
// against node names and aliases, then the neighborhood is expanded
// breadth-first with per-hop score decay. Traversal cost grows with the
// neighborhood, so the source is deferred and subject to the early-exit
// guard.
type GraphSource struct {
	cfg GraphConfig

	mu    sync.RWMutex
	nodes map[string]*GraphNode
	edges map[string][]graphEdge

	// token -> node IDs whose name or alias contains it
	tokenIndex map[string]map[string]struct{}
}

// NewGraphSource creates an empty graph source.
func NewGraphSource(cfg GraphConfig) *GraphSource {
	if cfg.DefaultDepth <= 0 {
		cfg.DefaultDepth = DefaultGraphConfig().DefaultDepth
	}
	if cfg.Decay <= 0 || cfg.Decay > 1 {
		cfg.Decay = DefaultGraphConfig().Decay
	}
	return &GraphSource{
		cfg:        cfg,
		nodes:      make(map[string]*GraphNode),
		edges:      make(map[string][]graphEdge),
		tokenIndex: make(map[string]map[string]struct{}),
	}
}

// Name implements retrieval.Source.
func (s *GraphSource) Name() string { return retrieval.EngineGraph }

// Deferred implements retrieval.Source.
func (s *GraphSource) Deferred() bool { return true }

// AddNode inserts or replaces a node and indexes its name and aliases.
func (s *GraphSource) AddNode(n GraphNode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.nodes[n.ID]; ok {
		s.unindexLocked(old)
	}
	node := n
	s.nodes[n.ID] = &node

	for _, tok := range graphTokens(n.Name) {
		s.indexTokenLocked(tok, n.ID)
	}
	for _, alias := range n.Aliases {
		for _, tok := range graphTokens(alias) {
			s.indexTokenLocked(tok, n.ID)
		}
	}
}

// AddEdge links two nodes with a relation strength in (0, 1]. Edges are
// stored in both directions; traversal treats the graph as undirected.
func (s *GraphSource) AddEdge(from, to string, weight float64) {
	if weight <= 0 || weight > 1 {
		weight = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[from] = append(s.edges[from], graphEdge{to: to, weight: weight})
	s.edges[to] = append(s.edges[to], graphEdge{to: from, weight: weight})
}

// Len returns the number of nodes.
func (s *GraphSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

func (s *GraphSource) indexTokenLocked(tok, id string) {
	if s.tokenIndex[tok] == nil {
		s.tokenIndex[tok] = make(map[string]struct{})
	}
	s.tokenIndex[tok][id] = struct{}{}
}

func (s *GraphSource) unindexLocked(n *GraphNode) {
	drop := func(tok string) {
		if ids, ok := s.tokenIndex[tok]; ok {
			delete(ids, n.ID)
			if len(ids) == 0 {
				delete(s.tokenIndex, tok)
			}
		}
	}
	for _, tok := range graphTokens(n.Name) {
		drop(tok)
	}
	for _, alias := range n.Aliases {
		for _, tok := range graphTokens(alias) {
			drop(tok)
		}
	}
}

// Fetch implements retrieval.Source.
func (s *GraphSource) Fetch(ctx context.Context, q retrieval.Query, limit int) ([]retrieval.Candidate, error) {
	tokens := graphTokens(q.Text)
	if len(tokens) == 0 {
		return nil, nil
	}

	depth := q.Depth
	if depth <= 0 {
		depth = s.cfg.DefaultDepth
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Seed scores count matched tokens; a node the query names twice beats a
	// node it brushes once.
	seeds := make(map[string]float64)
	for _, tok := range tokens {
		for id := range s.tokenIndex[tok] {
			seeds[id]++
		}
	}
	if len(seeds) == 0 {
		return nil, nil
	}
	for id := range seeds {
		seeds[id] /= float64(len(tokens))
	}

	// Breadth-first expansion keeping the best score per node.
	best := make(map[string]float64, len(seeds))
	frontier := make([]string, 0, len(seeds))
	for id, score := range seeds {
		best[id] = score
		frontier = append(frontier, id)
	}
	sort.Strings(frontier)

	for hop := 0; hop < depth; hop++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var next []string
		for _, id := range frontier {
			base := best[id]
			for _, e := range s.edges[id] {
				score := base * e.weight * s.cfg.Decay
				if score <= best[e.to] {
					continue
				}
				best[e.to] = score
				next = append(next, e.to)
			}
		}
		if len(next) == 0 {
			break
		}
		sort.Strings(next)
		frontier = next
	}

	type scored struct {
		id    string
		score float64
	}
	results := make([]scored, 0, len(best))
	for id, score := range best {
		node, ok := s.nodes[id]
		if !ok || !matchesFilters(node.Meta, q.Filters) {
			continue
		}
		results = append(results, scored{id: id, score: score})
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

func graphTokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	return fields
}
