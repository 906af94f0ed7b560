package sources

import (
	"context"
	"testing"

	"github.com/fusemem/fusemem/pkg/retrieval"
)

func paymentGraph() *GraphSource {
	g := NewGraphSource(DefaultGraphConfig())
	g.AddNode(GraphNode{ID: "svc-billing", Name: "billing service", Aliases: []string{"billing"}})
	g.AddNode(GraphNode{ID: "svc-payments", Name: "payments gateway"})
	g.AddNode(GraphNode{ID: "db-ledger", Name: "ledger database"})
	g.AddNode(GraphNode{ID: "svc-email", Name: "email notifier"})
	g.AddEdge("svc-billing", "svc-payments", 0.9)
	g.AddEdge("svc-payments", "db-ledger", 0.8)
	g.AddEdge("svc-billing", "svc-email", 0.3)
	return g
}

func TestGraphSource_SeedMatchAndExpansion(t *testing.T) {
	g := paymentGraph()

	got, err := g.Fetch(context.Background(), retrieval.Query{Text: "billing outage"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 || got[0].ID != "svc-billing" {
		t.Fatalf("expected seed node first, got %v", got)
	}

	found := map[string]float64{}
	for _, c := range got {
		found[c.ID] = c.Score
	}
	if _, ok := found["svc-payments"]; !ok {
		t.Error("one-hop neighbor missing from results")
	}
	if found["svc-payments"] <= found["db-ledger"] {
		t.Errorf("closer neighbor should outscore farther one: %v", found)
	}
}

func TestGraphSource_DepthLimitsTraversal(t *testing.T) {
	g := paymentGraph()

	got, err := g.Fetch(context.Background(), retrieval.Query{Text: "billing", Depth: 1}, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range got {
		if c.ID == "db-ledger" {
			t.Error("two-hop node returned at depth 1")
		}
	}
}

func TestGraphSource_NoSeedsNoResults(t *testing.T) {
	g := paymentGraph()

	got, err := g.Fetch(context.Background(), retrieval.Query{Text: "unrelated gardening question"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results without a seed match, got %v", got)
	}
}

func TestGraphSource_AliasesMatch(t *testing.T) {
	g := NewGraphSource(DefaultGraphConfig())
	g.AddNode(GraphNode{ID: "n1", Name: "customer relationship manager", Aliases: []string{"crm"}})

	got, err := g.Fetch(context.Background(), retrieval.Query{Text: "crm downtime"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "n1" {
		t.Errorf("alias did not match: %v", got)
	}
}

func TestGraphSource_ReplacingNodeReindexes(t *testing.T) {
	g := NewGraphSource(DefaultGraphConfig())
	g.AddNode(GraphNode{ID: "n1", Name: "old name"})
	g.AddNode(GraphNode{ID: "n1", Name: "new name"})

	if got, _ := g.Fetch(context.Background(), retrieval.Query{Text: "old"}, 10); len(got) != 0 {
		t.Errorf("stale token still matches: %v", got)
	}
	if got, _ := g.Fetch(context.Background(), retrieval.Query{Text: "new"}, 10); len(got) != 1 {
		t.Errorf("replacement not indexed: %v", got)
	}
}

func TestGraphSource_IsDeferred(t *testing.T) {
	g := NewGraphSource(DefaultGraphConfig())
	if !g.Deferred() {
		t.Error("graph traversal must be a deferred source")
	}
	if g.Name() != retrieval.EngineGraph {
		t.Errorf("Name() = %s", g.Name())
	}
}
