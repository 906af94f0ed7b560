package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fusemem/fusemem/pkg/retrieval"
)

// stubMissStore is a canned failure store for handler tests.
type stubMissStore struct {
	events []retrieval.FailureEvent
	err    error
}

func (s *stubMissStore) ListFailures(ctx context.Context, limit int, label retrieval.Label) ([]retrieval.FailureEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]retrieval.FailureEvent, 0, limit)
	for _, ev := range s.events {
		if label != "" && ev.Classification.Label != label {
			continue
		}
		out = append(out, ev)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *stubMissStore) CountFailures(ctx context.Context) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return len(s.events), nil
}

func TestPolicyHandler_Profiles(t *testing.T) {
	handler := NewPolicyHandler(newTestEngine(t), nil, nopLogger{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/policy", nil)
	w := httptest.NewRecorder()

	handler.Profiles(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Profiles() status = %v, want %v", w.Code, http.StatusOK)
	}

	var body struct {
		Profiles map[string]retrieval.WeightProfile `json:"profiles"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	for _, name := range []string{retrieval.ProfileLexicalFirst, retrieval.ProfileBalanced, retrieval.ProfileVectorFirst} {
		if _, ok := body.Profiles[name]; !ok {
			t.Errorf("Profiles missing %q", name)
		}
	}
}

func TestPolicyHandler_BanditState(t *testing.T) {
	handler := NewPolicyHandler(newTestEngine(t), nil, nopLogger{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/policy/bandit", nil)
	w := httptest.NewRecorder()

	handler.BanditState(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("BanditState() status = %v, want %v", w.Code, http.StatusOK)
	}
}

func TestPolicyHandler_ListMisses(t *testing.T) {
	store := &stubMissStore{events: []retrieval.FailureEvent{
		{
			ID:             "miss-1",
			QueryText:      "obscure topic",
			Classification: retrieval.Classification{Label: retrieval.LabelAbstract},
			Profile:        retrieval.ProfileVectorFirst,
			TopScore:       0.04,
			Timestamp:      time.Now().UTC(),
		},
		{
			ID:             "miss-2",
			QueryText:      "ticket-99",
			Classification: retrieval.Classification{Label: retrieval.LabelIdentifier},
			Profile:        retrieval.ProfileLexicalFirst,
			TopScore:       0.0,
			Timestamp:      time.Now().UTC(),
		},
	}}
	handler := NewPolicyHandler(newTestEngine(t), store, nopLogger{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/misses", nil)
	w := httptest.NewRecorder()

	handler.ListMisses(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("ListMisses() status = %v, want %v", w.Code, http.StatusOK)
	}

	var body struct {
		Misses []retrieval.FailureEvent `json:"misses"`
		Total  int                      `json:"total"`
		Limit  int                      `json:"limit"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(body.Misses) != 2 {
		t.Errorf("misses = %d, want 2", len(body.Misses))
	}
	if body.Total != 2 {
		t.Errorf("total = %d, want 2", body.Total)
	}
	if body.Limit != 50 {
		t.Errorf("limit = %d, want default 50", body.Limit)
	}
}

func TestPolicyHandler_ListMissesFiltered(t *testing.T) {
	store := &stubMissStore{events: []retrieval.FailureEvent{
		{ID: "miss-1", Classification: retrieval.Classification{Label: retrieval.LabelAbstract}},
		{ID: "miss-2", Classification: retrieval.Classification{Label: retrieval.LabelIdentifier}},
	}}
	handler := NewPolicyHandler(newTestEngine(t), store, nopLogger{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/misses?label=identifier&limit=1", nil)
	w := httptest.NewRecorder()

	handler.ListMisses(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("ListMisses() status = %v, want %v", w.Code, http.StatusOK)
	}

	var body struct {
		Misses []retrieval.FailureEvent `json:"misses"`
		Limit  int                      `json:"limit"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(body.Misses) != 1 || body.Misses[0].ID != "miss-2" {
		t.Errorf("misses = %v, want [miss-2]", body.Misses)
	}
	if body.Limit != 1 {
		t.Errorf("limit = %d, want 1", body.Limit)
	}
}

func TestPolicyHandler_ListMissesNoStore(t *testing.T) {
	handler := NewPolicyHandler(newTestEngine(t), nil, nopLogger{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/misses", nil)
	w := httptest.NewRecorder()

	handler.ListMisses(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("ListMisses() status = %v, want %v", w.Code, http.StatusServiceUnavailable)
	}
}

func TestPolicyHandler_ListMissesStoreError(t *testing.T) {
	store := &stubMissStore{err: errors.New("store closed")}
	handler := NewPolicyHandler(newTestEngine(t), store, nopLogger{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/misses", nil)
	w := httptest.NewRecorder()

	handler.ListMisses(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("ListMisses() status = %v, want %v", w.Code, http.StatusInternalServerError)
	}
}
