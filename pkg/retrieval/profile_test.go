package retrieval

import (
	"errors"
	"math"
	"testing"
)

func TestWeightProfile_Validate(t *testing.T) {
	cases := []struct {
		name    string
		profile WeightProfile
		ok      bool
	}{
		{"valid", WeightProfile{Weights: map[string]float64{EngineVector: 1.0}}, true},
		{"empty", WeightProfile{Weights: map[string]float64{}}, false},
		{"nil", WeightProfile{}, false},
		{"negative", WeightProfile{Weights: map[string]float64{EngineVector: -0.1}}, false},
		{"nan", WeightProfile{Weights: map[string]float64{EngineVector: math.NaN()}}, false},
		{"inf", WeightProfile{Weights: map[string]float64{EngineVector: math.Inf(1)}}, false},
		{"all zero", WeightProfile{Weights: map[string]float64{EngineVector: 0, EngineLexical: 0}}, false},
		{"bad strategy", WeightProfile{Strategy: "bogus", Weights: map[string]float64{EngineVector: 1}}, false},
	}
	for _, tc := range cases {
		err := tc.profile.Validate()
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestWeightProfile_Primary(t *testing.T) {
	p := WeightProfile{Weights: map[string]float64{EngineVector: 0.5, EngineLexical: 2.0, EngineGraph: 0.25}}
	if got := p.Primary(); got != EngineLexical {
		t.Errorf("Primary() = %s, want lexical", got)
	}

	tie := WeightProfile{Weights: map[string]float64{EngineVector: 1.0, EngineLexical: 1.0}}
	if got := tie.Primary(); got != EngineLexical {
		t.Errorf("tied Primary() = %s, want lexical (name order)", got)
	}
}

func TestPolicyStore_DeterministicSelection(t *testing.T) {
	s, err := NewPolicyStore(PolicyStoreConfig{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	cases := map[Label]string{
		LabelIdentifier: ProfileLexicalFirst,
		LabelFactual:    ProfileBalanced,
		LabelAbstract:   ProfileVectorFirst,
	}
	for label, want := range cases {
		got := s.ProfileFor(Classification{Label: label})
		if got.Name != want {
			t.Errorf("ProfileFor(%s) = %s, want %s", label, got.Name, want)
		}
	}
}

func TestPolicyStore_AdaptiveReturnsTuned(t *testing.T) {
	s, err := NewPolicyStore(PolicyStoreConfig{Adaptive: true}, nil)
	if err != nil {
		t.Fatal(err)
	}

	got := s.ProfileFor(Classification{Label: LabelFactual})
	if got.Name != ProfileTuned {
		t.Errorf("adaptive ProfileFor = %s, want tuned", got.Name)
	}

	update := WeightProfile{Strategy: StrategyRRF, Weights: map[string]float64{EngineVector: 0.9, EngineLexical: 0.2, EngineGraph: 0.1}}
	if err := s.UpdateTuned(update); err != nil {
		t.Fatal(err)
	}
	got = s.ProfileFor(Classification{Label: LabelIdentifier})
	if !almostEqual(got.Weight(EngineVector), 0.9) {
		t.Errorf("tuned vector weight = %v, want 0.9", got.Weight(EngineVector))
	}
}

func TestPolicyStore_RejectsInvalidTunedUpdate(t *testing.T) {
	s, err := NewPolicyStore(PolicyStoreConfig{Adaptive: true}, nil)
	if err != nil {
		t.Fatal(err)
	}

	good := WeightProfile{Weights: map[string]float64{EngineVector: 0.8, EngineLexical: 0.3}}
	if err := s.UpdateTuned(good); err != nil {
		t.Fatal(err)
	}

	bad := WeightProfile{Weights: map[string]float64{EngineVector: math.NaN()}}
	err = s.UpdateTuned(bad)
	var ipe *InvalidProfileError
	if !errors.As(err, &ipe) {
		t.Fatalf("expected InvalidProfileError, got %v", err)
	}

	// Last known-good snapshot must survive the rejected update.
	tuned := s.Tuned()
	if !almostEqual(tuned.Weight(EngineVector), 0.8) {
		t.Errorf("tuned profile changed after rejected update: %v", tuned.Weights)
	}
}

func TestPolicyStore_ProfileNamed(t *testing.T) {
	s, err := NewPolicyStore(PolicyStoreConfig{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.ProfileNamed(ProfileVectorFirst); err != nil {
		t.Errorf("known profile: unexpected error %v", err)
	}
	if _, err := s.ProfileNamed(ProfileTuned); err != nil {
		t.Errorf("tuned profile: unexpected error %v", err)
	}

	_, err = s.ProfileNamed("nonexistent")
	var upe *UnknownProfileError
	if !errors.As(err, &upe) {
		t.Errorf("expected UnknownProfileError, got %v", err)
	}
}

func TestPolicyStore_SnapshotIsACopy(t *testing.T) {
	s, err := NewPolicyStore(PolicyStoreConfig{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	snap[ProfileBalanced].Weights[EngineVector] = 99.0

	if w := s.ProfileFor(Classification{Label: LabelFactual}).Weight(EngineVector); w == 99.0 {
		t.Error("mutating a snapshot leaked into the store")
	}
}

func TestNewPolicyStore_RejectsDanglingLabelMapping(t *testing.T) {
	_, err := NewPolicyStore(PolicyStoreConfig{
		LabelProfiles: map[Label]string{LabelIdentifier: "missing"},
	}, nil)
	if err == nil {
		t.Fatal("expected error for label mapped to unknown profile")
	}
}
