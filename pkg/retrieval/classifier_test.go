package retrieval

import "testing"

func TestClassifier_IdentifierQuery(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig())

	for _, text := range []string{
		"invoice #48213",
		"ORD-2024-991",
		"user_id:5521",
		"srv-03/var/log",
	} {
		got := c.Classify(text)
		if got.Label != LabelIdentifier {
			t.Errorf("Classify(%q) = %s (resonance %.3f), want identifier", text, got.Label, got.Resonance)
		}
	}
}

func TestClassifier_AbstractQuery(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig())

	for _, text := range []string{
		"how do distributed systems maintain consistency during network partitions",
		"what are the tradeoffs between eventual and strong consistency models in practice",
	} {
		got := c.Classify(text)
		if got.Label != LabelAbstract {
			t.Errorf("Classify(%q) = %s (resonance %.3f), want abstract", text, got.Label, got.Resonance)
		}
	}
}

func TestClassifier_FactualQuery(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig())

	got := c.Classify("capital of France")
	if got.Label != LabelFactual {
		t.Errorf("Classify(capital of France) = %s (resonance %.3f), want factual", got.Label, got.Resonance)
	}
}

func TestClassifier_EmptyText(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig())

	got := c.Classify("")
	if got.Resonance != 0 || got.Label != LabelIdentifier {
		t.Errorf("empty text: got %+v, want resonance 0 and identifier", got)
	}
}

func TestClassifier_Deterministic(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig())

	first := c.Classify("invoice #48213 payment status")
	for i := 0; i < 100; i++ {
		again := c.Classify("invoice #48213 payment status")
		if again != first {
			t.Fatalf("classification changed between calls: %+v vs %+v", again, first)
		}
	}
}

func TestClassifier_ResonanceInUnitInterval(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig())

	for _, text := range []string{
		"",
		"#",
		"1234567890",
		"aaaaaaaaaaaaaaaa",
		"the quick brown fox jumps over the lazy dog again and again and again",
	} {
		got := c.Classify(text)
		if got.Resonance < 0 || got.Resonance > 1 {
			t.Errorf("Classify(%q) resonance %v outside [0,1]", text, got.Resonance)
		}
	}
}

func TestIsIdentifierToken(t *testing.T) {
	cases := []struct {
		tok  string
		want bool
	}{
		{"48213", true},
		{"#48213", true},
		{"user_id", true},
		{"a/b", true},
		{"host:8080", true},
		{"ORD-X", true},
		{"well-known", false},
		{"hello", false},
		{"France", false},
	}
	for _, tc := range cases {
		if got := isIdentifierToken(tc.tok); got != tc.want {
			t.Errorf("isIdentifierToken(%q) = %v, want %v", tc.tok, got, tc.want)
		}
	}
}
