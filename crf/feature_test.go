package crf

import (
	"math"
	"testing"
)

func TestBigramFeaturesOnlyWhenAmbiguous(t *testing.T) {
	// A(0) is a singleton, so position 0 must contribute no bigram
	// features; position 1 is ambiguous and must.
	corpus := []TaggedSequence{seq("s1", []string{"u", "v"}, []string{"B", "I"})}
	labels := NewLabelIndex("<S>", "B", "I", "O")
	b, i, o := labels.IndexOf("B"), labels.IndexOf("I"), labels.IndexOf("O")
	constraints := fixedConstraints{sets: [][]int{{b}, {i, o}}, start: labels.Start}
	surface := newWordSurface(corpus)

	f, err := BuildFeaturizer(labels, surface, constraints, corpus)
	if err != nil {
		t.Fatal(err)
	}

	k := labels.Size()
	if id := lookup(f.Label2Word, 0, labels.Start*k+b); id != -1 {
		t.Errorf("bigram feature indexed at unambiguous position, id %d", id)
	}
	if id := lookup(f.Label2Word, 0, b*k+i); id < 0 {
		t.Error("no bigram feature for ambiguous position")
	}
	if id := lookup(f.Label2Word, 0, b*k+o); id < 0 {
		t.Error("no bigram feature for ambiguous position")
	}

	// Unary features: (bias, w=u) x {B} at p=0 plus (bias, w=v) x {I, O}
	// at p=1; bigrams: (bias) x {B} x {I, O}.
	if f.NumFeatures != 8 {
		t.Errorf("NumFeatures = %d, want 8", f.NumFeatures)
	}
}

func TestAnchoredFeatureTable(t *testing.T) {
	corpus := []TaggedSequence{seq("s1", []string{"u", "v"}, []string{"B", "I"})}
	labels := NewLabelIndex("<S>", "B", "I", "O")
	b, i, o := labels.IndexOf("B"), labels.IndexOf("I"), labels.IndexOf("O")
	constraints := fixedConstraints{sets: [][]int{{b}, {i, o}}, start: labels.Start}
	surface := newWordSurface(corpus)

	f, err := BuildFeaturizer(labels, surface, constraints, corpus)
	if err != nil {
		t.Fatal(err)
	}
	af, err := f.AnchorFeatures(corpus[0].Words, surface.Anchor(corpus[0].Words), constraints.Anchor(corpus[0].Words), labels.Start)
	if err != nil {
		t.Fatal(err)
	}

	if fv := af.Transition(0, labels.Start, b); len(fv) != 2 {
		t.Errorf("unary cell has %d features, want 2", len(fv))
	}
	// Forbidden cells stay nil.
	if fv := af.Transition(0, labels.Start, i); fv != nil {
		t.Errorf("forbidden cell not nil: %v", fv)
	}
	if fv := af.Transition(1, i, o); fv != nil {
		t.Errorf("cell with disallowed prev not nil: %v", fv)
	}
	// Ambiguous position carries unary plus bigram features.
	if fv := af.Transition(1, b, i); len(fv) != 3 {
		t.Errorf("ambiguous cell has %d features, want 3", len(fv))
	}
}

func TestUnseenSurfaceFeaturesSkipped(t *testing.T) {
	// A word never seen at training time fires no identity feature; the
	// bias still applies and decoding falls back to transition mass.
	corpus := []TaggedSequence{seq("s1", []string{"u", "v"}, []string{"B", "I"})}
	m := newTestModel(t, []string{"B", "I"}, corpus, nil)
	b := m.Labels.IndexOf("B")
	m.Weights[unaryFeature(t, m, "u", b)] = 1.0

	inf, err := m.Inference(nil)
	if err != nil {
		t.Fatal(err)
	}
	marg, err := inf.Marginal([]string{"zzz", "zzz"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	// All features identical across labels for unseen words: uniform.
	if q := marg.PositionMarginal(0, b); math.Abs(q-0.5) > 1e-9 {
		t.Errorf("PositionMarginal(0, B) = %v, want 0.5", q)
	}
}

func TestIdentityAnchoring(t *testing.T) {
	labels := NewLabelIndex("<S>", "B", "I")
	words := []string{"a", "b"}
	a := NewIdentityAnchoring(labels, words)

	if got := a.ValidSymbols(-1); len(got) != 1 || got[0] != labels.Start {
		t.Errorf("ValidSymbols(-1) = %v, want start only", got)
	}
	if got := a.ValidSymbols(2); len(got) != 1 || got[0] != labels.Start {
		t.Errorf("ValidSymbols(n) = %v, want start only", got)
	}
	if got := a.ValidSymbols(0); len(got) != 2 {
		t.Errorf("ValidSymbols(0) = %v, want two tags", got)
	}
	if s := a.ScoreTransition(0, labels.Start, 1); s != 0 {
		t.Errorf("identity score = %v, want 0", s)
	}
}
