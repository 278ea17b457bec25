package crf

import "testing"

// wordSurface fires a shared bias feature plus a word-identity feature at
// full level, and only the bias at minimal level.
type wordSurface struct {
	attrs *Alphabet
}

func newWordSurface(corpus []TaggedSequence) *wordSurface {
	ws := &wordSurface{attrs: NewAlphabet()}
	ws.attrs.Add("bias")
	for _, seq := range corpus {
		for _, w := range seq.Words {
			ws.attrs.Add("w=" + w)
		}
	}
	return ws
}

func (ws *wordSurface) Anchor(words []string) AnchoredSurface {
	return anchoredWordSurface{ws: ws, words: words}
}

type anchoredWordSurface struct {
	ws    *wordSurface
	words []string
}

func (a anchoredWordSurface) FeaturesForWord(p int, level FeatureLevel) []int {
	if level == MinimalLevel {
		return []int{0}
	}
	ids := []int{0}
	if id := a.ws.attrs.Get("w=" + a.words[p]); id >= 0 {
		ids = append(ids, id)
	}
	return ids
}

// fixedConstraints serves the same per-position sets for every sentence.
type fixedConstraints struct {
	sets  [][]int
	start int
}

func (f fixedConstraints) Anchor(words []string) TagConstraints {
	return sliceConstraints{sets: f.sets, start: f.start}
}

// newTestModel builds a zero-weight model over the corpus with the BIO tag
// set. A nil constraints factory means unconstrained.
func newTestModel(t *testing.T, tags []string, corpus []TaggedSequence, constraints TagConstraintsFactory) *Model {
	t.Helper()
	labels := NewLabelIndex("<S>", tags...)
	surface := newWordSurface(corpus)
	if constraints == nil {
		constraints = AllTags{Labels: labels}
	}
	featurizer, err := BuildFeaturizer(labels, surface, constraints, corpus)
	if err != nil {
		t.Fatalf("BuildFeaturizer: %v", err)
	}
	return &Model{
		Labels:      labels,
		Featurizer:  featurizer,
		Weights:     make([]float64, featurizer.NumFeatures),
		Surface:     surface,
		Constraints: constraints,
	}
}

// unaryFeature returns the feature ID of (w=word, cur), fatal if absent.
func unaryFeature(t *testing.T, m *Model, word string, cur int) int {
	t.Helper()
	ws := m.Surface.(*wordSurface)
	sf := ws.attrs.Get("w=" + word)
	id := lookup(m.Featurizer.LabelWord, sf, cur)
	if id < 0 {
		t.Fatalf("no unary feature for %q cur=%d", word, cur)
	}
	return id
}

// bigramFeature returns the feature ID of (bias, prev, cur), fatal if absent.
func bigramFeature(t *testing.T, m *Model, prev, cur int) int {
	t.Helper()
	id := lookup(m.Featurizer.Label2Word, 0, prev*m.Labels.Size()+cur)
	if id < 0 {
		t.Fatalf("no bigram feature for prev=%d cur=%d", prev, cur)
	}
	return id
}

func seq(id string, words, labels []string) TaggedSequence {
	return TaggedSequence{ID: id, Words: words, Labels: labels}
}
