package crf

import (
	"fmt"
	"math"
)

// Anchoring is a sentence-bound view over the scoring function. Position p
// ranges over [0, n); ValidSymbols(-1) and ValidSymbols(n) are the start
// fencepost and return only the start sentinel.
type Anchoring interface {
	Words() []string
	Labels() *LabelIndex
	// ScoreTransition returns the log-score of labeling position p with cur
	// after prev. Forbidden transitions score negative infinity.
	ScoreTransition(p, prev, cur int) float64
	// ValidSymbols returns the allowed label IDs at p, ascending.
	ValidSymbols(p int) []int
}

// IdentityAnchoring scores every transition zero with every tag valid. It is
// the neutral augment wrapped by the weight-bound scorer.
type IdentityAnchoring struct {
	words  []string
	labels *LabelIndex
}

// NewIdentityAnchoring returns the neutral anchoring for one sentence.
func NewIdentityAnchoring(labels *LabelIndex, words []string) *IdentityAnchoring {
	return &IdentityAnchoring{words: words, labels: labels}
}

func (a *IdentityAnchoring) Words() []string     { return a.words }
func (a *IdentityAnchoring) Labels() *LabelIndex { return a.labels }

func (a *IdentityAnchoring) ScoreTransition(p, prev, cur int) float64 { return 0 }

func (a *IdentityAnchoring) ValidSymbols(p int) []int {
	if p < 0 || p >= len(a.words) {
		return []int{a.labels.Start}
	}
	return a.labels.NonStart()
}

// anchoredScorer binds one sentence and the current weights. It eagerly
// caches trans[prev][cur][p], the dot product of the weights with the sparse
// feature vector of each reachable transition; unreachable cells stay at
// negative infinity so inference skips them.
type anchoredScorer struct {
	augment Anchoring
	labels  *LabelIndex
	words   []string
	feats   *AnchoredFeatures
	valid   [][]int // A(p) for p in [0, n)
	trans   [][][]float64
}

// newAnchoredScorer intersects the model constraints with the augment's
// valid sets, materializes the feature table, and fills the score cache.
func newAnchoredScorer(m *Model, weights []float64, augment Anchoring) (*anchoredScorer, error) {
	if m.Surface == nil {
		return nil, fmt.Errorf("crf: no surface featurizer attached to model")
	}
	words := augment.Words()
	n := len(words)
	labels := m.Labels
	k := labels.Size()

	tc := m.constraintsOrDefault().Anchor(words)
	valid := make([][]int, n)
	for p := range n {
		valid[p] = sortedIntersect(allowedAt(tc, p, n, labels.Start), augment.ValidSymbols(p))
		if len(valid[p]) == 0 {
			return nil, fmt.Errorf("position %d: %w", p, ErrEmptyConstraint)
		}
	}

	surf := m.Surface.Anchor(words)
	feats, err := m.Featurizer.AnchorFeatures(words, surf, sliceConstraints{sets: valid, start: labels.Start}, labels.Start)
	if err != nil {
		return nil, err
	}

	s := &anchoredScorer{
		augment: augment,
		labels:  labels,
		words:   words,
		feats:   feats,
		valid:   valid,
	}

	negInf := math.Inf(-1)
	s.trans = make([][][]float64, k)
	for prev := range k {
		s.trans[prev] = make([][]float64, k)
		for cur := range k {
			col := make([]float64, n)
			for p := range n {
				col[p] = negInf
			}
			s.trans[prev][cur] = col
		}
	}
	for p := range n {
		for _, prev := range s.previous(p) {
			for _, cur := range valid[p] {
				if fv := feats.Transition(p, prev, cur); fv != nil {
					var dot float64
					for _, f := range fv {
						dot += weights[f]
					}
					s.trans[prev][cur][p] = dot
				}
			}
		}
	}
	return s, nil
}

func (s *anchoredScorer) Words() []string     { return s.words }
func (s *anchoredScorer) Labels() *LabelIndex { return s.labels }

func (s *anchoredScorer) ScoreTransition(p, prev, cur int) float64 {
	cached := s.trans[prev][cur][p]
	if math.IsInf(cached, -1) {
		return cached
	}
	return s.augment.ScoreTransition(p, prev, cur) + cached
}

func (s *anchoredScorer) ValidSymbols(p int) []int {
	if p < 0 || p >= len(s.words) {
		return []int{s.labels.Start}
	}
	return s.valid[p]
}

// previous returns the set of labels that can precede position p.
func (s *anchoredScorer) previous(p int) []int {
	if p == 0 {
		return []int{s.labels.Start}
	}
	return s.valid[p-1]
}
