package crf

import "fmt"

// FeatureLevel selects the granularity of surface features for a position.
type FeatureLevel int

const (
	// FullLevel is the complete surface feature set, used for unary
	// label-word features.
	FullLevel FeatureLevel = iota
	// MinimalLevel is a coarser subset used for bigram label features, to
	// bound parameter growth.
	MinimalLevel
)

// AnchoredSurface yields the surface feature IDs fired at each position of
// one sentence.
type AnchoredSurface interface {
	FeaturesForWord(p int, level FeatureLevel) []int
}

// SurfaceFeaturizer binds surface feature extraction to one sentence.
type SurfaceFeaturizer interface {
	Anchor(words []string) AnchoredSurface
}

// IndexedFeaturizer owns the global sparse feature index. It is built once
// over a training corpus and immutable afterwards.
//
// LabelWord maps (surface feature, cur) to a unary feature ID; Label2Word
// maps (surface feature, prev*K+cur) to a bigram feature ID. Both are sparse
// in their label key: most cells are never observed. Bigram features are
// indexed only at positions with more than one allowed tag, and only from
// minimal-level surface features.
type IndexedFeaturizer struct {
	NumLabels   int           `json:"num_labels"`
	NumFeatures int           `json:"num_features"`
	LabelWord   []map[int]int `json:"label_word"`
	Label2Word  []map[int]int `json:"label2_word"`
}

// BuildFeaturizer indexes every label-word feature observed in the corpus
// under the given constraints.
func BuildFeaturizer(labels *LabelIndex, surface SurfaceFeaturizer, constraints TagConstraintsFactory, corpus []TaggedSequence) (*IndexedFeaturizer, error) {
	f := &IndexedFeaturizer{NumLabels: labels.Size()}
	k := f.NumLabels
	start := labels.Start

	for _, seq := range corpus {
		n := len(seq.Words)
		surf := surface.Anchor(seq.Words)
		tc := constraints.Anchor(seq.Words)
		for p := range n {
			curSet := allowedAt(tc, p, n, start)
			if len(curSet) == 0 {
				return nil, fmt.Errorf("sentence %q position %d: %w", seq.ID, p, ErrEmptyConstraint)
			}
			full := surf.FeaturesForWord(p, FullLevel)
			for _, cur := range curSet {
				for _, sf := range full {
					f.index(&f.LabelWord, sf, cur)
				}
			}
			if len(curSet) <= 1 {
				continue
			}
			prevSet := allowedAt(tc, p-1, n, start)
			minimal := surf.FeaturesForWord(p, MinimalLevel)
			for _, cur := range curSet {
				for _, prev := range prevSet {
					key := prev*k + cur
					for _, sf := range minimal {
						f.index(&f.Label2Word, sf, key)
					}
				}
			}
		}
	}
	return f, nil
}

// index assigns the next feature ID to (sf, key) if not yet present.
func (f *IndexedFeaturizer) index(table *[]map[int]int, sf, key int) {
	for sf >= len(*table) {
		*table = append(*table, nil)
	}
	m := (*table)[sf]
	if m == nil {
		m = make(map[int]int)
		(*table)[sf] = m
	}
	if _, ok := m[key]; !ok {
		m[key] = f.NumFeatures
		f.NumFeatures++
	}
}

func lookup(table []map[int]int, sf, key int) int {
	if sf < 0 || sf >= len(table) || table[sf] == nil {
		return -1
	}
	if id, ok := table[sf][key]; ok {
		return id
	}
	return -1
}

// AnchoredFeatures is the per-sentence feature table:
// cells[p][prev][cur] holds the sparse feature vector for that transition,
// or nil where the transition is forbidden.
type AnchoredFeatures struct {
	cells [][][][]int
}

// AnchorFeatures materializes the feature table for one sentence. The valid
// tag sets come from tc; cells outside them stay nil.
func (f *IndexedFeaturizer) AnchorFeatures(words []string, surf AnchoredSurface, tc TagConstraints, start int) (*AnchoredFeatures, error) {
	n := len(words)
	k := f.NumLabels
	af := &AnchoredFeatures{cells: make([][][][]int, n)}
	for p := range n {
		af.cells[p] = make([][][]int, k)
		for prev := range k {
			af.cells[p][prev] = make([][]int, k)
		}

		curSet := allowedAt(tc, p, n, start)
		if len(curSet) == 0 {
			return nil, fmt.Errorf("position %d: %w", p, ErrEmptyConstraint)
		}
		prevSet := allowedAt(tc, p-1, n, start)
		full := surf.FeaturesForWord(p, FullLevel)
		minimal := surf.FeaturesForWord(p, MinimalLevel)
		ambiguous := len(curSet) > 1

		for _, cur := range curSet {
			unary := make([]int, 0, len(full))
			for _, sf := range full {
				if id := lookup(f.LabelWord, sf, cur); id >= 0 {
					unary = append(unary, id)
				}
			}
			for _, prev := range prevSet {
				fv := unary
				if ambiguous {
					fv = make([]int, len(unary), len(unary)+len(minimal))
					copy(fv, unary)
					key := prev*k + cur
					for _, sf := range minimal {
						if id := lookup(f.Label2Word, sf, key); id >= 0 {
							fv = append(fv, id)
						}
					}
				}
				af.cells[p][prev][cur] = fv
			}
		}
	}
	return af, nil
}

// Transition returns the sparse feature vector for (p, prev, cur), or nil if
// the transition is forbidden.
func (af *AnchoredFeatures) Transition(p, prev, cur int) []int {
	return af.cells[p][prev][cur]
}
