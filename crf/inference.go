package crf

import "fmt"

// Model is the serializable CRF artifact: label index, feature index and
// trained weights. Surface and Constraints are runtime plug-ins that the
// caller attaches before inference; Constraints defaults to AllTags.
//
// A Model is immutable after training and freely shareable across
// goroutines.
type Model struct {
	Labels     *LabelIndex        `json:"labels"`
	Featurizer *IndexedFeaturizer `json:"featurizer"`
	Weights    []float64          `json:"weights"`

	Surface     SurfaceFeaturizer     `json:"-"`
	Constraints TagConstraintsFactory `json:"-"`
}

func (m *Model) constraintsOrDefault() TagConstraintsFactory {
	if m.Constraints != nil {
		return m.Constraints
	}
	return AllTags{Labels: m.Labels}
}

// Inference binds one weight vector to the model.
type Inference struct {
	model   *Model
	weights []float64
}

// Inference binds the given weights, or the model's own when nil.
func (m *Model) Inference(weights []float64) (*Inference, error) {
	if m.Labels == nil || m.Featurizer == nil {
		return nil, fmt.Errorf("crf: model missing label or feature index")
	}
	if weights == nil {
		weights = m.Weights
	}
	if len(weights) != m.Featurizer.NumFeatures {
		return nil, fmt.Errorf("got %d weights for %d features: %w",
			len(weights), m.Featurizer.NumFeatures, ErrDimensionMismatch)
	}
	return &Inference{model: m, weights: weights}, nil
}

// BaseAugment returns the neutral anchoring for a sentence: zero scores,
// all tags valid.
func (inf *Inference) BaseAugment(words []string) Anchoring {
	return NewIdentityAnchoring(inf.model.Labels, words)
}

// Marginal runs forward-backward over the weight-bound anchoring wrapping
// augment. A nil augment means the neutral one.
func (inf *Inference) Marginal(words []string, augment Anchoring) (Marginal, error) {
	anch, err := inf.anchor(words, augment)
	if err != nil {
		return nil, err
	}
	return forwardBackward(anch)
}

// GoldMarginal returns the Dirac marginal at the sequence's gold labels.
func (inf *Inference) GoldMarginal(seq TaggedSequence, augment Anchoring) (Marginal, error) {
	anch, err := inf.anchor(seq.Words, augment)
	if err != nil {
		return nil, err
	}
	return newGoldMarginal(anch, seq.Labels)
}

// EmptyCounts returns a zero accumulator sized to the feature index.
func (inf *Inference) EmptyCounts() *ExpectedCounts {
	return NewExpectedCounts(inf.model.Featurizer.NumFeatures)
}

// Decode returns the Viterbi path for a sentence.
func (inf *Inference) Decode(words []string, augment Anchoring) (*ViterbiPath, error) {
	anch, err := inf.anchor(words, augment)
	if err != nil {
		return nil, err
	}
	return viterbi(anch)
}

// Annotate is posterior decoding: per position, the label with the highest
// position marginal. Ties break toward the lowest label ID.
func (inf *Inference) Annotate(marg Marginal) []string {
	anch := marg.scorer()
	labels := make([]string, len(anch.words))
	for p := range anch.words {
		best := -1.0
		bestID := -1
		for _, cur := range anch.valid[p] {
			if q := marg.PositionMarginal(p, cur); q > best {
				best = q
				bestID = cur
			}
		}
		labels[p] = anch.labels.Get(bestID)
	}
	return labels
}

func (inf *Inference) anchor(words []string, augment Anchoring) (*anchoredScorer, error) {
	if augment == nil {
		augment = inf.BaseAugment(words)
	}
	return newAnchoredScorer(inf.model, inf.weights, augment)
}
