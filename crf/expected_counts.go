package crf

import "fmt"

// ExpectedCounts accumulates a loss and expected feature counts over one
// training pass or minibatch. Single-writer: a parallel driver holds one
// accumulator per worker and reduces afterwards.
type ExpectedCounts struct {
	Loss   float64
	Counts []float64
}

// NewExpectedCounts returns a zero accumulator of the given dimension.
func NewExpectedCounts(dim int) *ExpectedCounts {
	return &ExpectedCounts{Counts: make([]float64, dim)}
}

// Reset zeroes the accumulator in place.
func (ec *ExpectedCounts) Reset() {
	ec.Loss = 0
	for i := range ec.Counts {
		ec.Counts[i] = 0
	}
}

// Add merges another accumulator into this one.
func (ec *ExpectedCounts) Add(other *ExpectedCounts) {
	ec.Loss += other.Loss
	for i, v := range other.Counts {
		ec.Counts[i] += v
	}
}

// Accumulate adds scale times the marginal's expected feature counts, and
// scale times its log partition to the loss. Scale is +1 for model
// expectations and -1 for gold (observed) counts, which makes the
// accumulator the classic CRF gradient E_model[f] - f(x, y*) and the loss
// the per-sentence negative log-likelihood.
func (ec *ExpectedCounts) Accumulate(marg Marginal, scale float64) error {
	ec.Loss += marg.LogPartition() * scale
	feats := marg.scorer().feats
	var visitErr error
	marg.Visit(func(p, prev, cur int, q float64) {
		if visitErr != nil {
			return
		}
		fv := feats.Transition(p, prev, cur)
		if fv == nil {
			visitErr = fmt.Errorf("position %d prev %d cur %d mass %g: %w", p, prev, cur, q, ErrMissingFeatures)
			return
		}
		for _, f := range fv {
			ec.Counts[f] += scale * q
		}
	})
	return visitErr
}
