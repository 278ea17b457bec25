package crf

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
)

// TrainerConfig holds CRF training hyperparameters.
type TrainerConfig struct {
	C1             float64 // L1 regularization
	C2             float64 // L2 regularization
	MaxIterations  int
	Epsilon        float64 // convergence threshold on the pseudo-gradient
	InitialWeights func(feat int) float64
	Verbose        bool
}

// DefaultTrainerConfig returns the default training config.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		C1:            0.1,
		C2:            0.01,
		MaxIterations: 100,
		Epsilon:       1e-5,
	}
}

// Train fits the model weights by L1/L2-regularized maximum likelihood with
// OWL-QN. The model's label index, featurizer, surface featurizer and
// constraints must already be in place; Weights is overwritten.
func Train(m *Model, corpus []TaggedSequence, config TrainerConfig) error {
	numWeights := m.Featurizer.NumFeatures
	w := make([]float64, numWeights)
	if config.InitialWeights != nil {
		for i := range w {
			w[i] = config.InitialWeights(i)
		}
	}

	t := &trainer{model: m, corpus: corpus, config: config, counts: NewExpectedCounts(numWeights)}
	lbfgs := newLBFGS(numWeights, 10)

	nll, grad, err := t.evaluate(w)
	if err != nil {
		return err
	}
	pg := pseudoGradient(w, grad, config.C1)

	for iter := range config.MaxIterations {
		slog.Debug("CRF training iteration", "iteration", iter+1, "nll", nll)

		dir := lbfgs.computeDirection(pg)
		// Constrain direction to the orthant of the negative pseudo-gradient.
		for i := range numWeights {
			if dir[i]*pg[i] > 0 {
				dir[i] = 0
			}
		}

		step := owlqnLineSearch(w, dir, nll, pg, func(wNew []float64) float64 {
			obj, _, evalErr := t.evaluate(wNew)
			if evalErr != nil {
				return math.Inf(1)
			}
			return obj
		}, numWeights, config.C1)
		if step == 0 {
			slog.Warn("CRF line search failed, stopping")
			break
		}

		prevW := make([]float64, numWeights)
		copy(prevW, w)
		floats.AddScaled(w, step, dir)
		// Project onto the orthant of the previous point.
		if config.C1 > 0 {
			for i := range numWeights {
				if w[i]*prevW[i] < 0 {
					w[i] = 0
				}
			}
		}

		newNLL, newGrad, err := t.evaluate(w)
		if err != nil {
			return err
		}
		newPG := pseudoGradient(w, newGrad, config.C1)

		s := make([]float64, numWeights)
		floats.SubTo(s, w, prevW)
		y := make([]float64, numWeights)
		floats.SubTo(y, newPG, pg)
		lbfgs.update(s, y)

		nll, pg = newNLL, newPG

		if maxGrad := floats.Norm(pg, math.Inf(1)); maxGrad < config.Epsilon {
			slog.Debug("CRF converged", "iteration", iter+1, "max_gradient", maxGrad)
			break
		}
	}

	m.Weights = w
	return nil
}

type trainer struct {
	model  *Model
	corpus []TaggedSequence
	config TrainerConfig
	counts *ExpectedCounts
}

// evaluate computes the regularized negative log-likelihood and its gradient
// at w. The gradient flows through the expected-counts accumulator: +1 times
// the model marginal, -1 times the gold marginal, per sentence.
func (t *trainer) evaluate(w []float64) (float64, []float64, error) {
	inf, err := t.model.Inference(w)
	if err != nil {
		return 0, nil, err
	}
	t.counts.Reset()
	for _, seq := range t.corpus {
		if len(seq.Words) == 0 {
			continue
		}
		marg, err := inf.Marginal(seq.Words, nil)
		if err != nil {
			return 0, nil, fmt.Errorf("sentence %q: %w", seq.ID, err)
		}
		if err := t.counts.Accumulate(marg, 1); err != nil {
			return 0, nil, fmt.Errorf("sentence %q: %w", seq.ID, err)
		}
		gold, err := inf.GoldMarginal(seq, nil)
		if err != nil {
			return 0, nil, fmt.Errorf("sentence %q: %w", seq.ID, err)
		}
		if err := t.counts.Accumulate(gold, -1); err != nil {
			return 0, nil, fmt.Errorf("sentence %q: %w", seq.ID, err)
		}
	}

	nll := t.counts.Loss
	grad := make([]float64, len(w))
	copy(grad, t.counts.Counts)

	if t.config.C2 > 0 {
		nll += 0.5 * t.config.C2 * floats.Dot(w, w)
		floats.AddScaled(grad, t.config.C2, w)
	}
	if t.config.C1 > 0 {
		for _, v := range w {
			nll += t.config.C1 * math.Abs(v)
		}
	}
	return nll, grad, nil
}

// pseudoGradient is the OWL-QN subgradient of the L1 term combined with the
// smooth gradient.
func pseudoGradient(w, grad []float64, c1 float64) []float64 {
	pg := make([]float64, len(w))
	for i := range w {
		switch {
		case w[i] > 0:
			pg[i] = grad[i] + c1
		case w[i] < 0:
			pg[i] = grad[i] - c1
		default:
			switch {
			case grad[i]+c1 < 0:
				pg[i] = grad[i] + c1
			case grad[i]-c1 > 0:
				pg[i] = grad[i] - c1
			default:
				pg[i] = 0
			}
		}
	}
	return pg
}

// lbfgs implements the L-BFGS two-loop recursion.
type lbfgs struct {
	n    int // number of variables
	m    int // memory size
	s    [][]float64
	y    [][]float64
	rho  []float64
	k    int
	size int
}

func newLBFGS(n, m int) *lbfgs {
	return &lbfgs{
		n:   n,
		m:   m,
		s:   make([][]float64, m),
		y:   make([][]float64, m),
		rho: make([]float64, m),
	}
}

func (l *lbfgs) update(s, y []float64) {
	sy := floats.Dot(s, y)
	if sy <= 0 {
		return
	}
	idx := l.k % l.m
	l.s[idx] = make([]float64, l.n)
	l.y[idx] = make([]float64, l.n)
	copy(l.s[idx], s)
	copy(l.y[idx], y)
	l.rho[idx] = 1.0 / sy
	l.k++
	if l.size < l.m {
		l.size++
	}
}

func (l *lbfgs) computeDirection(pg []float64) []float64 {
	q := make([]float64, l.n)
	copy(q, pg)

	if l.size == 0 {
		// Steepest descent until the memory has a curvature pair.
		floats.Scale(-1, q)
		return q
	}

	alpha := make([]float64, l.size)

	for i := l.size - 1; i >= 0; i-- {
		idx := (l.k - 1 - (l.size - 1 - i)) % l.m
		if idx < 0 {
			idx += l.m
		}
		alpha[i] = l.rho[idx] * floats.Dot(l.s[idx], q)
		floats.AddScaled(q, -alpha[i], l.y[idx])
	}

	// Scale by H_0 = (s_k^T y_k) / (y_k^T y_k).
	latestIdx := (l.k - 1) % l.m
	if latestIdx < 0 {
		latestIdx += l.m
	}
	yy := floats.Dot(l.y[latestIdx], l.y[latestIdx])
	if yy > 0 {
		gamma := floats.Dot(l.s[latestIdx], l.y[latestIdx]) / yy
		floats.Scale(gamma, q)
	}

	for i := range l.size {
		idx := (l.k - l.size + i) % l.m
		if idx < 0 {
			idx += l.m
		}
		beta := l.rho[idx] * floats.Dot(l.y[idx], q)
		floats.AddScaled(q, alpha[i]-beta, l.s[idx])
	}

	floats.Scale(-1, q)
	return q
}

// owlqnLineSearch performs a backtracking line search with orthant
// projection.
func owlqnLineSearch(w, dir []float64, fVal float64, pg []float64, objFunc func([]float64) float64, n int, c1 float64) float64 {
	dirDeriv := floats.Dot(dir, pg)
	if dirDeriv >= 0 {
		return 0
	}

	step := 1.0
	c := 1e-4 // Armijo constant
	wNew := make([]float64, n)

	for trial := 0; trial < 20; trial++ {
		copy(wNew, w)
		floats.AddScaled(wNew, step, dir)
		if c1 > 0 {
			for i := range n {
				if wNew[i]*w[i] < 0 {
					wNew[i] = 0
				}
			}
		}

		fNew := objFunc(wNew)
		if fNew <= fVal+c*step*dirDeriv {
			return step
		}
		step *= 0.5
	}
	return step // return last tried step even if not sufficient decrease
}
