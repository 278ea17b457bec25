package crf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Marginal exposes forward-backward results over one anchoring, or the
// degenerate distribution concentrated on a gold labeling. Both variants
// stream their non-zero transition mass through Visit, so expected-counts
// accumulation shares one code path.
type Marginal interface {
	// LogPartition is the log normalizer; for a gold marginal it is the
	// linear score of the gold sequence.
	LogPartition() float64
	// TransitionMarginal is the posterior P(p, prev, cur).
	TransitionMarginal(p, prev, cur int) float64
	// PositionMarginal is the posterior P(p, cur), summed over prev.
	PositionMarginal(p, cur int) float64
	// Visit calls fn for every (p, prev, cur) triple with non-zero mass.
	Visit(fn TransitionVisitor)

	scorer() *anchoredScorer
}

// TransitionVisitor receives one non-zero posterior transition.
type TransitionVisitor func(p, prev, cur int, prob float64)

// denseMarginal holds the forward and backward tables in log-space.
// fwd[i] is the score of reaching fencepost i; fwd[0] is concentrated on the
// start sentinel and bwd[n] is uniformly zero.
type denseMarginal struct {
	anch *anchoredScorer
	fwd  [][]float64
	bwd  [][]float64
	logZ float64
}

// forwardBackward fills both tables with log-sum-exp reductions over the
// valid label sets of each position.
func forwardBackward(anch *anchoredScorer) (*denseMarginal, error) {
	n := len(anch.words)
	k := anch.labels.Size()

	fwd := logTable(n+1, k)
	bwd := logTable(n+1, k)
	fwd[0][anch.labels.Start] = 0

	scratch := make([]float64, 0, k)
	for i := range n {
		prevSet := anch.previous(i)
		feasible := false
		for _, cur := range anch.valid[i] {
			scratch = scratch[:0]
			for _, prev := range prevSet {
				scratch = append(scratch, fwd[i][prev]+anch.ScoreTransition(i, prev, cur))
			}
			v := floats.LogSumExp(scratch)
			fwd[i+1][cur] = v
			if !math.IsInf(v, -1) {
				feasible = true
			}
		}
		if !feasible {
			return nil, fmt.Errorf("forward at position %d: %w", i, ErrInfeasible)
		}
	}

	for cur := range k {
		bwd[n][cur] = 0
	}
	for i := n - 1; i >= 1; i-- {
		nextSet := anch.valid[i]
		for _, cur := range anch.valid[i-1] {
			scratch = scratch[:0]
			for _, next := range nextSet {
				scratch = append(scratch, anch.ScoreTransition(i, cur, next)+bwd[i+1][next])
			}
			bwd[i][cur] = floats.LogSumExp(scratch)
		}
	}

	logZ := floats.LogSumExp(fwd[n])
	if math.IsInf(logZ, -1) {
		return nil, fmt.Errorf("partition: %w", ErrInfeasible)
	}
	return &denseMarginal{anch: anch, fwd: fwd, bwd: bwd, logZ: logZ}, nil
}

// logTable allocates a rows x cols table filled with negative infinity.
func logTable(rows, cols int) [][]float64 {
	t := make([][]float64, rows)
	negInf := math.Inf(-1)
	for i := range rows {
		row := make([]float64, cols)
		for j := range cols {
			row[j] = negInf
		}
		t[i] = row
	}
	return t
}

func (m *denseMarginal) scorer() *anchoredScorer { return m.anch }

func (m *denseMarginal) LogPartition() float64 { return m.logZ }

func (m *denseMarginal) TransitionMarginal(p, prev, cur int) float64 {
	s := m.fwd[p][prev] + m.anch.ScoreTransition(p, prev, cur) + m.bwd[p+1][cur]
	if math.IsInf(s, -1) {
		return 0
	}
	return math.Exp(s - m.logZ)
}

func (m *denseMarginal) PositionMarginal(p, cur int) float64 {
	var sum float64
	for _, prev := range m.anch.previous(p) {
		sum += m.TransitionMarginal(p, prev, cur)
	}
	return sum
}

func (m *denseMarginal) Visit(fn TransitionVisitor) {
	n := len(m.anch.words)
	for p := range n {
		prevSet := m.anch.previous(p)
		for _, cur := range m.anch.valid[p] {
			if math.IsInf(m.bwd[p+1][cur], -1) {
				continue
			}
			for _, prev := range prevSet {
				if q := m.TransitionMarginal(p, prev, cur); q != 0 {
					fn(p, prev, cur, q)
				}
			}
		}
	}
}

// goldMarginal is the Dirac distribution at one labeling. Its transition
// posterior is the indicator of the gold path and its log partition is the
// linear score of that path.
type goldMarginal struct {
	anch  *anchoredScorer
	tags  []int
	score float64
}

// newGoldMarginal indexes the labels and scores the gold path.
func newGoldMarginal(anch *anchoredScorer, labels []string) (*goldMarginal, error) {
	tags := make([]int, len(labels))
	for p, l := range labels {
		id := anch.labels.IndexOf(l)
		if id < 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLabel, l)
		}
		tags[p] = id
	}
	var score float64
	prev := anch.labels.Start
	for p, cur := range tags {
		score += anch.ScoreTransition(p, prev, cur)
		prev = cur
	}
	if math.IsInf(score, -1) {
		return nil, fmt.Errorf("gold path is forbidden: %w", ErrInfeasible)
	}
	return &goldMarginal{anch: anch, tags: tags, score: score}, nil
}

func (g *goldMarginal) scorer() *anchoredScorer { return g.anch }

func (g *goldMarginal) LogPartition() float64 { return g.score }

func (g *goldMarginal) TransitionMarginal(p, prev, cur int) float64 {
	want := g.anch.labels.Start
	if p > 0 {
		want = g.tags[p-1]
	}
	if prev == want && cur == g.tags[p] {
		return 1
	}
	return 0
}

func (g *goldMarginal) PositionMarginal(p, cur int) float64 {
	if cur == g.tags[p] {
		return 1
	}
	return 0
}

func (g *goldMarginal) Visit(fn TransitionVisitor) {
	prev := g.anch.labels.Start
	for p, cur := range g.tags {
		fn(p, prev, cur, 1)
		prev = cur
	}
}
