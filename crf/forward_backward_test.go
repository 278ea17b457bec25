package crf

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
)

// enumerate returns the brute-force log partition by scoring every legal
// path through the anchoring.
func enumerate(anch *anchoredScorer) float64 {
	n := len(anch.words)
	var scores []float64
	var walk func(p, prev int, acc float64)
	walk = func(p, prev int, acc float64) {
		if p == n {
			scores = append(scores, acc)
			return
		}
		for _, cur := range anch.valid[p] {
			walk(p+1, cur, acc+anch.ScoreTransition(p, prev, cur))
		}
	}
	walk(0, anch.labels.Start, 0)
	return floats.LogSumExp(scores)
}

func testAnchor(t *testing.T, m *Model, words []string) *anchoredScorer {
	t.Helper()
	inf, err := m.Inference(nil)
	if err != nil {
		t.Fatal(err)
	}
	anch, err := inf.anchor(words, nil)
	if err != nil {
		t.Fatal(err)
	}
	return anch
}

func TestLogPartitionBruteForce(t *testing.T) {
	corpus := []TaggedSequence{seq("s1", []string{"a", "b", "c"}, []string{"B", "I", "O"})}
	m := newTestModel(t, []string{"B", "I", "O"}, corpus, nil)
	for i := range m.Weights {
		m.Weights[i] = math.Sin(float64(3*i + 1))
	}

	anch := testAnchor(t, m, corpus[0].Words)
	marg, err := forwardBackward(anch)
	if err != nil {
		t.Fatal(err)
	}

	want := enumerate(anch)
	if math.Abs(marg.LogPartition()-want) > 1e-9 {
		t.Errorf("LogPartition = %v, brute force = %v", marg.LogPartition(), want)
	}
}

func TestPartitionConsistency(t *testing.T) {
	// Lse(fwd[n]) must equal the backward-side estimate
	// Lse over s in A(0) of (score(0, start, s) + bwd[1][s]).
	corpus := []TaggedSequence{seq("s1", []string{"a", "b", "c"}, []string{"B", "I", "O"})}
	m := newTestModel(t, []string{"B", "I", "O"}, corpus, nil)
	for i := range m.Weights {
		m.Weights[i] = math.Cos(float64(2*i + 1))
	}

	anch := testAnchor(t, m, corpus[0].Words)
	marg, err := forwardBackward(anch)
	if err != nil {
		t.Fatal(err)
	}
	dm := marg.(*denseMarginal)

	var terms []float64
	for _, s := range anch.valid[0] {
		terms = append(terms, anch.ScoreTransition(0, anch.labels.Start, s)+dm.bwd[1][s])
	}
	backward := floats.LogSumExp(terms)

	rel := math.Abs(marg.LogPartition()-backward) / math.Max(1, math.Abs(backward))
	if rel > 1e-6 {
		t.Errorf("partition inconsistent: forward %v, backward %v", marg.LogPartition(), backward)
	}
}

func TestMarginalNormalization(t *testing.T) {
	corpus := []TaggedSequence{seq("s1", []string{"a", "b", "c", "a"}, []string{"B", "I", "O", "B"})}
	m := newTestModel(t, []string{"B", "I", "O"}, corpus, nil)
	for i := range m.Weights {
		m.Weights[i] = math.Sin(float64(7 * i))
	}

	anch := testAnchor(t, m, corpus[0].Words)
	marg, err := forwardBackward(anch)
	if err != nil {
		t.Fatal(err)
	}

	k := m.Labels.Size()
	for p := range corpus[0].Words {
		var transSum float64
		for prev := range k {
			for cur := range k {
				transSum += marg.TransitionMarginal(p, prev, cur)
			}
		}
		if math.Abs(transSum-1) > 1e-6 {
			t.Errorf("transition marginals at p=%d sum to %v, want 1", p, transSum)
		}

		var posSum float64
		for cur := range k {
			posSum += marg.PositionMarginal(p, cur)
		}
		if math.Abs(posSum-1) > 1e-6 {
			t.Errorf("position marginals at p=%d sum to %v, want 1", p, posSum)
		}
	}
}

func TestVisitorMatchesMarginals(t *testing.T) {
	corpus := []TaggedSequence{seq("s1", []string{"a", "b", "c"}, []string{"B", "I", "O"})}
	m := newTestModel(t, []string{"B", "I", "O"}, corpus, nil)
	for i := range m.Weights {
		m.Weights[i] = math.Sin(float64(5*i + 2))
	}

	anch := testAnchor(t, m, corpus[0].Words)
	marg, err := forwardBackward(anch)
	if err != nil {
		t.Fatal(err)
	}

	perPos := make([]float64, len(corpus[0].Words))
	marg.Visit(func(p, prev, cur int, q float64) {
		if q <= 0 {
			t.Errorf("visitor emitted non-positive mass %v at (%d, %d, %d)", q, p, prev, cur)
		}
		if got := marg.TransitionMarginal(p, prev, cur); got != q {
			t.Errorf("visitor mass %v != TransitionMarginal %v", q, got)
		}
		perPos[p] += q
	})
	for p, sum := range perPos {
		if math.Abs(sum-1) > 1e-6 {
			t.Errorf("visited mass at p=%d sums to %v, want 1", p, sum)
		}
	}
}

func TestGoldMarginal(t *testing.T) {
	corpus := []TaggedSequence{seq("s1", []string{"a", "b"}, []string{"B", "I"})}
	m := newTestModel(t, []string{"B", "I", "O"}, corpus, nil)
	for i := range m.Weights {
		m.Weights[i] = math.Sin(float64(i + 4))
	}

	inf, err := m.Inference(nil)
	if err != nil {
		t.Fatal(err)
	}
	gold, err := inf.GoldMarginal(corpus[0], nil)
	if err != nil {
		t.Fatal(err)
	}
	marg, err := inf.Marginal(corpus[0].Words, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Gold log-partition is the linear path score and can never exceed the
	// model's log-partition.
	if gold.LogPartition() > marg.LogPartition() {
		t.Errorf("gold score %v exceeds logZ %v", gold.LogPartition(), marg.LogPartition())
	}

	b, i := m.Labels.IndexOf("B"), m.Labels.IndexOf("I")
	anch := gold.(*goldMarginal).anch
	want := anch.ScoreTransition(0, m.Labels.Start, b) + anch.ScoreTransition(1, b, i)
	if math.Abs(gold.LogPartition()-want) > 1e-12 {
		t.Errorf("gold LogPartition = %v, want path score %v", gold.LogPartition(), want)
	}

	if q := gold.TransitionMarginal(1, b, i); q != 1 {
		t.Errorf("gold TransitionMarginal(1, B, I) = %v, want 1", q)
	}
	if q := gold.TransitionMarginal(1, i, b); q != 0 {
		t.Errorf("gold TransitionMarginal(1, I, B) = %v, want 0", q)
	}
	if q := gold.PositionMarginal(0, b); q != 1 {
		t.Errorf("gold PositionMarginal(0, B) = %v, want 1", q)
	}

	visits := 0
	gold.Visit(func(p, prev, cur int, q float64) {
		visits++
		if q != 1 {
			t.Errorf("gold visitor mass = %v, want 1", q)
		}
	})
	if visits != 2 {
		t.Errorf("gold visitor emitted %d transitions, want 2", visits)
	}
}

func TestConstraintRespect(t *testing.T) {
	corpus := []TaggedSequence{seq("s1", []string{"a", "b"}, []string{"B", "I"})}
	labels := NewLabelIndex("<S>", "B", "I", "O")
	b, i := labels.IndexOf("B"), labels.IndexOf("I")
	o := labels.IndexOf("O")
	constraints := fixedConstraints{sets: [][]int{{b, i}, {i}}, start: labels.Start}

	m := newTestModel(t, []string{"B", "I", "O"}, corpus, constraints)
	for j := range m.Weights {
		m.Weights[j] = math.Sin(float64(j))
	}

	inf, err := m.Inference(nil)
	if err != nil {
		t.Fatal(err)
	}
	marg, err := inf.Marginal(corpus[0].Words, nil)
	if err != nil {
		t.Fatal(err)
	}
	if q := marg.PositionMarginal(0, o); q != 0 {
		t.Errorf("disallowed label has position mass %v", q)
	}
	if q := marg.PositionMarginal(1, b); q != 0 {
		t.Errorf("disallowed label has position mass %v", q)
	}

	path, err := inf.Decode(corpus[0].Words, nil)
	if err != nil {
		t.Fatal(err)
	}
	if path.IDs[0] != b && path.IDs[0] != i {
		t.Errorf("viterbi label %d not in A(0)", path.IDs[0])
	}
	if path.IDs[1] != i {
		t.Errorf("viterbi label %d not in A(1)", path.IDs[1])
	}
}

// blockingAugment forbids every transition at one position.
type blockingAugment struct {
	*IdentityAnchoring
	at int
}

func (b blockingAugment) ScoreTransition(p, prev, cur int) float64 {
	if p == b.at {
		return math.Inf(-1)
	}
	return 0
}

func TestInfeasible(t *testing.T) {
	corpus := []TaggedSequence{seq("s1", []string{"a", "b"}, []string{"B", "I"})}
	m := newTestModel(t, []string{"B", "I", "O"}, corpus, nil)

	inf, err := m.Inference(nil)
	if err != nil {
		t.Fatal(err)
	}
	augment := blockingAugment{NewIdentityAnchoring(m.Labels, corpus[0].Words), 1}

	if _, err := inf.Marginal(corpus[0].Words, augment); !errors.Is(err, ErrInfeasible) {
		t.Errorf("Marginal error = %v, want ErrInfeasible", err)
	}
	if _, err := inf.Decode(corpus[0].Words, augment); !errors.Is(err, ErrInfeasible) {
		t.Errorf("Decode error = %v, want ErrInfeasible", err)
	}
	if _, err := inf.GoldMarginal(corpus[0], augment); !errors.Is(err, ErrInfeasible) {
		t.Errorf("GoldMarginal error = %v, want ErrInfeasible", err)
	}
}
