package crf

import "errors"

// Error kinds surfaced by the engine. All are returned wrapped with context
// (position, label or sizes); match with errors.Is.
var (
	// ErrUnknownLabel reports a label that is not in the LabelIndex.
	ErrUnknownLabel = errors.New("crf: unknown label")

	// ErrEmptyConstraint reports an in-range position whose allowed tag set
	// is empty.
	ErrEmptyConstraint = errors.New("crf: empty tag constraint")

	// ErrInfeasible reports a sentence that admits no label sequence under
	// the current constraints and scores.
	ErrInfeasible = errors.New("crf: no feasible label sequence")

	// ErrMissingFeatures reports non-zero posterior mass on a transition
	// whose feature vector is absent. The feature cache is inconsistent with
	// the constraints.
	ErrMissingFeatures = errors.New("crf: missing features for transition with non-zero mass")

	// ErrDimensionMismatch reports a weight vector whose length differs from
	// the feature index size.
	ErrDimensionMismatch = errors.New("crf: weight vector length does not match feature index")
)
