// Package crf implements a first-order linear-chain Conditional Random Field
// for sequence labeling.
//
// The package separates weight-independent state (label index, feature index,
// per-sentence feature tables) from weight-bound state (anchored scorers,
// forward-backward marginals, Viterbi decoding). A trained Model is immutable
// and freely shareable across goroutines; anchorings, marginals and their
// caches are per-sentence and owned by the calling task.
package crf

// Alphabet maps between strings and dense integer IDs.
type Alphabet struct {
	ToID  map[string]int `json:"to_id"`
	ToStr []string       `json:"to_str"`
}

// NewAlphabet creates an empty alphabet.
func NewAlphabet() *Alphabet {
	return &Alphabet{
		ToID: make(map[string]int),
	}
}

// Add adds a string to the alphabet if not already present, returns its ID.
func (a *Alphabet) Add(s string) int {
	if id, ok := a.ToID[s]; ok {
		return id
	}
	id := len(a.ToStr)
	a.ToID[s] = id
	a.ToStr = append(a.ToStr, s)
	return id
}

// Get returns the ID for a string, or -1 if not found.
func (a *Alphabet) Get(s string) int {
	if id, ok := a.ToID[s]; ok {
		return id
	}
	return -1
}

// Size returns the number of entries.
func (a *Alphabet) Size() int {
	return len(a.ToStr)
}

// LabelIndex is an alphabet over tag labels with a distinguished start
// sentinel used at the fencepost before position 0. The start sentinel
// occupies a regular ID so trellis tables can be sized uniformly, but it is
// never a valid tag for an in-range position.
type LabelIndex struct {
	Tags  *Alphabet `json:"tags"`
	Start int       `json:"start"`
}

// NewLabelIndex builds a label index with the given start sentinel and tags,
// deduplicated in insertion order.
func NewLabelIndex(start string, tags ...string) *LabelIndex {
	a := NewAlphabet()
	li := &LabelIndex{Tags: a, Start: a.Add(start)}
	for _, t := range tags {
		a.Add(t)
	}
	return li
}

// IndexOf returns the ID for a label, or -1 if not found.
func (li *LabelIndex) IndexOf(label string) int {
	return li.Tags.Get(label)
}

// Get returns the label for an ID.
func (li *LabelIndex) Get(id int) string {
	return li.Tags.ToStr[id]
}

// Size returns the number of labels, including the start sentinel.
func (li *LabelIndex) Size() int {
	return li.Tags.Size()
}

// NonStart returns all label IDs except the start sentinel, ascending.
func (li *LabelIndex) NonStart() []int {
	ids := make([]int, 0, li.Size()-1)
	for id := range li.Size() {
		if id != li.Start {
			ids = append(ids, id)
		}
	}
	return ids
}

// TaggedSequence is a labeled training or evaluation sentence.
type TaggedSequence struct {
	ID     string   `json:"id"`
	Words  []string `json:"words"`
	Labels []string `json:"labels"`
}
