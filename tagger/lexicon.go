package tagger

import (
	"sort"
	"strings"

	"github.com/happyhackingspace/seqtag/crf"
)

// Lexicon records the tags observed for frequent words and restricts the
// trellis to them; rare and unseen words keep the full tag set. It
// implements crf.TagConstraintsFactory.
type Lexicon struct {
	MinCount int              `json:"min_count"`
	WordTags map[string][]int `json:"word_tags"`

	labels *crf.LabelIndex
}

// BuildLexicon counts word-tag pairs over the corpus. Words whose total
// count reaches minCount are constrained to their observed tag set.
func BuildLexicon(labels *crf.LabelIndex, corpus []crf.TaggedSequence, minCount int) *Lexicon {
	type tally struct {
		total int
		tags  map[int]bool
	}
	counts := make(map[string]*tally)
	for _, seq := range corpus {
		for p, w := range seq.Words {
			id := labels.IndexOf(seq.Labels[p])
			if id < 0 {
				continue
			}
			lower := strings.ToLower(w)
			t := counts[lower]
			if t == nil {
				t = &tally{tags: make(map[int]bool)}
				counts[lower] = t
			}
			t.total++
			t.tags[id] = true
		}
	}

	lx := &Lexicon{MinCount: minCount, WordTags: make(map[string][]int), labels: labels}
	for w, t := range counts {
		if t.total < minCount {
			continue
		}
		tags := make([]int, 0, len(t.tags))
		for id := range t.tags {
			tags = append(tags, id)
		}
		sort.Ints(tags)
		lx.WordTags[w] = tags
	}
	return lx
}

// Bind attaches the label index after deserialization.
func (lx *Lexicon) Bind(labels *crf.LabelIndex) { lx.labels = labels }

// Anchor returns the per-sentence constraint view.
func (lx *Lexicon) Anchor(words []string) crf.TagConstraints {
	return anchoredLexicon{lx: lx, words: words}
}

type anchoredLexicon struct {
	lx    *Lexicon
	words []string
}

func (a anchoredLexicon) AllowedTags(p int) []int {
	if p < 0 || p >= len(a.words) {
		return []int{a.lx.labels.Start}
	}
	if tags, ok := a.lx.WordTags[strings.ToLower(a.words[p])]; ok {
		return tags
	}
	return a.lx.labels.NonStart()
}
