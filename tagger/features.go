// Package tagger provides the concrete surface featurizer, tag lexicon and
// combined model artifact used by the CRF engine for word-level tagging.
package tagger

import (
	"sort"
	"strings"
	"unicode"

	"github.com/happyhackingspace/seqtag/crf"
	"github.com/happyhackingspace/seqtag/internal/textutil"
)

// Options configures the featurizer.
type Options struct {
	// Gazetteers maps a gazetteer name to its word list; membership fires a
	// gaz:<name> feature.
	Gazetteers map[string][]string
	// StartSymbol is the sentinel tag used before position 0.
	StartSymbol string
	// InitialWeights seeds the trainer, by feature ID.
	InitialWeights func(feat int) float64
}

// DefaultOptions returns the recognized defaults.
func DefaultOptions() Options {
	return Options{StartSymbol: "<S>"}
}

// Featurizer extracts per-word surface features: identity, shape, affixes,
// character flags, neighbor identities and gazetteer hits. It implements
// crf.SurfaceFeaturizer.
//
// During training the attribute alphabet grows as sentences are anchored;
// Freeze makes it immutable so a published model can be shared across
// goroutines.
type Featurizer struct {
	Attrs      *crf.Alphabet              `json:"attrs"`
	Gazetteers map[string]map[string]bool `json:"gazetteers,omitempty"`

	frozen bool
}

// NewFeaturizer builds a featurizer with the given gazetteers.
func NewFeaturizer(opts Options) *Featurizer {
	f := &Featurizer{Attrs: crf.NewAlphabet()}
	if len(opts.Gazetteers) > 0 {
		f.Gazetteers = make(map[string]map[string]bool, len(opts.Gazetteers))
		for name, words := range opts.Gazetteers {
			set := make(map[string]bool, len(words))
			for _, w := range words {
				set[strings.ToLower(w)] = true
			}
			f.Gazetteers[name] = set
		}
	}
	return f
}

// Freeze stops the attribute alphabet from growing. Anchoring a frozen
// featurizer drops unseen attributes instead of indexing them.
func (f *Featurizer) Freeze() { f.frozen = true }

// Anchor precomputes the feature IDs for every position of the sentence.
func (f *Featurizer) Anchor(words []string) crf.AnchoredSurface {
	a := &anchoredWords{full: make([][]int, len(words)), minimal: make([][]int, len(words))}
	for p := range words {
		a.full[p] = f.ids(f.fullFeatures(words, p))
		a.minimal[p] = f.ids(f.minimalFeatures(words, p))
	}
	return a
}

type anchoredWords struct {
	full    [][]int
	minimal [][]int
}

func (a *anchoredWords) FeaturesForWord(p int, level crf.FeatureLevel) []int {
	if level == crf.MinimalLevel {
		return a.minimal[p]
	}
	return a.full[p]
}

func (f *Featurizer) ids(attrs []string) []int {
	ids := make([]int, 0, len(attrs))
	for _, attr := range attrs {
		var id int
		if f.frozen {
			id = f.Attrs.Get(attr)
		} else {
			id = f.Attrs.Add(attr)
		}
		if id >= 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

func (f *Featurizer) fullFeatures(words []string, p int) []string {
	w := words[p]
	lower := strings.ToLower(w)
	attrs := []string{
		"bias",
		"w=" + lower,
		"shape=" + textutil.Shape(w),
	}

	runes := []rune(lower)
	for n := 1; n <= 3 && n <= len(runes); n++ {
		attrs = append(attrs, "pre"+digit(n)+"="+string(runes[:n]))
		attrs = append(attrs, "suf"+digit(n)+"="+string(runes[len(runes)-n:]))
	}

	if strings.ContainsAny(w, "0123456789") {
		attrs = append(attrs, "has-digit")
	}
	if strings.Contains(w, "-") {
		attrs = append(attrs, "has-hyphen")
	}
	if r := []rune(w); len(r) > 0 && unicode.IsUpper(r[0]) {
		attrs = append(attrs, "is-title")
	}
	if w == strings.ToUpper(w) && w != lower {
		attrs = append(attrs, "is-upper")
	}

	if p == 0 {
		attrs = append(attrs, "is-first")
	} else {
		attrs = append(attrs, "w-1="+strings.ToLower(words[p-1]))
	}
	if p == len(words)-1 {
		attrs = append(attrs, "is-last")
	} else {
		attrs = append(attrs, "w+1="+strings.ToLower(words[p+1]))
	}

	if len(f.Gazetteers) > 0 {
		names := make([]string, 0, len(f.Gazetteers))
		for name, set := range f.Gazetteers {
			if set[lower] {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		for _, name := range names {
			attrs = append(attrs, "gaz:"+name)
		}
	}
	return attrs
}

// minimalFeatures is the coarse subset combined with label bigrams: the bias
// (plain transition weights) and the word shape.
func (f *Featurizer) minimalFeatures(words []string, p int) []string {
	return []string{"bias", "shape=" + textutil.Shape(words[p])}
}

func digit(n int) string {
	return string(rune('0' + n))
}
