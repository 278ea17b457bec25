// Package seqtag tags token sequences (part-of-speech style) with a
// first-order linear-chain Conditional Random Field.
//
//	t, _ := seqtag.New()
//	tags, _ := t.Tag([]string{"the", "quick", "fox"})
//	fmt.Println(tags) // [DET ADJ NOUN]
package seqtag

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/happyhackingspace/seqtag/crf"
	"github.com/happyhackingspace/seqtag/internal/textutil"
	"github.com/happyhackingspace/seqtag/tagger"
)

// Tagger wraps a trained model and its bound inference.
type Tagger struct {
	model *tagger.Model
	inf   *crf.Inference
}

// Token is one tagged word.
type Token struct {
	Word string `json:"word"`
	Tag  string `json:"tag"`
}

// New loads the tagger from "model.json", searching the current directory
// and parent directories up to the module root (where go.mod lives).
func New() (*Tagger, error) {
	path, err := findModel("model.json")
	if err != nil {
		return nil, fmt.Errorf("seqtag: %w", err)
	}
	return Load(path)
}

func findModel(name string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		// Stop at module root
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("model.json not found")
}

// ModelDir returns the per-user cache directory for downloaded or default
// models.
func ModelDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "seqtag")
}

// Load loads a trained tagger from a model file.
func Load(path string) (*Tagger, error) {
	m, err := tagger.LoadModel(path)
	if err != nil {
		return nil, fmt.Errorf("seqtag: %w", err)
	}
	return fromModel(m)
}

func fromModel(m *tagger.Model) (*Tagger, error) {
	inf, err := m.CRF.Inference(nil)
	if err != nil {
		return nil, fmt.Errorf("seqtag: %w", err)
	}
	return &Tagger{model: m, inf: inf}, nil
}

// Save writes the tagger to a model file.
func (t *Tagger) Save(path string) error {
	if t.model == nil {
		return fmt.Errorf("seqtag: tagger not initialized")
	}
	if err := tagger.SaveModel(t.model, path); err != nil {
		return fmt.Errorf("seqtag: %w", err)
	}
	return nil
}

// Tag returns the Viterbi tag sequence for the given words.
func (t *Tagger) Tag(words []string) ([]string, error) {
	if len(words) == 0 {
		return nil, nil
	}
	path, err := t.inf.Decode(words, nil)
	if err != nil {
		return nil, fmt.Errorf("seqtag: %w", err)
	}
	return path.Labels, nil
}

// TagText tokenizes the text and tags the resulting token sequence.
func (t *Tagger) TagText(text string) ([]Token, error) {
	words := textutil.Tokenize(text)
	tags, err := t.Tag(words)
	if err != nil {
		return nil, err
	}
	tokens := make([]Token, len(words))
	for i, w := range words {
		tokens[i] = Token{Word: w, Tag: tags[i]}
	}
	return tokens, nil
}

// Marginals returns the per-position posterior over tags.
func (t *Tagger) Marginals(words []string) ([]map[string]float64, error) {
	marg, err := t.inf.Marginal(words, nil)
	if err != nil {
		return nil, fmt.Errorf("seqtag: %w", err)
	}
	labels := t.model.CRF.Labels
	out := make([]map[string]float64, len(words))
	for p := range words {
		out[p] = make(map[string]float64)
		for _, cur := range labels.NonStart() {
			out[p][labels.Get(cur)] = marg.PositionMarginal(p, cur)
		}
	}
	return out, nil
}

// Annotate is posterior decoding: the position-wise most probable tag. It
// can differ from Tag, which returns the best complete sequence.
func (t *Tagger) Annotate(words []string) ([]string, error) {
	marg, err := t.inf.Marginal(words, nil)
	if err != nil {
		return nil, fmt.Errorf("seqtag: %w", err)
	}
	return t.inf.Annotate(marg), nil
}
