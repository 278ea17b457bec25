package tagger

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/happyhackingspace/seqtag/crf"
)

// Model is the combined serializable artifact: the CRF model plus the
// surface featurizer state and the optional lexicon it was trained with.
// Loading rewires the plug-ins so inference after a round-trip is identical.
type Model struct {
	CRF        *crf.Model  `json:"crf"`
	Featurizer *Featurizer `json:"featurizer"`
	Lexicon    *Lexicon    `json:"lexicon,omitempty"`
}

// Bind attaches the featurizer and lexicon to the CRF model and freezes the
// attribute alphabet.
func (m *Model) Bind() {
	m.Featurizer.Freeze()
	m.CRF.Surface = m.Featurizer
	if m.Lexicon != nil {
		m.Lexicon.Bind(m.CRF.Labels)
		m.CRF.Constraints = m.Lexicon
	}
}

// SaveModel serializes the model to JSON.
func SaveModel(model *Model, path string) error {
	data, err := json.MarshalIndent(model, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadModel deserializes a model from JSON and rebinds its plug-ins.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return UnmarshalModel(data)
}

// MarshalModel serializes the model to JSON bytes.
func MarshalModel(model *Model) ([]byte, error) {
	return json.Marshal(model)
}

// UnmarshalModel deserializes a model from JSON bytes and rebinds its
// plug-ins.
func UnmarshalModel(data []byte) (*Model, error) {
	var model Model
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, err
	}
	if model.CRF == nil || model.Featurizer == nil {
		return nil, fmt.Errorf("tagger: incomplete model artifact")
	}
	model.Bind()
	return &model, nil
}
