package seqtag

import (
	"fmt"
	"log/slog"

	"github.com/happyhackingspace/seqtag/crf"
	"github.com/happyhackingspace/seqtag/internal/corpus"
	"github.com/happyhackingspace/seqtag/tagger"
)

// TrainConfig holds configuration for training.
type TrainConfig struct {
	// Sep is the word/tag separator in corpus files.
	Sep string
	// LexiconMinCount constrains words seen at least this often to their
	// observed tags; 0 disables the lexicon.
	LexiconMinCount int
	// Featurizer options (gazetteers, start symbol, initial weights).
	Options tagger.Options
	// Trainer hyperparameters.
	Trainer crf.TrainerConfig
}

// DefaultTrainConfig returns the defaults used by the CLI.
func DefaultTrainConfig() *TrainConfig {
	return &TrainConfig{
		Sep:             corpus.DefaultSep,
		LexiconMinCount: 5,
		Options:         tagger.DefaultOptions(),
		Trainer:         crf.DefaultTrainerConfig(),
	}
}

// Train trains a tagger on tagged-sentence files in the given directory.
func Train(dataDir string, config *TrainConfig) (*Tagger, error) {
	if config == nil {
		config = DefaultTrainConfig()
	}
	seqs, err := corpus.ReadDir(dataDir, config.Sep)
	if err != nil {
		return nil, fmt.Errorf("seqtag: %w", err)
	}
	return TrainCorpus(seqs, config)
}

// TrainCorpus trains a tagger on an in-memory corpus.
func TrainCorpus(seqs []crf.TaggedSequence, config *TrainConfig) (*Tagger, error) {
	if config == nil {
		config = DefaultTrainConfig()
	}
	if len(seqs) == 0 {
		return nil, fmt.Errorf("seqtag: empty corpus")
	}

	opts := config.Options
	if opts.StartSymbol == "" {
		opts.StartSymbol = tagger.DefaultOptions().StartSymbol
	}
	labels := crf.NewLabelIndex(opts.StartSymbol, corpus.Tags(seqs)...)
	slog.Debug("Label index built", "labels", labels.Size()-1)

	feat := tagger.NewFeaturizer(opts)
	var lex *tagger.Lexicon
	var constraints crf.TagConstraintsFactory = crf.AllTags{Labels: labels}
	if config.LexiconMinCount > 0 {
		lex = tagger.BuildLexicon(labels, seqs, config.LexiconMinCount)
		constraints = lex
		slog.Debug("Lexicon built", "constrained_words", len(lex.WordTags))
	}

	indexed, err := crf.BuildFeaturizer(labels, feat, constraints, seqs)
	if err != nil {
		return nil, fmt.Errorf("seqtag: %w", err)
	}
	slog.Info("Feature index built", "features", indexed.NumFeatures, "sentences", len(seqs))

	m := &tagger.Model{
		CRF:        &crf.Model{Labels: labels, Featurizer: indexed},
		Featurizer: feat,
		Lexicon:    lex,
	}
	m.Bind()

	trainerConfig := config.Trainer
	if trainerConfig.InitialWeights == nil {
		trainerConfig.InitialWeights = opts.InitialWeights
	}
	if err := crf.Train(m.CRF, seqs, trainerConfig); err != nil {
		return nil, fmt.Errorf("seqtag: %w", err)
	}
	return fromModel(m)
}

// EvalConfig holds configuration for evaluation.
type EvalConfig struct {
	Folds int
	Train *TrainConfig
}

// EvalResult holds cross-validation evaluation results.
type EvalResult struct {
	TokenAccuracy    float64
	SequenceAccuracy float64
	TokenCorrect     int
	TokenTotal       int
	SequenceCorrect  int
	SequenceTotal    int
	Tags             []string
	Confusion        map[string]map[string]int
	Precision        map[string]float64
	Recall           map[string]float64
	F1               map[string]float64
}

// Evaluate runs k-fold cross-validation over the corpus directory.
func Evaluate(dataDir string, config *EvalConfig) (*EvalResult, error) {
	if config == nil {
		config = &EvalConfig{}
	}
	trainConfig := config.Train
	if trainConfig == nil {
		trainConfig = DefaultTrainConfig()
	}
	folds := config.Folds
	if folds < 2 {
		folds = 5
	}

	seqs, err := corpus.ReadDir(dataDir, trainConfig.Sep)
	if err != nil {
		return nil, fmt.Errorf("seqtag: %w", err)
	}
	if len(seqs) < folds {
		folds = len(seqs)
	}
	if folds < 2 {
		return nil, fmt.Errorf("seqtag: corpus too small for cross-validation")
	}

	result := &EvalResult{
		Tags:      corpus.Tags(seqs),
		Confusion: make(map[string]map[string]int),
	}

	for fold := range folds {
		var trainSeqs, testSeqs []crf.TaggedSequence
		for i, seq := range seqs {
			if i%folds == fold {
				testSeqs = append(testSeqs, seq)
			} else {
				trainSeqs = append(trainSeqs, seq)
			}
		}

		slog.Info("Evaluating fold", "fold", fold+1, "train", len(trainSeqs), "test", len(testSeqs))
		t, err := TrainCorpus(trainSeqs, trainConfig)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", fold+1, err)
		}

		for _, seq := range testSeqs {
			pred, err := t.Tag(seq.Words)
			if err != nil {
				slog.Warn("Skipping undecodable sentence", "id", seq.ID, "error", err)
				continue
			}
			result.SequenceTotal++
			allCorrect := true
			for p, gold := range seq.Labels {
				result.TokenTotal++
				if result.Confusion[gold] == nil {
					result.Confusion[gold] = make(map[string]int)
				}
				result.Confusion[gold][pred[p]]++
				if pred[p] == gold {
					result.TokenCorrect++
				} else {
					allCorrect = false
				}
			}
			if allCorrect {
				result.SequenceCorrect++
			}
		}
	}

	if result.TokenTotal > 0 {
		result.TokenAccuracy = float64(result.TokenCorrect) / float64(result.TokenTotal)
	}
	if result.SequenceTotal > 0 {
		result.SequenceAccuracy = float64(result.SequenceCorrect) / float64(result.SequenceTotal)
	}
	result.computeClassMetrics()
	return result, nil
}

func (r *EvalResult) computeClassMetrics() {
	r.Precision = make(map[string]float64)
	r.Recall = make(map[string]float64)
	r.F1 = make(map[string]float64)

	for _, tag := range r.Tags {
		tp := r.Confusion[tag][tag]
		fn := 0
		for _, count := range r.Confusion[tag] {
			fn += count
		}
		fn -= tp
		fp := 0
		for _, gold := range r.Tags {
			if gold != tag {
				fp += r.Confusion[gold][tag]
			}
		}

		var prec, rec float64
		if tp+fp > 0 {
			prec = float64(tp) / float64(tp+fp)
		}
		if tp+fn > 0 {
			rec = float64(tp) / float64(tp+fn)
		}
		r.Precision[tag] = prec
		r.Recall[tag] = rec
		if prec+rec > 0 {
			r.F1[tag] = 2 * prec * rec / (prec + rec)
		}
	}
}
