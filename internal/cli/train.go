package cli

import (
	"log/slog"
	"time"

	"github.com/happyhackingspace/seqtag"
	"github.com/happyhackingspace/seqtag/internal/corpus"
	"github.com/spf13/cobra"
)

func (c *CLI) newTrainCommand() *cobra.Command {
	var (
		dataFolder string
		sep        string
		lexiconMin int
		iterations int
	)

	cmd := &cobra.Command{
		Use:   "train <modelfile>",
		Short: "Train a tagger on tagged-sentence files",
		Args:  cobra.ExactArgs(1),
		Example: `  seqtag train model.json --data-folder data
  seqtag train model.json --sep _ --iterations 200 -v`,
		RunE: func(cmd *cobra.Command, args []string) error {
			modelPath := args[0]
			slog.Info("Training tagger", "data-folder", dataFolder, "output", modelPath)
			start := time.Now()

			config := seqtag.DefaultTrainConfig()
			config.Sep = sep
			config.LexiconMinCount = lexiconMin
			config.Trainer.MaxIterations = iterations

			t, err := seqtag.Train(dataFolder, config)
			if err != nil {
				return err
			}
			slog.Debug("Training completed", "duration", time.Since(start))
			if err := t.Save(modelPath); err != nil {
				return err
			}
			slog.Info("Model saved", "path", modelPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataFolder, "data-folder", "data", "Path to tagged corpus folder")
	cmd.Flags().StringVar(&sep, "sep", corpus.DefaultSep, "Word/tag separator in corpus files")
	cmd.Flags().IntVar(&lexiconMin, "min-lexicon", 5, "Min word count for lexicon constraints (0 disables)")
	cmd.Flags().IntVar(&iterations, "iterations", 100, "Max training iterations")
	return cmd
}
