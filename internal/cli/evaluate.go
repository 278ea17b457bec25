package cli

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/happyhackingspace/seqtag"
	"github.com/spf13/cobra"
)

func (c *CLI) newEvaluateCommand() *cobra.Command {
	var dataFolder string
	var cvFolds int

	cmd := &cobra.Command{
		Use:     "evaluate",
		Short:   "Evaluate tagging accuracy via cross-validation",
		Example: `  seqtag evaluate --data-folder data --cv 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("Evaluating", "folds", cvFolds, "data-folder", dataFolder)
			start := time.Now()
			result, err := seqtag.Evaluate(dataFolder, &seqtag.EvalConfig{Folds: cvFolds})
			if err != nil {
				return err
			}
			slog.Debug("Evaluation completed", "duration", time.Since(start))

			fmt.Printf("Token accuracy: %.1f%% (%d/%d)\n",
				result.TokenAccuracy*100, result.TokenCorrect, result.TokenTotal)
			fmt.Printf("Sequence accuracy: %.1f%% (%d/%d sentences)\n",
				result.SequenceAccuracy*100, result.SequenceCorrect, result.SequenceTotal)
			printConfusionMatrix(result.Confusion, result.Tags)
			printClassReport(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataFolder, "data-folder", "data", "Path to tagged corpus folder")
	cmd.Flags().IntVar(&cvFolds, "cv", 5, "Number of cross-validation folds")
	return cmd
}

func printClassReport(result *seqtag.EvalResult) {
	fmt.Printf("\nPer-tag metrics:\n")
	fmt.Printf("%8s  %6s  %6s  %6s  %7s\n", "tag", "prec", "recall", "f1", "support")
	for _, tag := range result.Tags {
		support := 0
		for _, v := range result.Confusion[tag] {
			support += v
		}
		fmt.Printf("%8s  %5.1f%%  %5.1f%%  %5.1f%%  %7d\n",
			tag, result.Precision[tag]*100, result.Recall[tag]*100, result.F1[tag]*100, support)
	}
}

func printConfusionMatrix(confusion map[string]map[string]int, tags []string) {
	if len(confusion) == 0 {
		return
	}

	sort.Slice(tags, func(i, j int) bool {
		ti, tj := 0, 0
		for _, v := range confusion[tags[i]] {
			ti += v
		}
		for _, v := range confusion[tags[j]] {
			tj += v
		}
		return ti > tj
	})

	fmt.Printf("\nConfusion matrix (rows=true, cols=predicted):\n")
	fmt.Printf("%8s", "")
	for _, tag := range tags {
		fmt.Printf(" %5s", tag)
	}
	fmt.Printf("  total  acc%%\n")

	for _, trueTag := range tags {
		fmt.Printf("%8s", trueTag)
		total := 0
		correct := 0
		for _, predTag := range tags {
			count := confusion[trueTag][predTag]
			total += count
			if trueTag == predTag {
				correct = count
			}
			if count == 0 {
				fmt.Printf("   %5s", ".")
			} else {
				fmt.Printf("   %3d", count)
			}
		}
		acc := 0.0
		if total > 0 {
			acc = float64(correct) / float64(total) * 100
		}
		fmt.Printf("  %5d %5.1f\n", total, acc)
	}
}
