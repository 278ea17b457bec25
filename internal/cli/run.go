package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/happyhackingspace/seqtag"
	"github.com/happyhackingspace/seqtag/internal/htmlutil"
	"github.com/happyhackingspace/seqtag/internal/textutil"
	"github.com/spf13/cobra"
)

func (c *CLI) newRunCommand() *cobra.Command {
	var modelPath string
	var marginals bool

	cmd := &cobra.Command{
		Use:   "run [url-or-file]",
		Short: "Tag the words of a text file, URL, HTML page, or stdin",
		Args:  cobra.MaximumNArgs(1),
		Example: `  # Tag a local text file
  seqtag run article.txt

  # Tag the visible text of a web page
  seqtag run https://example.com/article

  # Pipe text from stdin
  echo "the quick brown fox" | seqtag run

  # Show per-word tag probabilities
  seqtag run article.txt --marginals

  # Use a custom model file
  seqtag run article.txt --model custom.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var content string
			var err error

			if len(args) == 0 {
				if isStdinTerminal() {
					return cmd.Help()
				}
				content, err = readFromStdin()
				if err != nil {
					return err
				}
			} else {
				slog.Debug("Fetching content", "target", args[0])
				content, err = fetchContent(args[0])
				if err != nil {
					return err
				}
			}

			if htmlutil.IsHTML(content) {
				slog.Debug("Extracting visible text from HTML")
				doc, err := htmlutil.LoadHTMLString(content)
				if err != nil {
					return fmt.Errorf("parse HTML: %w", err)
				}
				content = htmlutil.VisibleText(doc)
			}

			start := time.Now()
			t, err := loadTagger(modelPath)
			if err != nil {
				return err
			}
			slog.Debug("Model loaded", "duration", time.Since(start))

			if marginals {
				return printMarginals(t, content)
			}
			return printTags(t, content)
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "", "Path to model file (default: auto-detect)")
	cmd.Flags().BoolVar(&marginals, "marginals", false, "Show per-word tag probabilities")
	return cmd
}

func printTags(t *seqtag.Tagger, content string) error {
	for _, line := range strings.Split(content, "\n") {
		tokens, err := t.TagText(line)
		if err != nil {
			return err
		}
		if len(tokens) == 0 {
			continue
		}
		parts := make([]string, len(tokens))
		for i, tok := range tokens {
			parts[i] = tok.Word + "/" + tok.Tag
		}
		fmt.Println(strings.Join(parts, " "))
	}
	return nil
}

func printMarginals(t *seqtag.Tagger, content string) error {
	type wordMarginals struct {
		Word string             `json:"word"`
		Tags map[string]float64 `json:"tags"`
	}
	var out []wordMarginals
	for _, line := range strings.Split(content, "\n") {
		words := textutil.Tokenize(line)
		if len(words) == 0 {
			continue
		}
		marginals, err := t.Marginals(words)
		if err != nil {
			return err
		}
		for i, w := range words {
			out = append(out, wordMarginals{Word: w, Tags: marginals[i]})
		}
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(data))
	return nil
}

func isStdinTerminal() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func loadTagger(modelPath string) (*seqtag.Tagger, error) {
	if modelPath != "" {
		slog.Debug("Loading custom model", "path", modelPath)
		return seqtag.Load(modelPath)
	}
	return seqtag.New()
}

func fetchContent(target string) (string, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		resp, err := http.Get(target)
		if err != nil {
			return "", fmt.Errorf("fetch URL: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("fetch URL: HTTP %d", resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("read response: %w", err)
		}
		return string(body), nil
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return string(data), nil
}

func readFromStdin() (string, error) {
	slog.Debug("Reading from stdin")
	body, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	content := strings.TrimSpace(string(body))
	if content == "" {
		return "", fmt.Errorf("stdin is empty")
	}
	if strings.HasPrefix(content, "http://") || strings.HasPrefix(content, "https://") {
		slog.Debug("Stdin contains URL", "url", content)
		return fetchContent(content)
	}
	return content, nil
}
