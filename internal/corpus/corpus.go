// Package corpus reads tagged-sentence training data.
//
// The on-disk format is one sentence per line, tokens separated by spaces,
// each token as word/TAG (the separator is configurable). Blank lines and
// lines starting with # are skipped.
package corpus

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/happyhackingspace/seqtag/crf"
)

// DefaultSep is the default word/tag separator.
const DefaultSep = "/"

// ReadTagged parses tagged sentences from r. The id prefix names the source
// in sentence IDs and error messages.
func ReadTagged(r io.Reader, sep, id string) ([]crf.TaggedSequence, error) {
	if sep == "" {
		sep = DefaultSep
	}
	var seqs []crf.TaggedSequence
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var words, labels []string
		ok := true
		for _, token := range strings.Fields(line) {
			cut := strings.LastIndex(token, sep)
			if cut <= 0 || cut == len(token)-len(sep) {
				slog.Warn("Skipping malformed sentence", "source", id, "line", lineNo, "token", token)
				ok = false
				break
			}
			words = append(words, token[:cut])
			labels = append(labels, token[cut+len(sep):])
		}
		if !ok || len(words) == 0 {
			continue
		}
		seqs = append(seqs, crf.TaggedSequence{
			ID:     fmt.Sprintf("%s:%d", id, lineNo),
			Words:  words,
			Labels: labels,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", id, err)
	}
	return seqs, nil
}

// ReadFile reads one tagged corpus file.
func ReadFile(path, sep string) ([]crf.TaggedSequence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ReadTagged(f, sep, filepath.Base(path))
}

// ReadDir reads every *.txt file under dir, sorted by name. Unreadable
// files are skipped with a warning so one bad file does not lose the run.
func ReadDir(dir, sep string) ([]crf.TaggedSequence, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read corpus dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".txt") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var seqs []crf.TaggedSequence
	for _, name := range names {
		fileSeqs, err := ReadFile(filepath.Join(dir, name), sep)
		if err != nil {
			slog.Warn("Skipping corpus file", "file", name, "error", err)
			continue
		}
		seqs = append(seqs, fileSeqs...)
	}
	if len(seqs) == 0 {
		return nil, fmt.Errorf("no tagged sentences found in %s", dir)
	}
	return seqs, nil
}

// Tags returns the distinct tags of the corpus in first-seen order.
func Tags(seqs []crf.TaggedSequence) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, seq := range seqs {
		for _, l := range seq.Labels {
			if !seen[l] {
				seen[l] = true
				tags = append(tags, l)
			}
		}
	}
	return tags
}
