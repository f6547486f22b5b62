package project

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ImportSentences reads a sentence list from a .txt (one sentence per
// line), .csv, or .tsv file (first column, header row skipped). IDs are
// assigned 1-based in file order.
func ImportSentences(path string) ([]Sentence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return parseText(string(data)), nil
	case ".csv":
		return parseDelimited(string(data), ',')
	case ".tsv":
		return parseDelimited(string(data), '\t')
	default:
		return nil, fmt.Errorf("unsupported file format: %s", filepath.Ext(path))
	}
}

func parseText(contents string) []Sentence {
	var sentences []Sentence
	for _, line := range strings.Split(contents, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		sentences = append(sentences, Sentence{
			ID:   len(sentences) + 1,
			Text: line,
		})
	}
	return sentences
}

func parseDelimited(contents string, delimiter rune) ([]Sentence, error) {
	r := csv.NewReader(strings.NewReader(contents))
	r.Comma = delimiter
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	// First row is a header.
	var sentences []Sentence
	for _, record := range records[1:] {
		if len(record) == 0 {
			continue
		}
		sentences = append(sentences, Sentence{
			ID:   len(sentences) + 1,
			Text: record[0],
		})
	}
	return sentences, nil
}
