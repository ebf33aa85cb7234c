package resolver

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// QueryRecord is one query read from an input file.
type QueryRecord struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text"`
}

// QueryParseOptions selects the CSV columns holding the query id and text.
type QueryParseOptions struct {
	IDColumn    string
	QueryColumn string
}

// CorpusParseOptions selects the CSV columns holding codes and phrases.
type CorpusParseOptions struct {
	CodeColumn   string
	PhraseColumn string
}

// ParseQueryFile reads queries from a text file (one per line) or a CSV/TSV file.
func ParseQueryFile(path string, opts QueryParseOptions) ([]QueryRecord, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return parseDelimitedQueries(path, ',', opts)
	case ".tsv":
		return parseDelimitedQueries(path, '\t', opts)
	default:
		return parsePlainTextQueries(path)
	}
}

func parsePlainTextQueries(path string) ([]QueryRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open text file: %w", err)
	}
	defer f.Close()
	var out []QueryRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := cleanCell(scanner.Text())
		if line == "" {
			continue
		}
		out = append(out, QueryRecord{Text: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan text file: %w", err)
	}
	return out, nil
}

func parseDelimitedQueries(path string, comma rune, opts QueryParseOptions) ([]QueryRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	rows, err := readDelimited(data, comma)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	header := cleanHeader(rows[0])
	candidates := getColumnCandidates()
	idCol, err := pickColumn(header, opts.IDColumn, candidates.ID)
	if err != nil {
		return nil, err
	}
	queryCol, err := pickColumn(header, opts.QueryColumn, candidates.Query)
	if err != nil {
		return nil, err
	}
	skipHeader := idCol.FromHeader || queryCol.FromHeader
	if queryCol.Index < 0 {
		queryCol.Index = 0
	}
	start := 0
	if skipHeader {
		start = 1
	}
	records := make([]QueryRecord, 0, len(rows)-start)
	for _, row := range rows[start:] {
		if queryCol.Index >= len(row) {
			continue
		}
		text := cleanCell(row[queryCol.Index])
		if text == "" {
			continue
		}
		rec := QueryRecord{Text: text}
		if idCol.Index >= 0 && idCol.Index < len(row) {
			rec.ID = cleanCell(row[idCol.Index])
		}
		records = append(records, rec)
	}
	return records, nil
}

// parseDelimitedCorpus reads code/phrase pairs. Without a recognizable header
// the first column is the code and the second the phrase.
func parseDelimitedCorpus(data []byte, comma rune, opts CorpusParseOptions) ([]PhraseEntry, error) {
	rows, err := readDelimited(data, comma)
	if err != nil {
		return nil, err
	}
	header := cleanHeader(rows[0])
	candidates := getColumnCandidates()
	codeCol, err := pickColumn(header, opts.CodeColumn, candidates.Code)
	if err != nil {
		return nil, err
	}
	phraseCol, err := pickColumn(header, opts.PhraseColumn, candidates.Phrase)
	if err != nil {
		return nil, err
	}
	skipHeader := codeCol.FromHeader || phraseCol.FromHeader
	if codeCol.Index < 0 {
		codeCol.Index = 0
	}
	if phraseCol.Index < 0 {
		phraseCol.Index = 1
	}
	if codeCol.Index == phraseCol.Index {
		return nil, errors.New("code and phrase columns must differ")
	}
	start := 0
	if skipHeader {
		start = 1
	}
	entries := make([]PhraseEntry, 0, len(rows)-start)
	for _, row := range rows[start:] {
		var entry PhraseEntry
		if codeCol.Index < len(row) {
			entry.Code = cleanCell(row[codeCol.Index])
		}
		if phraseCol.Index < len(row) {
			entry.Phrase = cleanCell(row[phraseCol.Index])
		}
		if entry.Code == "" && entry.Phrase == "" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func readDelimited(data []byte, comma rune) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("empty file")
	}
	return rows, nil
}

func cleanHeader(row []string) []string {
	header := make([]string, len(row))
	for i, cell := range row {
		header[i] = cleanCell(cell)
	}
	return header
}

func cleanCell(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "\ufeff")
	return v
}

func findColumn(header []string, candidates []string) int {
	for i, col := range header {
		for _, cand := range candidates {
			if strings.EqualFold(col, cand) {
				return i
			}
		}
	}
	return -1
}

type columnResult struct {
	Index      int
	FromHeader bool
}

func pickColumn(header []string, explicit string, candidates []string) (columnResult, error) {
	res := columnResult{Index: -1}
	if strings.TrimSpace(explicit) != "" {
		idx, fromHeader, err := matchExplicitColumn(header, explicit)
		if err != nil {
			return res, err
		}
		res.Index = idx
		res.FromHeader = fromHeader
		return res, nil
	}
	idx := findColumn(header, candidates)
	if idx >= 0 {
		res.Index = idx
		res.FromHeader = true
	}
	return res, nil
}

func matchExplicitColumn(header []string, explicit string) (int, bool, error) {
	trimmed := strings.TrimSpace(explicit)
	if trimmed == "" {
		return -1, false, nil
	}
	for i, col := range header {
		if strings.EqualFold(col, trimmed) {
			return i, true, nil
		}
	}
	if strings.HasPrefix(trimmed, "#") {
		idx, err := parseColumnIndex(trimmed)
		if err != nil {
			return -1, false, err
		}
		if idx >= len(header) {
			return -1, false, fmt.Errorf("column index %s is out of range", trimmed)
		}
		return idx, false, nil
	}
	return -1, false, fmt.Errorf("column %q not found", explicit)
}

func parseColumnIndex(token string) (int, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(token, "#"))
	if trimmed == "" {
		return -1, fmt.Errorf("invalid column index %q", token)
	}
	idx, err := strconv.Atoi(trimmed)
	if err != nil {
		return -1, fmt.Errorf("invalid column index %q", token)
	}
	if idx <= 0 {
		return -1, fmt.Errorf("column indices are 1-based: %q", token)
	}
	return idx - 1, nil
}
