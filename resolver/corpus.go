package resolver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Corpus is the immutable, ordered set of example phrases.
type Corpus struct {
	entries []PhraseEntry
}

// CorpusFormat names a supported corpus encoding.
type CorpusFormat string

const (
	FormatJSON CorpusFormat = "json"
	FormatYAML CorpusFormat = "yaml"
	FormatCSV  CorpusFormat = "csv"
	FormatTSV  CorpusFormat = "tsv"
)

// corpusDocument is the JSON/YAML layout. Entries keep file order; Commands
// groups phrases under their code and is appended after Entries.
type corpusDocument struct {
	Entries      []PhraseEntry   `json:"entries" yaml:"entries"`
	Commands     yaml.Node       `json:"-" yaml:"commands"`
	CommandsJSON json.RawMessage `json:"commands" yaml:"-"`
}

// NewCorpus validates entries and returns an immutable corpus.
func NewCorpus(entries []PhraseEntry) (Corpus, error) {
	return buildCorpus("", entries)
}

// LoadCorpus reads a corpus file, picking the decoder from its extension.
func LoadCorpus(path string) (Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Corpus{}, &CorpusLoadError{Source: path, Entry: -1, Err: err}
	}
	format, err := formatFromPath(path)
	if err != nil {
		return Corpus{}, &CorpusLoadError{Source: path, Entry: -1, Err: err}
	}
	return parseCorpus(path, data, format, CorpusParseOptions{})
}

// ParseCorpus decodes corpus data in the given format.
func ParseCorpus(data []byte, format CorpusFormat) (Corpus, error) {
	return parseCorpus("", data, format, CorpusParseOptions{})
}

// ParseCorpusWithOptions decodes CSV/TSV data with explicit column choices.
func ParseCorpusWithOptions(data []byte, format CorpusFormat, opts CorpusParseOptions) (Corpus, error) {
	return parseCorpus("", data, format, opts)
}

func parseCorpus(source string, data []byte, format CorpusFormat, opts CorpusParseOptions) (Corpus, error) {
	var (
		entries []PhraseEntry
		err     error
	)
	switch format {
	case FormatJSON:
		entries, err = decodeJSONCorpus(data)
	case FormatYAML:
		entries, err = decodeYAMLCorpus(data)
	case FormatCSV:
		entries, err = parseDelimitedCorpus(data, ',', opts)
	case FormatTSV:
		entries, err = parseDelimitedCorpus(data, '\t', opts)
	default:
		err = fmt.Errorf("unsupported corpus format %q", format)
	}
	if err != nil {
		return Corpus{}, &CorpusLoadError{Source: source, Entry: -1, Err: err}
	}
	return buildCorpus(source, entries)
}

func formatFromPath(path string) (CorpusFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".csv":
		return FormatCSV, nil
	case ".tsv":
		return FormatTSV, nil
	}
	return "", fmt.Errorf("unsupported corpus file extension %q", filepath.Ext(path))
}

func decodeJSONCorpus(data []byte) ([]PhraseEntry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var entries []PhraseEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("decode corpus: %w", err)
		}
		return entries, nil
	}
	var doc corpusDocument
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("decode corpus: %w", err)
	}
	grouped, err := decodeJSONCommands(doc.CommandsJSON)
	if err != nil {
		return nil, err
	}
	return append(doc.Entries, grouped...), nil
}

// decodeJSONCommands reads a {"code": [phrases]} object keeping key order.
func decodeJSONCommands(raw json.RawMessage) ([]PhraseEntry, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode commands: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("commands must map codes to phrase lists")
	}
	var out []PhraseEntry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode commands: %w", err)
		}
		code, _ := tok.(string)
		var phrases []string
		if err := dec.Decode(&phrases); err != nil {
			return nil, fmt.Errorf("phrases for %q: %w", code, err)
		}
		for _, p := range phrases {
			out = append(out, PhraseEntry{Code: code, Phrase: p})
		}
	}
	return out, nil
}

func decodeYAMLCorpus(data []byte) ([]PhraseEntry, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode corpus: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	top := root.Content[0]
	if top.Kind == yaml.SequenceNode {
		var entries []PhraseEntry
		if err := top.Decode(&entries); err != nil {
			return nil, fmt.Errorf("decode corpus: %w", err)
		}
		return entries, nil
	}
	var doc corpusDocument
	if err := top.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode corpus: %w", err)
	}
	entries := doc.Entries
	grouped, err := decodeCommands(&doc.Commands)
	if err != nil {
		return nil, err
	}
	return append(entries, grouped...), nil
}

// decodeCommands walks a "code: [phrases]" mapping in document order.
func decodeCommands(node *yaml.Node) ([]PhraseEntry, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: commands must map codes to phrase lists", node.Line)
	}
	var out []PhraseEntry
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		var phrases []string
		if err := val.Decode(&phrases); err != nil {
			return nil, fmt.Errorf("line %d: phrases for %q: %w", val.Line, key.Value, err)
		}
		for _, p := range phrases {
			out = append(out, PhraseEntry{Code: key.Value, Phrase: p})
		}
	}
	return out, nil
}

func buildCorpus(source string, entries []PhraseEntry) (Corpus, error) {
	out := make([]PhraseEntry, 0, len(entries))
	seen := make(map[string]string, len(entries))
	for i, e := range entries {
		code := strings.TrimSpace(e.Code)
		phrase := strings.TrimSpace(e.Phrase)
		if code == "" {
			return Corpus{}, &CorpusLoadError{Source: source, Entry: i, Err: fmt.Errorf("missing code for phrase %q", phrase)}
		}
		if strings.IndexFunc(code, unicode.IsSpace) >= 0 {
			return Corpus{}, &CorpusLoadError{Source: source, Entry: i, Err: fmt.Errorf("code %q contains whitespace", code)}
		}
		key := NormalizeText(phrase)
		if key == "" {
			return Corpus{}, &CorpusLoadError{Source: source, Entry: i, Err: fmt.Errorf("missing phrase for code %q", code)}
		}
		if prev, ok := seen[key]; ok {
			if prev != code {
				return Corpus{}, &CorpusLoadError{Source: source, Entry: i, Err: fmt.Errorf("phrase %q maps to both %s and %s", phrase, prev, code)}
			}
			continue
		}
		seen[key] = code
		out = append(out, PhraseEntry{Code: code, Phrase: phrase})
	}
	if len(out) == 0 {
		return Corpus{}, &CorpusLoadError{Source: source, Entry: -1, Err: errors.New("corpus has no entries")}
	}
	return Corpus{entries: out}, nil
}

// Entries returns a copy of the corpus entries in load order.
func (c Corpus) Entries() []PhraseEntry {
	out := make([]PhraseEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of phrases.
func (c Corpus) Len() int {
	return len(c.entries)
}

// Codes returns the distinct codes in first-seen order.
func (c Corpus) Codes() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range c.entries {
		if _, ok := seen[e.Code]; ok {
			continue
		}
		seen[e.Code] = struct{}{}
		out = append(out, e.Code)
	}
	return out
}

// PhrasesFor returns the phrases registered for code.
func (c Corpus) PhrasesFor(code string) []string {
	var out []string
	for _, e := range c.entries {
		if e.Code == code {
			out = append(out, e.Phrase)
		}
	}
	return out
}
