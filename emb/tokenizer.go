package emb

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

const (
	inputIDs           = "input_ids"
	inputAttentionMask = "attention_mask"
	inputTokenTypeIDs  = "token_type_ids"

	// DefaultTokenizer is the pure Go backend.
	DefaultTokenizer = "sugarme"
)

// Encoding is the tokenizer output fed to the model.
type Encoding struct {
	IDs           []int64
	AttentionMask []int64
	TypeIDs       []int64
}

// Input returns the tensor data for a model input name.
func (e Encoding) Input(name string) ([]int64, error) {
	switch name {
	case inputIDs:
		return e.IDs, nil
	case inputAttentionMask:
		return e.AttentionMask, nil
	case inputTokenTypeIDs:
		return e.TypeIDs, nil
	}
	return nil, fmt.Errorf("emb: unsupported model input %q", name)
}

// Tokenizer converts text into model inputs.
type Tokenizer interface {
	Encode(text string) (Encoding, error)
	Close() error
}

// TokenizerLoader opens a tokenizer.json file.
type TokenizerLoader func(path string, maxSeqLen int) (Tokenizer, error)

var (
	loadersMu sync.RWMutex
	loaders   = map[string]TokenizerLoader{
		DefaultTokenizer: loadSugarTokenizer,
	}
)

// RegisterTokenizer makes a tokenizer backend selectable by name.
func RegisterTokenizer(name string, loader TokenizerLoader) {
	loadersMu.Lock()
	defer loadersMu.Unlock()
	loaders[strings.ToLower(name)] = loader
}

// Tokenizers lists the registered backend names.
func Tokenizers() []string {
	loadersMu.RLock()
	defer loadersMu.RUnlock()
	names := make([]string, 0, len(loaders))
	for n := range loaders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LoadTokenizer opens path with the named backend; an empty name selects
// DefaultTokenizer.
func LoadTokenizer(name, path string, maxSeqLen int) (Tokenizer, error) {
	if name == "" {
		name = DefaultTokenizer
	}
	loadersMu.RLock()
	loader, ok := loaders[strings.ToLower(name)]
	loadersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("emb: unknown tokenizer %q (available: %s)", name, strings.Join(Tokenizers(), ", "))
	}
	return loader(path, maxSeqLen)
}

type sugarTokenizer struct {
	tk        *tokenizer.Tokenizer
	maxSeqLen int
}

func loadSugarTokenizer(path string, maxSeqLen int) (Tokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", path, err)
	}
	return &sugarTokenizer{tk: tk, maxSeqLen: maxSeqLen}, nil
}

func (s *sugarTokenizer) Encode(text string) (Encoding, error) {
	en, err := s.tk.EncodeSingle(text, true)
	if err != nil {
		return Encoding{}, err
	}
	enc := Encoding{
		IDs:           intsToInt64(en.Ids),
		AttentionMask: intsToInt64(en.AttentionMask),
		TypeIDs:       intsToInt64(en.TypeIds),
	}
	return Truncate(fillDefaults(enc), s.maxSeqLen), nil
}

func (s *sugarTokenizer) Close() error { return nil }

// Truncate limits an encoding to maxLen tokens, keeping the final special
// token in place.
func Truncate(enc Encoding, maxLen int) Encoding {
	if maxLen <= 0 || len(enc.IDs) <= maxLen {
		return enc
	}
	cut := func(v []int64) []int64 {
		if len(v) <= maxLen {
			return v
		}
		out := make([]int64, maxLen)
		copy(out, v[:maxLen-1])
		out[maxLen-1] = v[len(v)-1]
		return out
	}
	return Encoding{
		IDs:           cut(enc.IDs),
		AttentionMask: cut(enc.AttentionMask),
		TypeIDs:       cut(enc.TypeIDs),
	}
}

func fillDefaults(enc Encoding) Encoding {
	if len(enc.AttentionMask) != len(enc.IDs) {
		enc.AttentionMask = make([]int64, len(enc.IDs))
		for i := range enc.AttentionMask {
			enc.AttentionMask[i] = 1
		}
	}
	if len(enc.TypeIDs) != len(enc.IDs) {
		enc.TypeIDs = make([]int64, len(enc.IDs))
	}
	return enc
}

func intsToInt64(in []int) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}
