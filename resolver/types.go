package resolver

// NoMatch is returned in place of a code when no corpus phrase reaches the
// similarity threshold.
const NoMatch = "No match found"

// DefaultThreshold is the minimum cosine similarity for a match.
const DefaultThreshold float32 = 0.95

// Embedding is a fixed-dimensionality vector produced by an Embedder.
// Embeddings are never mutated after creation.
type Embedding []float32

// PhraseEntry ties an example phrase to the diagnostic command it asks for.
type PhraseEntry struct {
	Code   string `json:"code" yaml:"code"`
	Phrase string `json:"phrase" yaml:"phrase"`
}

// SimilarityResult is one scored query/phrase pair. Query and Phrase hold
// the normalized text that was compared.
type SimilarityResult struct {
	Query              string    `json:"query"`
	Phrase             string    `json:"phrase"`
	Code               string    `json:"code"`
	QueryEmbedding     Embedding `json:"-"`
	CandidateEmbedding Embedding `json:"-"`
	Score              float32   `json:"score"`
}

// Status enumerates the resolver states.
type Status int

const (
	// StatusEmpty means no resolution has run yet.
	StatusEmpty Status = iota
	// StatusLoading means initialization or a resolution is in flight.
	StatusLoading
	// StatusSuccess holds the ranked results of the latest resolution.
	StatusSuccess
	// StatusError holds the message of the latest failed resolution.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// State is an immutable snapshot of the resolver.
type State struct {
	Status   Status             `json:"status"`
	Query    string             `json:"query,omitempty"`
	Results  []SimilarityResult `json:"results,omitempty"`
	BestCode string             `json:"bestCode,omitempty"`
	Message  string             `json:"message,omitempty"`
	// Seq is the dispatch token of the call that produced this state.
	Seq uint64 `json:"seq"`
}

func (s State) clone() State {
	out := s
	if s.Results != nil {
		out.Results = make([]SimilarityResult, len(s.Results))
		copy(out.Results, s.Results)
	}
	return out
}

// EmbedderConfig wraps the configuration for the ORT embedder and cache.
type EmbedderConfig struct {
	OrtDLL        string `json:"ortDll"`
	ModelPath     string `json:"modelPath"`
	TokenizerPath string `json:"tokenizerPath"`
	Tokenizer     string `json:"tokenizer,omitempty"`
	MaxSeqLen     int    `json:"maxSeqLen"`
	CacheDir      string `json:"cacheDir"`
	ModelID       string `json:"modelId"`
}

// AssetsConfig lists where missing model files are downloaded from.
type AssetsConfig struct {
	ModelURL     string `json:"modelUrl,omitempty"`
	TokenizerURL string `json:"tokenizerUrl,omitempty"`
}

// Config aggregates runtime settings persisted to config.json.
type Config struct {
	// Threshold is nil when unset; MinScore then reports DefaultThreshold.
	Threshold  *float32       `json:"threshold,omitempty"`
	CorpusPath string         `json:"corpusPath,omitempty"`
	QueueSize  int            `json:"queueSize"`
	Embedder   EmbedderConfig `json:"embedder"`
	Assets     AssetsConfig   `json:"assets"`
}

// Clone creates a deep copy of the configuration so callers can mutate safely.
func (c Config) Clone() Config {
	out := c
	if c.Threshold != nil {
		v := *c.Threshold
		out.Threshold = &v
	}
	return out
}

// MinScore returns the effective similarity threshold.
func (c Config) MinScore() float32 {
	if c.Threshold == nil {
		return DefaultThreshold
	}
	return *c.Threshold
}

// SetThreshold sets an explicit threshold; 0 is a valid value.
func (c *Config) SetThreshold(v float32) {
	c.Threshold = &v
}

// ApplyDefaults populates unset fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Threshold == nil {
		c.SetThreshold(DefaultThreshold)
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	if c.Embedder.MaxSeqLen == 0 {
		c.Embedder.MaxSeqLen = 128
	}
}
