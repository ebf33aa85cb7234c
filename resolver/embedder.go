package resolver

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"yashubustudio/obdresolver/emb"
)

// Embedder maps text to fixed-dimensionality vectors.
type Embedder interface {
	EmbedText(ctx context.Context, text string) (Embedding, error)
	EmbedTexts(ctx context.Context, texts []string) ([]Embedding, error)
	Close() error
	ModelID() string
}

// Engine is the raw inference backend behind OrtEmbedder.
type Engine interface {
	Encode(text string) ([]float32, error)
	Close()
}

// Opener loads an Embedder. It is called once, on the resolver worker.
type Opener func(ctx context.Context) (Embedder, error)

// OrtEmbedder wraps an inference engine with memory and disk caching.
type OrtEmbedder struct {
	mu       sync.RWMutex // guards enc
	enc      Engine
	cfg      EmbedderConfig
	cacheMu  sync.Mutex
	memCache map[string]Embedding
}

// NewOrtEmbedder loads the ONNX model and tokenizer described by cfg.
func NewOrtEmbedder(cfg EmbedderConfig) (*OrtEmbedder, error) {
	cfg = withModelID(cfg)
	encoder := &emb.Encoder{}
	if err := encoder.Init(emb.Config{
		OrtDLL:        cfg.OrtDLL,
		ModelPath:     cfg.ModelPath,
		TokenizerPath: cfg.TokenizerPath,
		Tokenizer:     cfg.Tokenizer,
		MaxSeqLen:     cfg.MaxSeqLen,
	}); err != nil {
		return nil, &InitError{ModelID: cfg.ModelID, Err: err}
	}
	o, err := NewEngineEmbedder(cfg, encoder)
	if err != nil {
		encoder.Close()
		return nil, err
	}
	return o, nil
}

// NewEngineEmbedder wraps an already loaded engine.
func NewEngineEmbedder(cfg EmbedderConfig, engine Engine) (*OrtEmbedder, error) {
	cfg = withModelID(cfg)
	if engine == nil {
		return nil, &InitError{ModelID: cfg.ModelID, Err: ErrNotInitialized}
	}
	if cfg.CacheDir != "" {
		if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
			return nil, &InitError{ModelID: cfg.ModelID, Err: fmt.Errorf("create cache dir: %w", err)}
		}
	}
	return &OrtEmbedder{
		enc:      engine,
		cfg:      cfg,
		memCache: make(map[string]Embedding),
	}, nil
}

// OrtOpener returns an Opener that loads the ONNX embedder from cfg.
func OrtOpener(cfg EmbedderConfig) Opener {
	return func(ctx context.Context) (Embedder, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return NewOrtEmbedder(cfg)
	}
}

func withModelID(cfg EmbedderConfig) EmbedderConfig {
	if cfg.ModelID == "" && cfg.ModelPath != "" {
		cfg.ModelID = filepath.Base(cfg.ModelPath)
	}
	return cfg
}

// Close releases the engine. Later calls fail with ErrNotInitialized.
func (o *OrtEmbedder) Close() error {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.enc != nil {
		o.enc.Close()
		o.enc = nil
	}
	o.cacheMu.Lock()
	o.memCache = nil
	o.cacheMu.Unlock()
	return nil
}

// ModelID returns the identifier used for cache keys.
func (o *OrtEmbedder) ModelID() string {
	return o.cfg.ModelID
}

// EmbedText embeds a single string with caching. The text is normalized
// first, so inputs differing only in case or spacing share a vector.
func (o *OrtEmbedder) EmbedText(ctx context.Context, text string) (Embedding, error) {
	if o == nil {
		return nil, ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	normalized := NormalizeText(text)
	key := o.cacheKey(normalized)

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.enc == nil {
		return nil, ErrNotInitialized
	}
	if vec := o.getFromCache(key); vec != nil {
		return vec, nil
	}
	if vec, err := o.loadFromDisk(key); err == nil {
		o.storeInMemory(key, vec)
		return cloneVector(vec), nil
	}
	vec, err := o.enc.Encode(normalized)
	if err != nil {
		return nil, &EmbedError{Text: normalized, Err: err}
	}
	if len(vec) == 0 {
		return nil, &EmbedError{Text: normalized, Err: fmt.Errorf("engine returned an empty vector")}
	}
	o.storeInMemory(key, vec)
	_ = o.saveToDisk(key, vec)
	return cloneVector(vec), nil
}

// EmbedTexts embeds a slice of strings sequentially.
func (o *OrtEmbedder) EmbedTexts(ctx context.Context, texts []string) ([]Embedding, error) {
	out := make([]Embedding, len(texts))
	for i, t := range texts {
		vec, err := o.EmbedText(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (o *OrtEmbedder) cacheKey(text string) string {
	h := sha1.New()
	_, _ = io.WriteString(h, o.cfg.ModelID)
	_, _ = io.WriteString(h, "|")
	_, _ = io.WriteString(h, text)
	return hex.EncodeToString(h.Sum(nil))
}

func (o *OrtEmbedder) getFromCache(key string) Embedding {
	o.cacheMu.Lock()
	defer o.cacheMu.Unlock()
	if vec, ok := o.memCache[key]; ok {
		return cloneVector(vec)
	}
	return nil
}

func (o *OrtEmbedder) storeInMemory(key string, vec Embedding) {
	o.cacheMu.Lock()
	defer o.cacheMu.Unlock()
	if o.memCache != nil {
		o.memCache[key] = cloneVector(vec)
	}
}

func (o *OrtEmbedder) loadFromDisk(key string) (Embedding, error) {
	if o.cfg.CacheDir == "" {
		return nil, os.ErrNotExist
	}
	path := filepath.Join(o.cfg.CacheDir, key+".bin")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("cache file too small: %s", path)
	}
	length := int(binary.LittleEndian.Uint32(data[:4]))
	data = data[4:]
	if length == 0 || len(data) != length*4 {
		return nil, fmt.Errorf("cache length mismatch: %s", path)
	}
	vec := make(Embedding, length)
	for i := 0; i < length; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4 : (i+1)*4]))
	}
	return vec, nil
}

func (o *OrtEmbedder) saveToDisk(key string, vec Embedding) error {
	if o.cfg.CacheDir == "" {
		return nil
	}
	path := filepath.Join(o.cfg.CacheDir, key+".bin")
	tmp := path + ".tmp"
	buf := make([]byte, 4+len(vec)*4)
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(vec)))
	off := 4
	for _, v := range vec {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
		off += 4
	}
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func cloneVector(vec []float32) Embedding {
	if vec == nil {
		return nil
	}
	out := make(Embedding, len(vec))
	copy(out, vec)
	return out
}
