// Package emb runs a sentence-embedding ONNX model and returns one pooled,
// L2-normalized vector per input text.
package emb

import (
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// DefaultMaxSeqLen is used when Config.MaxSeqLen is not set.
const DefaultMaxSeqLen = 128

// ErrClosed is returned by Encode after Close.
var ErrClosed = errors.New("emb: encoder is closed")

// Config describes the model assets loaded by Init.
type Config struct {
	OrtDLL        string
	ModelPath     string
	TokenizerPath string
	// Tokenizer selects a registered tokenizer backend ("sugarme" by default).
	Tokenizer string
	MaxSeqLen int
}

// Encoder wraps an ONNX Runtime session and a tokenizer. The zero value is
// unusable until Init succeeds.
type Encoder struct {
	mu         sync.Mutex
	session    *ort.DynamicAdvancedSession
	tok        Tokenizer
	inputNames []string
	outputName string
}

var (
	envMu   sync.Mutex
	envRefs int
)

func acquireEnvironment(sharedLib string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 && !ort.IsInitialized() {
		if sharedLib != "" {
			ort.SetSharedLibraryPath(sharedLib)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}
	envRefs++
	return nil
}

func releaseEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		return
	}
	envRefs--
	if envRefs == 0 && ort.IsInitialized() {
		_ = ort.DestroyEnvironment()
	}
}

// Init loads the tokenizer and the ONNX model. It must be called exactly once.
func (e *Encoder) Init(cfg Config) error {
	if cfg.ModelPath == "" {
		return errors.New("emb: model path is required")
	}
	if cfg.TokenizerPath == "" {
		return errors.New("emb: tokenizer path is required")
	}
	if cfg.MaxSeqLen <= 0 {
		cfg.MaxSeqLen = DefaultMaxSeqLen
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		return errors.New("emb: encoder already initialized")
	}

	tok, err := LoadTokenizer(cfg.Tokenizer, cfg.TokenizerPath, cfg.MaxSeqLen)
	if err != nil {
		return err
	}
	if err := acquireEnvironment(cfg.OrtDLL); err != nil {
		_ = tok.Close()
		return err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		_ = tok.Close()
		releaseEnvironment()
		return fmt.Errorf("read model io info: %w", err)
	}
	inputNames := make([]string, len(inputs))
	for i, in := range inputs {
		if !isKnownInput(in.Name) {
			_ = tok.Close()
			releaseEnvironment()
			return fmt.Errorf("emb: unsupported model input %q", in.Name)
		}
		inputNames[i] = in.Name
	}
	outputNames := make([]string, len(outputs))
	for i, out := range outputs {
		outputNames[i] = out.Name
	}
	outputName, err := pickOutput(outputNames)
	if err != nil {
		_ = tok.Close()
		releaseEnvironment()
		return err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		_ = tok.Close()
		releaseEnvironment()
		return fmt.Errorf("create session options: %w", err)
	}
	defer func() {
		_ = options.Destroy()
	}()

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, []string{outputName}, options)
	if err != nil {
		_ = tok.Close()
		releaseEnvironment()
		return fmt.Errorf("create onnx session: %w", err)
	}

	e.session = session
	e.tok = tok
	e.inputNames = inputNames
	e.outputName = outputName
	return nil
}

// Encode embeds a single text. Calls are serialized on the encoder.
func (e *Encoder) Encode(text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, ErrClosed
	}
	enc, err := e.tok.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	if len(enc.IDs) == 0 {
		return nil, errors.New("emb: tokenizer produced no tokens")
	}

	shape := ort.NewShape(1, int64(len(enc.IDs)))
	inputs := make([]ort.Value, len(e.inputNames))
	defer func() {
		for _, v := range inputs {
			if v != nil {
				_ = v.Destroy()
			}
		}
	}()
	for i, name := range e.inputNames {
		data, err := enc.Input(name)
		if err != nil {
			return nil, err
		}
		tensor, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("create tensor for %s: %w", name, err)
		}
		inputs[i] = tensor
	}

	outputs := []ort.Value{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			_ = outputs[0].Destroy()
		}
	}()
	tensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("emb: unsupported output type %T for %s", outputs[0], e.outputName)
	}
	vec, err := PoolOutput(tensor.GetData(), []int64(tensor.GetShape()), enc.AttentionMask)
	if err != nil {
		return nil, err
	}
	return Normalize(vec), nil
}

// Close releases the session, the tokenizer and this encoder's reference to
// the runtime environment.
func (e *Encoder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return
	}
	_ = e.session.Destroy()
	e.session = nil
	if e.tok != nil {
		_ = e.tok.Close()
		e.tok = nil
	}
	releaseEnvironment()
}

func isKnownInput(name string) bool {
	switch name {
	case inputIDs, inputAttentionMask, inputTokenTypeIDs:
		return true
	}
	return false
}

// pickOutput prefers an already pooled output over token states.
func pickOutput(names []string) (string, error) {
	if len(names) == 0 {
		return "", errors.New("emb: model has no outputs")
	}
	for _, want := range []string{"sentence_embedding", "last_hidden_state"} {
		for _, n := range names {
			if n == want {
				return n, nil
			}
		}
	}
	return names[0], nil
}
