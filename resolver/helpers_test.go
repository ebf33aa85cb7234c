package resolver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/stretchr/testify/require"
)

// lexiconEngine embeds text by counting keyword concepts. Unknown words
// contribute nothing, so text without any keyword yields a zero vector.
type lexiconEngine struct {
	mu      sync.Mutex
	calls   map[string]int
	fail    map[string]error
	gates   map[string]chan struct{}
	started chan string
	closed  bool
}

var lexicon = map[string]int{
	"check":       0,
	"engine":      0,
	"light":       0,
	"malfunction": 0,
	"coolant":     1,
	"temperature": 1,
	"temp":        1,
	"rpm":         2,
	"speed":       2,
	"revolutions": 2,
}

const lexiconDims = 3

func newLexiconEngine() *lexiconEngine {
	return &lexiconEngine{
		calls:   make(map[string]int),
		fail:    make(map[string]error),
		gates:   make(map[string]chan struct{}),
		started: make(chan string, 16),
	}
}

// hold makes Encode(text) block until the returned release func is called.
func (e *lexiconEngine) hold(text string) func() {
	gate := make(chan struct{})
	e.mu.Lock()
	e.gates[text] = gate
	e.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (e *lexiconEngine) failOn(text string, err error) {
	e.mu.Lock()
	e.fail[text] = err
	e.mu.Unlock()
}

func (e *lexiconEngine) Encode(text string) ([]float32, error) {
	e.mu.Lock()
	e.calls[text]++
	err := e.fail[text]
	gate := e.gates[text]
	e.mu.Unlock()
	if gate != nil {
		e.started <- text
		<-gate
	}
	if err != nil {
		return nil, err
	}
	vec := make([]float32, lexiconDims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if dim, ok := lexicon[w]; ok {
			vec[dim]++
		}
	}
	return vec, nil
}

func (e *lexiconEngine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

func (e *lexiconEngine) callsFor(text string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[text]
}

func (e *lexiconEngine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func lexiconOpener(engine *lexiconEngine) Opener {
	return func(ctx context.Context) (Embedder, error) {
		emb, err := NewEngineEmbedder(EmbedderConfig{ModelID: "lexicon"}, engine)
		if err != nil {
			return nil, err
		}
		return emb, nil
	}
}

func twoCodeCorpus(t *testing.T) Corpus {
	t.Helper()
	corpus, err := NewCorpus([]PhraseEntry{
		{Code: "0101", Phrase: "check engine light on"},
		{Code: "0105", Phrase: "coolant temperature"},
	})
	require.NoError(t, err)
	return corpus
}

func newTestResolver(t *testing.T, engine *lexiconEngine, corpus Corpus) *Resolver {
	t.Helper()
	r, err := New(Config{}, corpus, lexiconOpener(engine), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func newReadyResolver(t *testing.T, engine *lexiconEngine) *Resolver {
	t.Helper()
	r := newTestResolver(t, engine, twoCodeCorpus(t))
	require.NoError(t, r.Initialize(context.Background()))
	return r
}

// stateRecorder collects every state published by a store.
type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (rec *stateRecorder) record(st State) {
	rec.mu.Lock()
	rec.states = append(rec.states, st)
	rec.mu.Unlock()
}

func (rec *stateRecorder) snapshot() []State {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]State, len(rec.states))
	copy(out, rec.states)
	return out
}

func (rec *stateRecorder) statuses() []Status {
	var out []Status
	for _, st := range rec.snapshot() {
		out = append(out, st.Status)
	}
	return out
}

var errEngine = errors.New("engine exploded")
