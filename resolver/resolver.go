package resolver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Resolution is the outcome of one query.
type Resolution struct {
	RequestID string
	// Query is the normalized query text.
	Query   string
	Code    string
	Results []SimilarityResult
	// Seq is the dispatch token; it matches State.Seq when the result was applied.
	Seq uint64
}

// Resolver maps free-form queries to command codes by embedding similarity.
// Embedding work runs on a single dedicated worker; observers follow progress
// through State and Subscribe.
type Resolver struct {
	cfg    Config
	corpus Corpus
	open   Opener
	logger *log.Logger

	worker *Worker
	store  *StateStore
	index  *InMemoryIndex

	mu       sync.RWMutex
	embedder Embedder

	ready     atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
}

// New constructs a resolver over corpus. The embedder is not loaded until
// Initialize is called.
func New(cfg Config, corpus Corpus, open Opener, logger *log.Logger) (*Resolver, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if corpus.Len() == 0 {
		return nil, &CorpusLoadError{Entry: -1, Err: errors.New("corpus has no entries")}
	}
	if open == nil {
		return nil, errors.New("embedder opener is required")
	}
	return &Resolver{
		cfg:    cfg,
		corpus: corpus,
		open:   open,
		logger: logger,
		worker: NewWorker(cfg.QueueSize),
		store:  NewStateStore(),
		index:  NewInMemoryIndex(),
	}, nil
}

// Config returns a copy of the active configuration.
func (r *Resolver) Config() Config {
	return r.cfg.Clone()
}

// Corpus returns the corpus the resolver was built with.
func (r *Resolver) Corpus() Corpus {
	return r.corpus
}

// Ready reports whether Initialize has completed successfully.
func (r *Resolver) Ready() bool {
	return r.ready.Load()
}

// State returns a snapshot of the current state.
func (r *Resolver) State() State {
	return r.store.Snapshot()
}

// Subscribe registers fn for every state change. See StateStore.Subscribe.
func (r *Resolver) Subscribe(fn func(State)) func() {
	return r.store.Subscribe(fn)
}

// Initialize loads the embedder and embeds every corpus phrase. It blocks
// until done and is a no-op once it has succeeded.
func (r *Resolver) Initialize(ctx context.Context) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if r.ready.Load() {
		return nil
	}
	token, ok := r.store.dispatch()
	if !ok {
		return ErrClosed
	}
	r.store.begin(token, "")
	f, err := Spawn(ctx, r.worker, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.initialize(ctx, token)
	})
	if err != nil {
		r.store.finish(token, State{Status: StatusError, Message: err.Error()})
		return err
	}
	_, err = f.Await(ctx)
	return err
}

// initialize runs on the worker.
func (r *Resolver) initialize(ctx context.Context, token uint64) (err error) {
	if r.ready.Load() {
		r.store.finish(token, State{Status: StatusEmpty})
		return nil
	}
	ctx, span := startSpan(ctx, "resolver.initialize", attribute.Int("corpus.size", r.corpus.Len()))
	defer func() {
		endSpan(span, err)
		if err != nil {
			r.store.finish(token, State{Status: StatusError, Message: err.Error()})
			r.logf("Initialization failed: %v", err)
		}
	}()
	if err = ctx.Err(); err != nil {
		return err
	}

	embedder, err := r.open(ctx)
	if err != nil {
		var initErr *InitError
		if !errors.As(err, &initErr) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			err = &InitError{Err: err}
		}
		return err
	}
	entries := r.corpus.Entries()
	phrases := make([]string, len(entries))
	for i, e := range entries {
		phrases[i] = e.Phrase
	}
	phrases = NormalizeAll(phrases)
	vecs, err := embedder.EmbedTexts(ctx, phrases)
	if err != nil {
		_ = embedder.Close()
		return &InitError{ModelID: embedder.ModelID(), Err: fmt.Errorf("embed corpus: %w", err)}
	}
	candidates := make([]Candidate, len(entries))
	for i, e := range entries {
		candidates[i] = Candidate{Phrase: phrases[i], Code: e.Code, Embedding: vecs[i]}
	}
	r.index.Replace(candidates)

	r.mu.Lock()
	r.embedder = embedder
	r.mu.Unlock()
	r.ready.Store(true)

	r.store.finish(token, State{Status: StatusEmpty})
	r.logf("Loaded %d phrases for %d codes (model %s)", len(candidates), len(r.corpus.Codes()), embedder.ModelID())
	return nil
}

// Resolve blocks until query is resolved and returns its command code, or
// NoMatch when no phrase reaches the threshold.
func (r *Resolver) Resolve(ctx context.Context, query string) (string, error) {
	res, err := r.ResolveAsync(ctx, query).Await(ctx)
	if err != nil {
		return "", err
	}
	return res.Code, nil
}

// ResolveAsync dispatches query to the worker and returns immediately unless
// the queue is full. The state moves to Loading at once; the result is
// applied to the state only if no newer call was dispatched meanwhile, but it
// is always delivered to the returned future.
func (r *Resolver) ResolveAsync(ctx context.Context, query string) *Future[Resolution] {
	if r.closed.Load() {
		return Completed(Resolution{}, ErrClosed)
	}
	if !r.ready.Load() {
		return Completed(Resolution{}, ErrNotInitialized)
	}
	token, ok := r.store.dispatch()
	if !ok {
		return Completed(Resolution{}, ErrClosed)
	}
	normalized := NormalizeText(query)
	reqID := uuid.NewString()
	r.store.begin(token, normalized)
	f, err := Spawn(ctx, r.worker, func(ctx context.Context) (Resolution, error) {
		return r.resolve(ctx, token, reqID, normalized)
	})
	if err != nil {
		r.store.finish(token, State{Status: StatusError, Query: normalized, Message: err.Error()})
		r.logf("[%s] dispatch failed: %v", reqID, err)
		return Completed(Resolution{RequestID: reqID, Query: normalized, Seq: token}, err)
	}
	return f
}

// resolve runs on the worker.
func (r *Resolver) resolve(ctx context.Context, token uint64, reqID, query string) (res Resolution, err error) {
	res = Resolution{RequestID: reqID, Query: query, Seq: token}
	ctx, span := startSpan(ctx, "resolver.resolve",
		attribute.String("request.id", reqID),
		attribute.Int64("resolver.seq", int64(token)),
	)
	defer func() {
		endSpan(span, err)
		if err != nil {
			r.store.finish(token, State{Status: StatusError, Query: query, Message: err.Error()})
			r.logf("[%s] resolve %q failed: %v", reqID, query, err)
		}
	}()
	if err = ctx.Err(); err != nil {
		return res, err
	}

	r.mu.RLock()
	embedder := r.embedder
	r.mu.RUnlock()
	if embedder == nil {
		return res, ErrNotInitialized
	}
	qvec, err := embedder.EmbedText(ctx, query)
	if err != nil {
		return res, err
	}

	ranked := r.index.Match(query, qvec, float32(math.Inf(-1)))
	threshold := r.cfg.MinScore()
	cut := sort.Search(len(ranked), func(i int) bool { return ranked[i].Score < threshold })
	res.Results = ranked[:cut:cut]
	res.Code = NoMatch
	if len(res.Results) > 0 {
		res.Code = res.Results[0].Code
	}
	if len(ranked) > 0 {
		best := ranked[0]
		r.logf("[%s] %q most similar to %q (%s, score %.4f)", reqID, query, best.Phrase, best.Code, best.Score)
	}
	r.logf("[%s] %q -> %s (%d matches >= %.2f)", reqID, query, res.Code, len(res.Results), threshold)
	span.SetAttributes(
		attribute.String("resolver.code", res.Code),
		attribute.Int("resolver.matches", len(res.Results)),
	)

	applied := r.store.finish(token, State{
		Status:   StatusSuccess,
		Query:    query,
		Results:  res.Results,
		BestCode: res.Code,
	})
	if !applied {
		r.logf("[%s] superseded result discarded", reqID)
	}
	return res, nil
}

// Close tears the resolver down. Queued calls fail with ErrClosed and no
// state change is published afterwards.
func (r *Resolver) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		r.store.close()
		r.worker.Close()
		r.ready.Store(false)
		r.mu.Lock()
		if r.embedder != nil {
			err = r.embedder.Close()
			r.embedder = nil
		}
		r.mu.Unlock()
	})
	return err
}

func (r *Resolver) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}
