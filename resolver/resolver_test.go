package resolver

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveEndToEnd(t *testing.T) {
	r := newReadyResolver(t, newLexiconEngine())
	ctx := context.Background()

	code, err := r.Resolve(ctx, "is the check engine light active?")
	require.NoError(t, err)
	assert.Equal(t, "0101", code)

	st := r.State()
	assert.Equal(t, StatusSuccess, st.Status)
	assert.Equal(t, "0101", st.BestCode)
	require.Len(t, st.Results, 1)
	assert.Equal(t, "check engine light on", st.Results[0].Phrase)
	assert.InDelta(t, 1.0, st.Results[0].Score, 1e-6)

	code, err = r.Resolve(ctx, "banana")
	require.NoError(t, err)
	assert.Equal(t, NoMatch, code)

	st = r.State()
	assert.Equal(t, StatusSuccess, st.Status)
	assert.Equal(t, NoMatch, st.BestCode)
	assert.Empty(t, st.Results)
}

func TestResolveIsCaseInsensitive(t *testing.T) {
	r := newReadyResolver(t, newLexiconEngine())
	ctx := context.Background()

	lower, err := r.ResolveAsync(ctx, "coolant temperature please").Await(ctx)
	require.NoError(t, err)
	upper, err := r.ResolveAsync(ctx, "  COOLANT   Temperature PLEASE ").Await(ctx)
	require.NoError(t, err)

	assert.Equal(t, "0105", lower.Code)
	assert.Equal(t, lower.Code, upper.Code)
	assert.Equal(t, lower.Query, upper.Query)
	require.Len(t, upper.Results, len(lower.Results))
	for i := range lower.Results {
		assert.Equal(t, lower.Results[i].Score, upper.Results[i].Score)
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	r := newReadyResolver(t, newLexiconEngine())
	ctx := context.Background()

	first, err := r.ResolveAsync(ctx, "check engine light").Await(ctx)
	require.NoError(t, err)
	second, err := r.ResolveAsync(ctx, "check engine light").Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, first.Results, second.Results)
	assert.NotEqual(t, first.RequestID, second.RequestID)
	assert.Greater(t, second.Seq, first.Seq)
}

func TestResolveRanksAllMatchesAboveThreshold(t *testing.T) {
	corpus, err := NewCorpus([]PhraseEntry{
		{Code: "0105", Phrase: "coolant temperature"},
		{Code: "0101", Phrase: "check engine light"},
		{Code: "0105", Phrase: "engine coolant temperature"},
	})
	require.NoError(t, err)
	engine := newLexiconEngine()
	cfg := Config{}
	cfg.SetThreshold(0.5)
	r, err := New(cfg, corpus, lexiconOpener(engine), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	require.NoError(t, r.Initialize(context.Background()))

	res, err := r.ResolveAsync(context.Background(), "coolant temp").Await(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "coolant temperature", res.Results[0].Phrase)
	assert.Equal(t, "engine coolant temperature", res.Results[1].Phrase)
	assert.GreaterOrEqual(t, res.Results[0].Score, res.Results[1].Score)
	for _, hit := range res.Results {
		assert.GreaterOrEqual(t, hit.Score, float32(0.5))
	}
	assert.Equal(t, "0105", res.Code)
}

func TestResolveBeforeInitialize(t *testing.T) {
	r := newTestResolver(t, newLexiconEngine(), twoCodeCorpus(t))

	_, err := r.Resolve(context.Background(), "check engine light")
	require.ErrorIs(t, err, ErrNotInitialized)
	assert.Equal(t, StatusEmpty, r.State().Status)
	assert.False(t, r.Ready())
}

func TestInitializeTransitionsAndIsIdempotent(t *testing.T) {
	engine := newLexiconEngine()
	r := newTestResolver(t, engine, twoCodeCorpus(t))
	rec := &stateRecorder{}
	r.Subscribe(rec.record)

	require.NoError(t, r.Initialize(context.Background()))
	assert.Equal(t, []Status{StatusLoading, StatusEmpty}, rec.statuses())
	assert.True(t, r.Ready())
	assert.Equal(t, 1, engine.callsFor("check engine light on"))

	require.NoError(t, r.Initialize(context.Background()))
	assert.Equal(t, 1, engine.callsFor("check engine light on"))
	assert.Len(t, rec.snapshot(), 2)
}

func TestInitializeFailure(t *testing.T) {
	boom := errors.New("missing model file")
	r, err := New(Config{}, twoCodeCorpus(t), func(context.Context) (Embedder, error) {
		return nil, boom
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	err = r.Initialize(context.Background())
	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	require.ErrorIs(t, err, boom)

	st := r.State()
	assert.Equal(t, StatusError, st.Status)
	assert.Contains(t, st.Message, "missing model file")
	assert.False(t, r.Ready())
}

func TestInitializeCorpusEmbedFailure(t *testing.T) {
	engine := newLexiconEngine()
	engine.failOn("coolant temperature", errEngine)
	r := newTestResolver(t, engine, twoCodeCorpus(t))

	err := r.Initialize(context.Background())
	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "lexicon", initErr.ModelID)
	require.ErrorIs(t, err, errEngine)
	assert.True(t, engine.isClosed())
	assert.Equal(t, StatusError, r.State().Status)
}

func TestResolveEmbedFailure(t *testing.T) {
	engine := newLexiconEngine()
	r := newReadyResolver(t, engine)
	engine.failOn("boom", errEngine)

	_, err := r.Resolve(context.Background(), "BOOM")
	var embedErr *EmbedError
	require.ErrorAs(t, err, &embedErr)
	assert.Equal(t, "boom", embedErr.Text)

	st := r.State()
	assert.Equal(t, StatusError, st.Status)
	assert.Contains(t, st.Message, "engine exploded")

	// The resolver stays usable after a failed call.
	code, err := r.Resolve(context.Background(), "check engine light")
	require.NoError(t, err)
	assert.Equal(t, "0101", code)
	assert.Equal(t, StatusSuccess, r.State().Status)
}

func TestResolveCanceledContext(t *testing.T) {
	r := newReadyResolver(t, newLexiconEngine())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Resolve(ctx, "check engine light")
	require.ErrorIs(t, err, context.Canceled)
	require.Eventually(t, func() bool {
		return r.State().Status == StatusError
	}, time.Second, 5*time.Millisecond)
}

func TestSupersededResultIsNotApplied(t *testing.T) {
	engine := newLexiconEngine()
	r := newReadyResolver(t, engine)
	rec := &stateRecorder{}
	r.Subscribe(rec.record)
	ctx := context.Background()

	// Corpus phrases are cached by Initialize, so hold a query the engine has not seen.
	release := engine.hold("coolant temperature now")
	first := r.ResolveAsync(ctx, "coolant temperature now")
	require.Equal(t, "coolant temperature now", <-engine.started)

	second := r.ResolveAsync(ctx, "check engine light")
	release()

	firstRes, err := first.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0105", firstRes.Code)

	secondRes, err := second.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0101", secondRes.Code)

	st := r.State()
	assert.Equal(t, StatusSuccess, st.Status)
	assert.Equal(t, "0101", st.BestCode)
	assert.Equal(t, secondRes.Seq, st.Seq)

	for _, s := range rec.snapshot() {
		if s.Status == StatusSuccess {
			assert.NotEqual(t, firstRes.Seq, s.Seq, "superseded result reached the state")
		}
	}
}

func TestCloseAbandonsQueuedWork(t *testing.T) {
	engine := newLexiconEngine()
	r, err := New(Config{}, twoCodeCorpus(t), lexiconOpener(engine), nil)
	require.NoError(t, err)
	require.NoError(t, r.Initialize(context.Background()))
	ctx := context.Background()

	release := engine.hold("coolant temperature now")
	running := r.ResolveAsync(ctx, "coolant temperature now")
	require.Equal(t, "coolant temperature now", <-engine.started)
	queued := r.ResolveAsync(ctx, "check engine light")
	before := r.State()

	closed := make(chan error, 1)
	go func() { closed <- r.Close() }()
	require.Eventually(t, func() bool {
		r.worker.mu.RLock()
		defer r.worker.mu.RUnlock()
		return r.worker.closed
	}, time.Second, 5*time.Millisecond)
	release()
	require.NoError(t, <-closed)

	_, err = running.Await(ctx)
	require.NoError(t, err)
	_, err = queued.Await(ctx)
	require.ErrorIs(t, err, ErrClosed)

	assert.Equal(t, before, r.State())
	assert.True(t, engine.isClosed())

	_, err = r.Resolve(ctx, "check engine light")
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, r.Initialize(ctx), ErrClosed)
	require.NoError(t, r.Close())
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(Config{}, Corpus{}, lexiconOpener(newLexiconEngine()), nil)
	var loadErr *CorpusLoadError
	require.ErrorAs(t, err, &loadErr)

	_, err = New(Config{}, twoCodeCorpus(t), nil, nil)
	require.Error(t, err)

	for _, bad := range []float32{1.5, float32(math.NaN()), float32(math.Inf(-1))} {
		cfg := Config{}
		cfg.SetThreshold(bad)
		_, err = New(cfg, twoCodeCorpus(t), lexiconOpener(newLexiconEngine()), nil)
		require.Error(t, err, "threshold %v", bad)
	}
}

func TestResolveWithZeroThresholdKeepsOrthogonalPhrases(t *testing.T) {
	cfg := Config{}
	cfg.SetThreshold(0)
	r, err := New(cfg, twoCodeCorpus(t), lexiconOpener(newLexiconEngine()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	require.NoError(t, r.Initialize(context.Background()))
	assert.Equal(t, float32(0), r.Config().MinScore())

	res, err := r.ResolveAsync(context.Background(), "coolant").Await(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "0105", res.Code)
	assert.Equal(t, "0101", res.Results[1].Code)
	assert.Equal(t, float32(0), res.Results[1].Score)
}
