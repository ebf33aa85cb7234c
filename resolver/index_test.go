package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity(Embedding{1, 2, 3}, Embedding{2, 4, 6}), 1e-6)
	assert.InDelta(t, 0.0, CosineSimilarity(Embedding{1, 0}, Embedding{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, CosineSimilarity(Embedding{1, 0}, Embedding{-1, 0}), 1e-6)

	assert.Zero(t, CosineSimilarity(nil, Embedding{1}))
	assert.Zero(t, CosineSimilarity(Embedding{0, 0}, Embedding{1, 1}))
	assert.Zero(t, CosineSimilarity(Embedding{1, 2}, Embedding{1, 2, 3}))
}

func TestMatchThresholdIsInclusive(t *testing.T) {
	candidates := []Candidate{
		{Phrase: "exact", Code: "A", Embedding: Embedding{1, 0}},
		{Phrase: "orthogonal", Code: "B", Embedding: Embedding{0, 1}},
	}
	results := Match("q", Embedding{1, 0}, candidates, 1.0)
	require.Len(t, results, 1)
	assert.Equal(t, "A", results[0].Code)

	results = Match("q", Embedding{1, 0}, candidates, 0)
	assert.Len(t, results, 2)
}

func TestMatchSortsDescendingAndStable(t *testing.T) {
	candidates := []Candidate{
		{Phrase: "low", Code: "L", Embedding: Embedding{1, 1}},
		{Phrase: "tie-1", Code: "T1", Embedding: Embedding{1, 0}},
		{Phrase: "tie-2", Code: "T2", Embedding: Embedding{2, 0}},
		{Phrase: "none", Code: "N", Embedding: Embedding{0, 1}},
	}
	results := Match("q", Embedding{1, 0}, candidates, 0.5)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"tie-1", "tie-2", "low"}, []string{results[0].Phrase, results[1].Phrase, results[2].Phrase})
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	assert.Equal(t, "q", results[0].Query)
	assert.Equal(t, Embedding{1, 0}, results[0].QueryEmbedding)
	assert.Equal(t, Embedding{1, 0}, results[0].CandidateEmbedding)
}

func TestMatchEmptyInputs(t *testing.T) {
	assert.Empty(t, Match("q", Embedding{1}, nil, 0.5))
	assert.Empty(t, Match("q", nil, []Candidate{{Embedding: Embedding{1}}}, 0.5))
	assert.Empty(t, Match("q", Embedding{1, 0}, []Candidate{{Embedding: Embedding{0, 1}}}, 0.5))
}

func TestInMemoryIndex(t *testing.T) {
	idx := NewInMemoryIndex()
	assert.Zero(t, idx.Size())

	vec := Embedding{0, 1}
	idx.Replace([]Candidate{
		{Phrase: "read vehicle speed", Code: "010D", Embedding: vec},
		{Phrase: "read engine rpm", Code: "010C", Embedding: Embedding{1, 0}},
	})
	vec[1] = 42
	assert.Equal(t, 2, idx.Size())
	assert.Equal(t, Embedding{0, 1}, idx.Candidates()[0].Embedding)

	results := idx.Match("speed", Embedding{0, 3}, 0.9)
	require.Len(t, results, 1)
	assert.Equal(t, "010D", results[0].Code)

	idx.Replace(nil)
	assert.Zero(t, idx.Size())
}
