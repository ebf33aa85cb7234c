package resolver

import (
	"math"
	"sort"
	"sync"
)

// Candidate is a corpus phrase paired with its precomputed embedding.
type Candidate struct {
	Phrase    string
	Code      string
	Embedding Embedding
}

// Match scores every candidate against the query embedding and returns those
// at or above threshold, best first. Equal scores keep candidate order.
func Match(query string, qvec Embedding, candidates []Candidate, threshold float32) []SimilarityResult {
	if len(qvec) == 0 || len(candidates) == 0 {
		return nil
	}
	results := make([]SimilarityResult, 0, len(candidates))
	for _, c := range candidates {
		score := CosineSimilarity(qvec, c.Embedding)
		if score < threshold {
			continue
		}
		results = append(results, SimilarityResult{
			Query:              query,
			Phrase:             c.Phrase,
			Code:               c.Code,
			QueryEmbedding:     qvec,
			CandidateEmbedding: c.Embedding,
			Score:              score,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// CosineSimilarity returns dot(a,b)/(|a||b|). Empty, zero-norm or
// mismatched vectors score 0.
func CosineSimilarity(a, b Embedding) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		fa := float64(a[i])
		fb := float64(b[i])
		dot += fa * fb
		na += fa * fa
		nb += fb * fb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// InMemoryIndex holds the embedded corpus for brute-force matching.
type InMemoryIndex struct {
	mu    sync.RWMutex
	items []Candidate
}

// NewInMemoryIndex constructs an empty index.
func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{}
}

// Replace swaps the stored candidates atomically.
func (idx *InMemoryIndex) Replace(items []Candidate) {
	cloned := make([]Candidate, len(items))
	for i, it := range items {
		cloned[i] = Candidate{
			Phrase:    it.Phrase,
			Code:      it.Code,
			Embedding: cloneVector(it.Embedding),
		}
	}
	idx.mu.Lock()
	idx.items = cloned
	idx.mu.Unlock()
}

// Size returns the current number of candidates stored.
func (idx *InMemoryIndex) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.items)
}

// Candidates returns the stored candidates. The slice must not be modified.
func (idx *InMemoryIndex) Candidates() []Candidate {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.items
}

// Match runs Match against the stored candidates.
func (idx *InMemoryIndex) Match(query string, qvec Embedding, threshold float32) []SimilarityResult {
	return Match(query, qvec, idx.Candidates(), threshold)
}
