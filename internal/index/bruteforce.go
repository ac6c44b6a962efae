// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

// Package index provides exact top-k retrieval of movie titles for a user.
//
// A BruteForce index holds the user tower's embedding table and the
// embedding of every candidate title. A query scores all candidates with a
// single matrix-vector product against the user's embedding and keeps the k
// highest. Unknown users are scored with the out-of-vocabulary row, as the
// model itself would.
//
// An index is immutable once built and safe for concurrent queries.
package index

import (
	"container/heap"
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/tomtom215/reelrank/internal/ranking"
	"github.com/tomtom215/reelrank/internal/storage"
)

// DefaultK is the number of results a query returns when k is zero.
const DefaultK = 10

// Artifact naming inside a storage.Store.
const (
	ArtifactName = "index"
	Kind         = "brute_force"
)

var (
	// ErrEmptyIndex is returned when building an index with no candidates.
	ErrEmptyIndex = errors.New("index has no candidates")

	// ErrInvalidK is returned for a negative result count.
	ErrInvalidK = errors.New("k must not be negative")

	// ErrDimensionMismatch is returned when vectors disagree in width.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrWrongKind is returned when a stored artifact is not a brute-force index.
	ErrWrongKind = errors.New("artifact is not a brute-force index")
)

// Result is one retrieved title.
type Result struct {
	Title string  `json:"title"`
	Score float32 `json:"score"`
}

// State is the serializable form of an index.
type State struct {
	// K is the default number of results.
	K int

	Dimension int

	// QueryTerms is the user vocabulary. QueryVectors has one more row than
	// QueryTerms; row 0 is the out-of-vocabulary embedding.
	QueryTerms   []string
	QueryVectors [][]float32

	Candidates       []string
	CandidateVectors [][]float32
}

// BruteForce scores every candidate for each query.
type BruteForce struct {
	state  State
	lookup map[string]int
	// candidates is CandidateVectors packed row-major, one row per title.
	candidates blas32.General
}

// New validates state and returns an index over it.
//
//nolint:gocritic // State is consumed by value and retained
func New(state State) (*BruteForce, error) {
	if len(state.Candidates) == 0 {
		return nil, ErrEmptyIndex
	}
	if len(state.Candidates) != len(state.CandidateVectors) {
		return nil, fmt.Errorf("%w: %d candidates, %d vectors", ErrDimensionMismatch, len(state.Candidates), len(state.CandidateVectors))
	}
	if len(state.QueryVectors) != len(state.QueryTerms)+1 {
		return nil, fmt.Errorf("%w: %d query terms, %d query vectors", ErrDimensionMismatch, len(state.QueryTerms), len(state.QueryVectors))
	}
	if state.K <= 0 {
		state.K = DefaultK
	}
	if state.Dimension == 0 {
		state.Dimension = len(state.CandidateVectors[0])
	}
	if state.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension %d", ErrDimensionMismatch, state.Dimension)
	}
	for i, v := range state.CandidateVectors {
		if len(v) != state.Dimension {
			return nil, fmt.Errorf("%w: candidate %q has %d, want %d", ErrDimensionMismatch, state.Candidates[i], len(v), state.Dimension)
		}
	}
	for i, v := range state.QueryVectors {
		if len(v) != state.Dimension {
			return nil, fmt.Errorf("%w: query row %d has %d, want %d", ErrDimensionMismatch, i, len(v), state.Dimension)
		}
	}

	lookup := make(map[string]int, len(state.QueryTerms))
	for i, term := range state.QueryTerms {
		lookup[term] = i + 1
	}
	packed := blas32.General{
		Rows:   len(state.CandidateVectors),
		Cols:   state.Dimension,
		Stride: state.Dimension,
		Data:   make([]float32, 0, len(state.CandidateVectors)*state.Dimension),
	}
	for _, v := range state.CandidateVectors {
		packed.Data = append(packed.Data, v...)
	}
	return &BruteForce{state: state, lookup: lookup, candidates: packed}, nil
}

// FromModel builds an index from a trained model's user tower and the movie
// tower embeddings of candidates. Candidates outside the movie vocabulary
// get the out-of-vocabulary movie embedding.
func FromModel(m *ranking.Model, candidates []string, k int) (*BruteForce, error) {
	if len(candidates) == 0 {
		return nil, ErrEmptyIndex
	}
	vectors := make([][]float32, len(candidates))
	for i, title := range candidates {
		vectors[i] = m.MovieVector(title)
	}
	return New(State{
		K:                k,
		Dimension:        m.Config().EmbeddingDimension,
		QueryTerms:       m.Users().Terms(),
		QueryVectors:     m.UserTable(),
		Candidates:       append([]string(nil), candidates...),
		CandidateVectors: vectors,
	})
}

// Summary describes an index for logging.
type Summary struct {
	Candidates int `json:"candidates"`
	Queries    int `json:"queries"`
	Dimension  int `json:"dimension"`
	K          int `json:"k"`
}

// Summary returns the index dimensions.
func (b *BruteForce) Summary() Summary {
	return Summary{
		Candidates: len(b.state.Candidates),
		Queries:    len(b.state.QueryTerms),
		Dimension:  b.state.Dimension,
		K:          b.state.K,
	}
}

// K returns the default result count.
func (b *BruteForce) K() int { return b.state.K }

// Known reports whether userID is in the query vocabulary.
func (b *BruteForce) Known(userID string) bool {
	_, ok := b.lookup[userID]
	return ok
}

// Query returns the top min(k, candidates) titles for userID, best first.
// k == 0 uses the index default.
func (b *BruteForce) Query(userID string, k int) ([]Result, error) {
	return b.QueryVector(b.state.QueryVectors[b.lookup[userID]], k)
}

// QueryBatch runs Query for each user.
func (b *BruteForce) QueryBatch(userIDs []string, k int) ([][]Result, error) {
	out := make([][]Result, len(userIDs))
	for i, id := range userIDs {
		res, err := b.Query(id, k)
		if err != nil {
			return nil, err
		}
		out[i] = res
	}
	return out, nil
}

// QueryVector returns the top candidates for an arbitrary query embedding.
// Equal scores are ordered by candidate position.
func (b *BruteForce) QueryVector(q []float32, k int) ([]Result, error) {
	if k < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidK, k)
	}
	if len(q) != b.state.Dimension {
		return nil, fmt.Errorf("%w: query has %d, want %d", ErrDimensionMismatch, len(q), b.state.Dimension)
	}
	if k == 0 {
		k = b.state.K
	}
	if k > len(b.state.Candidates) {
		k = len(b.state.Candidates)
	}

	scores := make([]float32, b.candidates.Rows)
	blas32.Gemv(blas.NoTrans, 1, b.candidates,
		blas32.Vector{N: len(q), Inc: 1, Data: q},
		0, blas32.Vector{N: len(scores), Inc: 1, Data: scores})

	h := make(topK, 0, k)
	for i, s := range scores {
		if len(h) < k {
			heap.Push(&h, scored{index: i, score: s})
			continue
		}
		if better(scored{index: i, score: s}, h[0]) {
			h[0] = scored{index: i, score: s}
			heap.Fix(&h, 0)
		}
	}

	out := make([]Result, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		top := heap.Pop(&h).(scored)
		out[i] = Result{Title: b.state.Candidates[top.index], Score: top.score}
	}
	return out, nil
}

// Save writes the index to store. meta.Kind is set to Kind.
//
//nolint:gocritic // meta passed by value is acceptable for this write operation
func (b *BruteForce) Save(ctx context.Context, store *storage.Store, meta storage.Metadata) (storage.Metadata, error) {
	meta.Kind = Kind
	return store.Save(ctx, ArtifactName, b.state, meta)
}

// Load reads an index previously written with Save.
func Load(ctx context.Context, store *storage.Store) (*BruteForce, *storage.Metadata, error) {
	var state State
	meta, err := store.Load(ctx, ArtifactName, &state)
	if err != nil {
		return nil, nil, err
	}
	if meta.Kind != Kind {
		return nil, nil, fmt.Errorf("%w: %q", ErrWrongKind, meta.Kind)
	}
	b, err := New(state)
	if err != nil {
		return nil, nil, err
	}
	return b, meta, nil
}

type scored struct {
	index int
	score float32
}

// better reports whether a ranks ahead of b.
func better(a, b scored) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.index < b.index
}

// topK is a min-heap on rank: the root is the worst kept result.
type topK []scored

func (h topK) Len() int            { return len(h) }
func (h topK) Less(i, j int) bool  { return better(h[j], h[i]) }
func (h topK) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *topK) Push(x interface{}) { *h = append(*h, x.(scored)) }
func (h *topK) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
