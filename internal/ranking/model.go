// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

package ranking

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// ErrShapeMismatch is returned when paired inputs differ in length.
var ErrShapeMismatch = errors.New("shape mismatch")

// Config describes the model architecture.
type Config struct {
	// EmbeddingDimension is the width of both towers.
	// Default: 256.
	EmbeddingDimension int

	// HiddenUnits are the ReLU layer widths before the final linear unit.
	// Default: [256, 64].
	HiddenUnits []int

	// Seed drives weight initialization.
	// DefaultConfig uses 42; 0 is a valid seed.
	Seed int64
}

// DefaultConfig returns the reference architecture.
func DefaultConfig() Config {
	return Config{
		EmbeddingDimension: 256,
		HiddenUnits:        []int{256, 64},
		Seed:               42,
	}
}

// Model is the two-tower rating model.
type Model struct {
	mu sync.RWMutex

	config Config

	users  *Vocabulary
	movies *Vocabulary

	userEmbedding  *Embedding
	movieEmbedding *Embedding
	layers         []*Dense

	trained       bool
	version       int
	lastTrainedAt time.Time
}

// NewModel builds an untrained model over the given vocabularies. A zero
// embedding dimension or empty hidden layout takes its default; the seed is
// used as given, including 0.
func NewModel(cfg Config, userIDs, movieTitles []string) (*Model, error) {
	if cfg.EmbeddingDimension <= 0 {
		cfg.EmbeddingDimension = 256
	}
	if len(cfg.HiddenUnits) == 0 {
		cfg.HiddenUnits = []int{256, 64}
	}
	for _, u := range cfg.HiddenUnits {
		if u <= 0 {
			return nil, fmt.Errorf("hidden layer width %d must be positive", u)
		}
	}

	users, err := NewVocabulary(userIDs)
	if err != nil {
		return nil, fmt.Errorf("user vocabulary: %w", err)
	}
	movies, err := NewVocabulary(movieTitles)
	if err != nil {
		return nil, fmt.Errorf("movie vocabulary: %w", err)
	}

	//nolint:gosec // G404: math/rand is acceptable for weight initialization
	rng := rand.New(rand.NewSource(cfg.Seed))

	m := &Model{
		config:         cfg,
		users:          users,
		movies:         movies,
		userEmbedding:  newEmbedding(users.Rows(), cfg.EmbeddingDimension, rng),
		movieEmbedding: newEmbedding(movies.Rows(), cfg.EmbeddingDimension, rng),
	}

	in := 2 * cfg.EmbeddingDimension
	for _, units := range cfg.HiddenUnits {
		m.layers = append(m.layers, newDense(in, units, ReLU, rng))
		in = units
	}
	m.layers = append(m.layers, newDense(in, 1, Linear, rng))
	return m, nil
}

// Config returns the architecture the model was built with.
func (m *Model) Config() Config {
	cfg := m.config
	cfg.HiddenUnits = append([]int(nil), m.config.HiddenUnits...)
	return cfg
}

// Users returns the user vocabulary.
func (m *Model) Users() *Vocabulary { return m.users }

// Movies returns the movie vocabulary.
func (m *Model) Movies() *Vocabulary { return m.movies }

// Layers returns the dense head, first layer first.
func (m *Model) Layers() []*Dense { return m.layers }

// ParamCount is the total number of trainable scalars.
func (m *Model) ParamCount() int {
	n := len(m.userEmbedding.Table.Data) + len(m.movieEmbedding.Table.Data)
	for _, l := range m.layers {
		n += len(l.Kernel.Data) + len(l.Bias.Data)
	}
	return n
}

// IsTrained reports whether Fit has completed at least once.
func (m *Model) IsTrained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trained
}

// Version counts completed Fit calls.
func (m *Model) Version() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// LastTrainedAt is when Fit last completed.
func (m *Model) LastTrainedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastTrainedAt
}

// markTrained must be called with the write lock held.
func (m *Model) markTrained() {
	m.trained = true
	m.version++
	m.lastTrainedAt = time.Now()
}

// Predict returns the predicted rating for each (userIDs[i], movieTitles[i]).
func (m *Model) Predict(userIDs, movieTitles []string) ([]float32, error) {
	if len(userIDs) != len(movieTitles) {
		return nil, fmt.Errorf("%w: %d user ids, %d movie titles", ErrShapeMismatch, len(userIDs), len(movieTitles))
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	ws := newWorkspace(m)
	out := make([]float32, len(userIDs))
	for i := range userIDs {
		out[i] = ws.forward(m.users.Lookup(userIDs[i]), m.movies.Lookup(movieTitles[i]))
	}
	return out, nil
}

// UserVector returns a copy of the user tower output for userID.
func (m *Model) UserVector(userID string) []float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]float32(nil), m.userEmbedding.Row(m.users.Lookup(userID))...)
}

// MovieVector returns a copy of the movie tower output for title.
func (m *Model) MovieVector(title string) []float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]float32(nil), m.movieEmbedding.Row(m.movies.Lookup(title))...)
}

// UserTable returns a copy of the full user embedding table, row 0 being
// the out-of-vocabulary row.
func (m *Model) UserTable() [][]float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]float32, m.userEmbedding.Rows)
	for i := range out {
		out[i] = append([]float32(nil), m.userEmbedding.Row(i)...)
	}
	return out
}

// workspace holds per-goroutine activation buffers for one example.
type workspace struct {
	m    *Model
	acts [][]float32 // acts[0] is the concatenated embedding, acts[l+1] the output of layer l
	grad [][]float32 // grad[l] is dLoss/d acts[l]
}

func newWorkspace(m *Model) *workspace {
	ws := &workspace{m: m}
	width := 2 * m.config.EmbeddingDimension
	ws.acts = append(ws.acts, make([]float32, width))
	ws.grad = append(ws.grad, make([]float32, width))
	for _, l := range m.layers {
		ws.acts = append(ws.acts, make([]float32, l.Out))
		ws.grad = append(ws.grad, make([]float32, l.Out))
	}
	return ws
}

// forward runs one example through the network and returns the prediction.
func (ws *workspace) forward(userRow, movieRow int) float32 {
	dim := ws.m.config.EmbeddingDimension
	copy(ws.acts[0][:dim], ws.m.userEmbedding.Row(userRow))
	copy(ws.acts[0][dim:], ws.m.movieEmbedding.Row(movieRow))
	for l, layer := range ws.m.layers {
		layer.forward(ws.acts[l], ws.acts[l+1])
	}
	return ws.acts[len(ws.acts)-1][0]
}

// backward propagates dPred through the activations left by forward,
// accumulating into g. The embedding gradient is left in ws.grad[0].
func (ws *workspace) backward(dPred float32, g *gradients) {
	last := len(ws.m.layers)
	ws.grad[last][0] = dPred
	for l := last - 1; l >= 0; l-- {
		ws.m.layers[l].backward(ws.acts[l], ws.acts[l+1], ws.grad[l+1], g.dense[l], ws.grad[l])
	}
}
