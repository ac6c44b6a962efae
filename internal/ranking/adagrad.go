// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

package ranking

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Adagrad defaults.
const (
	DefaultInitialAccumulator = 0.1
	DefaultEpsilon            = 1e-7
)

// Adagrad keeps a per-parameter sum of squared gradients and scales each
// step by its inverse square root:
//
//	accum += g*g
//	param -= lr * g / (sqrt(accum) + epsilon)
type Adagrad struct {
	LearningRate float32
	Epsilon      float32

	userAccum  []float32
	movieAccum []float32
	dense      []*denseGrad // accumulators shaped like the layers
	scale      []float32
}

// NewAdagrad allocates accumulators for every parameter of m.
func NewAdagrad(m *Model, learningRate float64) *Adagrad {
	o := &Adagrad{
		LearningRate: float32(learningRate),
		Epsilon:      DefaultEpsilon,
		userAccum:    filled(len(m.userEmbedding.Table.Data), DefaultInitialAccumulator),
		movieAccum:   filled(len(m.movieEmbedding.Table.Data), DefaultInitialAccumulator),
	}
	for _, l := range m.layers {
		acc := newDenseGrad(l)
		fill(acc.Kernel.Data, DefaultInitialAccumulator)
		fill(acc.Bias.Data, DefaultInitialAccumulator)
		o.dense = append(o.dense, acc)
	}
	return o
}

// apply performs one update of m from g. Embedding rows absent from the
// batch keep both their weights and accumulators.
func (o *Adagrad) apply(m *Model, g *gradients) {
	for l, layer := range m.layers {
		o.step(layer.Kernel.Data, g.dense[l].Kernel.Data, o.dense[l].Kernel.Data)
		o.step(layer.Bias.Data, g.dense[l].Bias.Data, o.dense[l].Bias.Data)
	}
	o.sparse(m.userEmbedding, o.userAccum, g.users)
	o.sparse(m.movieEmbedding, o.movieAccum, g.movies)
}

// step updates params in place. Elementwise products go through a
// diagonal band matrix so both passes stay inside BLAS.
func (o *Adagrad) step(params, grads, accum []float32) {
	g := vec(grads)
	blas32.Sbmv(1, diagonal(grads), g, 1, vec(accum))

	if cap(o.scale) < len(grads) {
		o.scale = make([]float32, len(grads))
	}
	scale := o.scale[:len(grads)]
	for i, a := range accum {
		scale[i] = 1 / (float32(math.Sqrt(float64(a))) + o.Epsilon)
	}
	blas32.Sbmv(-o.LearningRate, diagonal(scale), g, 1, vec(params))
}

// diagonal views d as the main diagonal of a band matrix with no
// off-diagonals.
func diagonal(d []float32) blas32.SymmetricBand {
	return blas32.SymmetricBand{Uplo: blas.Upper, N: len(d), K: 0, Stride: 1, Data: d}
}

func (o *Adagrad) sparse(table *Embedding, accum []float32, rows map[int][]float32) {
	keys := make([]int, 0, len(rows))
	for r := range rows {
		keys = append(keys, r)
	}
	sort.Ints(keys)
	for _, r := range keys {
		lo, hi := r*table.Dim, (r+1)*table.Dim
		o.step(table.Table.Data[lo:hi], rows[r], accum[lo:hi])
	}
}

func filled(n int, v float32) []float32 {
	out := make([]float32, n)
	fill(out, v)
	return out
}

func fill(dst []float32, v float32) {
	for i := range dst {
		dst[i] = v
	}
}
