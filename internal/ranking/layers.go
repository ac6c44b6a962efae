// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

package ranking

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// embeddingInitRange matches the uniform initializer used for the towers.
const embeddingInitRange = 0.05

// vec wraps a contiguous slice as a BLAS vector.
func vec(v []float32) blas32.Vector {
	return blas32.Vector{N: len(v), Inc: 1, Data: v}
}

// general allocates a zeroed row-major rows×cols matrix.
func general(rows, cols int) blas32.General {
	return blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: make([]float32, rows*cols)}
}

// Embedding is a Rows×Dim table, one row per vocabulary slot.
type Embedding struct {
	Rows  int
	Dim   int
	Table blas32.General
}

func newEmbedding(rows, dim int, rng *rand.Rand) *Embedding {
	e := &Embedding{Rows: rows, Dim: dim, Table: general(rows, dim)}
	for i := range e.Table.Data {
		e.Table.Data[i] = float32((rng.Float64()*2 - 1) * embeddingInitRange)
	}
	return e
}

// Row returns row i as a slice aliasing the table.
func (e *Embedding) Row(i int) []float32 {
	return e.Table.Data[i*e.Table.Stride : i*e.Table.Stride+e.Dim]
}

// Activation is a dense layer's output nonlinearity.
type Activation int

const (
	Linear Activation = iota
	ReLU
)

func (a Activation) String() string {
	if a == ReLU {
		return "relu"
	}
	return "linear"
}

// Dense is a fully connected layer with an In×Out kernel.
type Dense struct {
	In         int
	Out        int
	Kernel     blas32.General
	Bias       blas32.Vector
	Activation Activation
}

// newDense draws the kernel from Glorot-uniform and zeroes the bias.
func newDense(in, out int, act Activation, rng *rand.Rand) *Dense {
	d := &Dense{
		In:         in,
		Out:        out,
		Kernel:     general(in, out),
		Bias:       vec(make([]float32, out)),
		Activation: act,
	}
	limit := math.Sqrt(6 / float64(in+out))
	for i := range d.Kernel.Data {
		d.Kernel.Data[i] = float32((rng.Float64()*2 - 1) * limit)
	}
	return d
}

// forward writes act(Kᵀx + b) into y.
func (d *Dense) forward(x, y []float32) {
	copy(y, d.Bias.Data)
	blas32.Gemv(blas.Trans, 1, d.Kernel, vec(x), 1, vec(y))
	if d.Activation == ReLU {
		for j, v := range y {
			if v < 0 {
				y[j] = 0
			}
		}
	}
}

// denseGrad accumulates gradients for one Dense layer.
type denseGrad struct {
	Kernel blas32.General
	Bias   blas32.Vector
}

func newDenseGrad(d *Dense) *denseGrad {
	return &denseGrad{Kernel: general(d.In, d.Out), Bias: vec(make([]float32, d.Out))}
}

func (g *denseGrad) zero() {
	clear(g.Kernel.Data)
	clear(g.Bias.Data)
}

func (g *denseGrad) add(o *denseGrad) {
	blas32.Axpy(1, vec(o.Kernel.Data), vec(g.Kernel.Data))
	blas32.Axpy(1, o.Bias, g.Bias)
}

// backward accumulates parameter gradients into g given the layer input x,
// its output y and the loss gradient dy with respect to y. dy is
// overwritten with the pre-activation gradient. If dx is non-nil it
// receives the gradient with respect to x.
func (d *Dense) backward(x, y, dy []float32, g *denseGrad, dx []float32) {
	if d.Activation == ReLU {
		for j, v := range y {
			if v <= 0 {
				dy[j] = 0
			}
		}
	}
	blas32.Axpy(1, vec(dy), g.Bias)
	if dx != nil {
		blas32.Gemv(blas.NoTrans, 1, d.Kernel, vec(dy), 0, vec(dx))
	}
	blas32.Ger(1, vec(x), vec(dy), g.Kernel)
}
