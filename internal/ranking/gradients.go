// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

package ranking

import "gonum.org/v1/gonum/blas/blas32"

// gradients is one shard's contribution to a batch update. Embedding
// gradients are sparse, keyed by table row.
type gradients struct {
	dense  []*denseGrad
	users  map[int][]float32
	movies map[int][]float32

	sqErr    float64
	examples int
}

func newGradients(m *Model) *gradients {
	g := &gradients{
		users:  make(map[int][]float32),
		movies: make(map[int][]float32),
	}
	for _, l := range m.layers {
		g.dense = append(g.dense, newDenseGrad(l))
	}
	return g
}

func (g *gradients) reset() {
	for _, d := range g.dense {
		d.zero()
	}
	clear(g.users)
	clear(g.movies)
	g.sqErr = 0
	g.examples = 0
}

// addRow accumulates v into rows[r], allocating on first touch.
func addRow(rows map[int][]float32, r int, v []float32) {
	dst, ok := rows[r]
	if !ok {
		rows[r] = append([]float32(nil), v...)
		return
	}
	blas32.Axpy(1, vec(v), vec(dst))
}

// merge adds o into g. Callers merge shards in a fixed order.
func (g *gradients) merge(o *gradients) {
	for l, d := range o.dense {
		g.dense[l].add(d)
	}
	for r, v := range o.users {
		addRow(g.users, r, v)
	}
	for r, v := range o.movies {
		addRow(g.movies, r, v)
	}
	g.sqErr += o.sqErr
	g.examples += o.examples
}
