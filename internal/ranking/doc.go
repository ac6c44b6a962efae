// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

// Package ranking implements the two-tower rating model and its trainer.
//
// The model maps a (user id, movie title) pair to a predicted rating:
//
//	user id     -> Vocabulary -> Embedding(users+1, d) --+
//	                                                     +-> concat -> Dense(256, relu)
//	movie title -> Vocabulary -> Embedding(movies+1, d) -+           -> Dense(64, relu)
//	                                                                 -> Dense(1)
//
// Row 0 of each embedding table is the out-of-vocabulary slot. Training
// minimizes mean squared error with Adagrad; embedding rows are updated
// sparsely, only for rows present in the batch.
//
// # Determinism
//
// A batch is cut into a fixed number of contiguous shards whose gradients
// are computed concurrently and then summed in shard order. For a fixed
// seed and shard count, Fit produces bit-identical weights regardless of
// how many workers run or how they are scheduled.
//
// # Thread Safety
//
// Fit and Evaluate take the model's write and read locks respectively, so
// predictions may be served while no training is in progress.
package ranking
