// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

package index

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/tomtom215/reelrank/internal/ranking"
	"github.com/tomtom215/reelrank/internal/storage"
)

func testState() State {
	return State{
		K:          2,
		QueryTerms: []string{"1", "2"},
		QueryVectors: [][]float32{
			{0, 0}, // out of vocabulary
			{1, 0},
			{0, 1},
		},
		Candidates: []string{"Heat (1995)", "Casino (1995)", "Babe (1995)", "Twister (1996)"},
		CandidateVectors: [][]float32{
			{0.5, 0.1},
			{0.9, -1},
			{0.2, 0.8},
			{0.9, 0.3},
		},
	}
}

func titles(rs []Result) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Title
	}
	return out
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*State)
		wantErr error
	}{
		{"valid", func(*State) {}, nil},
		{"no candidates", func(s *State) { s.Candidates, s.CandidateVectors = nil, nil }, ErrEmptyIndex},
		{"vector count", func(s *State) { s.CandidateVectors = s.CandidateVectors[:3] }, ErrDimensionMismatch},
		{"ragged candidate", func(s *State) { s.CandidateVectors[2] = []float32{1} }, ErrDimensionMismatch},
		{"missing oov row", func(s *State) { s.QueryVectors = s.QueryVectors[1:] }, ErrDimensionMismatch},
		{"ragged query", func(s *State) { s.QueryVectors[1] = []float32{1, 2, 3} }, ErrDimensionMismatch},
		{"zero dimension", func(s *State) {
			s.Dimension = 0
			for i := range s.CandidateVectors {
				s.CandidateVectors[i] = nil
			}
		}, ErrDimensionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := testState()
			tt.mutate(&s)
			_, err := New(s)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestQuery(t *testing.T) {
	t.Parallel()

	b, err := New(testState())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		user string
		k    int
		want []string
	}{
		{"default k", "1", 0, []string{"Casino (1995)", "Twister (1996)"}},
		{"explicit k", "2", 3, []string{"Babe (1995)", "Twister (1996)", "Heat (1995)"}},
		{"k larger than catalog", "1", 50, []string{"Casino (1995)", "Twister (1996)", "Heat (1995)", "Babe (1995)"}},
		// The zero OOV row ties every candidate, so catalog order wins.
		{"unknown user", "999", 3, []string{"Heat (1995)", "Casino (1995)", "Babe (1995)"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := b.Query(tt.user, tt.k)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if !reflect.DeepEqual(titles(got), tt.want) {
				t.Errorf("Query(%q, %d) = %v, want %v", tt.user, tt.k, titles(got), tt.want)
			}
			for i := 1; i < len(got); i++ {
				if got[i].Score > got[i-1].Score {
					t.Errorf("results not sorted: %+v", got)
				}
			}
		})
	}

	if _, err := b.Query("1", -1); !errors.Is(err, ErrInvalidK) {
		t.Errorf("Query(k=-1) error = %v", err)
	}
	if _, err := b.QueryVector([]float32{1}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("QueryVector(short) error = %v", err)
	}
	if !b.Known("2") || b.Known("3") {
		t.Error("Known() mismatch")
	}
	if got := b.Summary(); got != (Summary{Candidates: 4, Queries: 2, Dimension: 2, K: 2}) {
		t.Errorf("Summary() = %+v", got)
	}
}

func TestQueryBatch(t *testing.T) {
	t.Parallel()

	b, err := New(testState())
	if err != nil {
		t.Fatal(err)
	}
	got, err := b.QueryBatch([]string{"1", "2"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0][0].Title != "Casino (1995)" || got[1][0].Title != "Babe (1995)" {
		t.Errorf("QueryBatch() = %+v", got)
	}
	if _, err := b.QueryBatch([]string{"1"}, -2); !errors.Is(err, ErrInvalidK) {
		t.Errorf("QueryBatch(k=-2) error = %v", err)
	}
}

func TestFromModelAndPersistence(t *testing.T) {
	t.Parallel()

	users := []string{"1", "2", "42"}
	movies := []string{"Heat (1995)", "Babe (1995)", "Twister (1996)"}
	m, err := ranking.NewModel(ranking.Config{EmbeddingDimension: 4, HiddenUnits: []int{8}, Seed: 3}, users, movies)
	if err != nil {
		t.Fatal(err)
	}

	catalog := append([]string{"Unrated (2001)"}, movies...)
	b, err := FromModel(m, catalog, 0)
	if err != nil {
		t.Fatalf("FromModel() error = %v", err)
	}
	if got := b.Summary(); got.Candidates != 4 || got.Queries != 3 || got.Dimension != 4 || got.K != DefaultK {
		t.Errorf("Summary() = %+v", got)
	}

	// Property: a known user gets exactly min(k, catalog) titles.
	for _, k := range []int{1, 3, 10} {
		res, err := b.Query("42", k)
		if err != nil {
			t.Fatal(err)
		}
		if want := min(k, len(catalog)); len(res) != want {
			t.Errorf("Query(k=%d) returned %d results, want %d", k, len(res), want)
		}
	}

	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := b.Save(ctx, store, storage.Metadata{RunID: "run-7"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, meta, err := Load(ctx, store)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if meta.Kind != Kind || meta.RunID != "run-7" {
		t.Errorf("metadata = %+v", meta)
	}
	want, _ := b.Query("42", 4)
	got, _ := loaded.Query("42", 4)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("loaded index results = %+v, want %+v", got, want)
	}

	if _, err := FromModel(m, nil, 5); !errors.Is(err, ErrEmptyIndex) {
		t.Errorf("FromModel(nil) error = %v", err)
	}
}

func TestLoadWrongKind(t *testing.T) {
	t.Parallel()

	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := store.Save(ctx, ArtifactName, testState(), storage.Metadata{Kind: "scann"}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Load(ctx, store); !errors.Is(err, ErrWrongKind) {
		t.Errorf("Load() error = %v, want ErrWrongKind", err)
	}
}
