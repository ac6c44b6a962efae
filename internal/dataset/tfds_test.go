// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

package dataset

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/tomtom215/reelrank/internal/tfrecord"
)

// writeTFDS writes a one-shard tfds layout for variant/version.
func writeTFDS(t *testing.T, dir, variant, version string, ratings []Rating, titles []string) {
	t.Helper()

	write := func(kind string, examples []*tfrecord.Example) {
		base := filepath.Join(tfdsDir(dir, variant, kind), version)
		mustMkdir(t, base)
		f, err := os.Create(filepath.Join(base, "movielens-train.tfrecord-00000-of-00001"))
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		w := tfrecord.NewWriter(f)
		for _, ex := range examples {
			if err := w.Write(ex.Marshal()); err != nil {
				t.Fatal(err)
			}
		}
	}

	var rex []*tfrecord.Example
	for _, r := range ratings {
		rex = append(rex, &tfrecord.Example{Features: map[string]tfrecord.Feature{
			"user_id":     tfrecord.BytesFeature(r.UserID),
			"movie_title": tfrecord.BytesFeature(r.MovieTitle),
			"user_rating": tfrecord.FloatFeature(r.UserRating),
			"timestamp":   tfrecord.Int64Feature(881250949),
		}})
	}
	write("ratings", rex)

	var mex []*tfrecord.Example
	for _, title := range titles {
		mex = append(mex, &tfrecord.Example{Features: map[string]tfrecord.Feature{
			"movie_title":  tfrecord.BytesFeature(title),
			"movie_genres": tfrecord.Int64Feature(4),
		}})
	}
	write("movies", mex)
}

func TestLoadTFDS(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ratings := []Rating{
		{UserID: "138", MovieTitle: "One Flew Over the Cuckoo's Nest (1975)", UserRating: 4},
		{UserID: "92", MovieTitle: "Strictly Ballroom (1992)", UserRating: 2},
	}
	titles := []string{"One Flew Over the Cuckoo's Nest (1975)", "Strictly Ballroom (1992)"}
	writeTFDS(t, dir, "100k", "0.1.0", ratings[:1], titles[:1])
	writeTFDS(t, dir, "100k", "0.1.1", ratings, titles)

	ds, err := Load(context.Background(), Options{Dir: dir, Variant: "100k", Format: FormatTFDS})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(ds.Ratings, ratings) {
		t.Errorf("ratings = %+v, want newest version", ds.Ratings)
	}
	if len(ds.Movies) != 2 {
		t.Errorf("movies = %+v", ds.Movies)
	}

	pinned, err := Load(context.Background(), Options{Dir: dir, Variant: "100k", Format: FormatTFDS, Version: "0.1.0"})
	if err != nil {
		t.Fatalf("Load(pinned) error = %v", err)
	}
	if len(pinned.Ratings) != 1 {
		t.Errorf("pinned ratings = %d, want 1", len(pinned.Ratings))
	}
}

func TestNewestVersion(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	for _, v := range []string{"0.1.1", "0.10.0", "0.9.3", "notes"} {
		mustMkdir(t, filepath.Join(base, v))
	}
	got, err := newestVersion(base)
	if err != nil {
		t.Fatal(err)
	}
	if got != "0.10.0" {
		t.Errorf("newestVersion() = %q, want 0.10.0", got)
	}
}
