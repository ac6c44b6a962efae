// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

// Package dataset loads MovieLens ratings and the movie catalog from a local
// training channel directory.
//
// Supported layouts (Options.Format):
//
//	tfds     <dir>/movielens/<variant>-ratings/<version>/*.tfrecord*  (and -movies)
//	raw      <dir>/ml-<variant>/ as extracted from the GroupLens archives
//	parquet  <dir>/ratings.parquet and <dir>/movies.parquet
//	auto     tfds when its directory exists, otherwise raw
//
// Every source yields records in a stable order so that a seeded Shuffle is
// reproducible across runs.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
)

// ErrDatasetNotFound is returned when the expected files are absent.
var ErrDatasetNotFound = errors.New("dataset not found")

// Format names.
const (
	FormatAuto    = "auto"
	FormatTFDS    = "tfds"
	FormatRaw     = "raw"
	FormatParquet = "parquet"
)

// Rating is one (user, movie, rating) observation.
type Rating struct {
	UserID     string
	MovieTitle string
	UserRating float32
}

// Movie is one catalog entry.
type Movie struct {
	MovieTitle string
}

// Options selects the dataset to load.
type Options struct {
	Dir     string
	Variant string
	Format  string

	// Version pins the tfds version directory; empty picks the newest.
	Version string
}

// Dataset is the loaded ratings and catalog.
type Dataset struct {
	Ratings []Rating
	Movies  []Movie

	// Source describes where the data came from, for logging.
	Source string
}

// Load reads ratings and movies according to opts.
func Load(ctx context.Context, opts Options) (*Dataset, error) {
	if opts.Variant == "" {
		opts.Variant = "100k"
	}

	format := opts.Format
	if format == "" || format == FormatAuto {
		format = FormatRaw
		if dirExists(tfdsDir(opts.Dir, opts.Variant, "ratings")) {
			format = FormatTFDS
		}
	}

	var (
		ds  *Dataset
		err error
	)
	switch format {
	case FormatTFDS:
		ds, err = loadTFDS(ctx, opts)
	case FormatRaw:
		ds, err = loadRaw(ctx, opts)
	case FormatParquet:
		ds, err = loadParquet(ctx, opts.Dir)
	default:
		return nil, fmt.Errorf("unknown dataset format %q", opts.Format)
	}
	if err != nil {
		return nil, err
	}
	if len(ds.Ratings) == 0 {
		return nil, fmt.Errorf("%w: no ratings in %s", ErrDatasetNotFound, ds.Source)
	}
	return ds, nil
}

// Shuffled returns a copy of ratings permuted by a Fisher-Yates shuffle
// seeded with seed.
func Shuffled(ratings []Rating, seed int64) []Rating {
	out := make([]Rating, len(ratings))
	copy(out, ratings)
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible split, not security
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// Split returns the leading fraction of ratings as train and the rest as
// test. Both share the backing array of ratings.
func Split(ratings []Rating, fraction float64) (train, test []Rating) {
	n := int(math.Round(float64(len(ratings)) * fraction))
	n = max(0, min(n, len(ratings)))
	return ratings[:n], ratings[n:]
}

// UniqueUserIDs returns the sorted distinct user IDs in ratings.
func UniqueUserIDs(ratings []Rating) []string {
	return unique(ratings, func(r Rating) string { return r.UserID })
}

// UniqueMovieTitles returns the sorted distinct movie titles in ratings.
func UniqueMovieTitles(ratings []Rating) []string {
	return unique(ratings, func(r Rating) string { return r.MovieTitle })
}

// CatalogTitles returns catalog titles in catalog order with duplicates
// removed.
func CatalogTitles(movies []Movie) []string {
	seen := make(map[string]struct{}, len(movies))
	out := make([]string, 0, len(movies))
	for _, m := range movies {
		if _, ok := seen[m.MovieTitle]; ok {
			continue
		}
		seen[m.MovieTitle] = struct{}{}
		out = append(out, m.MovieTitle)
	}
	return out
}

func unique(ratings []Rating, key func(Rating) string) []string {
	set := make(map[string]struct{})
	for _, r := range ratings {
		set[key(r)] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func rawDir(dir, variant string) string {
	return filepath.Join(dir, "ml-"+variant)
}
