// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/tomtom215/reelrank/internal/tfrecord"
)

func tfdsDir(dir, variant, kind string) string {
	return filepath.Join(dir, "movielens", variant+"-"+kind)
}

func loadTFDS(ctx context.Context, opts Options) (*Dataset, error) {
	ratingFiles, err := tfdsShards(tfdsDir(opts.Dir, opts.Variant, "ratings"), opts.Version)
	if err != nil {
		return nil, err
	}
	movieFiles, err := tfdsShards(tfdsDir(opts.Dir, opts.Variant, "movies"), opts.Version)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{Source: "tfds:" + filepath.Dir(ratingFiles[0])}

	for _, path := range ratingFiles {
		err := readExampleFile(ctx, path, func(ex *tfrecord.Example) error {
			userID, ok1 := ex.String("user_id")
			title, ok2 := ex.String("movie_title")
			rating, ok3 := ex.Float("user_rating")
			if !ok1 || !ok2 || !ok3 {
				return fmt.Errorf("rating record missing user_id, movie_title or user_rating")
			}
			ds.Ratings = append(ds.Ratings, Rating{UserID: userID, MovieTitle: title, UserRating: rating})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	for _, path := range movieFiles {
		err := readExampleFile(ctx, path, func(ex *tfrecord.Example) error {
			title, ok := ex.String("movie_title")
			if !ok {
				return fmt.Errorf("movie record missing movie_title")
			}
			ds.Movies = append(ds.Movies, Movie{MovieTitle: title})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// tfdsShards returns the sorted record shards under base/<version>.
func tfdsShards(base, version string) ([]string, error) {
	if version == "" {
		v, err := newestVersion(base)
		if err != nil {
			return nil, err
		}
		version = v
	}
	files, err := filepath.Glob(filepath.Join(base, version, "*.tfrecord*"))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", base, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no tfrecord shards in %s", ErrDatasetNotFound, filepath.Join(base, version))
	}
	sort.Strings(files)
	return files, nil
}

// newestVersion picks the highest dotted-numeric subdirectory of base.
func newestVersion(base string) (string, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDatasetNotFound, err)
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() && parseVersion(e.Name()) != nil {
			versions = append(versions, e.Name())
		}
	}
	if len(versions) == 0 {
		return "", fmt.Errorf("%w: no version directory in %s", ErrDatasetNotFound, base)
	}
	sort.Slice(versions, func(i, j int) bool {
		return versionLess(parseVersion(versions[i]), parseVersion(versions[j]))
	})
	return versions[len(versions)-1], nil
}

func parseVersion(s string) []int {
	parts := strings.Split(s, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil
		}
		out[i] = n
	}
	return out
}

func versionLess(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func readExampleFile(ctx context.Context, path string, fn func(*tfrecord.Example) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(path) //nolint:gosec // path comes from the configured data directory
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if err := tfrecord.ReadExamples(f, fn); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}
