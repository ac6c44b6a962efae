// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

package dataset

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// rawLayout describes one GroupLens archive whose files are delimited text.
type rawLayout struct {
	ratingsFile string
	moviesFile  string
	sep         string
}

var rawLayouts = map[string]rawLayout{
	"100k": {ratingsFile: "u.data", moviesFile: "u.item", sep: "|"},
	"1m":   {ratingsFile: "ratings.dat", moviesFile: "movies.dat", sep: "::"},
}

func loadRaw(ctx context.Context, opts Options) (*Dataset, error) {
	dir := rawDir(opts.Dir, opts.Variant)
	layout, ok := rawLayouts[opts.Variant]
	if !ok {
		// 20m, 25m and latest-small ship as CSV with quoted titles.
		return loadCSV(ctx, dir)
	}

	ratingsPath := filepath.Join(dir, layout.ratingsFile)
	moviesPath := filepath.Join(dir, layout.moviesFile)
	if !fileExists(ratingsPath) || !fileExists(moviesPath) {
		return nil, fmt.Errorf("%w: expected %s and %s", ErrDatasetNotFound, ratingsPath, moviesPath)
	}

	ds := &Dataset{Source: "raw:" + dir}
	titles := make(map[string]string)
	err := readDelimited(ctx, moviesPath, layout.sep, 2, func(fields []string) error {
		titles[fields[0]] = fields[1]
		ds.Movies = append(ds.Movies, Movie{MovieTitle: fields[1]})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// u.data is tab separated even though u.item uses pipes.
	ratingSep := layout.sep
	if opts.Variant == "100k" {
		ratingSep = "\t"
	}
	err = readDelimited(ctx, ratingsPath, ratingSep, 3, func(fields []string) error {
		title, ok := titles[fields[1]]
		if !ok {
			return fmt.Errorf("rating references unknown movie id %s", fields[1])
		}
		v, err := strconv.ParseFloat(fields[2], 32)
		if err != nil {
			return fmt.Errorf("bad rating %q: %w", fields[2], err)
		}
		ds.Ratings = append(ds.Ratings, Rating{UserID: fields[0], MovieTitle: title, UserRating: float32(v)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ds, nil
}

// readDelimited streams a Latin-1 text file line by line, splitting on sep.
// Lines with fewer than minFields fields are an error; blank lines are skipped.
func readDelimited(ctx context.Context, path, sep string, minFields int, fn func([]string) error) error {
	f, err := os.Open(path) //nolint:gosec // path comes from the configured data directory
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(charmap.ISO8859_1.NewDecoder().Reader(f))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	line := 0
	for sc.Scan() {
		line++
		if line%50000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		text := strings.TrimRight(sc.Text(), "\r")
		if text == "" {
			continue
		}
		fields := strings.Split(text, sep)
		if len(fields) < minFields {
			return fmt.Errorf("%s:%d: want at least %d fields, got %d", path, line, minFields, len(fields))
		}
		if err := fn(fields); err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}
