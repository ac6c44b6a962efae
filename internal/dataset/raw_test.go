// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

package dataset

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// writeRaw100k writes a tiny ml-100k layout with one Latin-1 title.
func writeRaw100k(t *testing.T, dir string) {
	t.Helper()
	raw := filepath.Join(dir, "ml-100k")
	mustMkdir(t, raw)
	mustWrite(t, filepath.Join(raw, "u.item"),
		"1|Toy Story (1995)|01-Jan-1995||http://x|0|1\n"+
			"2|Caf\xe9 au lait (1993)|01-Jan-1993||http://y|0|0\n")
	mustWrite(t, filepath.Join(raw, "u.data"),
		"196\t1\t3\t881250949\n"+
			"22\t2\t5\t881250950\n"+
			"\n"+
			"196\t2\t1\t881250951\n")
}

func TestLoadRaw100k(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeRaw100k(t, dir)

	ds, err := Load(context.Background(), Options{Dir: dir, Variant: "100k", Format: FormatRaw})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := []Rating{
		{UserID: "196", MovieTitle: "Toy Story (1995)", UserRating: 3},
		{UserID: "22", MovieTitle: "Café au lait (1993)", UserRating: 5},
		{UserID: "196", MovieTitle: "Café au lait (1993)", UserRating: 1},
	}
	if !reflect.DeepEqual(ds.Ratings, want) {
		t.Errorf("ratings = %+v", ds.Ratings)
	}
	if !reflect.DeepEqual(ds.Movies, []Movie{{"Toy Story (1995)"}, {"Café au lait (1993)"}}) {
		t.Errorf("movies = %+v", ds.Movies)
	}
	if !strings.HasPrefix(ds.Source, "raw:") {
		t.Errorf("source = %q", ds.Source)
	}
}

func TestLoadRaw1m(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	raw := filepath.Join(dir, "ml-1m")
	mustMkdir(t, raw)
	mustWrite(t, filepath.Join(raw, "movies.dat"), "1::Toy Story (1995)::Animation|Children's|Comedy\r\n")
	mustWrite(t, filepath.Join(raw, "ratings.dat"), "1::1::5::978300760\r\n2::1::4::978300761\r\n")

	ds, err := Load(context.Background(), Options{Dir: dir, Variant: "1m", Format: FormatRaw})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(ds.Ratings) != 2 || ds.Ratings[1] != (Rating{UserID: "2", MovieTitle: "Toy Story (1995)", UserRating: 4}) {
		t.Errorf("ratings = %+v", ds.Ratings)
	}
}

func TestLoadRawErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"unknown movie", "1\t99\t3\t0\n", "unknown movie id 99"},
		{"bad rating", "1\t1\tfive\t0\n", "bad rating"},
		{"short line", "1\t1\n", "want at least 3 fields"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			raw := filepath.Join(dir, "ml-100k")
			mustMkdir(t, raw)
			mustWrite(t, filepath.Join(raw, "u.item"), "1|Toy Story (1995)|\n")
			mustWrite(t, filepath.Join(raw, "u.data"), tt.data)

			_, err := Load(context.Background(), Options{Dir: dir, Variant: "100k", Format: FormatRaw})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
