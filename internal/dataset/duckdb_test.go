// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

package dataset

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadCSVVariant(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	raw := filepath.Join(dir, "ml-latest-small")
	mustMkdir(t, raw)
	mustWrite(t, filepath.Join(raw, "movies.csv"),
		"movieId,title,genres\n"+
			"1,Toy Story (1995),Adventure|Animation\n"+
			"2,\"American President, The (1995)\",Comedy|Drama|Romance\n")
	mustWrite(t, filepath.Join(raw, "ratings.csv"),
		"userId,movieId,rating,timestamp\n"+
			"2,1,3.5,964982703\n"+
			"1,2,4.0,964981247\n"+
			"1,1,4.5,964982224\n")

	ds, err := Load(context.Background(), Options{Dir: dir, Variant: "latest-small", Format: FormatRaw})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := []Rating{
		{UserID: "1", MovieTitle: "Toy Story (1995)", UserRating: 4.5},
		{UserID: "1", MovieTitle: "American President, The (1995)", UserRating: 4},
		{UserID: "2", MovieTitle: "Toy Story (1995)", UserRating: 3.5},
	}
	if !reflect.DeepEqual(ds.Ratings, want) {
		t.Errorf("ratings = %+v", ds.Ratings)
	}
	if !reflect.DeepEqual(ds.Movies, []Movie{{"Toy Story (1995)"}, {"American President, The (1995)"}}) {
		t.Errorf("movies = %+v", ds.Movies)
	}
}

func TestLoadParquet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	db, err := openDuckDB()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	stmts := []string{
		fmt.Sprintf(`COPY (SELECT * FROM (VALUES ('7', 'Heat (1995)', 5.0), ('3', 'Alien (1979)', 2.5))
			AS t(user_id, movie_title, user_rating)) TO %s (FORMAT PARQUET)`,
			sqlString(filepath.Join(dir, "ratings.parquet"))),
		fmt.Sprintf(`COPY (SELECT * FROM (VALUES ('Heat (1995)'), ('Alien (1979)')) AS t(movie_title))
			TO %s (FORMAT PARQUET)`, sqlString(filepath.Join(dir, "movies.parquet"))),
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("write parquet: %v", err)
		}
	}

	ds, err := Load(context.Background(), Options{Dir: dir, Format: FormatParquet})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []Rating{
		{UserID: "7", MovieTitle: "Heat (1995)", UserRating: 5},
		{UserID: "3", MovieTitle: "Alien (1979)", UserRating: 2.5},
	}
	if !reflect.DeepEqual(ds.Ratings, want) {
		t.Errorf("ratings = %+v", ds.Ratings)
	}
	if len(ds.Movies) != 2 {
		t.Errorf("movies = %+v", ds.Movies)
	}
}

func TestSQLString(t *testing.T) {
	t.Parallel()

	if got := sqlString("/data/o'brien/ratings.csv"); got != "'/data/o''brien/ratings.csv'" {
		t.Errorf("sqlString() = %s", got)
	}
}
