// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver
)

// openDuckDB opens a private in-memory DuckDB used only to scan files.
func openDuckDB() (*sql.DB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return db, nil
}

// sqlString quotes s as a DuckDB string literal. Table functions such as
// read_csv_auto do not take bind parameters for their path argument.
func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// loadCSV reads the CSV releases (ml-20m, ml-25m, ml-latest-small), joining
// ratings to titles on movieId.
func loadCSV(ctx context.Context, dir string) (*Dataset, error) {
	ratingsPath := filepath.Join(dir, "ratings.csv")
	moviesPath := filepath.Join(dir, "movies.csv")
	if !fileExists(ratingsPath) || !fileExists(moviesPath) {
		return nil, fmt.Errorf("%w: expected %s and %s", ErrDatasetNotFound, ratingsPath, moviesPath)
	}

	db, err := openDuckDB()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	ratingsSQL := fmt.Sprintf(`
		SELECT CAST(r.userId AS VARCHAR), CAST(m.title AS VARCHAR), CAST(r.rating AS DOUBLE)
		FROM read_csv_auto(%s, header = true) AS r
		JOIN read_csv_auto(%s, header = true) AS m ON r.movieId = m.movieId
		ORDER BY r.userId, r.movieId, r.timestamp`,
		sqlString(ratingsPath), sqlString(moviesPath))

	moviesSQL := fmt.Sprintf(`
		SELECT CAST(title AS VARCHAR)
		FROM read_csv_auto(%s, header = true)
		ORDER BY movieId`, sqlString(moviesPath))

	ds := &Dataset{Source: "csv:" + dir}
	if ds.Ratings, err = queryRatings(ctx, db, ratingsSQL); err != nil {
		return nil, err
	}
	if ds.Movies, err = queryMovies(ctx, db, moviesSQL); err != nil {
		return nil, err
	}
	return ds, nil
}

// loadParquet reads pre-joined ratings.parquet (user_id, movie_title,
// user_rating) and movies.parquet (movie_title) in file order.
func loadParquet(ctx context.Context, dir string) (*Dataset, error) {
	ratingsPath := filepath.Join(dir, "ratings.parquet")
	moviesPath := filepath.Join(dir, "movies.parquet")
	if !fileExists(ratingsPath) || !fileExists(moviesPath) {
		return nil, fmt.Errorf("%w: expected %s and %s", ErrDatasetNotFound, ratingsPath, moviesPath)
	}

	db, err := openDuckDB()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	ratingsSQL := fmt.Sprintf(`
		SELECT CAST(user_id AS VARCHAR), CAST(movie_title AS VARCHAR), CAST(user_rating AS DOUBLE)
		FROM read_parquet(%s, file_row_number = true)
		ORDER BY file_row_number`, sqlString(ratingsPath))

	moviesSQL := fmt.Sprintf(`
		SELECT CAST(movie_title AS VARCHAR)
		FROM read_parquet(%s, file_row_number = true)
		ORDER BY file_row_number`, sqlString(moviesPath))

	ds := &Dataset{Source: "parquet:" + dir}
	if ds.Ratings, err = queryRatings(ctx, db, ratingsSQL); err != nil {
		return nil, err
	}
	if ds.Movies, err = queryMovies(ctx, db, moviesSQL); err != nil {
		return nil, err
	}
	return ds, nil
}

func queryRatings(ctx context.Context, db *sql.DB, query string) ([]Rating, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query ratings: %w", err)
	}
	defer rows.Close()

	var out []Rating
	for rows.Next() {
		var (
			r      Rating
			rating float64
		)
		if err := rows.Scan(&r.UserID, &r.MovieTitle, &rating); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		r.UserRating = float32(rating)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ratings: %w", err)
	}
	return out, nil
}

func queryMovies(ctx context.Context, db *sql.DB, query string) ([]Movie, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query movies: %w", err)
	}
	defer rows.Close()

	var out []Movie
	for rows.Next() {
		var m Movie
		if err := rows.Scan(&m.MovieTitle); err != nil {
			return nil, fmt.Errorf("scan movie: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movies: %w", err)
	}
	return out, nil
}
