// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

// Package storage persists trained artifacts as checksummed gob files.
//
// # Storage Format
//
// Each artifact is one file, <name>.gob.gz, holding a gob-encoded record of
// the artifact metadata and the gzip-compressed gob encoding of the payload.
// The metadata carries a SHA-256 checksum of the uncompressed payload, which
// Load verifies before decoding.
//
// # Thread Safety
//
// A Store serializes its own writes. Separate processes writing the same
// directory are not coordinated.
package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const fileSuffix = ".gob.gz"

var (
	// ErrChecksumMismatch is returned when a payload does not match the
	// checksum recorded at save time.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrNotFound is returned when no artifact with the given name exists.
	ErrNotFound = errors.New("artifact not found")
)

// Metadata describes a stored artifact.
type Metadata struct {
	// Name is the artifact name (e.g. "index").
	Name string `json:"name"`

	// Kind identifies the payload type so readers can reject the wrong one.
	Kind string `json:"kind"`

	// RunID is the training run that produced the artifact.
	RunID string `json:"run_id"`

	TrainedAt time.Time `json:"trained_at"`
	SavedAt   time.Time `json:"saved_at"`

	// Examples is the number of ratings used for training.
	Examples int `json:"examples"`

	UserCount  int `json:"user_count"`
	MovieCount int `json:"movie_count"`

	// Checksum is the SHA-256 of the uncompressed payload.
	Checksum string `json:"checksum"`

	// SizeBytes is the compressed payload size.
	SizeBytes int64 `json:"size_bytes"`

	TrainingDurationMS int64 `json:"training_duration_ms"`
}

// storedFile is the on-disk format for artifact files.
type storedFile struct {
	Metadata       Metadata
	CompressedData []byte
}

// Store reads and writes artifacts under one directory.
type Store struct {
	baseDir string
	mu      sync.RWMutex
}

// NewStore creates the directory if absent and returns a store rooted there.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil { //nolint:gosec // 0750 is acceptable for model storage
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// OpenStore returns a store over an existing directory.
func OpenStore(baseDir string) (*Store, error) {
	info, err := os.Stat(baseDir)
	if err != nil {
		return nil, fmt.Errorf("open storage directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open storage directory: %s is not a directory", baseDir)
	}
	return &Store{baseDir: baseDir}, nil
}

// Dir returns the store's directory.
func (s *Store) Dir() string {
	return s.baseDir
}

// Path returns the file path for an artifact.
func (s *Store) Path(name string) string {
	return filepath.Join(s.baseDir, name+fileSuffix)
}

// Save encodes data and writes it with meta. The returned metadata has the
// checksum, size and timestamps filled in.
//
//nolint:gocritic // meta passed by value is acceptable for this write operation
func (s *Store) Save(ctx context.Context, name string, data interface{}, meta Metadata) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return meta, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(data); err != nil {
		return meta, fmt.Errorf("encode %s: %w", name, err)
	}
	rawData := buf.Bytes()

	hash := sha256.Sum256(rawData)
	meta.Checksum = hex.EncodeToString(hash[:])

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(rawData); err != nil {
		return meta, fmt.Errorf("compress %s: %w", name, err)
	}
	if err := gzw.Close(); err != nil {
		return meta, fmt.Errorf("finalize compression: %w", err)
	}

	meta.Name = name
	meta.SizeBytes = int64(compressed.Len())
	meta.SavedAt = time.Now().UTC()

	// Write to a temp file and rename so readers never see a partial file.
	tmp, err := os.CreateTemp(s.baseDir, name+".*.tmp")
	if err != nil {
		return meta, fmt.Errorf("create %s file: %w", name, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }() //nolint:errcheck // no-op after a successful rename

	sf := storedFile{Metadata: meta, CompressedData: compressed.Bytes()}
	if err := gob.NewEncoder(tmp).Encode(sf); err != nil {
		_ = tmp.Close() //nolint:errcheck // already returning the encode error
		return meta, fmt.Errorf("write %s file: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return meta, fmt.Errorf("close %s file: %w", name, err)
	}
	if err := os.Rename(tmpName, s.Path(name)); err != nil {
		return meta, fmt.Errorf("rename %s file: %w", name, err)
	}
	return meta, nil
}

// Load reads the artifact, verifies its checksum and decodes the payload
// into target.
func (s *Store) Load(ctx context.Context, name string, target interface{}) (*Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	sf, err := s.readFile(name)
	if err != nil {
		return nil, err
	}

	gzr, err := gzip.NewReader(bytes.NewReader(sf.CompressedData))
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", name, err)
	}
	defer func() { _ = gzr.Close() }() //nolint:errcheck // error on gzip close after read is not actionable

	rawData, err := io.ReadAll(gzr)
	if err != nil {
		return nil, fmt.Errorf("read decompressed %s: %w", name, err)
	}

	hash := sha256.Sum256(rawData)
	if checksum := hex.EncodeToString(hash[:]); checksum != sf.Metadata.Checksum {
		return nil, fmt.Errorf("%w: %s expected %s, got %s", ErrChecksumMismatch, name, sf.Metadata.Checksum, checksum)
	}

	if err := gob.NewDecoder(bytes.NewReader(rawData)).Decode(target); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return &sf.Metadata, nil
}

// Stat returns an artifact's metadata without decoding its payload.
func (s *Store) Stat(name string) (*Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sf, err := s.readFile(name)
	if err != nil {
		return nil, err
	}
	return &sf.Metadata, nil
}

// List returns the metadata of every artifact in the store, sorted by name.
// Unreadable files are skipped.
func (s *Store) List(ctx context.Context) ([]Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read storage directory: %w", err)
	}

	var out []Metadata
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name, ok := strings.CutSuffix(entry.Name(), fileSuffix)
		if entry.IsDir() || !ok {
			continue
		}
		sf, err := s.readFile(name)
		if err != nil {
			continue
		}
		out = append(out, sf.Metadata)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) readFile(name string) (*storedFile, error) {
	f, err := os.Open(s.Path(name)) //nolint:gosec // path is built from a trusted artifact name
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("open %s file: %w", name, err)
	}
	defer func() { _ = f.Close() }() //nolint:errcheck // error on close after read is not actionable

	var sf storedFile
	if err := gob.NewDecoder(f).Decode(&sf); err != nil {
		return nil, fmt.Errorf("read %s file: %w", name, err)
	}
	return &sf, nil
}
