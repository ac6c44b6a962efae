// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

package ranking

import (
	"errors"
	"testing"
)

func TestVocabulary(t *testing.T) {
	t.Parallel()

	v, err := NewVocabulary([]string{"1", "10", "2"})
	if err != nil {
		t.Fatalf("NewVocabulary() error = %v", err)
	}

	tests := []struct {
		term string
		want int
	}{
		{"1", 1},
		{"10", 2},
		{"2", 3},
		{"3", OOV},
		{"", OOV},
	}
	for _, tt := range tests {
		if got := v.Lookup(tt.term); got != tt.want {
			t.Errorf("Lookup(%q) = %d, want %d", tt.term, got, tt.want)
		}
	}
	if v.Size() != 3 || v.Rows() != 4 {
		t.Errorf("Size() = %d, Rows() = %d", v.Size(), v.Rows())
	}
	if !v.Contains("10") || v.Contains("3") {
		t.Error("Contains() disagrees with Lookup()")
	}

	terms := v.Terms()
	terms[0] = "mutated"
	if v.Lookup("1") != 1 || v.Terms()[0] != "1" {
		t.Error("Terms() returned an alias of internal state")
	}
}

func TestVocabularyErrors(t *testing.T) {
	t.Parallel()

	if _, err := NewVocabulary(nil); !errors.Is(err, ErrEmptyVocabulary) {
		t.Errorf("NewVocabulary(nil) error = %v, want ErrEmptyVocabulary", err)
	}
	if _, err := NewVocabulary([]string{"a", "a"}); err == nil {
		t.Error("expected error for duplicate terms")
	}
}
