// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

package ranking

import (
	"errors"
	"fmt"
)

// ErrEmptyVocabulary is returned when a tower would have no known terms.
var ErrEmptyVocabulary = errors.New("empty vocabulary")

// OOV is the row index shared by every term not in the vocabulary.
const OOV = 0

// Vocabulary maps string features to embedding rows. Term i is stored at
// row i+1; unknown strings map to OOV.
type Vocabulary struct {
	terms []string
	index map[string]int
}

// NewVocabulary builds a vocabulary from distinct terms, keeping their order.
func NewVocabulary(terms []string) (*Vocabulary, error) {
	if len(terms) == 0 {
		return nil, ErrEmptyVocabulary
	}
	v := &Vocabulary{
		terms: make([]string, len(terms)),
		index: make(map[string]int, len(terms)),
	}
	copy(v.terms, terms)
	for i, t := range terms {
		if _, dup := v.index[t]; dup {
			return nil, fmt.Errorf("duplicate vocabulary term %q", t)
		}
		v.index[t] = i + 1
	}
	return v, nil
}

// Lookup returns the embedding row for s.
func (v *Vocabulary) Lookup(s string) int {
	if row, ok := v.index[s]; ok {
		return row
	}
	return OOV
}

// Contains reports whether s is a known term.
func (v *Vocabulary) Contains(s string) bool {
	_, ok := v.index[s]
	return ok
}

// Size is the number of known terms.
func (v *Vocabulary) Size() int { return len(v.terms) }

// Rows is the embedding table height: Size()+1.
func (v *Vocabulary) Rows() int { return len(v.terms) + 1 }

// Terms returns a copy of the known terms in row order.
func (v *Vocabulary) Terms() []string {
	out := make([]string, len(v.terms))
	copy(out, v.terms)
	return out
}
