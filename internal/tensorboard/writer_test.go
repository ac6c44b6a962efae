// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

package tensorboard

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func readEventFile(t *testing.T, path string) []Event {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	events, err := ReadEvents(f)
	if err != nil {
		t.Fatalf("ReadEvents() error = %v", err)
	}
	return events
}

func TestWriterScalars(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "train")
	clock := time.Unix(1700000000, 500000000)
	w, err := newWriter(dir, func() time.Time { return clock })
	if err != nil {
		t.Fatalf("newWriter() error = %v", err)
	}
	if !strings.HasPrefix(filepath.Base(w.Path()), "events.out.tfevents.1700000000.") {
		t.Errorf("file name = %q", filepath.Base(w.Path()))
	}

	if err := w.Scalars(1, map[string]float32{TagRMSE: 1.25, TagLoss: 1.5625}); err != nil {
		t.Fatal(err)
	}
	if err := w.Scalar("learning_rate", 2, 0.5); err != nil {
		t.Fatal(err)
	}
	if err := w.Scalars(3, nil); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	events := readEventFile(t, w.Path())
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].FileVersion != FileVersion || len(events[0].Values) != 0 {
		t.Errorf("first event = %+v", events[0])
	}
	if events[0].WallTime != 1700000000.5 {
		t.Errorf("wall time = %v", events[0].WallTime)
	}

	got := events[1]
	if got.Step != 1 || len(got.Values) != 2 {
		t.Fatalf("second event = %+v", got)
	}
	if got.Values[0].Tag != TagLoss || got.Values[0].SimpleValue != 1.5625 {
		t.Errorf("value[0] = %+v", got.Values[0])
	}
	if got.Values[1].Tag != TagRMSE || got.Values[1].SimpleValue != 1.25 {
		t.Errorf("value[1] = %+v", got.Values[1])
	}
	if events[2].Step != 2 || events[2].Values[0].Tag != "learning_rate" {
		t.Errorf("third event = %+v", events[2])
	}
}

func TestOpenRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	run, err := OpenRun(dir)
	if err != nil {
		t.Fatalf("OpenRun() error = %v", err)
	}
	for epoch := 1; epoch <= 3; epoch++ {
		if err := run.Epoch(epoch, float64(4-epoch), float64(2-epoch/2)); err != nil {
			t.Fatal(err)
		}
	}
	if err := run.Evaluation(3, 0.9, 0.95); err != nil {
		t.Fatal(err)
	}
	if err := run.Close(); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		sub    string
		events int
	}{
		{"train", 4},
		{"validation", 2},
	}
	for _, tt := range tests {
		matches, err := filepath.Glob(filepath.Join(dir, tt.sub, "events.out.tfevents.*"))
		if err != nil || len(matches) != 1 {
			t.Fatalf("%s event files = %v, %v", tt.sub, matches, err)
		}
		if got := len(readEventFile(t, matches[0])); got != tt.events {
			t.Errorf("%s has %d events, want %d", tt.sub, got, tt.events)
		}
	}
}

func TestParseEventSkipsUnknownFields(t *testing.T) {
	t.Parallel()

	b := Event{WallTime: 1, Step: 7, Values: []Value{{Tag: "x", SimpleValue: 2}}}.Marshal()
	// field 6 (log_message) as an empty length-delimited value
	b = append(b, 0x32, 0x00)

	ev, err := ParseEvent(b)
	if err != nil {
		t.Fatalf("ParseEvent() error = %v", err)
	}
	if ev.Step != 7 || len(ev.Values) != 1 || ev.Values[0].SimpleValue != 2 {
		t.Errorf("ParseEvent() = %+v", ev)
	}

	if _, err := ParseEvent([]byte{0x0a}); err == nil {
		t.Error("ParseEvent(truncated) should fail")
	}
}
