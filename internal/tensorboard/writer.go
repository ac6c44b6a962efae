// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

// Package tensorboard writes scalar summaries as TensorBoard event files.
//
// Event files are TFRecord streams of serialized Event protocol buffers. The
// first record carries the file version, later records carry Summary values.
// A Run keeps one writer per split so TensorBoard shows "train" and
// "validation" as separate runs, the same layout Keras produces.
package tensorboard

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/reelrank/internal/logging"
	"github.com/tomtom215/reelrank/internal/tfrecord"
)

// FileVersion is written in the first event of every file.
const FileVersion = "brain.Event:2"

// Scalar tags written per epoch.
const (
	TagLoss = "epoch_loss"
	TagRMSE = "epoch_root_mean_squared_error"
)

// Writer appends events to a single event file. It is safe for concurrent use.
type Writer struct {
	mu   sync.Mutex
	path string
	file *os.File
	buf  *bufio.Writer
	rec  *tfrecord.Writer
	now  func() time.Time
}

// NewWriter creates dir if absent and opens a fresh event file inside it.
func NewWriter(dir string) (*Writer, error) {
	return newWriter(dir, time.Now)
}

func newWriter(dir string, now func() time.Time) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create event directory: %w", err)
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	name := fmt.Sprintf("events.out.tfevents.%d.%s.%d.v2", now().Unix(), host, os.Getpid())
	path := filepath.Join(dir, name)

	f, err := os.Create(path) //nolint:gosec // path is built from the configured model directory
	if err != nil {
		return nil, fmt.Errorf("create event file: %w", err)
	}
	buf := bufio.NewWriter(f)
	w := &Writer{
		path: path,
		file: f,
		buf:  buf,
		rec:  tfrecord.NewWriter(buf),
		now:  now,
	}

	if err := w.write(Event{WallTime: w.wallTime(), FileVersion: FileVersion}); err != nil {
		_ = f.Close() //nolint:errcheck // already returning the write error
		return nil, err
	}

	logging.Debug().Str("path", path).Msg("Opened TensorBoard event file")
	return w, nil
}

// Path returns the event file path.
func (w *Writer) Path() string {
	return w.path
}

// Scalar records a single scalar value at step.
func (w *Writer) Scalar(tag string, step int64, value float32) error {
	return w.Scalars(step, map[string]float32{tag: value})
}

// Scalars records several scalar values in one event. Tags are written in
// sorted order.
func (w *Writer) Scalars(step int64, values map[string]float32) error {
	if len(values) == 0 {
		return nil
	}
	tags := make([]string, 0, len(values))
	for tag := range values {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	ev := Event{WallTime: w.wallTime(), Step: step}
	for _, tag := range tags {
		ev.Values = append(ev.Values, Value{Tag: tag, SimpleValue: values[tag]})
	}
	return w.write(ev)
}

// Flush pushes buffered events to the file.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush event file: %w", err)
	}
	return nil
}

// Close flushes and closes the event file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		_ = w.file.Close() //nolint:errcheck // flush error takes precedence
		return fmt.Errorf("flush event file: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close event file: %w", err)
	}
	return nil
}

func (w *Writer) write(ev Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rec.Write(ev.Marshal()); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

func (w *Writer) wallTime() float64 {
	return float64(w.now().UnixNano()) / 1e9
}

// Run groups the train and validation writers under one log directory.
type Run struct {
	Train      *Writer
	Validation *Writer
}

// OpenRun creates <dir>/train and <dir>/validation event files.
func OpenRun(dir string) (*Run, error) {
	train, err := NewWriter(filepath.Join(dir, "train"))
	if err != nil {
		return nil, err
	}
	validation, err := NewWriter(filepath.Join(dir, "validation"))
	if err != nil {
		_ = train.Close() //nolint:errcheck // already returning the open error
		return nil, err
	}
	return &Run{Train: train, Validation: validation}, nil
}

// Epoch writes the loss and RMSE of a finished training epoch.
func (r *Run) Epoch(epoch int, loss, rmse float64) error {
	return r.Train.Scalars(int64(epoch), map[string]float32{
		TagLoss: float32(loss),
		TagRMSE: float32(rmse),
	})
}

// Evaluation writes held-out metrics at the given step, normally the last
// training epoch.
func (r *Run) Evaluation(step int, loss, rmse float64) error {
	return r.Validation.Scalars(int64(step), map[string]float32{
		TagLoss: float32(loss),
		TagRMSE: float32(rmse),
	})
}

// Close closes both writers.
func (r *Run) Close() error {
	trainErr := r.Train.Close()
	if err := r.Validation.Close(); err != nil {
		return err
	}
	return trainErr
}
