// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

// Package tfrecord reads and writes the TFRecord container format and the
// tf.Example protocol buffer carried inside it.
//
// Each record is framed as:
//
//	uint64 length (little endian)
//	uint32 masked CRC-32C of length
//	byte   data[length]
//	uint32 masked CRC-32C of data
//
// The same framing holds TensorBoard event files.
package tfrecord

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// ErrCorrupt is returned when a length or payload checksum does not match.
var ErrCorrupt = errors.New("tfrecord: corrupt record")

// maxRecordSize rejects absurd lengths from damaged headers before allocating.
const maxRecordSize = 1 << 30

const maskDelta = 0xa282ead8

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// MaskedCRC returns the masked CRC-32C used by TFRecord framing.
func MaskedCRC(b []byte) uint32 {
	crc := crc32.Checksum(b, castagnoli)
	return ((crc >> 15) | (crc << 17)) + maskDelta
}

// Writer appends framed records to an io.Writer.
type Writer struct {
	w   io.Writer
	hdr [12]byte
	ftr [4]byte
}

// NewWriter returns a Writer framing records onto w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write frames and writes one record.
func (w *Writer) Write(data []byte) error {
	binary.LittleEndian.PutUint64(w.hdr[:8], uint64(len(data)))
	binary.LittleEndian.PutUint32(w.hdr[8:], MaskedCRC(w.hdr[:8]))
	binary.LittleEndian.PutUint32(w.ftr[:], MaskedCRC(data))

	if _, err := w.w.Write(w.hdr[:]); err != nil {
		return fmt.Errorf("write record header: %w", err)
	}
	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("write record data: %w", err)
	}
	if _, err := w.w.Write(w.ftr[:]); err != nil {
		return fmt.Errorf("write record footer: %w", err)
	}
	return nil
}

// Reader yields records from a framed stream.
type Reader struct {
	r   *bufio.Reader
	hdr [12]byte
	ftr [4]byte
	buf []byte
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 1<<16)}
}

// Next returns the next record's payload. The slice is reused by the
// following call. It returns io.EOF at a clean end of stream and
// io.ErrUnexpectedEOF for a truncated record.
func (r *Reader) Next() ([]byte, error) {
	if _, err := io.ReadFull(r.r, r.hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read record header: %w", err)
	}
	if binary.LittleEndian.Uint32(r.hdr[8:]) != MaskedCRC(r.hdr[:8]) {
		return nil, fmt.Errorf("%w: length checksum", ErrCorrupt)
	}

	n := binary.LittleEndian.Uint64(r.hdr[:8])
	if n > maxRecordSize {
		return nil, fmt.Errorf("%w: length %d", ErrCorrupt, n)
	}
	if uint64(cap(r.buf)) < n {
		r.buf = make([]byte, n)
	}
	r.buf = r.buf[:n]

	if _, err := io.ReadFull(r.r, r.buf); err != nil {
		return nil, fmt.Errorf("read record data: %w", noEOF(err))
	}
	if _, err := io.ReadFull(r.r, r.ftr[:]); err != nil {
		return nil, fmt.Errorf("read record footer: %w", noEOF(err))
	}
	if binary.LittleEndian.Uint32(r.ftr[:]) != MaskedCRC(r.buf) {
		return nil, fmt.Errorf("%w: data checksum", ErrCorrupt)
	}
	return r.buf, nil
}

func noEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
