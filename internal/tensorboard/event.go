// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

package tensorboard

import (
	"errors"
	"fmt"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tomtom215/reelrank/internal/tfrecord"
)

// tensorflow/core/util/event.proto and framework/summary.proto field numbers.
const (
	eventWallTime    protowire.Number = 1
	eventStep        protowire.Number = 2
	eventFileVersion protowire.Number = 3
	eventSummary     protowire.Number = 5

	summaryValue protowire.Number = 1

	valueTag         protowire.Number = 1
	valueSimpleValue protowire.Number = 2
)

// Value is one tagged scalar inside a summary.
type Value struct {
	Tag         string
	SimpleValue float32
}

// Event is the subset of tensorflow.Event the writer produces.
type Event struct {
	WallTime    float64
	Step        int64
	FileVersion string
	Values      []Value
}

// Marshal encodes the event in protocol buffer wire format.
func (e Event) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, eventWallTime, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(e.WallTime))
	if e.Step != 0 {
		b = protowire.AppendTag(b, eventStep, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.Step))
	}
	if e.FileVersion != "" {
		b = protowire.AppendTag(b, eventFileVersion, protowire.BytesType)
		b = protowire.AppendString(b, e.FileVersion)
		return b
	}
	if len(e.Values) > 0 {
		var summary []byte
		for _, v := range e.Values {
			var val []byte
			val = protowire.AppendTag(val, valueTag, protowire.BytesType)
			val = protowire.AppendString(val, v.Tag)
			val = protowire.AppendTag(val, valueSimpleValue, protowire.Fixed32Type)
			val = protowire.AppendFixed32(val, math.Float32bits(v.SimpleValue))

			summary = protowire.AppendTag(summary, summaryValue, protowire.BytesType)
			summary = protowire.AppendBytes(summary, val)
		}
		b = protowire.AppendTag(b, eventSummary, protowire.BytesType)
		b = protowire.AppendBytes(b, summary)
	}
	return b
}

// ParseEvent decodes an event, ignoring fields the writer never sets.
func ParseEvent(b []byte) (Event, error) {
	var ev Event
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return ev, fmt.Errorf("parse event: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == eventWallTime && typ == protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(b)
			if m < 0 {
				return ev, fmt.Errorf("parse wall_time: %w", protowire.ParseError(m))
			}
			ev.WallTime = math.Float64frombits(v)
			n = m
		case num == eventStep && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return ev, fmt.Errorf("parse step: %w", protowire.ParseError(m))
			}
			ev.Step = int64(v)
			n = m
		case num == eventFileVersion && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return ev, fmt.Errorf("parse file_version: %w", protowire.ParseError(m))
			}
			ev.FileVersion = v
			n = m
		case num == eventSummary && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return ev, fmt.Errorf("parse summary: %w", protowire.ParseError(m))
			}
			values, err := parseSummary(v)
			if err != nil {
				return ev, err
			}
			ev.Values = append(ev.Values, values...)
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return ev, fmt.Errorf("skip field %d: %w", num, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	return ev, nil
}

func parseSummary(b []byte) ([]Value, error) {
	var values []Value
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("parse summary: %w", protowire.ParseError(n))
		}
		b = b[n:]
		if num != summaryValue || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("skip summary field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		raw, m := protowire.ConsumeBytes(b)
		if m < 0 {
			return nil, fmt.Errorf("parse summary value: %w", protowire.ParseError(m))
		}
		v, err := parseValue(raw)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		b = b[m:]
	}
	return values, nil
}

func parseValue(b []byte) (Value, error) {
	var v Value
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return v, fmt.Errorf("parse value: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == valueTag && typ == protowire.BytesType:
			s, m := protowire.ConsumeString(b)
			if m < 0 {
				return v, fmt.Errorf("parse tag: %w", protowire.ParseError(m))
			}
			v.Tag = s
			n = m
		case num == valueSimpleValue && typ == protowire.Fixed32Type:
			f, m := protowire.ConsumeFixed32(b)
			if m < 0 {
				return v, fmt.Errorf("parse simple_value: %w", protowire.ParseError(m))
			}
			v.SimpleValue = math.Float32frombits(f)
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return v, fmt.Errorf("skip value field %d: %w", num, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	return v, nil
}

// ReadEvents decodes every event in an event file stream.
func ReadEvents(r io.Reader) ([]Event, error) {
	rd := tfrecord.NewReader(r)
	var events []Event
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		ev, err := ParseEvent(rec)
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}
