// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

package tfrecord

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers from tensorflow/core/example/{example,feature}.proto.
const (
	exampleFeatures protowire.Number = 1
	featuresMap     protowire.Number = 1
	mapKey          protowire.Number = 1
	mapValue        protowire.Number = 2
	featureBytes    protowire.Number = 1
	featureFloats   protowire.Number = 2
	featureInt64s   protowire.Number = 3
	listValue       protowire.Number = 1
)

// Feature is one tf.train.Feature. Exactly one list is expected to be set.
type Feature struct {
	Bytes  [][]byte
	Floats []float32
	Int64s []int64
}

// BytesFeature builds a bytes_list feature from strings.
func BytesFeature(values ...string) Feature {
	f := Feature{Bytes: make([][]byte, len(values))}
	for i, v := range values {
		f.Bytes[i] = []byte(v)
	}
	return f
}

// FloatFeature builds a float_list feature.
func FloatFeature(values ...float32) Feature {
	return Feature{Floats: values}
}

// Int64Feature builds an int64_list feature.
func Int64Feature(values ...int64) Feature {
	return Feature{Int64s: values}
}

// Example is a decoded tf.train.Example.
type Example struct {
	Features map[string]Feature
}

// String returns the first bytes value of key as a string.
func (e *Example) String(key string) (string, bool) {
	f, ok := e.Features[key]
	if !ok || len(f.Bytes) == 0 {
		return "", false
	}
	return string(f.Bytes[0]), true
}

// Float returns the first float value of key.
func (e *Example) Float(key string) (float32, bool) {
	f, ok := e.Features[key]
	if !ok || len(f.Floats) == 0 {
		return 0, false
	}
	return f.Floats[0], true
}

// Int64 returns the first int64 value of key.
func (e *Example) Int64(key string) (int64, bool) {
	f, ok := e.Features[key]
	if !ok || len(f.Int64s) == 0 {
		return 0, false
	}
	return f.Int64s[0], true
}

// Marshal encodes e in wire format. Map entries are written in key order
// so equal examples encode identically.
func (e *Example) Marshal() []byte {
	keys := make([]string, 0, len(e.Features))
	for k := range e.Features {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var features []byte
	for _, k := range keys {
		var entry []byte
		entry = protowire.AppendTag(entry, mapKey, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = protowire.AppendTag(entry, mapValue, protowire.BytesType)
		entry = protowire.AppendBytes(entry, marshalFeature(e.Features[k]))

		features = protowire.AppendTag(features, featuresMap, protowire.BytesType)
		features = protowire.AppendBytes(features, entry)
	}

	var out []byte
	out = protowire.AppendTag(out, exampleFeatures, protowire.BytesType)
	return protowire.AppendBytes(out, features)
}

func marshalFeature(f Feature) []byte {
	var list []byte
	var num protowire.Number
	switch {
	case f.Bytes != nil:
		num = featureBytes
		for _, v := range f.Bytes {
			list = protowire.AppendTag(list, listValue, protowire.BytesType)
			list = protowire.AppendBytes(list, v)
		}
	case f.Floats != nil:
		num = featureFloats
		packed := make([]byte, 0, 4*len(f.Floats))
		for _, v := range f.Floats {
			packed = protowire.AppendFixed32(packed, math.Float32bits(v))
		}
		list = protowire.AppendTag(list, listValue, protowire.BytesType)
		list = protowire.AppendBytes(list, packed)
	case f.Int64s != nil:
		num = featureInt64s
		var packed []byte
		for _, v := range f.Int64s {
			packed = protowire.AppendVarint(packed, uint64(v))
		}
		list = protowire.AppendTag(list, listValue, protowire.BytesType)
		list = protowire.AppendBytes(list, packed)
	default:
		return nil
	}

	var out []byte
	out = protowire.AppendTag(out, num, protowire.BytesType)
	return protowire.AppendBytes(out, list)
}

// ParseExample decodes a tf.train.Example. Unknown fields are skipped.
func ParseExample(b []byte) (*Example, error) {
	ex := &Example{Features: make(map[string]Feature)}
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num != exampleFeatures || typ != protowire.BytesType {
			return nil
		}
		return eachField(v, func(num protowire.Number, typ protowire.Type, entry []byte) error {
			if num != featuresMap || typ != protowire.BytesType {
				return nil
			}
			return parseMapEntry(entry, ex.Features)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("parse example: %w", err)
	}
	return ex, nil
}

func parseMapEntry(b []byte, into map[string]Feature) error {
	var key string
	var feature Feature
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case mapKey:
			key = string(v)
		case mapValue:
			f, err := parseFeature(v)
			if err != nil {
				return fmt.Errorf("feature %q: %w", key, err)
			}
			feature = f
		}
		return nil
	})
	if err != nil {
		return err
	}
	into[key] = feature
	return nil
}

func parseFeature(b []byte) (Feature, error) {
	var f Feature
	err := eachField(b, func(num protowire.Number, typ protowire.Type, list []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case featureBytes:
			f.Bytes = [][]byte{}
			return eachField(list, func(n protowire.Number, t protowire.Type, v []byte) error {
				if n == listValue && t == protowire.BytesType {
					f.Bytes = append(f.Bytes, append([]byte(nil), v...))
				}
				return nil
			})
		case featureFloats:
			f.Floats = []float32{}
			return parseFloatList(list, &f.Floats)
		case featureInt64s:
			f.Int64s = []int64{}
			return parseInt64List(list, &f.Int64s)
		}
		return nil
	})
	return f, err
}

func parseFloatList(b []byte, out *[]float32) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == listValue && typ == protowire.Fixed32Type:
			v, m := protowire.ConsumeFixed32(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			*out = append(*out, math.Float32frombits(v))
			b = b[m:]
		case num == listValue && typ == protowire.BytesType:
			packed, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			for len(packed) > 0 {
				v, k := protowire.ConsumeFixed32(packed)
				if k < 0 {
					return protowire.ParseError(k)
				}
				*out = append(*out, math.Float32frombits(v))
				packed = packed[k:]
			}
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			b = b[m:]
		}
	}
	return nil
}

func parseInt64List(b []byte, out *[]int64) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == listValue && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			*out = append(*out, int64(v))
			b = b[m:]
		case num == listValue && typ == protowire.BytesType:
			packed, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			for len(packed) > 0 {
				v, k := protowire.ConsumeVarint(packed)
				if k < 0 {
					return protowire.ParseError(k)
				}
				*out = append(*out, int64(v))
				packed = packed[k:]
			}
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			b = b[m:]
		}
	}
	return nil
}

// eachField walks the top-level fields of a message. For length-delimited
// fields fn receives the payload; for other wire types it receives nil.
func eachField(b []byte, fn func(protowire.Number, protowire.Type, []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		var payload []byte
		if typ == protowire.BytesType {
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			payload = v
			b = b[m:]
		} else {
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			b = b[m:]
		}
		if err := fn(num, typ, payload); err != nil {
			return err
		}
	}
	return nil
}

// ReadExamples decodes every record of r as an Example and passes it to fn.
func ReadExamples(r io.Reader, fn func(*Example) error) error {
	rr := NewReader(r)
	for i := 0; ; i++ {
		rec, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		ex, err := ParseExample(rec)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if err := fn(ex); err != nil {
			return err
		}
	}
}
