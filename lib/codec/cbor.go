// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration shared by every gtool wire
// protocol: the controller-to-worker IPC stream and the operator socket.
//
// Shared data types in lib/schema/fleet carry only `json` tags. The
// CBOR library falls back to `json` tags when no `cbor` tag is present,
// so one struct definition serves the JSON files, the HTTP surface,
// and both CBOR protocols. Types that only ever cross a CBOR boundary
// (socket envelopes, request headers) use `cbor` tags.
//
//	data, err := codec.Marshal(value)
//	encoder := codec.NewEncoder(stdin)
//	decoder := codec.NewDecoder(stdout)
package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// Core Deterministic Encoding: sorted map keys and shortest
	// integer forms, so identical values produce identical bytes.
	encOptions := cbor.CoreDetEncOptions()
	// Task timestamps cross the IPC boundary and come back in status
	// frames; keep sub-second precision.
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Worker params and task params are free-form maps. Decoding
		// them into any must yield map[string]any so they compare and
		// re-encode as JSON the same way as values loaded from disk.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v as deterministic CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v. Unknown fields are ignored.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encoder writes a stream of CBOR values.
type Encoder = cbor.Encoder

// Decoder reads a stream of CBOR values. CBOR items are self-delimiting,
// so consecutive values need no additional framing.
type Decoder = cbor.Decoder

// RawMessage is an encoded CBOR value whose decoding is deferred.
type RawMessage = cbor.RawMessage

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}
