// Package codec holds the CBOR configuration shared by the remote scene
// protocol and the snapshot format. Encoding is Core Deterministic
// (RFC 8949 §4.2) so identical values always produce identical bytes,
// which the snapshot checksum and spec fingerprints rely on.
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
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: encoder init: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		// Attribute values cross the wire as any; decode maps with
		// string keys so callers can type-switch on map[string]any.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: decoder init: " + err.Error())
	}
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v. Unknown fields are ignored.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is an undecoded CBOR value.
type RawMessage = cbor.RawMessage

// Encoder writes a stream of CBOR values.
type Encoder = cbor.Encoder

// Decoder reads a stream of CBOR values.
type Decoder = cbor.Decoder

// NewEncoder returns a deterministic stream encoder on w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a stream decoder on r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}
