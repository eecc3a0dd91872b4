// Package snapshot persists a component tree with its spec trees, live
// identities and rig state, so a later session can adopt the live
// objects an earlier one created.
//
// A snapshot file is a fixed header followed by a zstd-compressed CBOR
// document:
//
//	magic   [4]byte  "ARMS"
//	version uint8
//	digest  [32]byte BLAKE3 keyed hash of the uncompressed document
//	payload []byte   zstd frame
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/chazu/armature/pkg/codec"
	"github.com/chazu/armature/pkg/rig"
)

// Version is the current snapshot format version.
const Version = 1

var magic = [4]byte{'A', 'R', 'M', 'S'}

const headerSize = len(magic) + 1 + 32

// digestKey separates snapshot digests from other BLAKE3 uses.
var digestKey = [32]byte{
	'a', 'r', 'm', 'a', 't', 'u', 'r', 'e', '.', 's', 'n', 'a', 'p', 's', 'h', 'o',
	't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// ErrCorrupt reports a snapshot whose header or digest does not match.
var ErrCorrupt = errors.New("snapshot: corrupt")

type document struct {
	Version int        `cbor:"version"`
	Root    rig.Record `cbor:"root"`
}

func digest(data []byte) [32]byte {
	h, err := blake3.NewKeyed(digestKey[:])
	if err != nil {
		panic("snapshot: blake3 key: " + err.Error())
	}
	h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Encode serializes the tree rooted at root.
func Encode(root *rig.Component) ([]byte, error) {
	raw, err := codec.Marshal(document{Version: Version, Root: root.Record()})
	if err != nil {
		return nil, fmt.Errorf("snapshot: encoding: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("snapshot: zstd: %w", err)
	}
	defer enc.Close()

	sum := digest(raw)
	out := make([]byte, 0, headerSize+len(raw)/2)
	out = append(out, magic[:]...)
	out = append(out, Version)
	out = append(out, sum[:]...)
	return enc.EncodeAll(raw, out), nil
}

// Decode rebuilds a tree serialized by Encode, creating components from
// reg.
func Decode(data []byte, reg *rig.Registry) (*rig.Component, error) {
	if len(data) < headerSize || !bytes.Equal(data[:4], magic[:]) {
		return nil, fmt.Errorf("%w: bad header", ErrCorrupt)
	}
	if v := data[4]; v != Version {
		return nil, fmt.Errorf("snapshot: unsupported version %d", v)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot: zstd: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(data[headerSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if sum := digest(raw); !bytes.Equal(sum[:], data[5:headerSize]) {
		return nil, fmt.Errorf("%w: digest mismatch", ErrCorrupt)
	}

	var doc document
	if err := codec.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("snapshot: decoding: %w", err)
	}
	return rig.FromRecord(reg, doc.Root)
}

// Save writes the tree rooted at root to path, replacing it atomically.
func Save(path string, root *rig.Component) error {
	data, err := Encode(root)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("snapshot: writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: writing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot written by Save.
func Load(path string, reg *rig.Registry) (*rig.Component, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	root, err := Decode(data, reg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return root, nil
}
