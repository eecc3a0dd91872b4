package scene

import (
	"fmt"
	"os"

	"github.com/chazu/armature/pkg/codec"
)

// objectRecord is one live object in a saved scene document. Records are
// written in pre-order so parents always precede their children.
type objectRecord struct {
	ID     string         `cbor:"id"`
	Name   string         `cbor:"name"`
	Kind   Kind           `cbor:"kind"`
	Parent string         `cbor:"parent,omitempty"`
	Attrs  map[string]any `cbor:"attrs,omitempty"`
}

type document struct {
	Version int            `cbor:"version"`
	Objects []objectRecord `cbor:"objects"`
}

const documentVersion = 1

// document must be called with s.mu held.
func (s *Scene) document() document {
	doc := document{Version: documentVersion}
	var walk func([]*object)
	walk = func(list []*object) {
		for _, o := range list {
			rec := objectRecord{ID: o.id, Name: o.name, Kind: o.kind, Attrs: o.attrs}
			if o.parent != nil {
				rec.Parent = o.parent.name
			}
			doc.Objects = append(doc.Objects, rec)
			walk(o.children)
		}
	}
	walk(s.roots)
	return doc
}

// Load reads a scene document written by Save. Identities are preserved.
// The returned scene saves back to path unless opts say otherwise.
func Load(path string, opts ...Option) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scene: reading %s: %w", path, err)
	}
	var doc document
	if err := codec.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("scene: decoding %s: %w", path, err)
	}
	if doc.Version != documentVersion {
		return nil, fmt.Errorf("scene: %s: unsupported document version %d", path, doc.Version)
	}
	s := New(append([]Option{WithSavePath(path)}, opts...)...)
	for _, rec := range doc.Objects {
		var parent *object
		if rec.Parent != "" {
			p, ok := s.byName[rec.Parent]
			if !ok {
				return nil, fmt.Errorf("scene: %s: %q listed before its parent %q", path, rec.Name, rec.Parent)
			}
			parent = p
		}
		if _, dup := s.byName[rec.Name]; dup {
			return nil, fmt.Errorf("scene: %s: duplicate name %q", path, rec.Name)
		}
		o := &object{id: rec.ID, name: rec.Name, kind: rec.Kind, attrs: rec.Attrs}
		if o.attrs == nil {
			o.attrs = map[string]any{}
		}
		s.byName[o.name] = o
		s.byID[o.id] = o
		s.attach(o, parent)
	}
	return s, nil
}
