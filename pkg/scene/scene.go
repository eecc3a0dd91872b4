// Package scene defines the capability used to mutate a live scene graph
// and provides an in-memory implementation of it.
//
// Live objects are addressed by a unique name and by a stable identity
// that survives renames and reparenting. Names may carry a namespace
// prefix ("ns:name") when they live in a referenced sub-document.
package scene

import (
	"errors"
	"strings"
)

// ErrNotFound reports a name or identity that has no live object. Callers
// treat it as recoverable.
var ErrNotFound = errors.New("scene: not found")

// Kind is the type of live object to create.
type Kind string

const (
	KindJoint     Kind = "joint"
	KindLocator   Kind = "locator"
	KindControl   Kind = "control"
	KindTransform Kind = "transform"
)

// Attribute keys understood by the live scene.
const (
	AttrTranslate    = "translate"
	AttrRotate       = "rotate"
	AttrScale        = "scale"
	AttrRotateOrder  = "rotateOrder"
	AttrSide         = "side"
	AttrType         = "type"
	AttrOtherType    = "otherType"
	AttrDrawStyle    = "drawStyle"
	AttrConstraint   = "constraint"
	AttrOffsetParent = "offsetParent"
	AttrDisplayMesh  = "displayMesh"
	AttrSpaces       = "spaces"
	AttrRigRole      = "rigRole"
)

// Manager mutates a live scene graph. Implementations may be local or a
// session to another process; callers cannot tell the difference.
type Manager interface {
	Exists(id string) (bool, error)
	ResolveName(id string) (string, error)
	// Create makes a new object under parent ("" for the scene root) and
	// returns its possibly disambiguated name and its identity.
	Create(kind Kind, name, parent string) (string, string, error)
	// Rename returns the resulting, possibly disambiguated, name.
	Rename(oldName, newName string) (string, error)
	// Parent returns "" for objects at the scene root.
	Parent(name string) (string, error)
	ListChildren(name string) ([]string, error)
	Reparent(name, newParent string) error
	SetAttribute(name, key string, value any) error
	GetAttribute(name, key string) (any, error)
	Delete(name string) error
	Save() error
}

// DriverResolver finds driver objects by namespace and name.
type DriverResolver interface {
	// LookupQualified returns the live name of namespace:name and
	// whether it exists.
	LookupQualified(namespace, name string) (string, bool, error)
}

// Reference scopes identity lookups to a referenced sub-document.
type Reference struct {
	Namespace string
	Path      string
}

// Contains reports whether a live name belongs to the reference. The
// zero Reference contains everything.
func (r Reference) Contains(name string) bool {
	if r.Namespace == "" {
		return true
	}
	return strings.HasPrefix(name, r.Namespace+":")
}

// Qualify prefixes name with the reference's namespace.
func (r Reference) Qualify(name string) string {
	return Qualify(r.Namespace, name)
}

// Qualify joins a namespace and a name.
func Qualify(namespace, name string) string {
	if namespace == "" || strings.HasPrefix(name, namespace+":") {
		return name
	}
	return namespace + ":" + name
}

// SplitNamespace splits "ns:name" into its parts.
func SplitNamespace(qualified string) (namespace, name string) {
	if i := strings.LastIndexByte(qualified, ':'); i >= 0 {
		return qualified[:i], qualified[i+1:]
	}
	return "", qualified
}
