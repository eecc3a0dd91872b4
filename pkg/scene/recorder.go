package scene

import "sync"

// Operation names recorded by Recorder.
const (
	OpExists       = "exists"
	OpResolveName  = "resolve_name"
	OpCreate       = "create"
	OpRename       = "rename"
	OpParent       = "parent"
	OpListChildren = "list_children"
	OpReparent     = "reparent"
	OpSetAttribute = "set_attribute"
	OpGetAttribute = "get_attribute"
	OpDelete       = "delete"
	OpSave         = "save"
	OpLookup       = "lookup_qualified"
)

// Call is one recorded Manager call.
type Call struct {
	Op   string
	Args []any
}

// Recorder wraps a Manager and records every call made through it. It
// forwards driver lookups when the wrapped Manager also resolves drivers.
type Recorder struct {
	inner Manager

	mu    sync.Mutex
	calls []Call
}

var (
	_ Manager        = (*Recorder)(nil)
	_ DriverResolver = (*Recorder)(nil)
)

// NewRecorder wraps m.
func NewRecorder(m Manager) *Recorder {
	return &Recorder{inner: m}
}

func (r *Recorder) record(op string, args ...any) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Op: op, Args: args})
	r.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Count returns how many calls of op were recorded.
func (r *Recorder) Count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Reset forgets every recorded call.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

func (r *Recorder) Exists(id string) (bool, error) {
	r.record(OpExists, id)
	return r.inner.Exists(id)
}

func (r *Recorder) ResolveName(id string) (string, error) {
	r.record(OpResolveName, id)
	return r.inner.ResolveName(id)
}

func (r *Recorder) Create(kind Kind, name, parent string) (string, string, error) {
	r.record(OpCreate, kind, name, parent)
	return r.inner.Create(kind, name, parent)
}

func (r *Recorder) Rename(oldName, newName string) (string, error) {
	r.record(OpRename, oldName, newName)
	return r.inner.Rename(oldName, newName)
}

func (r *Recorder) Parent(name string) (string, error) {
	r.record(OpParent, name)
	return r.inner.Parent(name)
}

func (r *Recorder) ListChildren(name string) ([]string, error) {
	r.record(OpListChildren, name)
	return r.inner.ListChildren(name)
}

func (r *Recorder) Reparent(name, newParent string) error {
	r.record(OpReparent, name, newParent)
	return r.inner.Reparent(name, newParent)
}

func (r *Recorder) SetAttribute(name, key string, value any) error {
	r.record(OpSetAttribute, name, key, value)
	return r.inner.SetAttribute(name, key, value)
}

func (r *Recorder) GetAttribute(name, key string) (any, error) {
	r.record(OpGetAttribute, name, key)
	return r.inner.GetAttribute(name, key)
}

func (r *Recorder) Delete(name string) error {
	r.record(OpDelete, name)
	return r.inner.Delete(name)
}

func (r *Recorder) Save() error {
	r.record(OpSave)
	return r.inner.Save()
}

// LookupQualified forwards to the wrapped Manager, or reports the driver
// missing when it cannot resolve drivers.
func (r *Recorder) LookupQualified(namespace, name string) (string, bool, error) {
	r.record(OpLookup, namespace, name)
	if d, ok := r.inner.(DriverResolver); ok {
		return d.LookupQualified(namespace, name)
	}
	return "", false, nil
}
