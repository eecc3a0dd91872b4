// Package reconcile makes live scene objects match specs.
//
// A Reconciler maps one spec at a time onto one live object through a
// scene.Manager: it adopts the object bound to the spec's identity or
// creates a new one, corrects its name and parent, and pushes
// classification attributes and the spec's transform. Calls that fail
// with scene.ErrNotFound are logged and the spec is skipped; any other
// failure is returned to the caller.
package reconcile

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/chazu/armature/pkg/scene"
	"github.com/chazu/armature/pkg/spec"
)

// Result describes what one Sync or Delete did.
type Result struct {
	Created    bool
	Renamed    bool
	Reparented bool
	Deleted    bool
	Skipped    bool
}

// Report totals the results of a pass.
type Report struct {
	Synced     int
	Created    int
	Renamed    int
	Reparented int
	Deleted    int
	Skipped    int
}

func (r *Report) add(res Result) {
	switch {
	case res.Skipped:
		r.Skipped++
		return
	case res.Deleted:
		r.Deleted++
		return
	}
	r.Synced++
	if res.Created {
		r.Created++
	}
	if res.Renamed {
		r.Renamed++
	}
	if res.Reparented {
		r.Reparented++
	}
}

// Merge adds o's totals to r.
func (r *Report) Merge(o Report) {
	r.Synced += o.Synced
	r.Created += o.Created
	r.Renamed += o.Renamed
	r.Reparented += o.Reparented
	r.Deleted += o.Deleted
	r.Skipped += o.Skipped
}

// Structural reports whether the pass created, renamed, reparented or
// deleted anything.
func (r Report) Structural() bool {
	return r.Created+r.Renamed+r.Reparented+r.Deleted > 0
}

func (r Report) String() string {
	return fmt.Sprintf("synced=%d created=%d renamed=%d reparented=%d deleted=%d skipped=%d",
		r.Synced, r.Created, r.Renamed, r.Reparented, r.Deleted, r.Skipped)
}

// Reconciler synchronizes specs against a live scene.
type Reconciler struct {
	mgr        scene.Manager
	resolver   scene.DriverResolver
	ref        scene.Reference
	logger     *slog.Logger
	rootParent string
	order      spec.RotateOrder
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithReference scopes identity lookups and new names to a referenced
// sub-document.
func WithReference(ref scene.Reference) Option {
	return func(r *Reconciler) { r.ref = ref }
}

// WithResolver sets the driver resolver used by Bind. By default the
// Manager is used when it resolves drivers itself.
func WithResolver(d scene.DriverResolver) Option {
	return func(r *Reconciler) { r.resolver = d }
}

// WithLogger sets the logger for skipped specs and missing drivers.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRootParent sets the live object that top-level specs are parented
// under. Empty means the scene root.
func WithRootParent(name string) Option {
	return func(r *Reconciler) { r.rootParent = name }
}

// WithRotateOrder sets the order assumed for live objects that do not
// report one.
func WithRotateOrder(o spec.RotateOrder) Option {
	return func(r *Reconciler) { r.order = o }
}

// New returns a Reconciler that mutates the scene through mgr.
func New(mgr scene.Manager, opts ...Option) *Reconciler {
	r := &Reconciler{
		mgr:    mgr,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if d, ok := mgr.(scene.DriverResolver); ok {
		r.resolver = d
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Scoped returns a copy of r that parents top-level specs under
// rootParent.
func (r *Reconciler) Scoped(rootParent string) *Reconciler {
	c := *r
	c.rootParent = rootParent
	return &c
}

// Manager returns the scene capability r mutates.
func (r *Reconciler) Manager() scene.Manager { return r.mgr }

// RootParent returns the live parent of top-level specs.
func (r *Reconciler) RootParent() string { return r.rootParent }

// skip logs a not-found failure and reports whether err was one.
func (r *Reconciler) skip(s *spec.Spec, op string, err error) bool {
	if !errors.Is(err, scene.ErrNotFound) {
		return false
	}
	r.logger.Warn("skipping spec", "spec", s.Name, "uuid", s.UUID, "op", op, "error", err)
	return true
}

func (r *Reconciler) fail(s *spec.Spec, op string, err error) (Result, error) {
	if r.skip(s, op, err) {
		return Result{Skipped: true}, nil
	}
	return Result{}, fmt.Errorf("reconcile: %s %q: %w", op, s.Name, err)
}

// qualify maps a spec name onto the live name inside the reference.
func (r *Reconciler) qualify(name string) string {
	return r.ref.Qualify(name)
}

// local strips the reference namespace from a live name.
func (r *Reconciler) local(name string) string {
	if r.ref.Namespace == "" {
		return name
	}
	return strings.TrimPrefix(name, r.ref.Namespace+":")
}

// Lookup returns the live name bound to s's identity, if any.
func (r *Reconciler) Lookup(s *spec.Spec) (string, bool, error) {
	if s.UUID == "" {
		return "", false, nil
	}
	ok, err := r.mgr.Exists(s.UUID)
	if err != nil || !ok {
		return "", false, err
	}
	name, err := r.mgr.ResolveName(s.UUID)
	if err != nil {
		return "", false, err
	}
	if !r.ref.Contains(name) {
		return "", false, nil
	}
	return name, true, nil
}

// parentName returns the live name s should be parented under.
func (r *Reconciler) parentName(s *spec.Spec) string {
	if p := s.LiveParent(); p != nil {
		return r.qualify(p.Name)
	}
	return r.rootParent
}

func liveKind(s *spec.Spec) scene.Kind {
	if s.Kind == spec.KindPivot {
		return scene.KindLocator
	}
	return scene.KindJoint
}

// Sync makes the live object bound to s match it. Disabled specs have
// their live object deleted; passthrough specs are left alone.
func (r *Reconciler) Sync(s *spec.Spec) (Result, error) {
	if !s.Enabled {
		return r.Delete(s)
	}
	if s.IsPassthrough() {
		return Result{}, nil
	}

	var res Result
	name, found, err := r.Lookup(s)
	if err != nil {
		return r.fail(s, "lookup", err)
	}
	parent := r.parentName(s)

	if found {
		if want := r.qualify(s.Name); s.Name != "" && name != want {
			got, err := r.mgr.Rename(name, want)
			if err != nil {
				return r.fail(s, "rename", err)
			}
			name = got
			s.Name = r.local(got)
			res.Renamed = true
		}
		current, err := r.mgr.Parent(name)
		if err != nil {
			return r.fail(s, "parent", err)
		}
		if current != parent {
			if err := r.mgr.Reparent(name, parent); err != nil {
				return r.fail(s, "reparent", err)
			}
			res.Reparented = true
		}
	} else {
		got, id, err := r.mgr.Create(liveKind(s), r.qualify(s.Name), parent)
		if err != nil {
			return r.fail(s, "create", err)
		}
		name = got
		s.Name = r.local(got)
		s.UUID = id
		res.Created = true
		if err := r.mgr.SetAttribute(name, scene.AttrRotateOrder, int(s.RotateOrder.Or(r.order))); err != nil {
			return r.fail(s, "set rotate order", err)
		}
	}

	if err := r.pushClassification(name, s); err != nil {
		return r.fail(s, "set attribute", err)
	}
	if err := r.PushTransform(name, s); err != nil {
		return r.fail(s, "set transform", err)
	}
	return res, nil
}

func (r *Reconciler) pushClassification(name string, s *spec.Spec) error {
	attrs := []struct {
		key   string
		value string
	}{
		{scene.AttrSide, string(s.Side)},
		{scene.AttrType, s.Type},
		{scene.AttrOtherType, s.OtherType},
		{scene.AttrDrawStyle, string(s.DrawStyle)},
	}
	for _, a := range attrs {
		if err := r.mgr.SetAttribute(name, a.key, a.value); err != nil {
			return err
		}
	}
	return nil
}

// PushTransform writes the effective transform of s onto the live object
// name in that object's own rotation order. Transforms are world space.
func (r *Reconciler) PushTransform(name string, s *spec.Spec) error {
	order, err := r.nativeOrder(name, s)
	if err != nil {
		return err
	}
	t, rot, sc := spec.Decompose(s.EffectiveMatrix(), order)
	if err := r.mgr.SetAttribute(name, scene.AttrTranslate, []float64{t.X, t.Y, t.Z}); err != nil {
		return err
	}
	if err := r.mgr.SetAttribute(name, scene.AttrRotate, []float64{rot.X, rot.Y, rot.Z}); err != nil {
		return err
	}
	return r.mgr.SetAttribute(name, scene.AttrScale, []float64{sc.X, sc.Y, sc.Z})
}

// nativeOrder reads the live object's rotation order, falling back to
// the spec's, then the reconciler default.
func (r *Reconciler) nativeOrder(name string, s *spec.Spec) (spec.RotateOrder, error) {
	v, err := r.mgr.GetAttribute(name, scene.AttrRotateOrder)
	if errors.Is(err, scene.ErrNotFound) {
		return s.RotateOrder.Or(r.order), nil
	}
	if err != nil {
		return 0, err
	}
	n, err := toInt(v)
	if err != nil {
		return 0, err
	}
	o := spec.RotateOrder(n)
	if !o.Valid() {
		return r.order, nil
	}
	return o, nil
}

// Delete removes the live object bound to s, first moving its live
// children to the scene root so they are not deleted with it, and clears
// the spec's identity.
func (r *Reconciler) Delete(s *spec.Spec) (Result, error) {
	name, found, err := r.Lookup(s)
	if err != nil {
		return r.fail(s, "lookup", err)
	}
	if !found {
		s.UUID = ""
		return Result{}, nil
	}
	kids, err := r.mgr.ListChildren(name)
	if err != nil {
		return r.fail(s, "list children", err)
	}
	for _, k := range kids {
		if err := r.mgr.Reparent(k, ""); err != nil && !r.skip(s, "rescue child", err) {
			return Result{}, fmt.Errorf("reconcile: rescue %q from %q: %w", k, name, err)
		}
	}
	if err := r.mgr.Delete(name); err != nil {
		return r.fail(s, "delete", err)
	}
	s.UUID = ""
	return Result{Deleted: true}, nil
}

// SyncAll reconciles every spec under specs in pre-order. Specs under a
// disabled ancestor are deleted, passthrough specs that still own a live
// object from an earlier build are deleted, and everything else is
// synced.
func (r *Reconciler) SyncAll(specs []*spec.Spec) (Report, error) {
	var rep Report
	for s := range spec.FlattenAll(specs) {
		var (
			res Result
			err error
		)
		switch {
		case !s.EffectivelyEnabled(), s.IsPassthrough():
			if s.UUID == "" {
				continue
			}
			res, err = r.Delete(s)
		default:
			res, err = r.Sync(s)
		}
		if err != nil {
			return rep, err
		}
		rep.add(res)
	}
	return rep, nil
}

// Flush deletes the live objects of every spec queued in bin, then saves
// the document if save is set. On failure the unprocessed specs are put
// back in the bin.
func (r *Reconciler) Flush(bin *spec.Bin, save bool) (Report, error) {
	var rep Report
	queued := bin.Drain()
	for i, s := range queued {
		res, err := r.Delete(s)
		if err != nil {
			bin.Push(queued[i:]...)
			return rep, err
		}
		rep.add(res)
	}
	if save {
		if err := r.mgr.Save(); err != nil {
			return rep, fmt.Errorf("reconcile: save: %w", err)
		}
	}
	return rep, nil
}
