package reconcile

import (
	"errors"
	"fmt"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/armature/pkg/scene"
	"github.com/chazu/armature/pkg/spec"
)

// Bind applies the joint's binding to its live object. It returns false
// without error when the binding has no type, when the driver or the
// driven object is missing, or when no resolver is available; the last
// two are logged as warnings.
func (r *Reconciler) Bind(s *spec.Spec) (bool, error) {
	b := s.Binding()
	if b == nil || b.Type == spec.BindNone {
		return false, nil
	}
	if !b.HasDriver() {
		r.logger.Warn("binding has no driver", "spec", s.Name, "type", b.Type)
		return false, nil
	}
	if r.resolver == nil {
		r.logger.Warn("no driver resolver", "spec", s.Name, "driver", b.Qualified())
		return false, nil
	}
	driver, found, err := r.resolver.LookupQualified(b.DriverNamespace, b.DriverName)
	if err != nil && !errors.Is(err, scene.ErrNotFound) {
		return false, fmt.Errorf("reconcile: resolve driver %q: %w", b.Qualified(), err)
	}
	if !found {
		r.logger.Warn("driver not found", "spec", s.Name, "driver", b.Qualified())
		return false, nil
	}
	driven, found, err := r.Lookup(s)
	if err != nil && !errors.Is(err, scene.ErrNotFound) {
		return false, fmt.Errorf("reconcile: lookup %q: %w", s.Name, err)
	}
	if !found {
		r.logger.Warn("driven object not found", "spec", s.Name, "driver", driver)
		return false, nil
	}

	switch b.Type {
	case spec.BindConstraint:
		err = r.mgr.SetAttribute(driven, scene.AttrConstraint, map[string]any{
			"driver":         driver,
			"maintainOffset": b.MaintainOffset,
			"skipTranslate":  b.SkipTranslate.String(),
			"skipRotate":     b.SkipRotate.String(),
			"skipScale":      b.SkipScale.String(),
		})
	case spec.BindReparent:
		err = r.mgr.Reparent(driven, driver)
	case spec.BindOffsetTransform:
		err = r.mgr.SetAttribute(driven, scene.AttrOffsetParent, driver)
	default:
		return false, fmt.Errorf("reconcile: %q: unknown binding type %s", s.Name, b.Type)
	}
	if err != nil {
		if r.skip(s, "bind", err) {
			return false, nil
		}
		return false, fmt.Errorf("reconcile: bind %q to %q: %w", s.Name, driver, err)
	}
	return true, nil
}

// Unbind undoes Bind. A reparent binding puts the driven object back
// under its live parent.
func (r *Reconciler) Unbind(s *spec.Spec) (bool, error) {
	b := s.Binding()
	if b == nil || b.Type == spec.BindNone {
		return false, nil
	}
	driven, found, err := r.Lookup(s)
	if err != nil && !errors.Is(err, scene.ErrNotFound) {
		return false, fmt.Errorf("reconcile: lookup %q: %w", s.Name, err)
	}
	if !found {
		r.logger.Warn("driven object not found", "spec", s.Name)
		return false, nil
	}
	switch b.Type {
	case spec.BindConstraint:
		err = r.mgr.SetAttribute(driven, scene.AttrConstraint, "")
	case spec.BindReparent:
		err = r.mgr.Reparent(driven, r.parentName(s))
	case spec.BindOffsetTransform:
		err = r.mgr.SetAttribute(driven, scene.AttrOffsetParent, "")
	}
	if err != nil {
		if r.skip(s, "unbind", err) {
			return false, nil
		}
		return false, fmt.Errorf("reconcile: unbind %q: %w", s.Name, err)
	}
	return true, nil
}

// CacheTransform reads the live object's transform back into s. It
// returns false when s has no live object.
func (r *Reconciler) CacheTransform(s *spec.Spec) (bool, error) {
	name, found, err := r.Lookup(s)
	if err != nil {
		if r.skip(s, "cache transform", err) {
			return false, nil
		}
		return false, fmt.Errorf("reconcile: lookup %q: %w", s.Name, err)
	}
	if !found {
		return false, nil
	}
	t, err := r.readVec(name, scene.AttrTranslate, v3.Vec{})
	if err != nil {
		return false, err
	}
	rot, err := r.readVec(name, scene.AttrRotate, v3.Vec{})
	if err != nil {
		return false, err
	}
	sc, err := r.readVec(name, scene.AttrScale, v3.Vec{X: 1, Y: 1, Z: 1})
	if err != nil {
		return false, err
	}
	order, err := r.nativeOrder(name, s)
	if err != nil {
		return false, fmt.Errorf("reconcile: read rotate order of %q: %w", name, err)
	}
	s.SetMatrix(spec.ComposeTRS(t, rot, sc, order))
	return true, nil
}

// CacheTransforms caches every materialized spec under specs.
func (r *Reconciler) CacheTransforms(specs []*spec.Spec) (int, error) {
	n := 0
	for s := range spec.Flatten(specs, spec.Filter{}) {
		ok, err := r.CacheTransform(s)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (r *Reconciler) readVec(name, key string, fallback v3.Vec) (v3.Vec, error) {
	v, err := r.mgr.GetAttribute(name, key)
	if errors.Is(err, scene.ErrNotFound) {
		return fallback, nil
	}
	if err != nil {
		return v3.Vec{}, fmt.Errorf("reconcile: read %s of %q: %w", key, name, err)
	}
	vec, err := toVec(v)
	if err != nil {
		return v3.Vec{}, fmt.Errorf("reconcile: read %s of %q: %w", key, name, err)
	}
	return vec, nil
}

// toVec accepts the shapes a three-component attribute takes locally and
// after a CBOR round trip.
func toVec(v any) (v3.Vec, error) {
	var xs []any
	switch t := v.(type) {
	case v3.Vec:
		return t, nil
	case [3]float64:
		return v3.Vec{X: t[0], Y: t[1], Z: t[2]}, nil
	case []float64:
		if len(t) != 3 {
			return v3.Vec{}, fmt.Errorf("want 3 components, got %d", len(t))
		}
		return v3.Vec{X: t[0], Y: t[1], Z: t[2]}, nil
	case []any:
		xs = t
	default:
		return v3.Vec{}, fmt.Errorf("unsupported vector value %T", v)
	}
	if len(xs) != 3 {
		return v3.Vec{}, fmt.Errorf("want 3 components, got %d", len(xs))
	}
	var out [3]float64
	for i, x := range xs {
		f, err := toFloat(x)
		if err != nil {
			return v3.Vec{}, err
		}
		out[i] = f
	}
	return v3.Vec{X: out[0], Y: out[1], Z: out[2]}, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("unsupported number %T", v)
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		return int(n), nil
	case spec.RotateOrder:
		return int(n), nil
	}
	return 0, fmt.Errorf("unsupported integer %T", v)
}
