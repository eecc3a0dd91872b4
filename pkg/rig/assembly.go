package rig

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/chazu/armature/pkg/kernel"
	"github.com/chazu/armature/pkg/reconcile"
	"github.com/chazu/armature/pkg/scene"
	"github.com/chazu/armature/pkg/spec"
	"github.com/chazu/armature/pkg/tessellate"
)

// Step names one phase of a component's transition.
type Step string

const (
	StepPrepareSkeleton  Step = "prepareSkeleton"
	StepBuildSkeleton    Step = "buildSkeleton"
	StepFinalizeSkeleton Step = "finalizeSkeleton"
	StepPreparePivots    Step = "preparePivots"
	StepBuildPivots      Step = "buildPivots"
	StepFinalizePivots   Step = "finalizePivots"
	StepCacheTransforms  Step = "cacheTransforms"
	StepPrepareRig       Step = "prepareRig"
	StepBuildRig         Step = "buildRig"
	StepRigCompleted     Step = "rigCompleted"
	StepFinalizeRig      Step = "finalizeRig"
	StepDeleteRig        Step = "deleteRig"
	StepTeardown         Step = "teardownSkeleton"
)

// Event reports a completed step.
type Event struct {
	Component *Component
	Step      Step
}

// TransitionError reports the step that stopped a state change. The
// failing component keeps its previous status.
type TransitionError struct {
	Component string
	From, To  Status
	Step      Step
	Err       error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("rig: %s %s to %s: %s: %v", e.Component, e.From, e.To, e.Step, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// Option configures an Assembly.
type Option func(*Assembly)

// WithReference scopes live lookups to a referenced sub-document.
func WithReference(ref scene.Reference) Option {
	return func(a *Assembly) {
		a.ref = ref
		a.recOpts = append(a.recOpts, reconcile.WithReference(ref))
	}
}

// WithResolver sets the driver resolver used for bindings.
func WithResolver(d scene.DriverResolver) Option {
	return func(a *Assembly) { a.recOpts = append(a.recOpts, reconcile.WithResolver(d)) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembly) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithObserver is called after every completed step.
func WithObserver(fn func(Event)) Option {
	return func(a *Assembly) { a.observe = fn }
}

// WithSaveOnFinalize saves the document when a skeleton build finalizes.
func WithSaveOnFinalize(v bool) Option {
	return func(a *Assembly) { a.saveOnFinalize = v }
}

// WithFlushSave saves the document after each bin flush.
func WithFlushSave(v bool) Option {
	return func(a *Assembly) { a.flushSave = v }
}

// WithKernel enables pivot display meshes built with k.
func WithKernel(k kernel.Kernel) Option {
	return func(a *Assembly) { a.kernel = k }
}

// WithRotateOrder sets the rotation order assumed for live objects that
// report none.
func WithRotateOrder(o spec.RotateOrder) Option {
	return func(a *Assembly) { a.recOpts = append(a.recOpts, reconcile.WithRotateOrder(o)) }
}

// WithRootParent hangs the root component under an existing live object.
func WithRootParent(name string) Option {
	return func(a *Assembly) { a.rootParent = name }
}

// Assembly drives state changes over a component tree. It is not safe
// for concurrent use; callers serialize state changes.
type Assembly struct {
	root    *Component
	mgr     scene.Manager
	rec     *reconcile.Reconciler
	ref     scene.Reference
	logger  *slog.Logger
	observe func(Event)
	kernel  kernel.Kernel

	saveOnFinalize bool
	flushSave      bool
	rootParent     string
	recOpts        []reconcile.Option

	report reconcile.Report
}

// NewAssembly returns an assembly for the tree rooted at root that
// mutates the scene through mgr.
func NewAssembly(root *Component, mgr scene.Manager, opts ...Option) *Assembly {
	a := &Assembly{
		root:   root,
		mgr:    mgr,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(a)
	}
	recOpts := append(slices.Clone(a.recOpts), reconcile.WithLogger(a.logger), reconcile.WithRootParent(a.rootParent))
	a.rec = reconcile.New(mgr, recOpts...)
	return a
}

// Root returns the root component.
func (a *Assembly) Root() *Component { return a.root }

// Reconciler returns the reconciler the assembly syncs with.
func (a *Assembly) Reconciler() *reconcile.Reconciler { return a.rec }

// Report returns the reconciliation totals of the last state change.
func (a *Assembly) Report() reconcile.Report { return a.report }

// ChangeState moves c and its descendants to target. Every ancestor of c
// must already be in target. Non-adjacent moves compose the atomic
// transitions: Parametric to Rig goes through Skeleton, and Rig to
// Parametric tears the rig down before the skeleton. Skeleton to Rig
// first builds the skeletons of descendants still Parametric, such as
// children added after c was built. Asking for Skeleton
// while in Skeleton re-syncs the subtree so parameter edits take effect.
func (a *Assembly) ChangeState(c *Component, target Status) error {
	for p := c.parent; p != nil; p = p.parent {
		if p.status != target {
			return fmt.Errorf("%w: %s is %s, cannot move %s to %s", ErrState, p, p.status, c, target)
		}
	}
	a.report = reconcile.Report{}

	from := c.status
	var path []func(*Component) error
	switch {
	case target == Skeleton && from != Rig:
		path = append(path, a.toSkeleton)
	case target == Rig && from == Parametric:
		path = append(path, a.toSkeleton, a.toRig)
	case target == Rig && from == Skeleton:
		path = append(path, a.promoteParametric, a.toRig)
	case target == Skeleton && from == Rig:
		path = append(path, a.rigToSkeleton)
	case target == Parametric && from == Skeleton:
		path = append(path, a.toParametric)
	case target == Parametric && from == Rig:
		path = append(path, a.rigToSkeleton, a.toParametric)
	case target == from:
		return nil
	default:
		return fmt.Errorf("%w: no transition from %s to %s", ErrState, from, target)
	}

	a.logger.Info("changing state", "component", c.Name, "from", from, "to", target)
	for _, run := range path {
		if err := run(c); err != nil {
			return err
		}
	}
	a.logger.Info("state changed", "component", c.Name, "to", target, "report", a.report.String())
	return nil
}

type stepFunc struct {
	step Step
	fn   func() error
}

// run executes steps in order for one component, emitting an event after
// each.
func (a *Assembly) run(c *Component, from, to Status, steps []stepFunc) error {
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return &TransitionError{Component: c.Name, From: from, To: to, Step: s.step, Err: err}
		}
		a.logger.Debug("step completed", "component", c.Name, "step", s.step)
		if a.observe != nil {
			a.observe(Event{Component: c, Step: s.step})
		}
	}
	return nil
}

// validate rejects a rebuilt tree with broken structure. Advisory
// findings are logged.
func (a *Assembly) validate(c *Component, root *spec.Spec) error {
	var errs []error
	for _, f := range spec.Validate(root) {
		if f.Severity == spec.SeverityError {
			errs = append(errs, f)
			continue
		}
		a.logger.Warn("spec tree", "component", c.Name, "finding", f.Message)
	}
	return errors.Join(errs...)
}

func (a *Assembly) sync(rec *reconcile.Reconciler, root *spec.Spec) error {
	rep, err := rec.SyncAll([]*spec.Spec{root})
	a.report.Merge(rep)
	return err
}

func (a *Assembly) flush(rec *reconcile.Reconciler, c *Component) error {
	if c.bin.Len() == 0 {
		return nil
	}
	rep, err := rec.Flush(&c.bin, a.flushSave)
	a.report.Merge(rep)
	return err
}

// scoped returns a reconciler that hangs c's top-level specs under its
// attachment.
func (a *Assembly) scoped(c *Component) *reconcile.Reconciler {
	if c.parent == nil {
		return a.rec
	}
	export, _ := c.AttachmentTargets()
	if export == "" {
		a.logger.Warn("no attachment, parenting under assembly root",
			"component", c.Name, "attachment", c.AttachmentID)
		return a.rec
	}
	return a.rec.Scoped(a.ref.Qualify(export))
}

// toSkeleton builds or re-syncs the skeleton of every non-rigged
// component under c, parents first.
func (a *Assembly) toSkeleton(c *Component) error {
	for d := range Walk(c) {
		if d.status == Rig {
			continue
		}
		from := d.status
		var rec *reconcile.Reconciler
		var joints, pivots *spec.Spec
		err := a.run(d, from, Skeleton, []stepFunc{
			{StepPrepareSkeleton, func() error {
				rec = a.scoped(d)
				return nil
			}},
			{StepBuildSkeleton, func() error {
				var err error
				if joints, err = d.Joints(); err != nil {
					return err
				}
				if err := a.validate(d, joints); err != nil {
					return err
				}
				if err := a.flush(rec, d); err != nil {
					return err
				}
				return a.sync(rec, joints)
			}},
			{StepFinalizeSkeleton, func() error {
				if a.saveOnFinalize {
					return a.mgr.Save()
				}
				return nil
			}},
			{StepPreparePivots, func() error {
				var err error
				pivots, err = d.Pivots()
				return err
			}},
			{StepBuildPivots, func() error {
				if err := a.validate(d, pivots); err != nil {
					return err
				}
				if err := a.flush(rec, d); err != nil {
					return err
				}
				if err := a.sync(rec, pivots); err != nil {
					return err
				}
				return a.pushDisplayMeshes(rec, pivots)
			}},
			{StepFinalizePivots, func() error {
				return a.flush(rec, d)
			}},
		})
		if err != nil {
			return err
		}
		d.status = Skeleton
	}
	return nil
}

func (a *Assembly) pushDisplayMeshes(rec *reconcile.Reconciler, pivots *spec.Spec) error {
	if a.kernel == nil {
		return nil
	}
	for p := range spec.Flatten([]*spec.Spec{pivots}, spec.Filter{}) {
		if p.UUID == "" {
			continue
		}
		mesh, err := tessellate.Pivot(a.kernel, p)
		if err != nil {
			return err
		}
		if mesh == nil {
			continue
		}
		name, found, err := rec.Lookup(p)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		err = a.mgr.SetAttribute(name, scene.AttrDisplayMesh, tessellate.Attribute(mesh))
		if errors.Is(err, scene.ErrNotFound) {
			a.logger.Warn("pivot vanished before its display mesh was set", "pivot", p.Name)
			continue
		}
		if err != nil {
			return fmt.Errorf("set display mesh on %q: %w", name, err)
		}
	}
	return nil
}

// cache reads live transforms back into every spec of c.
func (a *Assembly) cache(rec *reconcile.Reconciler, c *Component) error {
	for _, root := range []*spec.Spec{c.joints, c.pivots} {
		if _, err := rec.CacheTransforms([]*spec.Spec{root}); err != nil {
			return err
		}
	}
	return nil
}

// deleteLive deletes the live objects of every spec under root, deepest
// first.
func (a *Assembly) deleteLive(rec *reconcile.Reconciler, root *spec.Spec) error {
	specs := slices.Collect(spec.FlattenAll([]*spec.Spec{root}))
	slices.Reverse(specs)
	for _, s := range specs {
		if s.UUID == "" {
			continue
		}
		res, err := rec.Delete(s)
		if err != nil {
			return err
		}
		if res.Deleted {
			a.report.Deleted++
		}
	}
	return nil
}

// toRig builds the rig of every skeleton component under c in two
// passes. finalizeRig runs only after every component has completed its
// rig build.
// promoteParametric builds the skeleton of every Parametric subtree
// below c, leaving components already built untouched.
func (a *Assembly) promoteParametric(c *Component) error {
	for d := range Walk(c) {
		if d.status != Parametric || (d.parent != nil && d.parent.status == Parametric) {
			continue
		}
		if err := a.toSkeleton(d); err != nil {
			return err
		}
	}
	return nil
}

func (a *Assembly) toRig(c *Component) error {
	var built []*Component
	for d := range Walk(c) {
		if d.status != Skeleton {
			continue
		}
		rec := a.rec
		var rc *RigContext
		err := a.run(d, Skeleton, Rig, []stepFunc{
			{StepCacheTransforms, func() error {
				rec = a.scoped(d)
				if err := a.cache(rec, d); err != nil {
					return err
				}
				return a.deleteLive(rec, d.pivots)
			}},
			{StepPrepareRig, func() error {
				if len(d.rigObjects) > 0 {
					if err := a.deleteRigObjects(d); err != nil {
						return err
					}
				}
				d.controls = make(map[*spec.Spec]string)
				_, driver := d.AttachmentTargets()
				rc = &RigContext{Component: d, Driver: driver, a: a, rec: rec}
				return nil
			}},
			{StepBuildRig, func() error {
				if rb, ok := d.builder.(RigBuilder); ok {
					return rb.BuildRig(rc)
				}
				_, err := rc.BuildControls()
				return err
			}},
			{StepRigCompleted, func() error {
				if err := a.bindControls(d, rec); err != nil {
					return err
				}
				_, err := rec.CacheTransforms([]*spec.Spec{d.joints})
				return err
			}},
		})
		if err != nil {
			return err
		}
		built = append(built, d)
	}
	for _, d := range built {
		err := a.run(d, Skeleton, Rig, []stepFunc{
			{StepFinalizeRig, func() error { return a.finalizeSpaces(d) }},
		})
		if err != nil {
			return err
		}
		d.status = Rig
	}
	return nil
}

// rigToSkeleton removes the rig of every rigged component under c,
// children first, and restores its pivots.
func (a *Assembly) rigToSkeleton(c *Component) error {
	for _, d := range walkReverse(c) {
		if d.status != Rig {
			continue
		}
		err := a.run(d, Rig, Skeleton, []stepFunc{
			{StepDeleteRig, func() error {
				rec := a.scoped(d)
				if err := a.unbindControls(d, rec); err != nil {
					return err
				}
				if err := a.deleteRigObjects(d); err != nil {
					return err
				}
				// Pivots were consumed by the rig build.
				if err := a.sync(rec, d.pivots); err != nil {
					return err
				}
				return a.pushDisplayMeshes(rec, d.pivots)
			}},
		})
		if err != nil {
			return err
		}
		d.status = Skeleton
	}
	return nil
}

// toParametric caches the final transforms of every skeleton component
// under c and deletes its live objects, children first.
func (a *Assembly) toParametric(c *Component) error {
	for _, d := range walkReverse(c) {
		if d.status != Skeleton {
			continue
		}
		err := a.run(d, Skeleton, Parametric, []stepFunc{
			{StepTeardown, func() error {
				rec := a.scoped(d)
				if err := a.cache(rec, d); err != nil {
					return err
				}
				if err := a.deleteLive(rec, d.pivots); err != nil {
					return err
				}
				if err := a.deleteLive(rec, d.joints); err != nil {
					return err
				}
				return a.flush(rec, d)
			}},
		})
		if err != nil {
			return err
		}
		d.status = Parametric
	}
	return nil
}
