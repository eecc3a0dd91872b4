package reconcile

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/armature/pkg/scene"
	"github.com/chazu/armature/pkg/spec"
)

func joint(name string) *spec.Spec {
	s := spec.NewJoint()
	s.Name = name
	return s
}

// chain builds root -> hip -> knee -> ankle.
func chain() (*spec.Spec, []*spec.Spec) {
	root := spec.NewRoot(spec.KindJoint)
	hip, knee, ankle := joint("hip"), joint("knee"), joint("ankle")
	root.AddChild(hip)
	hip.AddChild(knee)
	knee.AddChild(ankle)
	return root, []*spec.Spec{hip, knee, ankle}
}

func structuralCalls(r *scene.Recorder) int {
	return r.Count(scene.OpCreate) + r.Count(scene.OpRename) +
		r.Count(scene.OpReparent) + r.Count(scene.OpDelete)
}

func TestSyncAllCreatesHierarchy(t *testing.T) {
	sc := scene.New()
	root, specs := chain()
	specs[1].DefaultMatrix = sdf.Translate3d(v3.Vec{X: 1, Y: 2, Z: 3})

	rep, err := New(sc).SyncAll([]*spec.Spec{root})
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if rep.Created != 3 || rep.Synced != 3 {
		t.Errorf("report = %v", rep)
	}
	if !slices.Equal(sc.Names(), []string{"hip", "knee", "ankle"}) {
		t.Errorf("names = %v", sc.Names())
	}
	if p, _ := sc.Parent("ankle"); p != "knee" {
		t.Errorf("ankle parent = %q", p)
	}
	for _, s := range specs {
		if s.UUID == "" {
			t.Errorf("%s has no identity", s.Name)
		}
	}
	v, _ := sc.GetAttribute("knee", scene.AttrTranslate)
	if got := v.([]float64); got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("translate = %v", got)
	}
	if k, _ := sc.KindOf("hip"); k != scene.KindJoint {
		t.Errorf("kind = %q", k)
	}
}

func TestSyncAllIsIdempotent(t *testing.T) {
	rec := scene.NewRecorder(scene.New())
	root, _ := chain()
	r := New(rec)
	if _, err := r.SyncAll([]*spec.Spec{root}); err != nil {
		t.Fatal(err)
	}
	rec.Reset()
	rep, err := r.SyncAll([]*spec.Spec{root})
	if err != nil {
		t.Fatal(err)
	}
	if n := structuralCalls(rec); n != 0 {
		t.Errorf("second pass made %d structural calls: %+v", n, rec.Calls())
	}
	if rep.Structural() {
		t.Errorf("report = %v", rep)
	}
}

func TestSyncCapturesDisambiguatedName(t *testing.T) {
	sc := scene.New()
	sc.Create(scene.KindJoint, "hip", "")
	rec := scene.NewRecorder(sc)
	s := joint("hip")
	r := New(rec)
	if _, err := r.Sync(s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "hip1" {
		t.Errorf("name = %q, want hip1", s.Name)
	}
	rec.Reset()
	if _, err := r.Sync(s); err != nil {
		t.Fatal(err)
	}
	if rec.Count(scene.OpRename) != 0 {
		t.Error("resync renamed a disambiguated object")
	}
}

func TestSyncRenamesAndReparents(t *testing.T) {
	sc := scene.New()
	root, specs := chain()
	r := New(sc)
	if _, err := r.SyncAll([]*spec.Spec{root}); err != nil {
		t.Fatal(err)
	}
	knee, ankle := specs[1], specs[2]
	knee.Name = "shin"
	specs[0].AddChild(ankle)

	rep, err := r.SyncAll([]*spec.Spec{root})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Renamed != 1 || rep.Reparented != 1 || rep.Created != 0 {
		t.Errorf("report = %v", rep)
	}
	if p, _ := sc.Parent("ankle"); p != "hip" {
		t.Errorf("ankle parent = %q, want hip", p)
	}
	if name, _ := sc.ResolveName(knee.UUID); name != "shin" {
		t.Errorf("knee resolves to %q", name)
	}
}

func TestPassthroughNeverMaterializes(t *testing.T) {
	inner := scene.New()
	rec := scene.NewRecorder(inner)
	root := spec.NewRoot(spec.KindJoint)
	top, group, leaf := joint("top"), joint("group"), joint("leaf")
	group.Passthrough = true
	root.AddChild(top)
	top.AddChild(group)
	group.AddChild(leaf)

	if _, err := New(rec).SyncAll([]*spec.Spec{root}); err != nil {
		t.Fatal(err)
	}
	for _, c := range rec.Calls() {
		if c.Op == scene.OpCreate && c.Args[1] == "group" {
			t.Fatal("passthrough spec was created")
		}
	}
	if group.UUID != "" {
		t.Error("passthrough spec got an identity")
	}
	if p, _ := inner.Parent("leaf"); p != "top" {
		t.Errorf("leaf parent = %q, want top", p)
	}
}

func TestPassthroughToggleRemovesLiveObject(t *testing.T) {
	sc := scene.New()
	root := spec.NewRoot(spec.KindJoint)
	group, leaf := joint("group"), joint("leaf")
	root.AddChild(group)
	group.AddChild(leaf)
	r := New(sc, WithRootParent(""))
	if _, err := r.SyncAll([]*spec.Spec{root}); err != nil {
		t.Fatal(err)
	}
	leafID := leaf.UUID

	group.Passthrough = true
	rep, err := r.SyncAll([]*spec.Spec{root})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Deleted != 1 {
		t.Errorf("report = %v", rep)
	}
	if !slices.Equal(sc.Names(), []string{"leaf"}) {
		t.Errorf("names = %v", sc.Names())
	}
	if leaf.UUID != leafID {
		t.Error("leaf lost its identity")
	}
}

func TestDeleteRescuesChildren(t *testing.T) {
	sc := scene.New()
	root, specs := chain()
	r := New(sc)
	if _, err := r.SyncAll([]*spec.Spec{root}); err != nil {
		t.Fatal(err)
	}
	knee, ankle := specs[1], specs[2]
	res, err := r.Delete(knee)
	if err != nil || !res.Deleted {
		t.Fatalf("Delete = %+v, %v", res, err)
	}
	if knee.UUID != "" {
		t.Error("identity not cleared")
	}
	if ok, _ := sc.Exists(ankle.UUID); !ok {
		t.Fatal("child was deleted with its parent")
	}
	if p, _ := sc.Parent("ankle"); p != "" {
		t.Errorf("rescued child parent = %q, want scene root", p)
	}
}

func TestDisabledSubtreeIsDeleted(t *testing.T) {
	sc := scene.New()
	root, specs := chain()
	r := New(sc)
	if _, err := r.SyncAll([]*spec.Spec{root}); err != nil {
		t.Fatal(err)
	}
	specs[1].Enabled = false
	rep, err := r.SyncAll([]*spec.Spec{root})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Deleted != 2 {
		t.Errorf("report = %v", rep)
	}
	if !slices.Equal(sc.Names(), []string{"hip"}) {
		t.Errorf("names = %v", sc.Names())
	}
}

func TestFlushDeletesBinAndSaves(t *testing.T) {
	sc := scene.New()
	root, _ := chain()
	r := New(sc)
	if _, err := r.SyncAll([]*spec.Spec{root}); err != nil {
		t.Fatal(err)
	}
	var bin spec.Bin
	if _, err := spec.ResizeChain(1, root, spec.NewJoint, &bin); err != nil {
		t.Fatal(err)
	}
	rep, err := r.Flush(&bin, true)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Deleted != 2 || bin.Len() != 0 {
		t.Errorf("report = %v, bin = %d", rep, bin.Len())
	}
	if sc.Saves() != 1 {
		t.Errorf("saves = %d", sc.Saves())
	}
	if !slices.Equal(sc.Names(), []string{"hip"}) {
		t.Errorf("names = %v", sc.Names())
	}
}

// failing fails every Create with a non-recoverable error.
type failing struct {
	scene.Manager
}

var errBoom = errors.New("session dropped")

func (failing) Create(scene.Kind, string, string) (string, string, error) {
	return "", "", errBoom
}

// vanishing reports every name as missing.
type vanishing struct {
	scene.Manager
}

func (vanishing) Create(scene.Kind, string, string) (string, string, error) {
	return "", "", scene.ErrNotFound
}

func TestErrorsPropagateUnlessNotFound(t *testing.T) {
	root, _ := chain()
	_, err := New(failing{scene.New()}).SyncAll([]*spec.Spec{root})
	if !errors.Is(err, errBoom) {
		t.Errorf("err = %v, want wrapped errBoom", err)
	}

	root, _ = chain()
	rep, err := New(vanishing{scene.New()}).SyncAll([]*spec.Spec{root})
	if err != nil {
		t.Fatalf("not-found failure propagated: %v", err)
	}
	if rep.Skipped != 3 {
		t.Errorf("report = %v", rep)
	}
}

func TestSyncUsesNativeRotateOrder(t *testing.T) {
	sc := scene.New()
	s := joint("wrist")
	rot := v3.Vec{X: 10, Y: 20, Z: 30}
	s.DefaultMatrix = spec.Compose(v3.Vec{}, rot, spec.XYZ)
	r := New(sc)
	if _, err := r.Sync(s); err != nil {
		t.Fatal(err)
	}
	sc.SetAttribute("wrist", scene.AttrRotateOrder, int(spec.ZYX))
	if _, err := r.Sync(s); err != nil {
		t.Fatal(err)
	}
	v, _ := sc.GetAttribute("wrist", scene.AttrRotate)
	got := v.([]float64)
	back := spec.Compose(v3.Vec{}, v3.Vec{X: got[0], Y: got[1], Z: got[2]}, spec.ZYX)
	if !back.Equals(s.DefaultMatrix, 1e-9) {
		t.Errorf("rotation %v in ZYX does not rebuild the transform", got)
	}
}

func TestCreateUsesDefaultRotateOrder(t *testing.T) {
	sc := scene.New()
	r := New(sc, WithRotateOrder(spec.ZYX))
	wrist, ankle := joint("wrist"), joint("ankle")
	ankle.RotateOrder = spec.YXZ
	rot := v3.Vec{X: 10, Y: 20, Z: 30}
	wrist.DefaultMatrix = spec.Compose(v3.Vec{}, rot, spec.XYZ)
	if _, err := r.SyncAll([]*spec.Spec{wrist, ankle}); err != nil {
		t.Fatal(err)
	}

	if v, _ := sc.GetAttribute("wrist", scene.AttrRotateOrder); v != int(spec.ZYX) {
		t.Errorf("wrist rotateOrder = %v, want %d", v, int(spec.ZYX))
	}
	if v, _ := sc.GetAttribute("ankle", scene.AttrRotateOrder); v != int(spec.YXZ) {
		t.Errorf("ankle rotateOrder = %v, want the pinned %d", v, int(spec.YXZ))
	}
	v, _ := sc.GetAttribute("wrist", scene.AttrRotate)
	got := v.([]float64)
	back := spec.Compose(v3.Vec{}, v3.Vec{X: got[0], Y: got[1], Z: got[2]}, spec.ZYX)
	if !back.Equals(wrist.DefaultMatrix, 1e-9) {
		t.Errorf("rotation %v was not written in the default order", got)
	}
}

func TestCacheTransform(t *testing.T) {
	sc := scene.New()
	s := joint("elbow")
	r := New(sc)
	if _, err := r.Sync(s); err != nil {
		t.Fatal(err)
	}
	sc.SetAttribute("elbow", scene.AttrTranslate, []any{uint64(4), 5.0, -6.0})
	sc.SetAttribute("elbow", scene.AttrRotate, []float64{0, 90, 0})
	ok, err := r.CacheTransform(s)
	if err != nil || !ok {
		t.Fatalf("CacheTransform = %v, %v", ok, err)
	}
	p := s.EffectiveMatrix().MulPosition(v3.Vec{X: 1})
	want := v3.Vec{X: 4, Y: 5, Z: -7}
	if math.Abs(p.X-want.X) > 1e-9 || math.Abs(p.Y-want.Y) > 1e-9 || math.Abs(p.Z-want.Z) > 1e-9 {
		t.Errorf("transformed point = %v, want %v", p, want)
	}

	orphan := joint("orphan")
	if ok, err := r.CacheTransform(orphan); ok || err != nil {
		t.Errorf("orphan CacheTransform = %v, %v", ok, err)
	}
}

func TestBind(t *testing.T) {
	sc := scene.New()
	sc.Create(scene.KindControl, "rig:arm_ctl", "")
	s := joint("arm")
	r := New(sc)
	if _, err := r.Sync(s); err != nil {
		t.Fatal(err)
	}

	b := s.Binding()
	b.DriverName, b.DriverNamespace = "arm_ctl", "rig"
	b.Type = spec.BindConstraint
	b.MaintainOffset = true
	b.SkipRotate = spec.AxisX | spec.AxisZ
	ok, err := r.Bind(s)
	if err != nil || !ok {
		t.Fatalf("Bind = %v, %v", ok, err)
	}
	v, _ := sc.GetAttribute("arm", scene.AttrConstraint)
	c := v.(map[string]any)
	if c["driver"] != "rig:arm_ctl" || c["maintainOffset"] != true || c["skipRotate"] != "xz" {
		t.Errorf("constraint = %v", c)
	}
	if ok, _ := r.Unbind(s); !ok {
		t.Error("Unbind failed")
	}
	if v, _ := sc.GetAttribute("arm", scene.AttrConstraint); v != "" {
		t.Errorf("constraint after unbind = %v", v)
	}

	b.Type = spec.BindReparent
	if ok, _ := r.Bind(s); !ok {
		t.Fatal("reparent Bind failed")
	}
	if p, _ := sc.Parent("arm"); p != "rig:arm_ctl" {
		t.Errorf("parent = %q", p)
	}
	r.Unbind(s)
	if p, _ := sc.Parent("arm"); p != "" {
		t.Errorf("parent after unbind = %q", p)
	}

	b.DriverName = "missing_ctl"
	if ok, err := r.Bind(s); ok || err != nil {
		t.Errorf("missing driver Bind = %v, %v", ok, err)
	}
	b.Type = spec.BindNone
	if ok, _ := r.Bind(s); ok {
		t.Error("typeless binding applied")
	}
}

func TestReferenceScopesLookup(t *testing.T) {
	sc := scene.New()
	r := New(sc, WithReference(scene.Reference{Namespace: "char"}))
	s := joint("hip")
	if _, err := r.Sync(s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "hip" {
		t.Errorf("spec name = %q, want unqualified", s.Name)
	}
	if !slices.Equal(sc.Names(), []string{"char:hip"}) {
		t.Errorf("names = %v", sc.Names())
	}
	if _, found, _ := New(sc).Lookup(s); !found {
		t.Error("unscoped lookup missed the object")
	}
	if _, found, _ := New(sc, WithReference(scene.Reference{Namespace: "other"})).Lookup(s); found {
		t.Error("lookup crossed reference boundary")
	}
}

func TestScopedRootParent(t *testing.T) {
	sc := scene.New()
	sc.Create(scene.KindJoint, "socket", "")
	s := joint("child")
	if _, err := New(sc).Scoped("socket").Sync(s); err != nil {
		t.Fatal(err)
	}
	if p, _ := sc.Parent("child"); p != "socket" {
		t.Errorf("parent = %q", p)
	}
}
