package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/armature/pkg/config"
	"github.com/chazu/armature/pkg/rig"
	"github.com/chazu/armature/pkg/scene"
)

const bipedSource = `
(assembly "biped"
  (component "root"
    (component "spine" :name "spine" :links 3
      (component "head" :name "head" :attach -1)
      (component "clavicle" :name "clav" :side :left :attach -1))
    (component "tail" :name "tail" :links 4)))
`

const bipedWithoutHead = `
(assembly "biped"
  (component "root"
    (component "spine" :name "spine" :links 3
      (component "clavicle" :name "clav" :side :left :attach -1))
    (component "tail" :name "tail" :links 2)))
`

func newTestApp(t *testing.T) (*App, *scene.Scene) {
	t.Helper()
	cfg := config.Default()
	cfg.Build.DisplayMeshes = false
	mgr := scene.New()
	return NewApp(cfg, mgr, nil), mgr
}

func mustLoad(t *testing.T, app *App, source string) {
	t.Helper()
	if err := app.Load(source); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func mustChange(t *testing.T, app *App, name string, target rig.Status) {
	t.Helper()
	if err := app.ChangeState(name, target); err != nil {
		t.Fatalf("ChangeState(%q, %s): %v", name, target, err)
	}
}

func withPrefix(names []string, prefix string) []string {
	var out []string
	for _, n := range names {
		if strings.HasPrefix(n, prefix) {
			out = append(out, n)
		}
	}
	return out
}

// TestBipedExample builds the bundled example script all the way to a
// rig.
func TestBipedExample(t *testing.T) {
	app, mgr := newTestApp(t)
	if err := app.LoadFile("examples/biped.rig"); err != nil {
		t.Fatal(err)
	}
	root := app.Root()
	if root.Name != "biped" || root.Status() != rig.Parametric {
		t.Fatalf("root = %s %s", root, root.Status())
	}
	if mgr.Len() != 0 {
		t.Fatalf("loading touched the scene: %v", mgr.Names())
	}

	mustChange(t, app, "", rig.Rig)
	for c := range rig.Walk(root) {
		if c.Status() != rig.Rig {
			t.Errorf("%s = %s", c, c.Status())
		}
	}
	names := mgr.Names()
	if _, ok := mgr.IdentityOf("biped_C_root_jnt"); !ok {
		t.Errorf("root joint missing from %v", names)
	}
	for _, prefix := range []string{"clav_L_", "clav_R_", "arm_L_", "arm_R_", "head_C_", "tail_C_"} {
		if len(withPrefix(names, prefix)) == 0 {
			t.Errorf("no objects named %s*", prefix)
		}
	}
	if len(app.Events()) == 0 {
		t.Error("no steps observed")
	}
}

func TestReloadKeepsIdentityAndDeletesRetired(t *testing.T) {
	app, mgr := newTestApp(t)
	mustLoad(t, app, bipedSource)
	mustChange(t, app, "", rig.Skeleton)

	rootID, ok := mgr.IdentityOf("biped_C_root_jnt")
	if !ok {
		t.Fatal("root joint not built")
	}
	if len(withPrefix(mgr.Names(), "head_")) == 0 {
		t.Fatal("head not built")
	}
	before := len(withPrefix(mgr.Names(), "tail_"))

	mustLoad(t, app, bipedWithoutHead)
	root := app.Root()
	if root.Status() != rig.Skeleton {
		t.Errorf("reloaded root = %s", root.Status())
	}
	if id, _ := mgr.IdentityOf("biped_C_root_jnt"); id != rootID {
		t.Errorf("root joint identity %q, want %q", id, rootID)
	}
	if got := withPrefix(mgr.Names(), "head_"); len(got) != 0 {
		t.Errorf("retired head objects remain: %v", got)
	}
	if after := len(withPrefix(mgr.Names(), "tail_")); after >= before {
		t.Errorf("tail objects %d, want fewer than %d", after, before)
	}
	if app.Report().Created != 0 {
		t.Errorf("reload created objects: %s", app.Report())
	}
}

func TestReloadRestoresRig(t *testing.T) {
	app, mgr := newTestApp(t)
	mustLoad(t, app, bipedSource)
	mustChange(t, app, "", rig.Rig)
	controls := len(withPrefix(mgr.Names(), "spine_"))

	mustLoad(t, app, bipedSource)
	for c := range rig.Walk(app.Root()) {
		if c.Status() != rig.Rig {
			t.Errorf("%s = %s after reload", c, c.Status())
		}
	}
	if got := len(withPrefix(mgr.Names(), "spine_")); got != controls {
		t.Errorf("spine objects %d after reload, want %d", got, controls)
	}
}

func TestChangeComponent(t *testing.T) {
	app, _ := newTestApp(t)
	mustLoad(t, app, bipedSource)
	mustChange(t, app, "", rig.Skeleton)

	if err := app.ChangeState("tail", rig.Rig); !errors.Is(err, rig.ErrState) {
		t.Errorf("rigging tail under a skeleton root = %v", err)
	}
	if got := app.Root().Find("tail").Status(); got != rig.Skeleton {
		t.Errorf("tail = %s", got)
	}

	mustChange(t, app, "tail", rig.Skeleton)
	if r := app.Report(); r.Structural() {
		t.Errorf("resyncing a built tail = %s", r)
	}
	if err := app.ChangeState("wing", rig.Skeleton); err == nil {
		t.Error("ChangeState on an unknown component succeeded")
	}
}

func TestLoadErrors(t *testing.T) {
	app, _ := newTestApp(t)
	if err := app.ChangeState("", rig.Skeleton); !errors.Is(err, ErrNoAssembly) {
		t.Errorf("ChangeState before load = %v", err)
	}
	if err := app.Load(""); !errors.Is(err, ErrNoAssembly) {
		t.Errorf("empty script = %v", err)
	}
	var loadErr *LoadError
	if err := app.Load(`(component "wing")`); !errors.As(err, &loadErr) {
		t.Errorf("unknown type = %v", err)
	} else if !strings.Contains(loadErr.Error(), "unknown component type") {
		t.Errorf("message = %q", loadErr.Error())
	}
	if app.Root() != nil {
		t.Error("a failed load replaced the tree")
	}
}

func TestFailedReloadKeepsTree(t *testing.T) {
	app, _ := newTestApp(t)
	mustLoad(t, app, bipedSource)
	mustChange(t, app, "", rig.Skeleton)
	root := app.Root()

	if err := app.Load(`(assembly "biped" (component "root" :side :up))`); err == nil {
		t.Fatal("bad reload succeeded")
	}
	if app.Root() != root || root.Status() != rig.Skeleton {
		t.Error("failed reload disturbed the current tree")
	}
}

func TestSnapshotRestore(t *testing.T) {
	app, mgr := newTestApp(t)
	mustLoad(t, app, bipedSource)
	mustChange(t, app, "", rig.Skeleton)
	objects := mgr.Len()

	path := filepath.Join(t.TempDir(), "biped.arms")
	if err := app.Snapshot(path); err != nil {
		t.Fatal(err)
	}

	restored := NewApp(app.cfg, mgr, nil)
	if err := restored.Restore(path); err != nil {
		t.Fatal(err)
	}
	if got := restored.Root().Status(); got != rig.Skeleton {
		t.Errorf("restored root = %s", got)
	}
	mustChange(t, restored, "", rig.Skeleton)
	if r := restored.Report(); r.Created != 0 || r.Deleted != 0 {
		t.Errorf("resync after restore = %s", r)
	}
	if mgr.Len() != objects {
		t.Errorf("objects = %d, want %d", mgr.Len(), objects)
	}
}

func TestPrintStatus(t *testing.T) {
	app, _ := newTestApp(t)
	var buf bytes.Buffer
	app.PrintStatus(&buf)
	if !strings.Contains(buf.String(), "no assembly") {
		t.Errorf("empty status = %q", buf.String())
	}

	mustLoad(t, app, bipedSource)
	mustChange(t, app, "", rig.Skeleton)
	buf.Reset()
	app.PrintStatus(&buf)
	out := buf.String()
	for _, want := range []string{"COMPONENT", "spine(spine)", "clavicle(clav)", "skeleton", "created="} {
		if !strings.Contains(out, want) {
			t.Errorf("status missing %q:\n%s", want, out)
		}
	}
}
