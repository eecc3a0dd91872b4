package remote

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/armature/pkg/codec"
	"github.com/chazu/armature/pkg/rig"
	"github.com/chazu/armature/pkg/scene"
	"github.com/chazu/armature/pkg/spec"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testSocketPath keeps the path short; unix socket paths are limited to
// about 100 bytes.
func testSocketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "arm")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("unix", path); err == nil {
			conn.Close()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("socket %s never came up", path)
}

// startServer serves sc and returns a client plus a stop function.
func startServer(t *testing.T, sc *scene.Scene) *Client {
	t.Helper()
	path := testSocketPath(t)
	srv := NewServer(path, sc, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(ctx); err != nil {
			t.Errorf("Serve: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	waitForSocket(t, path)
	return NewClient(path, WithCallTimeout(5*time.Second))
}

func TestClientRoundTrips(t *testing.T) {
	sc := scene.New()
	c := startServer(t, sc)

	name, id, err := c.Create(scene.KindJoint, "hip", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if name != "hip" || id == "" {
		t.Fatalf("Create = %q, %q", name, id)
	}
	if _, _, err := c.Create(scene.KindJoint, "knee", "hip"); err != nil {
		t.Fatal(err)
	}
	if ok, err := c.Exists(id); err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
	renamed, err := c.Rename("hip", "pelvis")
	if err != nil || renamed != "pelvis" {
		t.Errorf("Rename = %q, %v", renamed, err)
	}
	if got, _ := c.ResolveName(id); got != "pelvis" {
		t.Errorf("ResolveName = %q", got)
	}
	kids, err := c.ListChildren("pelvis")
	if err != nil || !slices.Equal(kids, []string{"knee"}) {
		t.Errorf("ListChildren = %v, %v", kids, err)
	}
	if err := c.Reparent("knee", ""); err != nil {
		t.Fatal(err)
	}
	if p, _ := c.Parent("knee"); p != "" {
		t.Errorf("Parent = %q", p)
	}
	if err := c.SetAttribute("knee", scene.AttrTranslate, []float64{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	v, err := c.GetAttribute("knee", scene.AttrTranslate)
	if err != nil {
		t.Fatal(err)
	}
	if arr, ok := v.([]any); !ok || len(arr) != 3 {
		t.Errorf("translate = %#v", v)
	}
	if err := c.SetAttribute("knee", scene.AttrRotateOrder, 0); err != nil {
		t.Fatal(err)
	}
	if err := c.Save(); err != nil {
		t.Fatal(err)
	}
	if sc.Saves() != 1 {
		t.Errorf("saves = %d", sc.Saves())
	}
	if err := c.Delete("knee"); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(sc.Names(), []string{"pelvis"}) {
		t.Errorf("names = %v", sc.Names())
	}
}

// TestAssemblyOverSocket runs the whole lifecycle against a served scene,
// so every attribute read back by the reconciler has been through CBOR.
func TestAssemblyOverSocket(t *testing.T) {
	sc := scene.New()
	rec := scene.NewRecorder(startServer(t, sc))

	reg := rig.DefaultRegistry()
	root, err := reg.Create("root", nil)
	if err != nil {
		t.Fatal(err)
	}
	root.Name = "body"
	spine, err := reg.Create("spine", nil)
	if err != nil {
		t.Fatal(err)
	}
	spine.Name = "spine"
	if err := root.AddChild(spine); err != nil {
		t.Fatal(err)
	}
	a := rig.NewAssembly(root, rec, rig.WithRotateOrder(spec.ZYX))

	if err := a.ChangeState(root, rig.Skeleton); err != nil {
		t.Fatalf("ChangeState(Skeleton): %v", err)
	}
	const jointName = "spine_C_spine01_jnt"
	var jnt *spec.Spec
	for s := range spec.FlattenAll([]*spec.Spec{spine.JointRoot()}) {
		if s.Name == jointName {
			jnt = s
		}
	}
	if jnt == nil {
		t.Fatalf("no spec named %s", jointName)
	}
	if v, _ := sc.GetAttribute(jointName, scene.AttrRotateOrder); v != uint64(spec.ZYX) {
		t.Fatalf("served rotateOrder = %#v, want uint64(%d)", v, int(spec.ZYX))
	}
	if v, _ := sc.GetAttribute(jointName, scene.AttrTranslate); !isAnySlice(v) {
		t.Fatalf("served translate = %#v", v)
	}

	// Pose the joint on the served side; the rig build must read it back
	// in the object's own order.
	rot := v3.Vec{X: 10, Y: 20, Z: 30}
	tr, _, scale := spec.Decompose(jnt.EffectiveMatrix(), spec.ZYX)
	sc.SetAttribute(jointName, scene.AttrRotate, []float64{rot.X, rot.Y, rot.Z})
	want := spec.ComposeTRS(tr, rot, scale, spec.ZYX)

	if err := a.ChangeState(root, rig.Rig); err != nil {
		t.Fatalf("ChangeState(Rig): %v", err)
	}
	if jnt.Matrix == nil || !jnt.Matrix.Equals(want, 1e-6) {
		t.Errorf("cached transform of %s does not match the served pose", jointName)
	}
	if _, ok := sc.IdentityOf("spine_C_spine01_ctl"); !ok {
		t.Errorf("no spine control in %v", sc.Names())
	}

	if err := a.ChangeState(root, rig.Skeleton); err != nil {
		t.Fatalf("ChangeState(Rig to Skeleton): %v", err)
	}
	rec.Reset()
	if err := a.ChangeState(root, rig.Skeleton); err != nil {
		t.Fatalf("resync: %v", err)
	}
	for _, op := range []string{scene.OpCreate, scene.OpRename, scene.OpReparent} {
		if n := rec.Count(op); n != 0 {
			t.Errorf("resync made %d %s calls", n, op)
		}
	}

	if err := a.ChangeState(root, rig.Parametric); err != nil {
		t.Fatalf("ChangeState(Parametric): %v", err)
	}
	if sc.Len() != 0 {
		t.Errorf("served scene still holds %v", sc.Names())
	}
	for c := range rig.Walk(root) {
		if c.Status() != rig.Parametric {
			t.Errorf("%s = %s", c, c.Status())
		}
	}
}

func isAnySlice(v any) bool {
	_, ok := v.([]any)
	return ok
}

func TestNotFoundMapsToSentinel(t *testing.T) {
	c := startServer(t, scene.New())
	_, err := c.Rename("ghost", "x")
	if !errors.Is(err, scene.ErrNotFound) {
		t.Fatalf("err = %v, want scene.ErrNotFound", err)
	}
	var ce *CallError
	if !errors.As(err, &ce) || ce.Action != scene.OpRename || ce.Code != CodeNotFound {
		t.Errorf("CallError = %+v", ce)
	}
	c.Create(scene.KindJoint, "a", "")
	c.Create(scene.KindJoint, "b", "a")
	err = c.Reparent("a", "b")
	if err == nil || errors.Is(err, scene.ErrNotFound) {
		t.Errorf("cycle err = %v, want a non-not-found failure", err)
	}
}

func TestLookupQualified(t *testing.T) {
	sc := scene.New()
	c := startServer(t, sc)
	c.Create(scene.KindControl, "rig:hand_ctl", "")
	name, found, err := c.LookupQualified("rig", "hand_ctl")
	if err != nil || !found || name != "rig:hand_ctl" {
		t.Errorf("LookupQualified = %q, %v, %v", name, found, err)
	}
	if _, found, _ := c.LookupQualified("", "missing"); found {
		t.Error("found a missing driver")
	}
}

func TestUnknownAction(t *testing.T) {
	sc := scene.New()
	path := testSocketPath(t)
	srv := NewServer(path, sc, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Serve(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()
	waitForSocket(t, path)

	for _, action := range []string{"explode", ""} {
		conn, err := net.Dial("unix", path)
		if err != nil {
			t.Fatal(err)
		}
		if err := codec.NewEncoder(conn).Encode(map[string]string{"action": action}); err != nil {
			t.Fatal(err)
		}
		var resp Response
		if err := codec.NewDecoder(conn).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		conn.Close()
		if resp.OK || resp.Error == "" {
			t.Errorf("action %q: response = %+v", action, resp)
		}
	}
}

func TestTransportFailureIsNotNotFound(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "absent.sock"), WithCallTimeout(time.Second))
	_, err := c.Exists("x")
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, scene.ErrNotFound) {
		t.Error("transport failure reported as not found")
	}
}
