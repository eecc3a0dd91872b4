package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/chazu/armature/pkg/config"
	"github.com/chazu/armature/pkg/engine"
	"github.com/chazu/armature/pkg/kernel/sdfx"
	"github.com/chazu/armature/pkg/reconcile"
	"github.com/chazu/armature/pkg/rig"
	"github.com/chazu/armature/pkg/scene"
	"github.com/chazu/armature/pkg/snapshot"
	"github.com/chazu/armature/pkg/spec"
)

// ErrNoAssembly reports a script that evaluated to nothing.
var ErrNoAssembly = errors.New("script declares no assembly")

// LoadError carries the evaluation errors of a rejected script.
type LoadError struct {
	Errors []engine.EvalError
}

func (e *LoadError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", e.Errors[0].Error(), len(e.Errors)-1)
}

// App is the command-line backend. It evaluates rig scripts, carries the
// built state of the previous tree across reloads, and changes state.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	engine *engine.Engine
	mgr    scene.Manager

	mu     sync.Mutex
	root   *rig.Component
	asm    *rig.Assembly
	events []rig.Event
}

// NewApp returns an app that mutates mgr. A nil cfg or logger selects
// the defaults.
func NewApp(cfg *config.Config, mgr scene.Manager, logger *slog.Logger) *App {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &App{
		cfg:    cfg,
		logger: logger,
		engine: engine.New(nil, logger, engine.WithTimeout(cfg.Build.EvalTimeout)),
		mgr:    mgr,
	}
}

// Root returns the current tree, or nil before the first load.
func (a *App) Root() *rig.Component {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.root
}

// Events returns the steps completed by the last state change.
func (a *App) Events() []rig.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]rig.Event(nil), a.events...)
}

// Report returns the scene totals of the last state change.
func (a *App) Report() reconcile.Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.asm == nil {
		return reconcile.Report{}
	}
	return a.asm.Report()
}

func (a *App) assemble(root *rig.Component) *rig.Assembly {
	opts := []rig.Option{
		rig.WithLogger(a.logger),
		rig.WithReference(scene.Reference{Namespace: a.cfg.Scene.Namespace}),
		rig.WithRootParent(a.cfg.Scene.RootParent),
		rig.WithRotateOrder(a.cfg.RotateOrder()),
		rig.WithSaveOnFinalize(a.cfg.Build.SaveOnFinalize),
		rig.WithFlushSave(a.cfg.Build.FlushSave),
		rig.WithObserver(func(ev rig.Event) { a.events = append(a.events, ev) }),
	}
	if d, ok := a.mgr.(scene.DriverResolver); ok {
		opts = append(opts, rig.WithResolver(d))
	}
	if a.cfg.Build.DisplayMeshes {
		opts = append(opts, rig.WithKernel(sdfx.NewWithCells(a.cfg.Build.MeshCells)))
	}
	return rig.NewAssembly(root, a.mgr, opts...)
}

// Load evaluates source and makes its tree current. When a tree is
// already built, its live objects carry over to matching components and
// the new tree is brought back to the old root's state; objects of
// components the script no longer declares are deleted.
func (a *App) Load(source string) error {
	root, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		return err
	}
	if len(evalErrs) > 0 {
		return &LoadError{Errors: evalErrs}
	}
	if root == nil {
		return ErrNoAssembly
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = nil

	target := rig.Parametric
	if prev := a.root; prev != nil {
		target = prev.Status()
		if target == rig.Rig {
			if err := a.asm.ChangeState(prev, rig.Skeleton); err != nil {
				return fmt.Errorf("tearing down previous rig: %w", err)
			}
		}
		if err := rig.Transplant(prev, root); err != nil {
			return err
		}
	}
	a.root = root
	a.asm = a.assemble(root)
	a.logger.Info("assembly loaded", "root", root.String(), "restore", target.String())

	if target == rig.Parametric {
		return nil
	}
	if err := a.asm.ChangeState(root, rig.Skeleton); err != nil {
		return err
	}
	if target == rig.Rig {
		return a.asm.ChangeState(root, rig.Rig)
	}
	return nil
}

// LoadFile reads and loads a script.
func (a *App) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := a.Load(string(data)); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// ChangeState moves the named component, or the root when name is
// empty, to target.
func (a *App) ChangeState(name string, target rig.Status) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.root == nil {
		return ErrNoAssembly
	}
	c := a.root
	if name != "" {
		if c = a.root.Find(name); c == nil {
			return fmt.Errorf("no component named %q", name)
		}
	}
	a.events = nil
	if err := a.asm.ChangeState(c, target); err != nil {
		return err
	}
	a.logger.Info("state changed", "component", c.String(), "status", target.String(),
		"report", a.asm.Report().String())
	return nil
}

// Snapshot writes the current tree to path.
func (a *App) Snapshot(path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.root == nil {
		return ErrNoAssembly
	}
	return snapshot.Save(path, a.root)
}

// Restore replaces the current tree with the one saved at path. The
// restored components keep their states and re-adopt their live objects
// on the next build.
func (a *App) Restore(path string) error {
	root, err := snapshot.Load(path, a.engine.Registry())
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.root = root
	a.asm = a.assemble(root)
	a.events = nil
	return nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	cellStyle   = lipgloss.NewStyle().PaddingRight(2)
	statusStyle = map[rig.Status]lipgloss.Style{
		rig.Parametric: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		rig.Skeleton:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		rig.Rig:        lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	}
)

func countLive(root *spec.Spec) (total, live int) {
	for s := range spec.FlattenAll([]*spec.Spec{root}) {
		total++
		if s.UUID != "" {
			live++
		}
	}
	return total, live
}

// PrintStatus writes one row per component: its state, how many of its
// joints and pivots are live, and a short hash of its joint layout.
func (a *App) PrintStatus(w io.Writer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.root == nil {
		fmt.Fprintln(w, "no assembly loaded")
		return
	}

	rows := [][]string{{"COMPONENT", "TYPE", "STATUS", "JOINTS", "PIVOTS", "RIG", "LAYOUT"}}
	var statuses []rig.Status
	for c := range rig.Walk(a.root) {
		jt, jl := countLive(c.JointRoot())
		pt, pl := countLive(c.PivotRoot())
		layout := "-"
		if h, err := spec.Fingerprint(c.JointRoot()); err == nil {
			layout = h.String()[:8]
		}
		rows = append(rows, []string{
			c.String(),
			c.Type(),
			c.Status().String(),
			fmt.Sprintf("%d/%d", jl, jt),
			fmt.Sprintf("%d/%d", pl, pt),
			fmt.Sprint(len(c.RigObjects())),
			layout,
		})
		statuses = append(statuses, c.Status())
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}
	var lines []string
	for r, row := range rows {
		var cells []string
		for i, cell := range row {
			style := cellStyle.Width(widths[i] + 2)
			switch {
			case r == 0:
				style = style.Inherit(headerStyle)
			case i == 2:
				style = style.Inherit(statusStyle[statuses[r-1]])
			}
			cells = append(cells, style.Render(cell))
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, lines...))
	if a.asm != nil {
		fmt.Fprintln(w, a.asm.Report().String())
	}
}
