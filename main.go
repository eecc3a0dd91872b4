// armature builds character rigs from rig scripts.
//
// A script declares a tree of components. armature builds it into a live
// scene as a skeleton of joints and pivots, then as a rig of controls,
// and keeps the scene in step as the script changes.
//
// The scene is either in-process, optionally saved to a document and
// served to other tools over a unix socket, or a remote session reached
// through --socket.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"

	"github.com/chazu/armature/pkg/config"
	"github.com/chazu/armature/pkg/logging"
	"github.com/chazu/armature/pkg/rig"
	"github.com/chazu/armature/pkg/scene"
	"github.com/chazu/armature/pkg/scene/remote"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	state      string
	component  string
	socket     string
	serve      string
	document   string
	save       string
	load       string
	watch      bool
	logLevel   string
}

func run(args []string) error {
	var o options
	flags := pflag.NewFlagSet("armature", pflag.ContinueOnError)
	flags.StringVarP(&o.configPath, "config", "c", "", "config file (default $"+config.EnvVar+")")
	flags.StringVarP(&o.state, "state", "s", "skeleton", "target state: parametric, skeleton or rig")
	flags.StringVar(&o.component, "component", "", "change only this component and its descendants")
	flags.StringVar(&o.socket, "socket", "", "use the remote scene session at this socket")
	flags.StringVar(&o.serve, "serve", "", "serve the in-process scene at this socket until interrupted")
	flags.StringVar(&o.document, "document", "", "load and save the in-process scene here")
	flags.StringVar(&o.save, "save", "", "write a snapshot of the tree here after building")
	flags.StringVar(&o.load, "load", "", "restore the tree from this snapshot instead of a script")
	flags.BoolVarP(&o.watch, "watch", "w", false, "rebuild whenever the script changes")
	flags.StringVar(&o.logLevel, "log-level", "", "override log.level")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: armature [flags] [script]\n\nFlags:\n")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return err
	}

	target, err := rig.ParseStatus(o.state)
	if err != nil {
		return err
	}
	script := flags.Arg(0)
	switch {
	case flags.NArg() > 1:
		return fmt.Errorf("unexpected argument: %s", flags.Arg(1))
	case script == "" && o.load == "":
		return errors.New("a script or --load is required")
	case o.watch && script == "":
		return errors.New("--watch needs a script")
	case o.socket != "" && (o.serve != "" || o.document != ""):
		return errors.New("--socket cannot be combined with --serve or --document")
	}

	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	if o.serve != "" && cfg.Scene.Socket != "" {
		return errors.New("--serve needs an in-process scene, but scene.socket is set")
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr, err := openScene(cfg)
	if err != nil {
		return err
	}
	serveDone := make(chan error, 1)
	if o.serve != "" {
		srv := remote.NewServer(o.serve, mgr, logger)
		go func() { serveDone <- srv.Serve(ctx) }()
	}

	app := NewApp(cfg, mgr, logger)
	if o.load != "" {
		err = app.Restore(o.load)
	} else {
		err = app.LoadFile(script)
	}
	if err != nil {
		return err
	}
	if err := app.ChangeState(o.component, target); err != nil {
		return err
	}
	app.PrintStatus(os.Stdout)
	if o.save != "" {
		if err := app.Snapshot(o.save); err != nil {
			return err
		}
	}

	switch {
	case o.watch:
		if err := watch(ctx, app, script, logger); err != nil {
			return err
		}
	case o.serve != "":
		<-ctx.Done()
	default:
		return nil
	}
	if o.serve != "" {
		return <-serveDone
	}
	return nil
}

func loadConfig(o options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if o.configPath != "" {
		cfg, err = config.LoadFile(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.socket != "" {
		cfg.Scene.Socket = o.socket
	}
	if o.document != "" {
		cfg.Scene.Document = o.document
	}
	return cfg, cfg.Validate()
}

func openScene(cfg *config.Config) (scene.Manager, error) {
	if cfg.Scene.Socket != "" {
		return remote.NewClient(cfg.Scene.Socket, remote.WithCallTimeout(cfg.Scene.CallTimeout)), nil
	}
	path := cfg.Scene.Document
	if path == "" {
		return scene.New(), nil
	}
	s, err := scene.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return scene.New(scene.WithSavePath(path)), nil
	}
	return s, err
}

// settleDelay coalesces the bursts of events editors emit for one save.
const settleDelay = 50 * time.Millisecond

// watch rebuilds from script whenever it changes, until ctx is done. The
// parent directory is watched so editors that save by renaming a temp
// file over the script are seen.
func watch(ctx context.Context, app *App, script string, logger *slog.Logger) error {
	path, err := filepath.Abs(script)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}
	logger.Info("watching", "script", path)

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			settle = time.After(settleDelay)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)
		case <-settle:
			settle = nil
			if err := app.LoadFile(path); err != nil {
				logger.Error("reload failed", "error", err)
				continue
			}
			app.PrintStatus(os.Stdout)
		}
	}
}
