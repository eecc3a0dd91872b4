// Package engine provides the Lisp evaluation engine for Armature rig
// scripts. It wraps zygomys in a sandboxed environment and produces a
// component tree from user source code.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/armature/pkg/rig"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Engine wraps the zygomys interpreter for rig script evaluation.
// It is safe for concurrent use; each call to Evaluate creates a fresh
// sandboxed environment for determinism.
type Engine struct {
	registry *rig.Registry
	logger   *slog.Logger
	timeout  time.Duration

	mu     sync.Mutex
	latest uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout bounds each evaluation. Non-positive values keep
// DefaultEvalTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// New creates an Engine that builds components from registry. A nil
// registry uses the built-in component kinds; a nil logger discards.
func New(registry *rig.Registry, logger *slog.Logger, opts ...Option) *Engine {
	if registry == nil {
		registry = rig.DefaultRegistry()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e := &Engine{registry: registry, logger: logger, timeout: DefaultEvalTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the component registry scripts build from.
func (e *Engine) Registry() *rig.Registry { return e.registry }

// Evaluate takes Lisp source code and produces a new component tree.
// Each call creates a fresh zygomys sandbox for deterministic evaluation.
//
// Return semantics:
//   - On success: returns the root component + nil errors + nil error.
//     The root is nil when the script declares no assembly.
//   - On parse/eval failure: returns nil root + eval errors + nil error
//   - On fatal failure (ErrEvalTimeout, ErrSuperseded, panic): returns
//     nil + nil + error
func (e *Engine) Evaluate(source string) (*rig.Component, []EvalError, error) {
	return e.EvaluateContext(context.Background(), source)
}

// EvaluateContext is Evaluate that also gives up when ctx ends.
func (e *Engine) EvaluateContext(ctx context.Context, source string) (*rig.Component, []EvalError, error) {
	t := e.issue()
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		root, evalErrs, err := e.evaluate(source)
		done <- outcome{root: root, errors: evalErrs, err: err}
	}()

	return e.await(ctx, t, done)
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) (*rig.Component, []EvalError, error) {
	if strings.TrimSpace(source) == "" {
		return nil, nil, nil
	}

	// Sandbox mode prevents user code from accessing the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	b := &builder{registry: e.registry}
	registerBuiltins(env, b)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}

	last, err := env.Run()
	if err != nil {
		return nil, parseZygomysError(err), nil
	}

	root := b.root
	if root == nil {
		// A script may end with a bare component instead of an assembly.
		if c, ok := last.(*sexpComponent); ok {
			root = c.c
		}
	}
	if root != nil {
		if err := checkNames(root); err != nil {
			return nil, []EvalError{{Message: err.Error()}}, nil
		}
		e.logger.Debug("script evaluated", "root", root.Name, "components", countComponents(root))
	}
	return root, nil, nil
}

// checkNames rejects trees in which two components share a name and
// side, since their live objects would collide.
func checkNames(root *rig.Component) error {
	seen := make(map[string]bool)
	for c := range rig.Walk(root) {
		key := c.Name + "_" + string(c.Side)
		if seen[key] {
			return fmt.Errorf("duplicate component %s on side %s", c.Name, c.Side)
		}
		seen[key] = true
	}
	return nil
}

func countComponents(root *rig.Component) int {
	n := 0
	for range rig.Walk(root) {
		n++
	}
	return n
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	// zygomys formats parse errors as "Error on line N: <details>\n"
	for _, p := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := p.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}

	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
