package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chazu/armature/pkg/rig"
)

// DefaultEvalTimeout bounds one script evaluation unless WithTimeout says
// otherwise.
const DefaultEvalTimeout = 5 * time.Second

var (
	// ErrEvalTimeout reports a script that ran past the engine's limit,
	// usually a runaway loop declaring components.
	ErrEvalTimeout = errors.New("engine: script evaluation timed out")
	// ErrSuperseded reports an evaluation overtaken by a later Evaluate,
	// such as a watched script saved again while the previous save was
	// still building its tree.
	ErrSuperseded = errors.New("engine: evaluation superseded")
)

// outcome is what a sandbox goroutine hands back.
type outcome struct {
	root   *rig.Component
	errors []EvalError
	err    error
}

// ticket orders Evaluate calls. Only the tree of the newest ticket is
// handed to the caller.
type ticket uint64

func (e *Engine) issue() ticket {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.latest++
	return ticket(e.latest)
}

func (e *Engine) newest(t ticket) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return uint64(t) == e.latest
}

// await blocks until the sandbox reports, the time limit passes or ctx
// ends. A sandbox abandoned here keeps running; its tree is dropped when
// it finishes.
func (e *Engine) await(ctx context.Context, t ticket, done <-chan outcome) (*rig.Component, []EvalError, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	select {
	case o := <-done:
		if !e.newest(t) {
			return nil, nil, ErrSuperseded
		}
		return o.root, o.errors, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("%w after %s", ErrEvalTimeout, e.timeout)
		}
		return nil, nil, ctx.Err()
	}
}
