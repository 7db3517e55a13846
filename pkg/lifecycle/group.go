// Package lifecycle runs the long-lived goroutines of a channel and joins
// them on stop.
//
// Each goroutine started with Go receives a context that is cancelled when
// the group is signalled and that records which loop it belongs to.
// Callbacks invoked from a loop pass that context back into Stop, which lets
// Join skip the caller's own loop instead of deadlocking on it.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/c360/sensorfusion/errors"
)

// DefaultSelfJoinTimeout bounds Join when it is called from one of the
// group's own loops, whose context is already cancelled by the stop signal.
const DefaultSelfJoinTimeout = 5 * time.Second

type loopKey struct{}

type marker struct {
	group *Group
	loop  *loop
}

type loop struct {
	name string
	done chan struct{}
}

// Group is a set of named goroutines sharing one stop signal.
type Group struct {
	name   string
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	loops []*loop
}

// NewGroup creates a group whose loops also stop when parent is done.
func NewGroup(parent context.Context, name string) *Group {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Group{name: name, ctx: ctx, cancel: cancel}
}

// Go starts fn on its own goroutine. fn must return once ctx is done.
func (g *Group) Go(name string, fn func(ctx context.Context)) {
	l := &loop{name: name, done: make(chan struct{})}

	g.mu.Lock()
	g.loops = append(g.loops, l)
	g.mu.Unlock()

	ctx := context.WithValue(g.ctx, loopKey{}, &marker{group: g, loop: l})
	go func() {
		defer close(l.done)
		fn(ctx)
	}()
}

// Signal cancels every loop context. Safe to call repeatedly.
func (g *Group) Signal() {
	g.cancel()
}

// Stopping is closed once the group has been signalled.
func (g *Group) Stopping() <-chan struct{} {
	return g.ctx.Done()
}

// Signalled reports whether Signal has been called or the parent is done.
func (g *Group) Signalled() bool {
	return g.ctx.Err() != nil
}

// Join waits for every loop except the one ctx belongs to. It returns a
// transient ErrStopTimeout if ctx expires first.
func (g *Group) Join(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	self := g.ownLoop(ctx)
	if self != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), DefaultSelfJoinTimeout)
		defer cancel()
	}

	g.mu.Lock()
	loops := append([]*loop(nil), g.loops...)
	g.mu.Unlock()

	for _, l := range loops {
		if l == self {
			continue
		}
		select {
		case <-l.done:
		case <-ctx.Done():
			return errors.WrapTransient(
				fmt.Errorf("%w: loop %s of %s", errors.ErrStopTimeout, l.name, g.name),
				g.name, "Join", "waiting for loop exit")
		}
	}
	return nil
}

// Done is closed when every loop started so far has returned.
func (g *Group) Done() <-chan struct{} {
	g.mu.Lock()
	loops := append([]*loop(nil), g.loops...)
	g.mu.Unlock()

	ch := make(chan struct{})
	go func() {
		for _, l := range loops {
			<-l.done
		}
		close(ch)
	}()
	return ch
}

func (g *Group) ownLoop(ctx context.Context) *loop {
	m, ok := ctx.Value(loopKey{}).(*marker)
	if !ok || m.group != g {
		return nil
	}
	return m.loop
}

// LoopName returns the loop ctx belongs to, if any.
func LoopName(ctx context.Context) (string, bool) {
	m, ok := ctx.Value(loopKey{}).(*marker)
	if !ok {
		return "", false
	}
	return m.loop.name, true
}
