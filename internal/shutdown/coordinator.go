package shutdown

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

type State int32

const (
	Running State = iota
	Finalizing
)

func (s State) String() string {
	if s == Finalizing {
		return "finalizing"
	}
	return "running"
}

type Mode int

const (
	// Abrupt finalizes the output and exits the process on interrupt.
	// In-flight probes are abandoned.
	Abrupt Mode = iota
	// Graceful cancels the probe context on interrupt and lets the normal
	// path finalize once every unit returned.
	Graceful
)

type Finalizer interface {
	Finalize() error
}

type Spec struct {
	Finalizer Finalizer
	Mode      Mode
	// Cancel stops in-flight probes in Graceful mode.
	Cancel context.CancelFunc
	// Exit defaults to os.Exit.
	Exit func(code int)
}

// Coordinator moves the run from Running to Finalizing exactly once,
// whichever of interrupt or normal completion happens first, and makes
// sure the output is finalized exactly once.
type Coordinator struct {
	finalizer Finalizer
	mode      Mode
	cancel    context.CancelFunc
	exit      func(code int)

	state atomic.Int32
	// closed once the output is finalized, by whichever path won
	done chan struct{}

	mu    sync.Mutex
	hooks []func()
}

func NewCoordinator(spec *Spec) *Coordinator {
	exit := spec.Exit
	if exit == nil {
		exit = os.Exit
	}
	return &Coordinator{
		finalizer: spec.Finalizer,
		mode:      spec.Mode,
		cancel:    spec.Cancel,
		exit:      exit,
		done:      make(chan struct{}),
	}
}

func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// OnFinalize registers a hook run right before the output is finalized.
func (c *Coordinator) OnFinalize(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// Watch blocks until interrupted is done or the run completed normally.
func (c *Coordinator) Watch(interrupted context.Context, completed <-chan struct{}) {
	select {
	case <-completed:
		return
	case <-interrupted.Done():
	}

	if c.mode == Graceful {
		log.Warn().Msg("interrupt received, cancelling in-flight probes")
		if c.cancel != nil {
			c.cancel()
		}
		return
	}

	if !c.transition() {
		// normal completion is already finalizing
		return
	}

	log.Warn().Msg("interrupt received, finalizing output and exiting")
	code := 0
	if err := c.finalize(); err != nil {
		log.Error().Err(err).Msg("failed to finalize output")
		code = 1
	}
	c.exit(code)
}

// Complete is the normal-path finalize. When an interrupt got there first it
// waits for that finalize to finish and returns nil.
func (c *Coordinator) Complete() error {
	if !c.transition() {
		<-c.done
		return nil
	}
	return c.finalize()
}

// Wait blocks until the output has been finalized.
func (c *Coordinator) Wait() {
	<-c.done
}

func (c *Coordinator) transition() bool {
	return c.state.CompareAndSwap(int32(Running), int32(Finalizing))
}

func (c *Coordinator) finalize() error {
	defer close(c.done)

	c.mu.Lock()
	hooks := append([]func(){}, c.hooks...)
	c.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return c.finalizer.Finalize()
}
