// Package state exposes the observable state machine an analysis request
// produces for a UI: Loading while a request is in flight, then Success with
// the analysis or Error with a user-facing message. Starting a new request
// resets the machine to Loading.
package state

import (
	"context"
	"errors"
	"sync"

	"github.com/cardamage/damage-analyzer/pkg/history"
	"github.com/cardamage/damage-analyzer/pkg/imagesource"
	"github.com/cardamage/damage-analyzer/pkg/types"
)

// Phase is the machine's current phase.
type Phase int

const (
	Idle Phase = iota // no request yet
	Loading
	Success
	Error
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Success:
		return "success"
	default:
		return "error"
	}
}

// Snapshot is one observed state. Analysis is set for Success and for the
// persistence-failed flavor of Error, where the result was computed but the
// history entry is missing.
type Snapshot struct {
	Phase    Phase
	Analysis *types.DamageAnalysis
	Message  string
}

// Runner executes one analysis request; the orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, imageReference string) (types.DamageAnalysis, error)
}

// Projection drives a Runner and publishes the resulting state transitions.
type Projection struct {
	runner Runner

	mu       sync.Mutex
	current  Snapshot
	watchers map[int]chan Snapshot
	nextID   int
}

// New creates a Projection in the Idle phase.
func New(runner Runner) *Projection {
	return &Projection{
		runner:   runner,
		current:  Snapshot{Phase: Idle},
		watchers: make(map[int]chan Snapshot),
	}
}

// Run executes one analysis request, transitioning Loading then Success or
// Error. It returns whatever the runner returned; the caller gets the
// computed analysis even when only persistence failed.
func (p *Projection) Run(ctx context.Context, imageReference string) (types.DamageAnalysis, error) {
	p.transition(Snapshot{Phase: Loading})

	result, err := p.runner.Run(ctx, imageReference)
	if err != nil {
		p.transition(errorSnapshot(result, err))
		return result, err
	}

	analysis := result
	p.transition(Snapshot{Phase: Success, Analysis: &analysis})
	return result, nil
}

// Current returns the latest snapshot.
func (p *Projection) Current() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Watch registers an observer. The channel receives the current snapshot
// immediately and every later transition; a slow observer sees the latest
// state, not every intermediate one. The returned function cancels the
// subscription.
func (p *Projection) Watch() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.watchers[id] = ch
	ch <- p.current
	p.mu.Unlock()

	cancel := func() {
		p.mu.Lock()
		if w, ok := p.watchers[id]; ok {
			delete(p.watchers, id)
			close(w)
		}
		p.mu.Unlock()
	}
	return ch, cancel
}

func (p *Projection) transition(next Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = next
	for _, ch := range p.watchers {
		select {
		case ch <- next:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- next:
			default:
			}
		}
	}
}

// errorSnapshot derives the user-facing Error state from a failed run.
func errorSnapshot(result types.DamageAnalysis, err error) Snapshot {
	switch {
	case errors.Is(err, imagesource.ErrImageLoad):
		return Snapshot{Phase: Error, Message: "Could not load the photo. Check the file and try again."}
	case errors.Is(err, history.ErrStore):
		// The analysis itself completed; carry it so the UI can still
		// display the result next to the failure notice.
		analysis := result
		return Snapshot{
			Phase:    Error,
			Analysis: &analysis,
			Message:  "Analysis finished but could not be saved to history.",
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Snapshot{Phase: Error, Message: "Analysis was cancelled."}
	default:
		return Snapshot{Phase: Error, Message: "Analysis failed. Please try again."}
	}
}
