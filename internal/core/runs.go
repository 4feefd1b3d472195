package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/udovin/robojudge/internal/models"
)

// ErrRunInProgress means that another check or simulation is active.
var ErrRunInProgress = errors.New("another run is in progress")

// RunRegistry is a single-slot registry of active run.
//
// Checks and simulations share the same slot since both of them use
// extracted submission, report and log.
type RunRegistry struct {
	current *RunGuard
	mutex   sync.Mutex
}

// NewRunRegistry creates empty registry.
func NewRunRegistry() *RunRegistry {
	return &RunRegistry{}
}

// Acquire occupies slot with new run of specified kind.
//
// Returned guard should be released with Release.
func (r *RunRegistry) Acquire(ctx context.Context, kind models.RunKind) (*RunGuard, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.current != nil {
		return nil, ErrRunInProgress
	}
	guard := RunGuard{
		registry: r,
		info: models.RunInfo{
			ID:        uuid.NewString(),
			Kind:      kind,
			StartTime: time.Now(),
		},
	}
	guard.ctx, guard.cancel = context.WithCancel(ctx)
	r.current = &guard
	return &guard, nil
}

// Current returns info of active run.
func (r *RunRegistry) Current() (models.RunInfo, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.current == nil {
		return models.RunInfo{}, false
	}
	return r.current.info, true
}

// Cancel cancels context of active run.
//
// Returns false if there is no active run.
func (r *RunRegistry) Cancel() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.current == nil {
		return false
	}
	r.current.cancel()
	return true
}

// RunGuard represents occupied slot of registry.
type RunGuard struct {
	registry *RunRegistry
	info     models.RunInfo
	ctx      context.Context
	cancel   context.CancelFunc
	once     sync.Once
}

// Info returns info of run.
func (g *RunGuard) Info() models.RunInfo {
	return g.info
}

// Context returns context that is canceled with Cancel or Release.
func (g *RunGuard) Context() context.Context {
	return g.ctx
}

// Release frees slot of registry.
//
// Release is safe to call multiple times.
func (g *RunGuard) Release() {
	g.once.Do(func() {
		g.cancel()
		g.registry.mutex.Lock()
		defer g.registry.mutex.Unlock()
		if g.registry.current == g {
			g.registry.current = nil
		}
	})
}
