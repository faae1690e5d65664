package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ExistingPolicy decides what happens when a job name is already registered.
type ExistingPolicy int

const (
	// Keep leaves the existing job untouched.
	Keep ExistingPolicy = iota
	// Replace cancels the existing job and registers the new one.
	Replace
)

// ParsePolicy resolves "keep" or "replace".
func ParsePolicy(name string) (ExistingPolicy, error) {
	switch name {
	case "", "keep":
		return Keep, nil
	case "replace":
		return Replace, nil
	}
	return Keep, fmt.Errorf("unknown existing-job policy %q", name)
}

// JobInfo describes a registered job.
type JobInfo struct {
	Name         string
	Interval     time.Duration
	RegisteredAt time.Time
	Running      bool
}

type job struct {
	name       string
	sched      *Scheduler
	tick       TickFunc
	registered time.Time
	cancel     context.CancelFunc
	done       chan struct{}
}

// Registry holds uniquely named periodic jobs. Registration is idempotent
// under the Keep policy, so it is safe to call on every start.
type Registry struct {
	mu      sync.Mutex
	jobs    map[string]*job
	runCtx  context.Context
	wg      sync.WaitGroup
	logger  zerolog.Logger
	running bool
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		jobs:   make(map[string]*job),
		logger: logger.With().Str("component", "job_registry").Logger(),
	}
}

// EnqueueUniquePeriodic registers tick under name. It reports whether a new
// job was registered.
func (r *Registry) EnqueueUniquePeriodic(name string, policy ExistingPolicy, opts Options, tick TickFunc) (bool, error) {
	if name == "" {
		return false, errors.New("job name required")
	}
	if opts.Interval <= 0 {
		return false, fmt.Errorf("job %s: interval must be positive", name)
	}
	if tick == nil {
		return false, fmt.Errorf("job %s: tick function required", name)
	}

	// 替换时先等待旧任务正在执行的 tick 结束, 同名任务不会重叠执行.
	r.mu.Lock()
	for {
		existing, ok := r.jobs[name]
		if !ok {
			break
		}
		if policy == Keep {
			r.mu.Unlock()
			r.logger.Debug().Str("job", name).Msg("job already registered, keeping existing")
			return false, nil
		}
		done := r.stopLocked(existing)
		delete(r.jobs, name)
		r.mu.Unlock()
		wait(done)
		r.mu.Lock()
	}
	defer r.mu.Unlock()

	j := &job{
		name:       name,
		sched:      New(opts, r.logger),
		tick:       tick,
		registered: time.Now(),
	}
	r.jobs[name] = j
	r.logger.Info().Str("job", name).Dur("interval", opts.Interval).Msg("job registered")
	if r.running {
		r.startLocked(j)
	}
	return true, nil
}

// Cancel stops and removes a job, waiting for an in-flight tick to return.
func (r *Registry) Cancel(name string) bool {
	r.mu.Lock()
	j, ok := r.jobs[name]
	if !ok {
		r.mu.Unlock()
		return false
	}
	done := r.stopLocked(j)
	delete(r.jobs, name)
	r.mu.Unlock()
	wait(done)
	return true
}

// Jobs lists registered jobs ordered by name.
func (r *Registry) Jobs() []JobInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]JobInfo, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, JobInfo{
			Name:         j.name,
			Interval:     j.sched.Interval(),
			RegisteredAt: j.registered,
			Running:      j.cancel != nil,
		})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// Run starts every registered job and blocks until ctx is cancelled. Jobs
// registered while running start immediately.
func (r *Registry) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("registry already running")
	}
	r.running = true
	r.runCtx = ctx
	for _, j := range r.jobs {
		r.startLocked(j)
	}
	r.mu.Unlock()

	<-ctx.Done()

	r.mu.Lock()
	for _, j := range r.jobs {
		r.stopLocked(j)
	}
	r.running = false
	r.mu.Unlock()
	r.wg.Wait()
	return ctx.Err()
}

func (r *Registry) startLocked(j *job) {
	ctx, cancel := context.WithCancel(r.runCtx)
	done := make(chan struct{})
	j.cancel = cancel
	j.done = done
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(done)
		if err := j.sched.Run(ctx, j.tick); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error().Err(err).Str("job", j.name).Msg("job stopped")
		}
	}()
}

// stopLocked cancels j and returns the channel closed when its goroutine
// exits, or nil if j was never started.
func (r *Registry) stopLocked(j *job) <-chan struct{} {
	if j.cancel == nil {
		return nil
	}
	j.cancel()
	j.cancel = nil
	return j.done
}

func wait(done <-chan struct{}) {
	if done != nil {
		<-done
	}
}
