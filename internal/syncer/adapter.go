// Package syncer keeps client-side views of cohort data fresh.
//
// Writes go through a Writer, which invalidates the affected cache keys and emits a
// domain event. Mounted views react to both: an invalidated key is refetched at once,
// and a staleness event schedules a short delayed refresh so the server has committed
// the write before it is read back. Push delivery is best effort, so every view also
// refreshes on a role-dependent timer and when it regains focus.
package syncer

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dyluth/cohort/internal/cache"
	"github.com/dyluth/cohort/internal/eventbus"
)

// Role selects the polling interval of a view.
type Role string

const (
	RoleStudent Role = "student"
	RoleMentor  Role = "mentor"
	RoleAdmin   Role = "admin"
)

// Validate checks if the Role is a valid enum value.
func (r Role) Validate() error {
	switch r {
	case RoleStudent, RoleMentor, RoleAdmin:
		return nil
	default:
		return errors.New("unknown role: " + string(r))
	}
}

// Config holds the refresh timings.
type Config struct {
	StudentPollInterval   time.Duration // Learner views
	OversightPollInterval time.Duration // Mentor and admin views
	Jitter                time.Duration // Random extra delay added to each poll
	RefreshDelay          time.Duration // Wait between a staleness event and the forced refresh
}

// DefaultConfig returns the default timings.
func DefaultConfig() Config {
	return Config{
		StudentPollInterval:   30 * time.Second,
		OversightPollInterval: 60 * time.Second,
		Jitter:                5 * time.Second,
		RefreshDelay:          time.Second,
	}
}

// Adapter mounts views over a cache and an event bus.
type Adapter struct {
	cache  *cache.Manager
	bus    *eventbus.Bus
	cfg    Config
	jitter func(max time.Duration) time.Duration
	logger *log.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// WithJitterFunc replaces the random jitter source.
func WithJitterFunc(fn func(max time.Duration) time.Duration) Option {
	return func(a *Adapter) { a.jitter = fn }
}

// NewAdapter creates an adapter.
func NewAdapter(c *cache.Manager, bus *eventbus.Bus, cfg Config, opts ...Option) *Adapter {
	a := &Adapter{
		cache:  c,
		bus:    bus,
		cfg:    cfg,
		jitter: randomJitter,
		logger: log.Default().WithPrefix("syncer"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

// PollInterval returns the base polling interval for role.
func (a *Adapter) PollInterval(role Role) time.Duration {
	if role == RoleStudent {
		return a.cfg.StudentPollInterval
	}
	return a.cfg.OversightPollInterval
}

func (a *Adapter) nextPoll(role Role) time.Duration {
	return a.PollInterval(role) + a.jitter(a.cfg.Jitter)
}

// ViewSpec describes what a view renders and how to load it.
type ViewSpec struct {
	Key     string          // Cache key the view renders
	Role    Role            // Selects the polling interval
	Fetch   cache.FetchFunc // Loads the key from the backend
	Events  []eventbus.Type // Events that make the key stale
	OnData  func(value any) // Called with each new value
	OnError func(err error) // Called when a refresh fails
}

// View is a mounted view. All methods are safe for concurrent use.
type View struct {
	adapter *Adapter
	spec    ViewSpec
	ctx     context.Context

	mu      sync.Mutex
	alive   bool
	visible bool
	stale   bool
	lastErr error
	delayed *time.Timer
	unsubs  []func()

	stop       chan struct{}
	unmountOne sync.Once
}

// Mount starts a view. The initial value comes from the cache when present and is
// fetched otherwise; a failed initial fetch leaves the view mounted and stale.
//
// ctx is used for every fetch the view makes. Unmounting does not cancel fetches in
// flight; their results are dropped.
func (a *Adapter) Mount(ctx context.Context, spec ViewSpec) (*View, error) {
	if spec.Key == "" {
		return nil, errors.New("view key cannot be empty")
	}
	if spec.Fetch == nil {
		return nil, errors.New("view fetch cannot be nil")
	}
	if spec.Role == "" {
		spec.Role = RoleStudent
	}
	if err := spec.Role.Validate(); err != nil {
		return nil, err
	}

	v := &View{
		adapter: a,
		spec:    spec,
		ctx:     ctx,
		alive:   true,
		visible: true,
		stop:    make(chan struct{}),
	}

	v.unsubs = append(v.unsubs, a.cache.Subscribe(spec.Key, v.onCacheChange))
	for _, eventType := range spec.Events {
		v.unsubs = append(v.unsubs, a.bus.Subscribe(eventType, func(any) { v.scheduleRefresh() }))
	}

	if value, ok := a.cache.GetCached(spec.Key); ok {
		v.deliver(value)
	} else {
		_ = v.refresh(ctx)
	}

	if a.PollInterval(spec.Role) > 0 {
		go v.poll()
	}

	a.logger.Debug("view mounted", "key", spec.Key, "role", spec.Role, "events", len(spec.Events))
	return v, nil
}

// Unmount releases every subscription and timer. Results arriving afterwards are
// dropped. Calling Unmount more than once is a no-op.
func (v *View) Unmount() {
	v.unmountOne.Do(func() {
		v.mu.Lock()
		v.alive = false
		if v.delayed != nil {
			v.delayed.Stop()
			v.delayed = nil
		}
		unsubs := v.unsubs
		v.unsubs = nil
		v.mu.Unlock()

		close(v.stop)
		for _, unsub := range unsubs {
			unsub()
		}
		v.adapter.logger.Debug("view unmounted", "key", v.spec.Key)
	})
}

// Focus refreshes the view because the user brought it to the foreground.
func (v *View) Focus(ctx context.Context) error {
	v.mu.Lock()
	v.visible = true
	v.mu.Unlock()
	return v.refresh(ctx)
}

// SetVisible records whether the view is on screen. Hidden views skip periodic
// refreshes; becoming visible again triggers an immediate refresh.
func (v *View) SetVisible(ctx context.Context, visible bool) error {
	v.mu.Lock()
	wasVisible := v.visible
	v.visible = visible
	v.mu.Unlock()

	if visible && !wasVisible {
		return v.refresh(ctx)
	}
	return nil
}

// Retry is the user-initiated retry after a failed refresh.
func (v *View) Retry(ctx context.Context) error {
	return v.refresh(ctx)
}

// Stale reports whether the last refresh failed, meaning the data shown is old.
func (v *View) Stale() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stale
}

// Err returns the error of the last failed refresh, or nil.
func (v *View) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastErr
}

// Alive reports whether the view is still mounted.
func (v *View) Alive() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.alive
}

func (v *View) onCacheChange(value any) {
	if value != nil {
		v.deliver(value)
		return
	}
	if !v.Alive() {
		return
	}
	// Refetch outside the cache dispatcher so other listeners are not held up
	go func() { _ = v.refresh(v.ctx) }()
}

// scheduleRefresh arms the delayed forced refresh, restarting it if one is pending.
func (v *View) scheduleRefresh() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.alive {
		return
	}
	if v.delayed != nil {
		v.delayed.Stop()
	}
	v.delayed = time.AfterFunc(v.adapter.cfg.RefreshDelay, func() { _ = v.refresh(v.ctx) })
}

func (v *View) refresh(ctx context.Context) error {
	if !v.Alive() {
		return nil
	}

	// The new value reaches OnData through the cache subscription
	_, err := v.adapter.cache.Refresh(ctx, v.spec.Key, v.spec.Fetch)
	if err == nil {
		return nil
	}

	v.mu.Lock()
	if !v.alive {
		v.mu.Unlock()
		return err
	}
	v.stale = true
	v.lastErr = err
	onError := v.spec.OnError
	v.mu.Unlock()

	v.adapter.logger.Warn("refresh failed", "key", v.spec.Key, "error", err)
	if onError != nil {
		onError(err)
	}
	return err
}

func (v *View) deliver(value any) {
	v.mu.Lock()
	if !v.alive {
		v.mu.Unlock()
		return
	}
	v.stale = false
	v.lastErr = nil
	onData := v.spec.OnData
	v.mu.Unlock()

	if onData != nil {
		onData(value)
	}
}

func (v *View) poll() {
	for {
		timer := time.NewTimer(v.adapter.nextPoll(v.spec.Role))
		select {
		case <-v.stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		v.mu.Lock()
		visible := v.visible
		v.mu.Unlock()
		if visible {
			_ = v.refresh(v.ctx)
		}
	}
}
