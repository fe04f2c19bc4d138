package query

import (
	"context"
	"errors"
	"sync"

	applog "frintab/internal/log"
)

// RefetchFunc reloads the state behind a key into whoever registered it.
type RefetchFunc func(ctx context.Context) error

// Evicter drops cached entries for keys.
type Evicter interface {
	Evict(keys ...Key) int
}

type registration struct {
	id  int
	key Key
	fn  RefetchFunc
}

// Dispatcher routes invalidations to cache eviction and to the refetchers
// registered by open views.
type Dispatcher struct {
	mu      sync.Mutex
	regs    []registration
	nextID  int
	evicter Evicter
	logger  *applog.Logger
}

func NewDispatcher(evicter Evicter, logger *applog.Logger) *Dispatcher {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Dispatcher{
		evicter: evicter,
		logger:  logger.WithComponent(applog.ComponentQuery),
	}
}

// Register subscribes fn to invalidations matching key until the returned
// func is called.
func (d *Dispatcher) Register(key Key, fn RefetchFunc) (unregister func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.regs = append(d.regs, registration{id: id, key: key, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			for i, r := range d.regs {
				if r.id == id {
					d.regs = append(d.regs[:i:i], d.regs[i+1:]...)
					return
				}
			}
		})
	}
}

// Invalidate evicts the cached entries for keys, then runs each matching
// refetcher once, sequentially, in key order and then registration order.
// Refetch errors are joined; every refetcher runs regardless.
func (d *Dispatcher) Invalidate(ctx context.Context, keys ...Key) error {
	evicted := 0
	if d.evicter != nil {
		evicted = d.evicter.Evict(keys...)
	}

	d.mu.Lock()
	var todo []registration
	seen := map[int]bool{}
	for _, k := range keys {
		for _, r := range d.regs {
			if !seen[r.id] && r.key.Matches(k) {
				seen[r.id] = true
				todo = append(todo, r)
			}
		}
	}
	d.mu.Unlock()

	d.logger.DebugContext(ctx, "Invalidating queries",
		applog.FieldOperation, applog.OpInvalidate,
		applog.FieldQueryKey, keyStrings(keys),
		"evicted", evicted,
		"refetchers", len(todo))

	var errs []error
	for _, r := range todo {
		if err := r.fn(ctx); err != nil {
			d.logger.WarnContext(ctx, "Refetch failed",
				applog.FieldQueryKey, r.key.String(),
				applog.FieldError, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Registered reports how many refetchers are subscribed.
func (d *Dispatcher) Registered() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.regs)
}

func keyStrings(keys []Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}
