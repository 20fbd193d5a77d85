package cart

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// Registry hands out one Store per browsing session, restoring it from the
// Persister on first use. It is created once at the application root and
// passed to whatever needs carts.
type Registry struct {
	persist Persister
	lg      *zap.Logger

	mu     sync.Mutex
	stores map[string]*entry
}

// entry is a registry slot. ready is closed once the restore attempt ends;
// store stays nil if it failed.
type entry struct {
	ready chan struct{}
	store *Store
}

// NewRegistry creates a Registry backed by persist (nil keeps carts in memory).
func NewRegistry(persist Persister, lg *zap.Logger) *Registry {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Registry{
		persist: persist,
		lg:      lg,
		stores:  make(map[string]*entry),
	}
}

// Get returns the cart for sessionID, loading any persisted state. Loads run
// outside the registry lock, one per session at a time.
//
// If the persisted state cannot be read, Get returns a memory-only cart that
// is not cached, so the stored blob is never overwritten by a cart that
// missed its restore. The next Get tries the load again.
func (r *Registry) Get(ctx context.Context, sessionID string) *Store {
	key := Key(sessionID)
	for {
		r.mu.Lock()
		e, ok := r.stores[sessionID]
		if !ok {
			e = &entry{ready: make(chan struct{})}
			r.stores[sessionID] = e
			r.mu.Unlock()
			if s := r.restore(ctx, sessionID, key, e); s != nil {
				return s
			}
			return NewStore(key, nil, r.lg)
		}
		if e.store != nil {
			e.store.touch()
			r.mu.Unlock()
			return e.store
		}
		r.mu.Unlock()

		select {
		case <-e.ready:
		case <-ctx.Done():
			return NewStore(key, nil, r.lg)
		}
	}
}

// restore loads the state for e and publishes the Store, or drops e when the
// load fails for any reason other than missing state.
func (r *Registry) restore(ctx context.Context, sessionID, key string, e *entry) *Store {
	defer close(e.ready)

	s := NewStore(key, r.persist, r.lg)
	state, err := r.load(ctx, key)
	switch {
	case err == nil:
		s.restore(state)
	case errors.Is(err, ErrNoState):
	default:
		r.lg.Warn("Restore cart, serving from memory", zap.String("key", key), zap.Error(err))
		r.mu.Lock()
		delete(r.stores, sessionID)
		r.mu.Unlock()
		return nil
	}

	r.mu.Lock()
	e.store = s
	r.mu.Unlock()
	return s
}

func (r *Registry) load(ctx context.Context, key string) (State, error) {
	if r.persist == nil {
		return State{}, ErrNoState
	}
	blob, err := r.persist.Load(ctx, key)
	if err != nil {
		return State{}, err
	}
	var state State
	if err := json.Unmarshal(blob, &state); err != nil {
		// An unreadable blob will never restore; start over instead of
		// serving from memory forever.
		r.lg.Warn("Discard unreadable cart", zap.String("key", key), zap.Error(err))
		return State{}, ErrNoState
	}
	return state, nil
}

// Sweep evicts stores idle for longer than maxIdle that have no subscribers.
// Evicted carts are restored from the Persister on next use.
func (r *Registry) Sweep(now time.Time, maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, e := range r.stores {
		if e.store == nil {
			continue
		}
		lastUsed, subs := e.store.idleSince()
		if subs == 0 && now.Sub(lastUsed) > maxIdle {
			delete(r.stores, id)
			evicted++
		}
	}
	return evicted
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.Sweep(now, maxIdle); n > 0 {
				r.lg.Debug("Evicted idle carts", zap.Int("count", n))
			}
		}
	}
}
