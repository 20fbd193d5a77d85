package cart

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/stelinglobal/storefront/internal/domain/product"
)

// Namespace prefixes every persisted cart key.
const Namespace = "stelin-cart"

// ErrNoState is returned by a Persister when nothing is stored under a key.
var ErrNoState = errors.New("no persisted cart state")

// Key returns the persistence key for a session's cart.
func Key(sessionID string) string {
	return Namespace + ":" + sessionID
}

// Persister stores serialized cart blobs.
type Persister interface {
	Save(ctx context.Context, key string, blob []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
}

// Listener receives a snapshot after every mutation. Listeners run while the
// store is locked and must not block or call back into the store.
type Listener func(State)

// Store holds one session's cart. All operations are total: invalid input
// is normalised and persistence failures are logged, never returned.
type Store struct {
	key     string
	persist Persister
	lg      *zap.Logger

	mu       sync.Mutex
	state    State
	subs     map[uint64]Listener
	nextSub  uint64
	lastUsed time.Time
}

// NewStore creates an empty store persisting under key. persist may be nil,
// in which case the cart lives in memory only.
func NewStore(key string, persist Persister, lg *zap.Logger) *Store {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Store{
		key:      key,
		persist:  persist,
		lg:       lg,
		subs:     make(map[uint64]Listener),
		lastUsed: time.Now(),
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()
	return s.state.clone()
}

// Add sets the quantity for product p, appending a new line if the product is
// not in the cart yet. Repeated adds replace the quantity rather than summing.
// Quantities below one are stored as one.
func (s *Store) Add(ctx context.Context, p product.Product, quantity int) State {
	if quantity < 1 {
		quantity = 1
	}
	return s.mutate(ctx, func(lines []Line) []Line {
		for i := range lines {
			if lines[i].Product.ID == p.ID {
				lines[i].Quantity = quantity
				return lines
			}
		}
		return append(lines, Line{Product: p, Quantity: quantity})
	})
}

// Remove drops the line for productID. Absent products are ignored.
func (s *Store) Remove(ctx context.Context, productID string) State {
	return s.mutate(ctx, func(lines []Line) []Line {
		for i := range lines {
			if lines[i].Product.ID == productID {
				return append(lines[:i], lines[i+1:]...)
			}
		}
		return lines
	})
}

// UpdateQuantity sets a line's quantity in place. A quantity of zero or less
// removes the line.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, quantity int) State {
	if quantity <= 0 {
		return s.Remove(ctx, productID)
	}
	return s.mutate(ctx, func(lines []Line) []Line {
		for i := range lines {
			if lines[i].Product.ID == productID {
				lines[i].Quantity = quantity
				break
			}
		}
		return lines
	})
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) State {
	return s.mutate(ctx, func([]Line) []Line { return nil })
}

// Subscribe registers fn for post-mutation snapshots and returns a function
// that removes it.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// restore replaces the state without persisting or notifying.
func (s *Store) restore(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state.clone()
}

// touch marks the store as in use so Sweep keeps it.
func (s *Store) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()
}

func (s *Store) idleSince() (time.Time, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed, len(s.subs)
}

func (s *Store) mutate(ctx context.Context, fn func([]Line) []Line) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]Line, len(s.state.Lines))
	copy(lines, s.state.Lines)
	s.state = State{Lines: fn(lines)}
	s.lastUsed = time.Now()

	s.save(ctx)

	snapshot := s.state.clone()
	for _, fn := range s.subs {
		fn(snapshot.clone())
	}
	return snapshot
}

// save persists the current state. Must be called with s.mu held.
func (s *Store) save(ctx context.Context) {
	if s.persist == nil {
		return
	}
	blob, err := json.Marshal(s.state)
	if err != nil {
		s.lg.Warn("Encode cart", zap.String("key", s.key), zap.Error(err))
		return
	}
	if err := s.persist.Save(ctx, s.key, blob); err != nil {
		s.lg.Warn("Persist cart, keeping in memory", zap.String("key", s.key), zap.Error(err))
	}
}
