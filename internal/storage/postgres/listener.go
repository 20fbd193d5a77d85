package postgres

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/stelinglobal/storefront/internal/domain/inquiry"
)

// InquiryChannel is the NOTIFY channel raised by the inquiries trigger.
const InquiryChannel = "inquiries_changed"

// InquiryListener holds a LISTEN connection and forwards every inquiry change
// to a hub.
type InquiryListener struct {
	pool       *pgxpool.Pool
	hub        *inquiry.Hub
	lg         *zap.Logger
	retryDelay time.Duration
	listening  atomic.Bool
}

// ErrNotListening is reported by Check while the listener is reconnecting.
var ErrNotListening = errors.New("inquiry listener is not connected")

// NewInquiryListener creates a listener publishing to hub.
func NewInquiryListener(pool *pgxpool.Pool, hub *inquiry.Hub, lg *zap.Logger) *InquiryListener {
	return &InquiryListener{pool: pool, hub: hub, lg: lg, retryDelay: 5 * time.Second}
}

// Run listens until ctx is done, reconnecting after a fixed delay whenever
// the connection drops.
func (l *InquiryListener) Run(ctx context.Context) error {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.lg.Warn("Inquiry listener disconnected, retrying",
			zap.Error(err),
			zap.Duration("delay", l.retryDelay),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.retryDelay):
		}
	}
}

// Check reports whether the LISTEN connection is up.
func (l *InquiryListener) Check(context.Context) error {
	if !l.listening.Load() {
		return ErrNotListening
	}
	return nil
}

func (l *InquiryListener) listen(ctx context.Context) error {
	pooled, err := l.pool.Acquire(ctx)
	if err != nil {
		return errors.Wrap(err, "acquire")
	}
	// A connection that has issued LISTEN must not go back to the pool.
	conn := pooled.Hijack()
	defer func() {
		l.listening.Store(false)
		_ = conn.Close(context.Background())
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+InquiryChannel); err != nil {
		return errors.Wrap(err, "listen")
	}
	l.listening.Store(true)
	l.lg.Info("Listening for inquiry changes", zap.String("channel", InquiryChannel))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return errors.Wrap(err, "wait for notification")
		}
		id, err := uuid.Parse(n.Payload)
		if err != nil {
			l.lg.Warn("Ignoring malformed inquiry notification", zap.String("payload", n.Payload))
			continue
		}
		l.hub.Publish(inquiry.Change{ID: id})
	}
}
