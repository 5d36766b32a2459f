// Package bus broadcasts cache invalidations between processes over NATS.
//
// Every process that shares a cache namespace runs one Bus. Local
// invalidations are published on a single subject; each subscriber applies
// received invalidations to its own tiers without re-broadcasting, so an
// invalidation fans out exactly once. Broadcasts are best-effort: a process
// that is offline misses them and relies on entry TTLs to converge.
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/perchlabs/talon/internal/telemetry"
)

// Applier applies a received invalidation to the local cache tiers. It is
// implemented by cache.TieredCache.
type Applier interface {
	ApplyInvalidation(ctx context.Context, dependency string) []string
}

// Bus is a NATS-backed invalidation broadcaster. It implements
// cache.InvalidationPublisher.
type Bus struct {
	nc     *nats.Conn
	cfg    *Config
	origin string
	sub    *nats.Subscription
}

// NewBus connects to NATS and returns a bus ready to publish. Call
// SubscribeInvalidations to also receive broadcasts from other processes.
func NewBus(cfg *Config) (*Bus, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				telemetry.L().WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			telemetry.L().WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			telemetry.L().WithError(err).Error("NATS error")
		}),
	}

	if cfg.User != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Bus{
		nc:     nc,
		cfg:    cfg,
		origin: uuid.NewString(),
	}, nil
}

// PublishInvalidation broadcasts a dependency invalidation to all
// subscribed processes.
func (b *Bus) PublishInvalidation(ctx context.Context, dependency string) error {
	msg := NewInvalidationMessage(b.origin, dependency)
	data, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation message: %w", err)
	}

	if err := b.nc.Publish(b.cfg.Subject, data); err != nil {
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}

	telemetry.WithContext(ctx).WithFields(map[string]interface{}{
		"dependency": dependency,
		"message_id": msg.ID,
	}).Debug("Published invalidation")
	return nil
}

// SubscribeInvalidations starts applying broadcasts from other processes to
// the given cache. Messages published by this bus are skipped.
func (b *Bus) SubscribeInvalidations(applier Applier) error {
	sub, err := b.nc.Subscribe(b.cfg.Subject, func(m *nats.Msg) {
		b.handleInvalidation(applier, m.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.cfg.Subject, err)
	}
	b.sub = sub
	return nil
}

func (b *Bus) handleInvalidation(applier Applier, data []byte) {
	msg, err := UnmarshalInvalidationMessage(data)
	if err != nil {
		telemetry.L().WithError(err).Warn("Dropping malformed invalidation message")
		return
	}
	if msg.Origin == b.origin {
		return
	}

	keys := applier.ApplyInvalidation(context.Background(), msg.Dependency)
	telemetry.RecordInvalidation("bus")
	telemetry.L().WithFields(map[string]interface{}{
		"dependency": msg.Dependency,
		"origin":     msg.Origin,
		"keys":       len(keys),
	}).Info("Applied remote invalidation")
}

// Health checks the NATS connection health
func (b *Bus) Health() error {
	if !b.nc.IsConnected() {
		return fmt.Errorf("NATS is not connected")
	}
	return nil
}

// Close unsubscribes and closes the NATS connection.
func (b *Bus) Close() error {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	if b.nc != nil {
		b.nc.Close()
	}
	return nil
}
