// Package eventbus publishes link-connection lifecycle events to Redis
// pub/sub so a fleet of devices can be observed centrally, generalizing the
// teacher's pkg/redis client wrapper (HSet/Publish over go-redis/v9) from a
// scooter-state sink into a transfer-agnostic event channel. A nil *Bus is
// a valid, inert event sink: the link layer never requires Redis to be
// reachable.
package eventbus

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

// Kind enumerates the connection lifecycle events this package publishes.
type Kind string

const (
	KindOpened           Kind = "opened"
	KindClosed           Kind = "closed"
	KindRetransmitted    Kind = "retransmitted"
	KindRejected         Kind = "rejected"
	KindHandshakeFailed  Kind = "handshake_failed"
	KindPeerUnresponsive Kind = "peer_unresponsive"
)

// Event is the CBOR-encoded payload published for every lifecycle
// transition, generalizing helpers.go's ad hoc map-based CBOR messages into
// a named, stable shape.
type Event struct {
	Connection string    `cbor:"connection"`
	Role       string    `cbor:"role"`
	Kind       Kind      `cbor:"kind"`
	Detail     string    `cbor:"detail,omitempty"`
	RetryCount int       `cbor:"retry_count,omitempty"`
	Time       time.Time `cbor:"time"`
}

// Channel is the Redis pub/sub channel every Bus publishes to.
const Channel = "serialink:events"

// Bus publishes Events to Redis. The zero value is not usable; use a nil
// *Bus to disable publication.
type Bus struct {
	client *redis.Client
	ctx    context.Context
}

// New connects to addr and verifies reachability with a Ping, matching
// pkg/redis/client.go's New.
func New(addr, password string, db int) (*Bus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("eventbus: connect to redis at %s: %w", addr, err)
	}

	return &Bus{client: client, ctx: ctx}, nil
}

// Publish CBOR-encodes ev and publishes it to Channel. Publish errors are
// logged rather than returned: a lost observability event must never fail
// the file transfer it is describing.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	payload, err := cbor.Marshal(ev)
	if err != nil {
		log.Printf("eventbus: failed to encode event: %v", err)
		return
	}
	if err := b.client.Publish(b.ctx, Channel, payload).Err(); err != nil {
		log.Printf("eventbus: failed to publish event: %v", err)
	}
}

// Close releases the underlying Redis client.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	return b.client.Close()
}
