package link

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/rs/xid"

	"github.com/fenwick-labs/serialink/pkg/eventbus"
	"github.com/fenwick-labs/serialink/pkg/frame"
	"github.com/fenwick-labs/serialink/pkg/metrics"
	"github.com/fenwick-labs/serialink/pkg/timer"
	"github.com/fenwick-labs/serialink/pkg/transport"
)

// Connection is one open endpoint of the link protocol. All mutable state
// lives here; nothing in this package is process-global, so any number of
// connections may coexist (spec §5, "no global state").
type Connection struct {
	id   string
	role Role
	port transport.Port
	cfg  Config

	metrics *metrics.Recorder
	events  *eventbus.Bus

	mu               sync.Mutex
	closed           bool
	txSeq            byte
	rxSeq            byte
	lastCommand      *frame.Frame
	retxCount        int
	awaiting         bool
	peerUnresponsive bool

	timer *timer.Timer
}

// Open binds a connection to port, which the caller has already opened and
// configured, and, for TX, performs the SET/UA handshake described in spec
// §4.5. ctx bounds only that initial handshake, the same way the
// teacher bounds a Redis Ping at connection-setup time: once Open returns,
// the handshake is over and ctx is no longer consulted, since every later
// operation is already bounded by the retransmission budget instead. The
// retained last_command/retx_count are owned exclusively by the returned
// Connection and destroyed on Close.
func Open(ctx context.Context, port transport.Port, role Role, cfg Config, events *eventbus.Bus) (*Connection, error) {
	roleName := roleString(role)
	id := xid.New().String()

	c := &Connection{
		id:      id,
		role:    role,
		port:    port,
		cfg:     cfg,
		metrics: metrics.NewRecorder(id, roleName),
		events:  events,
	}
	c.timer = timer.New(cfg.Timeout, c.onExpiry)

	if role == TX {
		log.Printf("link[%s]: opening as TX, sending SET", id)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("link: open: %w", err)
		}
		if err := c.sendCommand(frame.Frame{Address: c.ownAddr(), Command: frame.SET()}, "SET"); err != nil {
			c.events.Publish(eventbus.Event{Connection: id, Role: roleName, Kind: eventbus.KindHandshakeFailed, Detail: err.Error()})
			return nil, fmt.Errorf("link: open: %w", err)
		}
		if _, err := c.expectFrameCtx(ctx, frame.UA()); err != nil {
			c.events.Publish(eventbus.Event{Connection: id, Role: roleName, Kind: eventbus.KindHandshakeFailed, Detail: err.Error()})
			return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
		}
		log.Printf("link[%s]: handshake complete (UA received)", id)
	} else {
		log.Printf("link[%s]: opening as RX, awaiting peer SET on first Read", id)
	}

	c.metrics.ConnectionOpened()
	c.events.Publish(eventbus.Event{Connection: id, Role: roleName, Kind: eventbus.KindOpened})
	return c, nil
}

// Write sends buf as one information frame and waits for its
// acknowledgement. A successful return means the peer has positively
// acknowledged the frame (spec §4.5 ordering guarantee).
func (c *Connection) Write(buf []byte) (int, error) {
	if len(buf) > MaxPayloadSize {
		return 0, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(buf), MaxPayloadSize)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	seq := c.txSeq
	c.mu.Unlock()

	f := frame.Frame{Address: c.ownAddr(), Command: frame.I(seq), Info: buf}
	if err := c.sendCommand(f, "I"); err != nil {
		return 0, fmt.Errorf("link: write: %w", err)
	}

	if _, err := c.expectFrame(frame.RR(1 - seq)); err != nil {
		return 0, fmt.Errorf("link: write: %w", err)
	}

	c.mu.Lock()
	c.txSeq = 1 - seq
	c.mu.Unlock()

	c.metrics.BytesTransferred("tx", len(buf))
	return len(buf), nil
}

// Read blocks for the next information frame in sequence and copies its
// payload into buf, returning the number of bytes copied.
func (c *Connection) Read(buf []byte) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	seq := c.rxSeq
	c.mu.Unlock()

	f, err := c.expectFrame(frame.I(seq))
	if err != nil {
		c.mu.Lock()
		closedNow := c.closed
		c.mu.Unlock()
		if closedNow {
			return 0, fmt.Errorf("link: read: end of stream: %w", ErrClosed)
		}
		return 0, fmt.Errorf("link: read: %w", err)
	}

	c.mu.Lock()
	c.rxSeq = 1 - seq
	c.mu.Unlock()

	n := copy(buf, f.Info)
	c.metrics.BytesTransferred("rx", n)
	return n, nil
}

// Close tears the connection down per spec §4.5 and destroys the retained
// last command and timer. After Close, every operation fails with
// ErrClosed.
func (c *Connection) Close() error {
	c.mu.Lock()
	alreadyClosed := c.closed
	c.mu.Unlock()

	roleName := roleString(c.role)

	if !alreadyClosed {
		var err error
		if c.role == TX {
			log.Printf("link[%s]: closing, sending DISC", c.id)
			if sendErr := c.sendCommand(frame.Frame{Address: c.ownAddr(), Command: frame.DISC()}, "DISC"); sendErr != nil {
				err = fmt.Errorf("link: close: %w", sendErr)
			} else if _, waitErr := c.expectFrame(frame.DISC()); waitErr != nil {
				err = fmt.Errorf("link: close: %w", waitErr)
			}
			// The peer's echoed DISC is handled by handleFrame above,
			// which (role=TX) already replied UA per the supervisory
			// table; no separate UA send is needed here.
		} else {
			log.Printf("link[%s]: closing, awaiting peer DISC", c.id)
			if _, waitErr := c.expectFrame(frame.DISC()); waitErr != nil {
				err = fmt.Errorf("link: close: %w", waitErr)
			}
		}
		if err != nil {
			log.Printf("link[%s]: close did not complete cleanly: %v", c.id, err)
		}
	}

	// RX answers the peer's DISC with its own DISC (see handleFrame), in
	// Close or in an earlier Read; wait for the peer's UA to it.
	c.mu.Lock()
	discOutstanding := c.role == RX && c.awaiting
	c.mu.Unlock()
	if discOutstanding {
		if _, waitErr := c.expectFrame(frame.UA()); waitErr != nil {
			log.Printf("link[%s]: no UA for DISC: %v", c.id, waitErr)
		}
	}

	c.mu.Lock()
	c.closed = true
	c.lastCommand = nil
	c.awaiting = false
	c.mu.Unlock()

	c.timer.Destroy()
	c.metrics.ConnectionClosed()
	c.events.Publish(eventbus.Event{Connection: c.id, Role: roleName, Kind: eventbus.KindClosed})

	return c.port.Close()
}

// sendCommand installs f as the outstanding command, transmits it, and
// arms the retransmit timer. Installation order matters: last_command and
// retx_count are updated before the timer is armed, so the timer goroutine
// can never observe a torn state (spec §5).
func (c *Connection) sendCommand(f frame.Frame, kind string) error {
	c.mu.Lock()
	cp := f
	c.lastCommand = &cp
	c.retxCount = 0
	c.awaiting = true
	c.peerUnresponsive = false
	c.mu.Unlock()

	if _, err := c.port.Write(frame.Encode(f)); err != nil {
		return fmt.Errorf("write to transport: %w", err)
	}
	c.metrics.FrameSent(kind)
	c.timer.Arm()
	return nil
}

// expectFrame drives the receive loop (spec §4.4) until a frame matching
// awaited is seen, dispatching every other frame along the way.
func (c *Connection) expectFrame(awaited byte) (frame.Frame, error) {
	for {
		f, err := frame.Decode(c.port, c.role)
		if err != nil {
			c.mu.Lock()
			unresponsive := c.peerUnresponsive
			c.mu.Unlock()
			if unresponsive {
				return frame.Frame{}, ErrPeerUnresponsive
			}
			return frame.Frame{}, fmt.Errorf("read frame: %w", err)
		}

		c.handleFrame(f)

		if !f.Corrupt && f.Command == awaited {
			return f, nil
		}

		// A DISC that arrived while waiting for anything other than the
		// teardown frame itself means the peer is closing: handleFrame has
		// already echoed our side of the teardown, and there is nothing
		// left worth blocking a Read or Write for.
		c.mu.Lock()
		closedNow := c.closed
		c.mu.Unlock()
		if closedNow && awaited != frame.DISC() {
			return frame.Frame{}, ErrClosed
		}
	}
}

// expectFrameCtx is expectFrame bounded by ctx, used only during Open's
// handshake. A watcher goroutine wakes the blocked transport read the
// moment ctx is done, so the handshake can be cancelled even while stuck
// waiting for a UA that will never arrive; once ctx has actually fired,
// its error takes precedence over whatever expectFrame's read loop saw as
// a result of being woken.
func (c *Connection) expectFrameCtx(ctx context.Context, awaited byte) (frame.Frame, error) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			c.port.Wake()
		case <-done:
		}
	}()

	f, err := c.expectFrame(awaited)
	close(done)
	<-exited

	if err != nil && ctx.Err() != nil {
		return frame.Frame{}, ctx.Err()
	}
	return f, err
}

// handleFrame implements the supervisory protocol (spec §4.4). It never
// blocks: every reply it sends is a single, non-waiting transport write.
func (c *Connection) handleFrame(f frame.Frame) {
	switch {
	case f.Corrupt:
		seq := frame.InfoSeq(f.Command)
		c.metrics.FrameReceived("I-corrupt")
		c.reply(frame.Frame{Address: c.ownAddr(), Command: frame.REJ(seq)}, "REJ")

	case f.Command == frame.SET():
		c.metrics.FrameReceived("SET")
		c.reply(frame.Frame{Address: c.ownAddr(), Command: frame.UA()}, "UA")

	case f.Command == frame.DISC():
		c.metrics.FrameReceived("DISC")
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		if c.role == RX {
			if err := c.sendCommand(frame.Frame{Address: c.ownAddr(), Command: frame.DISC()}, "DISC"); err != nil {
				log.Printf("link[%s]: failed to echo DISC: %v", c.id, err)
			}
		} else {
			c.reply(frame.Frame{Address: c.ownAddr(), Command: frame.UA()}, "UA")
		}

	case frame.IsInformation(f.Command):
		seq := frame.InfoSeq(f.Command)
		c.metrics.FrameReceived("I")
		c.reply(frame.Frame{Address: c.ownAddr(), Command: frame.RR(1 - seq)}, "RR")

	case f.Command == frame.UA():
		c.metrics.FrameReceived("UA")
		c.disarmOutstanding()

	case f.Command == frame.RR(0) || f.Command == frame.RR(1):
		c.metrics.FrameReceived("RR")
		c.disarmOutstanding()

	case f.Command == frame.REJ(0) || f.Command == frame.REJ(1):
		c.metrics.FrameReceived("REJ")
		c.metrics.Reject()
		c.events.Publish(eventbus.Event{Connection: c.id, Role: roleString(c.role), Kind: eventbus.KindRejected})
		c.timer.Force()
	}
}

// ownAddr returns the address this connection stamps on every frame it
// sends, whether command or response: each endpoint always identifies
// itself by its own canonical address.
func (c *Connection) ownAddr() byte {
	return frame.OwnAddress(c.role)
}

func (c *Connection) reply(f frame.Frame, kind string) {
	if _, err := c.port.Write(frame.Encode(f)); err != nil {
		log.Printf("link[%s]: failed to send %s reply: %v", c.id, kind, err)
		return
	}
	c.metrics.FrameSent(kind)
}

func (c *Connection) disarmOutstanding() {
	c.mu.Lock()
	c.awaiting = false
	c.mu.Unlock()
	c.timer.Disarm()
}

// onExpiry is invoked from the timer's own goroutine (spec §4.3, §5): it
// must not be called while c.mu is held by the caller, and must not block
// for long since the timer's run loop can't service Force/Disarm while
// inside this call.
func (c *Connection) onExpiry() {
	c.mu.Lock()
	if !c.awaiting || c.lastCommand == nil {
		c.mu.Unlock()
		return
	}
	if c.retxCount == c.cfg.MaxRetransmissions {
		c.peerUnresponsive = true
		c.awaiting = false
		c.mu.Unlock()

		log.Printf("link[%s]: peer unresponsive after %d retransmissions", c.id, c.cfg.MaxRetransmissions)
		c.timer.Disarm()
		c.port.Wake()
		c.metrics.PeerUnresponsive()
		c.events.Publish(eventbus.Event{
			Connection: c.id,
			Role:       roleString(c.role),
			Kind:       eventbus.KindPeerUnresponsive,
			RetryCount: c.cfg.MaxRetransmissions,
		})
		return
	}

	c.retxCount++
	retry := c.retxCount
	cmd := *c.lastCommand
	c.mu.Unlock()

	log.Printf("link[%s]: retransmitting (attempt %d/%d)", c.id, retry, c.cfg.MaxRetransmissions)
	if _, err := c.port.Write(frame.Encode(cmd)); err != nil {
		log.Printf("link[%s]: retransmit failed: %v", c.id, err)
		return
	}
	c.metrics.Retransmission()
	c.events.Publish(eventbus.Event{
		Connection: c.id,
		Role:       roleString(c.role),
		Kind:       eventbus.KindRetransmitted,
		RetryCount: retry,
	})
}

func roleString(r Role) string {
	if r == TX {
		return "tx"
	}
	return "rx"
}
