// Package link implements the stop-and-wait data-link protocol: frame
// dispatch, the supervisory handshake/teardown, and the retransmission
// timer, layered on any transport.Port. It is the reliable-delivery core
// the application layer (pkg/appframe) builds a file transfer on top of.
package link

import (
	"errors"
	"time"

	"github.com/fenwick-labs/serialink/pkg/frame"
)

// Role mirrors frame.Role so callers of this package never need to import
// pkg/frame directly.
type Role = frame.Role

const (
	TX = frame.TX
	RX = frame.RX
)

// Sentinel errors for the taxonomy of operation failures a caller needs to
// distinguish (handshake failure, peer unresponsive, use after close,
// oversized payload). Transport-level failures are wrapped but not replaced, so
// errors.Is still finds the underlying transport error.
var (
	ErrClosed           = errors.New("link: connection is closed")
	ErrHandshakeFailed  = errors.New("link: handshake failed")
	ErrPeerUnresponsive = errors.New("link: peer unresponsive, retransmissions exhausted")
	ErrPayloadTooLarge  = errors.New("link: payload exceeds maximum information frame size")
)

// MaxPayloadSize is the largest payload one information frame may carry;
// larger transfers are the application layer's responsibility to
// fragment (§6.2/§10 of the specification this package implements).
const MaxPayloadSize = 1024

// Config carries the parameters the reference implementation hands to
// llopen: baud rate, retransmission timeout, and retry budget. The link
// layer does not read Baud; transport.Open takes the baud rate as its own
// argument.
type Config struct {
	Baud               int
	Timeout            time.Duration
	MaxRetransmissions int
}

// DefaultConfig matches the reference implementation's defaults: 9600 baud,
// a 4 second retransmission timeout, and 3 retries.
func DefaultConfig() Config {
	return Config{
		Baud:               9600,
		Timeout:            4 * time.Second,
		MaxRetransmissions: 3,
	}
}
