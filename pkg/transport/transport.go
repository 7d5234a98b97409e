// Package transport abstracts the byte-stream underneath the link layer so
// the core protocol in pkg/link never imports a serial driver directly. A
// Port only needs to support a blocking one-byte read and a bulk write,
// plus a way for a retransmit timer to interrupt a stuck read.
package transport

import (
	"errors"
	"io"
)

// ErrWoken is returned by ReadByte when Wake was called while a read was
// pending. It carries no information about whether a byte had already
// arrived; the caller must treat the read as having failed.
var ErrWoken = errors.New("transport: read interrupted by wake")

// ErrClosed is returned by ReadByte (and rejected by Write) once the port
// has been closed.
var ErrClosed = errors.New("transport: port closed")

// Port is the byte-stream primitive the link layer needs: blocking
// read-one-byte, bulk write, and a way to close. Implementations must be
// safe for one reader and one writer goroutine to use concurrently, since
// the link layer's retransmit timer writes while the read loop reads.
type Port interface {
	io.Writer
	io.Closer

	// ReadByte blocks until exactly one byte has arrived, the port is
	// closed, or Wake is called. It never returns a short read: either
	// one byte and a nil error, or a zero byte and a non-nil error.
	ReadByte() (byte, error)

	// Wake interrupts one pending or future ReadByte call, causing it to
	// return ErrWoken. It is safe to call from any goroutine, including
	// one that does not otherwise touch the port. Calling Wake when no
	// read is pending arms a single future interruption; it does not
	// accumulate beyond one.
	Wake()
}
