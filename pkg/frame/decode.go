package frame

import (
	"errors"
	"fmt"

	"github.com/fenwick-labs/serialink/pkg/bytebuffer"
)

// ErrNoFrame wraps any transport failure (short read, EOF, interrupted
// read) encountered while a frame was being assembled.
var ErrNoFrame = errors.New("frame: no frame")

// ByteReader is the minimal read primitive the decoder needs. A
// transport.Port satisfies it.
type ByteReader interface {
	ReadByte() (byte, error)
}

type state int

const (
	stStart state = iota
	stFlagRcv
	stARcv
	stCRcv
	stBCCRcv
	stDataRcv
	stEscRcv
	stEndFlagRcv
	stEnd
	stNack
)

// Decode drives the byte-at-a-time receive state machine until one frame
// has been assembled, accepting only frames that carry the peer's address
// for role and a recognized command or response byte. Any
// transport error aborts the read immediately and is wrapped in ErrNoFrame.
func Decode(r ByteReader, role Role) (Frame, error) {
	var (
		st      = stStart
		address byte
		command byte
		body    = bytebuffer.New()
		corrupt bool
	)

	for {
		switch st {
		case stStart:
			b, err := r.ReadByte()
			if err != nil {
				return Frame{}, fmt.Errorf("%w: %w", ErrNoFrame, err)
			}
			if b == FLAG {
				st = stFlagRcv
			}

		case stFlagRcv:
			b, err := r.ReadByte()
			if err != nil {
				return Frame{}, fmt.Errorf("%w: %w", ErrNoFrame, err)
			}
			switch {
			case b == FLAG:
				st = stFlagRcv
			case b == PeerAddress(role):
				address = b
				st = stARcv
			default:
				st = stStart
			}

		case stARcv:
			b, err := r.ReadByte()
			if err != nil {
				return Frame{}, fmt.Errorf("%w: %w", ErrNoFrame, err)
			}
			switch {
			case b == FLAG:
				st = stFlagRcv
			case validCommandByte(b):
				command = b
				st = stCRcv
			default:
				st = stStart
			}

		case stCRcv:
			b, err := r.ReadByte()
			if err != nil {
				return Frame{}, fmt.Errorf("%w: %w", ErrNoFrame, err)
			}
			switch {
			case b == address^command:
				st = stBCCRcv
			case b == FLAG:
				st = stFlagRcv
			default:
				st = stStart
			}

		case stBCCRcv:
			if IsInformation(command) {
				st = stDataRcv
				continue
			}
			b, err := r.ReadByte()
			if err != nil {
				return Frame{}, fmt.Errorf("%w: %w", ErrNoFrame, err)
			}
			if b == FLAG {
				st = stEnd
			} else {
				st = stStart
			}

		case stDataRcv:
			b, err := r.ReadByte()
			if err != nil {
				return Frame{}, fmt.Errorf("%w: %w", ErrNoFrame, err)
			}
			switch b {
			case ESC:
				st = stEscRcv
			case FLAG:
				st = stEndFlagRcv
			default:
				body.Push(b)
			}

		case stEscRcv:
			b, err := r.ReadByte()
			if err != nil {
				return Frame{}, fmt.Errorf("%w: %w", ErrNoFrame, err)
			}
			switch b {
			case ESCFlag:
				body.Push(FLAG)
				st = stDataRcv
			case ESCEsc:
				body.Push(ESC)
				st = stDataRcv
			default:
				st = stNack
			}

		case stEndFlagRcv:
			receivedBCC2 := body.Pop()
			if bcc2(body.Bytes()) != receivedBCC2 {
				st = stNack
			} else {
				st = stEnd
			}

		case stNack:
			corrupt = true
			st = stEnd

		case stEnd:
			return Frame{
				Address: address,
				Command: command,
				Info:    append([]byte(nil), body.Bytes()...),
				Corrupt: corrupt,
			}, nil
		}
	}
}
