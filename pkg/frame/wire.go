// Package frame implements the wire-level unit of the link protocol: frame
// encoding, byte stuffing, and the byte-at-a-time receive state machine.
package frame

// Wire constants, bit-exact with the protocol this package implements.
const (
	FLAG     byte = 0x7E
	ESC      byte = 0x7D
	ESCFlag  byte = 0x5E
	ESCEsc   byte = 0x5D
	TXAddr   byte = 0x07
	RXAddr   byte = 0x03
	setCmd   byte = 0x03
	discCmd  byte = 0x0B
	uaCmd    byte = 0x07
	infoMask byte = 0x0F
)

// Role identifies which side of the connection a decoder is running on; it
// determines which address an incoming frame must carry (see PeerAddress).
type Role int

const (
	TX Role = iota
	RX
)

// SET is the connect command.
func SET() byte { return setCmd }

// DISC is the disconnect command.
func DISC() byte { return discCmd }

// UA is the unnumbered acknowledgement response.
func UA() byte { return uaCmd }

// I returns the command byte for an information frame carrying sequence
// bit s (0 or 1).
func I(s byte) byte { return (s & 1) << 6 }

// RR returns the positive-acknowledgement response byte for sequence r.
func RR(r byte) byte { return ((r & 1) << 7) | 0x05 }

// REJ returns the negative-acknowledgement response byte for sequence r.
func REJ(r byte) byte { return ((r & 1) << 7) | 0x01 }

// IsInformation reports whether cmd is an information-frame command,
// regardless of sequence bit.
func IsInformation(cmd byte) bool { return cmd&infoMask == 0x00 }

// InfoSeq extracts the sequence bit from an information command byte.
func InfoSeq(cmd byte) byte { return (cmd >> 6) & 1 }

// IsCommand reports whether cmd is a command (as opposed to a response).
func IsCommand(cmd byte) bool {
	return cmd == setCmd || cmd == discCmd || IsInformation(cmd)
}

// IsResponse reports whether cmd is a response (as opposed to a command).
func IsResponse(cmd byte) bool {
	if cmd == uaCmd {
		return true
	}
	low := cmd & infoMask
	return low == 0x05 || low == 0x01
}

// PeerAddress returns the canonical address a decoder of the given role
// expects every incoming frame to carry: each endpoint always stamps the
// frames it sends, commands and responses alike, with its own canonical
// address (TX_ADDR for TX, RX_ADDR for RX) — so the peer's frames always
// carry the peer's address, regardless of frame kind.
func PeerAddress(role Role) byte {
	if role == TX {
		return RXAddr
	}
	return TXAddr
}

// OwnAddress returns the canonical address a connection of the given role
// stamps on every frame it sends.
func OwnAddress(role Role) byte {
	if role == TX {
		return TXAddr
	}
	return RXAddr
}

// validCommandByte reports whether cmd is a recognized command or response
// value at all, independent of addressing.
func validCommandByte(cmd byte) bool {
	return IsCommand(cmd) || IsResponse(cmd)
}
