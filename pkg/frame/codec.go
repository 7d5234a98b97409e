package frame

import "github.com/fenwick-labs/serialink/pkg/bytebuffer"

// Frame is the decoded wire unit: an address, a command byte, and, for
// information frames, a payload. Corrupt marks an information frame whose
// body BCC2 failed to verify or whose body held an invalid escape; Command still carries the original sequence
// bit so the dispatcher can reply REJ(s) for the right sequence.
type Frame struct {
	Address byte
	Command byte
	Info    []byte
	Corrupt bool
}

// stuff applies byte stuffing to src, escaping FLAG and ESC bytes.
func stuff(dst *bytebuffer.Buffer, src []byte) {
	for _, b := range src {
		switch b {
		case FLAG:
			dst.Push(ESC)
			dst.Push(ESCFlag)
		case ESC:
			dst.Push(ESC)
			dst.Push(ESCEsc)
		default:
			dst.Push(b)
		}
	}
}

// bcc2 computes the body checksum: the XOR of every unstuffed payload byte.
func bcc2(info []byte) byte {
	var x byte
	for _, b := range info {
		x ^= b
	}
	return x
}

// Encode builds the wire bytes for f. For information frames, f.Info is
// byte-stuffed along with its trailing BCC2; f.Corrupt is ignored since a
// corrupt marker only ever exists on the receive side and is never
// transmitted.
func Encode(f Frame) []byte {
	out := bytebuffer.New()
	out.Push(FLAG)
	out.Push(f.Address)
	out.Push(f.Command)
	out.Push(f.Address ^ f.Command)

	if IsInformation(f.Command) {
		stuff(out, f.Info)
		stuff(out, []byte{bcc2(f.Info)})
	}

	out.Push(FLAG)
	return out.Bytes()
}
