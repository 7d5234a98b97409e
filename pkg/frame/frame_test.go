package frame

import (
	"bytes"
	"testing"
)

// sliceReader feeds a fixed byte slice to Decode one byte at a time.
type sliceReader struct {
	data []byte
	pos  int
}

func (r *sliceReader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, bytes.ErrTooLarge // any error signals end-of-input
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func TestEncodeSupervisoryFrame(t *testing.T) {
	got := Encode(Frame{Address: RXAddr, Command: SET()})
	want := []byte{FLAG, RXAddr, SET(), RXAddr ^ SET(), FLAG}
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode() = % x, want % x", got, want)
	}
}

func TestEncodeScenario1(t *testing.T) {
	// TX sends payload "A" (0x41). From the spec's worked example.
	got := Encode(Frame{Address: TXAddr, Command: I(0), Info: []byte{0x41}})
	want := []byte{0x7E, 0x07, 0x00, 0x07, 0x41, 0x41, 0x7E}
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode() = % x, want % x", got, want)
	}
}

func TestEncodeScenario2Stuffing(t *testing.T) {
	// Payload {0x7E, 0x7D} stuffs to {0x7D 0x5E 0x7D 0x5D}, BCC2 = 0x03.
	got := Encode(Frame{Address: TXAddr, Command: I(0), Info: []byte{0x7E, 0x7D}})
	want := []byte{0x7E, 0x07, 0x00, 0x07, 0x7D, 0x5E, 0x7D, 0x5D, 0x03, 0x7E}
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode() = % x, want % x", got, want)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x41},
		{0x7E},
		{0x7D},
		{0x7E, 0x7D, 0x7E, 0x7D},
		bytes.Repeat([]byte{0x7E, 0x00, 0xFF, 0x7D}, 256)[:1024],
	}

	for _, payload := range cases {
		f := Frame{Address: TXAddr, Command: I(1), Info: payload}
		wire := Encode(f)

		got, err := Decode(&sliceReader{data: wire}, RX)
		if err != nil {
			t.Fatalf("Decode(%d-byte payload) error: %v", len(payload), err)
		}
		if got.Corrupt {
			t.Fatalf("Decode(%d-byte payload) reported corrupt", len(payload))
		}
		if got.Address != f.Address || got.Command != f.Command {
			t.Fatalf("Decode() header = %+v, want addr=%#x cmd=%#x", got, f.Address, f.Command)
		}
		if !bytes.Equal(got.Info, payload) && !(len(got.Info) == 0 && len(payload) == 0) {
			t.Fatalf("Decode() info = % x, want % x", got.Info, payload)
		}
	}
}

func TestDecodeScenario1(t *testing.T) {
	wire := []byte{0x7E, 0x07, 0x00, 0x07, 0x41, 0x41, 0x7E}
	got, err := Decode(&sliceReader{data: wire}, RX)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got.Address != TXAddr || got.Command != I(0) || !bytes.Equal(got.Info, []byte{0x41}) {
		t.Fatalf("Decode() = %+v, want I(0) from TX carrying 0x41", got)
	}
}

func TestDecodeRejectsIllegalAddressForRole(t *testing.T) {
	// An RX-role decoder should never accept a supervisory command that
	// claims to be sent by TX but carries RX's own address (a response
	// address on what should be a command).
	wire := Encode(Frame{Address: RXAddr, Command: SET()})
	_, err := Decode(&sliceReader{data: wire}, RX)
	if err == nil {
		t.Fatal("Decode() accepted an illegal (command, address) pair")
	}
}

func TestDecodeBodyCorruptionSetsCorruptFlag(t *testing.T) {
	wire := Encode(Frame{Address: TXAddr, Command: I(0), Info: []byte{0x41}})
	wire[4] ^= 0xFF // flip the payload byte, leaving the transmitted BCC2 stale

	got, err := Decode(&sliceReader{data: wire}, RX)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if !got.Corrupt {
		t.Fatal("Decode() did not flag corrupted body")
	}
	if InfoSeq(got.Command) != 0 {
		t.Fatalf("Decode() corrupt frame lost its sequence bit: %+v", got)
	}
}

func TestDecodeSkipsJunkBeforeFlag(t *testing.T) {
	wire := append([]byte{0x00, 0xFF, 0x10}, Encode(Frame{Address: RXAddr, Command: SET()})...)
	got, err := Decode(&sliceReader{data: wire}, TX)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got.Command != SET() {
		t.Fatalf("Decode() = %+v, want SET", got)
	}
}

func TestRREncodingValues(t *testing.T) {
	if RR(0) != 0x05 {
		t.Fatalf("RR(0) = %#x, want 0x05", RR(0))
	}
	if RR(1) != 0x85 {
		t.Fatalf("RR(1) = %#x, want 0x85", RR(1))
	}
	if REJ(0) != 0x01 {
		t.Fatalf("REJ(0) = %#x, want 0x01", REJ(0))
	}
	if REJ(1) != 0x81 {
		t.Fatalf("REJ(1) = %#x, want 0x81", REJ(1))
	}
}
