package appframe

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// pipe is an in-memory io.Writer/io.Reader bridging a Sender straight to a
// Receiver without a real link connection, mirroring how the link layer
// delivers one complete packet per Write/Read pair.
type pipe struct {
	packets [][]byte
	pos     int
}

func (p *pipe) Write(b []byte) (int, error) {
	cp := append([]byte(nil), b...)
	p.packets = append(p.packets, cp)
	return len(b), nil
}

func (p *pipe) Read(b []byte) (int, error) {
	if p.pos >= len(p.packets) {
		return 0, bytes.ErrTooLarge
	}
	n := copy(b, p.packets[p.pos])
	p.pos++
	return n, nil
}

func TestStartPacketRoundTrip(t *testing.T) {
	wire, err := buildStart(12345, "report.pdf")
	if err != nil {
		t.Fatalf("buildStart: %v", err)
	}
	size, name, err := parseStart(wire)
	if err != nil {
		t.Fatalf("parseStart: %v", err)
	}
	if size != 12345 || name != "report.pdf" {
		t.Fatalf("parseStart() = (%d, %q), want (12345, report.pdf)", size, name)
	}
}

func TestDataPacketRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 37)
	wire := buildData(200, payload)
	seq, got, err := parseData(wire)
	if err != nil {
		t.Fatalf("parseData: %v", err)
	}
	if seq != 200 {
		t.Fatalf("parseData() seq = %d, want 200", seq)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("parseData() payload = % x, want % x", got, payload)
	}
}

func TestEndPacketRoundTrip(t *testing.T) {
	if err := parseEnd(buildEnd()); err != nil {
		t.Fatalf("parseEnd: %v", err)
	}
}

func TestParseStartRejectsMalformed(t *testing.T) {
	if _, _, err := parseStart([]byte{typeData, 0x00}); err == nil {
		t.Fatal("parseStart accepted a non-START packet")
	}
}

func TestSendFileThenReceiveFile(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "notes.txt")
	content := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 200)
	if err := os.WriteFile(srcPath, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p := &pipe{}
	if err := NewSender().SendFile(p, srcPath); err != nil {
		t.Fatalf("SendFile: %v", err)
	}

	destDir := t.TempDir()
	outPath, err := NewReceiver().ReceiveFile(p, destDir)
	if err != nil {
		t.Fatalf("ReceiveFile: %v", err)
	}

	if want := filepath.Join(destDir, "notes_received.txt"); outPath != want {
		t.Fatalf("ReceiveFile() path = %q, want %q", outPath, want)
	}

	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("received content mismatch: got %d bytes, want %d bytes", len(got), len(content))
	}
}

func TestSendFileChunksAcrossMultipleDataPackets(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "big.bin")
	content := bytes.Repeat([]byte{0x5A}, dataChunkSize*3+17)
	if err := os.WriteFile(srcPath, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p := &pipe{}
	if err := NewSender().SendFile(p, srcPath); err != nil {
		t.Fatalf("SendFile: %v", err)
	}

	// START + 4 DATA packets (3 full chunks + a remainder) + END.
	if len(p.packets) != 6 {
		t.Fatalf("sent %d packets, want 6", len(p.packets))
	}
	for i, want := range []byte{typeStart, typeData, typeData, typeData, typeData, typeEnd} {
		if p.packets[i][0] != want {
			t.Fatalf("packet[%d] type = %#x, want %#x", i, p.packets[i][0], want)
		}
	}
}

func TestReceiveFileRejectsSizeMismatch(t *testing.T) {
	p := &pipe{}
	start, _ := buildStart(100, "x.bin")
	p.packets = append(p.packets, start)
	p.packets = append(p.packets, buildData(0, []byte("too short")))
	p.packets = append(p.packets, buildEnd())

	if _, err := NewReceiver().ReceiveFile(p, t.TempDir()); err == nil {
		t.Fatal("ReceiveFile accepted a byte count that didn't match the announced file size")
	}
}
