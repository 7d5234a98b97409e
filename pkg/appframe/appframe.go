package appframe

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fenwick-labs/serialink/pkg/link"
)

// dataChunkSize is the largest payload a single DATA packet can carry
// while still fitting under the link layer's maximum information frame
// size once the 4-byte DATA header is accounted for.
const dataChunkSize = link.MaxPayloadSize - 4

// Sender reads a local file and emits it as a START packet, a run of DATA
// packets, and a terminating END packet, one link Write per packet.
type Sender struct{}

// NewSender returns a ready-to-use Sender. Sender holds no state between
// calls, so one value can send any number of files in sequence.
func NewSender() *Sender { return &Sender{} }

// SendFile transfers the file at path over w, which is typically a
// *link.Connection opened with link.TX.
func (s *Sender) SendFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("appframe: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("appframe: stat %s: %w", path, err)
	}

	name := filepath.Base(path)
	start, err := buildStart(uint64(info.Size()), name)
	if err != nil {
		return fmt.Errorf("appframe: build START: %w", err)
	}
	if _, err := w.Write(start); err != nil {
		return fmt.Errorf("appframe: send START: %w", err)
	}
	log.Printf("appframe: sent START (%s, %d bytes)", name, info.Size())

	buf := make([]byte, dataChunkSize)
	var seq byte
	var sent int64
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buildData(seq, buf[:n])); werr != nil {
				return fmt.Errorf("appframe: send DATA(seq=%d): %w", seq, werr)
			}
			sent += int64(n)
			seq++
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("appframe: read %s: %w", path, rerr)
		}
	}
	log.Printf("appframe: sent %d bytes in %d DATA packets", sent, int(seq))

	if _, err := w.Write(buildEnd()); err != nil {
		return fmt.Errorf("appframe: send END: %w", err)
	}
	log.Printf("appframe: sent END")
	return nil
}

// Receiver consumes a START/DATA.../END stream and writes the transferred
// file to destDir.
type Receiver struct{}

// NewReceiver returns a ready-to-use Receiver.
func NewReceiver() *Receiver { return &Receiver{} }

// ReceiveFile reads one complete file transfer from rd, typically a
// *link.Connection opened with link.RX, and returns the path it wrote the
// file to.
func (r *Receiver) ReceiveFile(rd io.Reader, destDir string) (string, error) {
	buf := make([]byte, link.MaxPayloadSize)

	n, err := rd.Read(buf)
	if err != nil {
		return "", fmt.Errorf("appframe: receive START: %w", err)
	}
	fileSize, fileName, err := parseStart(buf[:n])
	if err != nil {
		return "", fmt.Errorf("appframe: %w", err)
	}
	log.Printf("appframe: received START (%s, %d bytes)", fileName, fileSize)

	outPath := filepath.Join(destDir, receivedName(fileName))
	out, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("appframe: create %s: %w", outPath, err)
	}
	defer out.Close()

	var received uint64
	var wantSeq byte
	for {
		n, err := rd.Read(buf)
		if err != nil {
			return "", fmt.Errorf("appframe: receive packet: %w", err)
		}
		if n == 0 {
			return "", fmt.Errorf("%w: empty packet", ErrMalformedPacket)
		}

		switch buf[0] {
		case typeData:
			seq, payload, err := parseData(buf[:n])
			if err != nil {
				return "", fmt.Errorf("appframe: %w", err)
			}
			if seq != wantSeq {
				log.Printf("appframe: out-of-order DATA packet (got seq=%d, expected %d)", seq, wantSeq)
			}
			wantSeq = seq + 1
			if _, err := out.Write(payload); err != nil {
				return "", fmt.Errorf("appframe: write %s: %w", outPath, err)
			}
			received += uint64(len(payload))

		case typeEnd:
			if err := parseEnd(buf[:n]); err != nil {
				return "", fmt.Errorf("appframe: %w", err)
			}
			if received != fileSize {
				return "", fmt.Errorf("%w: received %d bytes, want %d", ErrSizeMismatch, received, fileSize)
			}
			log.Printf("appframe: received END, %d bytes total", received)
			return outPath, nil

		default:
			return "", fmt.Errorf("%w: unexpected packet type %#x", ErrMalformedPacket, buf[0])
		}
	}
}

// receivedName derives the output file name from the name announced in the
// START packet, preserving the extension.
func receivedName(fileName string) string {
	ext := filepath.Ext(fileName)
	base := strings.TrimSuffix(fileName, ext)
	return base + "_received" + ext
}
