package transport

import (
	"fmt"
	"log"
	"time"

	"go.bug.st/serial"
)

// pollInterval bounds how long a single underlying Read blocks before the
// background reader goroutine re-checks for a close signal. It is
// the Go-native substitute for the reference implementation's SIGALRM-driven
// read interruption: instead of an OS signal unblocking tcgetattr-configured
// blocking I/O, the reader loop simply polls.
const pollInterval = 200 * time.Millisecond

// serialPort adapts a go.bug.st/serial.Port to the Port interface, running
// the blocking read in a dedicated goroutine and fanning bytes out over a
// channel so ReadByte can also select on a wake signal. This mirrors the
// read-loop-plus-channel shape of the teacher's usock.readLoop, generalized
// so the loop can be interrupted instead of running forever.
type serialPort struct {
	port serial.Port

	bytesCh chan byte
	errCh   chan error
	wakeCh  chan struct{}
	stopCh  chan struct{}
}

// Open configures and opens a real serial device: 8 data bits, no parity,
// one stop bit, the given baud rate, matching the "8N1, read returns as
// soon as one byte is available" working configuration the link layer
// expects. There is no portable way to read back a go.bug.st/serial port's
// prior configuration (unlike POSIX tcgetattr), so unlike the C reference's
// oldtermios snapshot, Close does not attempt to restore a previous mode —
// it simply releases the device.
func Open(portName string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(pollInterval); err != nil {
		port.Close()
		return nil, fmt.Errorf("transport: set read timeout on %s: %w", portName, err)
	}

	p := &serialPort{
		port:    port,
		bytesCh: make(chan byte),
		errCh:   make(chan error, 1),
		wakeCh:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
	go p.readLoop()

	return p, nil
}

func (p *serialPort) readLoop() {
	buf := make([]byte, 1)
	for {
		n, err := p.port.Read(buf)
		select {
		case <-p.stopCh:
			return
		default:
		}

		if err != nil {
			select {
			case p.errCh <- fmt.Errorf("transport: read: %w", err):
			case <-p.stopCh:
			}
			return
		}
		if n == 0 {
			// Read timeout with no data: loop so we notice a close
			// without blocking indefinitely.
			continue
		}

		select {
		case p.bytesCh <- buf[0]:
		case <-p.stopCh:
			return
		}
	}
}

func (p *serialPort) ReadByte() (byte, error) {
	select {
	case b := <-p.bytesCh:
		return b, nil
	case err := <-p.errCh:
		return 0, err
	case <-p.wakeCh:
		return 0, ErrWoken
	case <-p.stopCh:
		return 0, ErrClosed
	}
}

func (p *serialPort) Write(data []byte) (int, error) {
	select {
	case <-p.stopCh:
		return 0, ErrClosed
	default:
	}
	return p.port.Write(data)
}

func (p *serialPort) Wake() {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

func (p *serialPort) Close() error {
	select {
	case <-p.stopCh:
		return nil
	default:
		close(p.stopCh)
	}
	if err := p.port.Close(); err != nil {
		log.Printf("transport: error closing serial port: %v", err)
		return err
	}
	return nil
}
