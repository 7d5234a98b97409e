package transport

import "sync"

const loopbackBuffer = 4096

// loopbackPort is an in-memory Port used by tests to exercise the link
// layer without a real serial cable: two loopbackPorts, built together by
// NewLoopbackPair, feed each other's reads from each other's writes.
type loopbackPort struct {
	out chan<- byte
	in  <-chan byte

	wakeCh chan struct{}
	stopCh chan struct{}
	once   sync.Once
}

// NewLoopbackPair returns two connected ports, tx and rx, such that bytes
// written to tx are read from rx and vice versa.
func NewLoopbackPair() (tx Port, rx Port) {
	aToB := make(chan byte, loopbackBuffer)
	bToA := make(chan byte, loopbackBuffer)

	a := &loopbackPort{
		out:    aToB,
		in:     bToA,
		wakeCh: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
	b := &loopbackPort{
		out:    bToA,
		in:     aToB,
		wakeCh: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
	return a, b
}

func (p *loopbackPort) ReadByte() (byte, error) {
	select {
	case b := <-p.in:
		return b, nil
	case <-p.wakeCh:
		return 0, ErrWoken
	case <-p.stopCh:
		return 0, ErrClosed
	}
}

func (p *loopbackPort) Write(data []byte) (int, error) {
	select {
	case <-p.stopCh:
		return 0, ErrClosed
	default:
	}
	for i, b := range data {
		select {
		case p.out <- b:
		case <-p.stopCh:
			return i, ErrClosed
		}
	}
	return len(data), nil
}

func (p *loopbackPort) Wake() {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

func (p *loopbackPort) Close() error {
	p.once.Do(func() { close(p.stopCh) })
	return nil
}
