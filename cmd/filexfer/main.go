// Command filexfer sends or receives a single file over a serial link
// using the stop-and-wait data-link protocol in pkg/link and the
// START/DATA/END packet framing in pkg/appframe.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fenwick-labs/serialink/pkg/appframe"
	"github.com/fenwick-labs/serialink/pkg/eventbus"
	"github.com/fenwick-labs/serialink/pkg/link"
	"github.com/fenwick-labs/serialink/pkg/metrics"
	"github.com/fenwick-labs/serialink/pkg/transport"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "send":
		err = runSend(os.Args[2:])
	case "receive":
		err = runReceive(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("filexfer: %v", err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: filexfer send -port <dev> -baud <n> -file <path> [options]\n")
	fmt.Fprintf(os.Stderr, "       filexfer receive -port <dev> -baud <n> -out <dir> [options]\n")
}

type commonFlags struct {
	port        string
	baud        int
	timeoutSecs int
	retries     int
	redisAddr   string
	redisPass   string
	metricsAddr string
}

func bindCommon(fs *flag.FlagSet) *commonFlags {
	c := &commonFlags{}
	fs.StringVar(&c.port, "port", "/dev/ttyUSB0", "Serial device path")
	fs.IntVar(&c.baud, "baud", 9600, "Serial baud rate")
	fs.IntVar(&c.timeoutSecs, "timeout", 4, "Retransmission timeout in seconds")
	fs.IntVar(&c.retries, "retries", 3, "Maximum retransmissions before giving up")
	fs.StringVar(&c.redisAddr, "redis-addr", "", "Redis server address for event publication (disabled if empty)")
	fs.StringVar(&c.redisPass, "redis-pass", "", "Redis password")
	fs.StringVar(&c.metricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on (disabled if empty)")
	return c
}

func (c *commonFlags) config() link.Config {
	cfg := link.DefaultConfig()
	cfg.Baud = c.baud
	cfg.MaxRetransmissions = c.retries
	if c.timeoutSecs > 0 {
		cfg.Timeout = time.Duration(c.timeoutSecs) * time.Second
	}
	return cfg
}

func (c *commonFlags) openEventBus() (*eventbus.Bus, error) {
	if c.redisAddr == "" {
		return nil, nil
	}
	bus, err := eventbus.New(c.redisAddr, c.redisPass, 0)
	if err != nil {
		return nil, fmt.Errorf("connect event bus: %w", err)
	}
	return bus, nil
}

// handshakeContext bounds link.Open's SET/UA handshake: a SIGINT/SIGTERM
// received while still waiting for the peer to answer cancels the
// handshake immediately instead of waiting out the full retransmission
// budget. It has no effect once Open returns; installSignalCloser takes
// over closing the connection for the rest of the transfer.
func (c *commonFlags) handshakeContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func (c *commonFlags) serveMetrics() {
	if c.metricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	go func() {
		log.Printf("filexfer: serving metrics on %s/metrics", c.metricsAddr)
		if err := http.ListenAndServe(c.metricsAddr, mux); err != nil {
			log.Printf("filexfer: metrics server stopped: %v", err)
		}
	}()
}

func runSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	c := bindCommon(fs)
	filePath := fs.String("file", "", "Path of the file to send")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *filePath == "" {
		return fmt.Errorf("send: -file is required")
	}

	log.Printf("filexfer: sending %s over %s at %d baud", *filePath, c.port, c.baud)
	c.serveMetrics()

	events, err := c.openEventBus()
	if err != nil {
		log.Printf("filexfer: %v, continuing without event publication", err)
	}
	defer events.Close()

	port, err := transport.Open(c.port, c.baud)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.port, err)
	}

	ctx, cancel := c.handshakeContext()
	conn, err := link.Open(ctx, port, link.TX, c.config(), events)
	cancel()
	if err != nil {
		port.Close()
		return fmt.Errorf("open link: %w", err)
	}

	installSignalCloser(conn)

	if err := appframe.NewSender().SendFile(conn, *filePath); err != nil {
		conn.Close()
		return fmt.Errorf("send file: %w", err)
	}

	if err := conn.Close(); err != nil {
		return fmt.Errorf("close link: %w", err)
	}
	log.Printf("filexfer: transfer complete")
	return nil
}

func runReceive(args []string) error {
	fs := flag.NewFlagSet("receive", flag.ExitOnError)
	c := bindCommon(fs)
	outDir := fs.String("out", ".", "Directory to write the received file into")
	if err := fs.Parse(args); err != nil {
		return err
	}

	log.Printf("filexfer: receiving over %s at %d baud into %s", c.port, c.baud, *outDir)
	c.serveMetrics()

	events, err := c.openEventBus()
	if err != nil {
		log.Printf("filexfer: %v, continuing without event publication", err)
	}
	defer events.Close()

	port, err := transport.Open(c.port, c.baud)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.port, err)
	}

	ctx, cancel := c.handshakeContext()
	conn, err := link.Open(ctx, port, link.RX, c.config(), events)
	cancel()
	if err != nil {
		port.Close()
		return fmt.Errorf("open link: %w", err)
	}

	installSignalCloser(conn)

	outPath, err := appframe.NewReceiver().ReceiveFile(conn, *outDir)
	if err != nil {
		conn.Close()
		return fmt.Errorf("receive file: %w", err)
	}

	if err := conn.Close(); err != nil {
		return fmt.Errorf("close link: %w", err)
	}
	log.Printf("filexfer: wrote %s", outPath)
	return nil
}

// installSignalCloser closes conn on SIGINT/SIGTERM so a transfer stuck
// waiting on an unresponsive peer can be torn down cleanly instead of
// leaving the serial port open.
func installSignalCloser(conn *link.Connection) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("filexfer: signal received, closing connection")
		conn.Close()
	}()
}
