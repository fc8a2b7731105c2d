package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/compose-network/ingress/x/codec"
)

type commandFlags struct {
	addr      string
	framing   string
	kind      string
	operation string
	data      string
	count     int
	interval  time.Duration
	reset     bool
	wait      time.Duration
}

func main() {
	flags := parseFlags()

	if err := run(flags); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() commandFlags {
	var flags commandFlags
	flag.StringVar(&flags.addr, "addr", "127.0.0.1:12345", "Ingress TCP endpoint")
	flag.StringVar(&flags.framing, "framing", codec.NameRaw, "Framing to match the server: raw|length_prefixed")
	flag.StringVar(&flags.kind, "kind", "json", "Payload kind: json|yaml|protobuf|kafka|raw")
	flag.StringVar(&flags.operation, "operation", "start", "Operation carried by json, yaml and protobuf payloads")
	flag.StringVar(&flags.data, "data", "", "Bytes sent as-is when -kind=raw")
	flag.IntVar(&flags.count, "count", 1, "Number of frames to send")
	flag.DurationVar(&flags.interval, "interval", 100*time.Millisecond, "Pause between frames so raw framing sees separate reads")
	flag.BoolVar(&flags.reset, "reset", false, "Abort with RST instead of a clean FIN")
	flag.DurationVar(&flags.wait, "wait", 2*time.Second, "Time to wait for the server to close after the half-close")

	flag.Parse()

	if flags.count < 1 {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\n-count must be at least 1")
		os.Exit(2)
	}

	return flags
}

func run(cfg commandFlags) error {
	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}).Level(zerolog.InfoLevel).With().Timestamp().Logger()

	frameCodec, ok := codec.NewRegistry().Get(cfg.framing)
	if !ok {
		return fmt.Errorf("unsupported framing %q", cfg.framing)
	}

	payload, err := buildPayload(cfg.kind, cfg.operation, []byte(cfg.data))
	if err != nil {
		return err
	}

	var wire bytes.Buffer
	if err := frameCodec.Encode(payload, &wire); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	conn, err := net.DialTimeout("tcp", cfg.addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.addr, err)
	}
	tcpConn, _ := conn.(*net.TCPConn)
	defer conn.Close()

	logger = logger.With().Str("local_addr", conn.LocalAddr().String()).Logger()
	logger.Info().Str("addr", cfg.addr).Msg("connected to ingress")

	for i := 0; i < cfg.count; i++ {
		if _, err := conn.Write(wire.Bytes()); err != nil {
			return fmt.Errorf("write frame %d: %w", i, err)
		}
		logger.Info().
			Int("frame", i).
			Str("kind", cfg.kind).
			Int("payload_bytes", len(payload)).
			Int("wire_bytes", wire.Len()).
			Msg("frame sent")

		if i+1 < cfg.count && cfg.interval > 0 {
			time.Sleep(cfg.interval)
		}
	}

	if cfg.reset && tcpConn != nil {
		if err := tcpConn.SetLinger(0); err != nil {
			return fmt.Errorf("set linger: %w", err)
		}
		logger.Info().Msg("aborting connection")
		return nil
	}

	if tcpConn != nil {
		if err := tcpConn.CloseWrite(); err != nil {
			return fmt.Errorf("half-close: %w", err)
		}
	}

	if cfg.wait <= 0 {
		return nil
	}

	logger.Info().Dur("wait", cfg.wait).Msg("waiting for the server to close")
	if err := conn.SetReadDeadline(time.Now().Add(cfg.wait)); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}
	n, err := io.Copy(io.Discard, conn)
	switch {
	case err == nil:
		logger.Info().Int64("bytes_received", n).Msg("server closed the connection")
	case errors.Is(err, os.ErrDeadlineExceeded):
		logger.Warn().Msg("server kept the connection open")
	default:
		return fmt.Errorf("read: %w", err)
	}

	return nil
}
