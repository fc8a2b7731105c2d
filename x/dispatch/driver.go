// Package dispatch fans each frame out to every parser of a registry.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/compose-network/ingress/x/parser"
)

// Dispatch runs frame through every parser of registry in order: IsMessage
// once per parser, then Parse for each parser that claimed the frame. It is
// fan-out, not first-match. Decode failures and parser panics are captured in
// the results and never stop the loop.
func Dispatch(frame []byte, registry *parser.Registry) []parser.Result {
	results := make([]parser.Result, registry.Len())
	for i := range results {
		results[i] = invoke(i, registry.Label(i), registry.Parser(i), frame)
	}
	return results
}

func invoke(i int, label string, p parser.Parser, frame []byte) parser.Result {
	res := parser.Result{Index: i, Parser: label, Message: parser.Sentinel()}

	detected, err := safeDetect(p, frame)
	if err != nil {
		res.Err = err
		return res
	}
	if !detected {
		return res
	}

	res.Detected = true
	msg, err := safeParse(p, frame)
	if err != nil {
		res.Err = err
		return res
	}
	res.Message = msg

	return res
}

func safeDetect(p parser.Parser, frame []byte) (ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ok, err = false, fmt.Errorf("%w: IsMessage: %v", parser.ErrParserPanic, rec)
		}
	}()
	return p.IsMessage(frame), nil
}

func safeParse(p parser.Parser, frame []byte) (msg parser.Message, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			msg, err = parser.Sentinel(), fmt.Errorf("%w: Parse: %v", parser.ErrParserPanic, rec)
		}
	}()

	msg, err = p.Parse(frame)
	if err != nil {
		// Parsers should already return the sentinel; do not trust them.
		msg = parser.Sentinel()
	}
	return msg, err
}

// Driver wraps Dispatch with logging and metrics for one shared registry.
// It holds no per-frame state and is safe for concurrent use.
type Driver struct {
	registry *parser.Registry
	log      zerolog.Logger
	metrics  *Metrics
}

// Option configures a Driver
type Option func(*Driver)

// WithMetrics records dispatch metrics on m
func WithMetrics(m *Metrics) Option {
	return func(d *Driver) {
		d.metrics = m
	}
}

// NewDriver creates a dispatch driver over registry
func NewDriver(registry *parser.Registry, log zerolog.Logger, opts ...Option) *Driver {
	d := &Driver{
		registry: registry,
		log:      log.With().Str("component", "dispatch").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry this driver dispatches to
func (d *Driver) Registry() *parser.Registry {
	return d.registry
}

// Dispatch fans frame out to the registry and records every failure. A logger
// attached to ctx (zerolog.Ctx) is preferred over the driver's own so entries
// carry the caller's fields, e.g. the connection ID.
func (d *Driver) Dispatch(ctx context.Context, frame []byte) []parser.Result {
	log := d.log
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		log = l.With().Str("component", "dispatch").Logger()
	}

	start := time.Now()
	results := Dispatch(frame, d.registry)
	elapsed := time.Since(start)

	matches := 0
	for _, r := range results {
		if r.Detected {
			matches++
		}

		if r.Err != nil {
			log.Warn().
				Err(r.Err).
				Str("parser", r.Parser).
				Int("frame_size", len(frame)).
				Msg("Parser failed, substituted sentinel message")
		} else if r.Detected {
			log.Debug().
				Str("parser", r.Parser).
				Str("operation", r.Message.Operation).
				Int("payload_size", len(r.Message.Payload)).
				Msg("Frame decoded")
		}

		if d.metrics != nil {
			d.metrics.recordResult(r.Parser, r.Detected, r.Err != nil)
		}
	}

	if d.metrics != nil {
		d.metrics.recordFrame(matches, elapsed)
	}

	return results
}
