package dispatch

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/ingress/metrics"
	"github.com/compose-network/ingress/x/parser"
)

// callLog records parser invocations across every mockParser sharing it.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type mockParser struct {
	name   string
	detect bool
	op     string
	err    error
	panics bool
	log    *callLog
}

func (m *mockParser) String() string { return m.name }

func (m *mockParser) IsMessage([]byte) bool {
	m.log.add(m.name + ".detect")
	return m.detect
}

func (m *mockParser) Parse([]byte) (parser.Message, error) {
	m.log.add(m.name + ".parse")
	if m.panics {
		panic("boom")
	}
	if m.err != nil {
		return parser.Message{Operation: "leaked"}, m.err
	}
	return parser.Message{Operation: m.op}, nil
}

func newRegistry(t *testing.T, parsers ...parser.Parser) *parser.Registry {
	t.Helper()
	r, err := parser.NewRegistry(parsers...)
	require.NoError(t, err)
	return r
}

func TestDispatch_FanOutInRegistryOrder(t *testing.T) {
	t.Parallel()

	calls := &callLog{}
	r := newRegistry(t,
		&mockParser{name: "a", detect: true, op: "from-a", log: calls},
		&mockParser{name: "b", detect: false, log: calls},
		&mockParser{name: "c", detect: true, op: "from-c", log: calls},
	)

	results := Dispatch([]byte("frame"), r)

	assert.Equal(t, []string{"a.detect", "a.parse", "b.detect", "c.detect", "c.parse"}, calls.snapshot())
	require.Len(t, results, 3)

	assert.Equal(t, parser.Result{Index: 0, Parser: "0:a", Detected: true, Message: parser.Message{Operation: "from-a"}}, results[0])
	assert.Equal(t, parser.Result{Index: 1, Parser: "1:b", Message: parser.Sentinel()}, results[1])
	assert.Equal(t, "from-c", results[2].Message.Operation)
	assert.True(t, results[2].Decoded())
}

func TestDispatch_BothParsersDecode(t *testing.T) {
	t.Parallel()

	r := newRegistry(t, parser.NewKafkaParser(), parser.NewJSONParser())
	frame := []byte(`{"operation":"start"}`)

	results := Dispatch(frame, r)
	require.Len(t, results, 2)

	assert.True(t, results[0].Decoded())
	assert.Equal(t, frame, results[0].Message.Payload)
	assert.True(t, results[1].Decoded())
	assert.Equal(t, "start", results[1].Message.Operation)
}

func TestDispatch_NonObjectFramesAreJSONFailures(t *testing.T) {
	t.Parallel()

	r := newRegistry(t, parser.NewKafkaParser(), parser.NewJSONParser())

	tests := []struct {
		name  string
		frame []byte
		want  error
	}{
		{name: "array", frame: []byte(`[1,2]`), want: parser.ErrMalformed},
		{name: "invalid utf8", frame: []byte("\xff\xfe{"), want: parser.ErrInvalidUTF8},
		{name: "tail of a split object", frame: []byte(`"operation":"start"}`), want: parser.ErrMalformed},
		{name: "plain text", frame: []byte("hello"), want: parser.ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			results := Dispatch(tt.frame, r)
			require.Len(t, results, 2)
			assert.True(t, results[0].Decoded())

			res := results[1]
			assert.True(t, res.Detected)
			assert.True(t, res.Message.IsSentinel())
			require.ErrorIs(t, res.Err, tt.want)
			assert.False(t, res.Decoded())
		})
	}
}

func TestDispatch_EmptyRegistry(t *testing.T) {
	t.Parallel()

	results := Dispatch([]byte("anything"), newRegistry(t))
	assert.Empty(t, results)
}

func TestDispatch_FailureSubstitutesSentinelAndContinues(t *testing.T) {
	t.Parallel()

	calls := &callLog{}
	r := newRegistry(t,
		&mockParser{name: "bad", detect: true, err: parser.ErrMalformed, log: calls},
		&mockParser{name: "panicky", detect: true, panics: true, log: calls},
		&mockParser{name: "good", detect: true, op: "ok", log: calls},
	)

	results := Dispatch([]byte("x"), r)
	require.Len(t, results, 3)

	require.ErrorIs(t, results[0].Err, parser.ErrMalformed)
	assert.True(t, results[0].Message.IsSentinel())

	require.ErrorIs(t, results[1].Err, parser.ErrParserPanic)
	assert.True(t, results[1].Message.IsSentinel())
	assert.True(t, results[1].Detected)

	assert.Equal(t, "ok", results[2].Message.Operation)
	assert.Equal(t, []string{"bad.detect", "bad.parse", "panicky.detect", "panicky.parse", "good.detect", "good.parse"}, calls.snapshot())
}

type panicOnDetect struct{}

func (panicOnDetect) IsMessage([]byte) bool                { panic("detect") }
func (panicOnDetect) Parse([]byte) (parser.Message, error) { return parser.Sentinel(), nil }

func TestDispatch_DetectPanicIsRecorded(t *testing.T) {
	t.Parallel()

	results := Dispatch([]byte("x"), newRegistry(t, panicOnDetect{}, parser.NewKafkaParser()))
	require.Len(t, results, 2)
	require.ErrorIs(t, results[0].Err, parser.ErrParserPanic)
	assert.False(t, results[0].Detected)
	assert.True(t, results[1].Decoded())
}

func TestDriver_RecordsMetricsAndLogs(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetricsWith(metrics.NewComponentRegistryWith(reg, metrics.Namespace, "dispatch"))

	var logBuf bytes.Buffer
	d := NewDriver(newRegistry(t, parser.NewKafkaParser(), parser.NewJSONParser()), zerolog.Nop(), WithMetrics(m))

	ctx := zerolog.New(&logBuf).With().Str("conn_id", "c1").Logger().WithContext(context.Background())

	d.Dispatch(ctx, []byte(`{"operation":"start"}`))
	results := d.Dispatch(ctx, []byte(`{`))

	require.Len(t, results, 2)
	assert.True(t, results[0].Decoded())
	require.ErrorIs(t, results[1].Err, parser.ErrMalformed)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DetectionsTotal.WithLabelValues("0:kafka")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DecodesTotal.WithLabelValues("0:kafka")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DetectionsTotal.WithLabelValues("1:json")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecodesTotal.WithLabelValues("1:json")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FailuresTotal.WithLabelValues("1:json")))

	assert.Contains(t, logBuf.String(), `"conn_id":"c1"`)
	assert.Contains(t, logBuf.String(), `"component":"dispatch"`)
	assert.Contains(t, logBuf.String(), "substituted sentinel message")
}

func TestDriver_ConcurrentDispatchKeepsFramesApart(t *testing.T) {
	t.Parallel()

	d := NewDriver(newRegistry(t, parser.NewJSONParser()), zerolog.Nop())

	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for _, op := range []string{"alpha", "beta", "gamma", "delta"} {
		wg.Add(1)
		go func(op string) {
			defer wg.Done()
			frame := []byte(`{"operation":"` + op + `"}`)
			for i := 0; i < 200; i++ {
				res := d.Dispatch(context.Background(), frame)
				if res[0].Message.Operation != op {
					errs <- res[0].Message.Operation
					return
				}
			}
		}(op)
	}
	wg.Wait()
	close(errs)

	for got := range errs {
		t.Errorf("frame decoded to foreign operation %q", got)
	}
}
