package limiter

import (
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xizzxy/quotagate/internal/limiter"

type options struct {
	clock    Clock
	logger   *slog.Logger
	recorder Recorder
	mode     FailureMode
	timeout  time.Duration
	breaker  *CircuitOptions
	tracer   trace.Tracer
}

// Option configures a limiter or the Engine.
type Option func(*options)

// WithClock injects the time source.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithFailureMode sets the decision returned when the store is unavailable.
func WithFailureMode(m FailureMode) Option {
	return func(o *options) { o.mode = m }
}

// WithStoreTimeout bounds each store interaction.
func WithStoreTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithCircuitBreaker enables the store circuit breaker.
func WithCircuitBreaker(opts CircuitOptions) Option {
	return func(o *options) { o.breaker = &opts }
}

func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

func buildOptions(opts []Option) *options {
	o := &options{mode: FailOpen, timeout: DefaultStoreTimeout}
	for _, opt := range opts {
		opt(o)
	}
	if o.clock == nil {
		o.clock = SystemClock
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	return o
}

func (o *options) guard() *Guard {
	var breaker *CircuitBreaker
	if o.breaker != nil {
		breaker = NewCircuitBreaker(*o.breaker, o.clock.Now)
	}
	return newGuard(o.mode, o.timeout, breaker, o.logger, o.recorder)
}
