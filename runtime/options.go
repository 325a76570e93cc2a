package runtime

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/sbl8/scanloop/runtime"

// Options configures loop behavior
type Options struct {
	// Logger receives lifecycle events at debug level. Nil means no logging.
	Logger *zap.Logger
	// EnableStats accumulates ExecutionStats across runs.
	EnableStats bool
	// EnableMetrics reports runs, iterations and buffer traffic to Prometheus.
	EnableMetrics bool
	// Tracer opens one span per run. Nil uses the global otel provider.
	Tracer trace.Tracer
}

// DefaultOptions provides sensible runtime defaults
func DefaultOptions() Options {
	return Options{
		Logger:        zap.NewNop(),
		EnableStats:   true,
		EnableMetrics: false,
		Tracer:        otel.Tracer(tracerName),
	}
}

func (o Options) normalized() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer(tracerName)
	}
	return o
}
