package tracing

import (
	"io"
	"os"
	"strconv"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/uber/jaeger-client-go/config"
)

const (
	// SampleRatioEnv overrides the default sampling ratio.
	SampleRatioEnv = "JAEGER_SAMPLE_RATIO"

	defaultSampleRatio float64 = 0.01
)

// Init returns a new Jaeger tracer reporting to the agent at host. The closer flushes buffered spans.
func Init(serviceName string, host string) (opentracing.Tracer, io.Closer, error) {
	ratio := defaultSampleRatio
	if val, ok := os.LookupEnv(SampleRatioEnv); ok {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			ratio = parsed
		}
	}

	if ratio > 1 {
		ratio = 1.0
	} else if ratio < 0 {
		ratio = 0
	}

	cfg := config.Configuration{
		ServiceName: serviceName,
		Sampler: &config.SamplerConfig{
			Type:  "probabilistic",
			Param: ratio,
		},
		Reporter: &config.ReporterConfig{
			LogSpans:            false,
			BufferFlushInterval: 1 * time.Second,
			LocalAgentHostPort:  host,
		},
	}

	tracer, closer, err := cfg.NewTracer()
	if err != nil {
		return nil, nil, err
	}

	return tracer, closer, nil
}
