package qwery

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vitwit/qwery/clients"
	"github.com/vitwit/qwery/logger"
	"github.com/vitwit/qwery/metrics"
)

type options struct {
	logger           logger.Logger
	metrics          metrics.Recorder
	registerer       prometheus.Registerer
	timeout          time.Duration
	httpClient       *http.Client
	transport        clients.Transport
	batchConcurrency int
}

type Option func(*options)

// WithLogger overrides the logger built from ClientConfig.LogLevel.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics overrides the recorder selected by ClientConfig.EnableMetrics.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *options) {
		o.metrics = r
	}
}

// WithRegisterer sets where Prometheus collectors are registered when
// metrics are enabled. Defaults to prometheus.DefaultRegisterer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithTimeout overrides ClientConfig.Timeout.
func WithTimeout(t time.Duration) Option {
	return func(o *options) {
		o.timeout = t
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithTransport replaces the HTTP transport entirely, e.g. with a fake in
// tests. WithHTTPClient is ignored when it is set.
func WithTransport(t clients.Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithBatchConcurrency bounds the verify calls BatchVerify runs at once.
func WithBatchConcurrency(n int) Option {
	return func(o *options) {
		o.batchConcurrency = n
	}
}
