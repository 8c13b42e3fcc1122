package report

import (
	"time"

	"github.com/cockroachdb/tokenbucket"
	"github.com/prometheus/client_golang/prometheus"
)

// ProgressEvent is emitted after every block, monotone in
// BytesIn/BytesOut.
type ProgressEvent struct {
	BytesIn       int64
	BytesOut      int64
	BlocksWritten int
}

// Reporter is the capability set a pipeline depends on: progress, stat,
// error. Implementations must not block the pipeline for long; Progress in
// particular is called once per block.
type Reporter interface {
	Progress(ev ProgressEvent)
	Stat(name string, value float64)
	Error(err error)
}

// Metrics is the in-process prometheus registry backing Stat calls. It is
// never served over HTTP; its counters/gauges exist so Stat() has somewhere
// durable to accumulate, and the final report reads them back out.
type Metrics struct {
	Registry          *prometheus.Registry
	BlocksWritten     prometheus.Counter
	BlocksFailedCheck prometheus.Counter
	BytesIn           prometheus.Gauge
	BytesOut          prometheus.Gauge
	BlockLatency      prometheus.Histogram
}

// NewMetrics constructs a fresh, unregistered-elsewhere Metrics set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		BlocksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blkar_blocks_written_total", Help: "Blocks written to the output container.",
		}),
		BlocksFailedCheck: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blkar_blocks_failed_check_total", Help: "Blocks that failed CRC or RS recovery.",
		}),
		BytesIn: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blkar_bytes_in", Help: "Plaintext bytes consumed so far.",
		}),
		BytesOut: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blkar_bytes_out", Help: "Container bytes produced so far.",
		}),
		BlockLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "blkar_block_latency_seconds", Help: "Per-block processing latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.BlocksWritten, m.BlocksFailedCheck, m.BytesIn, m.BytesOut, m.BlockLatency)
	return m
}

// BaseReporter implements Reporter, recording progress into a Metrics
// registry and rate-limiting how often it forwards progress to an optional
// sink function (e.g. a terminal progress line), using a token bucket so a
// tight per-block loop can't flood the terminal.
type BaseReporter struct {
	Metrics *Metrics
	Sink    func(ProgressEvent)   // optional; called at most at the rate limit
	ErrSink func(error)           // optional

	bucket    *tokenbucket.TokenBucket
	lastEvent ProgressEvent
	start     time.Time
	errs      []error
}

// NewBaseReporter builds a reporter that forwards at most ratePerSecond
// progress events per second to Sink.
func NewBaseReporter(ratePerSecond float64) *BaseReporter {
	r := &BaseReporter{
		Metrics: NewMetrics(),
		start:   time.Now(),
	}
	r.bucket = &tokenbucket.TokenBucket{}
	r.bucket.Init(tokenbucket.TokensPerSecond(ratePerSecond), 1)
	return r
}

// Progress implements Reporter.
func (r *BaseReporter) Progress(ev ProgressEvent) {
	r.lastEvent = ev
	r.Metrics.BlocksWritten.Inc()
	r.Metrics.BytesIn.Set(float64(ev.BytesIn))
	r.Metrics.BytesOut.Set(float64(ev.BytesOut))
	if r.Sink != nil {
		if ok, _ := r.bucket.TryToFulfill(1); ok {
			r.Sink(ev)
		}
	}
}

// Stat implements Reporter. Only the counters this package knows about are
// backed by real prometheus series; anything else is a no-op, matching the
// "extra fields allowed" looseness of the JSON contract.
func (r *BaseReporter) Stat(name string, value float64) {
	switch name {
	case "blocksFailedCheck":
		r.Metrics.BlocksFailedCheck.Add(value)
	case "blockLatencySeconds":
		r.Metrics.BlockLatency.Observe(value)
	}
}

// Error implements Reporter. Errors during a scan/check never abort; they
// accumulate here for the final report.
func (r *BaseReporter) Error(err error) {
	r.errs = append(r.errs, err)
	if r.ErrSink != nil {
		r.ErrSink(err)
	}
}

// Errors returns every error recorded via Error, in order.
func (r *BaseReporter) Errors() []error { return r.errs }

// Snapshot gathers the registry and flattens every counter, gauge, and
// histogram sample count into a name -> value map for the JSON report's
// "metrics" object.
func (r *BaseReporter) Snapshot() map[string]float64 {
	fams, err := r.Metrics.Registry.Gather()
	if err != nil {
		return nil
	}
	out := make(map[string]float64, len(fams))
	for _, mf := range fams {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				out[mf.GetName()] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[mf.GetName()] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[mf.GetName()+"_count"] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

// Elapsed returns time since the reporter was constructed.
func (r *BaseReporter) Elapsed() time.Duration { return time.Since(r.start) }

// LastEvent returns the most recently recorded progress event.
func (r *BaseReporter) LastEvent() ProgressEvent { return r.lastEvent }
