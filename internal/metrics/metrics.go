// Package metrics exposes archiver counters over an optional prometheus
// debug listener.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the archiver's counters. A nil *Metrics is valid and all
// increments on it are no-ops, so metrics stay strictly optional.
type Metrics struct {
	reg *prometheus.Registry

	seriesCompleted prometheus.Counter
	seriesAborted   prometheus.Counter
	framesWritten   prometheus.Counter
	bytesReceived   prometheus.Counter
}

// New builds a Metrics set on its own registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		seriesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bigpicture",
			Name:      "series_completed_total",
			Help:      "Image series committed to storage.",
		}),
		seriesAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bigpicture",
			Name:      "series_aborted_total",
			Help:      "Image series aborted by a protocol, decode, or emit error.",
		}),
		framesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bigpicture",
			Name:      "frames_written_total",
			Help:      "Single-image CBF files written.",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bigpicture",
			Name:      "bytes_received_total",
			Help:      "Message-part bytes received from the DCU.",
		}),
	}
	m.reg.MustRegister(m.seriesCompleted, m.seriesAborted, m.framesWritten, m.bytesReceived)
	return m
}

// SeriesCompleted counts one committed series.
func (m *Metrics) SeriesCompleted() {
	if m != nil {
		m.seriesCompleted.Inc()
	}
}

// SeriesAborted counts one aborted series.
func (m *Metrics) SeriesAborted() {
	if m != nil {
		m.seriesAborted.Inc()
	}
}

// FrameWritten counts one emitted image file.
func (m *Metrics) FrameWritten() {
	if m != nil {
		m.framesWritten.Inc()
	}
}

// BytesReceived counts the size of one received message part.
func (m *Metrics) BytesReceived(n int) {
	if m != nil {
		m.bytesReceived.Add(float64(n))
	}
}

// Handler returns the scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve runs a scrape listener on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
