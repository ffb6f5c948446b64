// Package stream drives a StreamParser from a pull-style message socket:
// long idle polling between series, tight receiving within one.
package stream

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/jfolker/bigpicture/internal/domain"
	"github.com/jfolker/bigpicture/internal/metrics"
	"github.com/jfolker/bigpicture/internal/ports"
)

// Streamer owns the receive loop for one endpoint. The parser state is
// driven serially by the goroutine that calls Run; only Shutdown may be
// called from elsewhere.
type Streamer struct {
	source       ports.MessageSource
	parser       ports.StreamParser
	pollInterval time.Duration
	metrics      *metrics.Metrics
	shutdown     atomic.Bool
}

// Options configure a Streamer.
type Options struct {
	// PollInterval bounds the idle wait between series; each timeout logs
	// a heartbeat. Default one hour.
	PollInterval time.Duration
	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// New returns a Streamer feeding parser from source.
func New(source ports.MessageSource, parser ports.StreamParser, opts Options) *Streamer {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = time.Hour
	}
	return &Streamer{
		source:       source,
		parser:       parser,
		pollInterval: interval,
		metrics:      opts.Metrics,
	}
}

// Run receives until Shutdown is requested. An in-progress series always
// runs to completion before Run returns.
func (s *Streamer) Run() error {
	for !s.shutdown.Load() {
		// Wait for the start of a new series by polling. The timeout only
		// governs how often the idle heartbeat is logged.
		ready, err := s.source.Poll(s.pollInterval)
		if err != nil {
			return err
		}
		if !ready {
			logger.Info().Msgf("no activity in the past %d minutes", int(s.pollInterval.Minutes()))
			continue
		}

		// Receive each successive part of the series without an
		// intervening poll. The DCU may be bursting at line rate; a
		// system-level poll per message is one syscall too many.
		if err := s.receiveSeries(); err != nil {
			return err
		}
	}
	return nil
}

// receiveSeries runs the tight receive phase until the parser signals a
// series end. A parse failure aborts the series: the parser is reset and
// the loop rearms for the next global header.
func (s *Streamer) receiveSeries() error {
	for {
		part, err := s.source.Recv()
		if err != nil {
			return err
		}
		s.metrics.BytesReceived(len(part))

		seriesEnd, perr := s.parser.Parse(part)
		if perr != nil {
			if errors.Is(perr, domain.ErrShutdown) {
				s.Shutdown()
				return nil
			}
			logger.Error().Err(perr).Msg("series aborted")
			s.metrics.SeriesAborted()
			s.parser.Reset()
			return nil
		}
		if seriesEnd {
			logger.Info().Msg("image series successfully committed to storage")
			return nil
		}
	}
}

// Shutdown requests a cooperative stop. The loop finishes the current
// series before exiting. Idempotent, safe from any goroutine and from
// signal handlers.
func (s *Streamer) Shutdown() {
	s.shutdown.Store(true)
}
