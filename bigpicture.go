// Package bigpicture archives the stream feed of a Dectris X-ray area
// detector: every diffraction frame pushed by the detector control unit is
// committed to durable storage as a single-image miniCBF file.
//
// Example usage:
//
//	cfg, err := bigpicture.LoadConfig("/etc/bigpicture/config.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := bigpicture.Run(context.Background(), cfg); err != nil {
//	    log.Fatal(err)
//	}
package bigpicture

import (
	"context"

	zmqadapter "github.com/jfolker/bigpicture/internal/adapters/zmq"
	"github.com/jfolker/bigpicture/internal/archiver"
	"github.com/jfolker/bigpicture/internal/config"
	"github.com/jfolker/bigpicture/internal/configwatch"
	"github.com/jfolker/bigpicture/internal/metrics"
	"github.com/jfolker/bigpicture/internal/stream"
)

// Config is the deserialized bigpicture config file.
type Config = config.Config

// DefaultConfigPath is where the daemon looks for its config file.
const DefaultConfigPath = config.DefaultPath

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return config.Default()
}

// LoadConfig reads and validates a config file (JSON, or TOML by
// extension).
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

type options struct {
	watchPath string
}

// Option customizes Run.
type Option func(*options)

// WithConfigWatcher watches the config file at path and hot-applies the
// reloadable subset (currently the output directory).
func WithConfigWatcher(path string) Option {
	return func(o *options) { o.watchPath = path }
}

// Run connects to the DCU and archives series until ctx is cancelled.
// Cancellation is cooperative: an in-progress series is finished and
// committed before Run returns.
func Run(ctx context.Context, cfg Config, opts ...Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var m *metrics.Metrics
	if addr := cfg.Archiver.Metrics.Listen; addr != "" {
		m = metrics.New()
		go func() {
			if err := m.Serve(ctx, addr); err != nil {
				logger.Warn().Err(err).Str("addr", addr).Msg("metrics listener failed")
			}
		}()
	}

	arch := archiver.New(archiver.Options{
		UsingHeaderAppendix: cfg.Archiver.Source.UsingHeaderAppendix,
		UsingImageAppendix:  cfg.Archiver.Source.UsingImageAppendix,
		OutputDir:           cfg.Archiver.Dest.Directory,
		Metrics:             m,
	})

	source, err := zmqadapter.Dial(zmqadapter.Options{
		Endpoint:   cfg.Archiver.Source.ZmqPushSocket,
		IOThreads:  cfg.Archiver.Source.Workers,
		MaxMsgSize: cfg.ReadBufferBytes(),
	})
	if err != nil {
		return err
	}
	defer source.Close()
	logger.Info().Msgf("connected to Dectris DCU at %s", cfg.Archiver.Source.ZmqPushSocket)

	if o.watchPath != "" {
		watcher := configwatch.New(o.watchPath, func(next config.Config) {
			arch.SetOutputDir(next.Archiver.Dest.Directory)
		})
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Warn().Err(err).Msg("config watcher failed")
			}
		}()
	}

	streamer := stream.New(source, arch, stream.Options{
		PollInterval: cfg.PollDuration(),
		Metrics:      m,
	})
	go func() {
		<-ctx.Done()
		streamer.Shutdown()
	}()
	return streamer.Run()
}
