// Package config loads the bigpicture config file. The deployment format
// is JSON; TOML is accepted by extension for hand-written configs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pelletier/go-toml/v2"

	"github.com/jfolker/bigpicture/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultPath is where the daemon looks for its config when -c is not given.
const DefaultPath = "/etc/bigpicture/config.json"

// Source configures the inbound stream connection.
type Source struct {
	// ZmqPushSocket is the DCU endpoint URL.
	ZmqPushSocket string `json:"zmq_push_socket" toml:"zmq_push_socket"`
	// ReadBufferMB bounds a single message part, in MiB.
	ReadBufferMB int `json:"read_buffer_mb" toml:"read_buffer_mb"`
	// PollInterval is the idle heartbeat interval in seconds.
	PollInterval int `json:"poll_interval" toml:"poll_interval"`
	// Workers is the transport I/O thread count.
	Workers int `json:"workers" toml:"workers"`
	// UsingHeaderAppendix expects an appendix part per global header.
	UsingHeaderAppendix bool `json:"using_header_appendix" toml:"using_header_appendix"`
	// UsingImageAppendix expects an appendix part per frame.
	UsingImageAppendix bool `json:"using_image_appendix" toml:"using_image_appendix"`
}

// Dest configures where image files land.
type Dest struct {
	// Directory receives the <series>-<frame>.cbf files.
	Directory string `json:"directory" toml:"directory"`
}

// Metrics configures the optional prometheus listener.
type Metrics struct {
	// Listen is the scrape address, e.g. "localhost:9100". Empty disables.
	Listen string `json:"listen" toml:"listen"`
}

// Archiver groups the archiver subsystem options.
type Archiver struct {
	Source  Source  `json:"source" toml:"source"`
	Dest    Dest    `json:"dest" toml:"dest"`
	Metrics Metrics `json:"metrics" toml:"metrics"`
}

// Config is the root of the config file hierarchy.
type Config struct {
	Archiver Archiver `json:"archiver" toml:"archiver"`
}

// Default returns a Config with the defaults applied.
func Default() Config {
	return Config{
		Archiver: Archiver{
			Source: Source{
				ZmqPushSocket: "tcp://localhost:9999",
				ReadBufferMB:  128,
				PollInterval:  3600,
				Workers:       1,
			},
			Dest: Dest{Directory: "."},
		},
	}
}

// Load reads and validates the config file at path. Unset keys keep their
// defaults; a missing or malformed file is a fatal initialization error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, domain.Configf("config file %s does not exist", path)
		}
		return cfg, domain.Configf("config file %s: %v", path, err)
	}

	switch filepath.Ext(path) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, domain.Configf("config file %s: %v", path, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, domain.Configf("config file %s: %v", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration and fills derived defaults.
func (c *Config) Validate() error {
	src := &c.Archiver.Source
	if src.ZmqPushSocket == "" {
		return domain.Configf("zmq_push_socket is required")
	}
	if src.ReadBufferMB <= 0 {
		return domain.Configf("read_buffer_mb must be positive, got %d", src.ReadBufferMB)
	}
	if src.PollInterval <= 0 {
		return domain.Configf("poll_interval must be positive, got %d", src.PollInterval)
	}
	if src.Workers <= 0 {
		return domain.Configf("workers must be positive, got %d", src.Workers)
	}
	if c.Archiver.Dest.Directory == "" {
		c.Archiver.Dest.Directory = "."
	}
	return nil
}

// PollDuration returns the idle poll interval as a Duration.
func (c *Config) PollDuration() time.Duration {
	return time.Duration(c.Archiver.Source.PollInterval) * time.Second
}

// ReadBufferBytes returns the single-part size bound in bytes.
func (c *Config) ReadBufferBytes() int64 {
	return int64(c.Archiver.Source.ReadBufferMB) << 20
}

// Describe renders the streaming parameters for the startup log line.
func (c *Config) Describe() string {
	return fmt.Sprintf("url=%q rcv_buf_size=%d poll_interval=%s",
		c.Archiver.Source.ZmqPushSocket, c.ReadBufferBytes(), c.PollDuration())
}
