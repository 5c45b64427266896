package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/pithecene-io/syncbridge/bridge"
	"github.com/pithecene-io/syncbridge/log"
	"github.com/pithecene-io/syncbridge/pool"
)

// Host implementations.
const (
	HostHTTP     = "http"
	HostFastHTTP = "fasthttp"
)

// Config represents a syncbridge.yaml configuration file.
// All values are optional and act as defaults for syncbridge serve flags.
// CLI flags always override config values.
type Config struct {
	Listen string `yaml:"listen" json:"listen"`
	// Host selects the synchronous host: http or fasthttp.
	Host string `yaml:"host" json:"host"`
	// App names a built-in application. Ignored when AppCommand is set.
	App string `yaml:"app" json:"app"`
	// AppCommand runs the application out of process, one child per request.
	AppCommand string `yaml:"app_command,omitempty" json:"app_command,omitempty"`

	Workers       int      `yaml:"workers" json:"workers"`
	QueueDepth    int      `yaml:"queue_depth" json:"queue_depth"`
	MaxBodySize   ByteSize `yaml:"max_body_size" json:"max_body_size"`
	ReadChunkSize ByteSize `yaml:"read_chunk_size" json:"read_chunk_size"`
	StreamBuffer  int      `yaml:"stream_buffer" json:"stream_buffer"`

	// MetricsListen serves /metrics and /debug/stats. Empty disables it.
	MetricsListen   string    `yaml:"metrics_listen,omitempty" json:"metrics_listen,omitempty"`
	ShutdownTimeout Duration  `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	Log             LogConfig `yaml:"log" json:"log"`
}

// LogConfig holds logging defaults from the config file.
type LogConfig struct {
	Format string `yaml:"format" json:"format"`
	Level  string `yaml:"level" json:"level"`
}

// Default returns the configuration used when no file or flag says otherwise.
func Default() Config {
	return Config{
		Listen:          ":8000",
		Host:            HostHTTP,
		App:             "hello",
		Workers:         bridge.DefaultWorkers,
		QueueDepth:      pool.DefaultQueueDepth,
		MaxBodySize:     ByteSize(bridge.DefaultMaxBodySize),
		ReadChunkSize:   ByteSize(bridge.DefaultReadChunkSize),
		StreamBuffer:    bridge.DefaultStreamBuffer,
		ShutdownTimeout: Duration{10 * time.Second},
		Log:             LogConfig{Format: log.FormatJSON, Level: "info"},
	}
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.Host != HostHTTP && c.Host != HostFastHTTP {
		errs = append(errs, fmt.Errorf("host must be %q or %q, got %q", HostHTTP, HostFastHTTP, c.Host))
	}
	if c.App == "" && c.AppCommand == "" {
		errs = append(errs, errors.New("one of app or app_command is required"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", c.Workers))
	}
	if c.QueueDepth < 1 {
		errs = append(errs, fmt.Errorf("queue_depth must be >= 1, got %d", c.QueueDepth))
	}
	if c.MaxBodySize == 0 {
		errs = append(errs, errors.New("max_body_size must be > 0"))
	}
	if c.ReadChunkSize == 0 {
		errs = append(errs, errors.New("read_chunk_size must be > 0"))
	}
	if c.StreamBuffer < 2 {
		errs = append(errs, fmt.Errorf("stream_buffer must be >= 2, got %d", c.StreamBuffer))
	}
	if c.ShutdownTimeout.Duration < 0 {
		errs = append(errs, errors.New("shutdown_timeout must not be negative"))
	}
	if c.Log.Format != log.FormatJSON && c.Log.Format != log.FormatConsole {
		errs = append(errs, fmt.Errorf("log.format must be %q or %q, got %q", log.FormatJSON, log.FormatConsole, c.Log.Format))
	}
	return errors.Join(errs...)
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration as "10s".
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ByteSize is a byte count parsed from human-readable sizes ("10 MiB",
// "64KB", "1048576").
type ByteSize uint64

// ParseByteSize parses a human-readable size.
func ParseByteSize(s string) (ByteSize, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return ByteSize(n), nil
}

// UnmarshalYAML parses a size string.
func (b *ByteSize) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	n, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = n
	return nil
}

// MarshalText renders the size with IEC units ("10 MiB").
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Int64 returns the size as an int64, saturating at the maximum.
func (b ByteSize) Int64() int64 {
	if b > 1<<63-1 {
		return 1<<63 - 1
	}
	return int64(b)
}
