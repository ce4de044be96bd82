package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/worldcore/internal/core/observability/log"
	"github.com/zeusync/worldcore/internal/core/spatial"
)

// ErrInvalidConfig wraps every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the server configuration file.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Tick      TickConfig      `yaml:"tick"`
	Server    ServerConfig    `yaml:"server"`
	Keepalive KeepaliveConfig `yaml:"keepalive"`
	World     WorldConfig     `yaml:"world"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

type TickConfig struct {
	// Rate is the number of ticks per second.
	Rate int `yaml:"rate"`
}

// ServerConfig configures the listeners and per-client limits.
type ServerConfig struct {
	// HTTPAddr serves /ws, /metrics and /healthz.
	HTTPAddr string `yaml:"http_addr"`
	// QUICAddr is disabled when empty.
	QUICAddr string `yaml:"quic_addr"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	MaxClients     int           `yaml:"max_clients"`
	OutboundBuffer int           `yaml:"outbound_buffer"`
	InboundRate    float64       `yaml:"inbound_rate"`
	InboundBurst   int           `yaml:"inbound_burst"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	HandshakeWait  time.Duration `yaml:"handshake_timeout"`

	// CORSOrigins applies to the HTTP endpoints. Empty allows any origin.
	CORSOrigins []string `yaml:"cors_origins"`
}

type KeepaliveConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// WorldConfig configures spawning, views and terrain generation.
type WorldConfig struct {
	ViewDistance int32            `yaml:"view_distance"`
	MaxDistance  int32            `yaml:"max_view_distance"`
	Spawn        spatial.Position `yaml:"spawn"`
	GroundHeight uint16           `yaml:"ground_height"`

	// GeneratorWorkers is the number of goroutines generating chunks.
	GeneratorWorkers int `yaml:"generator_workers"`
	GeneratorQueue   int `yaml:"generator_queue"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log:  LogConfig{Level: "info", Encoding: "json"},
		Tick: TickConfig{Rate: 20},
		Server: ServerConfig{
			HTTPAddr:       ":8080",
			QUICAddr:       "",
			MaxClients:     1000,
			OutboundBuffer: 256,
			InboundRate:    200,
			InboundBurst:   50,
			WriteTimeout:   10 * time.Second,
			HandshakeWait:  5 * time.Second,
		},
		Keepalive: KeepaliveConfig{Interval: 5 * time.Second},
		World: WorldConfig{
			ViewDistance: 8,
			MaxDistance:  32,
			Spawn:        spatial.Position{X: 0, Y: 64, Z: 0},
			GroundHeight: 64,

			GeneratorWorkers: 4,
			GeneratorQueue:   4096,
		},
	}
}

// Load reads a YAML file on top of Default.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes YAML from r on top of Default and validates the result.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Encoding != string(log.EncodingJSON) && c.Log.Encoding != string(log.EncodingConsole) {
		errs = append(errs, fmt.Errorf("log.encoding must be json or console, got %q", c.Log.Encoding))
	}
	if c.Tick.Rate <= 0 || c.Tick.Rate > 1000 {
		errs = append(errs, fmt.Errorf("tick.rate must be in 1..1000, got %d", c.Tick.Rate))
	}
	if c.Server.HTTPAddr == "" {
		errs = append(errs, errors.New("server.http_addr is required"))
	}
	if c.Server.MaxClients <= 0 {
		errs = append(errs, fmt.Errorf("server.max_clients must be positive, got %d", c.Server.MaxClients))
	}
	if c.Server.OutboundBuffer <= 0 {
		errs = append(errs, fmt.Errorf("server.outbound_buffer must be positive, got %d", c.Server.OutboundBuffer))
	}
	if c.Server.InboundRate <= 0 || c.Server.InboundBurst <= 0 {
		errs = append(errs, errors.New("server.inbound_rate and server.inbound_burst must be positive"))
	}
	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		errs = append(errs, errors.New("server.cert_file and server.key_file must be set together"))
	}
	if c.Keepalive.Interval <= 0 {
		errs = append(errs, fmt.Errorf("keepalive.interval must be positive, got %s", c.Keepalive.Interval))
	}
	if c.World.ViewDistance < 0 || c.World.ViewDistance > c.World.MaxDistance {
		errs = append(errs, fmt.Errorf("world.view_distance must be in 0..%d, got %d", c.World.MaxDistance, c.World.ViewDistance))
	}
	if c.World.GeneratorWorkers <= 0 || c.World.GeneratorQueue <= 0 {
		errs = append(errs, errors.New("world.generator_workers and world.generator_queue must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// TickInterval is the wall time budget of one tick.
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.Tick.Rate)
}

// LoggerConfig converts the log section for the log package.
func (c *Config) LoggerConfig() log.Config {
	level, _ := log.ParseLevel(c.Log.Level)
	return log.Config{Level: level, Encoding: log.Encoding(c.Log.Encoding)}
}
