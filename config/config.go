// Package config loads daemon configuration from environment variables and
// an optional project file via viper -- the §6.3 surface. No CLI flags are
// bound here.
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/sgn-project/sgnd/errors"
)

// Config is the daemon's full runtime configuration.
type Config struct {
	Server  ServerConfig
	DB      DBConfig
	Trust   TrustConfig
	Fanout  FanoutConfig
}

// ServerConfig configures the HTTP/WS listener.
type ServerConfig struct {
	HTTPPort       int
	RequestTimeout int // seconds, default 10 per §5
}

// DBConfig configures the embedded SQLite store.
type DBConfig struct {
	Path    string
	BlobDir string
}

// TrustConfig configures the trust policy document.
type TrustConfig struct {
	Path string
}

// FanoutConfig holds websocket delivery settings. They are loaded but not
// read by the fanout package, which uses its own HeartbeatInterval and
// InFlightLimit constants.
type FanoutConfig struct {
	HeartbeatSeconds int
	InFlightLimit    int
}

// Defaults match §6.3 exactly: SGN_HTTP_PORT=8787, SGN_TRUST=./trust.json.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			HTTPPort:       8787,
			RequestTimeout: 10,
		},
		DB: DBConfig{
			Path:    "./sgnd.db",
			BlobDir: "./data/blobs",
		},
		Trust: TrustConfig{
			Path: "./trust.json",
		},
		Fanout: FanoutConfig{
			HeartbeatSeconds: 5,
			InFlightLimit:    256,
		},
	}
}

// Load builds a Config from defaults, an optional sgn.toml in the
// working directory, and SGN_-prefixed environment variables, in that
// order of increasing precedence.
func Load() (Config, error) {
	cfg := Defaults()

	v := viper.New()
	v.SetConfigName("sgn")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SGN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http_port", cfg.Server.HTTPPort)
	v.SetDefault("request_timeout", cfg.Server.RequestTimeout)
	v.SetDefault("db", cfg.DB.Path)
	v.SetDefault("blob_dir", cfg.DB.BlobDir)
	v.SetDefault("trust", cfg.Trust.Path)
	v.SetDefault("heartbeat_seconds", cfg.Fanout.HeartbeatSeconds)
	v.SetDefault("in_flight_limit", cfg.Fanout.InFlightLimit)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return cfg, errors.Wrap(err, "reading sgn.toml")
		}
	}

	cfg.Server.HTTPPort = v.GetInt("http_port")
	cfg.Server.RequestTimeout = v.GetInt("request_timeout")
	cfg.DB.Path = v.GetString("db")
	cfg.DB.BlobDir = v.GetString("blob_dir")
	cfg.Trust.Path = v.GetString("trust")
	cfg.Fanout.HeartbeatSeconds = v.GetInt("heartbeat_seconds")
	cfg.Fanout.InFlightLimit = v.GetInt("in_flight_limit")

	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return cfg, errors.Newf("invalid http port %d", cfg.Server.HTTPPort)
	}

	return cfg, nil
}
