// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kiln

import (
	"log/slog"
	"time"

	"github.com/z5labs/kiln/config"
	"github.com/z5labs/kiln/pkg/otelconfig"
	rthttp "github.com/z5labs/kiln/runtime/http"
)

// HTTPConfig holds the tunables of the HTTP runtime. Zero values keep the
// runtime defaults.
type HTTPConfig struct {
	ReadTimeout       time.Duration `config:"readTimeout"`
	ReadHeaderTimeout time.Duration `config:"readHeaderTimeout"`
	WriteTimeout      time.Duration `config:"writeTimeout"`
	IdleTimeout       time.Duration `config:"idleTimeout"`
	MaxHeaderBytes    int           `config:"maxHeaderBytes"`
	ChunkSize         int           `config:"chunkSize"`
}

// LoggingConfig configures the process wide logger.
type LoggingConfig struct {
	Level slog.Level `config:"level"`

	// Either "json" or "text".
	Format string `config:"format"`

	// Keys of attributes whose values are never logged.
	Mask []string `config:"mask"`
}

// Config is the file based configuration of a [Server] and the process
// hosting it.
type Config struct {
	ContentSecurityPolicy string `config:"contentSecurityPolicy"`

	// Nil keeps traces exposed.
	ExposeTraces *bool `config:"exposeTraces"`

	HTTP    HTTPConfig        `config:"http"`
	Logging LoggingConfig     `config:"logging"`
	OTel    otelconfig.Config `config:"otel"`
}

// LoadConfig reads every source in order, later sources overriding
// earlier ones, and unmarshals the result.
func LoadConfig(srcs ...config.Source) (Config, error) {
	var cfg Config

	m, err := config.Read(srcs...)
	if err != nil {
		return cfg, ConfigReadError{Cause: err}
	}

	err = m.Unmarshal(&cfg)
	if err != nil {
		return cfg, ConfigUnmarshalError{Cause: err}
	}
	return cfg, nil
}

// Options converts the server related parts of the config into [Option]s.
func (cfg Config) Options() []Option {
	var opts []Option
	if cfg.ContentSecurityPolicy != "" {
		opts = append(opts, ContentSecurityPolicy(cfg.ContentSecurityPolicy))
	}
	if cfg.ExposeTraces != nil {
		opts = append(opts, ExposeTraces(*cfg.ExposeTraces))
	}

	var httpOpts []rthttp.Option
	if cfg.HTTP.ReadTimeout > 0 {
		httpOpts = append(httpOpts, rthttp.ReadTimeout(cfg.HTTP.ReadTimeout))
	}
	if cfg.HTTP.ReadHeaderTimeout > 0 {
		httpOpts = append(httpOpts, rthttp.ReadHeaderTimeout(cfg.HTTP.ReadHeaderTimeout))
	}
	if cfg.HTTP.WriteTimeout > 0 {
		httpOpts = append(httpOpts, rthttp.WriteTimeout(cfg.HTTP.WriteTimeout))
	}
	if cfg.HTTP.IdleTimeout > 0 {
		httpOpts = append(httpOpts, rthttp.IdleTimeout(cfg.HTTP.IdleTimeout))
	}
	if cfg.HTTP.MaxHeaderBytes > 0 {
		httpOpts = append(httpOpts, rthttp.MaxHeaderBytes(cfg.HTTP.MaxHeaderBytes))
	}
	if cfg.HTTP.ChunkSize > 0 {
		httpOpts = append(httpOpts, rthttp.ChunkSize(cfg.HTTP.ChunkSize))
	}
	if len(httpOpts) > 0 {
		opts = append(opts, HTTPOptions(httpOpts...))
	}
	return opts
}
