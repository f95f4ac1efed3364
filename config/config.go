// Package config defines the daemon's YAML configuration. Parsing is
// strict: unknown keys are errors, and omitted optional sections come
// from defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/zrepl/yaml-config"
)

type Config struct {
	Listen            string      `yaml:"listen"`
	Limits            *Limits     `yaml:"limits,optional,fromdefaults"`
	Compression       []string    `yaml:"compression,optional"`
	PreparedCacheSize int         `yaml:"prepared_cache_size,optional,default=1024"`
	Logging           *Logging    `yaml:"logging,optional,fromdefaults"`
	Monitoring        *Monitoring `yaml:"monitoring,optional"`
}

// Limits bounds per-connection and per-process protocol resources.
type Limits struct {
	MaxFrameBytes       uint32        `yaml:"max_frame_bytes,optional,default=16777216"`
	MaxInflightPerConn  int           `yaml:"max_inflight_per_conn,optional,default=1024"`
	MaxSuspendedPerConn int64         `yaml:"max_suspended_per_conn,optional,default=128"`
	MaxWorkers          int64         `yaml:"max_workers,optional,default=4096"`
	DefaultDeadline     time.Duration `yaml:"default_deadline,optional,positive,default=12s"`
}

type Logging struct {
	Level  string `yaml:"level,optional,default=info"`
	Format string `yaml:"format,optional,default=auto"`
}

var _ yaml.Defaulter = &Logging{}

func (l *Logging) SetDefault() {
	*l = Logging{Level: "info", Format: "auto"}
}

type Monitoring struct {
	Listen string `yaml:"listen"`
}

var _ yaml.Defaulter = &Limits{}

func (l *Limits) SetDefault() {
	def := `{}`
	if err := yaml.Unmarshal([]byte(def), l); err != nil {
		panic(err)
	}
}

var ConfigFileDefaultLocations = []string{
	"/etc/cqld/cqld.yml",
	"/usr/local/etc/cqld/cqld.yml",
}

func ParseConfig(path string) (*Config, error) {
	if path == "" {
		for _, l := range ConfigFileDefaultLocations {
			stat, statErr := os.Stat(l)
			if statErr != nil {
				continue
			}
			if !stat.Mode().IsRegular() {
				return nil, errors.Errorf("file at default location is not a regular file: %s", l)
			}
			path = l
			break
		}
	}
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfigBytes(bytes)
}

func ParseConfigBytes(bytes []byte) (*Config, error) {
	var c *Config
	if err := yaml.UnmarshalStrict(bytes, &c); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("config is empty or only consists of comments")
	}
	if c.Listen == "" {
		return nil, fmt.Errorf("listen address must be specified")
	}
	return c, nil
}
