/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package config holds the daemon's YAML schema. A hop is addressed by
// its dotted name: "filters.<name>" or "sinks.<sink>". Sources and
// filters declare where their events go with a forwards list of hop
// names; a sink section being present is what enables that sink.
package config

import (
	"io/ioutil"
	"strings"

	"github.com/pkg/errors"
	logger "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"
)

const (
	DefaultFlushIntervalSecs = 1
	DefaultDataDir           = "./data"
	DefaultStatsdPort        = 8125
	DefaultGraphitePort      = 2003
	DefaultNativePort        = 1972
	DefaultWavefrontPort     = 2878
	DefaultLibratoHost       = "https://metrics-api.librato.com/v1/metrics"
	DefaultQueueCapacity     = 1024
	DefaultMaxDiskBytes      = 1 << 30
	DefaultMaxMessageBytes   = 10 * (1 << 20)
)

type Config struct {
	FlushInterval uint64 `yaml:"flush-interval"` // seconds between flush beats
	DataDir       string `yaml:"data-dir"`       // disk queues and tailer positions live here
	Tags          TagMap `yaml:"tags"`           // applied to every point and line at ingest

	Sources SourcesConfig           `yaml:"sources"`
	Filters map[string]FilterConfig `yaml:"filters"`
	Sinks   SinksConfig             `yaml:"sinks"`
	Queues  QueuesConfig            `yaml:"queues"`
}

// TagMap is the global tag set. It unmarshals from either a YAML mapping
// or a "k=v,k2=v2" string.
type TagMap map[string]string

func (t *TagMap) UnmarshalYAML(unmarshal func(interface{}) error) error {
	m := map[string]string{}
	if err := unmarshal(&m); err == nil {
		*t = m
		return nil
	}
	var s string
	if err := unmarshal(&s); err != nil {
		return errors.New("tags must be a mapping or a k=v comma string")
	}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 || strings.TrimSpace(kv[0]) == "" {
			return errors.Errorf("bad tag %q, want k=v", pair)
		}
		m[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	*t = m
	return nil
}

type SourcesConfig struct {
	Statsd   *StatsdConfig   `yaml:"statsd"`
	Graphite *GraphiteConfig `yaml:"graphite"`
	Native   *NativeConfig   `yaml:"native"`
	Files    []FileConfig    `yaml:"files"`
	Internal *InternalConfig `yaml:"internal"`
}

type StatsdConfig struct {
	Host     string   `yaml:"host"` // bind address, default 0.0.0.0
	Port     uint16   `yaml:"port"`
	Forwards []string `yaml:"forwards"`
}

type GraphiteConfig struct {
	Host     string   `yaml:"host"`
	Port     uint16   `yaml:"port"`
	Forwards []string `yaml:"forwards"`
}

type NativeConfig struct {
	Host     string   `yaml:"host"`
	Port     uint16   `yaml:"port"`
	Forwards []string `yaml:"forwards"`
}

type FileConfig struct {
	Path     string   `yaml:"path"`
	Forwards []string `yaml:"forwards"`
}

type InternalConfig struct {
	Forwards []string `yaml:"forwards"`
}

type FilterConfig struct {
	Kind      string   `yaml:"kind"`      // json_encode or delay
	Tolerance uint64   `yaml:"tolerance"` // delay: flush beats to hold events
	Forwards  []string `yaml:"forwards"`
	Durable   bool     `yaml:"durable"` // back the hop with a disk queue
}

type SinksConfig struct {
	Console   *ConsoleConfig    `yaml:"console"`
	Wavefront *WavefrontConfig  `yaml:"wavefront"`
	Librato   *LibratoConfig    `yaml:"librato"`
	Kafka     *KafkaConfig      `yaml:"kafka"`
	Native    *NativeSinkConfig `yaml:"native"`
	Null      *NullConfig       `yaml:"null"`
}

type ConsoleConfig struct {
	BinWidth uint64 `yaml:"bin-width"` // seconds per aggregation bin
}

type WavefrontConfig struct {
	Host     string `yaml:"host"`
	Port     uint16 `yaml:"port"`
	BinWidth uint64 `yaml:"bin-width"`
	Durable  bool   `yaml:"durable"`
}

type LibratoConfig struct {
	Username string `yaml:"username"`
	Token    string `yaml:"token"`
	Host     string `yaml:"host"`
	Durable  bool   `yaml:"durable"`
}

type KafkaConfig struct {
	Brokers         []string `yaml:"brokers"`
	Topic           string   `yaml:"topic"`
	MaxMessageBytes int      `yaml:"max-message-bytes"` // in-flight byte budget before the valve closes
	FlushInterval   uint64   `yaml:"flush-interval"`    // beats between kafka flushes
	Durable         bool     `yaml:"durable"`
}

type NativeSinkConfig struct {
	Host    string `yaml:"host"`
	Port    uint16 `yaml:"port"`
	Durable bool   `yaml:"durable"`
}

type NullConfig struct{}

type QueuesConfig struct {
	InMemoryCapacity int   `yaml:"in-memory-capacity"` // events per in-memory hop buffer
	MaxDiskBytes     int64 `yaml:"max-disk-bytes"`     // unacked bytes per disk hop buffer
}

// LoadFile reads, defaults and validates a config file.
func LoadFile(configFileName string) (*Config, error) {
	f, err := ioutil.ReadFile(configFileName)
	if err != nil {
		return nil, errors.WithMessagef(err, "could not read config file %s", configFileName)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(f, cfg); err != nil {
		return nil, errors.WithMessagef(err, "could not unmarshal config file %s", configFileName)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Debug().Msgf("FlushInterval: %d", cfg.FlushInterval)
	logger.Debug().Msgf("DataDir: %s", cfg.DataDir)
	logger.Debug().Msgf("Tags: %v", cfg.Tags)
	if cfg.Sources.Statsd != nil {
		logger.Debug().Msgf("Sources.Statsd: %s:%d -> %v", cfg.Sources.Statsd.Host, cfg.Sources.Statsd.Port, cfg.Sources.Statsd.Forwards)
	}
	if cfg.Sources.Graphite != nil {
		logger.Debug().Msgf("Sources.Graphite: %s:%d -> %v", cfg.Sources.Graphite.Host, cfg.Sources.Graphite.Port, cfg.Sources.Graphite.Forwards)
	}
	if cfg.Sources.Native != nil {
		logger.Debug().Msgf("Sources.Native: %s:%d -> %v", cfg.Sources.Native.Host, cfg.Sources.Native.Port, cfg.Sources.Native.Forwards)
	}
	for _, fc := range cfg.Sources.Files {
		logger.Debug().Msgf("Sources.File: %s -> %v", fc.Path, fc.Forwards)
	}
	if cfg.Sources.Internal != nil {
		logger.Debug().Msgf("Sources.Internal: -> %v", cfg.Sources.Internal.Forwards)
	}
	for name, filt := range cfg.Filters {
		logger.Debug().Msgf("Filters.%s: kind=%s tolerance=%d -> %v", name, filt.Kind, filt.Tolerance, filt.Forwards)
	}
	for _, name := range cfg.HopNames() {
		logger.Debug().Msgf("Hop: %s", name)
	}
	logger.Debug().Msgf("Queues.InMemoryCapacity: %d", cfg.Queues.InMemoryCapacity)
	logger.Debug().Msgf("Queues.MaxDiskBytes: %d", cfg.Queues.MaxDiskBytes)

	return cfg, nil
}

// SetDefaults fills every zero-valued knob that has a documented default.
func (c *Config) SetDefaults() {
	if c.FlushInterval == 0 {
		c.FlushInterval = DefaultFlushIntervalSecs
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.Queues.InMemoryCapacity == 0 {
		c.Queues.InMemoryCapacity = DefaultQueueCapacity
	}
	if c.Queues.MaxDiskBytes == 0 {
		c.Queues.MaxDiskBytes = DefaultMaxDiskBytes
	}
	if s := c.Sources.Statsd; s != nil {
		if s.Host == "" {
			s.Host = "0.0.0.0"
		}
		if s.Port == 0 {
			s.Port = DefaultStatsdPort
		}
	}
	if g := c.Sources.Graphite; g != nil {
		if g.Host == "" {
			g.Host = "0.0.0.0"
		}
		if g.Port == 0 {
			g.Port = DefaultGraphitePort
		}
	}
	if n := c.Sources.Native; n != nil {
		if n.Host == "" {
			n.Host = "0.0.0.0"
		}
		if n.Port == 0 {
			n.Port = DefaultNativePort
		}
	}
	if con := c.Sinks.Console; con != nil && con.BinWidth == 0 {
		con.BinWidth = 1
	}
	if w := c.Sinks.Wavefront; w != nil {
		if w.Host == "" {
			w.Host = "127.0.0.1"
		}
		if w.Port == 0 {
			w.Port = DefaultWavefrontPort
		}
		if w.BinWidth == 0 {
			w.BinWidth = 1
		}
	}
	if l := c.Sinks.Librato; l != nil && l.Host == "" {
		l.Host = DefaultLibratoHost
	}
	if k := c.Sinks.Kafka; k != nil {
		if k.MaxMessageBytes == 0 {
			k.MaxMessageBytes = DefaultMaxMessageBytes
		}
		if k.FlushInterval == 0 {
			k.FlushInterval = 1
		}
	}
}

// Validate rejects configs that could not run: bad filter kinds, forwards
// naming hops that do not exist, and a kafka sink missing its topic or
// brokers. Route cycles are caught later when the route graph is built.
func (c *Config) Validate() error {
	hops := map[string]struct{}{}
	for _, name := range c.HopNames() {
		hops[name] = struct{}{}
	}

	check := func(owner string, forwards []string) error {
		for _, f := range forwards {
			if _, ok := hops[f]; !ok {
				return errors.Errorf("%s forwards to unknown hop %q", owner, f)
			}
		}
		return nil
	}

	if s := c.Sources.Statsd; s != nil {
		if err := check("sources.statsd", s.Forwards); err != nil {
			return err
		}
	}
	if g := c.Sources.Graphite; g != nil {
		if err := check("sources.graphite", g.Forwards); err != nil {
			return err
		}
	}
	if n := c.Sources.Native; n != nil {
		if err := check("sources.native", n.Forwards); err != nil {
			return err
		}
	}
	for _, fc := range c.Sources.Files {
		if fc.Path == "" {
			return errors.New("sources.files entry missing path")
		}
		if err := check("sources.files "+fc.Path, fc.Forwards); err != nil {
			return err
		}
	}
	if i := c.Sources.Internal; i != nil {
		if err := check("sources.internal", i.Forwards); err != nil {
			return err
		}
	}

	for name, filt := range c.Filters {
		switch filt.Kind {
		case "json_encode", "delay":
		default:
			return errors.Errorf("filters.%s has unknown kind %q", name, filt.Kind)
		}
		if err := check("filters."+name, filt.Forwards); err != nil {
			return err
		}
	}

	if k := c.Sinks.Kafka; k != nil {
		if k.Topic == "" {
			return errors.New("sinks.kafka requires a topic")
		}
		if len(k.Brokers) == 0 {
			return errors.New("sinks.kafka requires at least one broker")
		}
	}

	return nil
}

// HopNames lists every consumer hop the config declares, dotted-name
// form, filters first.
func (c *Config) HopNames() []string {
	var names []string
	for name := range c.Filters {
		names = append(names, "filters."+name)
	}
	if c.Sinks.Console != nil {
		names = append(names, "sinks.console")
	}
	if c.Sinks.Wavefront != nil {
		names = append(names, "sinks.wavefront")
	}
	if c.Sinks.Librato != nil {
		names = append(names, "sinks.librato")
	}
	if c.Sinks.Kafka != nil {
		names = append(names, "sinks.kafka")
	}
	if c.Sinks.Native != nil {
		names = append(names, "sinks.native")
	}
	if c.Sinks.Null != nil {
		names = append(names, "sinks.null")
	}
	return names
}

// Durable reports whether the named hop asked for a disk-backed queue.
func (c *Config) Durable(hop string) bool {
	switch hop {
	case "sinks.wavefront":
		return c.Sinks.Wavefront != nil && c.Sinks.Wavefront.Durable
	case "sinks.librato":
		return c.Sinks.Librato != nil && c.Sinks.Librato.Durable
	case "sinks.kafka":
		return c.Sinks.Kafka != nil && c.Sinks.Kafka.Durable
	case "sinks.native":
		return c.Sinks.Native != nil && c.Sinks.Native.Durable
	}
	for name, filt := range c.Filters {
		if "filters."+name == hop {
			return filt.Durable
		}
	}
	return false
}
