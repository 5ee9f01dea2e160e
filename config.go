// scanner configuration
//
// Copyright 2026 Franco Venturi.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"math"
	"time"

	"gopkg.in/ini.v1"
)

// frequency memory
const (
	DefaultMemoryCapacity       = 100
	MemoryTolerance       int64 = 5000
	DefaultMaxMisses            = 10
	DefaultMinHits              = 2
)

// fine tuning
const (
	FineTuneCoarseSpan      int64 = 10000
	FineTuneSpan            int64 = 5000
	FineTuneStep            int64 = 1000
	FineTuneMemoryTolerance int64 = 7000
	FineTuneStrongHits            = 4
	LevelSamples                  = 3
)

// activity wait
const (
	ResumeStep        int64 = 10000
	ResumeGranularity int64 = 10000
)

// wait times
var waitFineTune = 150 * time.Millisecond
var waitSweep = 10 * time.Millisecond
var waitRevisit = 85 * time.Millisecond
var waitAfterActive = 500 * time.Millisecond
var waitActivityPoll = 100 * time.Millisecond
var waitBookmark = 100 * time.Millisecond
var waitBookmarkActive = 4 * time.Second
var waitRetry = 200 * time.Millisecond

var defaultHoldTime = 2 * time.Second
var defaultTimeout = 2 * time.Second

type Backend int

const (
	BackendGqrx Backend = iota
	BackendSDRconnect
)

func (b Backend) String() string {
	switch b {
	case BackendGqrx:
		return "gqrx"
	case BackendSDRconnect:
		return "sdrconnect"
	default:
		return fmt.Sprintf("invalid backend: %d", b)
	}
}

func ParseBackend(bstring string) (Backend, error) {
	switch bstring {
	case "gqrx":
		return BackendGqrx, nil
	case "sdrconnect":
		return BackendSDRconnect, nil
	default:
		return BackendGqrx, fmt.Errorf("invalid backend: %s", bstring)
	}
}

type Config struct {
	Backend Backend
	Host    string
	Port    int

	FreqMin  int64
	FreqMax  int64
	FreqStep int64

	BookmarkFile string
	BookmarkScan bool

	HoldTime       time.Duration
	RevisitEvery   int
	MinHits        int
	MaxMisses      int
	MemoryCapacity int
	MemoryOverflow OverflowPolicy

	Retries int
	Timeout time.Duration

	MetricsListen string
	MQTTBroker    string
	MQTTTopic     string
}

// ConfigError is an invalid setting found before scanning starts.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func DefaultConfig() Config {
	return Config{
		Backend:        BackendGqrx,
		Host:           "127.0.0.1",
		Port:           7356,
		FreqMin:        430_000_000,
		FreqMax:        431_600_000,
		FreqStep:       10_000,
		BookmarkFile:   "~/.config/gqrx/bookmarks.csv",
		HoldTime:       defaultHoldTime,
		RevisitEvery:   40,
		MinHits:        DefaultMinHits,
		MaxMisses:      DefaultMaxMisses,
		MemoryCapacity: DefaultMemoryCapacity,
		MemoryOverflow: OverflowReset,
		Retries:        3,
		Timeout:        defaultTimeout,
		MQTTTopic:      "gqrx-scanner/found",
	}
}

func (c *Config) Validate() error {
	if c.FreqMin <= 0 {
		return &ConfigError{"range", fmt.Sprintf("band minimum %d must be positive", c.FreqMin)}
	}
	if c.FreqMin >= c.FreqMax {
		return &ConfigError{"range", fmt.Sprintf("band minimum %d must be below maximum %d", c.FreqMin, c.FreqMax)}
	}
	if c.FreqStep <= 0 {
		return &ConfigError{"step", fmt.Sprintf("%d must be positive", c.FreqStep)}
	}
	if c.FreqStep > c.FreqMax-c.FreqMin {
		return &ConfigError{"step", fmt.Sprintf("%d is wider than the band", c.FreqStep)}
	}
	if c.Port <= 0 || c.Port > 65535 {
		return &ConfigError{"port", fmt.Sprintf("%d out of range", c.Port)}
	}
	if c.HoldTime <= 0 {
		return &ConfigError{"hold time", "must be positive"}
	}
	if c.RevisitEvery < 1 {
		return &ConfigError{"revisit every", "must be at least 1"}
	}
	if c.MinHits < 1 {
		return &ConfigError{"min hits", "must be at least 1"}
	}
	if c.MaxMisses < 0 {
		return &ConfigError{"max misses", "must not be negative"}
	}
	if c.MemoryCapacity < 1 {
		return &ConfigError{"memory capacity", "must be at least 1"}
	}
	if c.Retries < 1 {
		return &ConfigError{"retries", "must be at least 1"}
	}
	if c.Timeout <= 0 {
		return &ConfigError{"timeout", "must be positive"}
	}
	return nil
}

// readConfigFile applies the settings of an ini file on top of config.
// Keys in a [scan] section override the default section.
func readConfigFile(configFile string, config *Config) (err error) {
	file, err := ini.Load(configFile)
	if err != nil {
		return err
	}
	file.BlockMode = false
	defaultSection, err := file.GetSection("")
	if err != nil {
		return err
	}
	section := defaultSection
	if file.HasSection("scan") {
		section, err = file.GetSection("scan")
		if err != nil {
			return err
		}
	}
	settings := configSettings{section: section, defaults: defaultSection}

	if value, ok := settings.str("backend"); ok {
		config.Backend, err = ParseBackend(value)
		if err != nil {
			return &ConfigError{"backend", err.Error()}
		}
	}
	if settings.has("range") {
		values, err := settings.key("range").StrictFloat64s(",")
		if err != nil {
			return &ConfigError{"range", err.Error()}
		}
		if len(values) != 3 {
			return &ConfigError{"range", "must have exactly three values (min,max,step)"}
		}
		config.FreqMin = int64(math.Round(values[0]))
		config.FreqMax = int64(math.Round(values[1]))
		config.FreqStep = int64(math.Round(values[2]))
	}
	if value, ok := settings.str("bookmarks"); ok {
		config.BookmarkFile = value
	}
	if settings.has("bookmark scan") {
		if config.BookmarkScan, err = settings.key("bookmark scan").Bool(); err != nil {
			return &ConfigError{"bookmark scan", err.Error()}
		}
	}
	if settings.has("hold time") {
		ms, err := settings.key("hold time").Uint()
		if err != nil {
			return &ConfigError{"hold time", err.Error()}
		}
		config.HoldTime = time.Duration(ms) * time.Millisecond
	}
	for _, setting := range []struct {
		name  string
		value *int
	}{
		{"revisit every", &config.RevisitEvery},
		{"min hits", &config.MinHits},
		{"max misses", &config.MaxMisses},
		{"memory capacity", &config.MemoryCapacity},
		{"retries", &config.Retries},
	} {
		if settings.has(setting.name) {
			if *setting.value, err = settings.key(setting.name).Int(); err != nil {
				return &ConfigError{setting.name, err.Error()}
			}
		}
	}
	if value, ok := settings.str("memory overflow"); ok {
		config.MemoryOverflow, err = ParseOverflowPolicy(value)
		if err != nil {
			return &ConfigError{"memory overflow", err.Error()}
		}
	}
	if settings.has("timeout") {
		ms, err := settings.key("timeout").Uint()
		if err != nil {
			return &ConfigError{"timeout", err.Error()}
		}
		config.Timeout = time.Duration(ms) * time.Millisecond
	}
	if value, ok := settings.str("metrics listen"); ok {
		config.MetricsListen = value
	}
	if value, ok := settings.str("mqtt broker"); ok {
		config.MQTTBroker = value
	}
	if value, ok := settings.str("mqtt topic"); ok {
		config.MQTTTopic = value
	}
	return nil
}

// configSettings looks a key up in a section, falling back to the
// default section.
type configSettings struct {
	section  *ini.Section
	defaults *ini.Section
}

func (s configSettings) has(setting string) bool {
	return s.section.HasKey(setting) || s.defaults.HasKey(setting)
}

func (s configSettings) key(setting string) *ini.Key {
	if s.section.HasKey(setting) {
		return s.section.Key(setting)
	}
	return s.defaults.Key(setting)
}

func (s configSettings) str(setting string) (value string, ok bool) {
	if s.has(setting) {
		value = s.key(setting).String()
		ok = true
	}
	return
}
