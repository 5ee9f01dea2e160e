// scanner configuration tests
//
// Copyright 2026 Franco Venturi.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	config := DefaultConfig()
	require.NoError(t, config.Validate())

	for _, test := range []struct {
		name   string
		change func(*Config)
		field  string
	}{
		{"min above max", func(c *Config) { c.FreqMin, c.FreqMax = 431_600_000, 430_000_000 }, "range"},
		{"min equals max", func(c *Config) { c.FreqMax = c.FreqMin }, "range"},
		{"negative min", func(c *Config) { c.FreqMin = -1 }, "range"},
		{"zero step", func(c *Config) { c.FreqStep = 0 }, "step"},
		{"step wider than band", func(c *Config) { c.FreqStep = 2_000_000 }, "step"},
		{"port", func(c *Config) { c.Port = 70000 }, "port"},
		{"hold time", func(c *Config) { c.HoldTime = 0 }, "hold time"},
		{"revisit every", func(c *Config) { c.RevisitEvery = 0 }, "revisit every"},
		{"min hits", func(c *Config) { c.MinHits = 0 }, "min hits"},
		{"max misses", func(c *Config) { c.MaxMisses = -1 }, "max misses"},
		{"memory capacity", func(c *Config) { c.MemoryCapacity = 0 }, "memory capacity"},
		{"retries", func(c *Config) { c.Retries = 0 }, "retries"},
		{"timeout", func(c *Config) { c.Timeout = 0 }, "timeout"},
	} {
		t.Run(test.name, func(t *testing.T) {
			config := DefaultConfig()
			test.change(&config)
			var configErr *ConfigError
			require.ErrorAs(t, config.Validate(), &configErr)
			assert.Equal(t, test.field, configErr.Field)
		})
	}
}

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gqrx-scanner.conf")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestReadConfigFile(t *testing.T) {
	path := writeConfigFile(t, `
range = 144000000,146000000,12500
hold time = 3000
mqtt broker = tcp://localhost:1883

[scan]
backend = sdrconnect
range = 430000000,431600000,25000
memory overflow = evict
min hits = 3
revisit every = 20
bookmark scan = true
`)
	config := DefaultConfig()
	require.NoError(t, readConfigFile(path, &config))

	assert.Equal(t, BackendSDRconnect, config.Backend)
	assert.Equal(t, int64(430_000_000), config.FreqMin)
	assert.Equal(t, int64(431_600_000), config.FreqMax)
	assert.Equal(t, int64(25_000), config.FreqStep)
	assert.Equal(t, 3*time.Second, config.HoldTime)
	assert.Equal(t, OverflowEvict, config.MemoryOverflow)
	assert.Equal(t, 3, config.MinHits)
	assert.Equal(t, 20, config.RevisitEvery)
	assert.True(t, config.BookmarkScan)
	assert.Equal(t, "tcp://localhost:1883", config.MQTTBroker)
	// untouched settings keep their defaults
	assert.Equal(t, DefaultMaxMisses, config.MaxMisses)
	assert.Equal(t, "gqrx-scanner/found", config.MQTTTopic)
	assert.NoError(t, config.Validate())
}

func TestReadConfigFile_Errors(t *testing.T) {
	for _, test := range []struct {
		contents string
		field    string
	}{
		{"range = 430000000,431600000\n", "range"},
		{"range = 430e6,abc,10000\n", "range"},
		{"memory overflow = sometimes\n", "memory overflow"},
		{"backend = rtl_tcp\n", "backend"},
		{"[scan]\nmin hits = many\n", "min hits"},
		{"hold time = -5\n", "hold time"},
	} {
		config := DefaultConfig()
		err := readConfigFile(writeConfigFile(t, test.contents), &config)
		var configErr *ConfigError
		if assert.ErrorAs(t, err, &configErr, test.contents) {
			assert.Equal(t, test.field, configErr.Field)
		}
	}

	config := DefaultConfig()
	assert.Error(t, readConfigFile(filepath.Join(t.TempDir(), "missing.conf"), &config))
}

func TestReadConfigFile_ScientificRange(t *testing.T) {
	config := DefaultConfig()
	require.NoError(t, readConfigFile(writeConfigFile(t, "range = 430e6,431.6e6,10e3\n"), &config))
	assert.Equal(t, int64(430_000_000), config.FreqMin)
	assert.Equal(t, int64(431_600_000), config.FreqMax)
	assert.Equal(t, int64(10_000), config.FreqStep)
}

func TestParseBackend(t *testing.T) {
	backend, err := ParseBackend("sdrconnect")
	require.NoError(t, err)
	assert.Equal(t, BackendSDRconnect, backend)
	assert.Equal(t, "gqrx", BackendGqrx.String())

	_, err = ParseBackend("hamlib")
	assert.Error(t, err)
}
