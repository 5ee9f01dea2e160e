// scanner using the gqrx (or SDRconnect) remote control
//
// Copyright 2026 Franco Venturi.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
)

var debug bool

func main() {
	config := DefaultConfig()

	var configFile string
	pflag.StringVar(&configFile, "conf", "", "scanner configuration file")
	backend := pflag.String("backend", config.Backend.String(), "receiver remote control (gqrx or sdrconnect)")
	freqMin := pflag.Int64("min", config.FreqMin, "band minimum (Hz)")
	freqMax := pflag.Int64("max", config.FreqMax, "band maximum (Hz)")
	freqStep := pflag.Int64("step", config.FreqStep, "sweep step (Hz)")
	bookmarkFile := pflag.String("bookmarks", config.BookmarkFile, "gqrx bookmarks file")
	bookmarkScan := pflag.Bool("bookmark-scan", false, "scan the bookmarks inside the band instead of sweeping")
	metricsListen := pflag.String("metrics", "", "serve Prometheus metrics on this address (e.g. :9100)")
	pflag.BoolVar(&debug, "debug", false, "enable debug")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <host> <port>\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if pflag.NArg() != 2 {
		pflag.Usage()
		os.Exit(2)
	}

	if configFile != "" {
		if err := readConfigFile(configFile, &config); err != nil {
			log.Fatal("error reading configuration file: ", err)
		}
	}

	// command line flags win over the configuration file
	flags := pflag.CommandLine
	if flags.Changed("backend") {
		b, err := ParseBackend(*backend)
		if err != nil {
			log.Fatal(err)
		}
		config.Backend = b
	}
	if flags.Changed("min") {
		config.FreqMin = *freqMin
	}
	if flags.Changed("max") {
		config.FreqMax = *freqMax
	}
	if flags.Changed("step") {
		config.FreqStep = *freqStep
	}
	if flags.Changed("bookmarks") {
		config.BookmarkFile = *bookmarkFile
	}
	if flags.Changed("bookmark-scan") {
		config.BookmarkScan = *bookmarkScan
	}
	if flags.Changed("metrics") {
		config.MetricsListen = *metricsListen
	}

	config.Host = pflag.Arg(0)
	port, err := strconv.Atoi(pflag.Arg(1))
	if err != nil {
		log.Fatal(&ConfigError{"port", err.Error()})
	}
	config.Port = port

	if err := config.Validate(); err != nil {
		log.Fatal(err)
	}

	bookmarks, err := readBookmarkFile(config.BookmarkFile)
	if err != nil {
		if config.BookmarkScan || !errors.Is(err, os.ErrNotExist) {
			log.Fatal("error reading bookmark file: ", err)
		}
		log.Println("no bookmarks:", err)
	}
	if debug {
		for _, bookmark := range bookmarks {
			log.Printf("bookmark f=%s l=%s tags=%v", formatHz(bookmark.Frequency), bookmark.Description, bookmark.Tags)
		}
	}

	session, err := connect(config)
	if err != nil {
		log.Fatal(err)
	}
	defer session.Close()

	metrics := NewScanMetrics(prometheus.DefaultRegisterer)
	if config.MetricsListen != "" {
		serveMetrics(config.MetricsListen)
	}

	var notifier Notifier = nopNotifier{}
	if config.MQTTBroker != "" {
		publisher, err := newMQTTNotifier(config.MQTTBroker, config.MQTTTopic)
		if err != nil {
			log.Fatal(err)
		}
		defer publisher.Close()
		notifier = publisher
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := NewScanEngine(config, session, newKeySource(), bookmarks, metrics, notifier)

	// main scan loop
	if config.BookmarkScan {
		log.Printf("scanning %d bookmarks between %s and %s", len(bookmarks), formatHz(config.FreqMin), formatHz(config.FreqMax))
		err = engine.ScanBookmarks(ctx)
	} else {
		log.Printf("scanning %s - %s step %s", formatHz(config.FreqMin), formatHz(config.FreqMax), formatHz(config.FreqStep))
		err = engine.Run(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Println("scan error:", err)
	}
}

// connect opens the remote control session selected by the configuration
// and wraps it with retries.
func connect(config Config) (Session, error) {
	var session Session
	var err error
	switch config.Backend {
	case BackendSDRconnect:
		session, err = dialSdrconnect(config.Host, config.Port, config.Timeout)
	default:
		session, err = dialGqrx(config.Host, config.Port, config.Timeout)
	}
	if err != nil {
		return nil, err
	}
	return newRetrySession(session, config.Retries, waitRetry), nil
}

// other useful functions
func formatHz(hz int64) string {
	return humanize.Comma(hz) + " Hz"
}
