// Copyright 2026 The Geosift Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package main implements the geographic search server and CLI application.

Geosift provides instant search-as-you-type over a small taxonomy of
geographic entities (regions, subregions, localities, settlements and
territories) loaded from GeoJSON datasets. It can operate as a MessagePack
IPC server for integration with map frontends, or as a CLI application for
testing and debugging.

Datasets are fetched once and kept in a TTL-backed persistent cache; a
failed refresh falls back to the stale copy so the search stays usable
offline. Selections are persisted as recent searches and surface ahead of
scored results on an empty query.

# Usage

Start the server with default settings:

	geosift

Use an in-memory store and enable debug logging:

	geosift -mem -d

Run in CLI mode for interactive testing:

	geosift -c -limit 10

# Configuration

Runtime configuration is managed through a TOML file that supports search,
cache, storage and processor parameters plus the dataset list:

	[search]
	debounce_ms = 50
	max_results = 200
	score_threshold = 0.3
	fuzzy = true
	max_recent = 10

	[cache]
	ttl_minutes = 10080

	[[dataset]]
	type = "locality"
	name = "localities"
	url = "https://example.org/data/localities.geojson"

The config file is automatically created with defaults if it doesn't exist.

# IPC Protocol

The server communicates via MessagePack over stdin/stdout. A search request:

	{"id": "req1", "cmd": "search", "q": "ramal", "l": 20}

returns ranked rows with scores and match kinds:

	{"id": "req1", "rows": [{"n": "Ramallah", "t": "locality", "s": 0.9, "m": "prefix"}], "c": 1, "tt": 120}

See the server package documentation for the full message set.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/geosift/geosift/internal/cli"
	"github.com/geosift/geosift/internal/logger"
	"github.com/geosift/geosift/pkg/config"
	"github.com/geosift/geosift/pkg/engine"
	"github.com/geosift/geosift/pkg/server"
)

const (
	Version = "0.3.0"
	AppName = "geosift"
)

// sigHandler exits cleanly on interrupt.
func sigHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		os.Exit(0)
	}()
}

// main wires config, engine and the chosen frontend; the logic lives in the
// packages it calls.
func main() {
	sigHandler()

	showVersion := flag.Bool("version", false, "Show current version")
	configPath := flag.String("config", "", "Path to config.toml")
	storageDir := flag.String("data", "", "Directory for the persistent store (overrides config)")
	inMemory := flag.Bool("mem", false, "Keep the store in memory only")
	debugMode := flag.Bool("d", false, "Toggle debug mode")
	cliMode := flag.Bool("c", false, "Run CLI -- useful for testing and debugging")
	limit := flag.Int("limit", 15, "Number of results to print in CLI mode")
	skipLoad := flag.Bool("no-load", false, "Skip loading configured datasets on start")

	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", AppName, Version)
		os.Exit(0)
	}

	if *debugMode {
		log.SetLevel(log.DebugLevel)
		log.SetReportTimestamp(true)
	} else {
		log.SetLevel(log.WarnLevel)
	}

	cfg, activePath, err := config.LoadConfigWithPriority(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Debugf("Active config: %s", config.GetActiveConfigPath(activePath))

	if *storageDir != "" {
		cfg.Storage.Dir = *storageDir
	}
	if *inMemory {
		cfg.Storage.InMemory = true
	}

	eng := engine.Open(cfg, logger.New("engine"))
	defer eng.Close()

	if !*skipLoad && len(cfg.Datasets) > 0 {
		if err := eng.LoadDatasets(context.Background()); err != nil {
			log.Errorf("Dataset configuration error: %v", err)
			os.Exit(1)
		}
		log.Debugf("Loaded datasets: %v", eng.Stats())
	}

	if *cliMode {
		handler := cli.NewInputHandler(eng, *limit, 120)
		if err := handler.Start(); err != nil {
			log.Debugf("CLI loop ended: %v", err)
		}
		return
	}

	srv := server.NewServer(eng, logger.New("server"))
	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
