// Command dvfrefresh runs one baseline refresh against the open data
// portal and prints the resulting per-city prices. Useful for checking
// data availability without starting the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"boxinvest/internal/config"
	"boxinvest/internal/dvf"
	"boxinvest/internal/infrastructure"
	"boxinvest/internal/market"
)

func main() {
	timeout := flag.Duration("timeout", 15*time.Minute, "overall refresh timeout")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger, err := infrastructure.InitializeLogger(config.LoggingConfig{
		Level:  *level,
		Output: "console",
	})
	if err != nil {
		slog.Error("failed to initialize logger", slog.String("error", err.Error()))
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cache := market.NewCache()
	refresher := dvf.NewRefresher(cfg.DVF, cache, logger)
	refresher.RefreshAllCities(ctx)

	snapshot := cache.Snapshot()
	cities := make([]string, 0, len(snapshot))
	for city := range snapshot {
		cities = append(cities, city)
	}
	sort.Strings(cities)

	fmt.Printf("derived baselines for %d/%d cities:\n", len(snapshot), len(dvf.TrackedCities))
	for _, city := range cities {
		fmt.Printf("  %-12s %8.2f €/m²\n", city, snapshot[city])
	}
}
