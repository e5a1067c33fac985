package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"insight-stream/src/aggregation"
	"insight-stream/src/analytics"
	"insight-stream/src/config"
	"insight-stream/src/dedup"
	"insight-stream/src/interfaces"
	"insight-stream/src/logger"
	"insight-stream/src/models"
	"insight-stream/src/network"
	"insight-stream/src/scheduler"
	"insight-stream/src/server"
	"insight-stream/src/storage"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(conf.LogLevel, conf.Name)

	// 2. Setup Storage
	var store interfaces.IAggregateStore

	switch conf.Storage.DBType {
	case "postgres":
		store, err = storage.NewPostgresStore(conf.MConfig, appLogger)
	default:
		// Default to SQLite
		store, err = storage.NewSQLiteStore(conf.MConfig, appLogger)
	}

	if err != nil {
		appLogger.Critical("Failed to create store: %v", err)
	}
	if err := store.Initialize(); err != nil {
		appLogger.Critical("Failed to init store: %v", err)
	}

	// 3. Aggregation Engine + Dedup Cache
	engine := aggregation.NewEngine(conf.MConfig, store, appLogger)

	snapCache := dedup.NewCache[*models.MSnapshot](
		time.Duration(conf.Dedup.SuccessTTLSeconds)*time.Second,
		time.Duration(conf.Dedup.FailureTTLSeconds)*time.Second,
		time.Duration(conf.Dedup.SweepIntervalSeconds)*time.Second,
		logger.NewLogger(conf.LogLevel, "DedupCache"),
	)

	// 4. Server (REST + WebSocket hub)
	srv := server.NewDashboardServer(conf.MConfig, appLogger)

	// 5. Scheduler
	sched := scheduler.NewScheduler(conf.MConfig, engine, snapCache, srv, conf.TrackedKinds(), appLogger)

	// Wired here rather than at construction to keep server and scheduler
	// decoupled.
	srv.OnDemand = sched.TriggerOnDemand
	srv.MetricsFunc = func() models.MProcessingMetrics {
		stats := snapCache.Stats()
		return models.MProcessingMetrics{
			ComputeTimeSeconds: sched.LastComputeSeconds(),
			KindsProcessed:     len(conf.TrackedKinds()),
			Subscribers:        srv.SubscriberCount(),
			CacheHits:          stats.Hits,
			CacheMisses:        stats.Misses,
		}
	}

	// 6. Optional analytics forecasting
	var forecastCache *dedup.Cache[*models.MForecast]
	if conf.Analytics.Enabled {
		netManager := network.NewAsyncNetworkManager(conf.MConfig, appLogger)
		forecastCache = dedup.NewCache[*models.MForecast](
			time.Duration(conf.Dedup.SuccessTTLSeconds)*time.Second,
			time.Duration(conf.Dedup.FailureTTLSeconds)*time.Second,
			time.Duration(conf.Dedup.SweepIntervalSeconds)*time.Second,
			logger.NewLogger(conf.LogLevel, "ForecastCache"),
		)
		forecaster := analytics.NewForecastClient(conf.MConfig, netManager, forecastCache, appLogger)
		srv.ForecastFunc = forecaster.Forecast
	}

	// 7. Start Server
	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
		}
	}()

	// 8. Start Scheduler
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wrapWg := &sync.WaitGroup{}
	if err := sched.Start(ctx, wrapWg); err != nil {
		appLogger.Critical("Failed to start scheduler: %v", err)
	}

	// 9. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")
	sched.Stop()
	cancel()
	wrapWg.Wait()

	snapCache.Stop()
	if forecastCache != nil {
		forecastCache.Stop()
	}

	srv.Stop()
	store.Close()
}
