package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fusemem/fusemem/config"
	"github.com/fusemem/fusemem/pkg/api"
	"github.com/fusemem/fusemem/pkg/api/handlers"
	"github.com/fusemem/fusemem/pkg/cache"
	"github.com/fusemem/fusemem/pkg/eventbus"
	"github.com/fusemem/fusemem/pkg/feedback"
	"github.com/fusemem/fusemem/pkg/logger"
	"github.com/fusemem/fusemem/pkg/metrics"
	"github.com/fusemem/fusemem/pkg/retrieval"
	"github.com/fusemem/fusemem/pkg/sources"
	"github.com/fusemem/fusemem/pkg/telemetry/tracing"
	"github.com/fusemem/fusemem/pkg/version"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version information")
	helpFlag    = flag.Bool("help", false, "Print help information")

	// CLI overrides
	appName    = flag.String("app-name", "", "Override app name")
	serverPort = flag.Int("port", 0, "Override server port")
	logLevel   = flag.String("log-level", "", "Override log level")
	debugMode  = flag.Bool("debug", false, "Enable debug mode")
	watchFlag  = flag.Bool("watch-config", false, "Reload hot config values on file change")
)

func main() {
	flag.Parse()

	// Print help
	if *helpFlag {
		printHelp()
		os.Exit(0)
	}

	// Print version
	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	// Build CLI overrides map
	overrides := buildOverrides()

	// Load configuration
	cfg, err := config.Load(*configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}

	// Initialize logger with configuration
	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug || *debugMode {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	logger.SetGlobal(log)

	log.Info("Starting Fusemem",
		"version", version.Version,
		"buildTime", version.BuildTime,
		"gitCommit", version.GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)

	log.Debug("Configuration loaded", "config", cfg.String())

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Initialize tracing
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.App.Name, version.Version)
	if err != nil {
		log.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error("Error shutting down tracing", "error", err)
		}
	}()

	// Initialize metrics manager
	metricsCfg := metrics.DefaultConfig()
	metricsCfg.Enabled = cfg.Metrics.Enabled
	metricsCfg.Port = cfg.Metrics.Port
	metricsCfg.Path = cfg.Metrics.Path
	metricsManager := metrics.NewManager(metricsCfg)

	// Start metrics server if enabled
	if metricsManager.Enabled() {
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsManager.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}

	// Open the feedback store: the failure log and persisted bandit state.
	store, err := feedback.NewStore(feedback.Config{
		Path:       cfg.Storage.Badger.Path,
		SyncWrites: cfg.Storage.Badger.SyncWrites,
		FailureTTL: cfg.Storage.Badger.FailureTTL,
	})
	if err != nil {
		log.Error("Failed to open feedback store", "error", err, "path", cfg.Storage.Badger.Path)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing feedback store", "error", err)
		}
	}()
	log.Info("Opened feedback store", "path", cfg.Storage.Badger.Path)

	// Badger reclaims value log space only when asked.
	if cfg.Storage.Badger.GCInterval > 0 {
		go runStorageGC(ctx, store, cfg.Storage.Badger.GCInterval, log)
	}

	// Event bus and publisher for miss / retune events.
	var bus *eventbus.MemoryBus
	var publisher *eventbus.Publisher
	if cfg.EventBus.Enabled {
		bus = eventbus.NewMemoryBus()
		retry := eventbus.DefaultRetryConfig()
		retry.MaxRetries = cfg.EventBus.MaxRetries
		retry.InitialBackoff = cfg.EventBus.RetryBackoff
		publisher, err = eventbus.NewPublisher(cfg.App.Name, bus, retry, metricsManager)
		if err != nil {
			log.Error("Failed to create event publisher", "error", err)
			os.Exit(1)
		}
	}

	// Assemble the retrieval sources.
	sourceSet := buildSources(cfg, log)
	srcs := sourceSet.list
	if len(srcs) == 0 {
		log.Error("No retrieval sources enabled")
		os.Exit(1)
	}
	engineNames := make([]string, 0, len(srcs))
	for _, src := range srcs {
		engineNames = append(engineNames, src.Name())
	}

	// Retrieval pipeline: classifier, policy, fusion, guard, recorder, tuner.
	classifier := retrieval.NewClassifier(retrieval.ClassifierConfig{
		IdentifierBelow: cfg.Retrieval.Classifier.IdentifierBelow,
		AbstractAbove:   cfg.Retrieval.Classifier.AbstractAbove,
	})
	policy, err := retrieval.NewPolicyStore(retrieval.PolicyStoreConfig{
		Adaptive: cfg.Retrieval.Adaptive,
	}, log)
	if err != nil {
		log.Error("Failed to create policy store", "error", err)
		os.Exit(1)
	}
	fuser := retrieval.NewFuser(retrieval.FusionConfig{
		K:            cfg.Retrieval.Fusion.K,
		AdaptiveK:    cfg.Retrieval.Fusion.AdaptiveK,
		KMin:         cfg.Retrieval.Fusion.KMin,
		KMax:         cfg.Retrieval.Fusion.KMax,
		SynergyBoost: cfg.Retrieval.Fusion.SynergyBoost,
		ClipMin:      cfg.Retrieval.Fusion.ClipMin,
		ClipMax:      cfg.Retrieval.Fusion.ClipMax,
	})
	guard := retrieval.NewGuard(retrieval.GuardConfig{
		Enabled:             cfg.Retrieval.Guard.Enabled,
		PrimaryEngine:       cfg.Retrieval.Guard.PrimaryEngine,
		MinResults:          cfg.Retrieval.Guard.MinResults,
		ConfidenceThreshold: cfg.Retrieval.Guard.ConfidenceThreshold,
	})

	var emitter retrieval.FailureEmitter
	if publisher != nil {
		emitter = publisher
	}
	recorder := retrieval.NewRecorder(retrieval.RecorderConfig{
		Enabled:        cfg.Retrieval.Recorder.Enabled,
		RelevanceFloor: cfg.Retrieval.Recorder.RelevanceFloor,
	}, store, emitter, log)

	tuner := retrieval.NewTuner(retrieval.TunerConfig{
		Enabled:     cfg.Retrieval.Tuner.Enabled,
		PriorAlpha:  cfg.Retrieval.Tuner.PriorAlpha,
		PriorBeta:   cfg.Retrieval.Tuner.PriorBeta,
		Decay:       cfg.Retrieval.Tuner.Decay,
		Interval:    cfg.Retrieval.Tuner.Interval,
		RetuneAfter: cfg.Retrieval.Tuner.RetuneAfter,
		MinWeight:   cfg.Retrieval.Tuner.MinWeight,
	}, engineNames, policy, store, log)
	tuner.SetObserver(newRetuneFanout(metricsManager, publisher))
	tuner.Start(ctx)
	defer tuner.Stop()

	// Optional Redis result cache.
	var resultCache retrieval.ResultCache
	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient = cache.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Address,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		if err := cache.Ping(ctx, redisClient); err != nil {
			log.Warn("Redis unreachable, starting without result cache", "error", err)
		} else {
			resultCache = cache.NewResultCache(redisClient, cache.Config{
				TTL:       cfg.Cache.TTL,
				KeyPrefix: cfg.Cache.KeyPrefix,
			}, log, metricsManager)
			log.Info("Result cache enabled", "address", cfg.Cache.Redis.Address, "ttl", cfg.Cache.TTL)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing Redis client", "error", err)
			}
		}()
	}

	// The retrieval engine ties the pipeline together.
	eng, err := retrieval.NewEngine(retrieval.EngineConfig{
		DefaultLimit:        cfg.Retrieval.DefaultLimit,
		MaxLimit:            cfg.Retrieval.MaxLimit,
		CandidateMultiplier: cfg.Retrieval.CandidateMultiplier,
		SourceTimeout:       cfg.Retrieval.SourceTimeout,
	}, srcs, retrieval.EngineDeps{
		Classifier: classifier,
		Policy:     policy,
		Fuser:      fuser,
		Guard:      guard,
		Recorder:   recorder,
		Tuner:      tuner,
		Cache:      resultCache,
		Observer:   metricsManager,
		Logger:     log,
	})
	if err != nil {
		log.Error("Failed to create retrieval engine", "error", err)
		os.Exit(1)
	}

	// Health checks: a single-key read for the store, a ping for Redis.
	healthChecks := map[string]handlers.HealthCheck{
		"storage": func(ctx context.Context) error {
			_, err := store.LoadBanditState(ctx)
			return err
		},
	}
	if redisClient != nil {
		healthChecks["cache"] = func(ctx context.Context) error {
			return cache.Ping(ctx, redisClient)
		}
	}

	// Initialize HTTP server with handlers
	apiHandlers := &api.Handlers{
		Search:    handlers.NewSearchHandler(eng, log),
		Feedback:  handlers.NewFeedbackHandler(eng, log),
		Policy:    handlers.NewPolicyHandler(eng, store, log),
		Documents: handlers.NewDocumentsHandler(sourceSet.lexical, sourceSet.vector, sourceSet.graph, log),
		Health:    handlers.NewHealthHandler(healthChecks),
	}
	if metricsManager.Enabled() {
		apiHandlers.Metrics = metricsManager
	}

	var eventsHandler *handlers.EventsHandler
	if bus != nil {
		eventsHandler = handlers.NewEventsHandler(log, bus, handlers.EventsConfig{
			AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
		})
		apiHandlers.Events = eventsHandler
		go func() {
			if err := eventsHandler.Run(ctx); err != nil && err != context.Canceled {
				log.Error("Event stream bridge stopped", "error", err)
			}
		}()
	}

	httpServer := api.NewHTTPServer(cfg, log, apiHandlers)

	// Optionally watch the config file for hot-reloadable changes.
	if *watchFlag && *configPath != "" {
		go watchConfig(ctx, *configPath, log)
	}

	// Start HTTP server in a separate goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
		if err := httpServer.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	log.Info("Fusemem is running",
		"http_port", cfg.Server.Port,
		"metrics_port", cfg.Metrics.Port,
		"sources", engineNames,
	)
	log.Info("Press Ctrl+C to stop")

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErrChan:
		log.Error("HTTP server error", "error", err)
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown HTTP server first
	log.Info("Shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down HTTP server", "error", err)
	}

	if eventsHandler != nil {
		eventsHandler.Close()
	}

	// Stop the tuner so the final retune and state save land before the
	// store closes.
	log.Info("Stopping tuner")
	tuner.Stop()

	// Persist the vector index if a path is configured.
	if sourceSet.vector != nil && cfg.Sources.Vector.IndexPath != "" {
		if err := sourceSet.vector.Save(cfg.Sources.Vector.IndexPath); err != nil {
			log.Error("Error saving vector index", "error", err)
		} else {
			log.Info("Saved vector index", "path", cfg.Sources.Vector.IndexPath)
		}
	}

	log.Info("Fusemem stopped gracefully")
}

// sourceSet holds the constructed sources with their concrete types so the
// ingestion handler and shutdown path can reach engine-specific operations.
type sourceSet struct {
	list    []retrieval.Source
	lexical *sources.LexicalSource
	vector  *sources.VectorSource
	graph   *sources.GraphSource
}

// buildSources constructs the enabled retrieval sources.
func buildSources(cfg *config.Config, log logger.Logger) sourceSet {
	var set sourceSet

	if cfg.Sources.Lexical.Enabled {
		set.lexical = sources.NewLexicalSource(cfg.Sources.Lexical.K1, cfg.Sources.Lexical.B)
		set.list = append(set.list, set.lexical)
		log.Info("Enabled lexical source", "k1", cfg.Sources.Lexical.K1, "b", cfg.Sources.Lexical.B)
	}
	if cfg.Sources.Vector.Enabled {
		embedder := sources.NewHashingEmbedder(cfg.Sources.Vector.Dimension)
		set.vector = sources.NewVectorSource(embedder)
		if cfg.Sources.Vector.IndexPath != "" {
			if err := set.vector.Load(cfg.Sources.Vector.IndexPath); err != nil {
				log.Warn("Could not load vector index, starting empty",
					"path", cfg.Sources.Vector.IndexPath, "error", err)
			} else {
				log.Info("Loaded vector index", "path", cfg.Sources.Vector.IndexPath)
			}
		}
		set.list = append(set.list, set.vector)
		log.Info("Enabled vector source", "dimension", cfg.Sources.Vector.Dimension)
	}
	if cfg.Sources.Graph.Enabled {
		set.graph = sources.NewGraphSource(sources.GraphConfig{
			DefaultDepth: cfg.Sources.Graph.DefaultDepth,
			Decay:        cfg.Sources.Graph.Decay,
		})
		set.list = append(set.list, set.graph)
		log.Info("Enabled graph source", "depth", cfg.Sources.Graph.DefaultDepth)
	}

	return set
}

// retuneFanout forwards tuner notifications to every interested observer.
type retuneFanout struct {
	observers []retrieval.TunerObserver
}

func newRetuneFanout(observers ...retrieval.TunerObserver) *retuneFanout {
	f := &retuneFanout{}
	for _, obs := range observers {
		if obs != nil && !isNilObserver(obs) {
			f.observers = append(f.observers, obs)
		}
	}
	return f
}

func (f *retuneFanout) RetuneCompleted(weights map[string]float64) {
	for _, obs := range f.observers {
		obs.RetuneCompleted(weights)
	}
}

// isNilObserver guards against typed-nil interface values from optional
// collaborators.
func isNilObserver(obs retrieval.TunerObserver) bool {
	switch v := obs.(type) {
	case *eventbus.Publisher:
		return v == nil
	case *metrics.Manager:
		return v == nil
	default:
		return false
	}
}

// runStorageGC runs Badger value log GC on a fixed cadence.
func runStorageGC(ctx context.Context, store *feedback.Store, interval time.Duration, log logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.RunGC(); err != nil {
				log.Debug("Storage GC cycle skipped", "reason", err)
			}
		}
	}
}

// watchConfig applies hot-reloadable config changes. Only the log level takes
// effect at runtime; other changes are logged so operators know a restart is
// needed.
func watchConfig(ctx context.Context, path string, log logger.Logger) {
	loader := config.NewLoader()
	watcher, err := config.NewWatcher(path, loader)
	if err != nil {
		log.Warn("Config watcher unavailable", "error", err)
		return
	}
	defer watcher.Stop()

	current := config.HotReloadableConfig{}
	watcher.OnChange(func(cfg *config.Config) {
		next := config.ExtractHotReloadable(cfg)
		if !current.Changed(next) {
			return
		}
		if next.LogLevel != current.LogLevel {
			log.SetLevel(logger.ParseLevel(next.LogLevel))
			log.Info("Log level updated", "level", next.LogLevel)
		}
		if next.RelevanceFloor != current.RelevanceFloor || next.Adaptive != current.Adaptive {
			log.Info("Retrieval config changed on disk, restart to apply",
				"relevance_floor", next.RelevanceFloor, "adaptive", next.Adaptive)
		}
		current = next
	})

	log.Info("Watching config file", "path", path)
	if err := watcher.Watch(ctx); err != nil && err != context.Canceled {
		log.Warn("Config watcher stopped", "error", err)
	}
}

func buildOverrides() map[string]interface{} {
	overrides := make(map[string]interface{})

	if *appName != "" {
		overrides["app.name"] = *appName
	}
	if *serverPort != 0 {
		overrides["server.port"] = *serverPort
	}
	if *logLevel != "" {
		overrides["log.level"] = *logLevel
	}
	if *debugMode {
		overrides["app.debug"] = true
	}

	return overrides
}

func printVersion() {
	fmt.Printf("Fusemem - Hybrid Fusion Retrieval Engine\n")
	fmt.Printf("Version:    %s\n", version.Version)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Printf("Git Commit: %s\n", version.GitCommit)
	fmt.Printf("Go Version: %s\n", version.GoVersion)
}

func printHelp() {
	fmt.Printf("Fusemem - Hybrid fusion retrieval engine with adaptive weighting\n\n")
	fmt.Printf("Usage: fusemem [options]\n\n")
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  fusemem                                   # Run with default config\n")
	fmt.Printf("  fusemem -config config.yaml               # Use specific config file\n")
	fmt.Printf("  fusemem -port 9090 -log-level debug       # Override specific options\n")
	fmt.Printf("  fusemem -version                          # Print version info\n")
}
