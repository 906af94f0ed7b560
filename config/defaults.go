package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "fusemem",
			Version:     "dev",
			Environment: "development",
			Debug:       false,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			HTTP: HTTPConfig{
				ReadTimeout:     30 * time.Second,
				WriteTimeout:    30 * time.Second,
				IdleTimeout:     120 * time.Second,
				ShutdownTimeout: 10 * time.Second,
				RequestTimeout:  15 * time.Second,
				MaxHeaderBytes:  1 << 20, // 1MB
			},
			CORS: CORSConfig{
				Enabled:          false,
				AllowedOrigins:   []string{"*"},
				AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
				ExposedHeaders:   []string{"X-Request-ID"},
				AllowCredentials: false,
				MaxAge:           300,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 50,
				Burst:             100,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Retrieval: RetrievalConfig{
			DefaultLimit:        10,
			MaxLimit:            100,
			CandidateMultiplier: 3,
			SourceTimeout:       2 * time.Second,
			Classifier: ClassifierConfig{
				IdentifierBelow: 0.35,
				AbstractAbove:   0.70,
			},
			Fusion: FusionConfig{
				K:            60.0,
				AdaptiveK:    false,
				KMin:         20.0,
				KMax:         250.0,
				SynergyBoost: 1.2,
				ClipMin:      0.0,
				ClipMax:      1.0,
			},
			Guard: GuardConfig{
				Enabled:             true,
				PrimaryEngine:       "lexical",
				MinResults:          5,
				ConfidenceThreshold: 0.9,
			},
			Tuner: TunerConfig{
				Enabled:     true,
				PriorAlpha:  1.0,
				PriorBeta:   1.0,
				Decay:       0.98,
				Interval:    30 * time.Second,
				RetuneAfter: 32,
				MinWeight:   0.05,
			},
			Recorder: RecorderConfig{
				Enabled:        true,
				RelevanceFloor: 0.1,
			},
			Adaptive: false,
		},
		Sources: SourcesConfig{
			Vector: VectorSourceConfig{
				Enabled:   true,
				Dimension: 256,
				IndexPath: "",
			},
			Lexical: LexicalSourceConfig{
				Enabled: true,
				K1:      1.5,
				B:       0.75,
			},
			Graph: GraphSourceConfig{
				Enabled:      true,
				DefaultDepth: 2,
				Decay:        0.5,
			},
		},
		Cache: CacheConfig{
			Enabled:   false,
			TTL:       5 * time.Minute,
			KeyPrefix: "fusemem:result:",
			Redis: RedisConfig{
				Address:  "localhost:6379",
				Password: "",
				DB:       0,
			},
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:       "./data/fusemem",
				SyncWrites: true,
				FailureTTL: 0,
				GCInterval: 10 * time.Minute,
			},
		},
		EventBus: EventBusConfig{
			Enabled:      true,
			BufferSize:   64,
			MaxRetries:   3,
			RetryBackoff: 50 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9091,
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   "otlpgrpc",
			Endpoint:   "localhost:4317",
			Timeout:    5 * time.Second,
			Sampler:    "parentbased_traceidratio",
			SampleRate: 0.1,
		},
	}
}
