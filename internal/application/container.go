package application

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/safe-audit/internal/application/analysis"
	"github.com/khanhnv2901/safe-audit/internal/application/discovery"
	"github.com/khanhnv2901/safe-audit/internal/application/probe"
	"github.com/khanhnv2901/safe-audit/internal/domain/chain"
	"github.com/khanhnv2901/safe-audit/internal/domain/check"
	"github.com/khanhnv2901/safe-audit/internal/domain/safe"
	"github.com/khanhnv2901/safe-audit/internal/infrastructure/explorer"
	jsonstore "github.com/khanhnv2901/safe-audit/internal/infrastructure/persistence/json"
	"github.com/khanhnv2901/safe-audit/internal/infrastructure/releases"
	"github.com/khanhnv2901/safe-audit/internal/infrastructure/rpc"
	"github.com/khanhnv2901/safe-audit/internal/shared/constants"
)

// Config is everything needed to wire the services.
type Config struct {
	// ChainsFile replaces the embedded registry when set.
	ChainsFile string
	// Endpoints overrides RPC URLs by chain slug or id.
	Endpoints map[string]string

	RPCRate     float64
	Retries     uint64
	CallTimeout time.Duration

	ExplorerAPIKey string
	ExplorerRate   float64

	ProbeConcurrency int

	// FallbackHandlers adds official handlers (address -> name).
	FallbackHandlers map[string]string

	ReleasesURL string
	// StaticReleases replaces the built-in fallback versions when non-nil.
	StaticReleases []string

	// ReportsDir enables report history when set.
	ReportsDir string

	Logger *zap.Logger

	// Dialer replaces the go-ethereum client; tests use it.
	Dialer rpc.Dialer
}

// Container holds all application services.
// This is a simple dependency injection container
type Container struct {
	Registry     *chain.Registry
	Pool         *rpc.Pool
	Fetcher      *rpc.Fetcher
	Explorer     *explorer.Client
	Releases     *releases.Client
	Prober       *probe.Prober
	Orchestrator *analysis.Orchestrator
	Extractor    *discovery.Extractor
	// Reports is nil when no reports directory is configured.
	Reports *jsonstore.ReportRepository
}

// NewContainer loads the registry and wires every service.
func NewContainer(cfg Config) (*Container, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	registry, err := loadRegistry(cfg.ChainsFile)
	if err != nil {
		return nil, err
	}
	if len(cfg.Endpoints) > 0 {
		registry = registry.WithEndpoints(cfg.Endpoints)
	}

	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = constants.DefaultCallTimeout
	}

	pool := rpc.NewPool(rpc.Options{
		Dialer:      cfg.Dialer,
		RateLimit:   cfg.RPCRate,
		Retries:     cfg.Retries,
		CallTimeout: callTimeout,
		Logger:      logger.Named("rpc"),
	})
	fetcher := rpc.NewFetcher(pool)

	explorerClient := explorer.New(explorer.Options{
		APIKey:  cfg.ExplorerAPIKey,
		Rate:    cfg.ExplorerRate,
		Retries: cfg.Retries,
		Timeout: callTimeout,
		Logger:  logger.Named("explorer"),
	})

	var static []safe.Release
	if cfg.StaticReleases != nil {
		static = make([]safe.Release, 0, len(cfg.StaticReleases))
		for _, v := range cfg.StaticReleases {
			static = append(static, safe.Release{Version: v})
		}
	}
	releaseClient := releases.New(releases.Options{
		URL:     cfg.ReleasesURL,
		Timeout: callTimeout,
		Retries: cfg.Retries,
		Static:  static,
		Logger:  logger.Named("releases"),
	})

	concurrency := cfg.ProbeConcurrency
	if concurrency <= 0 {
		concurrency = constants.DefaultProbeConcurrency
	}
	prober := probe.New(registry, fetcher, concurrency, logger.Named("probe"))

	orchestrator := analysis.NewOrchestrator(
		registry,
		fetcher,
		explorerClient,
		releaseClient,
		prober,
		check.DefaultFallbackRegistry(cfg.FallbackHandlers),
		logger.Named("analysis"),
	)

	var reports *jsonstore.ReportRepository
	if cfg.ReportsDir != "" {
		reports, err = jsonstore.NewReportRepository(cfg.ReportsDir)
		if err != nil {
			return nil, err
		}
	}

	return &Container{
		Registry:     registry,
		Pool:         pool,
		Fetcher:      fetcher,
		Explorer:     explorerClient,
		Releases:     releaseClient,
		Prober:       prober,
		Orchestrator: orchestrator,
		Extractor:    discovery.New(fetcher, logger.Named("discovery")),
		Reports:      reports,
	}, nil
}

// Close releases RPC connections.
func (c *Container) Close() {
	if c != nil && c.Pool != nil {
		c.Pool.Close()
	}
}

func loadRegistry(path string) (*chain.Registry, error) {
	if path == "" {
		registry, err := chain.Default()
		if err != nil {
			return nil, fmt.Errorf("load built-in chain registry: %w", err)
		}
		return registry, nil
	}
	registry, err := chain.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load chain registry %s: %w", path, err)
	}
	return registry, nil
}
