// Package app wires configuration, stores, the remote client and the caches
// into one object owned by each binary.
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"cot-lab/internal/catalog"
	"cot-lab/internal/config"
	"cot-lab/internal/logging"
	"cot-lab/internal/rangecache"
	"cot-lab/internal/socrata"
	"cot-lab/internal/storage"
	chstore "cot-lab/internal/storage/clickhouse"
	"cot-lab/internal/storage/memory"
	"cot-lab/internal/storage/migrations"
	pgstore "cot-lab/internal/storage/postgres"
)

// Stores holds the storage implementations selected by configuration.
type Stores struct {
	Observations storage.ObservationStore
	Contracts    storage.ContractStore
	cleanup      func()
}

// Close releases database connections.
func (s *Stores) Close() {
	if s.cleanup != nil {
		s.cleanup()
	}
}

// OpenStores creates the stores for the configured backend. The clickhouse
// backend keeps observations in ClickHouse and the catalog in PostgreSQL.
func OpenStores(ctx context.Context, cfg config.StorageConfig, logger *logrus.Entry) (*Stores, error) {
	logger = logging.OrDiscard(logger)

	if cfg.Backend == "memory" {
		return &Stores{
			Observations: memory.NewObservationStore(),
			Contracts:    memory.NewContractStore(),
		}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if cfg.Migrate {
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		logger.WithField("applied", applied).Info("postgres migrations complete")
	}

	stores := &Stores{
		Observations: pgstore.NewObservationStore(pool),
		Contracts:    pgstore.NewContractStore(pool),
		cleanup:      pool.Close,
	}
	if cfg.Backend != "clickhouse" {
		return stores, nil
	}

	// ClickHouse
	var conn *chstore.Conn
	if cfg.Migrate {
		conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
	} else {
		conn, err = chstore.NewConn(ctx, cfg.ClickhouseDSN)
	}
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}

	stores.Observations = chstore.NewObservationStore(conn)
	stores.cleanup = func() {
		conn.Close()
		pool.Close()
	}
	return stores, nil
}

// Core is the application's composition root.
type Core struct {
	Config  *config.Config
	Logger  *logrus.Logger
	Stores  *Stores
	Source  *socrata.Client
	Ranges  *rangecache.Cache
	Catalog *catalog.Cache
}

// New builds a Core from configuration.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Core, error) {
	stores, err := OpenStores(ctx, cfg.Storage, logging.Component(logger, "storage"))
	if err != nil {
		return nil, err
	}

	source := socrata.NewClient(cfg.Remote.BaseURL,
		socrata.WithAppToken(cfg.Remote.AppToken),
		socrata.WithPageSize(cfg.Remote.PageSize),
		socrata.WithTimeout(cfg.Remote.Timeout),
		socrata.WithRateLimit(cfg.Remote.RequestsPerSecond, cfg.Remote.Burst),
		socrata.WithMaxRetries(cfg.Remote.MaxRetries),
		socrata.WithRetryDelay(cfg.Remote.RetryDelay),
		socrata.WithLogger(logging.Component(logger, "socrata")),
	)

	core, err := assemble(cfg, logger, stores, source)
	if err != nil {
		stores.Close()
		return nil, err
	}
	return core, nil
}

// assemble builds the caches over existing stores and source.
func assemble(cfg *config.Config, logger *logrus.Logger, stores *Stores, source *socrata.Client) (*Core, error) {
	ranges, err := rangecache.New(rangecache.Options{
		Store:          stores.Observations,
		Source:         source,
		ReleaseCadence: cfg.Cache.ReleaseCadence,
		ReleaseLag:     cfg.Cache.ReleaseLag,
		Logger:         logging.Component(logger, "rangecache"),
	})
	if err != nil {
		return nil, err
	}

	catalogs, err := catalog.NewCache(catalog.CacheOptions{
		Store:  stores.Contracts,
		Source: source,
		TTL:    cfg.Cache.CatalogTTL,
		Logger: logging.Component(logger, "catalog"),
	})
	if err != nil {
		return nil, err
	}

	return &Core{
		Config:  cfg,
		Logger:  logger,
		Stores:  stores,
		Source:  source,
		Ranges:  ranges,
		Catalog: catalogs,
	}, nil
}

// Index builds the contracts index over every report type's catalog.
func (c *Core) Index(ctx context.Context) (*catalog.Index, error) {
	all, err := c.Catalog.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.BuildIndex(all, catalog.WithIndexLogger(logging.Component(c.Logger, "index"))), nil
}

// Close releases resources.
func (c *Core) Close() {
	c.Stores.Close()
}
