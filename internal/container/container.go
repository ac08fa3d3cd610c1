package container

import (
	"context"
	"fmt"
	"time"

	"imss/harvester/internal/checkpoint"
	"imss/harvester/internal/client"
	"imss/harvester/internal/config"
	"imss/harvester/internal/proxy"
	"imss/harvester/internal/queue"
	"imss/harvester/internal/repository"
	"imss/harvester/internal/service"
	"imss/harvester/internal/state"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Container holds all initialized components
type Container struct {
	Config     *config.Config
	Client     *client.ImssClient
	Store      checkpoint.Store
	Repository repository.RecordRepository
	Queue      queue.FailureQueue
	Progress   state.ProgressStore

	Service *service.Service

	db    *pgxpool.Pool
	redis *redis.Client
}

// New creates a new container. Postgres and Redis are only connected when
// enabled in the configuration.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	container := &Container{
		Config: cfg,
	}

	proxySupplier, err := proxy.NewProxySupplier(ctx, cfg.Source.Proxies, cfg.Source.ProxyTestURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize proxy supplier: %w", err)
	}
	if len(cfg.Source.Proxies) > 0 && proxySupplier.Len() == 0 {
		log.Warnf("⚠️ None of the %d configured proxies work, connecting directly", len(cfg.Source.Proxies))
	}

	parser := client.NewParser(cfg.Source.BaseURL)
	container.Client = client.NewImssClient(cfg.Source, proxySupplier, parser)

	store, err := checkpoint.NewFileStore(cfg.Harvest.OutputDir)
	if err != nil {
		return nil, err
	}
	container.Store = store

	if cfg.Database.Enabled {
		if err := container.connectDatabase(ctx); err != nil {
			container.Close()
			return nil, err
		}
	}

	if cfg.Redis.Enabled {
		if err := container.connectRedis(ctx); err != nil {
			container.Close()
			return nil, err
		}
	}

	container.Service = service.NewService(
		container.Client,
		container.Client,
		parser,
		store,
		container.Progress,
		container.Queue,
		container.Repository,
		service.Delay{
			Min: time.Duration(cfg.Harvest.DelayMin) * time.Millisecond,
			Max: time.Duration(cfg.Harvest.DelayMax) * time.Millisecond,
		},
	)

	return container, nil
}

func (c *Container) connectDatabase(ctx context.Context) error {
	db, err := pgxpool.New(ctx,
		fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Config.Database.Host,
			c.Config.Database.Port,
			c.Config.Database.User,
			c.Config.Database.Password,
			c.Config.Database.Name,
		))
	if err != nil {
		return fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	c.db = db

	repo := repository.NewRecordRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}
	c.Repository = repo

	log.Info("✅ Connected to Postgres successfully")
	return nil
}

func (c *Container) connectRedis(ctx context.Context) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", c.Config.Redis.Host, c.Config.Redis.Port),
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.Database,
	})
	c.redis = rdb

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("✅ Connected to Redis successfully")

	redisQueue, err := queue.NewRedisQueue(ctx, rdb, c.Config.Redis)
	if err != nil {
		return err
	}
	c.Queue = redisQueue
	c.Progress = state.NewRedisProgressStore(rdb)

	return nil
}

// Close performs cleanup when shutting down
func (c *Container) Close() error {
	log.Debug("Shutting down container...")

	var err error
	if c.Store != nil {
		err = c.Store.Close()
	}
	if c.db != nil {
		c.db.Close()
	}
	if c.redis != nil {
		if closeErr := c.redis.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}

	log.Debug("Container shut down successfully")
	return err
}
