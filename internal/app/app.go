// Package app wires the content services from configuration. The server and
// the admin CLI share it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/localnerve/contentdb/internal/config"
	"github.com/localnerve/contentdb/internal/database"
	"github.com/localnerve/contentdb/internal/locks"
	"github.com/localnerve/contentdb/internal/notify"
	"github.com/localnerve/contentdb/internal/pages"
	"github.com/localnerve/contentdb/internal/services"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// App holds the connected services
type App struct {
	Config *config.Config
	Log    *logrus.Logger
	DB     *gorm.DB
	Redis  *redis.Client

	Store    *services.ContentStore
	History  *services.HistoryLedger
	Locks    *services.LockManager
	Engine   *services.MutationEngine
	Comments *services.CommentThreadManager
	Health   *services.Health
	Sweeper  *services.Sweeper
	Sessions *services.SessionValidator
}

// New connects the database (and Redis when configured) and builds every
// service
func New(cfg *config.Config, log *logrus.Logger) (*App, error) {
	db, err := database.Connect(cfg, log)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Log: log, DB: db}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			_ = database.Close(db)
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		a.Redis = redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	var store locks.Store
	switch cfg.LockBackend {
	case config.LockBackendRedis:
		if a.Redis == nil {
			a.Close()
			return nil, fmt.Errorf("LOCK_BACKEND=redis requires REDIS_URL")
		}
		store = locks.NewRedisStore(a.Redis)
	default:
		store = locks.NewGormStore(db)
	}

	notifiers := notify.Multi{notify.LogNotifier{Log: log}}
	if a.Redis != nil {
		notifiers = append(notifiers, notify.NewRedisNotifier(a.Redis, cfg.RedisChangesChannel))
	}

	var directory pages.Directory = pages.AllowAll{}
	if cfg.PageServiceURL != "" {
		directory = pages.NewHTTPDirectory(cfg.PageServiceURL)
	}

	a.History = services.NewHistoryLedger(db, cfg.HistoryRetention, log)
	a.Store = services.NewContentStore(db, directory, a.History, log)
	a.Locks = services.NewLockManager(store, cfg.LockTTL, cfg.LockMaxTTL, log)
	a.Engine = services.NewMutationEngine(services.MutationConfig{
		DB:          db,
		Store:       a.Store,
		History:     a.History,
		Locks:       a.Locks,
		Notifier:    notifiers,
		RequireLock: cfg.RequireLock,
		Log:         log,
	})
	a.Comments = services.NewCommentThreadManager(db, a.Store, log)
	a.Health = services.NewHealth(cfg, db, a.Redis, log)
	a.Sweeper = services.NewSweeper(a.Locks, a.History, cfg.SweepInterval, log)
	a.Sessions = services.NewSessionValidator(cfg, log)

	log.WithFields(logrus.Fields{
		"database":    cfg.DBType,
		"lockBackend": cfg.LockBackend,
		"requireLock": cfg.RequireLock,
		"redis":       a.Redis != nil,
		"authorizer":  a.Sessions != nil,
	}).Info("services ready")

	return a, nil
}

// Close releases the database and Redis connections
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.WithError(err).Warn("failed to close redis")
		}
	}
	if err := database.Close(a.DB); err != nil {
		a.Log.WithError(err).Warn("failed to close database")
	}
}
