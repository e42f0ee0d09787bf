package services

import (
	"context"
	"fmt"

	"github.com/localnerve/contentdb/internal/config"
	"github.com/localnerve/contentdb/internal/utils"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status       string            `json:"status"`
	Database     string            `json:"database"`
	Redis        string            `json:"redis,omitempty"`
	Authorizer   string            `json:"authorizer,omitempty"`
	PageService  string            `json:"pageService,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
	ErrorMessage string            `json:"error,omitempty"`
}

func (r *HealthCheckResult) fail(component, message string, err error) {
	r.Status = "unhealthy"
	r.Details[component+"_error"] = err.Error()
	if r.ErrorMessage != "" {
		r.ErrorMessage += "; "
	}
	r.ErrorMessage += fmt.Sprintf("%s: %v", message, err)
}

// Health checks the service dependencies. Redis and the authorizer are only
// checked when configured.
type Health struct {
	cfg   *config.Config
	db    *gorm.DB
	redis *redis.Client
	log   *logrus.Logger
}

// NewHealth creates the health checker; rdb may be nil
func NewHealth(cfg *config.Config, db *gorm.DB, rdb *redis.Client, log *logrus.Logger) *Health {
	return &Health{cfg: cfg, db: db, redis: rdb, log: log}
}

// Check performs a health check of the database and configured services
func (h *Health) Check(ctx context.Context) HealthCheckResult {
	result := HealthCheckResult{
		Status:  "healthy",
		Details: make(map[string]string),
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		result.Database = "error"
		result.fail("database", "Database connection error", err)
	} else if err := sqlDB.PingContext(ctx); err != nil {
		result.Database = "unreachable"
		result.fail("database_ping", "Database ping failed", err)
	} else {
		result.Database = "ok"
		result.Details["database_type"] = h.cfg.DBType
		result.Details["database_name"] = h.cfg.DBDatabase
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			result.Redis = "unreachable"
			result.fail("redis", "Redis ping failed", err)
		} else {
			result.Redis = "ok"
		}
	}

	if h.cfg.AuthzURL != "" {
		if err := utils.PingAuthorizer(h.cfg.AuthzURL); err != nil {
			result.Authorizer = "unreachable"
			result.fail("authorizer", "Authorizer ping failed", err)
		} else {
			result.Authorizer = "ok"
			result.Details["authorizer_url"] = h.cfg.AuthzURL
		}
	}

	if h.cfg.PageServiceURL != "" {
		if err := utils.PingPageService(h.cfg.PageServiceURL); err != nil {
			result.PageService = "unreachable"
			result.fail("page_service", "Page service ping failed", err)
		} else {
			result.PageService = "ok"
		}
	}

	if result.Status == "healthy" {
		h.log.Debug("health check passed")
	} else {
		h.log.WithField("error", result.ErrorMessage).Warn("health check failed")
	}
	return result
}
