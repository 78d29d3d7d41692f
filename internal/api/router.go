// Package api wires together all HTTP routes for the audit and export backend.
//
// Route grouping:
//   - /health, /ready and /version are public health endpoints.
//   - /api/v1 requires a bearer token when auth.jwt.enabled is set, and each route then
//     requires a scope derived from the token's role (audit:read, audit:write,
//     exports:read, exports:write). /audit-actions only needs a valid token.
//   - Export, print and download routes are additionally rate limited because each one
//     reads up to export.max_rows audit rows.
//
// The audit trail is append-only, so there are no PUT, PATCH or DELETE routes.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/aitool-portal/aitool-portal/internal/api/auditlogs"
	"github.com/aitool-portal/aitool-portal/internal/api/exports"
	"github.com/aitool-portal/aitool-portal/internal/audit"
	"github.com/aitool-portal/aitool-portal/internal/auth"
	"github.com/aitool-portal/aitool-portal/internal/config"
	"github.com/aitool-portal/aitool-portal/internal/db/repositories"
	"github.com/aitool-portal/aitool-portal/internal/middleware"
	"github.com/aitool-portal/aitool-portal/internal/services"
	"github.com/aitool-portal/aitool-portal/internal/storage"

	// Import storage backends to register them
	_ "github.com/aitool-portal/aitool-portal/internal/storage/azure"
	_ "github.com/aitool-portal/aitool-portal/internal/storage/gcs"
	_ "github.com/aitool-portal/aitool-portal/internal/storage/local"
	_ "github.com/aitool-portal/aitool-portal/internal/storage/s3"
)

// Version is reported by /version and the CLI
const Version = "0.1.0"

// readinessCheckPath is a key that never exists; Exists on it exercises credentials and
// connectivity without creating state
const readinessCheckPath = ".readiness-check"

// BackgroundServices holds resources that must be released during graceful shutdown.
// The caller (cmd/server) calls Shutdown after the HTTP server has drained.
type BackgroundServices struct {
	recorder *audit.Recorder
	limiter  middleware.Limiter
	storage  storage.Storage
}

// Shutdown flushes in-flight audit shipments and releases the limiter and storage client
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.recorder != nil {
		if err := bg.recorder.Close(); err != nil {
			slog.Error("failed to close audit shippers", "error", err)
		}
	}
	if bg.limiter != nil {
		if err := bg.limiter.Close(); err != nil {
			slog.Error("failed to close rate limiter", "error", err)
		}
	}
	if c, ok := bg.storage.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Error("failed to close storage client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	storageBackend, err := storage.NewStorage(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	slog.Info("initialized storage backend", "backend", cfg.Storage.DefaultBackend)

	shipper, err := audit.NewMultiShipper(cfg.Audit.Shippers)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize audit shippers: %w", err)
	}
	slog.Info("initialized audit shippers", "count", shipper.Len())

	auditRepo := repositories.NewAuditRepository(db)
	exportRepo := repositories.NewExportRepository(sqlx.NewDb(db, "postgres"))
	recorder := audit.NewRecorder(auditRepo, shipper)
	exportStore := services.NewExportStore(storageBackend, cfg.Storage.DefaultBackend, exportRepo, cfg.Export.SignedURLTTL)

	bg := &BackgroundServices{recorder: recorder, storage: storageBackend}

	var verifier *auth.Verifier
	if cfg.Auth.JWT.Enabled {
		verifier, err = auth.NewVerifier(cfg.Auth.JWT.Secret, cfg.Auth.JWT.Issuer)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize token verifier: %w", err)
		}
	} else {
		slog.Warn("JWT authentication is disabled; /api/v1 is open")
	}

	var exportLimit gin.HandlerFunc
	if cfg.Security.RateLimiting.Enabled {
		limiter, err := middleware.NewLimiter(cfg.Security.RateLimiting)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
		}
		bg.limiter = limiter
		exportLimit = middleware.RateLimitMiddleware(limiter)
	}

	// route builds a handler chain: scope check when auth is on, then the export rate
	// limit when limited is set, then h.
	route := func(scope auth.Scope, limited bool, h gin.HandlerFunc) []gin.HandlerFunc {
		chain := make([]gin.HandlerFunc, 0, 3)
		if verifier != nil {
			chain = append(chain, middleware.RequireScope(scope))
		}
		if limited && exportLimit != nil {
			chain = append(chain, exportLimit)
		}
		return append(chain, h)
	}

	auditHandlers := auditlogs.NewHandlers(auditRepo, recorder, exportStore, cfg.Export)
	exportHandlers := exports.NewHandlers(exportRepo, exportStore, cfg.Export)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware(slog.Default()))
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, storageBackend))
	router.GET("/version", versionHandler())

	apiV1 := router.Group("/api/v1")
	if verifier != nil {
		apiV1.Use(middleware.JWTAuthMiddleware(verifier))
	}
	{
		apiV1.GET("/audit-actions", auditHandlers.ListActions)

		apiV1.POST("/audit-logs", route(auth.ScopeAuditWrite, false, auditHandlers.Create)...)
		apiV1.GET("/audit-logs", route(auth.ScopeAuditRead, false, auditHandlers.List)...)
		apiV1.GET("/audit-logs/export", route(auth.ScopeAuditRead, true, auditHandlers.Export)...)
		apiV1.GET("/audit-logs/print", route(auth.ScopeAuditRead, true, auditHandlers.Print)...)
		apiV1.GET("/audit-logs/:id", route(auth.ScopeAuditRead, false, auditHandlers.Get)...)

		apiV1.POST("/exports", route(auth.ScopeExportsWrite, true, exportHandlers.Create)...)
		apiV1.GET("/exports", route(auth.ScopeExportsRead, false, exportHandlers.List)...)
		apiV1.GET("/exports/:id/download", route(auth.ScopeExportsRead, true, exportHandlers.Download)...)
	}

	return router, bg, nil
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler also checks the storage backend so a readiness gate fails when stored
// exports would error.
func readinessHandler(db *sql.DB, storageBackend storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if _, err := storageBackend.Exists(ctx, readinessCheckPath); err != nil {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}
