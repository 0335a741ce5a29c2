package handler

import (
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cercabus/cercabus/internal/api/models"
	"github.com/cercabus/cercabus/internal/api/response"
	"github.com/cercabus/cercabus/internal/provider/resilience"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	pool      *pgxpool.Pool
	registry  *resilience.Registry
}

// OpsHandlerConfig holds configuration for the OpsHandler.
type OpsHandlerConfig struct {
	Version   string
	BuildTime string

	// Pool is the database pool, nil when running without a database.
	Pool *pgxpool.Pool

	// Registry exposes transit provider circuit health.
	Registry *resilience.Registry
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsHandlerConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		pool:      cfg.Pool,
		registry:  cfg.Registry,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check. Not ready while
// the database (when configured) is unreachable.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	status := models.HealthStatusOK
	httpStatus := http.StatusOK

	if h.pool != nil {
		if err := h.pool.Ping(r.Context()); err != nil {
			status = models.HealthStatusFail
			httpStatus = http.StatusServiceUnavailable
		}
	}

	health := models.Health{
		Status: status,
		Time:   models.Timestamp(time.Now()),
	}
	response.JSON(w, r, httpStatus, health)
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	now := models.Timestamp(time.Now())
	overall := models.HealthStatusOK

	var subsystems []models.SubsystemStatus
	if h.pool != nil {
		dbStatus := models.HealthStatusOK
		if err := h.pool.Ping(r.Context()); err != nil {
			dbStatus = models.HealthStatusFail
			overall = models.HealthStatusDegraded
		}
		subsystems = append(subsystems, models.SubsystemStatus{
			Name:   "postgres",
			Status: dbStatus,
		})
	}

	var providers []models.ProviderStatus
	if h.registry != nil {
		for _, ph := range h.registry.AllHealth() {
			providerStatus := models.HealthStatusOK
			if !ph.IsHealthy() {
				providerStatus = models.HealthStatusDegraded
				overall = models.HealthStatusDegraded
			}

			ps := models.ProviderStatus{
				Provider: ph.Name,
				Status:   providerStatus,
			}
			if ph.LastSuccessAt != nil {
				ts := models.Timestamp(*ph.LastSuccessAt)
				ps.LastSuccessAt = &ts
			}
			if ph.LastFailureAt != nil {
				ts := models.Timestamp(*ph.LastFailureAt)
				ps.LastFailureAt = &ts
			}
			if ph.LastError != "" {
				msg := ph.LastError
				ps.Message = &msg
			}
			providers = append(providers, ps)
		}
	}

	status := models.SystemStatus{
		Status:     overall,
		Time:       now,
		Subsystems: subsystems,
		Providers:  providers,
	}
	response.JSON(w, r, http.StatusOK, status)
}
