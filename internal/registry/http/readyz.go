package http

import (
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skillchain/registry/internal/registry/store"
	"github.com/skillchain/registry/pkg/httpx"
)

// ReadyzHandler godoc
//
//	@Summary		Readiness Check Endpoint
//	@Description	Readiness probe checking the relational store and Redis. A database
//	@Description	failure is fatal to readiness; a Redis failure is reported as degraded
//	@Description	because rate limiting and the credential cache both fall back.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		503	{object}	HealthResponse
//	@Router			/readyz [get].
func ReadyzHandler(
	startTime time.Time,
	version string,
	st store.Store,
	rdb redis.Cmdable,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &HealthChecks{
			Database: "ok",
			Cache:    "ok",
		}
		overallStatus := "ok"
		statusCode := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		// Redis loss degrades but does not fail readiness: the limiter and
		// credential cache both run without it.
		if err := rdb.Ping(r.Context()).Err(); err != nil {
			checks.Cache = "error: " + err.Error()
			if overallStatus == "ok" {
				overallStatus = "degraded"
			}
		}

		httpx.WriteJSON(w, statusCode, HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
