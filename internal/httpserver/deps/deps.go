package deps

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrSnakeDoc/bountyboard/internal/core"
	"github.com/MrSnakeDoc/bountyboard/internal/logger"
)

type Deps struct {
	Logger         logger.Logger
	StartTime      time.Time
	Version        string
	Commit         string
	BuildDate      string
	GoVersion      string
	TimeNow        func() time.Time                // for testing, defaults to time.Now
	Core           *core.Core                      // engine behind every /api route
	Metrics        prometheus.Gatherer             // registry served on /metrics
	Ready          func(ctx context.Context) error // readiness check of optional backends, nil when none
	AllowedOrigins []string                        // CORS origins of the rendering layer
	AllowedCIDRS   []string                        // IPs allowed to access readyz/metrics endpoints
	TrustProxy     bool                            // true if running behind a trusted reverse proxy
	RequestTimeout time.Duration                   // per-request timeout of non-streaming routes
	LoginBurst     int                             // login attempts allowed at once per client IP
	LoginPerMin    int                             // login attempts refilled per minute per client IP
}

// Now returns the current time through TimeNow when set.
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
