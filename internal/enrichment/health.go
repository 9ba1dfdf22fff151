package enrichment

import (
	"context"
	"fmt"
	"time"

	"github.com/sells-group/catalog-enrich/internal/model"
)

// HealthCheck checks the store and the gateway. It never panics; a failure
// to run a check is reported as unhealthy.
func (s *Service) HealthCheck(ctx context.Context) (report model.SystemHealth) {
	report = model.SystemHealth{
		Status:     model.HealthUnhealthy,
		Components: make(map[string]model.HealthStatus, 2),
		CheckedAt:  time.Now().UTC(),
	}
	defer func() {
		if r := recover(); r != nil {
			report.Status = model.HealthUnhealthy
			report.Error = fmt.Sprintf("health check failed: %v", r)
		}
	}()

	report.Components["database"] = s.store.HealthCheck(ctx)
	if s.gateway != nil {
		report.Components["gateway"] = s.gateway.HealthCheck(ctx)
	} else {
		report.Components["gateway"] = model.HealthStatus{
			Service: "firecrawl",
			Status:  model.HealthUnhealthy,
			Error:   "gateway not configured",
		}
	}

	for _, c := range report.Components {
		if !c.Healthy() {
			return report
		}
	}
	report.Status = model.HealthHealthy
	return report
}
