package engine

import (
	"time"

	"github.com/ajitpratap0/cartsync/pkg/clients"
	"github.com/ajitpratap0/cartsync/pkg/memguard"
	"github.com/ajitpratap0/cartsync/pkg/metrics"
)

// Report summarizes one completed sync: processed counts, wall-clock
// duration, the metrics snapshot for the invocation, and the observed
// rate-limit and memory state at completion.
type Report struct {
	Mode              string                 `json:"mode"`
	ProductsProcessed int64                  `json:"products_processed"`
	VariantsProcessed int64                  `json:"variants_processed"`
	Duration          time.Duration          `json:"-"`
	DurationMs        int64                  `json:"duration_ms"`
	Metrics           metrics.Snapshot       `json:"metrics"`
	RateLimit         clients.RateLimitState `json:"rate_limit"`
	Memory            memguard.Snapshot      `json:"memory"`
}
