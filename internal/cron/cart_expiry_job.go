package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/kwabenaosei/agritrade-backend/pkg/logger"
	"github.com/kwabenaosei/agritrade-backend/pkg/metrics"
)

const defaultExpiryBatchSize = 200

// cartExpirer is the sweep entrypoint on the cart service.
type cartExpirer interface {
	ExpireStale(ctx context.Context, now time.Time, limit int) (int, error)
}

// CartExpiryJobParams configure the stale cart sweep.
type CartExpiryJobParams struct {
	Logger    *logger.Logger
	Carts     cartExpirer
	Metrics   *metrics.CronJobMetrics
	BatchSize int
}

// NewCartExpiryJob builds the job that retires carts idle past their TTL.
func NewCartExpiryJob(params CartExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultExpiryBatchSize
	}
	return &cartExpiryJob{
		logg:      params.Logger,
		carts:     params.Carts,
		metrics:   params.Metrics,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

type cartExpiryJob struct {
	logg      *logger.Logger
	carts     cartExpirer
	metrics   *metrics.CronJobMetrics
	batchSize int
	now       func() time.Time
}

func (j *cartExpiryJob) Name() string { return "cart-expiry" }

func (j *cartExpiryJob) Run(ctx context.Context) error {
	expired, err := j.carts.ExpireStale(ctx, j.now().UTC(), j.batchSize)
	if err != nil {
		return fmt.Errorf("expire stale carts: %w", err)
	}
	j.metrics.AddProcessed(j.Name(), expired)
	logCtx := j.logg.WithFields(ctx, map[string]any{"expired": expired})
	j.logg.Info(logCtx, "cart expiry sweep complete")
	return nil
}
