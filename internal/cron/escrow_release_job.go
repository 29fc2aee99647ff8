package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/kwabenaosei/agritrade-backend/pkg/logger"
	"github.com/kwabenaosei/agritrade-backend/pkg/metrics"
)

const defaultReleaseBatchSize = 100

// escrowReleaser is the sweep entrypoint on the escrow service.
type escrowReleaser interface {
	ReleaseDue(ctx context.Context, now time.Time, limit int) (int, error)
}

// EscrowReleaseJobParams configure the auto-release sweep.
type EscrowReleaseJobParams struct {
	Logger    *logger.Logger
	Escrow    escrowReleaser
	Metrics   *metrics.CronJobMetrics
	BatchSize int
}

// NewEscrowReleaseJob builds the job that releases held escrows whose
// auto-release date has passed. Disputed escrows are never touched;
// they leave the due set when the dispute freezes them.
func NewEscrowReleaseJob(params EscrowReleaseJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Escrow == nil {
		return nil, fmt.Errorf("escrow service required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultReleaseBatchSize
	}
	return &escrowReleaseJob{
		logg:      params.Logger,
		escrow:    params.Escrow,
		metrics:   params.Metrics,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

type escrowReleaseJob struct {
	logg      *logger.Logger
	escrow    escrowReleaser
	metrics   *metrics.CronJobMetrics
	batchSize int
	now       func() time.Time
}

func (j *escrowReleaseJob) Name() string { return "escrow-auto-release" }

func (j *escrowReleaseJob) Run(ctx context.Context) error {
	released, err := j.escrow.ReleaseDue(ctx, j.now().UTC(), j.batchSize)
	j.metrics.AddProcessed(j.Name(), released)
	if err != nil {
		return fmt.Errorf("release due escrows: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"released": released})
	j.logg.Info(logCtx, "escrow auto-release sweep complete")
	return nil
}
