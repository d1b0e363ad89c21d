package cron

import (
	"context"
	"fmt"

	"github.com/tradeyard/tradeyard-backend/internal/checkout"
	"github.com/tradeyard/tradeyard-backend/pkg/logger"
)

// ReservationReaperJob releases reservations whose settlement window closed
// without a successful settle.
type ReservationReaperJob struct {
	recovery checkout.RecoveryService
	logg     *logger.Logger
}

// NewReservationReaperJob builds the reaper job.
func NewReservationReaperJob(recovery checkout.RecoveryService, logg *logger.Logger) (*ReservationReaperJob, error) {
	if recovery == nil {
		return nil, fmt.Errorf("recovery service required")
	}
	return &ReservationReaperJob{recovery: recovery, logg: logg}, nil
}

// Name implements Job.
func (j *ReservationReaperJob) Name() string {
	return "reservation_reaper"
}

// Run implements Job. Partial failures surface as an error so the cycle is
// recorded as failed, but every releasable reservation in the batch has
// already been handled by then.
func (j *ReservationReaperJob) Run(ctx context.Context) error {
	released, err := j.recovery.ReleaseExpired(ctx)
	if err != nil {
		return fmt.Errorf("release expired reservations: %w", err)
	}
	if j.logg != nil && released > 0 {
		logCtx := j.logg.WithField(ctx, "released", released)
		j.logg.Info(logCtx, "reaper released reservations")
	}
	return nil
}
