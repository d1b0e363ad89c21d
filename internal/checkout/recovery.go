package checkout

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// ReleaseExpired restores inventory for every reservation whose settlement
// window has closed. Each order is released in its own transaction so one
// poisoned row cannot block the rest of the batch; failures are aggregated
// and the scan continues.
func (s *service) ReleaseExpired(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.ReservationWindow)
	ids, err := s.reservations.ListExpiredIDs(ctx, cutoff, s.cfg.RecoveryBatchSize)
	if err != nil {
		return 0, err
	}

	released := 0
	var errs error
	for _, id := range ids {
		if err := s.releaseOne(ctx, id); err != nil {
			errs = multierr.Append(errs, err)
			if s.logg != nil {
				logCtx := s.logg.WithOrderID(ctx, id.String())
				s.logg.Error(logCtx, "release expired reservation", err)
			}
			continue
		}
		released++
	}

	if s.logg != nil && released > 0 {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"released": released,
			"scanned":  len(ids),
		})
		s.logg.Info(logCtx, "expired reservations released")
	}
	return released, errs
}

func (s *service) releaseOne(ctx context.Context, id uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.reservations.WithTx(tx).GetByIDForUpdate(ctx, id)
		if err != nil {
			// Settled or already released between the scan and the lock.
			if isNotFound(err) {
				return nil
			}
			return err
		}
		if !s.expired(order) {
			return nil
		}
		return s.releaseLocked(ctx, tx, order)
	})
}
