package cron

import (
	"context"
	"errors"
	"testing"
)

type stubRecovery struct {
	released int
	err      error
	calls    int
}

func (s *stubRecovery) ReleaseExpired(context.Context) (int, error) {
	s.calls++
	return s.released, s.err
}

func TestReservationReaperJobRun(t *testing.T) {
	t.Parallel()

	recovery := &stubRecovery{released: 3}
	job, err := NewReservationReaperJob(recovery, nil)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if job.Name() != "reservation_reaper" {
		t.Fatalf("unexpected name: %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if recovery.calls != 1 {
		t.Fatalf("expected 1 call, got %d", recovery.calls)
	}
}

func TestReservationReaperJobPropagatesError(t *testing.T) {
	t.Parallel()

	recovery := &stubRecovery{err: errors.New("db down")}
	job, err := NewReservationReaperJob(recovery, nil)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewReservationReaperJobRequiresRecovery(t *testing.T) {
	t.Parallel()

	if _, err := NewReservationReaperJob(nil, nil); err == nil {
		t.Fatal("expected error for nil recovery service")
	}
}
