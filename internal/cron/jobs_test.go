package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kwabenaosei/agritrade-backend/pkg/logger"
)

type fakeReleaser struct {
	released int
	limit    int
	err      error
}

func (f *fakeReleaser) ReleaseDue(_ context.Context, _ time.Time, limit int) (int, error) {
	f.limit = limit
	return f.released, f.err
}

type fakeExpirer struct {
	expired int
	err     error
}

func (f *fakeExpirer) ExpireStale(_ context.Context, _ time.Time, _ int) (int, error) {
	return f.expired, f.err
}

func TestEscrowReleaseJobRunsSweep(t *testing.T) {
	releaser := &fakeReleaser{released: 3}
	job, err := NewEscrowReleaseJob(EscrowReleaseJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Escrow: releaser,
	})
	if err != nil {
		t.Fatalf("NewEscrowReleaseJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if releaser.limit != defaultReleaseBatchSize {
		t.Fatalf("expected default batch size, got %d", releaser.limit)
	}
}

func TestEscrowReleaseJobPropagatesErrors(t *testing.T) {
	releaser := &fakeReleaser{err: errors.New("db down")}
	job, err := NewEscrowReleaseJob(EscrowReleaseJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Escrow: releaser,
	})
	if err != nil {
		t.Fatalf("NewEscrowReleaseJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error from failed sweep")
	}
}

func TestCartExpiryJobRunsSweep(t *testing.T) {
	expirer := &fakeExpirer{expired: 2}
	job, err := NewCartExpiryJob(CartExpiryJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Carts:  expirer,
	})
	if err != nil {
		t.Fatalf("NewCartExpiryJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestJobConstructorsRequireDependencies(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test"})
	if _, err := NewEscrowReleaseJob(EscrowReleaseJobParams{Logger: logg}); err == nil {
		t.Fatal("expected error without escrow service")
	}
	if _, err := NewCartExpiryJob(CartExpiryJobParams{Carts: &fakeExpirer{}}); err == nil {
		t.Fatal("expected error without logger")
	}
}
