package repository_test

import (
	"context"
	"testing"
	"time"

	"lessonjudge/internal/common/cache"
	"lessonjudge/internal/judge/repository"
	"lessonjudge/internal/judge/sandbox"
	"lessonjudge/internal/judge/sandbox/result"
	lessonmodel "lessonjudge/internal/lesson/model"
	appErr "lessonjudge/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRepo(t *testing.T) (*repository.StatusRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return repository.NewStatusRepository(c, time.Minute), mr
}

func TestStatusRepositoryReportAndGet(t *testing.T) {
	repo, mr := newRepo(t)
	ctx := context.Background()

	err := repo.ReportStatus(ctx, sandbox.StatusUpdate{
		RunID:      "run-1",
		StepID:     "step-1",
		Status:     result.StatusRunning,
		Language:   lessonmodel.LanguageTSX,
		TotalTests: 3,
		ReceivedAt: 100,
	})
	if err != nil {
		t.Fatalf("report status: %v", err)
	}
	got, err := repo.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if got.Status != result.StatusRunning || got.StepID != "step-1" || got.Progress.TotalTests != 3 {
		t.Fatalf("unexpected status: %+v", got)
	}
	if ttl := mr.TTL("judge:status:run-1"); ttl != time.Minute {
		t.Fatalf("expected ttl 1m, got %v", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := repo.Get(ctx, "run-1"); !appErr.Is(err, appErr.NotFound) {
		t.Fatalf("expected not found after expiry, got %v", err)
	}
}

func TestStatusRepositorySaveResult(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	res := result.JudgeResult{
		RunID:   "run-2",
		StepID:  "step-2",
		Status:  result.StatusFinished,
		Verdict: result.VerdictWA,
		Tests: []result.RunResult{
			{TestID: "a", Passed: true, Verdict: result.VerdictAC},
			{TestID: "b", Passed: false, Verdict: result.VerdictWA, Message: "nope"},
		},
	}
	if err := repo.SaveResult(ctx, res); err != nil {
		t.Fatalf("save result: %v", err)
	}
	got, err := repo.Get(ctx, "run-2")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if got.Verdict != result.VerdictWA || len(got.Tests) != 2 || got.Progress.DoneTests != 2 {
		t.Fatalf("unexpected status: %+v", got)
	}
	if got.Tests[1].Message != "nope" {
		t.Fatalf("expected message to survive, got %q", got.Tests[1].Message)
	}
}

func TestStatusRepositoryValidation(t *testing.T) {
	repo, _ := newRepo(t)
	if _, err := repo.Get(context.Background(), ""); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := repo.ReportStatus(context.Background(), sandbox.StatusUpdate{}); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected validation error, got %v", err)
	}

	empty := repository.NewStatusRepository(nil, 0)
	if _, err := empty.Get(context.Background(), "x"); !appErr.Is(err, appErr.CacheError) {
		t.Fatalf("expected cache error, got %v", err)
	}
}
