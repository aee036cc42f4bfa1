// Package repository persists run status and publishes verdict events.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lessonjudge/internal/common/cache"
	"lessonjudge/internal/judge/model"
	"lessonjudge/internal/judge/sandbox"
	"lessonjudge/internal/judge/sandbox/result"
	appErr "lessonjudge/pkg/errors"
)

const statusKeyPrefix = "judge:status:"

// DefaultStatusTTL bounds how long a finished run stays queryable.
const DefaultStatusTTL = 30 * time.Minute

// StatusRepository handles status persistence.
type StatusRepository struct {
	cache cache.BasicOps
	TTL   time.Duration
}

var _ sandbox.StatusReporter = (*StatusRepository)(nil)

// NewStatusRepository creates a new repository.
func NewStatusRepository(cacheClient cache.BasicOps, ttl time.Duration) *StatusRepository {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &StatusRepository{cache: cacheClient, TTL: ttl}
}

// Get returns status by run id.
func (r *StatusRepository) Get(ctx context.Context, runID string) (model.JudgeStatusResponse, error) {
	if runID == "" {
		return model.JudgeStatusResponse{}, appErr.ValidationError("run_id", "required")
	}
	if r.cache == nil {
		return model.JudgeStatusResponse{}, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	val, err := r.cache.Get(ctx, statusKeyPrefix+runID)
	if err != nil {
		return model.JudgeStatusResponse{}, appErr.Wrapf(err, appErr.CacheError, "load status failed")
	}
	if val == "" {
		return model.JudgeStatusResponse{}, appErr.New(appErr.NotFound).WithMessage("run status not found")
	}
	var resp model.JudgeStatusResponse
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		return model.JudgeStatusResponse{}, appErr.Wrapf(err, appErr.CacheError, "decode status failed")
	}
	return resp, nil
}

// Save persists status.
func (r *StatusRepository) Save(ctx context.Context, status model.JudgeStatusResponse) error {
	if status.RunID == "" {
		return appErr.ValidationError("run_id", "required")
	}
	if r.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status failed: %w", err)
	}
	if err := r.cache.Set(ctx, statusKeyPrefix+status.RunID, string(data), r.TTL); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store status failed")
	}
	return nil
}

// ReportStatus stores an intermediate update from the sandbox worker.
func (r *StatusRepository) ReportStatus(ctx context.Context, update sandbox.StatusUpdate) error {
	return r.Save(ctx, model.JudgeStatusResponse{
		RunID:    update.RunID,
		StepID:   update.StepID,
		Status:   update.Status,
		Language: update.Language,
		Timestamps: result.Timestamps{
			ReceivedAt: update.ReceivedAt,
			FinishedAt: update.FinishedAt,
		},
		Progress: model.Progress{TotalTests: update.TotalTests, DoneTests: update.DoneTests},
	})
}

// SaveResult stores the final result of a run.
func (r *StatusRepository) SaveResult(ctx context.Context, res result.JudgeResult) error {
	return r.Save(ctx, FromJudgeResult(res))
}

// FromJudgeResult converts a finished run into its status view.
func FromJudgeResult(res result.JudgeResult) model.JudgeStatusResponse {
	return model.JudgeStatusResponse{
		RunID:      res.RunID,
		StepID:     res.StepID,
		Status:     res.Status,
		Verdict:    res.Verdict,
		Language:   res.Language,
		Summary:    res.Summary,
		Compile:    res.Compile,
		Tests:      res.Tests,
		Timestamps: res.Timestamps,
		Progress:   model.Progress{TotalTests: len(res.Tests), DoneTests: len(res.Tests)},
	}
}
