package service

import (
	"context"
	"time"

	"lessonjudge/internal/judge/model"
	"lessonjudge/internal/judge/sandbox/result"
	appErr "lessonjudge/pkg/errors"
	"lessonjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// GetStatus returns the stored status of a run.
func (s *Service) GetStatus(ctx context.Context, runID string) (model.JudgeStatusResponse, error) {
	if s.statusRepo == nil {
		return model.JudgeStatusResponse{}, appErr.New(appErr.ServiceUnavailable).WithMessage("run status store is not configured")
	}
	return s.statusRepo.Get(ctx, runID)
}

func (s *Service) statusContext(ctx context.Context) (context.Context, context.CancelFunc) {
	// Status writes outlive a cancelled run so the failure stays visible.
	ctx = context.WithoutCancel(ctx)
	if s.statusTimeout > 0 {
		return context.WithTimeout(ctx, s.statusTimeout)
	}
	return ctx, func() {}
}

func (s *Service) saveStatus(ctx context.Context, status model.JudgeStatusResponse) {
	if s.statusRepo == nil {
		return
	}
	ctxStatus, cancel := s.statusContext(ctx)
	defer cancel()
	if err := s.statusRepo.Save(ctxStatus, status); err != nil {
		logger.Warn(ctx, "update status failed", zap.String("run_id", status.RunID), zap.Error(err))
	}
}

func (s *Service) saveResult(ctx context.Context, res result.JudgeResult) {
	if s.statusRepo == nil {
		return
	}
	ctxStatus, cancel := s.statusContext(ctx)
	defer cancel()
	if err := s.statusRepo.SaveResult(ctxStatus, res); err != nil {
		logger.Warn(ctx, "store final status failed", zap.String("run_id", res.RunID), zap.Error(err))
	}
}

func (s *Service) handleFailure(ctx context.Context, runID, stepID string, err error) error {
	code := appErr.GetCode(err)
	s.saveStatus(ctx, model.JudgeStatusResponse{
		RunID:        runID,
		StepID:       stepID,
		Status:       result.StatusFailed,
		Verdict:      result.VerdictSE,
		ErrorCode:    int(code),
		ErrorMessage: err.Error(),
		Timestamps:   result.Timestamps{FinishedAt: time.Now().Unix()},
	})
	logger.Warn(ctx, "run failed", zap.String("run_id", runID), zap.Int("code", int(code)), zap.Error(err))
	return err
}
