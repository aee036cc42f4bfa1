// Package service is the engine facade: it runs submissions against their
// test cases, validates code statically and tracks run status.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lessonjudge/internal/judge/model"
	"lessonjudge/internal/judge/repository"
	"lessonjudge/internal/judge/sandbox"
	"lessonjudge/internal/judge/sandbox/result"
	"lessonjudge/internal/judge/sandbox/spec"
	"lessonjudge/internal/judge/validator"
	lessonmodel "lessonjudge/internal/lesson/model"
	appErr "lessonjudge/pkg/errors"
	"lessonjudge/pkg/utils/contextkey"
	"lessonjudge/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service handles judge tasks.
type Service struct {
	judge         sandbox.Service
	validator     *validator.Validator
	statusRepo    *repository.StatusRepository
	publisher     repository.VerdictPublisher
	limits        spec.ResourceLimit
	runTimeout    time.Duration
	statusTimeout time.Duration
	queueWait     time.Duration
	sem           chan struct{}
}

// Config holds service dependencies and settings.
type Config struct {
	Judge     sandbox.Service
	Validator *validator.Validator
	// StatusRepo and Publisher are optional.
	StatusRepo *repository.StatusRepository
	Publisher  repository.VerdictPublisher
	// Limits override the per-dialect task profile for every run.
	Limits        spec.ResourceLimit
	RunTimeout    time.Duration
	StatusTimeout time.Duration
	// QueueWait is how long a run waits for a free slot before JudgeQueueFull.
	QueueWait      time.Duration
	MaxConcurrency int
}

// NewService creates a new judge service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Judge == nil {
		return nil, fmt.Errorf("judge is required")
	}
	if cfg.Validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	poolSize := cfg.MaxConcurrency
	if poolSize <= 0 {
		poolSize = 1
	}
	queueWait := cfg.QueueWait
	if queueWait <= 0 {
		queueWait = 2 * time.Second
	}
	return &Service{
		judge:         cfg.Judge,
		validator:     cfg.Validator,
		statusRepo:    cfg.StatusRepo,
		publisher:     cfg.Publisher,
		limits:        cfg.Limits,
		runTimeout:    cfg.RunTimeout,
		statusTimeout: cfg.StatusTimeout,
		queueWait:     queueWait,
		sem:           make(chan struct{}, poolSize),
	}, nil
}

// RunTests evaluates typescript source against testCases. It never fails:
// tests cut short by the run timeout are TLE, and a run that cannot complete
// at all marks every test case failed with the reason.
func (s *Service) RunTests(ctx context.Context, source string, testCases []lessonmodel.TestCase, stepID string) lessonmodel.TestResult {
	resp, err := s.Run(ctx, model.RunRequest{StepID: stepID, SourceCode: source, TestCases: testCases})
	if err != nil {
		return failedResult(stepID, testCases, err)
	}
	return resp.TestResult
}

// Run evaluates one submission and records its status and verdict.
func (s *Service) Run(ctx context.Context, req model.RunRequest) (model.RunResponse, error) {
	lang, ok := lessonmodel.ParseLanguage(req.Language)
	if !ok {
		return model.RunResponse{}, appErr.New(appErr.LanguageNotSupported).WithMessagef("unsupported language: %s", req.Language)
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx = contextkey.With(ctx, contextkey.RunID, runID)
	ctx = contextkey.With(ctx, contextkey.StepID, req.StepID)
	ctx = contextkey.With(ctx, contextkey.UserID, req.UserID)
	receivedAt := time.Now().Unix()
	s.saveStatus(ctx, model.JudgeStatusResponse{
		RunID:      runID,
		StepID:     req.StepID,
		Status:     result.StatusPending,
		Language:   lang,
		Timestamps: result.Timestamps{ReceivedAt: receivedAt},
		Progress:   model.Progress{TotalTests: len(req.TestCases)},
	})

	if err := s.acquireSlot(ctx); err != nil {
		return model.RunResponse{}, s.handleFailure(ctx, runID, req.StepID, err)
	}
	defer s.releaseSlot()

	ctxRun := ctx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctxRun, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}
	res, err := s.judge.Judge(ctxRun, sandbox.EvalRequest{
		RunID:      runID,
		StepID:     req.StepID,
		Language:   lang,
		Source:     req.SourceCode,
		TestCases:  req.TestCases,
		Limits:     s.limits,
		ReceivedAt: receivedAt,
	})
	if err != nil && errors.Is(ctxRun.Err(), context.DeadlineExceeded) {
		// the deadline hit before any test ran, e.g. during compilation
		logger.Warn(ctx, "run timed out before evaluation", zap.Error(err))
		res, err = timedOutResult(runID, req.StepID, lang, req.TestCases, receivedAt), nil
	}
	if err != nil {
		return model.RunResponse{}, s.handleFailure(ctx, runID, req.StepID, err)
	}

	s.saveResult(ctx, res)
	tr := res.TestResult()
	if s.publisher != nil {
		if err := s.publisher.PublishVerdict(context.WithoutCancel(ctx), runID, req.UserID, tr); err != nil {
			logger.Warn(ctx, "publish verdict failed", zap.Error(err))
		}
	}
	return model.RunResponse{RunID: runID, TestResult: tr, Feedback: sandbox.FormatResults(tr)}, nil
}

// ValidateCode statically checks typescript source.
func (s *Service) ValidateCode(ctx context.Context, source string) lessonmodel.ValidationResult {
	return s.validator.Validate(ctx, source, lessonmodel.LanguageTypeScript)
}

// Validate statically checks source in the named dialect.
func (s *Service) Validate(ctx context.Context, source, language string) (lessonmodel.ValidationResult, error) {
	lang, ok := lessonmodel.ParseLanguage(language)
	if !ok {
		return lessonmodel.ValidationResult{}, appErr.New(appErr.LanguageNotSupported).WithMessagef("unsupported language: %s", language)
	}
	return s.validator.Validate(ctx, source, lang), nil
}

func (s *Service) acquireSlot(ctx context.Context) error {
	timer := time.NewTimer(s.queueWait)
	defer timer.Stop()
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return appErr.Wrap(ctx.Err(), appErr.Timeout)
	case <-timer.C:
		return appErr.New(appErr.JudgeQueueFull).WithMessage("judge is at capacity")
	}
}

func (s *Service) releaseSlot() {
	select {
	case <-s.sem:
	default:
	}
}

func timedOutResult(runID, stepID string, lang lessonmodel.Language, testCases []lessonmodel.TestCase, receivedAt int64) result.JudgeResult {
	res := result.JudgeResult{
		RunID:      runID,
		StepID:     stepID,
		Status:     result.StatusFinished,
		Verdict:    result.VerdictTLE,
		Language:   lang,
		Tests:      make([]result.RunResult, 0, len(testCases)),
		Timestamps: result.Timestamps{ReceivedAt: receivedAt, FinishedAt: time.Now().Unix()},
	}
	for _, tc := range testCases {
		res.Tests = append(res.Tests, result.RunResult{
			TestID:      tc.ID,
			Description: tc.Description,
			Verdict:     result.VerdictTLE,
			Message:     "Test timeout",
		})
	}
	if len(testCases) > 0 {
		res.Summary.FailedTestID = testCases[0].ID
	}
	return res
}

func failedResult(stepID string, testCases []lessonmodel.TestCase, err error) lessonmodel.TestResult {
	msg := appErr.GetError(err).Message
	if strings.TrimSpace(msg) == "" {
		msg = err.Error()
	}
	out := lessonmodel.TestResult{StepID: stepID, Results: make([]lessonmodel.TestCaseResult, 0, len(testCases))}
	for _, tc := range testCases {
		out.Results = append(out.Results, lessonmodel.TestCaseResult{
			TestID:       tc.ID,
			Description:  tc.Description,
			Passed:       false,
			ErrorMessage: msg,
			Verdict:      result.VerdictSE,
		})
	}
	out.Passed = lessonmodel.AllPassed(out.Results)
	return out
}
