package batch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	judgemodel "lessonjudge/internal/judge/model"
	"lessonjudge/internal/lesson/model"
	appErr "lessonjudge/pkg/errors"
	"lessonjudge/pkg/utils/contextkey"
	"lessonjudge/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Judge runs and statically checks submissions.
type Judge interface {
	Run(ctx context.Context, req judgemodel.RunRequest) (judgemodel.RunResponse, error)
	Validate(ctx context.Context, source, language string) (model.ValidationResult, error)
}

// Options tunes a Reporter.
type Options struct {
	// Parallel is the number of steps validated at once. Values below 1 mean 1.
	Parallel int
	// StepTimeout bounds one step, tests and static check together. Zero
	// leaves the judge's own limits in charge.
	StepTimeout time.Duration
}

// Reporter validates the authored solution of every step in a corpus.
type Reporter struct {
	judge       Judge
	parallel    int
	stepTimeout time.Duration
	now         func() time.Time
}

// NewReporter creates a reporter backed by judge.
func NewReporter(judge Judge, opts Options) *Reporter {
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	return &Reporter{
		judge:       judge,
		parallel:    opts.Parallel,
		stepTimeout: opts.StepTimeout,
		now:         time.Now,
	}
}

type stepRef struct {
	lesson model.Lesson
	step   model.Step
}

// Run validates every step of course and builds the report. A failing or
// panicking step becomes a failure entry; the rest of the corpus still runs.
func (r *Reporter) Run(ctx context.Context, course model.Course) *Report {
	var refs []stepRef
	for _, lesson := range course.Lessons {
		for _, step := range lesson.Steps {
			refs = append(refs, stepRef{lesson: lesson, step: step})
		}
	}
	logger.Info(ctx, "lesson validation started",
		zap.Int("lessons", len(course.Lessons)),
		zap.Int("steps", len(refs)),
		zap.Int("parallel", r.parallel),
	)

	outcomes := make([]StepOutcome, len(refs))
	var g errgroup.Group
	g.SetLimit(r.parallel)
	for i, ref := range refs {
		g.Go(func() error {
			outcomes[i] = r.validateStep(ctx, ref.lesson, ref.step)
			return nil
		})
	}
	_ = g.Wait()

	rep := Build(course, outcomes, r.now())
	logger.Info(ctx, "lesson validation finished",
		zap.Int("passed", rep.Summary.PassedSteps),
		zap.Int("failed", rep.Summary.FailedSteps),
	)
	return rep
}

func (r *Reporter) validateStep(ctx context.Context, lesson model.Lesson, step model.Step) (out StepOutcome) {
	out = StepOutcome{Lesson: lesson, Step: step}
	ctx = contextkey.With(ctx, contextkey.StepID, step.ID)
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error(ctx, "step validation panicked",
				zap.String("lesson_id", lesson.ID),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
			out.Passed = false
			out.Error = fmt.Sprintf("panic: %v", rec)
		}
	}()

	if r.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.stepTimeout)
		defer cancel()
	}

	validation, err := r.judge.Validate(ctx, step.Solution, string(step.Language))
	if err != nil {
		return r.stepError(ctx, out, err)
	}
	out.CodeValidation = &validation

	resp, err := r.judge.Run(ctx, judgemodel.RunRequest{
		StepID:     step.ID,
		Language:   string(step.Language),
		SourceCode: step.Solution,
		TestCases:  step.TestCases,
	})
	if err != nil {
		return r.stepError(ctx, out, err)
	}
	out.TestResult = &resp.TestResult
	out.Passed = resp.Passed && validation.Valid
	if !out.Passed {
		logger.Warn(ctx, "step solution failed validation",
			zap.String("lesson_id", lesson.ID),
			zap.Int("failed_tests", len(resp.Failed())),
			zap.Bool("code_valid", validation.Valid),
		)
	}
	return out
}

func (r *Reporter) stepError(ctx context.Context, out StepOutcome, err error) StepOutcome {
	wrapped := appErr.Wrap(err, appErr.StepValidationFailed)
	logger.Error(ctx, "step validation error",
		zap.String("lesson_id", out.Lesson.ID),
		zap.Error(wrapped),
	)
	out.Passed = false
	out.Error = wrapped.Error()
	return out
}
