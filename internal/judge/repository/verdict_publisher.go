package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lessonjudge/internal/common/mq"
	"lessonjudge/internal/judge/model"
	lessonmodel "lessonjudge/internal/lesson/model"
	appErr "lessonjudge/pkg/errors"
)

// VerdictPublisher hands finished verdicts to the attempt recorder.
type VerdictPublisher interface {
	PublishVerdict(ctx context.Context, runID, userID string, res lessonmodel.TestResult) error
}

// MQVerdictPublisher publishes verdict events to a message queue.
type MQVerdictPublisher struct {
	producer mq.Producer
	topic    string
	now      func() time.Time
}

// NewMQVerdictPublisher creates a new MQ verdict publisher.
func NewMQVerdictPublisher(producer mq.Producer, topic string) *MQVerdictPublisher {
	return &MQVerdictPublisher{producer: producer, topic: topic, now: time.Now}
}

// PublishVerdict publishes a final verdict event keyed by step id.
func (p *MQVerdictPublisher) PublishVerdict(ctx context.Context, runID, userID string, res lessonmodel.TestResult) error {
	if p == nil || p.producer == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("verdict publisher is not configured")
	}
	if p.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("verdict topic is required")
	}
	if res.StepID == "" {
		return appErr.ValidationError("step_id", "required")
	}
	event := model.VerdictEvent{
		Type:      model.VerdictEventFinal,
		RunID:     runID,
		StepID:    res.StepID,
		UserID:    userID,
		Passed:    res.Passed,
		Results:   res.Results,
		CreatedAt: p.now().Unix(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal verdict event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = res.StepID
	if userID != "" {
		message.ID = userID + ":" + res.StepID
	}
	message.SetHeader("event-type", string(model.VerdictEventFinal))
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.MessageQueueError, "publish verdict event failed")
	}
	return nil
}
