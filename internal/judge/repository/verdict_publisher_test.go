package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"lessonjudge/internal/common/mq"
	"lessonjudge/internal/judge/model"
	"lessonjudge/internal/judge/repository"
	lessonmodel "lessonjudge/internal/lesson/model"
	appErr "lessonjudge/pkg/errors"
)

type fakeProducer struct {
	topic    string
	messages []*mq.Message
	err      error
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, message *mq.Message) error {
	if f.err != nil {
		return f.err
	}
	f.topic = topic
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeProducer) PublishBatch(ctx context.Context, topic string, messages []*mq.Message) error {
	for _, m := range messages {
		if err := f.Publish(ctx, topic, m); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func TestPublishVerdict(t *testing.T) {
	producer := &fakeProducer{}
	pub := repository.NewMQVerdictPublisher(producer, "lesson.verdicts")

	res := lessonmodel.TestResult{
		StepID: "step-1",
		Passed: true,
		Results: []lessonmodel.TestCaseResult{
			{TestID: "t1", Description: "adds", Passed: true},
		},
	}
	if err := pub.PublishVerdict(context.Background(), "run-1", "user-9", res); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if producer.topic != "lesson.verdicts" || len(producer.messages) != 1 {
		t.Fatalf("expected one message on lesson.verdicts, got %d on %q", len(producer.messages), producer.topic)
	}
	msg := producer.messages[0]
	if msg.ID != "user-9:step-1" {
		t.Fatalf("expected partition key user-9:step-1, got %q", msg.ID)
	}
	var event model.VerdictEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Type != model.VerdictEventFinal || !event.Passed || event.UserID != "user-9" || len(event.Results) != 1 {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.CreatedAt == 0 {
		t.Fatalf("expected createdAt to be set")
	}
}

func TestPublishVerdictErrors(t *testing.T) {
	res := lessonmodel.TestResult{StepID: "step-1"}

	var nilPub *repository.MQVerdictPublisher
	if err := nilPub.PublishVerdict(context.Background(), "r", "", res); !appErr.Is(err, appErr.ServiceUnavailable) {
		t.Fatalf("expected service unavailable, got %v", err)
	}
	if err := repository.NewMQVerdictPublisher(&fakeProducer{}, "t").PublishVerdict(context.Background(), "r", "", lessonmodel.TestResult{}); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected validation error, got %v", err)
	}
	failing := &fakeProducer{err: errors.New("broker down")}
	if err := repository.NewMQVerdictPublisher(failing, "t").PublishVerdict(context.Background(), "r", "", res); !appErr.Is(err, appErr.MessageQueueError) {
		t.Fatalf("expected message queue error, got %v", err)
	}
}
