package eventbus

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/omnidesk/omnidesk/pkg/logging"
)

type queuedEvent struct {
	conversationID string
}

func TestPublisher_Publish_NoMatch(t *testing.T) {
	type otherEvent struct{}
	logBuffer := bytes.Buffer{}
	log := logrus.New()
	log.SetOutput(&logBuffer)
	log.SetLevel(logrus.WarnLevel)
	publisher := NewEventPublisher(log)
	publisher.Subscribe(func(e *queuedEvent) {
		t.Error("should not be called")
	})
	publisher.Publish(&otherEvent{})

	if output := logBuffer.String(); output == "" {
		t.Error("should have logged")
	} else if !strings.Contains(output, "eventbus.Publish: no matching subscribers") {
		t.Errorf("should have contained no matching subscribers but got: %q", output)
	}
}

func TestPublisher_Subscribe(t *testing.T) {
	publisher := NewEventPublisher(logging.ConsoleLogger(logrus.WarnLevel))
	called := false
	var got string
	publisher.Subscribe(func(e *queuedEvent) {
		called = true
		got = e.conversationID
	})
	publisher.Publish(&queuedEvent{conversationID: "c1"})
	if !called {
		t.Error("should be called")
	}
	if got != "c1" {
		t.Errorf("expected: %v, got: %v", "c1", got)
	}
}

func TestPublisher_Unsubscribe(t *testing.T) {
	publisher := NewEventPublisher(logging.ConsoleLogger(logrus.PanicLevel))
	handler := func(e *queuedEvent) {
		t.Error("should not be called after unsubscribe")
	}
	publisher.Subscribe(handler)
	publisher.Unsubscribe(handler)
	if publisher.SubscribersCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", publisher.SubscribersCount())
	}
	publisher.Publish(&queuedEvent{})
}

func TestPublisher_PanickingHandlerDoesNotBlockOthers(t *testing.T) {
	publisher := NewEventPublisher(logging.ConsoleLogger(logrus.PanicLevel))
	called := false
	publisher.Subscribe(func(e *queuedEvent) {
		panic("boom")
	})
	publisher.Subscribe(func(e *queuedEvent) {
		called = true
	})
	publisher.Publish(&queuedEvent{})
	if !called {
		t.Error("second subscriber should still run")
	}
}

func TestMatchSignature(t *testing.T) {
	type a struct{}
	type b struct{}
	if !MatchSignature(func(e *a) {}, []interface{}{&a{}}) {
		t.Error("expected true")
	}
	if MatchSignature(func(e *a) {}, []interface{}{&b{}}) {
		t.Error("expected false")
	}
	if MatchSignature(func(e *a) {}, []interface{}{}) {
		t.Error("expected false")
	}
	if MatchSignature(func(e *a) {}, []interface{}{&a{}, &a{}}) {
		t.Error("expected false")
	}
	if !MatchSignature(func(ctx context.Context) {}, []interface{}{context.Background()}) {
		t.Error("expected true")
	}
	if MatchSignature("not a func", []interface{}{&a{}}) {
		t.Error("expected false")
	}
}
