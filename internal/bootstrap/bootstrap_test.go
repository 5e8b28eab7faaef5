package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/pdf-converter/internal/config"
)

func TestBreakerConfigFollowsSettings(t *testing.T) {
	rc := breakerConfig(config.Config{
		ToolBreakerEnabled:      true,
		ToolBreakerMinRequests:  3,
		ToolBreakerFailureRatio: 0.4,
		ToolBreakerOpenTimeout:  time.Minute,
	})
	if !rc.BreakerEnabled || rc.BreakerMinRequests != 3 || rc.BreakerFailureRatio != 0.4 || rc.BreakerOpenTimeout != time.Minute {
		t.Fatalf("unexpected breaker config %+v", rc)
	}
	if rc.RetryMaxAttempts != 1 {
		t.Fatalf("tool calls must not be retried, got %d attempts", rc.RetryMaxAttempts)
	}

	off := breakerConfig(config.Config{})
	if off.BreakerEnabled {
		t.Fatalf("expected breaker to follow TOOL_BREAKER_ENABLED=false")
	}
}

func TestOpenRecorderDisabledWithoutSinks(t *testing.T) {
	recorder, closeFn, err := openRecorder(context.Background(), config.Config{})
	if err != nil {
		t.Fatalf("openRecorder() error = %v", err)
	}
	if recorder != nil {
		t.Fatalf("expected no recorder, got %T", recorder)
	}
	closeFn()
}

func TestNewWorkerNeedsBothSinks(t *testing.T) {
	if _, err := NewWorker(context.Background(), config.Config{NATSURL: "nats://127.0.0.1:4222"}); err == nil {
		t.Fatalf("expected error without POSTGRES_DSN")
	}
}
