package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestSweepMetricsRegisterOnce(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSweepMetrics(registry, Config{ServiceName: "test", Environment: "test"})

	m.IncJobRun("dispatch_messages")
	m.ObserveJobDuration("dispatch_messages", 120*time.Millisecond)
	m.AddBatchProcessed("dispatch_messages", "messages", 3)

	// Re-registering against the same registry must not panic.
	_ = newSweepMetrics(registry, Config{ServiceName: "test", Environment: "test"})
}

func TestClassifySweepErrorType(t *testing.T) {
	if got := ClassifySweepErrorType(context.DeadlineExceeded); got != SweepErrorTypeDeadlineExceeded {
		t.Fatalf("expected deadline_exceeded, got %s", got)
	}
	if got := ClassifySweepErrorType(errors.New("boom")); got != SweepErrorTypeUnknown {
		t.Fatalf("expected unknown, got %s", got)
	}
}
