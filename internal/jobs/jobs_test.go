package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stubMarker struct {
	calls    int
	dueAfter time.Duration
	count    int
	err      error
	panics   bool
}

func (m *stubMarker) MarkOverdue(_ context.Context, dueAfter time.Duration) (int, error) {
	m.calls++
	m.dueAfter = dueAfter
	if m.panics {
		panic("ledger unavailable")
	}
	return m.count, m.err
}

func TestRunOverdueSweepLogsCount(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	marker := &stubMarker{count: 3}

	runOverdueSweep(context.Background(), marker, 72*time.Hour, zap.New(core))

	if marker.calls != 1 || marker.dueAfter != 72*time.Hour {
		t.Fatalf("unexpected marker calls %+v", marker)
	}
	entries := logs.FilterMessage("overdue sweep finished").All()
	if len(entries) != 1 || entries[0].ContextMap()["marked"] != int64(3) {
		t.Fatalf("expected finished log with count, got %+v", logs.All())
	}
}

func TestRunOverdueSweepSurvivesFailures(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	runOverdueSweep(context.Background(), &stubMarker{err: errors.New("db down")}, time.Hour, logger)
	runOverdueSweep(context.Background(), &stubMarker{panics: true}, time.Hour, logger)

	if logs.FilterMessage("overdue sweep failed").Len() != 1 {
		t.Fatalf("expected failure logged")
	}
	if logs.FilterMessage("overdue sweep panicked").Len() != 1 {
		t.Fatalf("expected panic logged")
	}
}

func TestAddOverdueSweepValidatesInput(t *testing.T) {
	s := New(zap.NewNop(), nil)

	if err := s.AddOverdueSweep("not a schedule", &stubMarker{}, time.Hour); err == nil {
		t.Fatalf("expected invalid spec rejected")
	}
	if err := s.AddOverdueSweep("@daily", &stubMarker{}, 0); err == nil {
		t.Fatalf("expected zero due period rejected")
	}
	if err := s.AddOverdueSweep("0 30 6 * * *", &stubMarker{}, 24*time.Hour); err != nil {
		t.Fatalf("expected seconds spec accepted, got %v", err)
	}

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
