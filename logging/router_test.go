package logging_test

import (
	"context"
	"testing"
	"time"

	"github.com/ulikoehler/Multiverse/logging"
	"github.com/ulikoehler/Multiverse/logging/sinks"
)

func TestRouterForwardsEventsToEveryNamedSink(t *testing.T) {
	mem := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	router, err := logging.NewRouter(logging.ClockFunc(time.Now), cfg, []logging.NamedSink{
		{Name: "memory", Sink: mem},
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}

	router.Publish(context.Background(), logging.Event{
		Type:     "session.bound",
		Severity: logging.SeverityInfo,
		Actor:    logging.EntityRef{ID: "sess-1", Kind: logging.EntityKindSession},
	})

	closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := router.Close(closeCtx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events := mem.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 forwarded event, got %d", len(events))
	}
	if events[0].Type != "session.bound" {
		t.Fatalf("expected event type session.bound, got %q", events[0].Type)
	}
	if events[0].Actor.ID != "sess-1" {
		t.Fatalf("expected actor id sess-1, got %q", events[0].Actor.ID)
	}
}

func TestRouterDropsEventsBelowMinimumSeverity(t *testing.T) {
	mem := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityWarn
	router, err := logging.NewRouter(logging.ClockFunc(time.Now), cfg, []logging.NamedSink{
		{Name: "memory", Sink: mem},
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}

	router.Publish(context.Background(), logging.Event{Type: "noise", Severity: logging.SeverityDebug})
	router.Publish(context.Background(), logging.Event{Type: "warning", Severity: logging.SeverityWarn})

	closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := router.Close(closeCtx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events := mem.Events()
	if len(events) != 1 || events[0].Type != "warning" {
		t.Fatalf("expected only the warning-severity event to reach the sink, got %+v", events)
	}
}
