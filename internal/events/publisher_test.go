package events

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestNewEventEnvelope(t *testing.T) {
	before := time.Now().UTC()
	event := NewEvent(EventTypeGradeSubmitted, GradeSubmittedEvent{UserID: "student-1", Score: 0.8})

	if event.ID == "" {
		t.Error("expected a generated ID")
	}
	if event.Type != EventTypeGradeSubmitted {
		t.Errorf("Type = %q", event.Type)
	}
	if event.Source != EventSource || event.Version != EventVersion {
		t.Errorf("Source, Version = %q, %q", event.Source, event.Version)
	}
	if event.Timestamp.Before(before) || event.Timestamp.After(time.Now().UTC()) {
		t.Errorf("Timestamp = %v out of range", event.Timestamp)
	}

	data, ok := event.Data.(GradeSubmittedEvent)
	if !ok || data.UserID != "student-1" {
		t.Errorf("Data = %#v", event.Data)
	}
}

func TestMockEventPublisher(t *testing.T) {
	publisher := NewMockEventPublisher(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	if err := publisher.Publish(ctx, NewEvent(EventTypeCourseCreated, CourseCreatedEvent{CourseID: 1})); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := publisher.Publish(ctx, NewEvent(EventTypeContentDeleted, ContentDeletedEvent{ContentID: 2})); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	published := publisher.GetPublishedEvents()
	if len(published) != 2 {
		t.Fatalf("published = %d events, want 2", len(published))
	}
	if published[0].Type != EventTypeCourseCreated || published[1].Type != EventTypeContentDeleted {
		t.Errorf("types = %q, %q", published[0].Type, published[1].Type)
	}

	// The returned slice is a copy.
	published[0] = nil
	if publisher.GetPublishedEvents()[0] == nil {
		t.Error("GetPublishedEvents must return a copy")
	}

	publisher.ClearEvents()
	if n := len(publisher.GetPublishedEvents()); n != 0 {
		t.Errorf("after ClearEvents: %d events", n)
	}
}
