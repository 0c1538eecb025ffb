package session

import (
	"errors"
	"testing"
	"time"
)

func TestBeginRejectsSecondLiveSession(t *testing.T) {
	m := NewManager(time.Minute)
	s, err := m.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if s.Phase != PhaseNegotiating {
		t.Errorf("phase = %q", s.Phase)
	}

	if _, err := m.Begin(); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second Begin = %v, want ErrSessionActive", err)
	}

	if err := m.MarkConnected(s.ID); err != nil {
		t.Fatalf("MarkConnected: %v", err)
	}
	if _, err := m.Begin(); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("Begin while connected = %v, want ErrSessionActive", err)
	}
}

func TestBeginAllowedAfterClose(t *testing.T) {
	m := NewManager(time.Minute)
	s, _ := m.Begin()
	if err := m.MarkClosed(s.ID); err != nil {
		t.Fatalf("MarkClosed: %v", err)
	}
	if _, err := m.Begin(); err != nil {
		t.Fatalf("Begin after close: %v", err)
	}
}

func TestBeginAllowedAfterFailure(t *testing.T) {
	m := NewManager(time.Minute)
	s, _ := m.Begin()
	if err := m.MarkFailed(s.ID, "negotiate"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	got, _ := m.Current()
	if got.Phase != PhaseFailed || got.FailureStage != "negotiate" {
		t.Errorf("session = %+v", got)
	}
	if _, err := m.Begin(); err != nil {
		t.Fatalf("Begin after failure: %v", err)
	}
}

func TestGetUnknownSession(t *testing.T) {
	m := NewManager(time.Minute)
	if _, err := m.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get = %v, want ErrNotFound", err)
	}
}

func TestIdleExpired(t *testing.T) {
	m := NewManager(50 * time.Millisecond)
	s, _ := m.Begin()
	_ = m.MarkConnected(s.ID)

	if _, expired := m.IdleExpired(time.Now()); expired {
		t.Fatal("fresh session should not be expired")
	}
	id, expired := m.IdleExpired(time.Now().Add(time.Second))
	if !expired || id != s.ID {
		t.Fatalf("IdleExpired = %q %v", id, expired)
	}

	if err := m.Touch(s.ID); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if _, expired := m.IdleExpired(time.Now()); expired {
		t.Fatal("touched session should not be expired")
	}
}

func TestRecordToolCall(t *testing.T) {
	m := NewManager(time.Minute)
	s, _ := m.Begin()
	_ = m.RecordToolCall(s.ID)
	_ = m.RecordToolCall(s.ID)
	got, _ := m.Get(s.ID)
	if got.ToolCalls != 2 {
		t.Fatalf("tool calls = %d", got.ToolCalls)
	}
}
