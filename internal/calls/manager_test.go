package calls

import (
	"testing"
	"time"
)

func TestCreateAndGet(t *testing.T) {
	m := NewManager(5 * time.Minute)

	created, err := m.Create("test-agent42-1700000000", "agent42", "leadvoice-agent", "caller-1", "hi-IN", "arya")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == "" {
		t.Fatal("Create() returned empty session id")
	}
	if created.Status != StatusActive {
		t.Fatalf("Status = %v, want %v", created.Status, StatusActive)
	}

	got, err := m.Get(created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.RoomName != "test-agent42-1700000000" {
		t.Fatalf("RoomName = %q, want %q", got.RoomName, "test-agent42-1700000000")
	}
	if got.Language != "hi-IN" || got.Voice != "arya" {
		t.Fatalf("Language/Voice = %q/%q, want hi-IN/arya", got.Language, got.Voice)
	}
}

func TestGetUnknownSession(t *testing.T) {
	m := NewManager(5 * time.Minute)
	if _, err := m.Get("nope"); err != ErrNotFound {
		t.Fatalf("Get() error = %v, want %v", err, ErrNotFound)
	}
}

func TestCreateRejectsDuplicateRoom(t *testing.T) {
	m := NewManager(5 * time.Minute)
	if _, err := m.Create("room-1", "a", "agent", "caller", "en-IN", "arya"); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	if _, err := m.Create("room-1", "a", "agent", "caller", "en-IN", "arya"); err != ErrRoomActive {
		t.Fatalf("second Create() error = %v, want %v", err, ErrRoomActive)
	}
}

func TestEndReleasesRoom(t *testing.T) {
	m := NewManager(5 * time.Minute)
	s, err := m.Create("room-1", "a", "agent", "caller", "en-IN", "arya")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	ended, err := m.End(s.ID)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != StatusEnded {
		t.Fatalf("Status = %v, want %v", ended.Status, StatusEnded)
	}
	if _, err := m.Create("room-1", "a", "agent", "caller", "en-IN", "arya"); err != nil {
		t.Fatalf("Create() after End() error = %v", err)
	}
}

func TestCountersAndActiveCount(t *testing.T) {
	m := NewManager(5 * time.Minute)
	s, _ := m.Create("room-1", "a", "agent", "caller", "en-IN", "arya")

	if err := m.RecordTurn(s.ID); err != nil {
		t.Fatalf("RecordTurn() error = %v", err)
	}
	if err := m.RecordInterruption(s.ID); err != nil {
		t.Fatalf("RecordInterruption() error = %v", err)
	}
	got, _ := m.Get(s.ID)
	if got.TurnCount != 1 || got.InterruptionCount != 1 {
		t.Fatalf("counters = %d/%d, want 1/1", got.TurnCount, got.InterruptionCount)
	}
	if n := m.ActiveCount(); n != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", n)
	}
	m.End(s.ID)
	if n := m.ActiveCount(); n != 0 {
		t.Fatalf("ActiveCount() after End() = %d, want 0", n)
	}
}

func TestJanitorExpiresInactiveSessions(t *testing.T) {
	m := NewManager(10 * time.Millisecond)
	s, _ := m.Create("room-1", "a", "agent", "caller", "en-IN", "arya")

	expired := make(chan *Session, 1)
	m.SetExpireHook(func(sess *Session) { expired <- sess })

	time.Sleep(25 * time.Millisecond)
	m.expireInactive()

	select {
	case got := <-expired:
		if got.ID != s.ID {
			t.Fatalf("expired session = %s, want %s", got.ID, s.ID)
		}
	default:
		t.Fatal("expire hook was not called")
	}
	if n := m.ActiveCount(); n != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", n)
	}
}

func TestTouchKeepsSessionAlive(t *testing.T) {
	m := NewManager(40 * time.Millisecond)
	s, _ := m.Create("room-1", "a", "agent", "caller", "en-IN", "arya")

	time.Sleep(25 * time.Millisecond)
	if err := m.Touch(s.ID); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	m.expireInactive()
	if n := m.ActiveCount(); n != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", n)
	}
}
