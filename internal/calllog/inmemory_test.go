package calllog

import (
	"context"
	"testing"
)

func TestInMemoryStoreSaveAndTranscript(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	turns := []Turn{
		{RoomName: "test-default-1", AgentID: "default", Role: "user", Content: "hello"},
		{RoomName: "test-default-1", AgentID: "default", Role: "agent", Content: "namaste"},
		{RoomName: "test-other-2", AgentID: "other", Role: "user", Content: "unrelated"},
	}
	for _, turn := range turns {
		if err := s.SaveTurn(ctx, turn); err != nil {
			t.Fatalf("SaveTurn() error = %v", err)
		}
	}

	got, err := s.Transcript(ctx, "test-default-1", 0)
	if err != nil {
		t.Fatalf("Transcript() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(transcript) = %d, want 2", len(got))
	}
	if got[0].Content != "hello" || got[1].Content != "namaste" {
		t.Fatalf("transcript out of order: %+v", got)
	}
	for _, turn := range got {
		if turn.ID == "" {
			t.Fatalf("turn ID not assigned")
		}
		if turn.CreatedAt.IsZero() {
			t.Fatalf("turn CreatedAt not assigned")
		}
	}
}

func TestInMemoryStoreTranscriptLimit(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := s.SaveTurn(ctx, Turn{RoomName: "r", Role: "user", Content: "x"}); err != nil {
			t.Fatalf("SaveTurn() error = %v", err)
		}
	}

	got, err := s.Transcript(ctx, "r", 2)
	if err != nil {
		t.Fatalf("Transcript() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(transcript) = %d, want 2", len(got))
	}
}

func TestNewStoreDefaultsToInMemory(t *testing.T) {
	s, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer s.Close()
	if _, ok := s.(*InMemoryStore); !ok {
		t.Fatalf("NewStore(\"\") = %T, want *InMemoryStore", s)
	}
}
