package relay

import (
	"strings"
	"testing"
	"time"
)

func TestMintAndVerify(t *testing.T) {
	m := NewTokenMinter("APIkey123", "secret456", time.Hour)

	token, err := m.Mint("test-agent42-1700000000", "caller-abc")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Fatalf("token = %q, want three JWT segments", token)
	}

	identity, grant, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if identity != "caller-abc" {
		t.Fatalf("identity = %q, want caller-abc", identity)
	}
	if grant.Room != "test-agent42-1700000000" {
		t.Fatalf("grant.Room = %q, want test-agent42-1700000000", grant.Room)
	}
	if !grant.RoomJoin || !grant.CanPublish || !grant.CanSubscribe {
		t.Fatalf("grant = %+v, want join/publish/subscribe all true", grant)
	}
}

func TestMintWithoutCredentials(t *testing.T) {
	m := NewTokenMinter("", "", time.Hour)
	if m.Configured() {
		t.Fatal("Configured() = true, want false")
	}
	if _, err := m.Mint("room", "id"); err != ErrMissingCredentials {
		t.Fatalf("Mint() error = %v, want %v", err, ErrMissingCredentials)
	}
}

func TestMintRequiresRoomAndIdentity(t *testing.T) {
	m := NewTokenMinter("k", "s", time.Hour)
	if _, err := m.Mint("", "id"); err == nil {
		t.Fatal("Mint() with empty room, want error")
	}
	if _, err := m.Mint("room", " "); err == nil {
		t.Fatal("Mint() with empty identity, want error")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	m := NewTokenMinter("k", "s", time.Hour)
	token, err := m.Mint("room", "id")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	other := NewTokenMinter("k", "different", time.Hour)
	if _, _, err := other.Verify(token); err == nil {
		t.Fatal("Verify() with wrong secret, want error")
	}
}

func TestRoomName(t *testing.T) {
	now := time.Unix(1700000000, 0)
	got := RoomName("agent42", now)
	if got != "test-agent42-1700000000" {
		t.Fatalf("RoomName() = %q, want test-agent42-1700000000", got)
	}
}
