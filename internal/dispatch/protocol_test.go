package dispatch

import (
	"errors"
	"testing"
)

func TestParseWorkerMessageRegister(t *testing.T) {
	raw := []byte(`{"type":"worker_register","worker_id":"w1","max_sessions":4}`)
	msg, err := ParseWorkerMessage(raw)
	if err != nil {
		t.Fatalf("ParseWorkerMessage() error = %v", err)
	}
	reg, ok := msg.(WorkerRegister)
	if !ok {
		t.Fatalf("message type = %T, want WorkerRegister", msg)
	}
	if reg.WorkerID != "w1" || reg.MaxSessions != 4 {
		t.Fatalf("register = %+v", reg)
	}
}

func TestParseWorkerMessageRejectsInvalidRegister(t *testing.T) {
	raw := []byte(`{"type":"worker_register","worker_id":"","max_sessions":4}`)
	if _, err := ParseWorkerMessage(raw); err == nil {
		t.Fatal("ParseWorkerMessage() error = nil, want error")
	}
}

func TestParseWorkerMessageHeartbeat(t *testing.T) {
	raw := []byte(`{"type":"worker_heartbeat","worker_id":"w1","active_sessions":2,"ts_ms":123}`)
	msg, err := ParseWorkerMessage(raw)
	if err != nil {
		t.Fatalf("ParseWorkerMessage() error = %v", err)
	}
	hb, ok := msg.(WorkerHeartbeat)
	if !ok {
		t.Fatalf("message type = %T, want WorkerHeartbeat", msg)
	}
	if hb.ActiveSessions != 2 {
		t.Fatalf("ActiveSessions = %d, want 2", hb.ActiveSessions)
	}
}

func TestParseWorkerMessageUnsupported(t *testing.T) {
	if _, err := ParseWorkerMessage([]byte(`{"type":"job_assign"}`)); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want %v", err, ErrUnsupportedType)
	}
}

func TestParseHubMessageJobAssign(t *testing.T) {
	raw := []byte(`{"type":"job_assign","job_id":"j1","room_name":"test-a-1","agent_id":"a","caller_identity":"caller"}`)
	msg, err := ParseHubMessage(raw)
	if err != nil {
		t.Fatalf("ParseHubMessage() error = %v", err)
	}
	job, ok := msg.(JobAssign)
	if !ok {
		t.Fatalf("message type = %T, want JobAssign", msg)
	}
	if job.RoomName != "test-a-1" || job.AgentID != "a" {
		t.Fatalf("job = %+v", job)
	}
}

func TestParseHubMessageRejectsIncompleteJob(t *testing.T) {
	raw := []byte(`{"type":"job_assign","job_id":"j1"}`)
	if _, err := ParseHubMessage(raw); err == nil {
		t.Fatal("ParseHubMessage() error = nil, want error")
	}
}

func TestParseEnvelopeGarbage(t *testing.T) {
	if _, err := ParseWorkerMessage([]byte("not json")); err == nil {
		t.Fatal("ParseWorkerMessage() error = nil, want error")
	}
}
