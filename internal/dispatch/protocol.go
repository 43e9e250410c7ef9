package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/raaestate/leadvoice/internal/observability"
)

// MessageType identifies worker socket payload variants.
type MessageType string

const (
	TypeWorkerRegister  MessageType = "worker_register"
	TypeWorkerHeartbeat MessageType = "worker_heartbeat"
	TypeJobAssign       MessageType = "job_assign"
	TypeJobResult       MessageType = "job_result"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type WorkerRegister struct {
	Type        MessageType `json:"type"`
	WorkerID    string      `json:"worker_id"`
	MaxSessions int         `json:"max_sessions"`
	Version     string      `json:"version,omitempty"`
}

type WorkerHeartbeat struct {
	Type           MessageType                  `json:"type"`
	WorkerID       string                       `json:"worker_id"`
	ActiveSessions int                          `json:"active_sessions"`
	TSMs           int64                        `json:"ts_ms"`
	TurnStats      *observability.StageSnapshot `json:"turn_stats,omitempty"`
}

// JobAssign tells a worker to join a room and run a voice session in it.
type JobAssign struct {
	Type           MessageType `json:"type"`
	JobID          string      `json:"job_id"`
	RoomName       string      `json:"room_name"`
	AgentID        string      `json:"agent_id"`
	CallerIdentity string      `json:"caller_identity"`
}

type JobResult struct {
	Type     MessageType `json:"type"`
	JobID    string      `json:"job_id"`
	WorkerID string      `json:"worker_id"`
	Status   string      `json:"status"`
	Detail   string      `json:"detail,omitempty"`
}

// ParseWorkerMessage decodes messages sent by workers to the front door.
func ParseWorkerMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeWorkerRegister:
		var msg WorkerRegister
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.WorkerID == "" || msg.MaxSessions <= 0 {
			return nil, errors.New("invalid worker_register")
		}
		return msg, nil
	case TypeWorkerHeartbeat:
		var msg WorkerHeartbeat
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.WorkerID == "" {
			return nil, errors.New("invalid worker_heartbeat")
		}
		return msg, nil
	case TypeJobResult:
		var msg JobResult
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.JobID == "" || msg.Status == "" {
			return nil, errors.New("invalid job_result")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// ParseHubMessage decodes messages sent by the front door to workers.
func ParseHubMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeJobAssign:
		var msg JobAssign
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.JobID == "" || msg.RoomName == "" || msg.AgentID == "" {
			return nil, errors.New("invalid job_assign")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
