package calllog

import (
	"context"
	"time"
)

// Turn stores a single caller or agent conversational turn for a call.
type Turn struct {
	ID        string    `json:"id"`
	RoomName  string    `json:"room_name"`
	AgentID   string    `json:"agent_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists and retrieves call transcripts. The default in-memory
// implementation is process-lifetime only; Postgres is opt-in.
type Store interface {
	SaveTurn(ctx context.Context, turn Turn) error
	Transcript(ctx context.Context, roomName string, limit int) ([]Turn, error)
	Close() error
}
