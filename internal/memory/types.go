package memory

import (
	"context"
	"time"
)

// TurnRecord stores one committed transcript turn of a voice session.
type TurnRecord struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Seq         int       `json:"seq"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists and retrieves session transcripts.
type Store interface {
	SaveTurn(ctx context.Context, record TurnRecord) error
	SessionTranscript(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error)
	Close() error
}
