package history

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry records one processed file operation.
type Entry struct {
	ID        uuid.UUID      `json:"id"`
	UserID    uuid.UUID      `json:"userId"`
	Action    string         `json:"action"`
	FileCount int64          `json:"fileCount"`
	Bytes     int64          `json:"bytes,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Validate checks required fields.
func (e *Entry) Validate() error {
	if e.UserID == uuid.Nil {
		return fmt.Errorf("%w: user id is required", ErrInvalidEntry)
	}
	if e.Action == "" {
		return fmt.Errorf("%w: action is required", ErrInvalidEntry)
	}
	return nil
}

// normalize fills generated fields.
func (e *Entry) normalize(now time.Time) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
}
