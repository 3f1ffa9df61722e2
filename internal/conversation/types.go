package conversation

import (
	"errors"
	"time"
)

// Common errors for buffer operations.
var (
	ErrNotFound            = errors.New("conversation not found in buffer")
	ErrDuplicateEntry      = errors.New("conversation already buffered")
	ErrEmptyConversationID = errors.New("conversation id cannot be empty")
	ErrInvalidCapacity     = errors.New("buffer capacity must be positive")

	// ErrActiveConflict indicates more than one entry would be marked
	// active. This is a caller-side bug and is raised loudly rather than
	// tolerated, since silent acceptance would corrupt the FIFO contract.
	ErrActiveConflict = errors.New("buffer already holds an active conversation")

	// ErrNoEvictionCandidate indicates the buffer is full and every entry
	// is protected from eviction.
	ErrNoEvictionCandidate = errors.New("buffer full with no evictable entry")
)

// Entry is a summary of one recent conversation.
type Entry struct {
	// ConversationID uniquely identifies the conversation within the buffer.
	ConversationID string `json:"conversation_id"`

	// StartedAt is when the conversation began (UTC).
	StartedAt time.Time `json:"started_at"`

	// MessageCount is the number of messages summarized.
	MessageCount int `json:"message_count"`

	// Summary is short free text describing the conversation.
	Summary string `json:"summary"`

	// IsActive marks the single conversation currently in progress.
	// The active entry is never evicted regardless of age.
	IsActive bool `json:"is_active"`
}

// ExtractionFailure reports an extractor error for a single evicted entry.
// Extraction failures never block eviction; they are collected and returned
// so the caller can log or retry out of band.
type ExtractionFailure struct {
	ConversationID string
	Err            error
}
