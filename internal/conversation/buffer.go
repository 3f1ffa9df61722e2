package conversation

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternbank/internal/logging"
	"github.com/fyrsmithlabs/patternbank/internal/pattern"
)

// Extractor turns an evicted entry into zero or more pattern records.
// Extractors are external, untrusted collaborators: errors and panics are
// isolated per entry.
type Extractor func(Entry) ([]pattern.Record, error)

// Buffer is a bounded FIFO of recent conversation entries.
// All methods are safe for concurrent use.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	entries  []Entry // arrival order, oldest first
	pending  []Entry // evicted, staged for the next extraction pass
	log      *Log
	logger   *logging.Logger
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithLog attaches an append-only event log. Mutations are recorded as they
// happen so the buffer can be restored after a restart.
func WithLog(log *Log) Option {
	return func(b *Buffer) { b.log = log }
}

// WithLogger sets the structured logger. Defaults to a nop logger.
func WithLogger(logger *logging.Logger) Option {
	return func(b *Buffer) { b.logger = logger }
}

// NewBuffer creates an empty buffer holding at most capacity entries.
func NewBuffer(capacity int, opts ...Option) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	b := &Buffer{
		capacity: capacity,
		entries:  make([]Entry, 0, capacity),
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Append adds an entry in arrival order, evicting the oldest inactive entry
// first when the buffer is at capacity. Evicted entries are staged for
// EvictAndExtract rather than dropped.
//
// Appending a second active entry fails with ErrActiveConflict. A full
// buffer whose every entry is protected fails with ErrNoEvictionCandidate.
func (b *Buffer) Append(entry Entry) error {
	if entry.ConversationID == "" {
		return ErrEmptyConversationID
	}
	entry.StartedAt = entry.StartedAt.UTC()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.indexOf(entry.ConversationID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, entry.ConversationID)
	}
	if entry.IsActive && b.activeIndex() >= 0 {
		return fmt.Errorf("%w: cannot append active %s", ErrActiveConflict, entry.ConversationID)
	}

	if len(b.entries) >= b.capacity {
		victim := b.oldestInactive()
		if victim < 0 {
			return ErrNoEvictionCandidate
		}
		if err := b.evictLocked(victim); err != nil {
			return err
		}
	}

	b.entries = append(b.entries, entry)
	if b.log != nil {
		if err := b.log.record(event{Op: opAppend, Entry: &entry}); err != nil {
			return fmt.Errorf("failed to log append: %w", err)
		}
	}
	b.logger.Debug("conversation buffered",
		zap.String("conversation_id", entry.ConversationID),
		zap.Int("buffered", len(b.entries)))
	return nil
}

// MarkActive promotes the given conversation, demoting the previous active
// entry if any. Fails with ErrNotFound for unknown ids.
func (b *Buffer) MarkActive(conversationID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	target := b.indexOf(conversationID)
	if target < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, conversationID)
	}

	if prev := b.activeIndex(); prev >= 0 {
		b.entries[prev].IsActive = false
	}
	b.entries[target].IsActive = true

	if b.log != nil {
		if err := b.log.record(event{Op: opMarkActive, ConversationID: conversationID}); err != nil {
			return fmt.Errorf("failed to log mark_active: %w", err)
		}
	}
	return nil
}

// QueryRecent returns up to limit entries, newest first. A non-positive
// limit returns everything. The buffer is never mutated.
func (b *Buffer) QueryRecent(limit int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, 0, n)
	for i := len(b.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, b.entries[i])
	}
	return out
}

// Active returns the currently active entry, if any.
func (b *Buffer) Active() (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i := b.activeIndex(); i >= 0 {
		return b.entries[i], true
	}
	return Entry{}, false
}

// Len returns the number of buffered entries, excluding staged evictions.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Close releases the attached event log, if any.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.log == nil {
		return nil
	}
	return b.log.Close()
}

// PendingEvictions returns the number of evicted entries awaiting extraction.
func (b *Buffer) PendingEvictions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// EvictAndExtract drains the staged evictions, invoking the extractor on
// each and collecting the produced records. Entries whose extraction fails
// (or panics) are dropped anyway: buffer-capacity invariants take priority
// over pattern learning, so failures are returned rather than raised.
func (b *Buffer) EvictAndExtract(extractor Extractor) ([]pattern.Record, []ExtractionFailure) {
	b.mu.Lock()
	drained := b.pending
	b.pending = nil
	b.mu.Unlock()

	var records []pattern.Record
	var failures []ExtractionFailure

	for _, entry := range drained {
		extracted, err := safeExtract(extractor, entry)
		if err != nil {
			b.logger.Warn("pattern extraction failed",
				zap.String("conversation_id", entry.ConversationID),
				zap.Error(err))
			failures = append(failures, ExtractionFailure{ConversationID: entry.ConversationID, Err: err})
			continue
		}
		records = append(records, extracted...)
	}
	return records, failures
}

// safeExtract isolates extractor panics so one bad entry cannot corrupt the
// eviction pass for the rest.
func safeExtract(extractor Extractor, entry Entry) (records []pattern.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = fmt.Errorf("extractor panicked: %v", r)
		}
	}()
	if extractor == nil {
		return nil, nil
	}
	return extractor(entry)
}

// evictLocked moves entries[i] to the staging area and records the event.
// Callers hold b.mu.
func (b *Buffer) evictLocked(i int) error {
	victim := b.entries[i]
	b.entries = append(b.entries[:i], b.entries[i+1:]...)
	b.pending = append(b.pending, victim)

	if b.log != nil {
		if err := b.log.record(event{Op: opEvict, ConversationID: victim.ConversationID}); err != nil {
			return fmt.Errorf("failed to log evict: %w", err)
		}
	}
	b.logger.Debug("conversation evicted",
		zap.String("conversation_id", victim.ConversationID))
	return nil
}

func (b *Buffer) indexOf(conversationID string) int {
	for i := range b.entries {
		if b.entries[i].ConversationID == conversationID {
			return i
		}
	}
	return -1
}

func (b *Buffer) activeIndex() int {
	for i := range b.entries {
		if b.entries[i].IsActive {
			return i
		}
	}
	return -1
}

// oldestInactive returns the index of the oldest entry not protected from
// eviction, or -1 if every entry is active.
func (b *Buffer) oldestInactive() int {
	for i := range b.entries {
		if !b.entries[i].IsActive {
			return i
		}
	}
	return -1
}
