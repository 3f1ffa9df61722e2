package conversation

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Event log operations, one JSON record per line.
const (
	opAppend     = "append"
	opMarkActive = "mark_active"
	opEvict      = "evict"
)

// ErrCorruptLog indicates the event log could not be parsed. The offending
// line number is included in the wrapping error.
var ErrCorruptLog = errors.New("corrupt buffer event log")

// event is one line in the append-only buffer log.
type event struct {
	Op             string `json:"op"`
	ConversationID string `json:"conversation_id,omitempty"`
	Entry          *Entry `json:"entry,omitempty"`
}

// Log is an append-only JSONL event log backing a Buffer.
type Log struct {
	mu   sync.Mutex
	f    *os.File
	enc  *json.Encoder
	sync bool
}

// OpenLog opens (creating if needed) the event log at path for appending.
// When syncOnAppend is set every record is fsynced, trading write latency
// for durability across crashes.
func OpenLog(path string, syncOnAppend bool) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open buffer log: %w", err)
	}
	return &Log{f: f, enc: json.NewEncoder(f), sync: syncOnAppend}, nil
}

// record appends one event.
func (l *Log) record(ev event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.enc.Encode(ev); err != nil {
		return err
	}
	if l.sync {
		return l.f.Sync()
	}
	return nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// Restore rebuilds a buffer from the event log at path, then opens the log
// for appending and attaches it. Replayed state is trimmed to the capacity
// invariant: over-capacity inactive entries are staged for extraction just
// as if they had been evicted live.
func Restore(capacity int, path string, syncOnAppend bool, opts ...Option) (*Buffer, error) {
	entries, err := replay(path)
	if err != nil {
		return nil, err
	}

	log, err := OpenLog(path, syncOnAppend)
	if err != nil {
		return nil, err
	}

	buf, err := NewBuffer(capacity, append(opts, WithLog(log))...)
	if err != nil {
		log.Close()
		return nil, err
	}

	// Trim to capacity, oldest inactive first. Replay is the one path that
	// can leave the buffer over-full, e.g. after capacity was lowered.
	buf.entries = entries
	for len(buf.entries) > capacity {
		victim := buf.oldestInactive()
		if victim < 0 {
			break
		}
		if err := buf.evictLocked(victim); err != nil {
			log.Close()
			return nil, err
		}
	}
	return buf, nil
}

// replay reads the event log and reconstructs the entry sequence. A missing
// file yields an empty buffer; an unparseable line is an integrity error.
func replay(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open buffer log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrCorruptLog, line, err)
		}
		entries, err = apply(entries, ev)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrCorruptLog, line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		return nil, fmt.Errorf("failed to read buffer log: %w", err)
	}
	return entries, nil
}

// apply folds one event into the replayed entry sequence.
func apply(entries []Entry, ev event) ([]Entry, error) {
	switch ev.Op {
	case opAppend:
		if ev.Entry == nil {
			return nil, errors.New("append event missing entry")
		}
		return append(entries, *ev.Entry), nil

	case opMarkActive:
		found := false
		for i := range entries {
			if entries[i].ConversationID == ev.ConversationID {
				entries[i].IsActive = true
				found = true
			} else {
				entries[i].IsActive = false
			}
		}
		if !found {
			return nil, fmt.Errorf("mark_active for unknown conversation %q", ev.ConversationID)
		}
		return entries, nil

	case opEvict:
		for i := range entries {
			if entries[i].ConversationID == ev.ConversationID {
				return append(entries[:i], entries[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("evict for unknown conversation %q", ev.ConversationID)

	default:
		return nil, fmt.Errorf("unknown op %q", ev.Op)
	}
}
