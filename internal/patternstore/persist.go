package patternstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/patternbank/internal/logging"
	"github.com/fyrsmithlabs/patternbank/internal/pattern"
)

// storeFileVersion is the on-disk format version. Major bumps are breaking;
// readers refuse majors they do not understand.
const storeFileVersion = "1.0"

// storeFile is the on-disk shape: a version plus a mapping of id to record.
type storeFile struct {
	Version string                    `yaml:"version"`
	Records map[string]pattern.Record `yaml:"records"`
}

// Open loads (or initializes) the store at path and takes an advisory file
// lock so no other process can open the same path. Callers must Close the
// store to release the lock.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		records: make(map[string]*pattern.Record),
		path:    path,
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sourceID == "" {
		s.sourceID = uuid.New().String()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire store lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrStoreLocked, path)
	}
	s.lock = lock

	if err := s.load(); err != nil {
		lock.Unlock()
		return nil, err
	}

	RecordsGauge.Set(float64(len(s.records)))
	s.logger.Info("pattern store opened",
		zap.String("path", path),
		zap.Int("records", len(s.records)))
	return s, nil
}

// load reads the YAML store file into memory. A missing file is an empty
// store, an unparseable one is an integrity error.
func (s *Store) load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read store file: %w", err)
	}

	var file storeFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	if !compatibleVersion(file.Version) {
		return fmt.Errorf("%w: got %q, want major %q", ErrUnsupportedVersion, file.Version, majorOf(storeFileVersion))
	}

	for id, rec := range file.Records {
		rec.ID = id
		rec.Normalize()
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("%w: record %q: %v", ErrCorruptStore, id, err)
		}
		clone := rec.Clone()
		s.records[id] = &clone
	}
	return nil
}

// Save writes the store to disk deterministically: stable top-level keys,
// record ids in sorted order, struct fields in declaration order. The write
// is atomic (temp file plus rename) so a crash never leaves a torn file.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	data, err := s.marshalLocked()
	if err != nil {
		SavesTotal.WithLabelValues("error").Inc()
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		SavesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		SavesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to replace store file: %w", err)
	}

	SavesTotal.WithLabelValues("success").Inc()
	return nil
}

// marshalLocked renders the deterministic YAML document. Callers hold at
// least the read lock.
func (s *Store) marshalLocked() ([]byte, error) {
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	recordsNode := &yaml.Node{Kind: yaml.MappingNode}
	for _, id := range ids {
		var value yaml.Node
		if err := value.Encode(*s.records[id]); err != nil {
			return nil, fmt.Errorf("failed to encode record %q: %w", id, err)
		}
		recordsNode.Content = append(recordsNode.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: id},
			&value,
		)
	}

	doc := &yaml.Node{
		Kind: yaml.MappingNode,
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: "version"},
			// Quoted so the version round-trips as a string, not a float.
			{Kind: yaml.ScalarNode, Style: yaml.DoubleQuotedStyle, Value: storeFileVersion},
			{Kind: yaml.ScalarNode, Value: "records"},
			recordsNode,
		},
	}
	return yaml.Marshal(doc)
}

// Close releases the advisory lock. The in-memory state is not saved
// implicitly; call Save first if it should survive.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.lock != nil {
		return s.lock.Unlock()
	}
	return nil
}

// compatibleVersion accepts any version sharing our major.
func compatibleVersion(version string) bool {
	if version == "" {
		return false
	}
	return majorOf(version) == majorOf(storeFileVersion)
}

func majorOf(version string) string {
	if i := strings.IndexByte(version, '.'); i >= 0 {
		return version[:i]
	}
	return version
}
