package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/mindful/backend/internal/model/session"
)

const recordExt = ".json"

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrCorruptRecord      = errors.New("corrupt session record")
	ErrStorageUnavailable = errors.New("session storage unavailable")
	ErrInvalidRole        = errors.New("invalid message role")
)

// Store persists each session as a standalone JSON file under a single root directory.
// Read-modify-write cycles are serialised per session id; distinct sessions never contend.
type Store struct {
	root  string
	locks *keyedMutex
	now   func() time.Time
}

// NewStore prepares the storage directory and returns a Store rooted there.
func NewStore(root string) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("%w: storage directory is required", ErrStorageUnavailable)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return &Store{
		root:  root,
		locks: newKeyedMutex(),
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// Root returns the directory holding the session records.
func (s *Store) Root() string {
	return s.root
}

// Create allocates a fresh session id and persists an empty record for it.
func (s *Store) Create(ctx context.Context) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return session.Session{}, err
	}

	now := s.now()
	record := session.Session{
		ID:        uuid.NewString(),
		Messages:  []session.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.write(record); err != nil {
		return session.Session{}, err
	}
	return record, nil
}

// Get loads a session by id.
func (s *Store) Get(ctx context.Context, id string) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return session.Session{}, err
	}

	path, ok := s.recordPath(id)
	if !ok {
		return session.Session{}, ErrSessionNotFound
	}
	return s.read(path)
}

// AppendMessage appends a timestamped message and returns the updated session.
func (s *Store) AppendMessage(ctx context.Context, id string, role session.Role, content string) (session.Session, error) {
	if !role.Valid() {
		return session.Session{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	return s.update(ctx, id, func(record *session.Session) {
		now := s.now()
		record.Messages = append(record.Messages, session.Message{
			Role:      role,
			Content:   content,
			Timestamp: now,
		})
		record.UpdatedAt = now
	})
}

// SetEvaluation replaces the session's evaluation and returns the updated session.
func (s *Store) SetEvaluation(ctx context.Context, id string, evaluation session.Evaluation) (session.Session, error) {
	return s.update(ctx, id, func(record *session.Session) {
		eval := evaluation
		record.Evaluation = &eval
		record.UpdatedAt = s.now()
	})
}

// List returns every readable session ordered by most recent update first.
// Unreadable records are logged and skipped.
func (s *Store) List(ctx context.Context) ([]session.Session, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []session.Session{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	sessions := make([]session.Session, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), recordExt) {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), recordExt)
		if _, ok := s.recordPath(id); !ok {
			continue
		}

		record, err := s.read(filepath.Join(s.root, entry.Name()))
		if err != nil {
			log.Printf("[session] skipping record %s: %v", entry.Name(), err)
			continue
		}
		sessions = append(sessions, record)
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// Delete removes a session record, reporting whether one existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	path, ok := s.recordPath(id)
	if !ok {
		return false, nil
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return true, nil
}

// DeleteAll removes every session record, including unreadable ones, and returns how many
// were removed. Individual failures are logged and skipped.
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	deleted := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), recordExt) {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), recordExt)
		ok, err := s.Delete(ctx, id)
		if err != nil {
			log.Printf("[session] failed to delete %s: %v", entry.Name(), err)
			continue
		}
		if ok {
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) update(ctx context.Context, id string, mutate func(*session.Session)) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return session.Session{}, err
	}

	path, ok := s.recordPath(id)
	if !ok {
		return session.Session{}, ErrSessionNotFound
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	record, err := s.read(path)
	if err != nil {
		return session.Session{}, err
	}

	mutate(&record)

	if err := s.write(record); err != nil {
		return session.Session{}, err
	}
	return record, nil
}

// recordPath maps an id to its file, accepting only canonical UUIDs so ids can never
// escape the storage directory.
func (s *Store) recordPath(id string) (string, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != id {
		return "", false
	}
	return filepath.Join(s.root, id+recordExt), true
}

func (s *Store) read(path string) (session.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return session.Session{}, ErrSessionNotFound
		}
		return session.Session{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	var record session.Session
	if err := json.Unmarshal(data, &record); err != nil {
		return session.Session{}, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, filepath.Base(path), err)
	}
	if record.Messages == nil {
		record.Messages = []session.Message{}
	}
	return record, nil
}

// write replaces the record atomically via a temp file in the same directory.
func (s *Store) write(record session.Session) error {
	path, ok := s.recordPath(record.ID)
	if !ok {
		return fmt.Errorf("%w: invalid session id %q", ErrStorageUnavailable, record.ID)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", record.ID, err)
	}

	tmp, err := os.CreateTemp(s.root, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once the rename succeeded
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}
