// Package persist saves per-user console snapshots (transcript, prompt
// history, theme) as JSON files so a session resumes where it left off.
package persist

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/pitline/pitline/console"
	"github.com/pitline/pitline/schema"
	"pkt.systems/pslog"
)

// Store persists console snapshots to a state directory, one JSON file
// per user.
type Store struct {
	dir string
	log pslog.Logger
}

// NewStore constructs a store at dir.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &Store{dir: dir, log: logger}, nil
}

// Load reads a user's snapshot. ok is false when none exists yet.
func (s *Store) Load(userID schema.UserID) (console.Snapshot, bool, error) {
	path := s.pathForUser(userID)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("state load miss", "user", userID)
			}
			return console.Snapshot{}, false, nil
		}
		if s.log != nil {
			s.log.Warn("state load failed", "user", userID, "err", err)
		}
		return console.Snapshot{}, false, err
	}
	var snapshot console.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		if s.log != nil {
			s.log.Warn("state load failed", "user", userID, "err", err)
		}
		return console.Snapshot{}, false, err
	}
	if s.log != nil {
		s.log.Debug("state load ok", "user", userID, "messages", len(snapshot.Messages))
	}
	return snapshot, true, nil
}

// Save writes a user's snapshot atomically: temp file, fsync, rename.
func (s *Store) Save(userID schema.UserID, snapshot console.Snapshot) error {
	path := s.pathForUser(userID)
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return s.fail(userID, err)
	}
	tmp, err := os.CreateTemp(s.dir, "state-*.json")
	if err != nil {
		return s.fail(userID, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return s.fail(userID, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return s.fail(userID, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return s.fail(userID, err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return s.fail(userID, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return s.fail(userID, err)
	}
	if s.log != nil {
		s.log.Trace("state save ok", "user", userID, "messages", len(snapshot.Messages))
	}
	return nil
}

func (s *Store) fail(userID schema.UserID, err error) error {
	if s.log != nil {
		s.log.Warn("state save failed", "user", userID, "err", err)
	}
	return err
}

func (s *Store) pathForUser(userID schema.UserID) string {
	name := sanitize(string(userID))
	if name == "" {
		name = "unknown"
	}
	return filepath.Join(s.dir, name+".json")
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}
