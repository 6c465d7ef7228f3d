// Package auth manages the users.json account store: bcrypt password
// hashes, TOTP secrets, and SSH login public keys. The file is the
// source of truth; edits made outside the process are picked up on the
// next access.
package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/ssh"

	"github.com/pitline/pitline/internal/appconfig"
	"github.com/pitline/pitline/schema"
	"pkt.systems/pslog"
)

// ErrInvalidCredentials covers every authentication failure; callers
// must not learn which factor failed.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrUserNotFound reports a mutation against a missing account. Lookups
// on the login path return ErrInvalidCredentials instead.
var ErrUserNotFound = errors.New("user not found")

// ErrUserExists reports an AddUser collision.
var ErrUserExists = errors.New("user already exists")

// User is a stored account.
type User struct {
	Username     string   `json:"username"`
	PasswordHash string   `json:"password_hash"`
	TOTPSecret   string   `json:"totp_secret"`
	LoginPubKeys []string `json:"login_pubkeys,omitempty"`
}

// Store manages users stored on disk.
type Store struct {
	path      string
	mu        sync.RWMutex
	users     map[string]User
	fileState fileState
	log       pslog.Logger
}

// NewStore loads or seeds the user store.
func NewStore(path string, seeds []appconfig.SeedUser) (*Store, error) {
	return NewStoreWithLogger(path, seeds, nil)
}

// NewStoreWithLogger loads or seeds the user store with logging.
func NewStoreWithLogger(path string, seeds []appconfig.SeedUser, logger pslog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("user file path is required")
	}
	if logger != nil {
		logger = logger.With("user_file", path)
	}
	store := &Store{
		path:  path,
		users: make(map[string]User),
		log:   logger,
	}
	if err := store.ensureFile(seeds); err != nil {
		return nil, err
	}
	if err := store.loadFromDisk(); err != nil {
		return nil, err
	}
	return store, nil
}

// Authenticate verifies username, password, and TOTP code.
func (s *Store) Authenticate(username, password, totpCode string) error {
	user, err := s.lookup(username)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	if !totp.Validate(totpCode, user.TOTPSecret) {
		return ErrInvalidCredentials
	}
	return nil
}

// ValidateTOTP verifies only the TOTP factor. Used after a public-key
// login, where the key replaces the password.
func (s *Store) ValidateTOTP(username, totpCode string) error {
	user, err := s.lookup(username)
	if err != nil {
		return err
	}
	if !totp.Validate(totpCode, user.TOTPSecret) {
		return ErrInvalidCredentials
	}
	return nil
}

// ChangePassword verifies the current credentials and stores a new
// bcrypt hash.
func (s *Store) ChangePassword(username, currentPassword, totpCode, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return errors.New("new password is required")
	}
	if err := s.Authenticate(username, currentPassword, totpCode); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.UpdatePassword(username, string(hash))
}

// HasLoginPubKey reports whether key is authorized for the user.
func (s *Store) HasLoginPubKey(userID schema.UserID, key ssh.PublicKey) (bool, error) {
	user, err := s.lookup(string(userID))
	if err != nil {
		return false, err
	}
	for _, raw := range user.LoginPubKeys {
		if keyEqual(raw, key) {
			return true, nil
		}
	}
	return false, nil
}

// AddLoginPubKey authorizes a public key for SSH login and returns its
// 1-based index.
func (s *Store) AddLoginPubKey(userID schema.UserID, pubKey string) (int, error) {
	username, err := s.prepare(string(userID))
	if err != nil {
		return 0, err
	}
	normalized, parsed, err := parseAuthorizedKey(pubKey)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return 0, ErrUserNotFound
	}
	for idx, existing := range user.LoginPubKeys {
		if keyEqual(existing, parsed) {
			return idx + 1, errors.New("login pubkey already exists")
		}
	}
	user.LoginPubKeys = append(user.LoginPubKeys, normalized)
	s.users[username] = user
	if err := s.saveLocked(); err != nil {
		return 0, err
	}
	s.info("auth pubkey added", "user", username, "id", len(user.LoginPubKeys))
	return len(user.LoginPubKeys), nil
}

// ListLoginPubKeys returns the user's authorized keys.
func (s *Store) ListLoginPubKeys(userID schema.UserID) ([]string, error) {
	user, err := s.lookup(string(userID))
	if err != nil {
		return nil, err
	}
	return append([]string{}, user.LoginPubKeys...), nil
}

// RemoveLoginPubKey removes the key at the provided 1-based index.
func (s *Store) RemoveLoginPubKey(userID schema.UserID, index int) error {
	username, err := s.prepare(string(userID))
	if err != nil {
		return err
	}
	if index <= 0 {
		return errors.New("login pubkey id must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return ErrUserNotFound
	}
	if index > len(user.LoginPubKeys) {
		return errors.New("login pubkey id out of range")
	}
	user.LoginPubKeys = append(user.LoginPubKeys[:index-1], user.LoginPubKeys[index:]...)
	s.users[username] = user
	if err := s.saveLocked(); err != nil {
		return err
	}
	s.info("auth pubkey removed", "user", username, "id", index)
	return nil
}

// LoadUsers returns a snapshot of all accounts.
func (s *Store) LoadUsers() []User {
	if err := s.refreshIfNeeded(); err != nil {
		s.warn("auth store refresh failed", "err", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	return users
}

// AddUser inserts a new account and persists the store.
func (s *Store) AddUser(user User) error {
	username, err := s.prepare(user.Username)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return ErrUserExists
	}
	user.Username = username
	s.users[username] = user
	if err := s.saveLocked(); err != nil {
		return err
	}
	s.info("auth user added", "user", username)
	return nil
}

// UpdatePassword replaces the stored password hash.
func (s *Store) UpdatePassword(username, passwordHash string) error {
	if strings.TrimSpace(passwordHash) == "" {
		return errors.New("password hash is required")
	}
	return s.updateUser(username, "auth password updated", func(u *User) {
		u.PasswordHash = passwordHash
	})
}

// UpdateTOTP replaces the stored TOTP secret.
func (s *Store) UpdateTOTP(username, secret string) error {
	if strings.TrimSpace(secret) == "" {
		return errors.New("totp secret is required")
	}
	return s.updateUser(username, "auth totp updated", func(u *User) {
		u.TOTPSecret = secret
	})
}

// DeleteUser removes an account.
func (s *Store) DeleteUser(username string) error {
	normalized, err := s.prepare(username)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[normalized]; !ok {
		return ErrUserNotFound
	}
	delete(s.users, normalized)
	if err := s.saveLocked(); err != nil {
		return err
	}
	s.info("auth user deleted", "user", normalized)
	return nil
}

// lookup refreshes from disk if needed and returns the account.
func (s *Store) lookup(username string) (User, error) {
	if err := s.refreshIfNeeded(); err != nil {
		return User{}, err
	}
	if err := schema.ValidateUserID(schema.UserID(username)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	s.mu.RLock()
	user, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// prepare refreshes and validates the username for a mutation.
func (s *Store) prepare(username string) (string, error) {
	if err := s.refreshIfNeeded(); err != nil {
		return "", err
	}
	if err := schema.ValidateUserID(schema.UserID(username)); err != nil {
		return "", errors.New("invalid username")
	}
	return username, nil
}

func (s *Store) updateUser(username, logMsg string, mutate func(*User)) error {
	normalized, err := s.prepare(username)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[normalized]
	if !ok {
		return ErrUserNotFound
	}
	mutate(&user)
	s.users[normalized] = user
	if err := s.saveLocked(); err != nil {
		return err
	}
	s.info(logMsg, "user", normalized)
	return nil
}

func (s *Store) ensureFile(seeds []appconfig.SeedUser) error {
	if _, statErr := os.Stat(s.path); statErr == nil {
		return nil
	} else if !os.IsNotExist(statErr) {
		return statErr
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	users := make([]User, 0, len(seeds))
	for _, seed := range seeds {
		if err := schema.ValidateUserID(schema.UserID(seed.Username)); err != nil {
			return errors.New("invalid seed username " + seed.Username)
		}
		users = append(users, User{
			Username:     seed.Username,
			PasswordHash: seed.PasswordHash,
			TOTPSecret:   seed.TOTPSecret,
		})
	}
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return err
	}
	s.info("auth store initialized", "users", len(users))
	return nil
}

// saveLocked writes the store atomically. Callers hold s.mu.
func (s *Store) saveLocked() error {
	keys := make([]string, 0, len(s.users))
	for key := range s.users {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	users := make([]User, 0, len(keys))
	for _, key := range keys {
		users = append(users, s.users[key])
	}
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return s.saveFailed(err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "users-*.json")
	if err != nil {
		return s.saveFailed(err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return s.saveFailed(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return s.saveFailed(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return s.saveFailed(err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return s.saveFailed(err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return s.saveFailed(err)
	}
	if info, err := os.Stat(s.path); err == nil {
		s.fileState = fileStateFromInfo(info)
	}
	return nil
}

func (s *Store) saveFailed(err error) error {
	s.warn("auth store save failed", "err", err)
	return err
}

func (s *Store) refreshIfNeeded() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return err
	}
	latest := fileStateFromInfo(info)
	s.mu.RLock()
	current := s.fileState
	s.mu.RUnlock()
	if current.equal(latest) {
		return nil
	}
	return s.loadFromDisk()
}

func (s *Store) loadFromDisk() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var users []User
	if err := json.Unmarshal(data, &users); err != nil {
		s.warn("auth store load failed", "err", err)
		return err
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return err
	}
	next := make(map[string]User, len(users))
	for _, user := range users {
		if err := schema.ValidateUserID(schema.UserID(user.Username)); err != nil {
			s.warn("auth store load failed", "user", user.Username, "err", err)
			return errors.New("invalid username in user file")
		}
		next[user.Username] = user
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = next
	s.fileState = fileStateFromInfo(info)
	return nil
}

func (s *Store) info(msg string, kv ...any) {
	if s.log != nil {
		s.log.Info(msg, kv...)
	}
}

func (s *Store) warn(msg string, kv ...any) {
	if s.log != nil {
		s.log.Warn(msg, kv...)
	}
}

// fileState detects out-of-band edits to the user file.
type fileState struct {
	modTime time.Time
	size    int64
	inode   uint64
	dev     uint64
}

func fileStateFromInfo(info os.FileInfo) fileState {
	state := fileState{
		modTime: info.ModTime(),
		size:    info.Size(),
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		state.inode = stat.Ino
		state.dev = stat.Dev
	}
	return state
}

func (s fileState) equal(other fileState) bool {
	return s.size == other.size &&
		s.modTime.Equal(other.modTime) &&
		s.inode == other.inode &&
		s.dev == other.dev
}

func parseAuthorizedKey(raw string) (string, ssh.PublicKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil, errors.New("pubkey is required")
	}
	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(trimmed))
	if err != nil {
		return "", nil, errors.New("invalid pubkey")
	}
	return trimmed, key, nil
}

func keyEqual(raw string, key ssh.PublicKey) bool {
	parsed, _, _, _, err := ssh.ParseAuthorizedKey([]byte(strings.TrimSpace(raw)))
	if err != nil {
		return false
	}
	return bytes.Equal(parsed.Marshal(), key.Marshal())
}
