// Package repository implements the JSON-file user directory. It is a
// deliberate stand-in for a real database: the platform's durable telemetry
// lives in the journal, and the user directory only has to survive restarts.
package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xsuryanshx/cognitive-load/internal/models"
)

var (
	// ErrEmailTaken means registration used an already-registered email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrUserNotFound means no user matched the lookup.
	ErrUserNotFound = errors.New("user not found")
)

type userFile struct {
	Users []models.User `json:"users"`
}

// UserStore is a thread-safe user directory backed by a single JSON file.
// Every mutation rewrites the whole file; the expected user count makes
// that a non-issue.
type UserStore struct {
	path string
	mu   sync.Mutex
}

// NewUserStore opens (creating if necessary) the user directory at path.
func NewUserStore(path string) (*UserStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create user store directory: %w", err)
		}
	}

	s := &UserStore{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.save(&userFile{Users: []models.User{}}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *UserStore) load() (*userFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read user store: %w", err)
	}
	var f userFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse user store: %w", err)
	}
	return &f, nil
}

func (s *UserStore) save(f *userFile) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode user store: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write user store: %w", err)
	}
	return nil
}

// Create registers a new user with a bcrypt-hashed password.
func (s *UserStore) Create(email, password string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return nil, err
	}

	for _, u := range f.Users {
		if u.Email == email {
			return nil, ErrEmailTaken
		}
	}

	user := models.User{
		UserID:    uuid.NewString(),
		Email:     email,
		CreatedAt: time.Now().Format(time.RFC3339),
	}
	if err := user.SetPassword(password); err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	f.Users = append(f.Users, user)
	if err := s.save(f); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail looks a user up by email.
func (s *UserStore) GetByEmail(email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range f.Users {
		if f.Users[i].Email == email {
			return &f.Users[i], nil
		}
	}
	return nil, ErrUserNotFound
}

// GetByID looks a user up by id.
func (s *UserStore) GetByID(userID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range f.Users {
		if f.Users[i].UserID == userID {
			return &f.Users[i], nil
		}
	}
	return nil, ErrUserNotFound
}

// Authenticate verifies the credentials and returns the user on success.
func (s *UserStore) Authenticate(email, password string) (*models.User, error) {
	user, err := s.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if !user.CheckPassword(password) {
		return nil, ErrUserNotFound
	}
	return user, nil
}
