package repository

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cineai/models"

	"github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketUsers  = []byte("users")
	bucketEmails = []byte("emails")
)

// Sentinel errors for account storage
var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("email already registered")
)

// UserRepository stores local accounts in a BoltDB file.
// Users are kept as JSON under their id, with a lowercase email index.
type UserRepository struct {
	db *bolt.DB
}

// NewUserRepository opens (or creates) the account database at path
func NewUserRepository(path string) (*UserRepository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create account directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketUsers, bucketEmails} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &UserRepository{db: db}, nil
}

// Close closes the underlying database
func (r *UserRepository) Close() error {
	return r.db.Close()
}

// Create stores a new user. The email must not be registered yet.
func (r *UserRepository) Create(user *models.User) error {
	email := normalizeEmail(user.Email)
	if user.ID == "" || email == "" {
		return fmt.Errorf("user id and email are required")
	}

	return r.db.Update(func(tx *bolt.Tx) error {
		emails := tx.Bucket(bucketEmails)
		if emails.Get([]byte(email)) != nil {
			return ErrUserExists
		}
		if err := emails.Put([]byte(email), []byte(user.ID)); err != nil {
			return err
		}
		return putUser(tx, user)
	})
}

// Update replaces a stored user. The email cannot change.
func (r *UserRepository) Update(user *models.User) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketUsers).Get([]byte(user.ID)) == nil {
			return ErrUserNotFound
		}
		return putUser(tx, user)
	})
}

// GetByID retrieves a user by id
func (r *UserRepository) GetByID(id string) (*models.User, error) {
	var user *models.User
	err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		user, err = getUser(tx, id)
		return err
	})
	return user, err
}

// GetByEmail retrieves a user by email, ignoring case
func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	var user *models.User
	err := r.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketEmails).Get([]byte(normalizeEmail(email)))
		if id == nil {
			return ErrUserNotFound
		}
		var err error
		user, err = getUser(tx, string(id))
		return err
	})
	return user, err
}

// Count returns the number of registered users
func (r *UserRepository) Count() (int, error) {
	var n int
	err := r.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketUsers).Stats().KeyN
		return nil
	})
	return n, err
}

func putUser(tx *bolt.Tx, user *models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	return tx.Bucket(bucketUsers).Put([]byte(user.ID), data)
}

func getUser(tx *bolt.Tx, id string) (*models.User, error) {
	data := tx.Bucket(bucketUsers).Get([]byte(id))
	if data == nil {
		return nil, ErrUserNotFound
	}
	var user models.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	return &user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
