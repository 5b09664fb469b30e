package services

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cineai/models"
	"cineai/repository"

	"github.com/google/uuid"
)

// Sentinel errors for account operations
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidAccount     = errors.New("invalid account data")
)

const avatarURL = "https://api.dicebear.com/7.x/avataaars/svg?seed="

// AccountService manages local accounts and their favorites.
// Passwords are compared as stored, there is no hashing.
type AccountService struct {
	users      *repository.UserRepository
	adminEmail string
	now        func() time.Time
}

// NewAccountService creates an account service. Registering with adminEmail
// grants the admin role.
func NewAccountService(users *repository.UserRepository, adminEmail string) *AccountService {
	return &AccountService{
		users:      users,
		adminEmail: strings.ToLower(strings.TrimSpace(adminEmail)),
		now:        time.Now,
	}
}

// Register creates a new account and returns it
func (s *AccountService) Register(name, email, password string) (*models.User, error) {
	user := &models.User{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(name),
		Email:      strings.ToLower(strings.TrimSpace(email)),
		Password:   password,
		Favorites:  []string{},
		JoinedDate: s.now().Format("2006-01-02"),
		Role:       models.RoleUser,
	}
	if err := validate.Struct(user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}

	user.Avatar = avatarURL + url.QueryEscape(user.Name)
	if s.adminEmail != "" && user.Email == s.adminEmail {
		user.Role = models.RoleAdmin
	}

	if err := s.users.Create(user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login returns the account matching email and password
func (s *AccountService) Login(email, password string) (*models.User, error) {
	user, err := s.users.GetByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.Password != password {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Get returns the account with the given id
func (s *AccountService) Get(id string) (*models.User, error) {
	return s.users.GetByID(id)
}

// ToggleFavorite adds movieID to the user's favorites or removes it if
// present. It returns the updated user and whether the movie is now a favorite.
func (s *AccountService) ToggleFavorite(userID, movieID string) (*models.User, bool, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return nil, false, err
	}

	favorite := !user.IsFavorite(movieID)
	if favorite {
		user.Favorites = append(user.Favorites, movieID)
	} else {
		kept := make([]string, 0, len(user.Favorites))
		for _, id := range user.Favorites {
			if id != movieID {
				kept = append(kept, id)
			}
		}
		user.Favorites = kept
	}

	if err := s.users.Update(user); err != nil {
		return nil, false, fmt.Errorf("failed to save favorites: %w", err)
	}
	return user, favorite, nil
}
