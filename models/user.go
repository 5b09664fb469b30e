package models

// Role is the access level of an account
type Role string

// Role constants
const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User is a local account. Passwords are stored as entered.
type User struct {
	ID         string   `json:"id"`
	Name       string   `json:"name" validate:"required"`
	Email      string   `json:"email" validate:"required,email"`
	Password   string   `json:"password,omitempty" validate:"required"`
	Avatar     string   `json:"avatar,omitempty"`
	Favorites  []string `json:"favorites"`
	JoinedDate string   `json:"joinedDate"`
	Role       Role     `json:"role"`
}

// IsAdmin reports whether the user has the admin role
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// IsFavorite reports whether movieID is among the user's favorites
func (u *User) IsFavorite(movieID string) bool {
	for _, id := range u.Favorites {
		if id == movieID {
			return true
		}
	}
	return false
}

// Public returns a copy of the user without the password
func (u User) Public() User {
	u.Password = ""
	return u
}
