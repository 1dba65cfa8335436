package user

import "time"

// Presence status values.
const (
	StatusOnline  = "ONLINE"
	StatusOffline = "OFFLINE"
)

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	Password     string     `json:"-"`
	FirstName    *string    `json:"firstName"`
	LastName     *string    `json:"lastName"`
	Avatar       *string    `json:"avatar"`
	CustomStatus *string    `json:"customStatus"`
	Status       string     `json:"status"`
	LastSeenAt   *time.Time `json:"lastSeenAt"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type RegisterRequest struct {
	Email     string  `json:"email"`
	Username  string  `json:"username"`
	Password  string  `json:"password"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// ProfileUpdate carries the mutable profile fields; nil means unchanged.
type ProfileUpdate struct {
	FirstName    *string `json:"firstName"`
	LastName     *string `json:"lastName"`
	Avatar       *string `json:"avatar"`
	CustomStatus *string `json:"customStatus"`
}
