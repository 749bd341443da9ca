// Package identity tracks who is signed in to the storefront.
package identity

import (
	"context"
)

// User is the signed-in user. Email is the identity the cart is keyed by.
type User struct {
	ID    string `json:"userId"`
	Name  string `json:"userName"`
	Email string `json:"email"`
}

// Result is the outcome of a sign-in or sign-up attempt. Error is a message fit for display.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SignUpRequest is the registration form.
type SignUpRequest struct {
	UserName        string `json:"userName" validate:"required,max=64"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword,omitempty" validate:"omitempty,eqfield=Password"`
}

// Authenticator verifies credentials and registers users.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (User, error)
	SignUp(ctx context.Context, req SignUpRequest) (User, error)
}

// Store keeps the signed-in user across restarts.
// Load returns nil without error when nobody is stored.
type Store interface {
	Load(ctx context.Context) (*User, error)
	Save(ctx context.Context, user User) error
	Delete(ctx context.Context) error
}

// Listener observes identity changes. user is nil after sign-out.
type Listener func(ctx context.Context, user *User)

// EmailOf returns the identity key of user, empty for nil.
func EmailOf(user *User) string {
	if user == nil {
		return ""
	}
	return user.Email
}
