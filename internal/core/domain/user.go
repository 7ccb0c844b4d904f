package domain

import "strings"

const MinPasswordLength = 7

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CartID       int64
}

// UserRef is the owner reference embedded in orders.
type UserRef struct {
	ID       int64
	Username string
}

func (u User) Ref() UserRef {
	return UserRef{ID: u.ID, Username: u.Username}
}

// ValidateRegistration checks the create-user input before anything is hashed or stored.
func ValidateRegistration(username, password, confirmPassword string) error {
	if strings.TrimSpace(username) == "" {
		return ErrInvalidUsername
	}
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if password != confirmPassword {
		return ErrPasswordMismatch
	}
	return nil
}
