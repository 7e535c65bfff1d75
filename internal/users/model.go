package users

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode"
)

const (
	maxNameLength     = 120
	minPasswordLength = 6
)

// Names are letters with non-consecutive apostrophes or dashes.
var nameExpression = regexp.MustCompile(`^[A-Za-z]+([-'][A-Za-z]+)*$`)

var (
	// ErrInvalidName indicates a first or last name outside the allowed
	// alphabet.
	ErrInvalidName = errors.New("users: invalid name")
	// ErrInvalidUsername indicates a username that is not a valid email
	// address.
	ErrInvalidUsername = errors.New("users: invalid username")
	// ErrInvalidPassword indicates a password that fails the strength policy.
	ErrInvalidPassword = errors.New("users: invalid password")
)

// User is the persisted account record. PasswordHash holds an argon2id
// digest and is never serialized outward.
type User struct {
	ID             string    `gorm:"column:id;primaryKey;size:36;not null"`
	FirstName      string    `gorm:"column:first_name;size:120;not null"`
	LastName       string    `gorm:"column:last_name;size:120;not null"`
	Username       string    `gorm:"column:username;size:320;not null;uniqueIndex"`
	PasswordHash   string    `gorm:"column:password_hash;size:255;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	LastModifiedAt time.Time `gorm:"column:last_modified_at;autoUpdateTime"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

// ValidateName checks a first or last name against the allowed alphabet.
func ValidateName(value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || len(trimmed) > maxNameLength {
		return ErrInvalidName
	}
	if !nameExpression.MatchString(trimmed) {
		return fmt.Errorf("%w: %q", ErrInvalidName, trimmed)
	}
	return nil
}

// NormalizeUsername validates email syntax and returns the case-normalized
// login key.
func NormalizeUsername(value string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return "", ErrInvalidUsername
	}
	parsed, err := mail.ParseAddress(trimmed)
	if err != nil || parsed.Address != trimmed {
		return "", fmt.Errorf("%w: %q", ErrInvalidUsername, value)
	}
	return trimmed, nil
}

// ValidatePassword enforces the strength policy: at least six characters with
// a letter, a digit, and a special character.
func ValidatePassword(value string) error {
	if len(value) < minPasswordLength {
		return fmt.Errorf("%w: at least %d characters required", ErrInvalidPassword, minPasswordLength)
	}
	var hasLetter, hasDigit, hasSpecial bool
	for _, r := range value {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}
	if !hasLetter || !hasDigit || !hasSpecial {
		return fmt.Errorf("%w: letter, digit and special character required", ErrInvalidPassword)
	}
	return nil
}
