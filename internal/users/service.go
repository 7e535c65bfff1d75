package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mprlab/noted/internal/auth"
)

var (
	// ErrDuplicateUsername indicates a signup against an already-registered
	// username. Creation fails; existing accounts are never overwritten.
	ErrDuplicateUsername = errors.New("users: username already exists")
	// ErrInvalidCredentials covers both an unknown username and a password
	// mismatch, so error content cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrUserNotFound indicates a lookup for an id with no account behind it.
	ErrUserNotFound = errors.New("users: user not found")

	errMissingDatabase = errors.New("users: database connection required")
	errMissingHasher   = errors.New("users: password hasher required")
	errMissingTokens   = errors.New("users: token service required")
)

// ServiceConfig describes the dependencies for account management.
type ServiceConfig struct {
	Database *gorm.DB
	Hasher   *auth.PasswordHasher
	Tokens   *auth.TokenService
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns user signup, signin and lookup.
type Service struct {
	db     *gorm.DB
	hasher *auth.PasswordHasher
	tokens *auth.TokenService
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Hasher == nil {
		return nil, errMissingHasher
	}
	if cfg.Tokens == nil {
		return nil, errMissingTokens
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		hasher: cfg.Hasher,
		tokens: cfg.Tokens,
		now:    clock,
		logger: logger,
	}, nil
}

// SignUpRequest carries signup input; the service validates before touching
// storage.
type SignUpRequest struct {
	FirstName string
	LastName  string
	Username  string
	Password  string
}

// SignUp validates the request, hashes the password and creates the account.
// Username uniqueness is enforced both by a pre-check and by the unique index,
// so a concurrent duplicate signup surfaces as ErrDuplicateUsername rather
// than a silent overwrite.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (User, error) {
	if err := ValidateName(req.FirstName); err != nil {
		return User{}, err
	}
	if err := ValidateName(req.LastName); err != nil {
		return User{}, err
	}
	username, err := NormalizeUsername(req.Username)
	if err != nil {
		return User{}, err
	}
	if err := ValidatePassword(req.Password); err != nil {
		return User{}, err
	}

	var existing User
	err = s.db.WithContext(ctx).Where("username = ?", username).Take(&existing).Error
	if err == nil {
		return User{}, ErrDuplicateUsername
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, fmt.Errorf("users: username lookup failed: %w", err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return User{}, fmt.Errorf("users: hashing password: %w", err)
	}

	now := s.now().UTC()
	account := User{
		ID:             uuid.NewString(),
		FirstName:      strings.TrimSpace(req.FirstName),
		LastName:       strings.TrimSpace(req.LastName),
		Username:       username,
		PasswordHash:   hash,
		CreatedAt:      now,
		LastModifiedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicateUsername
		}
		return User{}, fmt.Errorf("users: creating account: %w", err)
	}

	s.logger.Info("user created", zap.String("user_id", account.ID))
	return account, nil
}

// Session is the outcome of a successful signin.
type Session struct {
	UserID    string
	Token     string
	ExpiresIn int64
}

// SignIn verifies the credentials and issues a session token. An unknown
// username and a wrong password are indistinguishable to the caller.
func (s *Service) SignIn(ctx context.Context, username, password string) (Session, error) {
	normalized, err := NormalizeUsername(username)
	if err != nil {
		return Session{}, ErrInvalidCredentials
	}

	var account User
	err = s.db.WithContext(ctx).Where("username = ?", normalized).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("users: account lookup failed: %w", err)
	}

	matches, err := s.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		// A stored hash that cannot be decoded is an integrity failure in our
		// own data, not a credential problem.
		s.logger.Error("stored password hash is malformed", zap.String("user_id", account.ID))
		return Session{}, fmt.Errorf("users: verifying password: %w", err)
	}
	if !matches {
		return Session{}, ErrInvalidCredentials
	}

	token, expiresIn, err := s.tokens.Issue(account.ID)
	if err != nil {
		return Session{}, fmt.Errorf("users: issuing token: %w", err)
	}
	return Session{UserID: account.ID, Token: token, ExpiresIn: expiresIn}, nil
}

// Lookup returns the account behind an id, typically a validated token
// subject.
func (s *Service) Lookup(ctx context.Context, id string) (User, error) {
	if strings.TrimSpace(id) == "" {
		return User{}, ErrUserNotFound
	}
	var account User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("users: account lookup failed: %w", err)
	}
	return account, nil
}

// LookupByUsername resolves a normalized username to its account, used when
// resolving share targets.
func (s *Service) LookupByUsername(ctx context.Context, username string) (User, error) {
	normalized, err := NormalizeUsername(username)
	if err != nil {
		return User{}, ErrUserNotFound
	}
	var account User
	err = s.db.WithContext(ctx).Where("username = ?", normalized).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("users: account lookup failed: %w", err)
	}
	return account, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint")
}
