package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"invertrack-go/internal/models"
	"invertrack-go/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials covers both unknown username and wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrInvalidCode rejects a wrong or expired verification code.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrNoPendingRegistration is returned when a code is confirmed without
	// a registration in progress.
	ErrNoPendingRegistration = errors.New("no pending registration")
)

// ValidationError reports an invalid registration input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// pendingRegistration keeps an unconfirmed account until the email code is
// entered. The user record only reaches storage after confirmation.
type pendingRegistration struct {
	user *models.User
	code string
}

// Service implements registration with email-code verification, login with
// session tokens, and password recovery.
type Service struct {
	logger *zap.Logger
	store  *storage.Store
	email  *EmailSender

	mu            sync.Mutex
	pendingRegs   map[string]pendingRegistration // keyed by username
	pendingResets map[string]string              // email -> code
	sessions      map[string]string              // token -> username
}

// NewService creates the auth service.
func NewService(logger *zap.Logger, store *storage.Store, email *EmailSender) *Service {
	return &Service{
		logger:        logger.Named("auth"),
		store:         store,
		email:         email,
		pendingRegs:   make(map[string]pendingRegistration),
		pendingResets: make(map[string]string),
		sessions:      make(map[string]string),
	}
}

// Register validates a new account request and sends a verification code
// to the given email. The account is not persisted until the code is
// confirmed.
func (s *Service) Register(ctx context.Context, username, email, password string, startingCash decimal.Decimal) error {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if username == "" || password == "" || email == "" {
		return &ValidationError{Field: "form", Message: "please fill in all fields"}
	}
	if !ValidEmail(email) {
		return &ValidationError{Field: "email", Message: "enter a valid email address"}
	}
	if !startingCash.IsPositive() {
		return &ValidationError{Field: "cash", Message: "enter a valid starting amount"}
	}

	if _, err := s.store.GetUser(username); err == nil {
		return &ValidationError{Field: "username", Message: "user already exists"}
	} else if !errors.Is(err, storage.ErrUserNotFound) {
		return err
	}
	if _, err := s.store.GetUserByEmail(email); err == nil {
		return &ValidationError{Field: "email", Message: "a user with that email already exists"}
	} else if !errors.Is(err, storage.ErrUserNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	code := VerificationCode()
	user := &models.User{
		Username:     username,
		PasswordHash: string(hash),
		Email:        email,
		CashBalance:  startingCash,
		Holdings:     models.Holdings{},
	}

	s.mu.Lock()
	s.pendingRegs[username] = pendingRegistration{user: user, code: code}
	s.mu.Unlock()

	body := fmt.Sprintf("Your InverTrack verification code is: %s", code)
	if err := s.email.SendCode(ctx, email, "Email verification - InverTrack", body); err != nil {
		return err
	}

	s.logger.Info("Registration pending verification", zap.String("username", username))
	return nil
}

// ConfirmRegistration checks the emailed code and, on match, persists the
// verified account and logs it in.
func (s *Service) ConfirmRegistration(ctx context.Context, username, code string) (*models.User, string, error) {
	s.mu.Lock()
	pending, ok := s.pendingRegs[username]
	s.mu.Unlock()
	if !ok {
		return nil, "", ErrNoPendingRegistration
	}
	if strings.TrimSpace(code) != pending.code {
		return nil, "", ErrInvalidCode
	}

	pending.user.EmailVerified = true
	if err := s.store.SaveUser(pending.user); err != nil {
		return nil, "", err
	}

	s.mu.Lock()
	delete(s.pendingRegs, username)
	s.mu.Unlock()

	token := s.newSession(username)
	s.logger.Info("User registered", zap.String("username", username))
	return pending.user, token, nil
}

// Login verifies credentials and returns a session token.
func (s *Service) Login(username, password string) (string, error) {
	user, err := s.store.GetUser(username)
	if errors.Is(err, storage.ErrUserNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}

	token := s.newSession(username)
	s.logger.Info("User logged in", zap.String("username", username))
	return token, nil
}

// UserForToken resolves a session token to its username.
func (s *Service) UserForToken(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	username, ok := s.sessions[token]
	return username, ok
}

// Logout invalidates a session token.
func (s *Service) Logout(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// RequestPasswordReset sends a recovery code to the account's email. An
// unknown email is reported the same as a known one so addresses cannot be
// probed.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.store.GetUserByEmail(email)
	if errors.Is(err, storage.ErrUserNotFound) {
		s.logger.Info("Password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	code := VerificationCode()
	s.mu.Lock()
	s.pendingResets[strings.ToLower(email)] = code
	s.mu.Unlock()

	body := fmt.Sprintf("Your InverTrack password recovery code is: %s", code)
	if err := s.email.SendCode(ctx, user.Email, "Password recovery - InverTrack", body); err != nil {
		return err
	}
	return nil
}

// ResetPassword applies a new password if the recovery code matches.
func (s *Service) ResetPassword(email, code, newPassword string) error {
	if newPassword == "" {
		return &ValidationError{Field: "password", Message: "enter a new password"}
	}

	s.mu.Lock()
	expected, ok := s.pendingResets[strings.ToLower(email)]
	s.mu.Unlock()
	if !ok || strings.TrimSpace(code) != expected {
		return ErrInvalidCode
	}

	user, err := s.store.GetUserByEmail(email)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = string(hash)
	if err := s.store.SaveUser(user); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.pendingResets, strings.ToLower(email))
	s.mu.Unlock()

	s.logger.Info("Password reset", zap.String("username", user.Username))
	return nil
}

// PendingCode exposes the active verification code for a username.
// Demo-mode flows surface it to the operator; real deployments read it from
// the email instead.
func (s *Service) PendingCode(username string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending, ok := s.pendingRegs[username]
	if !ok {
		return "", false
	}
	return pending.code, true
}

func (s *Service) newSession(username string) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.sessions[token] = username
	s.mu.Unlock()
	return token
}
