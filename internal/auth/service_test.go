package auth

import (
	"context"
	"testing"

	"invertrack-go/internal/config"
	"invertrack-go/internal/database"
	"invertrack-go/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupAuthTest(t *testing.T) *Service {
	// Use a new, non-shared in-memory database for each test to ensure isolation.
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, database.AutoMigrate(db))

	logger := zap.NewNop()
	store := storage.NewStore(db, logger)
	// Demo mode logs codes instead of calling the mail provider.
	email := NewEmailSender(config.Email{DemoMode: true, RateLimit: 100, RateLimitBurst: 10}, logger)
	return NewService(logger, store, email)
}

func TestRegisterAndConfirm(t *testing.T) {
	svc := setupAuthTest(t)
	ctx := context.Background()

	err := svc.Register(ctx, "alice", "alice@example.com", "hunter22", decimal.NewFromInt(10000))
	assert.NoError(t, err)

	// The account must not exist before the code is confirmed.
	_, err = svc.store.GetUser("alice")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)

	code, ok := svc.PendingCode("alice")
	assert.True(t, ok)
	assert.Len(t, code, 6)

	_, _, err = svc.ConfirmRegistration(ctx, "alice", "000000x")
	assert.ErrorIs(t, err, ErrInvalidCode)

	user, token, err := svc.ConfirmRegistration(ctx, "alice", code)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, user.EmailVerified)
	assert.True(t, user.CashBalance.Equal(decimal.NewFromInt(10000)))

	username, ok := svc.UserForToken(token)
	assert.True(t, ok)
	assert.Equal(t, "alice", username)

	// Confirming twice must fail; the pending entry is consumed.
	_, _, err = svc.ConfirmRegistration(ctx, "alice", code)
	assert.ErrorIs(t, err, ErrNoPendingRegistration)
}

func TestRegisterValidation(t *testing.T) {
	svc := setupAuthTest(t)
	ctx := context.Background()

	var vErr *ValidationError

	err := svc.Register(ctx, "", "a@b.co", "pw", decimal.NewFromInt(100))
	assert.ErrorAs(t, err, &vErr)

	err = svc.Register(ctx, "bob", "not-an-email", "pw", decimal.NewFromInt(100))
	assert.ErrorAs(t, err, &vErr)
	assert.Equal(t, "email", vErr.Field)

	err = svc.Register(ctx, "bob", "bob@example.com", "pw", decimal.Zero)
	assert.ErrorAs(t, err, &vErr)
	assert.Equal(t, "cash", vErr.Field)

	err = svc.Register(ctx, "bob", "bob@example.com", "pw", decimal.NewFromInt(-50))
	assert.ErrorAs(t, err, &vErr)
	assert.Equal(t, "cash", vErr.Field)
}

func TestRegisterDuplicates(t *testing.T) {
	svc := setupAuthTest(t)
	ctx := context.Background()

	assert.NoError(t, svc.Register(ctx, "carol", "carol@example.com", "pw", decimal.NewFromInt(500)))
	code, _ := svc.PendingCode("carol")
	_, _, err := svc.ConfirmRegistration(ctx, "carol", code)
	assert.NoError(t, err)

	var vErr *ValidationError

	err = svc.Register(ctx, "carol", "other@example.com", "pw", decimal.NewFromInt(500))
	assert.ErrorAs(t, err, &vErr)
	assert.Equal(t, "username", vErr.Field)

	// Email uniqueness is case-insensitive.
	err = svc.Register(ctx, "carol2", "CAROL@Example.com", "pw", decimal.NewFromInt(500))
	assert.ErrorAs(t, err, &vErr)
	assert.Equal(t, "email", vErr.Field)
}

func TestLogin(t *testing.T) {
	svc := setupAuthTest(t)
	ctx := context.Background()

	assert.NoError(t, svc.Register(ctx, "dave", "dave@example.com", "secret", decimal.NewFromInt(1000)))
	code, _ := svc.PendingCode("dave")
	_, _, err := svc.ConfirmRegistration(ctx, "dave", code)
	assert.NoError(t, err)

	_, err = svc.Login("dave", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login("nobody", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	token, err := svc.Login("dave", "secret")
	assert.NoError(t, err)
	username, ok := svc.UserForToken(token)
	assert.True(t, ok)
	assert.Equal(t, "dave", username)

	svc.Logout(token)
	_, ok = svc.UserForToken(token)
	assert.False(t, ok)
}

func TestPasswordReset(t *testing.T) {
	svc := setupAuthTest(t)
	ctx := context.Background()

	assert.NoError(t, svc.Register(ctx, "erin", "erin@example.com", "oldpw", decimal.NewFromInt(1000)))
	code, _ := svc.PendingCode("erin")
	_, _, err := svc.ConfirmRegistration(ctx, "erin", code)
	assert.NoError(t, err)

	// Unknown email is silently accepted.
	assert.NoError(t, svc.RequestPasswordReset(ctx, "ghost@example.com"))

	assert.NoError(t, svc.RequestPasswordReset(ctx, "erin@example.com"))
	svc.mu.Lock()
	resetCode := svc.pendingResets["erin@example.com"]
	svc.mu.Unlock()
	assert.Len(t, resetCode, 6)

	err = svc.ResetPassword("erin@example.com", "badcode", "newpw")
	assert.ErrorIs(t, err, ErrInvalidCode)

	assert.NoError(t, svc.ResetPassword("erin@example.com", resetCode, "newpw"))

	_, err = svc.Login("erin", "oldpw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	token, err := svc.Login("erin", "newpw")
	assert.NoError(t, err)
	assert.NotEmpty(t, token)
}
