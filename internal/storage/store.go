package storage

import (
	"errors"
	"fmt"

	"invertrack-go/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrUserNotFound is returned by lookups when no record matches.
var ErrUserNotFound = errors.New("user not found")

// Store provides access to the two persisted collections: users and
// transactions. User records are rewritten last-write-wins as one unit;
// transactions are append-only.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore creates a Store on top of an open gorm connection.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger.Named("store")}
}

// SaveUser inserts or fully rewrites a user record.
func (s *Store) SaveUser(user *models.User) error {
	if err := s.db.Save(user).Error; err != nil {
		return fmt.Errorf("failed to save user %s: %w", user.Username, err)
	}
	return nil
}

// GetUser returns the user with the given username, or ErrUserNotFound.
func (s *Store) GetUser(username string) (*models.User, error) {
	var user models.User
	err := s.db.Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", username, err)
	}
	return &user, nil
}

// GetUserByEmail returns the user with the given email, matched
// case-insensitively, or ErrUserNotFound.
func (s *Store) GetUserByEmail(email string) (*models.User, error) {
	if email == "" {
		return nil, ErrUserNotFound
	}
	var user models.User
	err := s.db.Where("lower(email) = lower(?)", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user by email: %w", err)
	}
	return &user, nil
}

// AppendTransaction adds a fill to the append-only transaction history.
func (s *Store) AppendTransaction(tx *models.Transaction) error {
	if err := s.db.Create(tx).Error; err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// TransactionsForUser returns a user's full history ordered by time.
func (s *Store) TransactionsForUser(username string) ([]models.Transaction, error) {
	var txs []models.Transaction
	if err := s.db.Where("username = ?", username).Order("timestamp asc").Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to load transactions for %s: %w", username, err)
	}
	return txs, nil
}

// TransactionsForUserSymbol returns a user's history for one symbol ordered by time.
func (s *Store) TransactionsForUserSymbol(username, symbol string) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := s.db.Where("username = ? AND symbol = ?", username, symbol).
		Order("timestamp asc").Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load %s transactions for %s: %w", symbol, username, err)
	}
	return txs, nil
}

// ApplyTrade commits the user rewrite (cash + holdings) and the new
// transaction in a single database transaction. Either both records land
// or neither does; callers must not treat in-memory state as authoritative
// until this returns nil.
func (s *Store) ApplyTrade(user *models.User, tx *models.Transaction) error {
	err := s.db.Transaction(func(dbtx *gorm.DB) error {
		if err := dbtx.Save(user).Error; err != nil {
			return fmt.Errorf("failed to save user %s: %w", user.Username, err)
		}
		if err := dbtx.Create(tx).Error; err != nil {
			return fmt.Errorf("failed to append transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Trade persistence failed, nothing committed",
			zap.String("user", user.Username),
			zap.String("symbol", tx.Symbol),
			zap.Error(err))
		return err
	}
	return nil
}
