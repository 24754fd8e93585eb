package repository

import (
	"context"
	"errors"
	"strings"
	"summit-webhook/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrAccountNotFound = errors.New("account not found")

// AccountStore is the persistence contract payment fulfillment needs from
// the account backend. FindAccountByEmail matches case-insensitively and
// must not enumerate accounts client-side.
type AccountStore interface {
	FindAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	UpdateAccountPlan(ctx context.Context, accountID, plan string) error
	// InsertTransactionIfAbsent reports false when a transaction with the same
	// provider transaction id already exists. Check and insert are a single
	// statement guarded by a unique index.
	InsertTransactionIfAbsent(ctx context.Context, txn *model.AccountTransaction) (bool, error)
	// RunInTx runs fn against a store whose writes commit or roll back
	// together, where the backend supports it.
	RunInTx(ctx context.Context, fn func(store AccountStore) error) error
}

type accountRepoImpl struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) AccountStore {
	return &accountRepoImpl{
		db: db,
	}
}

func (r *accountRepoImpl) FindAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	var account model.Account
	// rows written outside this service may carry mixed-case addresses
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	return &account, nil
}

func (r *accountRepoImpl) UpdateAccountPlan(ctx context.Context, accountID, plan string) error {
	result := r.db.
		WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"plan":       plan,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

func (r *accountRepoImpl) InsertTransactionIfAbsent(ctx context.Context, txn *model.AccountTransaction) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_transaction_id"}},
		DoNothing: true,
	}).Create(txn)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (r *accountRepoImpl) RunInTx(ctx context.Context, fn func(store AccountStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&accountRepoImpl{db: tx})
	})
}
