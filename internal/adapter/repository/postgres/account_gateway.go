package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/paystreamhq/paystream-backend/internal/config"
	"github.com/paystreamhq/paystream-backend/internal/domain"
)

// accountGateway implements domain.AccountGateway. Limit policies come from
// configuration keyed by (role, transfer type); the used counters come from
// the settled-transfer ledger rows.
type accountGateway struct {
	db     *DB
	limits config.LimitTable
}

// NewAccountGateway creates a new account gateway
func NewAccountGateway(db *DB, limits config.LimitTable) domain.AccountGateway {
	return &accountGateway{db: db, limits: limits}
}

// GetAccount retrieves an active account by its ID
func (g *accountGateway) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	query := `
		SELECT id, account_number, account_name, balance, currency, role
		FROM accounts
		WHERE id = $1 AND is_active = true
	`

	var account domain.Account
	var balanceStr string

	err := g.db.QueryRowContext(ctx, query, accountID).Scan(
		&account.ID,
		&account.AccountNumber,
		&account.AccountName,
		&balanceStr,
		&account.Currency,
		&account.Role,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance: %w", err)
	}
	account.Balance = balance

	return &account, nil
}

// GetLimits builds the limit snapshot for an account: policy caps from the
// configured table, used counters summed from completed and in-flight
// transfers in the current day and month
func (g *accountGateway) GetLimits(ctx context.Context, accountID string, transferType domain.TransferType) (*domain.TransferLimits, error) {
	account, err := g.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	policy, ok := g.limits.PolicyFor(account.Role, transferType)
	if !ok {
		return nil, fmt.Errorf("no limit policy for role %q and type %q", account.Role, transferType)
	}

	query := `
		SELECT
			COALESCE(SUM(total_amount) FILTER (WHERE created_at >= date_trunc('day', now())), 0),
			COALESCE(SUM(total_amount) FILTER (WHERE created_at >= date_trunc('month', now())), 0)
		FROM transfers
		WHERE sender_account_id = $1
		AND status IN ('completed', 'processing')
	`

	var dailyStr, monthlyStr string
	if err := g.db.QueryRowContext(ctx, query, accountID).Scan(&dailyStr, &monthlyStr); err != nil {
		return nil, fmt.Errorf("failed to sum transfer usage: %w", err)
	}

	dailyUsed, err := decimal.NewFromString(dailyStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse daily usage: %w", err)
	}
	monthlyUsed, err := decimal.NewFromString(monthlyStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse monthly usage: %w", err)
	}

	return policy.Limits(dailyUsed, monthlyUsed), nil
}
