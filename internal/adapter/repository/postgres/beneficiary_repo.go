package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/paystreamhq/paystream-backend/internal/domain"
)

// beneficiaryRepository implements domain.BeneficiaryRepository
type beneficiaryRepository struct {
	db *DB
}

// NewBeneficiaryRepository creates a new beneficiary repository
func NewBeneficiaryRepository(db *DB) domain.BeneficiaryRepository {
	return &beneficiaryRepository{db: db}
}

// Save persists a verified beneficiary, updating the existing row when the
// user already saved this account at this bank
func (r *beneficiaryRepository) Save(ctx context.Context, b *domain.Beneficiary) error {
	if err := b.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO beneficiaries (id, user_id, name, account_number, bank_code, bank_name, nickname, total_transfers, last_used)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8)
		ON CONFLICT (user_id, account_number, bank_code)
		DO UPDATE SET name = EXCLUDED.name,
		              bank_name = EXCLUDED.bank_name,
		              nickname = EXCLUDED.nickname,
		              total_transfers = beneficiaries.total_transfers + 1,
		              last_used = EXCLUDED.last_used
	`

	_, err := r.db.ExecContext(ctx, query,
		b.ID,
		b.UserID,
		b.Name,
		b.AccountNumber,
		b.BankCode,
		b.BankName,
		b.Nickname,
		b.LastUsed,
	)
	if err != nil {
		return fmt.Errorf("failed to save beneficiary: %w", err)
	}

	return nil
}

// ListByUser retrieves the beneficiaries saved by a user, most recently used
// first
func (r *beneficiaryRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Beneficiary, error) {
	query := `
		SELECT id, user_id, name, account_number, bank_code, bank_name, nickname, total_transfers, last_used
		FROM beneficiaries
		WHERE user_id = $1
		ORDER BY last_used DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list beneficiaries: %w", err)
	}
	defer rows.Close()

	var beneficiaries []*domain.Beneficiary
	for rows.Next() {
		var b domain.Beneficiary
		if err := rows.Scan(
			&b.ID,
			&b.UserID,
			&b.Name,
			&b.AccountNumber,
			&b.BankCode,
			&b.BankName,
			&b.Nickname,
			&b.TotalTransfers,
			&b.LastUsed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan beneficiary: %w", err)
		}
		beneficiaries = append(beneficiaries, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate beneficiaries: %w", err)
	}

	return beneficiaries, nil
}

// Delete removes a saved beneficiary
func (r *beneficiaryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM beneficiaries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete beneficiary: %w", err)
	}
	return nil
}
