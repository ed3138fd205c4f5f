package domain

import (
	"context"

	"github.com/google/uuid"
)

// BeneficiaryRepository defines the interface for beneficiary persistence
// operations. Saving is a best-effort side effect after a completed transfer;
// its failure must never fail the transfer itself.
type BeneficiaryRepository interface {
	// Save persists a verified beneficiary for reuse
	Save(ctx context.Context, b *Beneficiary) error

	// ListByUser retrieves the beneficiaries saved by a user
	ListByUser(ctx context.Context, userID string) ([]*Beneficiary, error)

	// Delete removes a saved beneficiary
	Delete(ctx context.Context, id uuid.UUID) error
}

// AccountGateway provides the sender account snapshot and its limit windows.
// Limits are read-only from the engine's point of view; used counters are
// maintained by the external ledger.
type AccountGateway interface {
	// GetAccount retrieves an account by its ID
	GetAccount(ctx context.Context, accountID string) (*Account, error)

	// GetLimits retrieves the limit snapshot for an account and transfer type
	GetLimits(ctx context.Context, accountID string, transferType TransferType) (*TransferLimits, error)
}

// RecipientVerificationClient is the interface to the external account-name
// lookup authority. Implementations may be network calls with their own
// timeout and retry policy; the engine invokes them with an explicit timeout.
type RecipientVerificationClient interface {
	// Verify resolves the authoritative account name for an account at a bank.
	// When the result's IsValid is true, AccountName is non-empty.
	Verify(ctx context.Context, accountNumber, bankCode string) (*VerificationResult, error)
}

// SettlementClient submits a finalized transfer for settlement. Submissions
// are idempotent on the client-generated idempotency key: a retried call with
// the same key has at most one effect.
type SettlementClient interface {
	Submit(ctx context.Context, data TransferData, quote Quote, idempotencyKey string) (*TransferResponse, error)
}

// PermissionChecker gates whether a transfer type is offered to a user at
// all. Consulted once at workflow start.
type PermissionChecker interface {
	HasPermission(userPermissions map[string]int, featureKey string, minLevel int) bool
}
