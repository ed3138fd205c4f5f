package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Error codes carried on TransferError and its specializations. Settlement
// failures keep the collaborator's own code instead of one of these.
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeLimitExceeded      = "LIMIT_EXCEEDED"
	ErrCodeInsufficientFunds  = "INSUFFICIENT_FUNDS"
	ErrCodeStaleQuote         = "STALE_QUOTE"
	ErrCodeVerificationFailed = "VERIFICATION_FAILED"
	ErrCodePermissionDenied   = "PERMISSION_DENIED"
	ErrCodeInvalidState       = "INVALID_STATE"
)

// Limit types reported by LimitExceededError
const (
	LimitPerTransaction = "perTransaction"
	LimitDaily          = "daily"
	LimitMonthly        = "monthly"
)

// TransferError is the base typed failure returned across the workflow
// boundary. It is always returned, never panicked, so callers must handle it.
type TransferError struct {
	Code    string
	Message string
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidationError carries field-level validation failures. Recoverable: the
// caller corrects the named fields and retries the same step.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrCodeValidation
	}
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	return fmt.Sprintf("%s: invalid fields: %s", ErrCodeValidation, strings.Join(names, ", "))
}

// LimitExceededError reports the first violated limit window. Recoverable
// only by reducing the amount or waiting for the window to reset.
type LimitExceededError struct {
	LimitType string
	Limit     decimal.Decimal
	Attempted decimal.Decimal
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s: %s limit exceeded: limit %s, attempted %s",
		ErrCodeLimitExceeded, e.LimitType, e.Limit, e.Attempted)
}

// InsufficientFundsError reports a funds shortfall, checked after all limit
// policies so policy violations are surfaced preferentially.
type InsufficientFundsError struct {
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("%s: available %s, required %s",
		ErrCodeInsufficientFunds, e.Available, e.Required)
}

// StaleQuoteError means the fee recomputed at finalize no longer matches the
// quote shown at review. Recoverable by returning to review for a new quote.
type StaleQuoteError struct {
	Quoted  Quote
	Current Quote
}

func (e *StaleQuoteError) Error() string {
	return fmt.Sprintf("%s: quoted fee %s, current fee %s",
		ErrCodeStaleQuote, e.Quoted.Fee, e.Current.Fee)
}

// VerificationFailedError means the recipient could not be confirmed by the
// verification authority. Recoverable by re-entering recipient details.
type VerificationFailedError struct {
	AccountNumber string
	BankCode      string
	Reason        string
}

func (e *VerificationFailedError) Error() string {
	return fmt.Sprintf("%s: account %s at bank %s: %s",
		ErrCodeVerificationFailed, e.AccountNumber, e.BankCode, e.Reason)
}

// SettlementError surfaces the settlement collaborator's failure with its
// original code preserved. Transient marks a network-level failure that may
// be retried exactly once with the same idempotency key; declined or
// fraud-flagged settlements are never retried.
type SettlementError struct {
	Code      string
	Message   string
	Transient bool
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settlement failed (%s): %s", e.Code, e.Message)
}
