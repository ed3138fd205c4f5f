package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferType represents the kind of money movement being orchestrated
type TransferType string

const (
	TransferTypeInternal      TransferType = "internal"
	TransferTypeExternal      TransferType = "external"
	TransferTypeBillPayment   TransferType = "bill_payment"
	TransferTypeInternational TransferType = "international"
)

// KnownTransferType reports whether t is a member of the closed enumeration
func KnownTransferType(t TransferType) bool {
	switch t {
	case TransferTypeInternal, TransferTypeExternal, TransferTypeBillPayment, TransferTypeInternational:
		return true
	}
	return false
}

// FeatureKey returns the permission feature key gating this transfer type
func (t TransferType) FeatureKey() string {
	return "transfers." + string(t)
}

// TransferStatus represents the settlement status of a transfer
type TransferStatus string

const (
	TransferStatusPending    TransferStatus = "pending"
	TransferStatusProcessing TransferStatus = "processing"
	TransferStatusCompleted  TransferStatus = "completed"
	TransferStatusFailed     TransferStatus = "failed"
	TransferStatusCancelled  TransferStatus = "cancelled"
)

// TransferFrequency describes how often a scheduled transfer repeats
type TransferFrequency string

const (
	FrequencyOnce      TransferFrequency = "once"
	FrequencyDaily     TransferFrequency = "daily"
	FrequencyWeekly    TransferFrequency = "weekly"
	FrequencyMonthly   TransferFrequency = "monthly"
	FrequencyQuarterly TransferFrequency = "quarterly"
	FrequencyYearly    TransferFrequency = "yearly"
)

// TransferData is the partial transfer request accumulated across workflow
// steps. Fields fill in as the user progresses; a merge never drops a field
// that was set earlier.
type TransferData struct {
	Type            TransferType
	SenderAccountID string
	RecipientName   string
	Amount          decimal.Decimal
	Description     string
	PIN             string

	// external / internal
	RecipientAccountNumber string
	RecipientBankCode      string
	SaveBeneficiary        bool
	BeneficiaryNickname    string

	// bill_payment
	BillerID          string
	CustomerReference string

	// international
	RecipientIBAN  string
	RecipientSWIFT string
	Purpose        string
	SourceOfFunds  string

	// scheduling
	ScheduledDate *time.Time
	Frequency     TransferFrequency
	EndDate       *time.Time
}

// StepPayload carries the fields submitted for a single workflow step.
// Zero-valued fields are treated as "not provided" and leave the accumulated
// data untouched. SaveBeneficiary is a pointer so that an explicit false can
// still be communicated.
type StepPayload struct {
	Type            TransferType
	SenderAccountID string
	RecipientName   string
	Amount          decimal.Decimal
	Description     string
	PIN             string

	RecipientAccountNumber string
	RecipientBankCode      string
	SaveBeneficiary        *bool
	BeneficiaryNickname    string

	BillerID          string
	CustomerReference string

	RecipientIBAN  string
	RecipientSWIFT string
	Purpose        string
	SourceOfFunds  string

	ScheduledDate *time.Time
	Frequency     TransferFrequency
	EndDate       *time.Time
}

// Merge folds a step payload into the accumulated transfer data.
// Only provided (non-zero) fields overwrite.
func (d *TransferData) Merge(p StepPayload) {
	if p.Type != "" {
		d.Type = p.Type
	}
	if p.SenderAccountID != "" {
		d.SenderAccountID = p.SenderAccountID
	}
	if p.RecipientName != "" {
		d.RecipientName = p.RecipientName
	}
	if !p.Amount.IsZero() {
		d.Amount = p.Amount
	}
	if p.Description != "" {
		d.Description = p.Description
	}
	if p.PIN != "" {
		d.PIN = p.PIN
	}
	if p.RecipientAccountNumber != "" {
		d.RecipientAccountNumber = p.RecipientAccountNumber
	}
	if p.RecipientBankCode != "" {
		d.RecipientBankCode = p.RecipientBankCode
	}
	if p.SaveBeneficiary != nil {
		d.SaveBeneficiary = *p.SaveBeneficiary
	}
	if p.BeneficiaryNickname != "" {
		d.BeneficiaryNickname = p.BeneficiaryNickname
	}
	if p.BillerID != "" {
		d.BillerID = p.BillerID
	}
	if p.CustomerReference != "" {
		d.CustomerReference = p.CustomerReference
	}
	if p.RecipientIBAN != "" {
		d.RecipientIBAN = p.RecipientIBAN
	}
	if p.RecipientSWIFT != "" {
		d.RecipientSWIFT = p.RecipientSWIFT
	}
	if p.Purpose != "" {
		d.Purpose = p.Purpose
	}
	if p.SourceOfFunds != "" {
		d.SourceOfFunds = p.SourceOfFunds
	}
	if p.ScheduledDate != nil {
		d.ScheduledDate = p.ScheduledDate
	}
	if p.Frequency != "" {
		d.Frequency = p.Frequency
	}
	if p.EndDate != nil {
		d.EndDate = p.EndDate
	}
}

// Quote is the fee/total computed for a transfer. The quote shown at review
// must match the quote recomputed at finalize.
type Quote struct {
	Fee         decimal.Decimal `json:"fee"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

// Equal reports whether two quotes agree on both fee and total
func (q Quote) Equal(other Quote) bool {
	return q.Fee.Equal(other.Fee) && q.TotalAmount.Equal(other.TotalAmount)
}

// VerificationResult is the account-name lookup answer from the interbank
// verification authority. When IsValid is true, AccountName is the
// authoritative name for settlement purposes.
type VerificationResult struct {
	IsValid     bool
	AccountName string
	BankName    string
}

// Recipient identifies the credited party on a terminal transfer response
type Recipient struct {
	Name          string `json:"name"`
	AccountNumber string `json:"accountNumber"`
	BankName      string `json:"bankName,omitempty"`
}

// TransferResponse is the terminal artifact of a finalized transfer.
// Immutable once created.
type TransferResponse struct {
	ID          string          `json:"id"`
	Reference   string          `json:"reference"`
	Status      TransferStatus  `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Fees        decimal.Decimal `json:"fees"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Recipient   Recipient       `json:"recipient"`
	ProcessedAt time.Time       `json:"processedAt"`
}
