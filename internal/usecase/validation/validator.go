package validation

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/paystreamhq/paystream-backend/internal/domain"
)

var (
	accountNumberPattern = regexp.MustCompile(`^\d{10}$`)
	pinPattern           = regexp.MustCompile(`^\d{4}$`)
)

// ValidateStep checks the accumulated transfer data against the rules that
// gate the transition out of the given step. It returns a field→message map;
// an empty map means the transition is permitted.
//
// Rules run in a fixed order so error output is deterministic: sender account,
// type-specific required fields, field formats, limit windows, balance. Only
// the first violated limit is reported, and a limit violation suppresses the
// balance check so policy issues are surfaced preferentially.
func ValidateStep(step domain.TransferStep, data domain.TransferData, account *domain.Account, limits *domain.TransferLimits) map[string]string {
	errs := map[string]string{}

	switch step {
	case domain.StepSelect:
		if data.Type == "" {
			errs["type"] = "select a transfer type"
		} else if !domain.KnownTransferType(data.Type) {
			errs["type"] = fmt.Sprintf("unknown transfer type %q", data.Type)
		}

	case domain.StepDetails:
		validateSender(data, errs)
		validateRequiredFields(data, errs)
		validateFormats(data, errs)
		validateSchedule(data, errs)
		if _, ok := errs["amount"]; !ok {
			validateAmountAgainstLimits(data.Amount, account, limits, errs)
		}

	case domain.StepReview:
		if !pinPattern.MatchString(data.PIN) {
			errs["pin"] = "PIN must be exactly 4 digits"
		}
		if data.Amount.LessThanOrEqual(decimal.Zero) {
			errs["amount"] = "amount must be a positive number"
		} else {
			validateAmountAgainstLimits(data.Amount, account, limits, errs)
		}
	}

	return errs
}

// ValidateRequest re-validates the complete accumulated request, returning
// the first failure as a typed error. Used at finalize to defend against
// limit changes between steps.
func ValidateRequest(data domain.TransferData, account *domain.Account, limits *domain.TransferLimits) error {
	fieldErrs := map[string]string{}
	validateSender(data, fieldErrs)
	validateRequiredFields(data, fieldErrs)
	validateFormats(data, fieldErrs)
	validateSchedule(data, fieldErrs)
	if !pinPattern.MatchString(data.PIN) {
		fieldErrs["pin"] = "PIN must be exactly 4 digits"
	}
	if len(fieldErrs) > 0 {
		return &domain.ValidationError{Fields: fieldErrs}
	}

	if err := CheckLimits(data.Amount, limits); err != nil {
		return err
	}

	if account != nil && data.Amount.GreaterThan(account.Balance) {
		return &domain.InsufficientFundsError{Available: account.Balance, Required: data.Amount}
	}

	return nil
}

// CheckLimits enforces the limit windows in their fixed order: per-transaction
// minimum, per-transaction maximum, daily remaining, monthly remaining. The
// first violated limit is returned; checks do not continue past it.
func CheckLimits(amount decimal.Decimal, limits *domain.TransferLimits) error {
	if limits == nil {
		return nil
	}
	if amount.LessThan(limits.PerTransaction.Min) {
		return &domain.LimitExceededError{
			LimitType: domain.LimitPerTransaction,
			Limit:     limits.PerTransaction.Min,
			Attempted: amount,
		}
	}
	if amount.GreaterThan(limits.PerTransaction.Max) {
		return &domain.LimitExceededError{
			LimitType: domain.LimitPerTransaction,
			Limit:     limits.PerTransaction.Max,
			Attempted: amount,
		}
	}
	if amount.GreaterThan(limits.Daily.Remaining()) {
		return &domain.LimitExceededError{
			LimitType: domain.LimitDaily,
			Limit:     limits.Daily.Limit,
			Attempted: limits.Daily.Used.Add(amount),
		}
	}
	if amount.GreaterThan(limits.Monthly.Remaining()) {
		return &domain.LimitExceededError{
			LimitType: domain.LimitMonthly,
			Limit:     limits.Monthly.Limit,
			Attempted: limits.Monthly.Used.Add(amount),
		}
	}
	return nil
}

func validateSender(data domain.TransferData, errs map[string]string) {
	if data.SenderAccountID == "" {
		errs["senderAccountId"] = "select a sender account"
	}
}

func validateRequiredFields(data domain.TransferData, errs map[string]string) {
	if data.RecipientName == "" {
		errs["recipientName"] = "recipient name is required"
	}

	switch data.Type {
	case domain.TransferTypeInternal:
		if data.RecipientAccountNumber == "" {
			errs["recipientAccountNumber"] = "recipient account number is required"
		}
	case domain.TransferTypeExternal:
		if data.RecipientAccountNumber == "" {
			errs["recipientAccountNumber"] = "recipient account number is required"
		}
		if data.RecipientBankCode == "" {
			errs["recipientBankCode"] = "recipient bank is required"
		}
	case domain.TransferTypeBillPayment:
		if data.BillerID == "" {
			errs["billerId"] = "biller is required"
		}
		if data.CustomerReference == "" {
			errs["customerReference"] = "customer reference is required"
		}
	case domain.TransferTypeInternational:
		if data.RecipientIBAN == "" {
			errs["recipientIban"] = "recipient IBAN is required"
		}
		if data.RecipientSWIFT == "" {
			errs["recipientSwiftCode"] = "recipient SWIFT code is required"
		}
		if data.Purpose == "" {
			errs["purpose"] = "purpose of funds is required"
		}
		if data.SourceOfFunds == "" {
			errs["sourceOfFunds"] = "source of funds is required"
		}
	default:
		// Unknown types are rejected at the select step; reaching details
		// without a type means the caller skipped the state machine.
		errs["type"] = "transfer type not selected"
	}
}

func validateFormats(data domain.TransferData, errs map[string]string) {
	needsAccountNumber := data.Type == domain.TransferTypeInternal || data.Type == domain.TransferTypeExternal
	if needsAccountNumber && data.RecipientAccountNumber != "" && !accountNumberPattern.MatchString(data.RecipientAccountNumber) {
		errs["recipientAccountNumber"] = "account number must be exactly 10 digits"
	}
	if data.Amount.LessThanOrEqual(decimal.Zero) {
		errs["amount"] = "amount must be a positive number"
	}
	if data.PIN != "" && !pinPattern.MatchString(data.PIN) {
		errs["pin"] = "PIN must be exactly 4 digits"
	}
}

func validateSchedule(data domain.TransferData, errs map[string]string) {
	if data.Frequency != "" && data.Frequency != domain.FrequencyOnce && data.ScheduledDate == nil {
		errs["scheduledDate"] = "recurring transfers need a start date"
	}
	if data.EndDate != nil && data.ScheduledDate != nil && data.EndDate.Before(*data.ScheduledDate) {
		errs["endDate"] = "end date cannot be before the start date"
	}
}

func validateAmountAgainstLimits(amount decimal.Decimal, account *domain.Account, limits *domain.TransferLimits, errs map[string]string) {
	if err := CheckLimits(amount, limits); err != nil {
		errs["amount"] = err.Error()
		return
	}
	if account != nil && amount.GreaterThan(account.Balance) {
		errs["amount"] = (&domain.InsufficientFundsError{Available: account.Balance, Required: amount}).Error()
	}
}
