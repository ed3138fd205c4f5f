package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/paystreamhq/paystream-backend/internal/domain"
	"github.com/paystreamhq/paystream-backend/internal/telemetry"
	"github.com/paystreamhq/paystream-backend/internal/usecase/fees"
	"github.com/paystreamhq/paystream-backend/internal/usecase/schedule"
	"github.com/paystreamhq/paystream-backend/internal/usecase/validation"
)

// Options tunes the engine's collaborator calls
type Options struct {
	VerifyTimeout      time.Duration
	SettleTimeout      time.Duration
	MinPermissionLevel int
}

func (o Options) withDefaults() Options {
	if o.VerifyTimeout == 0 {
		o.VerifyTimeout = 10 * time.Second
	}
	if o.SettleTimeout == 0 {
		o.SettleTimeout = 30 * time.Second
	}
	if o.MinPermissionLevel == 0 {
		o.MinPermissionLevel = 1
	}
	return o
}

// Engine drives a TransferProgress through its state machine. It is the only
// component permitted to mutate currentStep and completedSteps. One Session
// belongs to exactly one in-flight user transaction, so the engine itself
// needs no locking.
type Engine struct {
	accounts      domain.AccountGateway
	verifier      domain.RecipientVerificationClient
	settlement    domain.SettlementClient
	beneficiaries domain.BeneficiaryRepository
	permissions   domain.PermissionChecker
	calculator    *fees.Calculator
	recurrences   *schedule.Scheduler
	logger        zerolog.Logger
	opts          Options
}

// NewEngine creates a new workflow Engine instance. beneficiaries and
// recurrences may be nil; the corresponding post-completion side effects are
// then skipped.
func NewEngine(
	accounts domain.AccountGateway,
	verifier domain.RecipientVerificationClient,
	settlement domain.SettlementClient,
	beneficiaries domain.BeneficiaryRepository,
	permissions domain.PermissionChecker,
	calculator *fees.Calculator,
	recurrences *schedule.Scheduler,
	opts Options,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		accounts:      accounts,
		verifier:      verifier,
		settlement:    settlement,
		beneficiaries: beneficiaries,
		permissions:   permissions,
		calculator:    calculator,
		recurrences:   recurrences,
		logger:        logger.With().Str("component", "workflow").Logger(),
		opts:          opts.withDefaults(),
	}
}

// Session is one in-flight transfer workflow. It wraps the progress
// aggregate together with session-scoped state that does not belong in it:
// the quote captured at review, the cached verification result, and the
// idempotency key minted at finalize entry.
type Session struct {
	ID       uuid.UUID
	UserID   string
	Progress domain.TransferProgress

	quote           *domain.Quote
	verification    *domain.VerificationResult
	verifiedAccount string
	verifiedBank    string
	idempotencyKey  string
	response        *domain.TransferResponse
}

// Quote returns the fee quote captured when the session reached review, or
// nil before that
func (s *Session) Quote() *domain.Quote {
	return s.quote
}

// Verification returns the cached verification result for the current
// recipient, or nil if none is cached
func (s *Session) Verification() *domain.VerificationResult {
	return s.verification
}

// Response returns the terminal transfer response once finalize has
// succeeded, or nil before that
func (s *Session) Response() *domain.TransferResponse {
	return s.response
}

// Start initializes a workflow session at the select step with empty transfer
// data. The requested type is permission-checked here, once, and seeded into
// the transfer data for the select-step validation to confirm.
func (e *Engine) Start(ctx context.Context, userID string, userPermissions map[string]int, transferType domain.TransferType) (*Session, error) {
	if !domain.KnownTransferType(transferType) {
		return nil, &domain.ValidationError{Fields: map[string]string{
			"type": fmt.Sprintf("unknown transfer type %q", transferType),
		}}
	}

	if !e.permissions.HasPermission(userPermissions, transferType.FeatureKey(), e.opts.MinPermissionLevel) {
		return nil, &domain.TransferError{
			Code:    domain.ErrCodePermissionDenied,
			Message: fmt.Sprintf("transfer type %q is not available to this user", transferType),
		}
	}

	session := &Session{
		ID:       uuid.New(),
		UserID:   userID,
		Progress: domain.NewTransferProgress(),
	}
	session.Progress.TransferData.Type = transferType

	e.logger.Info().
		Str("session_id", session.ID.String()).
		Str("transfer_type", string(transferType)).
		Msg("transfer workflow started")

	return session, nil
}

// Advance merges the step payload into the accumulated transfer data, runs
// the validator for the current step only and, if it passes, moves the
// workflow to the next step in the fixed order. It fails closed: on any
// validation failure the progress is unchanged except for its errors map,
// which is replaced wholesale on every pass.
func (e *Engine) Advance(ctx context.Context, s *Session, payload domain.StepPayload) (*domain.TransferProgress, error) {
	if s.Progress.Terminal() {
		return &s.Progress, &domain.TransferError{Code: domain.ErrCodeInvalidState, Message: "workflow already complete"}
	}
	if s.Progress.CurrentStep == domain.StepVerify {
		return &s.Progress, &domain.TransferError{Code: domain.ErrCodeInvalidState, Message: "the verify step is finalized, not advanced"}
	}

	s.Progress.TransferData.Merge(payload)
	e.invalidateStaleVerification(s)

	account, limits, err := e.senderContext(ctx, s)
	if err != nil {
		return &s.Progress, err
	}

	stepErrs := validation.ValidateStep(s.Progress.CurrentStep, s.Progress.TransferData, account, limits)
	s.Progress.Errors = stepErrs
	if len(stepErrs) > 0 {
		s.Progress.IsValid = false
		return &s.Progress, &domain.ValidationError{Fields: stepErrs}
	}
	s.Progress.IsValid = true

	next, ok := domain.NextStep(s.Progress.CurrentStep)
	if !ok {
		return &s.Progress, &domain.TransferError{Code: domain.ErrCodeInvalidState, Message: "no further step"}
	}

	// Entering review captures the quote the user will confirm against.
	if next == domain.StepReview {
		quote, err := e.quote(s.Progress.TransferData)
		if err != nil {
			return &s.Progress, err
		}
		s.quote = &quote
	}

	s.Progress.CompletedSteps = append(s.Progress.CompletedSteps, s.Progress.CurrentStep)
	s.Progress.CurrentStep = next
	return &s.Progress, nil
}

// Rollback moves the workflow back to the immediately preceding completed
// step. Entered transfer data is preserved unchanged. Rolling back from the
// terminal step, or with nothing completed, is an error.
func (e *Engine) Rollback(s *Session) (*domain.TransferProgress, error) {
	if s.Progress.Terminal() {
		return &s.Progress, &domain.TransferError{Code: domain.ErrCodeInvalidState, Message: "cannot roll back a completed transfer"}
	}
	if len(s.Progress.CompletedSteps) == 0 {
		return &s.Progress, &domain.TransferError{Code: domain.ErrCodeInvalidState, Message: "no completed step to roll back to"}
	}

	last := len(s.Progress.CompletedSteps) - 1
	s.Progress.CurrentStep = s.Progress.CompletedSteps[last]
	s.Progress.CompletedSteps = s.Progress.CompletedSteps[:last]
	s.Progress.Errors = map[string]string{}
	s.Progress.IsValid = false

	// A quote belongs to the review stage; leaving it invalidates the quote.
	if domain.StepIndex(s.Progress.CurrentStep) < domain.StepIndex(domain.StepReview) {
		s.quote = nil
	}

	return &s.Progress, nil
}

// VerifyRecipient resolves the authoritative recipient name for the current
// recipient details, using the session cache when the inputs are unchanged.
// Callers may invoke it eagerly as a prefetch; Finalize re-checks regardless.
func (e *Engine) VerifyRecipient(ctx context.Context, s *Session) (*domain.VerificationResult, error) {
	accountNumber, bankCode, required := verificationKey(s.Progress.TransferData)
	if !required {
		return nil, &domain.TransferError{Code: domain.ErrCodeInvalidState, Message: "transfer type does not require recipient verification"}
	}
	if accountNumber == "" || bankCode == "" {
		return nil, &domain.ValidationError{Fields: map[string]string{
			"recipientAccountNumber": "recipient details are incomplete",
		}}
	}

	if s.verification != nil && s.verifiedAccount == accountNumber && s.verifiedBank == bankCode {
		return s.verification, nil
	}

	result, err := e.callVerifier(ctx, accountNumber, bankCode)
	if err != nil {
		telemetry.VerificationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if !result.IsValid {
		telemetry.VerificationsTotal.WithLabelValues("rejected").Inc()
		return nil, &domain.VerificationFailedError{
			AccountNumber: accountNumber,
			BankCode:      bankCode,
			Reason:        "account name lookup rejected the recipient",
		}
	}

	telemetry.VerificationsTotal.WithLabelValues("verified").Inc()
	s.verification = result
	s.verifiedAccount = accountNumber
	s.verifiedBank = bankCode

	// The authority's declared name supersedes whatever the user typed.
	s.Progress.TransferData.RecipientName = result.AccountName

	return result, nil
}

// Finalize executes the terminal confirmation: it re-validates the full
// request against fresh limits, confirms the review quote is still current,
// ensures the recipient is verified for interbank types, and submits to
// settlement under a session-stable idempotency key. Settlement is attempted
// at most twice, and only when the first failure was transient.
func (e *Engine) Finalize(ctx context.Context, s *Session) (*domain.TransferResponse, error) {
	if s.response != nil {
		return s.response, nil
	}
	if s.Progress.CurrentStep != domain.StepVerify {
		return nil, &domain.TransferError{
			Code:    domain.ErrCodeInvalidState,
			Message: fmt.Sprintf("finalize requires the verify step, current step is %s", s.Progress.CurrentStep),
		}
	}

	data := &s.Progress.TransferData
	transferType := string(data.Type)

	account, limits, err := e.senderContext(ctx, s)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateRequest(*data, account, limits); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			s.Progress.Errors = verr.Fields
			s.Progress.IsValid = false
		}
		telemetry.TransfersFinalizedTotal.WithLabelValues(transferType, "validation_failed").Inc()
		return nil, err
	}

	current, err := e.quote(*data)
	if err != nil {
		return nil, err
	}
	if s.quote == nil {
		return nil, &domain.TransferError{Code: domain.ErrCodeInvalidState, Message: "no quote captured at review"}
	}
	if !s.quote.Equal(current) {
		telemetry.TransfersFinalizedTotal.WithLabelValues(transferType, "stale_quote").Inc()
		return nil, &domain.StaleQuoteError{Quoted: *s.quote, Current: current}
	}

	// Verification must complete before settlement is attempted, so the
	// settlement request carries the authoritative recipient name.
	if _, _, required := verificationKey(*data); required {
		if _, err := e.VerifyRecipient(ctx, s); err != nil {
			telemetry.TransfersFinalizedTotal.WithLabelValues(transferType, "verification_failed").Inc()
			return nil, err
		}
	}

	// The idempotency key is minted once per session and reused across
	// retries and repeated finalize attempts, so a retried settlement call
	// cannot produce two debits.
	if s.idempotencyKey == "" {
		s.idempotencyKey = uuid.Must(uuid.NewV7()).String()
	}

	response, err := e.submitSettlement(ctx, *data, current, s.idempotencyKey)
	if err != nil {
		telemetry.TransfersFinalizedTotal.WithLabelValues(transferType, "settlement_failed").Inc()
		return nil, err
	}

	s.Progress.CompletedSteps = append(s.Progress.CompletedSteps, domain.StepVerify)
	s.Progress.CurrentStep = domain.StepComplete
	s.Progress.Errors = map[string]string{}
	s.Progress.IsValid = true
	s.response = response

	telemetry.TransfersFinalizedTotal.WithLabelValues(transferType, "completed").Inc()
	e.logger.Info().
		Str("session_id", s.ID.String()).
		Str("reference", response.Reference).
		Str("transfer_type", transferType).
		Msg("transfer completed")

	e.afterComplete(s)

	return response, nil
}

// senderContext fetches the sender account and its limit snapshot. Before a
// sender is chosen both are nil and step validation reports the missing field.
func (e *Engine) senderContext(ctx context.Context, s *Session) (*domain.Account, *domain.TransferLimits, error) {
	data := s.Progress.TransferData
	if data.SenderAccountID == "" {
		return nil, nil, nil
	}

	account, err := e.accounts.GetAccount(ctx, data.SenderAccountID)
	if err != nil {
		s.Progress.Errors = map[string]string{"senderAccountId": "sender account not found"}
		s.Progress.IsValid = false
		return nil, nil, &domain.ValidationError{Fields: s.Progress.Errors}
	}

	limits, err := e.accounts.GetLimits(ctx, data.SenderAccountID, data.Type)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch transfer limits: %w", err)
	}

	return account, limits, nil
}

func (e *Engine) quote(data domain.TransferData) (domain.Quote, error) {
	return e.calculator.Quote(data.Type, data.Amount, data.RecipientBankCode)
}

// invalidateStaleVerification drops the cached verification result when
// either half of its key changed after a prior verification
func (e *Engine) invalidateStaleVerification(s *Session) {
	if s.verification == nil {
		return
	}
	accountNumber, bankCode, _ := verificationKey(s.Progress.TransferData)
	if accountNumber != s.verifiedAccount || bankCode != s.verifiedBank {
		s.verification = nil
		s.verifiedAccount = ""
		s.verifiedBank = ""
	}
}

// callVerifier invokes the verification authority with the configured
// timeout, retrying once on a transport failure
func (e *Engine) callVerifier(ctx context.Context, accountNumber, bankCode string) (*domain.VerificationResult, error) {
	verify := func() (*domain.VerificationResult, error) {
		vctx, cancel := context.WithTimeout(ctx, e.opts.VerifyTimeout)
		defer cancel()
		return e.verifier.Verify(vctx, accountNumber, bankCode)
	}

	result, err := verify()
	if err != nil {
		e.logger.Warn().Err(err).Str("bank_code", bankCode).Msg("recipient verification failed, retrying once")
		result, err = verify()
	}
	if err != nil {
		return nil, &domain.VerificationFailedError{
			AccountNumber: accountNumber,
			BankCode:      bankCode,
			Reason:        err.Error(),
		}
	}
	return result, nil
}

// submitSettlement submits under the idempotency key, retrying once only on
// a transient failure. Declined settlements are surfaced with their original
// code and never retried.
func (e *Engine) submitSettlement(ctx context.Context, data domain.TransferData, quote domain.Quote, idempotencyKey string) (*domain.TransferResponse, error) {
	submit := func() (*domain.TransferResponse, error) {
		sctx, cancel := context.WithTimeout(ctx, e.opts.SettleTimeout)
		defer cancel()
		return e.settlement.Submit(sctx, data, quote, idempotencyKey)
	}

	response, err := submit()
	if err != nil {
		var serr *domain.SettlementError
		if errors.As(err, &serr) && serr.Transient {
			e.logger.Warn().Err(err).Str("idempotency_key", idempotencyKey).Msg("transient settlement failure, retrying once")
			response, err = submit()
		}
	}
	if err != nil {
		return nil, err
	}
	return response, nil
}

// afterComplete runs the best-effort post-completion side effects. Their
// failure must never fail the completed transfer.
func (e *Engine) afterComplete(s *Session) {
	data := s.Progress.TransferData

	if data.SaveBeneficiary && data.Type == domain.TransferTypeExternal && e.beneficiaries != nil {
		beneficiary := &domain.Beneficiary{
			ID:            uuid.New(),
			UserID:        s.UserID,
			Name:          data.RecipientName,
			AccountNumber: data.RecipientAccountNumber,
			BankCode:      data.RecipientBankCode,
			Nickname:      data.BeneficiaryNickname,
			LastUsed:      time.Now(),
		}
		if s.verification != nil {
			beneficiary.BankName = s.verification.BankName
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := e.beneficiaries.Save(ctx, beneficiary); err != nil {
				e.logger.Warn().Err(err).Str("session_id", s.ID.String()).Msg("beneficiary save failed")
			}
		}()
	}

	if e.recurrences != nil && data.Frequency != "" && data.Frequency != domain.FrequencyOnce {
		if err := e.recurrences.Register(schedule.RecurringTransfer{
			Reference: s.response.Reference,
			UserID:    s.UserID,
			Data:      data,
		}); err != nil {
			e.logger.Warn().Err(err).Str("session_id", s.ID.String()).Msg("recurring transfer registration failed")
		}
	}
}

// verificationKey returns the lookup key the verification authority needs
// for the transfer type, and whether verification applies at all
func verificationKey(data domain.TransferData) (accountNumber, bankCode string, required bool) {
	switch data.Type {
	case domain.TransferTypeExternal:
		return data.RecipientAccountNumber, data.RecipientBankCode, true
	case domain.TransferTypeInternational:
		return data.RecipientIBAN, data.RecipientSWIFT, true
	default:
		return "", "", false
	}
}
