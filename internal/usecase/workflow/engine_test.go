package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/paystreamhq/paystream-backend/internal/domain"
	"github.com/paystreamhq/paystream-backend/internal/usecase/fees"
)

// MockAccountGateway is a mock implementation of AccountGateway for testing
type MockAccountGateway struct {
	mock.Mock
}

func (m *MockAccountGateway) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountGateway) GetLimits(ctx context.Context, accountID string, transferType domain.TransferType) (*domain.TransferLimits, error) {
	args := m.Called(ctx, accountID, transferType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransferLimits), args.Error(1)
}

// MockVerificationClient is a mock implementation of RecipientVerificationClient for testing
type MockVerificationClient struct {
	mock.Mock
}

func (m *MockVerificationClient) Verify(ctx context.Context, accountNumber, bankCode string) (*domain.VerificationResult, error) {
	args := m.Called(ctx, accountNumber, bankCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VerificationResult), args.Error(1)
}

// MockSettlementClient is a mock implementation of SettlementClient for testing
type MockSettlementClient struct {
	mock.Mock
}

func (m *MockSettlementClient) Submit(ctx context.Context, data domain.TransferData, quote domain.Quote, idempotencyKey string) (*domain.TransferResponse, error) {
	args := m.Called(ctx, data, quote, idempotencyKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransferResponse), args.Error(1)
}

// MockBeneficiaryRepository is a mock implementation of BeneficiaryRepository for testing
type MockBeneficiaryRepository struct {
	mock.Mock
}

func (m *MockBeneficiaryRepository) Save(ctx context.Context, b *domain.Beneficiary) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *MockBeneficiaryRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Beneficiary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Beneficiary), args.Error(1)
}

func (m *MockBeneficiaryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func testCalculator() *fees.Calculator {
	return fees.NewCalculator(fees.Schedule{
		Internal:        decimal.Zero,
		ExternalDefault: decimal.NewFromFloat(52.50),
		BillPayment:     decimal.NewFromInt(50),
		International:   decimal.NewFromInt(2500),
		Banks:           map[string]decimal.Decimal{},
	}, zerolog.Nop())
}

func testAccount() *domain.Account {
	return &domain.Account{
		ID:       "acc-1",
		Balance:  decimal.NewFromInt(500_000),
		Currency: "NGN",
		Role:     "retail",
	}
}

func testLimits() *domain.TransferLimits {
	return &domain.TransferLimits{
		Daily:          domain.LimitWindow{Used: decimal.Zero, Limit: decimal.NewFromInt(5_000_000)},
		Monthly:        domain.LimitWindow{Used: decimal.Zero, Limit: decimal.NewFromInt(20_000_000)},
		PerTransaction: domain.AmountRange{Min: decimal.NewFromInt(100), Max: decimal.NewFromInt(1_000_000)},
		Currency:       "NGN",
	}
}

func retailPermissions() map[string]int {
	return map[string]int{
		"transfers.internal":      1,
		"transfers.external":      1,
		"transfers.bill_payment":  1,
		"transfers.international": 1,
	}
}

type engineFixture struct {
	engine        *Engine
	accounts      *MockAccountGateway
	verifier      *MockVerificationClient
	settlement    *MockSettlementClient
	beneficiaries *MockBeneficiaryRepository
}

func newEngineFixture() *engineFixture {
	f := &engineFixture{
		accounts:      new(MockAccountGateway),
		verifier:      new(MockVerificationClient),
		settlement:    new(MockSettlementClient),
		beneficiaries: new(MockBeneficiaryRepository),
	}
	f.engine = NewEngine(
		f.accounts,
		f.verifier,
		f.settlement,
		f.beneficiaries,
		LevelChecker{},
		testCalculator(),
		nil,
		Options{},
		zerolog.Nop(),
	)
	return f
}

// advanceToVerify drives a fresh external-transfer session through
// select, details and review.
func advanceToVerify(t *testing.T, f *engineFixture) *Session {
	t.Helper()
	ctx := context.Background()

	f.accounts.On("GetAccount", mock.Anything, "acc-1").Return(testAccount(), nil)
	f.accounts.On("GetLimits", mock.Anything, "acc-1", domain.TransferTypeExternal).Return(testLimits(), nil)

	session, err := f.engine.Start(ctx, "user-1", retailPermissions(), domain.TransferTypeExternal)
	assert.NoError(t, err)

	_, err = f.engine.Advance(ctx, session, domain.StepPayload{})
	assert.NoError(t, err)

	_, err = f.engine.Advance(ctx, session, domain.StepPayload{
		SenderAccountID:        "acc-1",
		RecipientName:          "ada obi",
		RecipientAccountNumber: "0123456789",
		RecipientBankCode:      "058",
		Amount:                 decimal.NewFromInt(50_000),
	})
	assert.NoError(t, err)

	_, err = f.engine.Advance(ctx, session, domain.StepPayload{PIN: "1234"})
	assert.NoError(t, err)
	assert.Equal(t, domain.StepVerify, session.Progress.CurrentStep)

	return session
}

func TestStart_SeedsSelectStep(t *testing.T) {
	f := newEngineFixture()

	session, err := f.engine.Start(context.Background(), "user-1", retailPermissions(), domain.TransferTypeExternal)

	assert.NoError(t, err)
	assert.Equal(t, domain.StepSelect, session.Progress.CurrentStep)
	assert.Empty(t, session.Progress.CompletedSteps)
	assert.Equal(t, domain.TransferTypeExternal, session.Progress.TransferData.Type)
	assert.Nil(t, session.Quote())
}

func TestStart_UnknownType(t *testing.T) {
	f := newEngineFixture()

	_, err := f.engine.Start(context.Background(), "user-1", retailPermissions(), "crypto")

	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "type")
}

func TestStart_PermissionDenied(t *testing.T) {
	f := newEngineFixture()

	_, err := f.engine.Start(context.Background(), "user-1", map[string]int{"transfers.internal": 1}, domain.TransferTypeInternational)

	var terr *domain.TransferError
	assert.ErrorAs(t, err, &terr)
	assert.Equal(t, domain.ErrCodePermissionDenied, terr.Code)
}

func TestAdvance_HappyPathToVerify(t *testing.T) {
	f := newEngineFixture()
	session := advanceToVerify(t, f)

	assert.Equal(t, []domain.TransferStep{domain.StepSelect, domain.StepDetails, domain.StepReview}, session.Progress.CompletedSteps)
	assert.True(t, session.Progress.IsValid)
	assert.NoError(t, session.Progress.Validate())

	// The quote was captured on entry to review.
	assert.NotNil(t, session.Quote())
	assert.True(t, session.Quote().Fee.Equal(decimal.NewFromFloat(52.50)))
}

func TestAdvance_FailsClosedOnValidationError(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	f.accounts.On("GetAccount", mock.Anything, "acc-1").Return(testAccount(), nil)
	f.accounts.On("GetLimits", mock.Anything, "acc-1", domain.TransferTypeExternal).Return(testLimits(), nil)

	session, err := f.engine.Start(ctx, "user-1", retailPermissions(), domain.TransferTypeExternal)
	assert.NoError(t, err)
	_, err = f.engine.Advance(ctx, session, domain.StepPayload{})
	assert.NoError(t, err)

	// Missing bank code for an external transfer.
	progress, err := f.engine.Advance(ctx, session, domain.StepPayload{
		SenderAccountID:        "acc-1",
		RecipientName:          "Ada Obi",
		RecipientAccountNumber: "0123456789",
		Amount:                 decimal.NewFromInt(50_000),
	})

	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, domain.StepDetails, progress.CurrentStep, "step unchanged on failure")
	assert.Contains(t, progress.Errors, "recipientBankCode")
	assert.False(t, progress.IsValid)

	// A repeated identical call fails identically; nothing accumulates.
	again, err := f.engine.Advance(ctx, session, domain.StepPayload{})
	assert.Error(t, err)
	assert.Equal(t, progress.Errors, again.Errors)
	assert.Equal(t, domain.StepDetails, again.CurrentStep)
}

func TestAdvance_ErrorsMapReplacedWholesale(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	f.accounts.On("GetAccount", mock.Anything, "acc-1").Return(testAccount(), nil)
	f.accounts.On("GetLimits", mock.Anything, "acc-1", domain.TransferTypeExternal).Return(testLimits(), nil)

	session, err := f.engine.Start(ctx, "user-1", retailPermissions(), domain.TransferTypeExternal)
	assert.NoError(t, err)
	_, err = f.engine.Advance(ctx, session, domain.StepPayload{})
	assert.NoError(t, err)

	progress, err := f.engine.Advance(ctx, session, domain.StepPayload{SenderAccountID: "acc-1"})
	assert.Error(t, err)
	assert.Contains(t, progress.Errors, "recipientAccountNumber")

	// Supplying the missing fields leaves no trace of the earlier failures.
	progress, err = f.engine.Advance(ctx, session, domain.StepPayload{
		RecipientName:          "Ada Obi",
		RecipientAccountNumber: "0123456789",
		RecipientBankCode:      "058",
		Amount:                 decimal.NewFromInt(50_000),
	})
	assert.NoError(t, err)
	assert.Empty(t, progress.Errors)
	assert.Equal(t, domain.StepReview, progress.CurrentStep)
}

func TestAdvance_BlockedAtVerifyAndComplete(t *testing.T) {
	f := newEngineFixture()
	session := advanceToVerify(t, f)

	_, err := f.engine.Advance(context.Background(), session, domain.StepPayload{})

	var terr *domain.TransferError
	assert.ErrorAs(t, err, &terr)
	assert.Equal(t, domain.ErrCodeInvalidState, terr.Code)
}

func TestRollback_PreservesData(t *testing.T) {
	f := newEngineFixture()
	session := advanceToVerify(t, f)

	progress, err := f.engine.Rollback(session)
	assert.NoError(t, err)
	assert.Equal(t, domain.StepReview, progress.CurrentStep)
	assert.Equal(t, []domain.TransferStep{domain.StepSelect, domain.StepDetails}, progress.CompletedSteps)
	assert.Equal(t, "0123456789", progress.TransferData.RecipientAccountNumber)
	assert.NotNil(t, session.Quote(), "the quote survives while still at review")

	progress, err = f.engine.Rollback(session)
	assert.NoError(t, err)
	assert.Equal(t, domain.StepDetails, progress.CurrentStep)
	assert.Nil(t, session.Quote(), "leaving review drops the quote")

	_, err = f.engine.Rollback(session)
	assert.NoError(t, err)

	_, err = f.engine.Rollback(session)
	var terr *domain.TransferError
	assert.ErrorAs(t, err, &terr)
	assert.Equal(t, domain.ErrCodeInvalidState, terr.Code, "nothing left to roll back")
}

func TestVerifyRecipient_CachesUntilDetailsChange(t *testing.T) {
	f := newEngineFixture()
	session := advanceToVerify(t, f)
	ctx := context.Background()

	f.verifier.On("Verify", mock.Anything, "0123456789", "058").
		Return(&domain.VerificationResult{IsValid: true, AccountName: "ADAEZE OBI", BankName: "GTBank"}, nil).Once()

	result, err := f.engine.VerifyRecipient(ctx, session)
	assert.NoError(t, err)
	assert.Equal(t, "ADAEZE OBI", result.AccountName)
	assert.Equal(t, "ADAEZE OBI", session.Progress.TransferData.RecipientName,
		"the authoritative name replaces what the user typed")

	// Second call with unchanged details is served from the session cache.
	result, err = f.engine.VerifyRecipient(ctx, session)
	assert.NoError(t, err)
	assert.Equal(t, "ADAEZE OBI", result.AccountName)
	f.verifier.AssertNumberOfCalls(t, "Verify", 1)
}

func TestVerifyRecipient_ReVerifiesAfterAccountChange(t *testing.T) {
	f := newEngineFixture()
	session := advanceToVerify(t, f)
	ctx := context.Background()

	f.verifier.On("Verify", mock.Anything, "0123456789", "058").
		Return(&domain.VerificationResult{IsValid: true, AccountName: "ADAEZE OBI"}, nil).Once()
	f.verifier.On("Verify", mock.Anything, "9876543210", "058").
		Return(&domain.VerificationResult{IsValid: true, AccountName: "BISI ADEYEMI"}, nil).Once()

	_, err := f.engine.VerifyRecipient(ctx, session)
	assert.NoError(t, err)

	// Go back and change the recipient account number.
	_, err = f.engine.Rollback(session)
	assert.NoError(t, err)
	_, err = f.engine.Rollback(session)
	assert.NoError(t, err)
	_, err = f.engine.Advance(ctx, session, domain.StepPayload{RecipientAccountNumber: "9876543210"})
	assert.NoError(t, err)
	_, err = f.engine.Advance(ctx, session, domain.StepPayload{PIN: "1234"})
	assert.NoError(t, err)

	result, err := f.engine.VerifyRecipient(ctx, session)
	assert.NoError(t, err)
	assert.Equal(t, "BISI ADEYEMI", result.AccountName)
	f.verifier.AssertNumberOfCalls(t, "Verify", 2)
}

func TestVerifyRecipient_RejectionIsTyped(t *testing.T) {
	f := newEngineFixture()
	session := advanceToVerify(t, f)

	f.verifier.On("Verify", mock.Anything, "0123456789", "058").
		Return(&domain.VerificationResult{IsValid: false}, nil)

	_, err := f.engine.VerifyRecipient(context.Background(), session)

	var rverr *domain.VerificationFailedError
	assert.ErrorAs(t, err, &rverr)
	assert.Equal(t, "0123456789", rverr.AccountNumber)
	assert.Nil(t, session.Verification(), "rejections are not cached")
}

func TestVerifyRecipient_RetriesTransportErrorOnce(t *testing.T) {
	f := newEngineFixture()
	session := advanceToVerify(t, f)

	f.verifier.On("Verify", mock.Anything, "0123456789", "058").
		Return(nil, errors.New("connection reset")).Once()
	f.verifier.On("Verify", mock.Anything, "0123456789", "058").
		Return(&domain.VerificationResult{IsValid: true, AccountName: "ADAEZE OBI"}, nil).Once()

	result, err := f.engine.VerifyRecipient(context.Background(), session)

	assert.NoError(t, err)
	assert.Equal(t, "ADAEZE OBI", result.AccountName)
	f.verifier.AssertNumberOfCalls(t, "Verify", 2)
}

func TestFinalize_HappyPath(t *testing.T) {
	f := newEngineFixture()
	session := advanceToVerify(t, f)

	f.verifier.On("Verify", mock.Anything, "0123456789", "058").
		Return(&domain.VerificationResult{IsValid: true, AccountName: "ADAEZE OBI"}, nil)
	f.settlement.On("Submit", mock.Anything, mock.Anything, mock.Anything, mock.AnythingOfType("string")).
		Return(&domain.TransferResponse{
			ID:        "txn-1",
			Reference: "PSB12345678",
			Status:    domain.TransferStatusCompleted,
		}, nil)

	response, err := f.engine.Finalize(context.Background(), session)

	assert.NoError(t, err)
	assert.Equal(t, "PSB12345678", response.Reference)
	assert.Equal(t, domain.StepComplete, session.Progress.CurrentStep)
	assert.Equal(t, domain.StepOrder[:4], session.Progress.CompletedSteps)
	assert.NoError(t, session.Progress.Validate())
	assert.True(t, session.Progress.Terminal())
}

func TestFinalize_RequiresVerifyStep(t *testing.T) {
	f := newEngineFixture()

	session, err := f.engine.Start(context.Background(), "user-1", retailPermissions(), domain.TransferTypeExternal)
	assert.NoError(t, err)

	_, err = f.engine.Finalize(context.Background(), session)

	var terr *domain.TransferError
	assert.ErrorAs(t, err, &terr)
	assert.Equal(t, domain.ErrCodeInvalidState, terr.Code)
}

func TestFinalize_VerificationBeforeSettlement(t *testing.T) {
	f := newEngineFixture()
	session := advanceToVerify(t, f)

	f.verifier.On("Verify", mock.Anything, "0123456789", "058").
		Return(&domain.VerificationResult{IsValid: false}, nil)

	_, err := f.engine.Finalize(context.Background(), session)

	var rverr *domain.VerificationFailedError
	assert.ErrorAs(t, err, &rverr)
	f.settlement.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFinalize_TransientSettlementFailureRetriesSameKey(t *testing.T) {
	f := newEngineFixture()
	session := advanceToVerify(t, f)

	f.verifier.On("Verify", mock.Anything, "0123456789", "058").
		Return(&domain.VerificationResult{IsValid: true, AccountName: "ADAEZE OBI"}, nil)

	var keys []string
	f.settlement.On("Submit", mock.Anything, mock.Anything, mock.Anything, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { keys = append(keys, args.String(3)) }).
		Return(nil, &domain.SettlementError{Code: "NETWORK_ERROR", Transient: true}).Once()
	f.settlement.On("Submit", mock.Anything, mock.Anything, mock.Anything, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { keys = append(keys, args.String(3)) }).
		Return(&domain.TransferResponse{Reference: "PSB12345678", Status: domain.TransferStatusCompleted}, nil).Once()

	response, err := f.engine.Finalize(context.Background(), session)

	assert.NoError(t, err)
	assert.Equal(t, "PSB12345678", response.Reference)
	assert.Len(t, keys, 2)
	assert.Equal(t, keys[0], keys[1], "the retry reuses the idempotency key")
}

func TestFinalize_DeclinedSettlementNotRetried(t *testing.T) {
	f := newEngineFixture()
	session := advanceToVerify(t, f)

	f.verifier.On("Verify", mock.Anything, "0123456789", "058").
		Return(&domain.VerificationResult{IsValid: true, AccountName: "ADAEZE OBI"}, nil)
	f.settlement.On("Submit", mock.Anything, mock.Anything, mock.Anything, mock.AnythingOfType("string")).
		Return(nil, &domain.SettlementError{Code: "51", Message: "insufficient funds at issuer"})

	_, err := f.engine.Finalize(context.Background(), session)

	var serr *domain.SettlementError
	assert.ErrorAs(t, err, &serr)
	assert.Equal(t, "51", serr.Code)
	f.settlement.AssertNumberOfCalls(t, "Submit", 1)
	assert.False(t, session.Progress.Terminal())
}

func TestFinalize_RepeatedCallsReuseKeyAndResponse(t *testing.T) {
	f := newEngineFixture()
	session := advanceToVerify(t, f)

	f.verifier.On("Verify", mock.Anything, "0123456789", "058").
		Return(&domain.VerificationResult{IsValid: true, AccountName: "ADAEZE OBI"}, nil)

	var keys []string
	f.settlement.On("Submit", mock.Anything, mock.Anything, mock.Anything, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { keys = append(keys, args.String(3)) }).
		Return(nil, &domain.SettlementError{Code: "NETWORK_ERROR", Transient: true}).Twice()
	f.settlement.On("Submit", mock.Anything, mock.Anything, mock.Anything, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { keys = append(keys, args.String(3)) }).
		Return(&domain.TransferResponse{Reference: "PSB12345678", Status: domain.TransferStatusCompleted}, nil)

	// First finalize exhausts its single retry and fails.
	_, err := f.engine.Finalize(context.Background(), session)
	assert.Error(t, err)

	// Second finalize succeeds with the same key.
	response, err := f.engine.Finalize(context.Background(), session)
	assert.NoError(t, err)

	assert.Len(t, keys, 3)
	assert.Equal(t, keys[0], keys[1])
	assert.Equal(t, keys[1], keys[2])

	// A third finalize returns the stored response without resubmitting.
	again, err := f.engine.Finalize(context.Background(), session)
	assert.NoError(t, err)
	assert.Equal(t, response, again)
	f.settlement.AssertNumberOfCalls(t, "Submit", 3)
}

func TestFinalize_StaleQuote(t *testing.T) {
	f := newEngineFixture()
	session := advanceToVerify(t, f)

	// Simulate a fee schedule change between review and finalize.
	stale := domain.Quote{Fee: decimal.NewFromInt(10), TotalAmount: decimal.NewFromInt(50_010)}
	session.quote = &stale

	_, err := f.engine.Finalize(context.Background(), session)

	var qerr *domain.StaleQuoteError
	assert.ErrorAs(t, err, &qerr)
	assert.True(t, qerr.Quoted.Fee.Equal(decimal.NewFromInt(10)))
	assert.True(t, qerr.Current.Fee.Equal(decimal.NewFromFloat(52.50)))
	f.settlement.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFinalize_SavesBeneficiary(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	f.accounts.On("GetAccount", mock.Anything, "acc-1").Return(testAccount(), nil)
	f.accounts.On("GetLimits", mock.Anything, "acc-1", domain.TransferTypeExternal).Return(testLimits(), nil)

	session, err := f.engine.Start(ctx, "user-1", retailPermissions(), domain.TransferTypeExternal)
	assert.NoError(t, err)
	_, err = f.engine.Advance(ctx, session, domain.StepPayload{})
	assert.NoError(t, err)

	save := true
	_, err = f.engine.Advance(ctx, session, domain.StepPayload{
		SenderAccountID:        "acc-1",
		RecipientName:          "ada obi",
		RecipientAccountNumber: "0123456789",
		RecipientBankCode:      "058",
		Amount:                 decimal.NewFromInt(50_000),
		SaveBeneficiary:        &save,
		BeneficiaryNickname:    "Ada",
	})
	assert.NoError(t, err)
	_, err = f.engine.Advance(ctx, session, domain.StepPayload{PIN: "1234"})
	assert.NoError(t, err)

	f.verifier.On("Verify", mock.Anything, "0123456789", "058").
		Return(&domain.VerificationResult{IsValid: true, AccountName: "ADAEZE OBI", BankName: "GTBank"}, nil)
	f.settlement.On("Submit", mock.Anything, mock.Anything, mock.Anything, mock.AnythingOfType("string")).
		Return(&domain.TransferResponse{Reference: "PSB12345678", Status: domain.TransferStatusCompleted}, nil)

	saved := make(chan *domain.Beneficiary, 1)
	f.beneficiaries.On("Save", mock.Anything, mock.AnythingOfType("*domain.Beneficiary")).
		Run(func(args mock.Arguments) { saved <- args.Get(1).(*domain.Beneficiary) }).
		Return(nil)

	_, err = f.engine.Finalize(ctx, session)
	assert.NoError(t, err)

	select {
	case b := <-saved:
		assert.Equal(t, "user-1", b.UserID)
		assert.Equal(t, "ADAEZE OBI", b.Name)
		assert.Equal(t, "0123456789", b.AccountNumber)
		assert.Equal(t, "058", b.BankCode)
		assert.Equal(t, "GTBank", b.BankName)
		assert.Equal(t, "Ada", b.Nickname)
	case <-time.After(2 * time.Second):
		t.Fatal("beneficiary was not saved")
	}
}

func TestFinalize_BeneficiarySaveFailureDoesNotFailTransfer(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	f.accounts.On("GetAccount", mock.Anything, "acc-1").Return(testAccount(), nil)
	f.accounts.On("GetLimits", mock.Anything, "acc-1", domain.TransferTypeExternal).Return(testLimits(), nil)

	session, err := f.engine.Start(ctx, "user-1", retailPermissions(), domain.TransferTypeExternal)
	assert.NoError(t, err)
	_, err = f.engine.Advance(ctx, session, domain.StepPayload{})
	assert.NoError(t, err)

	save := true
	_, err = f.engine.Advance(ctx, session, domain.StepPayload{
		SenderAccountID:        "acc-1",
		RecipientName:          "ada obi",
		RecipientAccountNumber: "0123456789",
		RecipientBankCode:      "058",
		Amount:                 decimal.NewFromInt(50_000),
		SaveBeneficiary:        &save,
	})
	assert.NoError(t, err)
	_, err = f.engine.Advance(ctx, session, domain.StepPayload{PIN: "1234"})
	assert.NoError(t, err)

	f.verifier.On("Verify", mock.Anything, "0123456789", "058").
		Return(&domain.VerificationResult{IsValid: true, AccountName: "ADAEZE OBI"}, nil)
	f.settlement.On("Submit", mock.Anything, mock.Anything, mock.Anything, mock.AnythingOfType("string")).
		Return(&domain.TransferResponse{Reference: "PSB12345678", Status: domain.TransferStatusCompleted}, nil)

	attempted := make(chan struct{}, 1)
	f.beneficiaries.On("Save", mock.Anything, mock.AnythingOfType("*domain.Beneficiary")).
		Run(func(mock.Arguments) { attempted <- struct{}{} }).
		Return(errors.New("beneficiaries table unavailable"))

	response, err := f.engine.Finalize(ctx, session)

	assert.NoError(t, err)
	assert.Equal(t, "PSB12345678", response.Reference)
	assert.True(t, session.Progress.Terminal())

	select {
	case <-attempted:
	case <-time.After(2 * time.Second):
		t.Fatal("beneficiary save was never attempted")
	}
}

func TestLevelChecker(t *testing.T) {
	checker := LevelChecker{}

	perms := map[string]int{"transfers.external": 2}
	assert.True(t, checker.HasPermission(perms, "transfers.external", 1))
	assert.True(t, checker.HasPermission(perms, "transfers.external", 2))
	assert.False(t, checker.HasPermission(perms, "transfers.external", 3))
	assert.False(t, checker.HasPermission(perms, "transfers.internal", 1))
	assert.False(t, checker.HasPermission(nil, "transfers.internal", 1))
}
