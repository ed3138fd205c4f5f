// Package nibss implements the recipient verification and settlement
// interfaces against a NIBSS NIP style interbank switch.
package nibss

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/paystreamhq/paystream-backend/internal/domain"
)

const successResponseCode = "00"

// referencePrefix is the institution prefix on customer-facing references
const referencePrefix = "PSB"

// Config holds the switch endpoint settings
type Config struct {
	BaseURL         string
	APIKey          string
	InstitutionCode string
	ChannelCode     string
}

// Client talks to the interbank switch. It implements both
// domain.RecipientVerificationClient and domain.SettlementClient; per-call
// deadlines come from the caller's context.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a new switch client
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			// Outer bound; callers set tighter per-call deadlines.
			Timeout: 60 * time.Second,
		},
		logger: logger.With().Str("component", "nibss").Logger(),
	}
}

type nameEnquiryRequest struct {
	AccountNumber   string `json:"accountNumber"`
	BankCode        string `json:"bankCode"`
	ChannelCode     string `json:"channelCode"`
	InstitutionCode string `json:"institutionCode"`
}

type nameEnquiryResponse struct {
	ResponseCode        string `json:"responseCode"`
	ResponseDescription string `json:"responseDescription"`
	AccountName         string `json:"accountName"`
	BankName            string `json:"bankName"`
}

// Verify resolves the authoritative account name via the switch's name
// enquiry endpoint. A non-success response code is a definitive rejection,
// not an error; transport failures are returned as errors so the engine can
// retry them.
func (c *Client) Verify(ctx context.Context, accountNumber, bankCode string) (*domain.VerificationResult, error) {
	reqBody := nameEnquiryRequest{
		AccountNumber:   accountNumber,
		BankCode:        bankCode,
		ChannelCode:     c.cfg.ChannelCode,
		InstitutionCode: c.cfg.InstitutionCode,
	}

	var respBody nameEnquiryResponse
	if err := c.post(ctx, "/NameEnquiry", "", reqBody, &respBody); err != nil {
		return nil, fmt.Errorf("name enquiry failed: %w", err)
	}

	if respBody.ResponseCode != successResponseCode {
		c.logger.Info().
			Str("bank_code", bankCode).
			Str("response_code", respBody.ResponseCode).
			Msg("name enquiry rejected")
		return &domain.VerificationResult{IsValid: false}, nil
	}

	return &domain.VerificationResult{
		IsValid:     true,
		AccountName: respBody.AccountName,
		BankName:    respBody.BankName,
	}, nil
}

type creditPushRequest struct {
	PaymentReference      string `json:"paymentReference"`
	Amount                string `json:"amount"`
	Fee                   string `json:"fee"`
	BeneficiaryName       string `json:"beneficiaryAccountName"`
	BeneficiaryAccount    string `json:"beneficiaryAccountNumber"`
	BeneficiaryBankCode   string `json:"beneficiaryBankCode"`
	OriginatorAccountID   string `json:"originatorAccountId"`
	Narration             string `json:"narration"`
	ChannelCode           string `json:"channelCode"`
	OriginatorInstitution string `json:"originatorInstitution"`
}

type creditPushResponse struct {
	ResponseCode        string `json:"responseCode"`
	ResponseDescription string `json:"responseDescription"`
	TransactionID       string `json:"transactionId"`
	SessionID           string `json:"sessionId"`
}

// Submit sends a finalized transfer to the switch. The idempotency key rides
// an Idempotency-Key header so a retried submission settles at most once.
// Non-success response codes are surfaced with the switch's own code.
func (c *Client) Submit(ctx context.Context, data domain.TransferData, quote domain.Quote, idempotencyKey string) (*domain.TransferResponse, error) {
	reference := newReference()

	reqBody := creditPushRequest{
		PaymentReference:      reference,
		Amount:                data.Amount.String(),
		Fee:                   quote.Fee.String(),
		BeneficiaryName:       data.RecipientName,
		BeneficiaryAccount:    data.RecipientAccountNumber,
		BeneficiaryBankCode:   data.RecipientBankCode,
		OriginatorAccountID:   data.SenderAccountID,
		Narration:             data.Description,
		ChannelCode:           c.cfg.ChannelCode,
		OriginatorInstitution: c.cfg.InstitutionCode,
	}

	var respBody creditPushResponse
	if err := c.post(ctx, "/SingleCreditPushRequest", idempotencyKey, reqBody, &respBody); err != nil {
		return nil, &domain.SettlementError{
			Code:      "NETWORK_ERROR",
			Message:   err.Error(),
			Transient: true,
		}
	}

	if respBody.ResponseCode != successResponseCode {
		return nil, &domain.SettlementError{
			Code:    respBody.ResponseCode,
			Message: respBody.ResponseDescription,
		}
	}

	transferID := respBody.TransactionID
	if transferID == "" {
		transferID = uuid.New().String()
	}

	return &domain.TransferResponse{
		ID:          transferID,
		Reference:   reference,
		Status:      domain.TransferStatusCompleted,
		Amount:      data.Amount,
		Fees:        quote.Fee,
		TotalAmount: quote.TotalAmount,
		Recipient: domain.Recipient{
			Name:          data.RecipientName,
			AccountNumber: data.RecipientAccountNumber,
		},
		ProcessedAt: time.Now().UTC(),
	}, nil
}

func (c *Client) post(ctx context.Context, path, idempotencyKey string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("switch returned HTTP %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// newReference builds a customer-facing reference from the institution
// prefix and the current time
func newReference() string {
	millis := fmt.Sprintf("%d", time.Now().UnixMilli())
	return referencePrefix + millis[len(millis)-8:]
}

var _ domain.RecipientVerificationClient = (*Client)(nil)
var _ domain.SettlementClient = (*Client)(nil)
