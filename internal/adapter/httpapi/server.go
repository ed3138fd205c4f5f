package httpapi

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/paystreamhq/paystream-backend/internal/domain"
	"github.com/paystreamhq/paystream-backend/internal/usecase/workflow"
)

// Server exposes the four workflow operations over HTTP, keyed by a session
// identifier. Sessions live in memory for the duration of the workflow, per
// the engine's single-session model.
type Server struct {
	engine *workflow.Engine
	logger zerolog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*workflow.Session
}

// NewServer creates a new HTTP server instance
func NewServer(engine *workflow.Engine, logger zerolog.Logger) *Server {
	return &Server{
		engine:   engine,
		logger:   logger.With().Str("component", "httpapi").Logger(),
		sessions: map[uuid.UUID]*workflow.Session{},
	}
}

// startRequest is the request body for starting a workflow. Permissions are
// the caller's resolved feature grants, injected by the upstream gateway.
type startRequest struct {
	UserID      string         `json:"userId" binding:"required"`
	Type        string         `json:"type" binding:"required"`
	Permissions map[string]int `json:"permissions"`
}

// stepPayloadRequest mirrors domain.StepPayload with JSON bindings
type stepPayloadRequest struct {
	Type            string          `json:"type"`
	SenderAccountID string          `json:"senderAccountId"`
	RecipientName   string          `json:"recipientName"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	PIN             string          `json:"pin"`

	RecipientAccountNumber string `json:"recipientAccountNumber"`
	RecipientBankCode      string `json:"recipientBankCode"`
	SaveBeneficiary        *bool  `json:"saveBeneficiary"`
	BeneficiaryNickname    string `json:"beneficiaryNickname"`

	BillerID          string `json:"billerId"`
	CustomerReference string `json:"customerReference"`

	RecipientIBAN  string `json:"recipientIban"`
	RecipientSWIFT string `json:"recipientSwiftCode"`
	Purpose        string `json:"purpose"`
	SourceOfFunds  string `json:"sourceOfFunds"`

	ScheduledDate *time.Time `json:"scheduledDate"`
	Frequency     string     `json:"frequency"`
	EndDate       *time.Time `json:"endDate"`
}

func (r stepPayloadRequest) toPayload() domain.StepPayload {
	return domain.StepPayload{
		Type:                   domain.TransferType(r.Type),
		SenderAccountID:        r.SenderAccountID,
		RecipientName:          r.RecipientName,
		Amount:                 r.Amount,
		Description:            r.Description,
		PIN:                    r.PIN,
		RecipientAccountNumber: r.RecipientAccountNumber,
		RecipientBankCode:      r.RecipientBankCode,
		SaveBeneficiary:        r.SaveBeneficiary,
		BeneficiaryNickname:    r.BeneficiaryNickname,
		BillerID:               r.BillerID,
		CustomerReference:      r.CustomerReference,
		RecipientIBAN:          r.RecipientIBAN,
		RecipientSWIFT:         r.RecipientSWIFT,
		Purpose:                r.Purpose,
		SourceOfFunds:          r.SourceOfFunds,
		ScheduledDate:          r.ScheduledDate,
		Frequency:              domain.TransferFrequency(r.Frequency),
		EndDate:                r.EndDate,
	}
}

// transferDataView is the read-only projection of the accumulated transfer
// data. The PIN is deliberately never echoed back.
type transferDataView struct {
	Type                   string          `json:"type,omitempty"`
	SenderAccountID        string          `json:"senderAccountId,omitempty"`
	RecipientName          string          `json:"recipientName,omitempty"`
	Amount                 decimal.Decimal `json:"amount"`
	Description            string          `json:"description,omitempty"`
	RecipientAccountNumber string          `json:"recipientAccountNumber,omitempty"`
	RecipientBankCode      string          `json:"recipientBankCode,omitempty"`
	SaveBeneficiary        bool            `json:"saveBeneficiary,omitempty"`
	BillerID               string          `json:"billerId,omitempty"`
	CustomerReference      string          `json:"customerReference,omitempty"`
	RecipientIBAN          string          `json:"recipientIban,omitempty"`
	RecipientSWIFT         string          `json:"recipientSwiftCode,omitempty"`
	Purpose                string          `json:"purpose,omitempty"`
	SourceOfFunds          string          `json:"sourceOfFunds,omitempty"`
	ScheduledDate          *time.Time      `json:"scheduledDate,omitempty"`
	Frequency              string          `json:"frequency,omitempty"`
	EndDate                *time.Time      `json:"endDate,omitempty"`
}

// progressView is the read-only projection returned for rendering
type progressView struct {
	SessionID      string                   `json:"sessionId"`
	CurrentStep    domain.TransferStep      `json:"currentStep"`
	CompletedSteps []domain.TransferStep    `json:"completedSteps"`
	TransferData   transferDataView         `json:"transferData"`
	Errors         map[string]string        `json:"errors"`
	IsValid        bool                     `json:"isValid"`
	Quote          *domain.Quote            `json:"quote,omitempty"`
	Response       *domain.TransferResponse `json:"response,omitempty"`
}

func newProgressView(s *workflow.Session) progressView {
	d := s.Progress.TransferData
	view := progressView{
		SessionID:      s.ID.String(),
		CurrentStep:    s.Progress.CurrentStep,
		CompletedSteps: s.Progress.CompletedSteps,
		TransferData: transferDataView{
			Type:                   string(d.Type),
			SenderAccountID:        d.SenderAccountID,
			RecipientName:          d.RecipientName,
			Amount:                 d.Amount,
			Description:            d.Description,
			RecipientAccountNumber: d.RecipientAccountNumber,
			RecipientBankCode:      d.RecipientBankCode,
			SaveBeneficiary:        d.SaveBeneficiary,
			BillerID:               d.BillerID,
			CustomerReference:      d.CustomerReference,
			RecipientIBAN:          d.RecipientIBAN,
			RecipientSWIFT:         d.RecipientSWIFT,
			Purpose:                d.Purpose,
			SourceOfFunds:          d.SourceOfFunds,
			ScheduledDate:          d.ScheduledDate,
			Frequency:              string(d.Frequency),
			EndDate:                d.EndDate,
		},
		Errors:   s.Progress.Errors,
		IsValid:  s.Progress.IsValid,
		Quote:    s.Quote(),
		Response: s.Response(),
	}
	return view
}

// Start handles POST /v1/transfers
func (s *Server) Start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := s.engine.Start(c.Request.Context(), req.UserID, req.Permissions, domain.TransferType(req.Type))
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	c.JSON(http.StatusCreated, newProgressView(session))
}

// Advance handles POST /v1/transfers/:id/advance
func (s *Server) Advance(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}

	var req stepPayloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := s.engine.Advance(c.Request.Context(), session, req.toPayload()); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			// Field errors travel on the progress projection so the client
			// can render them in place.
			c.JSON(http.StatusUnprocessableEntity, newProgressView(session))
			return
		}
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newProgressView(session))
}

// Rollback handles POST /v1/transfers/:id/rollback
func (s *Server) Rollback(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}

	if _, err := s.engine.Rollback(session); err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newProgressView(session))
}

// Verify handles POST /v1/transfers/:id/verify, the explicit recipient
// verification action. Finalize re-checks regardless.
func (s *Server) Verify(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}

	result, err := s.engine.VerifyRecipient(c.Request.Context(), session)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accountName": result.AccountName,
		"bankName":    result.BankName,
		"progress":    newProgressView(session),
	})
}

// Finalize handles POST /v1/transfers/:id/finalize
func (s *Server) Finalize(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}

	response, err := s.engine.Finalize(c.Request.Context(), session)
	if err != nil {
		s.writeError(c, err)
		return
	}

	// Terminal: the workflow session is done once the outcome is delivered.
	s.mu.Lock()
	delete(s.sessions, session.ID)
	s.mu.Unlock()

	c.JSON(http.StatusOK, response)
}

// Get handles GET /v1/transfers/:id
func (s *Server) Get(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newProgressView(session))
}

// Abandon handles DELETE /v1/transfers/:id. Discarding a workflow before
// finalize has no side effects.
func (s *Server) Abandon(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}

	s.mu.Lock()
	delete(s.sessions, session.ID)
	s.mu.Unlock()

	s.logger.Info().Str("session_id", session.ID.String()).Msg("transfer workflow abandoned")
	c.Status(http.StatusNoContent)
}

// Health handles GET /health
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) session(c *gin.Context) (*workflow.Session, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return nil, false
	}

	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "transfer session not found"})
		return nil, false
	}
	return session, true
}

// writeError maps the typed workflow errors onto HTTP statuses without
// losing their codes
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		verr  *domain.ValidationError
		lerr  *domain.LimitExceededError
		ferr  *domain.InsufficientFundsError
		qerr  *domain.StaleQuoteError
		rverr *domain.VerificationFailedError
		serr  *domain.SettlementError
		terr  *domain.TransferError
	)

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": domain.ErrCodeValidation, "fields": verr.Fields})
	case errors.As(err, &lerr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": domain.ErrCodeLimitExceeded, "limitType": lerr.LimitType, "error": lerr.Error()})
	case errors.As(err, &ferr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": domain.ErrCodeInsufficientFunds, "error": ferr.Error()})
	case errors.As(err, &qerr):
		c.JSON(http.StatusConflict, gin.H{"code": domain.ErrCodeStaleQuote, "error": qerr.Error()})
	case errors.As(err, &rverr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": domain.ErrCodeVerificationFailed, "error": rverr.Error()})
	case errors.As(err, &serr):
		c.JSON(http.StatusBadGateway, gin.H{"code": serr.Code, "error": serr.Message, "transient": serr.Transient})
	case errors.As(err, &terr):
		status := http.StatusConflict
		if terr.Code == domain.ErrCodePermissionDenied {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"code": terr.Code, "error": terr.Message})
	default:
		s.logger.Error().Err(err).Msg("unhandled workflow error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, s *Server) {
	r.GET("/health", s.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1/transfers")
	{
		v1.POST("", s.Start)
		v1.GET("/:id", s.Get)
		v1.POST("/:id/advance", s.Advance)
		v1.POST("/:id/rollback", s.Rollback)
		v1.POST("/:id/verify", s.Verify)
		v1.POST("/:id/finalize", s.Finalize)
		v1.DELETE("/:id", s.Abandon)
	}
}
