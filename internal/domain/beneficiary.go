package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Beneficiary is a saved, verified recipient available for reuse
type Beneficiary struct {
	ID             uuid.UUID
	UserID         string
	Name           string
	AccountNumber  string
	BankCode       string
	BankName       string
	Nickname       string
	TotalTransfers int
	LastUsed       time.Time
}

// Validate ensures the beneficiary adheres to domain rules
// Returns an error if validation fails
func (b *Beneficiary) Validate() error {
	if b.Name == "" {
		return errors.New("beneficiary name cannot be empty")
	}
	if len(b.AccountNumber) != 10 {
		return errors.New("beneficiary account number must be 10 digits")
	}
	if b.BankCode == "" {
		return errors.New("beneficiary bank code cannot be empty")
	}
	return nil
}
