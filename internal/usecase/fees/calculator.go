package fees

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/paystreamhq/paystream-backend/internal/domain"
	"github.com/paystreamhq/paystream-backend/internal/telemetry"
)

// Schedule holds the fee tables the calculator reads. It is never mutated
// after construction, which keeps Quote referentially transparent: the same
// inputs always produce the same quote for the lifetime of a calculator.
type Schedule struct {
	Internal        decimal.Decimal
	ExternalDefault decimal.Decimal
	BillPayment     decimal.Decimal
	International   decimal.Decimal
	Banks           map[string]decimal.Decimal
}

// Calculator computes the fee and total charge for a transfer. The same
// calculator must be consulted at review (quote) and at finalize (confirm);
// any drift between the two is the stale-quote condition.
type Calculator struct {
	schedule Schedule
	logger   zerolog.Logger
}

// NewCalculator creates a new Calculator instance
func NewCalculator(schedule Schedule, logger zerolog.Logger) *Calculator {
	return &Calculator{
		schedule: schedule,
		logger:   logger.With().Str("component", "fees").Logger(),
	}
}

// Quote maps (transfer type, amount, destination bank) to a fee and total
// charge. Unknown transfer types are programmer errors and return an error;
// business-rule outcomes never do.
//
// Internal transfers are free. External transfers charge the destination
// bank's scheduled fee, falling back to the configured default when the bank
// is missing from the schedule; the fallback is logged as a data-quality
// signal. Bill payments and international transfers charge fixed fees (the
// international fee folds in the configured FX margin).
func (c *Calculator) Quote(transferType domain.TransferType, amount decimal.Decimal, bankCode string) (domain.Quote, error) {
	var fee decimal.Decimal

	switch transferType {
	case domain.TransferTypeInternal:
		fee = c.schedule.Internal
	case domain.TransferTypeExternal:
		scheduled, ok := c.schedule.Banks[bankCode]
		if !ok {
			c.logger.Warn().
				Str("bank_code", bankCode).
				Str("default_fee", c.schedule.ExternalDefault.String()).
				Msg("destination bank missing from fee schedule, using default fee")
			telemetry.FeeScheduleFallbackTotal.WithLabelValues(bankCode).Inc()
			scheduled = c.schedule.ExternalDefault
		}
		fee = scheduled
	case domain.TransferTypeBillPayment:
		fee = c.schedule.BillPayment
	case domain.TransferTypeInternational:
		fee = c.schedule.International
	default:
		return domain.Quote{}, fmt.Errorf("unknown transfer type %q", transferType)
	}

	return domain.Quote{
		Fee:         fee,
		TotalAmount: amount.Add(fee),
	}, nil
}
