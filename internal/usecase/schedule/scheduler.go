package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/paystreamhq/paystream-backend/internal/domain"
)

// RecurringTransfer is a completed transfer that should repeat on its
// declared frequency until its end date
type RecurringTransfer struct {
	Reference string
	UserID    string
	Data      domain.TransferData
}

// Dispatch is invoked each time a recurring transfer falls due. Running the
// recurrence through a fresh workflow (re-quote, re-verify, settle) is the
// dispatcher's responsibility.
type Dispatch func(ctx context.Context, transfer RecurringTransfer)

// Scheduler maps transfer frequencies onto cron schedules and fires the
// dispatch callback when a recurrence falls due
type Scheduler struct {
	cron     *cron.Cron
	dispatch Dispatch
	logger   zerolog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// NewScheduler creates a new Scheduler instance
func NewScheduler(dispatch Dispatch, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		dispatch: dispatch,
		logger:   logger.With().Str("component", "schedule").Logger(),
		entries:  map[string]cron.EntryID{},
	}
}

// Start begins running registered schedules
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling; running dispatches finish on their own
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// CronSpec maps a transfer frequency to a cron schedule expression.
// One-off transfers are not schedulable.
func CronSpec(frequency domain.TransferFrequency) (string, error) {
	switch frequency {
	case domain.FrequencyDaily:
		return "@daily", nil
	case domain.FrequencyWeekly:
		return "@weekly", nil
	case domain.FrequencyMonthly:
		return "@monthly", nil
	case domain.FrequencyQuarterly:
		return "0 0 1 */3 *", nil
	case domain.FrequencyYearly:
		return "@yearly", nil
	default:
		return "", fmt.Errorf("frequency %q is not schedulable", frequency)
	}
}

// Register adds a recurring transfer to the schedule, keyed by its
// reference. Registration past the transfer's end date is refused.
func (s *Scheduler) Register(transfer RecurringTransfer) error {
	spec, err := CronSpec(transfer.Data.Frequency)
	if err != nil {
		return err
	}
	if transfer.Data.EndDate != nil && time.Now().After(*transfer.Data.EndDate) {
		return fmt.Errorf("recurring transfer %s already past its end date", transfer.Reference)
	}

	entryID, err := s.cron.AddFunc(spec, func() {
		if transfer.Data.EndDate != nil && time.Now().After(*transfer.Data.EndDate) {
			s.Deregister(transfer.Reference)
			return
		}
		s.logger.Info().
			Str("reference", transfer.Reference).
			Str("frequency", string(transfer.Data.Frequency)).
			Msg("recurring transfer due")
		s.dispatch(context.Background(), transfer)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule recurring transfer: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.entries[transfer.Reference]; ok {
		s.cron.Remove(old)
	}
	s.entries[transfer.Reference] = entryID
	return nil
}

// Deregister removes a recurring transfer from the schedule
func (s *Scheduler) Deregister(reference string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[reference]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, reference)
	}
}

// Registered reports whether a reference currently has a schedule entry
func (s *Scheduler) Registered(reference string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[reference]
	return ok
}
