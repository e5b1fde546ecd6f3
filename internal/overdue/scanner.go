// Package overdue detects unpaid, past-due items and drives a one-at-a-time
// payment-confirmation prompt.
package overdue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/config"
	invoicedomain "github.com/smallbiznis/backoffice/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/backoffice/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// State is the scanner's per-session position in the confirmation workflow.
type State string

const (
	StateIdle                 State = "idle"
	StateScanning             State = "scanning"
	StateAwaitingConfirmation State = "awaiting_confirmation"
)

var (
	ErrNoCandidate       = errors.New("no_overdue_candidate")
	ErrCandidateMismatch = errors.New("candidate_mismatch")
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	LedgerSvc invoicedomain.Service
	LedgerCfg *config.LedgerConfigHolder
}

// Scanner scans the invoice collection in stored order for the first
// unresolved overdue item and holds it until the user confirms or declines.
// Re-entrancy is guarded by the AwaitingConfirmation state plus a
// session-scoped set of already-asked item identifiers.
type Scanner struct {
	mu        sync.Mutex
	log       *zap.Logger
	clock     clock.Clock
	ledgerSvc invoicedomain.Service
	cfg       *config.LedgerConfigHolder

	state   State
	asked   map[string]struct{}
	pending *invoicedomain.OverdueCandidate
	timer   *time.Timer
}

func New(p Params) *Scanner {
	return &Scanner{
		log:       p.Log.Named("overdue.scanner"),
		clock:     p.Clock,
		ledgerSvc: p.LedgerSvc,
		cfg:       p.LedgerCfg,
		state:     StateIdle,
		asked:     make(map[string]struct{}),
	}
}

// State reports the scanner's current workflow state.
func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ScheduleScan arms a one-shot deferred scan. Scheduling while a confirmation
// is pending is a no-op so the current prompt is never surprised.
func (s *Scanner) ScheduleScan(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateAwaitingConfirmation {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	delay := s.cfg.Get().ScanDelay()
	s.timer = time.AfterFunc(delay, func() {
		if err := s.ScanOnce(ctx); err != nil {
			s.log.Warn("overdue scan failed", zap.Error(err))
		}
	})
}

// ScanOnce walks the collection once and, on a match, escalates it to overdue
// and holds it for confirmation. A pending confirmation makes the pass a no-op.
func (s *Scanner) ScanOnce(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateAwaitingConfirmation {
		s.mu.Unlock()
		return nil
	}
	s.state = StateScanning
	s.mu.Unlock()

	start := time.Now()
	defer func() {
		obsmetrics.Ledger().ObserveScan(time.Since(start))
	}()

	invoices, err := s.ledgerSvc.List(ctx)
	if err != nil {
		s.setState(StateIdle)
		return err
	}

	today := s.clock.Now()
	candidate, ok := s.firstUnresolved(invoices, today)
	if !ok {
		s.setState(StateIdle)
		return nil
	}

	// escalate eagerly so the overdue mark sticks even on decline
	if err := s.ledgerSvc.EscalateOverdue(ctx, candidate); err != nil {
		s.setState(StateIdle)
		return err
	}
	entity := "invoice"
	if candidate.InstallmentID != nil {
		entity = "installment"
	}
	obsmetrics.Ledger().IncOverdueDetected(entity)

	s.mu.Lock()
	s.pending = &candidate
	s.asked[candidate.Key()] = struct{}{}
	s.state = StateAwaitingConfirmation
	s.mu.Unlock()

	s.log.Info("overdue item awaiting confirmation",
		zap.String("invoice_id", candidate.InvoiceID.String()),
		zap.String("item_key", candidate.Key()),
		zap.String("due_date", candidate.DueDate.Format("2006-01-02")),
	)
	return nil
}

// Candidate returns the item currently held for confirmation, if any.
func (s *Scanner) Candidate() (invoicedomain.OverdueCandidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return invoicedomain.OverdueCandidate{}, false
	}
	return *s.pending, true
}

// Confirm marks the held item paid and clears its asked marker so the item can
// be re-detected if the underlying data is later reverted.
func (s *Scanner) Confirm(ctx context.Context, candidate invoicedomain.OverdueCandidate) error {
	s.mu.Lock()
	if s.pending == nil {
		s.mu.Unlock()
		return ErrNoCandidate
	}
	if s.pending.Key() != candidate.Key() {
		s.mu.Unlock()
		return ErrCandidateMismatch
	}
	held := *s.pending
	s.mu.Unlock()

	if err := s.ledgerSvc.ConfirmOverduePayment(ctx, held); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.asked, held.Key())
	s.pending = nil
	s.state = StateIdle
	s.mu.Unlock()

	obsmetrics.Ledger().IncConfirmation(obsmetrics.ConfirmationResultConfirmed)
	return nil
}

// Decline releases the held item. Its asked marker stays set, so it is not
// re-prompted in this session unless explicitly cleared.
func (s *Scanner) Decline(candidate invoicedomain.OverdueCandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return ErrNoCandidate
	}
	if s.pending.Key() != candidate.Key() {
		return ErrCandidateMismatch
	}
	s.pending = nil
	s.state = StateIdle

	obsmetrics.Ledger().IncConfirmation(obsmetrics.ConfirmationResultDeclined)
	return nil
}

// ClearAsked removes an item's asked marker, re-arming detection for it.
func (s *Scanner) ClearAsked(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.asked, key)
}

func (s *Scanner) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// firstUnresolved returns the first overdue, unpaid, not-yet-asked item in
// stored invoice order, then stored installment order.
func (s *Scanner) firstUnresolved(invoices []invoicedomain.Invoice, today time.Time) (invoicedomain.OverdueCandidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range invoices {
		inv := &invoices[i]
		if len(inv.Installments) > 0 {
			for j := range inv.Installments {
				inst := &inv.Installments[j]
				if inst.Status == invoicedomain.InstallmentStatusPaid {
					continue
				}
				if !beforeDay(inst.DueDate, today) {
					continue
				}
				id := inst.ID
				candidate := invoicedomain.OverdueCandidate{
					InvoiceID:      inv.ID,
					InstallmentID:  &id,
					DocumentNumber: inv.DocumentNumber,
					SequenceNumber: inst.SequenceNumber,
					Amount:         inst.Amount,
					DueDate:        inst.DueDate,
				}
				if _, asked := s.asked[candidate.Key()]; asked {
					continue
				}
				return candidate, true
			}
			continue
		}

		if inv.Status == invoicedomain.InvoiceStatusSettled {
			continue
		}
		if inv.DueDate == nil || !beforeDay(*inv.DueDate, today) {
			continue
		}
		candidate := invoicedomain.OverdueCandidate{
			InvoiceID:      inv.ID,
			DocumentNumber: inv.DocumentNumber,
			Amount:         inv.TotalAmount,
			DueDate:        *inv.DueDate,
		}
		if _, asked := s.asked[candidate.Key()]; asked {
			continue
		}
		return candidate, true
	}
	return invoicedomain.OverdueCandidate{}, false
}

func beforeDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC).
		Before(time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC))
}
