package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/backoffice/internal/audit/domain"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/config"
	invoicedomain "github.com/smallbiznis/backoffice/internal/invoice/domain"
	"github.com/smallbiznis/backoffice/internal/invoice/reconcile"
	"github.com/smallbiznis/backoffice/internal/invoice/status"
	"github.com/smallbiznis/backoffice/internal/ledgerstore"
	obsmetrics "github.com/smallbiznis/backoffice/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Store     ledgerstore.Store
	AuditSvc  auditdomain.Service
	GenID     *snowflake.Node
	Clock     clock.Clock
	LedgerCfg *config.LedgerConfigHolder
}

// Service keeps the single in-memory copy of the invoice collection for the
// session and writes the whole collection back after every mutation.
type Service struct {
	mu       sync.Mutex
	log      *zap.Logger
	store    ledgerstore.Store
	auditSvc auditdomain.Service
	genID    *snowflake.Node
	clock    clock.Clock
	cfg      *config.LedgerConfigHolder

	invoices []invoicedomain.Invoice
	loaded   bool
}

func New(p Params) *Service {
	return &Service{
		log:      p.Log.Named("invoice.service"),
		store:    p.Store,
		auditSvc: p.AuditSvc,
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.LedgerCfg,
	}
}

// LoadCollection reads the stored collection, repairs any schedule drift it
// finds, and runs a status pass, persisting whatever changed at load.
func (s *Service) LoadCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoices, err := s.store.Load(ctx)
	if err != nil {
		return err
	}

	today := s.clock.Now()
	tolerance := s.cfg.Get().DriftToleranceCent
	changed := false
	repaired := 0
	for i := range invoices {
		inv := &invoices[i]
		if err := reconcile.Drift(inv.Installments, inv.InstallmentCount, inv.TotalAmount, tolerance); err != nil {
			s.log.Warn("schedule drift repaired",
				zap.String("invoice_id", inv.ID.String()),
				zap.Int("installment_count", inv.InstallmentCount),
				zap.Int("installments", len(inv.Installments)),
			)
			s.reconcileInvoice(inv, today)
			inv.UpdatedAt = today
			repaired++
			changed = true
		}
		if status.Pass(inv, today) {
			inv.UpdatedAt = today
			changed = true
		}
	}

	s.invoices = invoices
	s.loaded = true

	if changed {
		if err := s.store.Replace(ctx, s.invoices); err != nil {
			return err
		}
	}

	s.log.Info("invoice collection loaded",
		zap.Int("invoices", len(invoices)),
		zap.Int("schedules_repaired", repaired),
		zap.Bool("status_transitions", changed),
	)
	return nil
}

func (s *Service) List(ctx context.Context) ([]invoicedomain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]invoicedomain.Invoice, 0, len(s.invoices))
	for i := range s.invoices {
		out = append(out, cloneInvoice(s.invoices[i]))
	}
	return out, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.indexOf(id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	return cloneInvoice(s.invoices[idx]), nil
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	documentNumber := strings.TrimSpace(req.DocumentNumber)
	customerName := strings.TrimSpace(req.CustomerName)
	if req.IssueDate == nil {
		return invoicedomain.Invoice{}, invoicedomain.MissingField("issue_date")
	}
	if customerName == "" {
		return invoicedomain.Invoice{}, invoicedomain.MissingField("customer_name")
	}
	if documentNumber == "" {
		return invoicedomain.Invoice{}, invoicedomain.MissingField("document_number")
	}
	if strings.TrimSpace(req.TotalAmount) == "" {
		return invoicedomain.Invoice{}, invoicedomain.MissingField("total_amount")
	}
	total, err := parseAmount(req.TotalAmount)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if s.documentNumberTaken(documentNumber, 0) {
		return invoicedomain.Invoice{}, invoicedomain.ErrDuplicateDocument
	}

	now := s.clock.Now()
	count := req.InstallmentCount
	if count < 0 {
		count = 0
	}

	inv := invoicedomain.Invoice{
		ID:               s.genID.Generate(),
		DocumentNumber:   documentNumber,
		CustomerName:     customerName,
		IssueDate:        *req.IssueDate,
		DueDate:          req.DueDate,
		TotalAmount:      total,
		InstallmentCount: count,
		Status:           invoicedomain.InvoiceStatusActive,
		Notes:            req.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	s.reconcileInvoice(&inv, now)
	status.Pass(&inv, now)

	s.invoices = append(s.invoices, inv)
	if err := s.store.Replace(ctx, s.invoices); err != nil {
		s.invoices = s.invoices[:len(s.invoices)-1]
		return invoicedomain.Invoice{}, err
	}

	s.auditSvc.Record(ctx, "invoice", inv.ID.String(), nil, invoiceSnapshot(inv), "invoice created")
	return cloneInvoice(inv), nil
}

func (s *Service) Update(ctx context.Context, id string, req invoicedomain.UpdateInvoiceRequest) (invoicedomain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.indexOf(id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	before := cloneInvoice(s.invoices[idx])
	inv := cloneInvoice(s.invoices[idx])
	now := s.clock.Now()

	needsReconcile := false

	if req.DocumentNumber != nil {
		documentNumber := strings.TrimSpace(*req.DocumentNumber)
		if documentNumber == "" {
			return invoicedomain.Invoice{}, invoicedomain.MissingField("document_number")
		}
		if s.documentNumberTaken(documentNumber, inv.ID) {
			return invoicedomain.Invoice{}, invoicedomain.ErrDuplicateDocument
		}
		inv.DocumentNumber = documentNumber
	}
	if req.CustomerName != nil {
		customerName := strings.TrimSpace(*req.CustomerName)
		if customerName == "" {
			return invoicedomain.Invoice{}, invoicedomain.MissingField("customer_name")
		}
		inv.CustomerName = customerName
	}
	if req.IssueDate != nil {
		inv.IssueDate = *req.IssueDate
	}
	if req.DueDate != nil {
		inv.DueDate = req.DueDate
		needsReconcile = true
	}
	if req.TotalAmount != nil {
		total, err := parseAmount(*req.TotalAmount)
		if err != nil {
			return invoicedomain.Invoice{}, err
		}
		if !total.Equal(inv.TotalAmount) {
			inv.TotalAmount = total
			needsReconcile = true
		}
	}
	if req.InstallmentCount != nil {
		count := *req.InstallmentCount
		if count < 0 {
			count = 0
		}
		inv.InstallmentCount = count
		needsReconcile = true
	}
	if req.Notes != nil {
		inv.Notes = *req.Notes
	}

	if needsReconcile {
		s.reconcileInvoice(&inv, now)
	}

	if err := applyInstallmentPatches(&inv, req.Installments, now); err != nil {
		return invoicedomain.Invoice{}, err
	}

	if req.Status != nil {
		// manual override: honored until the next reconciliation pass re-derives it
		if !req.Status.IsValid() {
			return invoicedomain.Invoice{}, invoicedomain.ErrInvalidStatus
		}
		inv.Status = *req.Status
	} else {
		status.Pass(&inv, now)
	}

	inv.UpdatedAt = now
	s.invoices[idx] = inv
	if err := s.store.Replace(ctx, s.invoices); err != nil {
		s.invoices[idx] = before
		return invoicedomain.Invoice{}, err
	}

	s.auditSvc.Record(ctx, "invoice", inv.ID.String(), invoiceSnapshot(before), invoiceSnapshot(inv), "invoice updated")
	return cloneInvoice(inv), nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.indexOf(id)
	if err != nil {
		return err
	}

	removed := s.invoices[idx]
	next := make([]invoicedomain.Invoice, 0, len(s.invoices)-1)
	next = append(next, s.invoices[:idx]...)
	next = append(next, s.invoices[idx+1:]...)

	if err := s.store.Replace(ctx, next); err != nil {
		return err
	}
	s.invoices = next

	s.auditSvc.Record(ctx, "invoice", removed.ID.String(), invoiceSnapshot(removed), nil, "invoice deleted")
	return nil
}

func (s *Service) EscalateOverdue(ctx context.Context, candidate invoicedomain.OverdueCandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.indexOfID(candidate.InvoiceID)
	if err != nil {
		return err
	}

	before := cloneInvoice(s.invoices[idx])
	inv := cloneInvoice(s.invoices[idx])
	now := s.clock.Now()

	if candidate.InstallmentID != nil {
		pos := installmentIndex(inv.Installments, *candidate.InstallmentID)
		if pos < 0 {
			return invoicedomain.ErrInstallmentNotFound
		}
		switch inv.Installments[pos].Status {
		case invoicedomain.InstallmentStatusPaid:
			return invoicedomain.ErrInstallmentPaid
		case invoicedomain.InstallmentStatusOverdue:
			// already escalated; nothing to persist or audit
			return nil
		}
		inv.Installments[pos].Status = invoicedomain.InstallmentStatusOverdue
		inv.Status = status.ForInvoice(inv.Installments)
	} else {
		switch inv.Status {
		case invoicedomain.InvoiceStatusSettled:
			return invoicedomain.ErrInstallmentPaid
		case invoicedomain.InvoiceStatusOverdue:
			return nil
		}
		inv.Status = invoicedomain.InvoiceStatusOverdue
	}

	inv.UpdatedAt = now
	s.invoices[idx] = inv
	if err := s.store.Replace(ctx, s.invoices); err != nil {
		s.invoices[idx] = before
		return err
	}

	s.auditSvc.Record(ctx, "invoice", inv.ID.String(), invoiceSnapshot(before), invoiceSnapshot(inv), "overdue escalation")
	return nil
}

func (s *Service) ConfirmOverduePayment(ctx context.Context, candidate invoicedomain.OverdueCandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.indexOfID(candidate.InvoiceID)
	if err != nil {
		return err
	}

	before := cloneInvoice(s.invoices[idx])
	inv := cloneInvoice(s.invoices[idx])
	now := s.clock.Now()

	if candidate.InstallmentID != nil {
		pos := installmentIndex(inv.Installments, *candidate.InstallmentID)
		if pos < 0 {
			return invoicedomain.ErrInstallmentNotFound
		}
		inv.Installments[pos].Status = invoicedomain.InstallmentStatusPaid
		paidAt := now
		inv.Installments[pos].PaidAt = &paidAt
		inv.Installments[pos].UpdatedAt = now
		inv.Status = status.ForInvoice(inv.Installments)
	} else {
		inv.Status = invoicedomain.InvoiceStatusSettled
	}

	inv.UpdatedAt = now
	s.invoices[idx] = inv
	if err := s.store.Replace(ctx, s.invoices); err != nil {
		s.invoices[idx] = before
		return err
	}

	s.auditSvc.Record(ctx, "invoice", inv.ID.String(), invoiceSnapshot(before), invoiceSnapshot(inv), "overdue payment confirmed")
	return nil
}

func (s *Service) reconcileInvoice(inv *invoicedomain.Invoice, now time.Time) {
	opts := reconcile.Options{
		LastAbsorbsRemainder: s.cfg.Get().RoundingMode == "last-absorbs",
	}
	baseDue := inv.DueDate
	inv.Installments = reconcile.Schedule(inv.Installments, inv.InstallmentCount, inv.TotalAmount, baseDue, now, s.genID.Generate, opts)
	for i := range inv.Installments {
		inv.Installments[i].InvoiceID = inv.ID
		if inv.Installments[i].CreatedAt.IsZero() {
			inv.Installments[i].CreatedAt = now
		}
		inv.Installments[i].UpdatedAt = now
	}
	obsmetrics.Ledger().IncReconcilePass()
}

func applyInstallmentPatches(inv *invoicedomain.Invoice, patches []invoicedomain.InstallmentPatch, now time.Time) error {
	for _, patch := range patches {
		pos := -1
		for i := range inv.Installments {
			if inv.Installments[i].SequenceNumber == patch.SequenceNumber {
				pos = i
				break
			}
		}
		if pos < 0 {
			return invoicedomain.ErrInstallmentNotFound
		}
		inst := &inv.Installments[pos]

		if inst.Status == invoicedomain.InstallmentStatusPaid && !patch.Reopen {
			if patch.Status != nil && *patch.Status != invoicedomain.InstallmentStatusPaid {
				return invoicedomain.ErrInstallmentPaid
			}
		}
		if patch.Reopen {
			inst.Status = invoicedomain.InstallmentStatusPending
			inst.PaidAt = nil
		}
		if patch.Amount != nil {
			amount, err := parseAmount(*patch.Amount)
			if err != nil {
				return err
			}
			inst.Amount = amount
		}
		if patch.DueDate != nil {
			inst.DueDate = *patch.DueDate
		}
		if patch.Notes != nil {
			inst.Notes = *patch.Notes
		}
		if patch.Status != nil {
			if !patch.Status.IsValid() {
				return invoicedomain.ErrInvalidStatus
			}
			if *patch.Status == invoicedomain.InstallmentStatusPaid && inst.Status != invoicedomain.InstallmentStatusPaid {
				paidAt := now
				inst.PaidAt = &paidAt
			}
			inst.Status = *patch.Status
		}
		inst.UpdatedAt = now
	}
	return nil
}

func (s *Service) documentNumberTaken(documentNumber string, excludeID snowflake.ID) bool {
	for i := range s.invoices {
		if s.invoices[i].ID == excludeID {
			continue
		}
		if s.invoices[i].DocumentNumber == documentNumber {
			return true
		}
	}
	return false
}

func (s *Service) indexOf(id string) (int, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return -1, invoicedomain.ErrInvoiceNotFound
	}
	return s.indexOfID(parsed)
}

func (s *Service) indexOfID(id snowflake.ID) (int, error) {
	for i := range s.invoices {
		if s.invoices[i].ID == id {
			return i, nil
		}
	}
	return -1, invoicedomain.ErrInvoiceNotFound
}

func installmentIndex(installments []invoicedomain.Installment, id snowflake.ID) int {
	for i := range installments {
		if installments[i].ID == id {
			return i
		}
	}
	return -1
}

func parseAmount(raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, invoicedomain.ErrInvalidAmount
	}
	if !value.IsPositive() {
		return decimal.Decimal{}, invoicedomain.ErrInvalidAmount
	}
	return value, nil
}

func cloneInvoice(inv invoicedomain.Invoice) invoicedomain.Invoice {
	out := inv
	out.Installments = make([]invoicedomain.Installment, len(inv.Installments))
	copy(out.Installments, inv.Installments)
	return out
}

func invoiceSnapshot(inv invoicedomain.Invoice) map[string]any {
	installments := make([]any, 0, len(inv.Installments))
	for _, inst := range inv.Installments {
		installments = append(installments, map[string]any{
			"sequence_number": inst.SequenceNumber,
			"amount":          inst.Amount.String(),
			"due_date":        inst.DueDate.Format(time.RFC3339),
			"status":          string(inst.Status),
		})
	}
	return map[string]any{
		"document_number":   inv.DocumentNumber,
		"customer_name":     inv.CustomerName,
		"total_amount":      inv.TotalAmount.String(),
		"installment_count": inv.InstallmentCount,
		"status":            string(inv.Status),
		"installments":      installments,
	}
}
