package overdue

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/config"
	invoicedomain "github.com/smallbiznis/backoffice/internal/invoice/domain"
	invoicesvc "github.com/smallbiznis/backoffice/internal/invoice/service"
	"github.com/smallbiznis/backoffice/internal/ledgerstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type noopAudit struct{}

func (noopAudit) Record(ctx context.Context, entityType, entityID string, before, after map[string]any, description string) {
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

type fixture struct {
	scanner *Scanner
	svc     invoicedomain.Service
	clock   *clock.FakeClock
	cfg     *config.LedgerConfigHolder
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	store, err := ledgerstore.New(db)
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(now)
	holder := &config.LedgerConfigHolder{}

	svc := invoicesvc.New(invoicesvc.Params{
		Log:       zaptest.NewLogger(t),
		Store:     store,
		AuditSvc:  noopAudit{},
		GenID:     node,
		Clock:     fake,
		LedgerCfg: holder,
	})
	require.NoError(t, svc.LoadCollection(context.Background()))

	scanner := New(Params{
		Log:       zaptest.NewLogger(t),
		Clock:     fake,
		LedgerSvc: svc,
		LedgerCfg: holder,
	})
	return &fixture{scanner: scanner, svc: svc, clock: fake, cfg: holder}
}

// seedInvoices stores one three-part invoice with its first two installments
// already past due, then an installment-less invoice that is also past due.
func seedInvoices(t *testing.T, f *fixture) (withSchedule, installmentless invoicedomain.Invoice) {
	t.Helper()
	ctx := context.Background()

	issue := day(2026, time.January, 1)
	first, err := f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		DocumentNumber:   "INV-100",
		CustomerName:     "Globex",
		IssueDate:        &issue,
		DueDate:          ptr(day(2026, time.January, 15)),
		TotalAmount:      "300",
		InstallmentCount: 3,
	})
	require.NoError(t, err)

	second, err := f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		DocumentNumber: "INV-101",
		CustomerName:   "Initech",
		IssueDate:      &issue,
		DueDate:        ptr(day(2026, time.February, 1)),
		TotalAmount:    "50",
	})
	require.NoError(t, err)
	return first, second
}

func TestScanOncePicksFirstInStoredOrder(t *testing.T) {
	f := newFixture(t, day(2026, time.March, 1))
	first, _ := seedInvoices(t, f)
	ctx := context.Background()

	require.NoError(t, f.scanner.ScanOnce(ctx))

	candidate, ok := f.scanner.Candidate()
	require.True(t, ok)
	assert.Equal(t, first.ID, candidate.InvoiceID)
	require.NotNil(t, candidate.InstallmentID)
	assert.Equal(t, 1, candidate.SequenceNumber)
	assert.Equal(t, "INV-100", candidate.DocumentNumber)
	assert.Equal(t, StateAwaitingConfirmation, f.scanner.State())
}

func TestScanOnceEscalationIsPersisted(t *testing.T) {
	f := newFixture(t, day(2026, time.March, 1))
	first, _ := seedInvoices(t, f)
	ctx := context.Background()

	require.NoError(t, f.scanner.ScanOnce(ctx))

	got, err := f.svc.GetByID(ctx, first.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InstallmentStatusOverdue, got.Installments[0].Status)
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, got.Status)
}

func TestScanOnceNoOpWhileAwaiting(t *testing.T) {
	f := newFixture(t, day(2026, time.March, 1))
	seedInvoices(t, f)
	ctx := context.Background()

	require.NoError(t, f.scanner.ScanOnce(ctx))
	held, ok := f.scanner.Candidate()
	require.True(t, ok)

	require.NoError(t, f.scanner.ScanOnce(ctx))
	still, ok := f.scanner.Candidate()
	require.True(t, ok)
	assert.Equal(t, held.Key(), still.Key())
}

func TestDeclineSuppressesUntilConfirmClears(t *testing.T) {
	f := newFixture(t, day(2026, time.March, 1))
	first, second := seedInvoices(t, f)
	ctx := context.Background()

	// first prompt: installment 1 of the scheduled invoice
	require.NoError(t, f.scanner.ScanOnce(ctx))
	c1, _ := f.scanner.Candidate()
	assert.Equal(t, 1, c1.SequenceNumber)
	require.NoError(t, f.scanner.Decline(c1))
	assert.Equal(t, StateIdle, f.scanner.State())

	// declined item is not re-prompted: the scan moves to installment 2
	require.NoError(t, f.scanner.ScanOnce(ctx))
	c2, _ := f.scanner.Candidate()
	assert.Equal(t, first.ID, c2.InvoiceID)
	assert.Equal(t, 2, c2.SequenceNumber)
	require.NoError(t, f.scanner.Decline(c2))

	// then the installment-less invoice
	require.NoError(t, f.scanner.ScanOnce(ctx))
	c3, _ := f.scanner.Candidate()
	assert.Equal(t, second.ID, c3.InvoiceID)
	assert.Nil(t, c3.InstallmentID)
	require.NoError(t, f.scanner.Decline(c3))

	// installment 3 is not due yet, so the session has nothing left to ask
	require.NoError(t, f.scanner.ScanOnce(ctx))
	_, ok := f.scanner.Candidate()
	assert.False(t, ok)
	assert.Equal(t, StateIdle, f.scanner.State())

	// explicitly clearing a marker re-arms detection for that item
	f.scanner.ClearAsked(c1.Key())
	require.NoError(t, f.scanner.ScanOnce(ctx))
	again, ok := f.scanner.Candidate()
	require.True(t, ok)
	assert.Equal(t, c1.Key(), again.Key())
}

func TestConfirmMarksPaidAndClearsMarker(t *testing.T) {
	f := newFixture(t, day(2026, time.March, 1))
	first, _ := seedInvoices(t, f)
	ctx := context.Background()

	require.NoError(t, f.scanner.ScanOnce(ctx))
	candidate, _ := f.scanner.Candidate()
	require.NoError(t, f.scanner.Confirm(ctx, candidate))
	assert.Equal(t, StateIdle, f.scanner.State())

	got, err := f.svc.GetByID(ctx, first.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InstallmentStatusPaid, got.Installments[0].Status)
	require.NotNil(t, got.Installments[0].PaidAt)
	assert.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, got.Status)

	// reverting the payment makes the item detectable again in this session
	_, err = f.svc.Update(ctx, first.ID.String(), invoicedomain.UpdateInvoiceRequest{
		Installments: []invoicedomain.InstallmentPatch{
			{SequenceNumber: 1, Reopen: true},
		},
	})
	require.NoError(t, err)

	require.NoError(t, f.scanner.ScanOnce(ctx))
	again, ok := f.scanner.Candidate()
	require.True(t, ok)
	assert.Equal(t, candidate.Key(), again.Key())
}

func TestConfirmDeclineGuards(t *testing.T) {
	f := newFixture(t, day(2026, time.March, 1))
	seedInvoices(t, f)
	ctx := context.Background()

	t.Run("nothing held", func(t *testing.T) {
		assert.ErrorIs(t, f.scanner.Confirm(ctx, invoicedomain.OverdueCandidate{}), ErrNoCandidate)
		assert.ErrorIs(t, f.scanner.Decline(invoicedomain.OverdueCandidate{}), ErrNoCandidate)
	})

	t.Run("mismatched candidate", func(t *testing.T) {
		require.NoError(t, f.scanner.ScanOnce(ctx))
		node, err := snowflake.NewNode(2)
		require.NoError(t, err)
		other := invoicedomain.OverdueCandidate{InvoiceID: node.Generate()}
		assert.ErrorIs(t, f.scanner.Confirm(ctx, other), ErrCandidateMismatch)
		assert.ErrorIs(t, f.scanner.Decline(other), ErrCandidateMismatch)

		// the held item is untouched
		_, ok := f.scanner.Candidate()
		assert.True(t, ok)
	})
}

func TestScheduleScan(t *testing.T) {
	f := newFixture(t, day(2026, time.March, 1))
	seedInvoices(t, f)

	f.cfg.Set(config.LedgerConfig{
		ScanDelayMillis:    1,
		DriftToleranceCent: 1,
		RoundingMode:       "equal-split",
	})

	f.scanner.ScheduleScan(context.Background())
	assert.Eventually(t, func() bool {
		_, ok := f.scanner.Candidate()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	t.Run("no rearm while awaiting confirmation", func(t *testing.T) {
		held, _ := f.scanner.Candidate()
		f.scanner.ScheduleScan(context.Background())
		time.Sleep(10 * time.Millisecond)
		still, ok := f.scanner.Candidate()
		require.True(t, ok)
		assert.Equal(t, held.Key(), still.Key())
	})
}

func TestScanNoCandidateWhenNothingDue(t *testing.T) {
	f := newFixture(t, day(2026, time.January, 2))
	seedInvoices(t, f)
	ctx := context.Background()

	require.NoError(t, f.scanner.ScanOnce(ctx))
	_, ok := f.scanner.Candidate()
	assert.False(t, ok)
	assert.Equal(t, StateIdle, f.scanner.State())
}
