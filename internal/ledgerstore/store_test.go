package ledgerstore

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/backoffice/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	store, err := New(db)
	require.NoError(t, err)
	return store
}

func testInvoice(t *testing.T, node *snowflake.Node, document string, createdAt time.Time, installments int) invoicedomain.Invoice {
	t.Helper()
	inv := invoicedomain.Invoice{
		ID:               node.Generate(),
		DocumentNumber:   document,
		CustomerName:     "Acme",
		IssueDate:        createdAt,
		TotalAmount:      decimal.NewFromInt(int64(installments) * 100),
		InstallmentCount: installments,
		Status:           invoicedomain.InvoiceStatusActive,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
	for seq := 1; seq <= installments; seq++ {
		inv.Installments = append(inv.Installments, invoicedomain.Installment{
			ID:             node.Generate(),
			InvoiceID:      inv.ID,
			SequenceNumber: seq,
			Amount:         decimal.NewFromInt(100),
			DueDate:        createdAt.AddDate(0, seq, 0),
			Status:         invoicedomain.InstallmentStatusPending,
			CreatedAt:      createdAt,
			UpdatedAt:      createdAt,
		})
	}
	return inv
}

func TestReplaceAndLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	first := testInvoice(t, node, "INV-001", base, 2)
	second := testInvoice(t, node, "INV-002", base.Add(time.Hour), 0)

	require.NoError(t, store.Replace(ctx, []invoicedomain.Invoice{first, second}))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	assert.Equal(t, "INV-001", loaded[0].DocumentNumber)
	assert.Equal(t, "INV-002", loaded[1].DocumentNumber)
	require.Len(t, loaded[0].Installments, 2)
	assert.Equal(t, 1, loaded[0].Installments[0].SequenceNumber)
	assert.Equal(t, 2, loaded[0].Installments[1].SequenceNumber)
	assert.True(t, loaded[0].TotalAmount.Equal(decimal.NewFromInt(200)))
	assert.Empty(t, loaded[1].Installments)
}

func TestReplaceIsAuthoritative(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	first := testInvoice(t, node, "INV-001", base, 3)
	require.NoError(t, store.Replace(ctx, []invoicedomain.Invoice{first}))

	// drop an installment and re-replace: stale rows must not survive
	first.Installments = first.Installments[:2]
	first.InstallmentCount = 2
	require.NoError(t, store.Replace(ctx, []invoicedomain.Invoice{first}))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Len(t, loaded[0].Installments, 2)

	t.Run("empty collection clears everything", func(t *testing.T) {
		require.NoError(t, store.Replace(ctx, nil))
		loaded, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, loaded)
	})
}

func TestLoadStoredOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	older := testInvoice(t, node, "INV-OLD", base, 0)
	newer := testInvoice(t, node, "INV-NEW", base.Add(2*time.Hour), 0)

	// insertion order deliberately reversed
	require.NoError(t, store.Replace(ctx, []invoicedomain.Invoice{newer, older}))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "INV-OLD", loaded[0].DocumentNumber)
	assert.Equal(t, "INV-NEW", loaded[1].DocumentNumber)
}
