// Package reconcile regenerates an invoice's installment schedule when its
// total amount or installment count changes, preserving payment history by
// sequence number.
package reconcile

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/backoffice/internal/invoice/domain"
)

// IDFunc yields identifiers for newly created installments.
type IDFunc func() snowflake.ID

// Options tunes schedule generation.
type Options struct {
	// LastAbsorbsRemainder makes the final installment absorb the rounding
	// remainder of an uneven division. Off by default: the historical behavior
	// is a plain equal split with no cent-distribution correction.
	LastAbsorbsRemainder bool
}

// Schedule reconciles an installment schedule against a target count and total.
//
// When the existing schedule already has targetCount entries, only amounts are
// recomputed; dates, statuses, paid timestamps and notes are untouched. Any
// other shape forces a full rebuild: due dates step one calendar month per
// sequence from baseDue (or today), and an existing installment with the same
// sequence number keeps its status, due date, paid timestamp and notes so
// payment history survives the rebuild. A target count below one clears the
// schedule; the invoice's own due date and total become authoritative.
func Schedule(existing []invoicedomain.Installment, targetCount int, total decimal.Decimal, baseDue *time.Time, today time.Time, nextID IDFunc, opts Options) []invoicedomain.Installment {
	if targetCount <= 0 {
		return nil
	}

	per := splitAmount(total, targetCount)

	if len(existing) == targetCount {
		out := make([]invoicedomain.Installment, len(existing))
		copy(out, existing)
		applyAmounts(out, per, total, opts)
		return out
	}

	base := today
	if baseDue != nil {
		base = *baseDue
	}

	prior := make(map[int]invoicedomain.Installment, len(existing))
	for _, inst := range existing {
		prior[inst.SequenceNumber] = inst
	}

	out := make([]invoicedomain.Installment, 0, targetCount)
	for seq := 1; seq <= targetCount; seq++ {
		inst := invoicedomain.Installment{
			ID:             nextID(),
			SequenceNumber: seq,
			Amount:         per,
			DueDate:        base.AddDate(0, seq-1, 0),
			Status:         invoicedomain.InstallmentStatusPending,
		}
		if prev, ok := prior[seq]; ok {
			inst.ID = prev.ID
			inst.InvoiceID = prev.InvoiceID
			inst.DueDate = prev.DueDate
			inst.Status = prev.Status
			inst.PaidAt = prev.PaidAt
			inst.Notes = prev.Notes
			inst.CreatedAt = prev.CreatedAt
		}
		out = append(out, inst)
	}
	applyAmounts(out, per, total, opts)
	return out
}

func splitAmount(total decimal.Decimal, count int) decimal.Decimal {
	return total.Div(decimal.NewFromInt(int64(count))).Round(2)
}

func applyAmounts(installments []invoicedomain.Installment, per, total decimal.Decimal, opts Options) {
	for i := range installments {
		installments[i].Amount = per
	}
	if !opts.LastAbsorbsRemainder || len(installments) == 0 {
		return
	}
	n := len(installments)
	allButLast := per.Mul(decimal.NewFromInt(int64(n - 1)))
	installments[n-1].Amount = total.Sub(allButLast)
}

// Drift reports ErrScheduleInconsistency when the schedule no longer matches
// the invoice's count or total beyond the given per-installment tolerance.
// Callers treat it as a signal to reconcile, never as a user-facing error.
func Drift(installments []invoicedomain.Installment, count int, total decimal.Decimal, toleranceCents int64) error {
	if count <= 0 {
		if len(installments) != 0 {
			return invoicedomain.ErrScheduleInconsistency
		}
		return nil
	}
	if len(installments) != count {
		return invoicedomain.ErrScheduleInconsistency
	}

	sum := decimal.Zero
	for _, inst := range installments {
		sum = sum.Add(inst.Amount)
	}
	tolerance := decimal.New(toleranceCents*int64(count), -2)
	if sum.Sub(total).Abs().GreaterThan(tolerance) {
		return invoicedomain.ErrScheduleInconsistency
	}
	return nil
}
