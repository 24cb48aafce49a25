/*
ledger.go - LeaveBalanceLedger

PURPOSE:
  The only writer of LeaveBalance rows. Every change to total, used or
  remaining days goes through here so the invariants are enforced in one
  place:

    UsedDays + RemainingDays == TotalDays
    RemainingDays >= 0

OPERATIONS:
  EnsureBalance   return the row, creating it with the policy allotment if absent
  CheckSufficient advisory check used at submission (never mutates)
  Debit           binding check + consume, used at approval
  Credit          inverse of Debit
  SetAllotment    admin initialize/adjust; never touches UsedDays

WHEN IS A BALANCE DEBITED?
  Only on approval. Submission only checks sufficiency, so a pending request
  holds nothing. Two pending requests may each pass the advisory check and
  the second approval can still fail with InsufficientBalanceError. That is
  expected.

CONCURRENCY:
  Each write is conditional on the row version read in the same
  transaction (UpdateBalance(b, expectedVersion)). A debit that would drive
  RemainingDays negative is refused even if an earlier check passed.

SEE ALSO:
  - request.go: calls the ledger from inside Store.WithTx
  - policies.go: which leave types are tracked
*/
package timeoff

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/timekeeper/generic"
)

// BalanceLedger applies debits, credits and allotments to balance rows.
// Methods take the Store to write through, normally the transactional view
// handed out by TxStore.WithTx.
type BalanceLedger struct {
	Policies PolicyTable
	Clock    generic.Clock
}

func NewBalanceLedger(policies PolicyTable, clock generic.Clock) *BalanceLedger {
	if policies == nil {
		policies = DefaultPolicies()
	}
	if clock == nil {
		clock = generic.SystemClock{}
	}
	return &BalanceLedger{Policies: policies, Clock: clock}
}

// EnsureBalance returns the balance for key, creating it with the policy's
// default allotment when absent. Idempotent.
func (l *BalanceLedger) EnsureBalance(ctx context.Context, s Store, key BalanceKey) (*LeaveBalance, error) {
	return l.ensure(ctx, s, key, l.Policies.Lookup(key.LeaveType).DefaultAllotment)
}

func (l *BalanceLedger) ensure(ctx context.Context, s Store, key BalanceKey, total decimal.Decimal) (*LeaveBalance, error) {
	b, err := s.GetBalance(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	if b != nil {
		return b, nil
	}

	now := l.Clock.Now()
	nb := LeaveBalance{
		ID:            generic.NewRecordID(),
		Key:           key,
		TotalDays:     total,
		UsedDays:      decimal.Zero,
		RemainingDays: total,
		ExpiryDate:    generic.EndOfYear(key.Year),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if insErr := s.InsertBalance(ctx, nb); insErr != nil {
		if !errors.Is(insErr, generic.ErrConcurrentModification) {
			return nil, fmt.Errorf("create balance: %w", insErr)
		}
		// Someone else created it first.
		b, err = s.GetBalance(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("reload balance: %w", err)
		}
		if b == nil {
			return nil, fmt.Errorf("create balance: %w", insErr)
		}
		return b, nil
	}
	return &nb, nil
}

// CheckSufficient reports whether b can cover days.
func CheckSufficient(b *LeaveBalance, days decimal.Decimal) bool {
	return b.RemainingDays.GreaterThanOrEqual(days)
}

// Debit consumes days from b. Fails with *generic.InsufficientBalanceError,
// without writing, if RemainingDays would go negative. On success b is
// updated in place.
func (l *BalanceLedger) Debit(ctx context.Context, s Store, b *LeaveBalance, days decimal.Decimal) error {
	if !days.IsPositive() {
		return &generic.ValidationError{Field: "days", Reason: "debit must be positive"}
	}
	if !CheckSufficient(b, days) {
		return insufficient(b, days)
	}
	next := *b
	next.UsedDays = b.UsedDays.Add(days)
	next.RemainingDays = b.RemainingDays.Sub(days)
	return l.write(ctx, s, b, next)
}

// Credit returns days to b. Crediting more than was used is a validation error.
func (l *BalanceLedger) Credit(ctx context.Context, s Store, b *LeaveBalance, days decimal.Decimal) error {
	if !days.IsPositive() {
		return &generic.ValidationError{Field: "days", Reason: "credit must be positive"}
	}
	if days.GreaterThan(b.UsedDays) {
		return &generic.ValidationError{
			Field:  "days",
			Reason: fmt.Sprintf("cannot credit %s days, only %s used", days, b.UsedDays),
		}
	}
	next := *b
	next.UsedDays = b.UsedDays.Sub(days)
	next.RemainingDays = b.RemainingDays.Add(days)
	return l.write(ctx, s, b, next)
}

// SetAllotment sets TotalDays for (user, year, leave type), creating the row if
// needed. UsedDays is never changed; RemainingDays becomes max(0, total-used).
// A total below UsedDays is refused so that used + remaining == total holds.
func (l *BalanceLedger) SetAllotment(ctx context.Context, s Store, key BalanceKey, total decimal.Decimal) (*LeaveBalance, error) {
	if !l.Policies.IsTracked(key.LeaveType) {
		return nil, &generic.ValidationError{Field: "leave_type", Reason: string(key.LeaveType) + " does not use a balance"}
	}
	if total.IsNegative() {
		return nil, &generic.ValidationError{Field: "total_days", Reason: "must not be negative"}
	}
	if !generic.IsHalfDayMultiple(total) {
		return nil, &generic.ValidationError{Field: "total_days", Reason: "must be a multiple of 0.5"}
	}

	b, err := l.ensure(ctx, s, key, total)
	if err != nil {
		return nil, err
	}
	if b.TotalDays.Equal(total) {
		return b, nil
	}
	if total.LessThan(b.UsedDays) {
		return nil, &generic.ValidationError{
			Field:  "total_days",
			Reason: fmt.Sprintf("%s is below the %s days already used", total, b.UsedDays),
		}
	}

	next := *b
	next.TotalDays = total
	next.RemainingDays = decimal.Max(decimal.Zero, total.Sub(b.UsedDays))
	if err := l.write(ctx, s, b, next); err != nil {
		return nil, err
	}
	return b, nil
}

func (l *BalanceLedger) write(ctx context.Context, s Store, b *LeaveBalance, next LeaveBalance) error {
	if !next.Consistent() {
		return fmt.Errorf("balance %s would break ledger invariants (total %s, used %s, remaining %s)",
			b.ID, next.TotalDays, next.UsedDays, next.RemainingDays)
	}
	next.Version = b.Version + 1
	next.UpdatedAt = l.Clock.Now()
	if err := s.UpdateBalance(ctx, next, b.Version); err != nil {
		return fmt.Errorf("update balance %s: %w", b.ID, err)
	}
	*b = next
	return nil
}

func insufficient(b *LeaveBalance, days decimal.Decimal) error {
	return &generic.InsufficientBalanceError{
		UserID:    b.Key.UserID,
		Year:      b.Key.Year,
		LeaveType: string(b.Key.LeaveType),
		Remaining: b.RemainingDays,
		Requested: days,
	}
}
