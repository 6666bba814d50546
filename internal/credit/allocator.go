package credit

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/shared"
)

// Allocation is the outcome of applying one payment to a schedule.
type Allocation struct {
	// Updated holds the installments the payment touched, in sequence order.
	Updated   []Installment
	Lines     []InstallmentAllocation
	Principal decimal.Decimal
	Interest  decimal.Decimal
	Penalty   decimal.Decimal
	// Excess is the part of the payment beyond every open installment. It is
	// forfeited, never refunded or carried forward.
	Excess decimal.Decimal
}

// Allocate applies amount to the open installments in ascending sequence,
// regardless of the order they are given in. An installment is settled by its
// Value alone; accrued penalty is attributed alongside, never collected on top.
// Each application is attributed as applied × component / Value, and the one
// that completes an installment takes the exact remaining components.
func Allocate(installments []Installment, amount decimal.Decimal, paidAt time.Time) Allocation {
	ordered := make([]Installment, len(installments))
	copy(ordered, installments)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Sequence < ordered[j].Sequence })

	left := shared.RoundMoney(amount)
	var out Allocation
	for _, inst := range ordered {
		if !left.IsPositive() {
			break
		}
		if !inst.State.Open() || !inst.Value.IsPositive() {
			continue
		}
		remaining := inst.Due()
		if !remaining.IsPositive() {
			continue
		}

		applied := decimal.Min(left, remaining)
		var p, i, pen decimal.Decimal
		if applied.Equal(remaining) {
			p = nonNegative(inst.Principal.Sub(inst.PrincipalPaid))
			i = nonNegative(inst.Interest.Sub(inst.InterestPaid))
			pen = nonNegative(inst.Penalty.Sub(inst.PenaltyPaid))
		} else {
			p, i, pen = attribute(applied, inst)
		}

		inst.PrincipalPaid = inst.PrincipalPaid.Add(p)
		inst.InterestPaid = inst.InterestPaid.Add(i)
		inst.PenaltyPaid = inst.PenaltyPaid.Add(pen)
		inst.Settled = inst.Settled.Add(applied)
		if inst.Settled.GreaterThanOrEqual(inst.Value) {
			inst.State = InstallmentPaid
			at := paidAt
			inst.PaidAt = &at
		}

		out.Updated = append(out.Updated, inst)
		out.Lines = append(out.Lines, InstallmentAllocation{
			InstallmentID: inst.ID,
			Sequence:      inst.Sequence,
			Amount:        applied,
			Principal:     p,
			Interest:      i,
			Penalty:       pen,
		})
		out.Principal = out.Principal.Add(p)
		out.Interest = out.Interest.Add(i)
		out.Penalty = out.Penalty.Add(pen)
		left = left.Sub(applied)
	}
	if left.IsPositive() {
		out.Excess = left
	}
	return out
}

// attribute splits a partial application by each component's share of the
// installment value. Principal and interest add up to Value, so interest takes
// the rounding residue and together they equal applied.
func attribute(applied decimal.Decimal, inst Installment) (p, i, pen decimal.Decimal) {
	p = shared.RoundMoney(applied.Mul(inst.Principal).Div(inst.Value))
	i = applied.Sub(p)
	pen = shared.RoundMoney(applied.Mul(inst.Penalty).Div(inst.Value))
	return p, i, pen
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// HasDelinquent reports whether any installment is still delinquent.
func HasDelinquent(installments []Installment) bool {
	for _, inst := range installments {
		if inst.State == InstallmentDelinquent {
			return true
		}
	}
	return false
}

// Merge overlays updated installments onto the full schedule by id.
func Merge(schedule, updated []Installment) []Installment {
	byID := make(map[int64]Installment, len(updated))
	for _, u := range updated {
		byID[u.ID] = u
	}
	out := make([]Installment, len(schedule))
	for idx, inst := range schedule {
		if u, ok := byID[inst.ID]; ok {
			out[idx] = u
			continue
		}
		out[idx] = inst
	}
	return out
}
