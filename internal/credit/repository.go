package credit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/ledger/journals"
	"github.com/coopledger/coopledger/internal/platform/db"
	"github.com/coopledger/coopledger/internal/shared"
)

// ListFilter narrows loan listings.
type ListFilter struct {
	MemberID int64
	State    State
	Type     Type
	Limit    int
	Offset   int
}

// Repository reads loans and opens write transactions.
type Repository interface {
	Get(ctx context.Context, id int64) (Loan, error)
	List(ctx context.Context, filter ListFilter) ([]Loan, int, error)
	Installments(ctx context.Context, loanID int64) ([]Installment, error)
	Payments(ctx context.Context, loanID int64) ([]Payment, error)
	PaymentByKey(ctx context.Context, loanID int64, key string) (Payment, error)
	HasDelinquentLoan(ctx context.Context, memberID int64) (bool, error)
	Stats(ctx context.Context) (Stats, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository writes inside one transaction shared with the journal engine.
type TxRepository interface {
	NextNumber(ctx context.Context, scope string) (string, error)
	InsertLoan(ctx context.Context, l Loan) (Loan, error)
	GetForUpdate(ctx context.Context, id int64) (Loan, error)
	UpdateLoan(ctx context.Context, l Loan) error
	InsertInstallments(ctx context.Context, loanID int64, rows []Installment) ([]Installment, error)
	// InstallmentsForUpdate locks and returns the loan's schedule.
	InstallmentsForUpdate(ctx context.Context, loanID int64) ([]Installment, error)
	UpdateInstallment(ctx context.Context, inst Installment) error
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	// OverdueLoanIDs lists loans accepting payments with an open installment due before asOf.
	OverdueLoanIDs(ctx context.Context, asOf time.Time) ([]int64, error)
	Journal() journals.TxRepository
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const loanColumns = `id, number, member_id, type, requested_amount, approved_amount, disbursed_amount, annual_rate, term_months,
frequency, method, state, installment_value, total_interest, total_payable, outstanding_principal, outstanding_interest,
outstanding_penalty, days_late, purpose, notes, rejection_reason, requested_by, approved_by, disbursed_by,
disbursement_entry_id, requested_at, approved_at, disbursed_at, first_payment_date, last_payment_date, updated_at`

func scanLoan(row pgx.Row) (Loan, error) {
	var l Loan
	err := row.Scan(&l.ID, &l.Number, &l.MemberID, &l.Type, &l.RequestedAmount, &l.ApprovedAmount, &l.DisbursedAmount,
		&l.AnnualRate, &l.TermMonths, &l.Frequency, &l.Method, &l.State, &l.InstallmentValue, &l.TotalInterest,
		&l.TotalPayable, &l.OutstandingPrincipal, &l.OutstandingInterest, &l.OutstandingPenalty, &l.DaysLate, &l.Purpose,
		&l.Notes, &l.RejectionReason, &l.RequestedBy, &l.ApprovedBy, &l.DisbursedBy, &l.DisbursementEntryID,
		&l.RequestedAt, &l.ApprovedAt, &l.DisbursedAt, &l.FirstPaymentDate, &l.LastPaymentDate, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Loan{}, ErrLoanNotFound
	}
	return l, err
}

const installmentColumns = `id, loan_id, sequence, due_date, value, principal, interest, remaining_after, settled, days_late,
penalty, state, paid_at, principal_paid, interest_paid, penalty_paid`

func scanInstallments(rows pgx.Rows) ([]Installment, error) {
	defer rows.Close()
	var out []Installment
	for rows.Next() {
		var i Installment
		if err := rows.Scan(&i.ID, &i.LoanID, &i.Sequence, &i.DueDate, &i.Value, &i.Principal, &i.Interest, &i.RemainingAfter,
			&i.Settled, &i.DaysLate, &i.Penalty, &i.State, &i.PaidAt, &i.PrincipalPaid, &i.InterestPaid, &i.PenaltyPaid); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *repository) Get(ctx context.Context, id int64) (Loan, error) {
	return scanLoan(r.db.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id=$1`, id))
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Loan, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.MemberID > 0 {
		args = append(args, filter.MemberID)
		where = append(where, fmt.Sprintf("member_id = $%d", len(args)))
	}
	if filter.State != "" {
		args = append(args, filter.State)
		where = append(where, fmt.Sprintf("state = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM loans`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT `+loanColumns+` FROM loans%s ORDER BY requested_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}

func (r *repository) Installments(ctx context.Context, loanID int64) ([]Installment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+installmentColumns+` FROM loan_installments WHERE loan_id=$1 ORDER BY sequence`, loanID)
	if err != nil {
		return nil, err
	}
	return scanInstallments(rows)
}

const paymentColumns = `id, loan_id, receipt_number, payment_date, total_value, principal_portion, interest_portion, penalty_portion,
other_portion, method, reference, notes, COALESCE(idempotency_key, ''), recorded_by, created_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.LoanID, &p.ReceiptNumber, &p.PaymentDate, &p.TotalValue, &p.PrincipalPortion, &p.InterestPortion,
		&p.PenaltyPortion, &p.OtherPortion, &p.Method, &p.Reference, &p.Notes, &p.IdempotencyKey, &p.RecordedBy, &p.CreatedAt)
	return p, err
}

func loadAllocations(ctx context.Context, q querier, paymentID int64) ([]InstallmentAllocation, error) {
	rows, err := q.Query(ctx, `SELECT a.installment_id, i.sequence, a.amount, a.principal, a.interest, a.penalty
FROM payment_allocations a JOIN loan_installments i ON i.id = a.installment_id
WHERE a.payment_id=$1 ORDER BY i.sequence`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []InstallmentAllocation
	for rows.Next() {
		var a InstallmentAllocation
		if err := rows.Scan(&a.InstallmentID, &a.Sequence, &a.Amount, &a.Principal, &a.Interest, &a.Penalty); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) Payments(ctx context.Context, loanID int64) ([]Payment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+paymentColumns+` FROM loan_payments WHERE loan_id=$1 ORDER BY payment_date, id`, loanID)
	if err != nil {
		return nil, err
	}
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for idx := range out {
		if out[idx].Allocations, err = loadAllocations(ctx, r.db, out[idx].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *repository) PaymentByKey(ctx context.Context, loanID int64, key string) (Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM loan_payments WHERE loan_id=$1 AND idempotency_key=$2`, loanID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, shared.NewError(shared.ErrNotFound, "credit: payment not found")
	}
	if err != nil {
		return Payment{}, err
	}
	p.Allocations, err = loadAllocations(ctx, r.db, p.ID)
	return p, err
}

func (r *repository) HasDelinquentLoan(ctx context.Context, memberID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM loans WHERE member_id=$1 AND state=$2)`, memberID, StateDelinquent).Scan(&exists)
	return exists, err
}

func (r *repository) Stats(ctx context.Context) (Stats, error) {
	var (
		s       Stats
		avgDays decimal.Decimal
	)
	err := r.db.QueryRow(ctx, `SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE state IN ('ACTIVE','DELINQUENT','DISBURSED')),
	COUNT(*) FILTER (WHERE state = 'ACTIVE'),
	COUNT(*) FILTER (WHERE state = 'DELINQUENT'),
	COALESCE(SUM(outstanding_principal) FILTER (WHERE state IN ('ACTIVE','DELINQUENT','DISBURSED')), 0),
	COALESCE(SUM(outstanding_penalty) FILTER (WHERE state = 'DELINQUENT'), 0),
	COALESCE(AVG(days_late) FILTER (WHERE state = 'DELINQUENT'), 0)
FROM loans`).Scan(&s.Total, &s.Active, &s.Current, &s.Delinquent, &s.Portfolio, &s.TotalPenalty, &avgDays)
	if err != nil {
		return Stats{}, err
	}
	s.AverageDaysLate = avgDays.Round(2)
	s.DelinquencyRatePct = DelinquencyRate(s.Delinquent, s.Active)
	return s, nil
}

// DelinquencyRate is delinquent over active loans in percent.
func DelinquencyRate(delinquent, active int) decimal.Decimal {
	if active == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(delinquent)).Div(decimal.NewFromInt(int64(active))).Mul(decimal.NewFromInt(100)).Round(2)
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, journal: journals.NewTxRepository(tx)})
	})
}

type txRepository struct {
	tx      pgx.Tx
	journal journals.TxRepository
}

func (r *txRepository) Journal() journals.TxRepository { return r.journal }

func (r *txRepository) NextNumber(ctx context.Context, scope string) (string, error) {
	return shared.NextNumber(ctx, r.tx, scope)
}

func (r *txRepository) InsertLoan(ctx context.Context, l Loan) (Loan, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO loans (number, member_id, type, requested_amount, annual_rate, term_months, frequency, method,
state, purpose, requested_by, requested_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id, updated_at`,
		l.Number, l.MemberID, l.Type, l.RequestedAmount, l.AnnualRate, l.TermMonths, l.Frequency, l.Method, l.State, l.Purpose,
		l.RequestedBy, l.RequestedAt).Scan(&l.ID, &l.UpdatedAt)
	if db.IsUniqueViolation(err, "uq_loans_number") {
		return Loan{}, ErrLoanNumberCollision
	}
	return l, err
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Loan, error) {
	return scanLoan(r.tx.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdateLoan(ctx context.Context, l Loan) error {
	_, err := r.tx.Exec(ctx, `UPDATE loans SET approved_amount=$2, disbursed_amount=$3, annual_rate=$4, term_months=$5, state=$6,
installment_value=$7, total_interest=$8, total_payable=$9, outstanding_principal=$10, outstanding_interest=$11,
outstanding_penalty=$12, days_late=$13, notes=$14, rejection_reason=$15, approved_by=$16, disbursed_by=$17,
disbursement_entry_id=$18, approved_at=$19, disbursed_at=$20, first_payment_date=$21, last_payment_date=$22, updated_at=NOW()
WHERE id=$1`,
		l.ID, l.ApprovedAmount, l.DisbursedAmount, l.AnnualRate, l.TermMonths, l.State, l.InstallmentValue, l.TotalInterest,
		l.TotalPayable, l.OutstandingPrincipal, l.OutstandingInterest, l.OutstandingPenalty, l.DaysLate, l.Notes,
		l.RejectionReason, l.ApprovedBy, l.DisbursedBy, l.DisbursementEntryID, l.ApprovedAt, l.DisbursedAt,
		l.FirstPaymentDate, l.LastPaymentDate)
	return err
}

func (r *txRepository) InsertInstallments(ctx context.Context, loanID int64, rows []Installment) ([]Installment, error) {
	out := make([]Installment, 0, len(rows))
	for _, inst := range rows {
		inst.LoanID = loanID
		if err := r.tx.QueryRow(ctx, `INSERT INTO loan_installments (loan_id, sequence, due_date, value, principal, interest,
remaining_after, state) VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
			loanID, inst.Sequence, inst.DueDate, inst.Value, inst.Principal, inst.Interest, inst.RemainingAfter, inst.State).Scan(&inst.ID); err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

func (r *txRepository) InstallmentsForUpdate(ctx context.Context, loanID int64) ([]Installment, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+installmentColumns+` FROM loan_installments WHERE loan_id=$1 ORDER BY sequence FOR UPDATE`, loanID)
	if err != nil {
		return nil, err
	}
	return scanInstallments(rows)
}

func (r *txRepository) UpdateInstallment(ctx context.Context, i Installment) error {
	_, err := r.tx.Exec(ctx, `UPDATE loan_installments SET settled=$2, days_late=$3, penalty=$4, state=$5, paid_at=$6,
principal_paid=$7, interest_paid=$8, penalty_paid=$9 WHERE id=$1`,
		i.ID, i.Settled, i.DaysLate, i.Penalty, i.State, i.PaidAt, i.PrincipalPaid, i.InterestPaid, i.PenaltyPaid)
	return err
}

func (r *txRepository) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	var key *string
	if p.IdempotencyKey != "" {
		key = &p.IdempotencyKey
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO loan_payments (loan_id, receipt_number, payment_date, total_value, principal_portion,
interest_portion, penalty_portion, other_portion, method, reference, notes, idempotency_key, recorded_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id, created_at`,
		p.LoanID, p.ReceiptNumber, p.PaymentDate, p.TotalValue, p.PrincipalPortion, p.InterestPortion, p.PenaltyPortion,
		p.OtherPortion, p.Method, p.Reference, p.Notes, key, p.RecordedBy).Scan(&p.ID, &p.CreatedAt)
	if db.IsUniqueViolation(err, "uq_loan_payments_receipt") {
		return Payment{}, ErrReceiptCollision
	}
	if db.IsUniqueViolation(err, "uq_loan_payments_idempotency") {
		return Payment{}, ErrPaymentInProgress
	}
	if err != nil {
		return Payment{}, err
	}
	for _, a := range p.Allocations {
		if _, err := r.tx.Exec(ctx, `INSERT INTO payment_allocations (payment_id, installment_id, amount, principal, interest, penalty)
VALUES ($1,$2,$3,$4,$5,$6)`, p.ID, a.InstallmentID, a.Amount, a.Principal, a.Interest, a.Penalty); err != nil {
			return Payment{}, err
		}
	}
	return p, nil
}

func (r *txRepository) OverdueLoanIDs(ctx context.Context, asOf time.Time) ([]int64, error) {
	rows, err := r.tx.Query(ctx, `SELECT DISTINCT l.id FROM loans l
JOIN loan_installments i ON i.loan_id = l.id
WHERE l.state IN ('ACTIVE','DELINQUENT','DISBURSED') AND i.state IN ('PENDING','DELINQUENT') AND i.due_date < $1
ORDER BY l.id`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
