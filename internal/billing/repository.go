package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/billbook-app/billbook/internal/challans"
	"github.com/billbook-app/billbook/internal/platform/db"
	"github.com/billbook-app/billbook/internal/platform/httpx"
	"github.com/billbook-app/billbook/internal/sequence"
)

// Repository provides PostgreSQL backed persistence for bills. Challan
// mutations go through the challan repository so the conditional-update
// guards live in one place.
type Repository struct {
	pool      *pgxpool.Pool
	allocator *sequence.Allocator
	challans  *challans.Repository
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, challanRepo *challans.Repository) *Repository {
	return &Repository{
		pool:      pool,
		allocator: sequence.NewAllocator(),
		challans:  challanRepo,
	}
}

// TxRepository exposes the finalization mutations bound to one transaction.
type TxRepository interface {
	SelectForBilling(ctx context.Context, businessID, partyID string, ids []string) ([]challans.Challan, error)
	NextBillNumber(ctx context.Context, businessID, yearKey string) (int64, error)
	CreateBill(ctx context.Context, bill Bill) (string, error)
	OverwriteItemPricing(ctx context.Context, itemID string, rate, discount, amount float64) error
	MarkBilled(ctx context.Context, challanID, billID string, computedTotal float64) error
	UpdateSubtotal(ctx context.Context, billID string, subtotal float64) error
}

type txRepo struct {
	repo *Repository
	tx   pgx.Tx
}

// WithTx wraps fn in a RepeatableRead transaction; all finalization steps
// commit together or roll back together.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{repo: r, tx: tx})
	})
}

func (t *txRepo) SelectForBilling(ctx context.Context, businessID, partyID string, ids []string) ([]challans.Challan, error) {
	return t.repo.challans.SelectForBilling(ctx, t.tx, businessID, partyID, ids)
}

func (t *txRepo) NextBillNumber(ctx context.Context, businessID, yearKey string) (int64, error) {
	return t.repo.allocator.Next(ctx, t.tx, businessID, sequence.CounterBill, yearKey)
}

func (t *txRepo) CreateBill(ctx context.Context, bill Bill) (string, error) {
	query := `
		INSERT INTO bills (
			id, business_id, party_id, bill_no, bill_date,
			period_start, period_end, notes, subtotal
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	id := uuid.NewString()
	err := t.tx.QueryRow(ctx, query,
		id, bill.BusinessID, bill.PartyID, bill.BillNo, bill.BillDate,
		bill.PeriodStart, bill.PeriodEnd, bill.Notes, bill.Subtotal,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (t *txRepo) OverwriteItemPricing(ctx context.Context, itemID string, rate, discount, amount float64) error {
	return t.repo.challans.OverwriteItemPricing(ctx, t.tx, itemID, rate, discount, amount)
}

func (t *txRepo) MarkBilled(ctx context.Context, challanID, billID string, computedTotal float64) error {
	return t.repo.challans.MarkBilled(ctx, t.tx, challanID, billID, computedTotal)
}

func (t *txRepo) UpdateSubtotal(ctx context.Context, billID string, subtotal float64) error {
	query := `UPDATE bills SET subtotal = $1, updated_at = $2 WHERE id = $3`
	cmdTag, err := t.tx.Exec(ctx, query, subtotal, time.Now(), billID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// GetBill loads a bill header plus the challans it claims.
func (r *Repository) GetBill(ctx context.Context, id, businessID string) (*Bill, error) {
	query := `
		SELECT id, business_id, party_id, bill_no, bill_date,
		       period_start, period_end, notes, subtotal, created_at, updated_at
		FROM bills
		WHERE id = $1 AND business_id = $2
	`
	var b Bill
	err := r.pool.QueryRow(ctx, query, id, businessID).Scan(
		&b.ID, &b.BusinessID, &b.PartyID, &b.BillNo, &b.BillDate,
		&b.PeriodStart, &b.PeriodEnd, &b.Notes, &b.Subtotal, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}

	chQuery := `
		SELECT id, business_id, party_id, date, challan_no, year_key,
		       vehicle_no, remarks, type, purpose, discount_on_challan,
		       total_quantity, total_amount, billing_status, bill_id,
		       created_at, updated_at
		FROM challans
		WHERE bill_id = $1
		ORDER BY date ASC, created_at ASC
	`
	rows, err := r.pool.Query(ctx, chQuery, b.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ch challans.Challan
		err := rows.Scan(
			&ch.ID, &ch.BusinessID, &ch.PartyID, &ch.Date, &ch.ChallanNo, &ch.YearKey,
			&ch.VehicleNo, &ch.Remarks, &ch.Type, &ch.Purpose, &ch.DiscountOnChallan,
			&ch.TotalQuantity, &ch.TotalAmount, &ch.BillingStatus, &ch.BillID,
			&ch.CreatedAt, &ch.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		b.Challans = append(b.Challans, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &b, nil
}

// UnbilledForParty is the read-side candidate query, delegated to the
// challan repository.
func (r *Repository) UnbilledForParty(ctx context.Context, businessID, partyID string) ([]challans.Challan, error) {
	return r.challans.UnbilledForParty(ctx, businessID, partyID)
}
