package challans

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/billbook-app/billbook/internal/platform/db"
	"github.com/billbook-app/billbook/internal/platform/httpx"
	"github.com/billbook-app/billbook/internal/sequence"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for challans.
type Repository struct {
	pool      *pgxpool.Pool
	allocator *sequence.Allocator
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool:      pool,
		allocator: sequence.NewAllocator(),
	}
}

// TxRepository exposes the mutations that run inside one transaction.
type TxRepository interface {
	NextChallanNumber(ctx context.Context, businessID, yearKey string) (int64, error)
	CreateChallan(ctx context.Context, ch Challan) (string, error)
	InsertItem(ctx context.Context, item Item) (string, error)
	GetHeaderForUpdate(ctx context.Context, id, businessID string) (*Challan, error)
	UpdateHeader(ctx context.Context, ch Challan) error
	DeleteItems(ctx context.Context, challanID string) error
}

type txRepo struct {
	repo *Repository
	tx   pgx.Tx
}

// WithTx wraps fn in a RepeatableRead transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{repo: r, tx: tx})
	})
	return mapPgError(err)
}

func (t *txRepo) NextChallanNumber(ctx context.Context, businessID, yearKey string) (int64, error) {
	return t.repo.allocator.Next(ctx, t.tx, businessID, sequence.CounterChallan, yearKey)
}

func (t *txRepo) CreateChallan(ctx context.Context, ch Challan) (string, error) {
	query := `
		INSERT INTO challans (
			id, business_id, party_id, date, challan_no, year_key,
			vehicle_no, remarks, type, purpose, discount_on_challan,
			total_quantity, total_amount, billing_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`
	id := uuid.NewString()
	err := t.tx.QueryRow(ctx, query,
		id, ch.BusinessID, ch.PartyID, ch.Date, ch.ChallanNo, ch.YearKey,
		ch.VehicleNo, ch.Remarks, ch.Type, ch.Purpose, ch.DiscountOnChallan,
		ch.TotalQuantity, ch.TotalAmount, StatusUnbilled,
	).Scan(&id)
	if err != nil {
		return "", mapPgError(err)
	}
	return id, nil
}

func (t *txRepo) InsertItem(ctx context.Context, item Item) (string, error) {
	query := `
		INSERT INTO challan_items (
			id, challan_id, material_id, material_name, unit,
			quantity, rate, discount, amount
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	id := uuid.NewString()
	err := t.tx.QueryRow(ctx, query,
		id, item.ChallanID, item.MaterialID, item.MaterialName, item.Unit,
		item.Quantity, item.Rate, item.Discount, item.Amount,
	).Scan(&id)
	if err != nil {
		return "", mapPgError(err)
	}
	return id, nil
}

func (t *txRepo) GetHeaderForUpdate(ctx context.Context, id, businessID string) (*Challan, error) {
	query := `
		SELECT id, business_id, party_id, date, challan_no, year_key,
		       vehicle_no, remarks, type, purpose, discount_on_challan,
		       total_quantity, total_amount, billing_status, bill_id,
		       created_at, updated_at
		FROM challans
		WHERE id = $1 AND business_id = $2
		FOR UPDATE
	`
	var ch Challan
	err := t.tx.QueryRow(ctx, query, id, businessID).Scan(
		&ch.ID, &ch.BusinessID, &ch.PartyID, &ch.Date, &ch.ChallanNo, &ch.YearKey,
		&ch.VehicleNo, &ch.Remarks, &ch.Type, &ch.Purpose, &ch.DiscountOnChallan,
		&ch.TotalQuantity, &ch.TotalAmount, &ch.BillingStatus, &ch.BillID,
		&ch.CreatedAt, &ch.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	return &ch, nil
}

func (t *txRepo) UpdateHeader(ctx context.Context, ch Challan) error {
	// Never touches challan_no; the number is fixed at creation time.
	query := `
		UPDATE challans
		SET party_id = $1, date = $2, vehicle_no = $3, remarks = $4,
		    purpose = $5, discount_on_challan = $6,
		    total_quantity = $7, total_amount = $8, updated_at = $9
		WHERE id = $10 AND billing_status = 'UNBILLED'
	`
	cmdTag, err := t.tx.Exec(ctx, query,
		ch.PartyID, ch.Date, ch.VehicleNo, ch.Remarks,
		ch.Purpose, ch.DiscountOnChallan,
		ch.TotalQuantity, ch.TotalAmount, time.Now(),
		ch.ID,
	)
	if err != nil {
		return mapPgError(err)
	}
	if cmdTag.RowsAffected() == 0 {
		return httpx.ErrLocked
	}
	return nil
}

func (t *txRepo) DeleteItems(ctx context.Context, challanID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM challan_items WHERE challan_id = $1`, challanID)
	return err
}

// GetChallan loads a challan with items.
func (r *Repository) GetChallan(ctx context.Context, id, businessID string) (*Challan, error) {
	query := `
		SELECT id, business_id, party_id, date, challan_no, year_key,
		       vehicle_no, remarks, type, purpose, discount_on_challan,
		       total_quantity, total_amount, billing_status, bill_id,
		       created_at, updated_at
		FROM challans
		WHERE id = $1 AND business_id = $2
	`
	var ch Challan
	err := r.pool.QueryRow(ctx, query, id, businessID).Scan(
		&ch.ID, &ch.BusinessID, &ch.PartyID, &ch.Date, &ch.ChallanNo, &ch.YearKey,
		&ch.VehicleNo, &ch.Remarks, &ch.Type, &ch.Purpose, &ch.DiscountOnChallan,
		&ch.TotalQuantity, &ch.TotalAmount, &ch.BillingStatus, &ch.BillID,
		&ch.CreatedAt, &ch.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	items, err := r.loadItems(ctx, r.pool, []string{ch.ID})
	if err != nil {
		return nil, err
	}
	ch.Items = items[ch.ID]
	return &ch, nil
}

// ListChallans returns the register page for a business, newest first.
func (r *Repository) ListChallans(ctx context.Context, businessID string, limit, offset int) ([]Challan, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM challans WHERE business_id = $1`, businessID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, business_id, party_id, date, challan_no, year_key,
		       vehicle_no, remarks, type, purpose, discount_on_challan,
		       total_quantity, total_amount, billing_status, bill_id,
		       created_at, updated_at
		FROM challans
		WHERE business_id = $1
		ORDER BY date DESC, created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, businessID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var challans []Challan
	for rows.Next() {
		var ch Challan
		err := rows.Scan(
			&ch.ID, &ch.BusinessID, &ch.PartyID, &ch.Date, &ch.ChallanNo, &ch.YearKey,
			&ch.VehicleNo, &ch.Remarks, &ch.Type, &ch.Purpose, &ch.DiscountOnChallan,
			&ch.TotalQuantity, &ch.TotalAmount, &ch.BillingStatus, &ch.BillID,
			&ch.CreatedAt, &ch.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		challans = append(challans, ch)
	}
	return challans, total, rows.Err()
}

// UnbilledForParty returns the billing candidate pool: unbilled outward
// SALE/JOBWORK challans with their items, oldest first.
func (r *Repository) UnbilledForParty(ctx context.Context, businessID, partyID string) ([]Challan, error) {
	query := `
		SELECT id, business_id, party_id, date, challan_no, year_key,
		       vehicle_no, remarks, type, purpose, discount_on_challan,
		       total_quantity, total_amount, billing_status, bill_id,
		       created_at, updated_at
		FROM challans
		WHERE business_id = $1 AND party_id = $2
		  AND billing_status = 'UNBILLED' AND bill_id IS NULL
		  AND challan_no IS NOT NULL
		  AND type = 'OUTWARD'
		  AND purpose IN ('SALE', 'JOBWORK')
		ORDER BY date ASC, created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, businessID, partyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var challans []Challan
	var ids []string
	for rows.Next() {
		var ch Challan
		err := rows.Scan(
			&ch.ID, &ch.BusinessID, &ch.PartyID, &ch.Date, &ch.ChallanNo, &ch.YearKey,
			&ch.VehicleNo, &ch.Remarks, &ch.Type, &ch.Purpose, &ch.DiscountOnChallan,
			&ch.TotalQuantity, &ch.TotalAmount, &ch.BillingStatus, &ch.BillID,
			&ch.CreatedAt, &ch.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		challans = append(challans, ch)
		ids = append(ids, ch.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return challans, nil
	}

	items, err := r.loadItems(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range challans {
		challans[i].Items = items[challans[i].ID]
	}
	return challans, nil
}

// SelectForBilling re-fetches the candidate set inside the finalization
// transaction, locking the surviving rows. Only challans that still match
// the business, party and UNBILLED state come back.
func (r *Repository) SelectForBilling(ctx context.Context, tx pgx.Tx, businessID, partyID string, ids []string) ([]Challan, error) {
	query := `
		SELECT id, business_id, party_id, date, challan_no, year_key,
		       vehicle_no, remarks, type, purpose, discount_on_challan,
		       total_quantity, total_amount, billing_status, bill_id,
		       created_at, updated_at
		FROM challans
		WHERE id = ANY($1) AND business_id = $2 AND party_id = $3
		  AND billing_status = 'UNBILLED' AND bill_id IS NULL
		ORDER BY date ASC, created_at ASC
		FOR UPDATE
	`
	rows, err := tx.Query(ctx, query, ids, businessID, partyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var challans []Challan
	var found []string
	for rows.Next() {
		var ch Challan
		err := rows.Scan(
			&ch.ID, &ch.BusinessID, &ch.PartyID, &ch.Date, &ch.ChallanNo, &ch.YearKey,
			&ch.VehicleNo, &ch.Remarks, &ch.Type, &ch.Purpose, &ch.DiscountOnChallan,
			&ch.TotalQuantity, &ch.TotalAmount, &ch.BillingStatus, &ch.BillID,
			&ch.CreatedAt, &ch.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		challans = append(challans, ch)
		found = append(found, ch.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(found) > 0 {
		items, err := r.loadItems(ctx, tx, found)
		if err != nil {
			return nil, err
		}
		for i := range challans {
			challans[i].Items = items[challans[i].ID]
		}
	}
	return challans, nil
}

// MarkBilled flips a challan to BILLED and attaches the bill, but only if
// nothing else claimed it first. Zero rows affected means the selection
// went stale under our feet.
func (r *Repository) MarkBilled(ctx context.Context, tx pgx.Tx, challanID, billID string, computedTotal float64) error {
	query := `
		UPDATE challans
		SET billing_status = 'BILLED', bill_id = $1, total_amount = $2, updated_at = $3
		WHERE id = $4 AND billing_status = 'UNBILLED' AND bill_id IS NULL
	`
	cmdTag, err := tx.Exec(ctx, query, billID, computedTotal, time.Now(), challanID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return httpx.ErrStaleSelection
	}
	return nil
}

// OverwriteItemPricing freezes a line's rate, discount and computed amount.
// The parent challan's billing status guard happens in the orchestrator.
func (r *Repository) OverwriteItemPricing(ctx context.Context, tx pgx.Tx, itemID string, rate, discount, amount float64) error {
	query := `
		UPDATE challan_items
		SET rate = $1, discount = $2, amount = $3
		WHERE id = $4
	`
	cmdTag, err := tx.Exec(ctx, query, rate, discount, amount, itemID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repository) loadItems(ctx context.Context, q querier, challanIDs []string) (map[string][]Item, error) {
	query := `
		SELECT id, challan_id, material_id, material_name, unit,
		       quantity, rate, discount, amount, created_at
		FROM challan_items
		WHERE challan_id = ANY($1)
		ORDER BY created_at ASC, id ASC
	`
	rows, err := q.Query(ctx, query, challanIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make(map[string][]Item, len(challanIDs))
	for rows.Next() {
		var it Item
		err := rows.Scan(
			&it.ID, &it.ChallanID, &it.MaterialID, &it.MaterialName, &it.Unit,
			&it.Quantity, &it.Rate, &it.Discount, &it.Amount, &it.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		items[it.ChallanID] = append(items[it.ChallanID], it)
	}
	return items, rows.Err()
}

// mapPgError turns a unique violation on the challan number backstop into
// the retryable duplicate error; a retry re-enters the allocator for a
// fresh number.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", httpx.ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
