// Package sequence issues financial-year-scoped document numbers. Each
// business keeps one counter row per (counter type, year key); allocation
// is a single atomic upsert-and-increment so concurrent callers can never
// observe the same issued value.
package sequence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CounterType selects which document sequence a counter row tracks.
type CounterType string

const (
	CounterChallan CounterType = "CHALLAN"
	CounterBill    CounterType = "BILL"
)

// Querier is the subset of pgx.Tx the allocator needs. Allocation runs on
// the caller's transaction so a rolled-back document insert also rolls back
// the increment.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Allocator hands out sequence numbers from business_counters rows.
type Allocator struct{}

// NewAllocator constructs an Allocator.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// Next returns the next number for (businessID, counterType, yearKey),
// creating the counter row on first use. The first issued value for a
// fresh year is always 1; the row stores the value to hand out next, so a
// brand-new row is written with next_number = 2 and the issued value is
// next_number - 1. The whole read-create-increment is one statement, and
// row-level locking on the conflict target serializes concurrent callers.
func (a *Allocator) Next(ctx context.Context, q Querier, businessID string, counterType CounterType, yearKey string) (int64, error) {
	const query = `
		INSERT INTO business_counters (business_id, counter_type, year_key, next_number)
		VALUES ($1, $2, $3, 2)
		ON CONFLICT (business_id, counter_type, year_key)
		DO UPDATE SET next_number = business_counters.next_number + 1, updated_at = now()
		RETURNING next_number - 1
	`
	var issued int64
	if err := q.QueryRow(ctx, query, businessID, string(counterType), yearKey).Scan(&issued); err != nil {
		return 0, fmt.Errorf("sequence: allocate %s/%s: %w", counterType, yearKey, err)
	}
	return issued, nil
}
