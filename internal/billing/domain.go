package billing

import (
	"time"

	"github.com/billbook-app/billbook/internal/challans"
)

// Bill consolidates one or more challans of a single party. It references
// its challans through their bill_id back-reference and is immutable once
// finalized.
type Bill struct {
	ID          string             `json:"id"`
	BusinessID  string             `json:"business_id"`
	PartyID     string             `json:"party_id"`
	BillNo      string             `json:"bill_no"`
	BillDate    time.Time          `json:"bill_date"`
	PeriodStart *time.Time         `json:"period_start,omitempty"`
	PeriodEnd   *time.Time         `json:"period_end,omitempty"`
	Notes       *string            `json:"notes,omitempty"`
	Subtotal    float64            `json:"subtotal"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	Challans    []challans.Challan `json:"challans,omitempty"`
}

// LineOverride is the caller-supplied pricing frozen onto one challan item
// at finalization time.
type LineOverride struct {
	ChallanID string  `json:"challan_id" validate:"required"`
	ItemID    string  `json:"item_id" validate:"required"`
	Rate      float64 `json:"rate" validate:"gte=0"`
	Discount  float64 `json:"discount" validate:"gte=0,lte=100"`
}

// FinalizeRequest is the input of the bill finalization transaction.
type FinalizeRequest struct {
	BusinessID         string         `json:"business_id" validate:"required"`
	PartyID            string         `json:"party_id" validate:"required"`
	BillDate           time.Time      `json:"bill_date" validate:"required"`
	PeriodStart        *time.Time     `json:"period_start,omitempty"`
	PeriodEnd          *time.Time     `json:"period_end,omitempty"`
	Notes              *string        `json:"notes,omitempty" validate:"omitempty,max=2000"`
	SelectedChallanIDs []string       `json:"selected_challan_ids" validate:"required,min=1,dive,required"`
	Lines              []LineOverride `json:"lines" validate:"required,min=1,dive"`
}

// FinalizeResult identifies the bill a successful finalization produced.
type FinalizeResult struct {
	BillID string `json:"bill_id"`
	BillNo string `json:"bill_no"`
}
