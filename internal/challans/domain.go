package challans

import (
	"time"
)

// Purpose classifies why goods moved.
type Purpose string

const (
	PurposePurchase Purpose = "PURCHASE"
	PurposeSale     Purpose = "SALE"
	PurposeJobwork  Purpose = "JOBWORK"
	PurposeReturn   Purpose = "RETURN"
	PurposeTransfer Purpose = "TRANSFER"
	PurposeOther    Purpose = "OTHER"
)

// EntryType is the direction of the movement.
type EntryType string

const (
	TypeInward  EntryType = "INWARD"
	TypeOutward EntryType = "OUTWARD"
)

// BillingStatus tracks whether a challan has been consumed by a bill.
type BillingStatus string

const (
	StatusUnbilled BillingStatus = "UNBILLED"
	StatusBilled   BillingStatus = "BILLED"
)

// Challan is one dispatch/delivery event. ChallanNo stores the plain
// issued integer as a string; the year-prefixed display form is computed
// at render time.
type Challan struct {
	ID                string        `json:"id"`
	BusinessID        string        `json:"business_id"`
	PartyID           string        `json:"party_id"`
	Date              time.Time     `json:"date"`
	ChallanNo         *string       `json:"challan_no"`
	YearKey           string        `json:"year_key"`
	VehicleNo         *string       `json:"vehicle_no,omitempty"`
	Remarks           *string       `json:"remarks,omitempty"`
	Type              EntryType     `json:"type"`
	Purpose           Purpose       `json:"purpose"`
	DiscountOnChallan float64       `json:"discount_on_challan"`
	TotalQuantity     float64       `json:"total_quantity"`
	TotalAmount       float64       `json:"total_amount"`
	BillingStatus     BillingStatus `json:"billing_status"`
	BillID            *string       `json:"bill_id,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	Items             []Item        `json:"items,omitempty"`
}

// Item is a priced line within a challan. MaterialID is nil for free-text
// lines, in which case MaterialName/Unit carry the description.
type Item struct {
	ID           string    `json:"id"`
	ChallanID    string    `json:"challan_id"`
	MaterialID   *string   `json:"material_id,omitempty"`
	MaterialName *string   `json:"material_name,omitempty"`
	Unit         *string   `json:"unit,omitempty"`
	Quantity     float64   `json:"quantity"`
	Rate         float64   `json:"rate"`
	Discount     float64   `json:"discount"`
	Amount       float64   `json:"amount"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateChallanRequest is the entry-creation payload.
type CreateChallanRequest struct {
	BusinessID        string              `json:"business_id" validate:"required"`
	PartyID           string              `json:"party_id" validate:"required"`
	Date              time.Time           `json:"date" validate:"required"`
	VehicleNo         *string             `json:"vehicle_no,omitempty"`
	Remarks           *string             `json:"remarks,omitempty"`
	Purpose           Purpose             `json:"purpose" validate:"omitempty,oneof=PURCHASE SALE JOBWORK RETURN TRANSFER OTHER"`
	DiscountOnChallan float64             `json:"discount_on_challan" validate:"gte=0,lte=100"`
	Items             []CreateItemRequest `json:"items" validate:"required,min=1,dive"`
}

// CreateItemRequest is one line of a challan payload.
type CreateItemRequest struct {
	MaterialID   *string `json:"material_id,omitempty"`
	MaterialName *string `json:"material_name,omitempty"`
	Unit         *string `json:"unit,omitempty"`
	Quantity     float64 `json:"quantity" validate:"required,gt=0"`
	Rate         float64 `json:"rate" validate:"gte=0"`
	Discount     float64 `json:"discount" validate:"gte=0,lte=100"`
}

// UpdateChallanRequest rewrites an unbilled challan's header and items.
type UpdateChallanRequest struct {
	ID string `json:"id" validate:"required"`
	CreateChallanRequest
}

// LineAmount computes the persisted net amount of a line. Amounts are
// floored at zero.
func LineAmount(quantity, rate, discount float64) float64 {
	gross := rate * quantity
	net := gross * (100 - discount) / 100
	if net < 0 {
		return 0
	}
	return roundTo2(net)
}

func roundTo2(val float64) float64 {
	return float64(int64(val*100+0.5)) / 100
}

// computeTotals applies the header-level discount over the sum of line
// nets. Line-level discounts count only when the header discount is zero;
// the two never stack.
func computeTotals(headerDiscount float64, items []CreateItemRequest) (lineAmounts []float64, totalQuantity, totalAmount float64) {
	lineAmounts = make([]float64, len(items))
	var subTotal float64
	for i, it := range items {
		lineDiscount := it.Discount
		if headerDiscount != 0 {
			lineDiscount = 0
		}
		lineAmounts[i] = LineAmount(it.Quantity, it.Rate, lineDiscount)
		totalQuantity += it.Quantity
		subTotal += lineAmounts[i]
	}
	totalAmount = subTotal * (100 - headerDiscount) / 100
	if totalAmount < 0 {
		totalAmount = 0
	}
	return lineAmounts, totalQuantity, roundTo2(totalAmount)
}
