package billing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/billbook-app/billbook/internal/challans"
	"github.com/billbook-app/billbook/internal/fiscal"
	"github.com/billbook-app/billbook/internal/platform/httpx"
)

// Store is the persistence surface the service needs.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBill(ctx context.Context, id, businessID string) (*Bill, error)
	UnbilledForParty(ctx context.Context, businessID, partyID string) ([]challans.Challan, error)
}

// Service runs the bill finalization transaction and its read side.
type Service struct {
	logger   *slog.Logger
	store    Store
	cache    *Cache
	validate *validator.Validate
}

// NewService constructs a billing service. cache may be nil.
func NewService(logger *slog.Logger, store Store, cache *Cache) *Service {
	return &Service{
		logger:   logger,
		store:    store,
		cache:    cache,
		validate: validator.New(),
	}
}

// UnbilledForParty returns the candidate pool for finalization, served
// from cache when fresh.
func (s *Service) UnbilledForParty(ctx context.Context, businessID, partyID string) ([]challans.Challan, error) {
	if partyID == "" {
		return nil, fmt.Errorf("%w: party is required", httpx.ErrValidation)
	}
	if s.cache != nil {
		if list, ok := s.cache.GetUnbilled(ctx, businessID, partyID); ok {
			return list, nil
		}
	}
	list, err := s.store.UnbilledForParty(ctx, businessID, partyID)
	if err != nil {
		return nil, fmt.Errorf("unbilled for party: %w", err)
	}
	if s.cache != nil {
		s.cache.SetUnbilled(ctx, businessID, partyID, list)
	}
	return list, nil
}

// GetBill loads a finalized bill with its claimed challans.
func (s *Service) GetBill(ctx context.Context, id, businessID string) (*Bill, error) {
	return s.store.GetBill(ctx, id, businessID)
}

// Finalize consolidates the selected unbilled challans of one party into a
// bill: it re-validates the selection inside the transaction, allocates
// the next bill number for the bill date's financial year, freezes the
// caller's line overrides onto the challan items, marks every claimed
// challan BILLED and snapshots the subtotal. Everything commits together
// or not at all; a concurrent finalization racing for the same challans
// loses on the conditional mark and aborts whole.
func (s *Service) Finalize(ctx context.Context, req FinalizeRequest) (*FinalizeResult, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	selected := uniqueStrings(req.SelectedChallanIDs)
	yearKey := fiscal.YearKey(req.BillDate)

	overrideByItem := make(map[string]LineOverride, len(req.Lines))
	for _, l := range req.Lines {
		overrideByItem[l.ItemID] = l
	}

	var result FinalizeResult
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Step 1: the client's view may be stale; only challans that are
		// still unbilled and still belong to this business+party survive.
		candidates, err := tx.SelectForBilling(ctx, req.BusinessID, req.PartyID, selected)
		if err != nil {
			return err
		}
		if len(candidates) != len(selected) {
			return fmt.Errorf("%w: %d of %d challans are no longer billable",
				httpx.ErrStaleSelection, len(selected)-len(candidates), len(selected))
		}

		// Step 2: allocate the bill number inside this transaction so an
		// abort returns the number with the rollback.
		issued, err := tx.NextBillNumber(ctx, req.BusinessID, yearKey)
		if err != nil {
			return err
		}
		billNo := fiscal.BillNumber(yearKey, issued)

		// Step 3: header first, subtotal snapshot comes last.
		billID, err := tx.CreateBill(ctx, Bill{
			BusinessID:  req.BusinessID,
			PartyID:     req.PartyID,
			BillNo:      billNo,
			BillDate:    req.BillDate,
			PeriodStart: req.PeriodStart,
			PeriodEnd:   req.PeriodEnd,
			Notes:       req.Notes,
		})
		if err != nil {
			return err
		}

		// Steps 4-5: freeze overrides per item, then claim each challan.
		var billSubtotal float64
		for _, ch := range candidates {
			var challanTotal float64
			for _, item := range ch.Items {
				override, ok := overrideByItem[item.ID]
				if !ok {
					return fmt.Errorf("%w: no line for item %s of challan %s",
						httpx.ErrLinesMismatch, item.ID, ch.ID)
				}
				rate := clamp(override.Rate, 0, maxRate)
				discount := clamp(override.Discount, 0, 100)
				amount := challans.LineAmount(item.Quantity, rate, discount)

				if err := tx.OverwriteItemPricing(ctx, item.ID, rate, discount, amount); err != nil {
					return err
				}
				challanTotal += amount
			}

			if err := tx.MarkBilled(ctx, ch.ID, billID, challanTotal); err != nil {
				return err
			}
			billSubtotal += challanTotal
		}

		// Step 6: subtotal snapshot.
		if err := tx.UpdateSubtotal(ctx, billID, billSubtotal); err != nil {
			return err
		}

		result = FinalizeResult{BillID: billID, BillNo: billNo}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("finalize bill: %w", err)
	}

	if s.cache != nil {
		s.cache.InvalidateUnbilled(ctx, req.BusinessID, req.PartyID)
	}
	s.logger.Info("bill finalized",
		slog.String("bill_id", result.BillID),
		slog.String("bill_no", result.BillNo),
		slog.Int("challans", len(selected)))

	return &result, nil
}

// maxRate only bounds the defensive clamp; request validation already
// rejected negative rates.
const maxRate = 1e12

func (s *Service) validateRequest(req FinalizeRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error())
	}
	if req.PeriodStart != nil && req.PeriodEnd != nil && req.PeriodStart.After(*req.PeriodEnd) {
		return fmt.Errorf("%w: period start must not be after period end", httpx.ErrValidation)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
