package challans

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/billbook-app/billbook/internal/fiscal"
	"github.com/billbook-app/billbook/internal/platform/httpx"
)

// Store is the persistence surface the service needs.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetChallan(ctx context.Context, id, businessID string) (*Challan, error)
	ListChallans(ctx context.Context, businessID string, limit, offset int) ([]Challan, int, error)
}

// Invalidator drops cached read-side state after a mutation.
type Invalidator interface {
	InvalidateUnbilled(ctx context.Context, businessID, partyID string)
}

// Service provides the challan entry flow.
type Service struct {
	logger   *slog.Logger
	store    Store
	validate *validator.Validate
	cache    Invalidator
}

// NewService constructs a challan service. cache may be nil.
func NewService(logger *slog.Logger, store Store, cache Invalidator) *Service {
	return &Service{
		logger:   logger,
		store:    store,
		validate: validator.New(),
		cache:    cache,
	}
}

// CreateChallan validates the payload, allocates the next challan number
// for the date's financial year and inserts header plus items, all in one
// transaction. A rolled-back insert also rolls back the counter increment.
func (s *Service) CreateChallan(ctx context.Context, req CreateChallanRequest) (*Challan, error) {
	if err := s.validateChallanPayload(req); err != nil {
		return nil, err
	}
	if req.Purpose == "" {
		req.Purpose = PurposeSale
	}

	yearKey := fiscal.YearKey(req.Date)
	lineAmounts, totalQuantity, totalAmount := computeTotals(req.DiscountOnChallan, req.Items)

	var id string
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		issued, err := tx.NextChallanNumber(ctx, req.BusinessID, yearKey)
		if err != nil {
			return err
		}
		challanNo := strconv.FormatInt(issued, 10)

		id, err = tx.CreateChallan(ctx, Challan{
			BusinessID:        req.BusinessID,
			PartyID:           req.PartyID,
			Date:              req.Date,
			ChallanNo:         &challanNo,
			YearKey:           yearKey,
			VehicleNo:         req.VehicleNo,
			Remarks:           req.Remarks,
			Type:              TypeOutward,
			Purpose:           req.Purpose,
			DiscountOnChallan: req.DiscountOnChallan,
			TotalQuantity:     totalQuantity,
			TotalAmount:       totalAmount,
		})
		if err != nil {
			return err
		}
		return s.insertItems(ctx, tx, id, req.Items, lineAmounts)
	})
	if err != nil {
		return nil, fmt.Errorf("create challan: %w", err)
	}

	if s.cache != nil {
		s.cache.InvalidateUnbilled(ctx, req.BusinessID, req.PartyID)
	}
	s.logger.Info("challan created",
		slog.String("challan_id", id),
		slog.String("business_id", req.BusinessID),
		slog.String("year_key", yearKey))

	return s.store.GetChallan(ctx, id, req.BusinessID)
}

// UpdateChallan rewrites header and items of a challan that is still
// UNBILLED. A challan already claimed by a bill rejects the edit.
func (s *Service) UpdateChallan(ctx context.Context, req UpdateChallanRequest) (*Challan, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error())
	}
	if err := s.validateChallanPayload(req.CreateChallanRequest); err != nil {
		return nil, err
	}
	if req.Purpose == "" {
		req.Purpose = PurposeSale
	}

	lineAmounts, totalQuantity, totalAmount := computeTotals(req.DiscountOnChallan, req.Items)

	var previousPartyID string
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetHeaderForUpdate(ctx, req.ID, req.BusinessID)
		if err != nil {
			return err
		}
		if existing.BillingStatus != StatusUnbilled {
			return fmt.Errorf("%w: challan %s is billed", httpx.ErrLocked, req.ID)
		}
		previousPartyID = existing.PartyID

		if err := tx.UpdateHeader(ctx, Challan{
			ID:                req.ID,
			PartyID:           req.PartyID,
			Date:              req.Date,
			VehicleNo:         req.VehicleNo,
			Remarks:           req.Remarks,
			Purpose:           req.Purpose,
			DiscountOnChallan: req.DiscountOnChallan,
			TotalQuantity:     totalQuantity,
			TotalAmount:       totalAmount,
		}); err != nil {
			return err
		}
		if err := tx.DeleteItems(ctx, req.ID); err != nil {
			return err
		}
		return s.insertItems(ctx, tx, req.ID, req.Items, lineAmounts)
	})
	if err != nil {
		return nil, fmt.Errorf("update challan: %w", err)
	}

	if s.cache != nil {
		s.cache.InvalidateUnbilled(ctx, req.BusinessID, req.PartyID)
		if previousPartyID != "" && previousPartyID != req.PartyID {
			s.cache.InvalidateUnbilled(ctx, req.BusinessID, previousPartyID)
		}
	}

	return s.store.GetChallan(ctx, req.ID, req.BusinessID)
}

// GetChallan loads one challan with items.
func (s *Service) GetChallan(ctx context.Context, id, businessID string) (*Challan, error) {
	return s.store.GetChallan(ctx, id, businessID)
}

// ListChallans returns a register page.
func (s *Service) ListChallans(ctx context.Context, businessID string, limit, offset int) ([]Challan, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListChallans(ctx, businessID, limit, offset)
}

func (s *Service) insertItems(ctx context.Context, tx TxRepository, challanID string, items []CreateItemRequest, lineAmounts []float64) error {
	for i, it := range items {
		item := Item{
			ChallanID:  challanID,
			MaterialID: it.MaterialID,
			Quantity:   it.Quantity,
			Rate:       it.Rate,
			Discount:   it.Discount,
			Amount:     lineAmounts[i],
		}
		if it.MaterialID == nil {
			item.MaterialName = it.MaterialName
			item.Unit = it.Unit
		}
		if _, err := tx.InsertItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) validateChallanPayload(req CreateChallanRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error())
	}
	for i, it := range req.Items {
		hasMaterial := it.MaterialID != nil && *it.MaterialID != ""
		hasFreeText := it.MaterialName != nil && *it.MaterialName != "" && it.Unit != nil && *it.Unit != ""
		if !hasMaterial && !hasFreeText {
			return fmt.Errorf("%w: item %d needs a material or a name and unit", httpx.ErrValidation, i+1)
		}
	}
	return nil
}
