package billing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billbook-app/billbook/internal/challans"
	"github.com/billbook-app/billbook/internal/platform/httpx"
)

// ============================================================================
// MOCK STORE
// ============================================================================

// mockStore backs the service with an in-memory state machine that keeps
// real transaction semantics: every WithTx runs against a scratch copy and
// commits only when fn returns nil, so an aborted finalization leaves the
// visible state untouched.
type mockState struct {
	challans map[string]*challans.Challan
	bills    map[string]*Bill
	counters map[string]int64
}

func (s *mockState) clone() *mockState {
	out := &mockState{
		challans: make(map[string]*challans.Challan, len(s.challans)),
		bills:    make(map[string]*Bill, len(s.bills)),
		counters: make(map[string]int64, len(s.counters)),
	}
	for id, ch := range s.challans {
		cp := *ch
		cp.Items = append([]challans.Item(nil), ch.Items...)
		if ch.BillID != nil {
			billID := *ch.BillID
			cp.BillID = &billID
		}
		out.challans[id] = &cp
	}
	for id, b := range s.bills {
		cp := *b
		out.bills[id] = &cp
	}
	for k, v := range s.counters {
		out.counters[k] = v
	}
	return out
}

type mockStore struct {
	mu    sync.Mutex
	state *mockState

	failSubtotal error
	billSeq      int
}

func newMockStore() *mockStore {
	return &mockStore{
		state: &mockState{
			challans: make(map[string]*challans.Challan),
			bills:    make(map[string]*Bill),
			counters: make(map[string]int64),
		},
	}
}

func (m *mockStore) addChallan(ch challans.Challan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := ch
	cp.Items = append([]challans.Item(nil), ch.Items...)
	m.state.challans[ch.ID] = &cp
}

func (m *mockStore) challan(id string) challans.Challan {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.state.challans[id]
}

func (m *mockStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	scratch := m.state.clone()
	tx := &mockTx{store: m, state: scratch}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.state = scratch
	return nil
}

func (m *mockStore) GetBill(ctx context.Context, id, businessID string) (*Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.state.bills[id]
	if !ok || b.BusinessID != businessID {
		return nil, httpx.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *mockStore) UnbilledForParty(ctx context.Context, businessID, partyID string) ([]challans.Challan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []challans.Challan
	for _, ch := range m.state.challans {
		if ch.BusinessID == businessID && ch.PartyID == partyID &&
			ch.BillingStatus == challans.StatusUnbilled && ch.BillID == nil {
			out = append(out, *ch)
		}
	}
	return out, nil
}

type mockTx struct {
	store *mockStore
	state *mockState
}

func (t *mockTx) SelectForBilling(ctx context.Context, businessID, partyID string, ids []string) ([]challans.Challan, error) {
	var out []challans.Challan
	for _, id := range ids {
		ch, ok := t.state.challans[id]
		if !ok || ch.BusinessID != businessID || ch.PartyID != partyID {
			continue
		}
		if ch.BillingStatus != challans.StatusUnbilled || ch.BillID != nil {
			continue
		}
		cp := *ch
		cp.Items = append([]challans.Item(nil), ch.Items...)
		out = append(out, cp)
	}
	return out, nil
}

func (t *mockTx) NextBillNumber(ctx context.Context, businessID, yearKey string) (int64, error) {
	key := businessID + "/" + yearKey
	t.state.counters[key]++
	return t.state.counters[key], nil
}

func (t *mockTx) CreateBill(ctx context.Context, bill Bill) (string, error) {
	t.store.billSeq++
	id := fmt.Sprintf("bill-%d", t.store.billSeq)
	bill.ID = id
	t.state.bills[id] = &bill
	return id, nil
}

func (t *mockTx) OverwriteItemPricing(ctx context.Context, itemID string, rate, discount, amount float64) error {
	for _, ch := range t.state.challans {
		for i := range ch.Items {
			if ch.Items[i].ID == itemID {
				ch.Items[i].Rate = rate
				ch.Items[i].Discount = discount
				ch.Items[i].Amount = amount
				return nil
			}
		}
	}
	return httpx.ErrNotFound
}

func (t *mockTx) MarkBilled(ctx context.Context, challanID, billID string, computedTotal float64) error {
	ch, ok := t.state.challans[challanID]
	if !ok {
		return httpx.ErrStaleSelection
	}
	if ch.BillingStatus != challans.StatusUnbilled || ch.BillID != nil {
		return httpx.ErrStaleSelection
	}
	ch.BillingStatus = challans.StatusBilled
	ch.BillID = &billID
	ch.TotalAmount = computedTotal
	return nil
}

func (t *mockTx) UpdateSubtotal(ctx context.Context, billID string, subtotal float64) error {
	if t.store.failSubtotal != nil {
		return t.store.failSubtotal
	}
	b, ok := t.state.bills[billID]
	if !ok {
		return httpx.ErrNotFound
	}
	b.Subtotal = subtotal
	return nil
}

// ============================================================================
// FIXTURES
// ============================================================================

const (
	testBusinessID = "biz-1"
	testPartyID    = "party-1"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func unbilledChallan(id string, items ...challans.Item) challans.Challan {
	no := "1"
	return challans.Challan{
		ID:            id,
		BusinessID:    testBusinessID,
		PartyID:       testPartyID,
		Date:          time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		ChallanNo:     &no,
		YearKey:       "FY25-26",
		Type:          challans.TypeOutward,
		Purpose:       challans.PurposeSale,
		BillingStatus: challans.StatusUnbilled,
		Items:         items,
	}
}

func finalizeReq(challanIDs []string, lines []LineOverride) FinalizeRequest {
	return FinalizeRequest{
		BusinessID:         testBusinessID,
		PartyID:            testPartyID,
		BillDate:           time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
		SelectedChallanIDs: challanIDs,
		Lines:              lines,
	}
}

// ============================================================================
// FINALIZE
// ============================================================================

func TestFinalizeConsolidatesSelection(t *testing.T) {
	store := newMockStore()
	store.addChallan(unbilledChallan("ch-1",
		challans.Item{ID: "item-1", ChallanID: "ch-1", Quantity: 5}))
	store.addChallan(unbilledChallan("ch-2",
		challans.Item{ID: "item-2", ChallanID: "ch-2", Quantity: 2}))

	svc := NewService(testLogger(), store, nil)

	result, err := svc.Finalize(context.Background(), finalizeReq(
		[]string{"ch-1", "ch-2"},
		[]LineOverride{
			{ChallanID: "ch-1", ItemID: "item-1", Rate: 200, Discount: 0},
			{ChallanID: "ch-2", ItemID: "item-2", Rate: 50, Discount: 10},
		},
	))
	require.NoError(t, err)
	assert.Equal(t, "FY25-26-0001", result.BillNo)

	bill, err := store.GetBill(context.Background(), result.BillID, testBusinessID)
	require.NoError(t, err)
	// 5*200 + 2*50*0.9
	assert.InDelta(t, 1090.0, bill.Subtotal, 0.001)

	// The billing period is optional; omitting it stays omitted.
	assert.Nil(t, bill.PeriodStart)
	assert.Nil(t, bill.PeriodEnd)

	ch1 := store.challan("ch-1")
	require.NotNil(t, ch1.BillID)
	assert.Equal(t, result.BillID, *ch1.BillID)
	assert.Equal(t, challans.StatusBilled, ch1.BillingStatus)
	assert.InDelta(t, 1000.0, ch1.TotalAmount, 0.001)
	assert.InDelta(t, 200.0, ch1.Items[0].Rate, 0.001)
	assert.InDelta(t, 1000.0, ch1.Items[0].Amount, 0.001)

	ch2 := store.challan("ch-2")
	assert.Equal(t, challans.StatusBilled, ch2.BillingStatus)
	assert.InDelta(t, 90.0, ch2.TotalAmount, 0.001)
	assert.InDelta(t, 10.0, ch2.Items[0].Discount, 0.001)
}

func TestFinalizeNumbersBillsSequentiallyPerYear(t *testing.T) {
	store := newMockStore()
	svc := NewService(testLogger(), store, nil)

	for i := 1; i <= 3; i++ {
		chID := fmt.Sprintf("ch-%d", i)
		itemID := fmt.Sprintf("item-%d", i)
		store.addChallan(unbilledChallan(chID,
			challans.Item{ID: itemID, ChallanID: chID, Quantity: 1}))

		result, err := svc.Finalize(context.Background(), finalizeReq(
			[]string{chID},
			[]LineOverride{{ChallanID: chID, ItemID: itemID, Rate: 100}},
		))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("FY25-26-%04d", i), result.BillNo)
	}
}

func TestFinalizeRejectsStaleSelection(t *testing.T) {
	store := newMockStore()
	ch := unbilledChallan("ch-1", challans.Item{ID: "item-1", ChallanID: "ch-1", Quantity: 1})
	ch.BillingStatus = challans.StatusBilled
	billID := "bill-earlier"
	ch.BillID = &billID
	store.addChallan(ch)
	store.addChallan(unbilledChallan("ch-2",
		challans.Item{ID: "item-2", ChallanID: "ch-2", Quantity: 1}))

	svc := NewService(testLogger(), store, nil)

	_, err := svc.Finalize(context.Background(), finalizeReq(
		[]string{"ch-1", "ch-2"},
		[]LineOverride{
			{ChallanID: "ch-1", ItemID: "item-1", Rate: 10},
			{ChallanID: "ch-2", ItemID: "item-2", Rate: 10},
		},
	))
	require.Error(t, err)
	assert.ErrorIs(t, err, httpx.ErrStaleSelection)

	// The survivor must not be claimed by the aborted attempt.
	ch2 := store.challan("ch-2")
	assert.Equal(t, challans.StatusUnbilled, ch2.BillingStatus)
	assert.Nil(t, ch2.BillID)
}

func TestFinalizeRejectsMissingLineOverride(t *testing.T) {
	store := newMockStore()
	store.addChallan(unbilledChallan("ch-1",
		challans.Item{ID: "item-1", ChallanID: "ch-1", Quantity: 1},
		challans.Item{ID: "item-2", ChallanID: "ch-1", Quantity: 3}))

	svc := NewService(testLogger(), store, nil)

	_, err := svc.Finalize(context.Background(), finalizeReq(
		[]string{"ch-1"},
		[]LineOverride{{ChallanID: "ch-1", ItemID: "item-1", Rate: 10}},
	))
	require.Error(t, err)
	assert.ErrorIs(t, err, httpx.ErrLinesMismatch)

	ch1 := store.challan("ch-1")
	assert.Equal(t, challans.StatusUnbilled, ch1.BillingStatus)
	assert.Zero(t, ch1.Items[0].Rate)
}

func TestFinalizeAbortLeavesNoTrace(t *testing.T) {
	store := newMockStore()
	store.addChallan(unbilledChallan("ch-1",
		challans.Item{ID: "item-1", ChallanID: "ch-1", Quantity: 2}))
	store.failSubtotal = errors.New("connection reset")

	svc := NewService(testLogger(), store, nil)

	_, err := svc.Finalize(context.Background(), finalizeReq(
		[]string{"ch-1"},
		[]LineOverride{{ChallanID: "ch-1", ItemID: "item-1", Rate: 450}},
	))
	require.Error(t, err)

	// Nothing from the aborted attempt is visible: no bill, challan
	// untouched, item pricing untouched.
	assert.Empty(t, store.state.bills)
	ch1 := store.challan("ch-1")
	assert.Equal(t, challans.StatusUnbilled, ch1.BillingStatus)
	assert.Nil(t, ch1.BillID)
	assert.Zero(t, ch1.Items[0].Rate)

	// A later attempt still gets the first number of the year.
	store.failSubtotal = nil
	result, err := svc.Finalize(context.Background(), finalizeReq(
		[]string{"ch-1"},
		[]LineOverride{{ChallanID: "ch-1", ItemID: "item-1", Rate: 450}},
	))
	require.NoError(t, err)
	assert.Equal(t, "FY25-26-0001", result.BillNo)
}

func TestFinalizeConcurrentOverlapSingleWinner(t *testing.T) {
	store := newMockStore()
	store.addChallan(unbilledChallan("ch-shared",
		challans.Item{ID: "item-1", ChallanID: "ch-shared", Quantity: 1}))

	svc := NewService(testLogger(), store, nil)

	req := finalizeReq(
		[]string{"ch-shared"},
		[]LineOverride{{ChallanID: "ch-shared", ItemID: "item-1", Rate: 75}},
	)

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Finalize(context.Background(), req)
		}(i)
	}
	wg.Wait()

	var wins, stale int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, httpx.ErrStaleSelection):
			stale++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, attempts-1, stale)

	require.Len(t, store.state.bills, 1)
	for _, b := range store.state.bills {
		assert.Equal(t, "FY25-26-0001", b.BillNo)
	}
}

func TestFinalizeValidation(t *testing.T) {
	store := newMockStore()
	store.addChallan(unbilledChallan("ch-1",
		challans.Item{ID: "item-1", ChallanID: "ch-1", Quantity: 1}))
	svc := NewService(testLogger(), store, nil)

	okLines := []LineOverride{{ChallanID: "ch-1", ItemID: "item-1", Rate: 10}}
	mar := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		mutate func(*FinalizeRequest)
	}{
		{"empty selection", func(r *FinalizeRequest) { r.SelectedChallanIDs = nil }},
		{"no lines", func(r *FinalizeRequest) { r.Lines = nil }},
		{"negative rate", func(r *FinalizeRequest) {
			r.Lines = []LineOverride{{ChallanID: "ch-1", ItemID: "item-1", Rate: -5}}
		}},
		{"discount above 100", func(r *FinalizeRequest) {
			r.Lines = []LineOverride{{ChallanID: "ch-1", ItemID: "item-1", Rate: 10, Discount: 150}}
		}},
		{"missing party", func(r *FinalizeRequest) { r.PartyID = "" }},
		{"period start after end", func(r *FinalizeRequest) {
			r.PeriodStart = &mar
			r.PeriodEnd = &feb
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := finalizeReq([]string{"ch-1"}, okLines)
			tc.mutate(&req)
			_, err := svc.Finalize(context.Background(), req)
			require.Error(t, err)
			assert.ErrorIs(t, err, httpx.ErrValidation)
		})
	}

	// Nothing committed across all rejected attempts.
	assert.Empty(t, store.state.bills)
	assert.Equal(t, challans.StatusUnbilled, store.challan("ch-1").BillingStatus)
}

func TestFinalizeDeduplicatesSelection(t *testing.T) {
	store := newMockStore()
	store.addChallan(unbilledChallan("ch-1",
		challans.Item{ID: "item-1", ChallanID: "ch-1", Quantity: 1}))
	svc := NewService(testLogger(), store, nil)

	result, err := svc.Finalize(context.Background(), finalizeReq(
		[]string{"ch-1", "ch-1", "ch-1"},
		[]LineOverride{{ChallanID: "ch-1", ItemID: "item-1", Rate: 10}},
	))
	require.NoError(t, err)
	assert.Equal(t, "FY25-26-0001", result.BillNo)
}

func TestFinalizeClampsOverridePricing(t *testing.T) {
	// Values inside validator bounds but outside business bounds are
	// clamped rather than rejected.
	store := newMockStore()
	store.addChallan(unbilledChallan("ch-1",
		challans.Item{ID: "item-1", ChallanID: "ch-1", Quantity: 4}))
	svc := NewService(testLogger(), store, nil)

	result, err := svc.Finalize(context.Background(), finalizeReq(
		[]string{"ch-1"},
		[]LineOverride{{ChallanID: "ch-1", ItemID: "item-1", Rate: 25, Discount: 100}},
	))
	require.NoError(t, err)

	bill, err := store.GetBill(context.Background(), result.BillID, testBusinessID)
	require.NoError(t, err)
	assert.Zero(t, bill.Subtotal)
}

// ============================================================================
// READ SIDE
// ============================================================================

func TestUnbilledForPartyRequiresParty(t *testing.T) {
	svc := NewService(testLogger(), newMockStore(), nil)
	_, err := svc.UnbilledForParty(context.Background(), testBusinessID, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestGetBillScopedToBusiness(t *testing.T) {
	store := newMockStore()
	store.addChallan(unbilledChallan("ch-1",
		challans.Item{ID: "item-1", ChallanID: "ch-1", Quantity: 1}))
	svc := NewService(testLogger(), store, nil)

	result, err := svc.Finalize(context.Background(), finalizeReq(
		[]string{"ch-1"},
		[]LineOverride{{ChallanID: "ch-1", ItemID: "item-1", Rate: 10}},
	))
	require.NoError(t, err)

	_, err = svc.GetBill(context.Background(), result.BillID, "someone-else")
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}
