package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"orderbook-lister/internal/cancellation"
	"orderbook-lister/internal/config"
	"orderbook-lister/internal/journal"
	"orderbook-lister/internal/orderbook"
	"orderbook-lister/internal/store"
)

const testMaker = "0x00000000000000000000000000000000000000aa"

type appMarket struct {
	mu       sync.Mutex
	block    chan struct{}
	onCancel func()
	pages    []orderbook.ActiveOrdersPage
	queries  []orderbook.ActiveOrdersQuery
}

func (m *appMarket) PrepareOrder(_ context.Context, in orderbook.PrepareOrderInput) (orderbook.PreparedListing, error) {
	if m.block != nil {
		<-m.block
	}
	msg := orderbook.TypedMessage{Value: json.RawMessage(`{}`)}
	return orderbook.PreparedListing{
		OrderComponents: json.RawMessage(`{}`),
		OrderHash:       "hash-" + in.Sell.TokenID,
		Actions:         []orderbook.Action{{Type: orderbook.ActionSignable, Message: &msg}},
	}, nil
}

func (m *appMarket) CreateOrder(_ context.Context, in orderbook.CreateOrderInput) (orderbook.CreatedOrder, error) {
	return orderbook.CreatedOrder{ID: "listing-" + in.OrderHash}, nil
}

func (m *appMarket) ListActiveOrders(_ context.Context, q orderbook.ActiveOrdersQuery) (orderbook.ActiveOrdersPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, q)
	idx := len(m.queries) - 1
	if idx >= len(m.pages) {
		return orderbook.ActiveOrdersPage{}, nil
	}
	return m.pages[idx], nil
}

func (m *appMarket) PrepareCancellations(context.Context, []string) (orderbook.TypedMessage, error) {
	return orderbook.TypedMessage{Value: json.RawMessage(`{}`)}, nil
}

func (m *appMarket) CancelOrders(_ context.Context, ids []string, _, _ string) (orderbook.CancelReport, error) {
	if m.onCancel != nil {
		m.onCancel()
	}
	return orderbook.CancelReport{Successful: ids}, nil
}

type appSigner struct{}

func (appSigner) Address(context.Context) (string, error) { return testMaker, nil }

func (appSigner) SignTypedData(context.Context, orderbook.TypedMessage) (string, error) {
	return "0xsig", nil
}

func (appSigner) SendTransaction(context.Context, orderbook.Transaction) (orderbook.PendingTransaction, error) {
	return nil, fmt.Errorf("not used")
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Environment: "test"},
		Marketplace: config.MarketplaceConfig{
			ContractAddress:  "0x06d92b637dfcdf95a2faba04ef22b2a096029b69",
			DefaultCurrency:  "0x52a6c53869ce09a731cd772f245b97a4401d3348",
			CurrencyDecimals: 18,
			ActivePageSize:   2,
		},
		Pipeline:     config.PipelineConfig{PrepareBatchSize: 10, CreateBatchSize: 5, CreateMaxAttempts: 3},
		Cancellation: config.CancellationConfig{ChunkSize: 20, IDPrefix: "zkevm-"},
	}
}

func newTestApp(t *testing.T, market *appMarket) *App {
	t.Helper()
	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true, MaxOpenConns: 2, MaxIdleConns: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	a := New(testConfig(), zaptest.NewLogger(t), st)
	account, err := a.initializeWith(context.Background(), market, appSigner{})
	require.NoError(t, err)
	require.Equal(t, testMaker, account.Address)
	return a
}

func requests(n int) []orderbook.OrderRequest {
	reqs := make([]orderbook.OrderRequest, n)
	for i := range reqs {
		reqs[i] = orderbook.OrderRequest{ItemID: fmt.Sprintf("%d", i+1), PriceAmount: big.NewInt(1000)}
	}
	return reqs
}

func TestStateErrorsBeforeInitialize(t *testing.T) {
	a := New(testConfig(), zaptest.NewLogger(t), nil)
	ctx := context.Background()

	_, err := a.BulkList(ctx, requests(1), nil)
	require.ErrorIs(t, err, orderbook.ErrNotInitialized)
	var stateErr *orderbook.StateError
	require.ErrorAs(t, err, &stateErr)

	_, err = a.BulkCancel(ctx, []cancellation.Target{{OrderID: "a"}}, nil)
	require.ErrorIs(t, err, orderbook.ErrNotInitialized)

	_, err = a.FetchActiveListings(ctx, nil)
	require.ErrorIs(t, err, orderbook.ErrNotInitialized)

	_, err = a.Account()
	require.ErrorIs(t, err, orderbook.ErrNotInitialized)

	require.False(t, a.RequestCancellationOfRun())
	require.NoError(t, a.Close())
}

func TestInitializeIsIdempotent(t *testing.T) {
	a := newTestApp(t, &appMarket{})
	account, err := a.initializeWith(context.Background(), &appMarket{}, appSigner{})
	require.NoError(t, err)
	require.Equal(t, testMaker, account.Address)
}

func TestBulkListRecordsJournal(t *testing.T) {
	a := newTestApp(t, &appMarket{})
	ctx := context.Background()

	res, err := a.BulkList(ctx, requests(12), nil)
	require.NoError(t, err)
	require.Equal(t, 12, res.Successful)

	events, err := a.Journal().ListEvents(ctx, journal.EventListRun, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, res.RunID, events[0].RunID)

	items, err := a.Journal().RunItems(ctx, res.RunID)
	require.NoError(t, err)
	require.Len(t, items, 12)
}

func TestBulkCancel(t *testing.T) {
	a := newTestApp(t, &appMarket{})
	ctx := context.Background()

	res, err := a.BulkCancel(ctx, []cancellation.Target{{ListingID: "zkevm-a"}, {OrderID: "b"}, {OrderHash: "c"}}, nil)
	require.NoError(t, err)
	require.Equal(t, 3, res.Successful)

	events, err := a.Journal().ListEvents(ctx, journal.EventCancelRun, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	_, err = a.BulkCancel(ctx, nil, nil)
	require.ErrorIs(t, err, cancellation.ErrNoOrderIDs)
}

func TestBulkCancelStoppedIsNotAnError(t *testing.T) {
	market := &appMarket{}
	a := newTestApp(t, market)
	market.onCancel = func() { a.RequestCancellationOfRun() }
	ctx := context.Background()

	targets := make([]cancellation.Target, 45)
	for i := range targets {
		targets[i] = cancellation.Target{OrderID: fmt.Sprintf("o%d", i)}
	}
	res, err := a.BulkCancel(ctx, targets, nil)
	require.NoError(t, err)
	require.True(t, res.Stopped)
	require.Equal(t, 20, res.Successful)
	require.Equal(t, 25, res.Skipped)
	require.Zero(t, res.Failed)

	errs, err := a.Journal().ListEvents(ctx, journal.EventError, 10)
	require.NoError(t, err)
	require.Empty(t, errs)
	require.False(t, a.RequestCancellationOfRun())
}

func TestCancelRequestRightAfterBeginIsKept(t *testing.T) {
	a := newTestApp(t, &appMarket{})

	runCtx, err := a.begin(context.Background(), "BulkCancel")
	require.NoError(t, err)
	require.True(t, a.RequestCancellationOfRun())
	require.ErrorIs(t, runCtx.Err(), context.Canceled)

	a.end()
	require.False(t, a.RequestCancellationOfRun())
}

func TestSingleRunGuardAndCancellation(t *testing.T) {
	market := &appMarket{block: make(chan struct{})}
	a := newTestApp(t, market)

	type outcome struct {
		total, successful, failed, cancelled int
		wasCancelled                         bool
		err                                  error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := a.BulkList(context.Background(), requests(25), nil)
		done <- outcome{res.Total, res.Successful, res.Failed, res.CancelledCount, res.Cancelled, err}
	}()

	require.Eventually(t, a.pipeline.Active, time.Second, 5*time.Millisecond)

	_, err := a.BulkCancel(context.Background(), []cancellation.Target{{OrderID: "x"}}, nil)
	require.ErrorIs(t, err, orderbook.ErrRunActive)
	_, err = a.BulkList(context.Background(), requests(1), nil)
	require.ErrorIs(t, err, orderbook.ErrRunActive)

	require.True(t, a.RequestCancellationOfRun())
	close(market.block)

	got := <-done
	require.NoError(t, got.err)
	require.True(t, got.wasCancelled)
	require.Equal(t, got.total, got.successful+got.failed+got.cancelled)
	require.Greater(t, got.cancelled, 0)

	require.False(t, a.RequestCancellationOfRun())
}

func TestFetchActiveListings(t *testing.T) {
	market := &appMarket{pages: []orderbook.ActiveOrdersPage{
		{
			Orders: []orderbook.ActiveOrder{
				{ID: "l1", OrderHash: "0xh1", ItemID: "1", PriceAmount: "1500000000000000000", CurrencyAddress: "0xe"},
				{ID: "l2", OrderHash: "0xh2", ItemID: "2", PriceAmount: "1"},
			},
			NextCursor: "c2",
		},
		{
			Orders: []orderbook.ActiveOrder{
				{ID: "l3", OrderHash: "0xh3", ItemID: "3", PriceAmount: "20000000000000000000"},
				{ID: "l1-old", OrderHash: "0xh0", ItemID: "1", PriceAmount: "9"},
			},
		},
	}}
	a := newTestApp(t, market)

	listings, err := a.FetchActiveListings(context.Background(), []string{"1", "3", "9"})
	require.NoError(t, err)
	require.Equal(t, map[string]ActiveListing{
		"1": {ListingID: "l1", OrderHash: "0xh1", PriceAmount: "1500000000000000000", Price: "1.5", CurrencyAddress: "0xe"},
		"3": {ListingID: "l3", OrderHash: "0xh3", PriceAmount: "20000000000000000000", Price: "20"},
	}, listings)

	require.Len(t, market.queries, 2)
	require.Equal(t, testMaker, market.queries[0].Maker)
	require.Equal(t, 2, market.queries[0].PageSize)
	require.Equal(t, orderbook.StatusActive, market.queries[0].Status)
	require.Equal(t, "", market.queries[0].Cursor)
	require.Equal(t, "c2", market.queries[1].Cursor)
}

func TestFetchActiveListingsStopsOnRepeatedCursor(t *testing.T) {
	page := orderbook.ActiveOrdersPage{
		Orders:     []orderbook.ActiveOrder{{ID: "l1", ItemID: "1", PriceAmount: "1"}},
		NextCursor: "same",
	}
	market := &appMarket{pages: []orderbook.ActiveOrdersPage{page, page, page, page}}
	a := newTestApp(t, market)

	listings, err := a.FetchActiveListings(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	require.Len(t, market.queries, 2)
}

func TestHandler(t *testing.T) {
	a := newTestApp(t, &appMarket{})
	res, err := a.BulkList(context.Background(), requests(3), nil)
	require.NoError(t, err)

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/events?type=LIST_RUN&limit=5")
	require.NoError(t, err)
	var events []journal.Event
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))
	_ = resp.Body.Close()
	require.Len(t, events, 1)

	resp, err = http.Get(srv.URL + "/runs?id=" + res.RunID)
	require.NoError(t, err)
	var items []journal.Item
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	_ = resp.Body.Close()
	require.Len(t, items, 3)

	resp, err = http.Get(srv.URL + "/runs")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	require.Contains(t, string(body), `lister_runs_total{kind="list",status="complete"} 1`)
	require.Contains(t, string(body), `lister_items_total{result="listed",stage="creation"} 3`)
}

func TestServeDisabledOnZeroPort(t *testing.T) {
	a := New(testConfig(), zaptest.NewLogger(t), nil)
	require.NoError(t, a.Serve(context.Background(), 0))
}
