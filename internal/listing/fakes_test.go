package listing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"orderbook-lister/internal/orderbook"
)

type fakeMarketplace struct {
	mu sync.Mutex

	prepareFn func(in orderbook.PrepareOrderInput) (orderbook.PreparedListing, error)
	createFn  func(in orderbook.CreateOrderInput) (orderbook.CreatedOrder, error)

	prepareCalls int
	createCalls  int
	createByItem map[string]int
	prepared     []orderbook.PrepareOrderInput

	// 收到已取消 ctx 的远端调用次数
	cancelledCalls atomic.Int32
}

func newFakeMarketplace() *fakeMarketplace {
	return &fakeMarketplace{createByItem: make(map[string]int)}
}

func (m *fakeMarketplace) PrepareOrder(ctx context.Context, in orderbook.PrepareOrderInput) (orderbook.PreparedListing, error) {
	if ctx.Err() != nil {
		m.cancelledCalls.Add(1)
	}
	m.mu.Lock()
	m.prepareCalls++
	m.prepared = append(m.prepared, in)
	fn := m.prepareFn
	m.mu.Unlock()

	if fn != nil {
		return fn(in)
	}
	return signableListing(in.Sell.TokenID, false), nil
}

func (m *fakeMarketplace) CreateOrder(ctx context.Context, in orderbook.CreateOrderInput) (orderbook.CreatedOrder, error) {
	if ctx.Err() != nil {
		m.cancelledCalls.Add(1)
	}
	itemID := strings.TrimPrefix(in.OrderHash, "hash-")

	m.mu.Lock()
	m.createCalls++
	m.createByItem[itemID]++
	fn := m.createFn
	m.mu.Unlock()

	if fn != nil {
		return fn(in)
	}
	return orderbook.CreatedOrder{ID: "listing-" + itemID}, nil
}

func (m *fakeMarketplace) ListActiveOrders(context.Context, orderbook.ActiveOrdersQuery) (orderbook.ActiveOrdersPage, error) {
	return orderbook.ActiveOrdersPage{}, nil
}

func (m *fakeMarketplace) PrepareCancellations(context.Context, []string) (orderbook.TypedMessage, error) {
	return orderbook.TypedMessage{}, errors.New("not used")
}

func (m *fakeMarketplace) CancelOrders(context.Context, []string, string, string) (orderbook.CancelReport, error) {
	return orderbook.CancelReport{}, errors.New("not used")
}

func (m *fakeMarketplace) stats() (prepare, create int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prepareCalls, m.createCalls
}

func (m *fakeMarketplace) createAttempts(itemID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createByItem[itemID]
}

type fakeSigner struct {
	signFn  func(msg orderbook.TypedMessage) (string, error)
	sendErr func(call int32) error
	waitErr error

	sends atomic.Int32
	signs atomic.Int32
}

func (s *fakeSigner) Address(context.Context) (string, error) {
	return "0x00000000000000000000000000000000000000aa", nil
}

func (s *fakeSigner) SignTypedData(_ context.Context, msg orderbook.TypedMessage) (string, error) {
	s.signs.Add(1)
	if s.signFn != nil {
		return s.signFn(msg)
	}
	return "0xsig", nil
}

func (s *fakeSigner) SendTransaction(context.Context, orderbook.Transaction) (orderbook.PendingTransaction, error) {
	call := s.sends.Add(1)
	if s.sendErr != nil {
		if err := s.sendErr(call); err != nil {
			return nil, err
		}
	}
	return fakePending{hash: fmt.Sprintf("0xtx%d", call), err: s.waitErr}, nil
}

type fakePending struct {
	hash string
	err  error
}

func (p fakePending) Hash() string              { return p.hash }
func (p fakePending) Wait(context.Context) error { return p.err }

func signableListing(itemID string, withApproval bool) orderbook.PreparedListing {
	msg := orderbook.TypedMessage{
		Domain: json.RawMessage(`{"name":"ImmutableSeaport"}`),
		Types:  json.RawMessage(`{"OrderComponents":[]}`),
		Value:  json.RawMessage(fmt.Sprintf(`{"item":%q}`, itemID)),
	}
	actions := make([]orderbook.Action, 0, 2)
	if withApproval {
		actions = append(actions, orderbook.Action{
			Type:        orderbook.ActionTransaction,
			Purpose:     "APPROVAL",
			Transaction: &orderbook.Transaction{To: "0x06d92b637dfcdf95a2faba04ef22b2a096029b69", Data: "0xa22cb465"},
		})
	}
	actions = append(actions, orderbook.Action{Type: orderbook.ActionSignable, Purpose: "CREATE_LISTING", Message: &msg})

	return orderbook.PreparedListing{
		OrderComponents: json.RawMessage(fmt.Sprintf(`{"token":%q}`, itemID)),
		OrderHash:       "hash-" + itemID,
		Actions:         actions,
	}
}

func makeRequests(n int) []orderbook.OrderRequest {
	reqs := make([]orderbook.OrderRequest, n)
	for i := range reqs {
		reqs[i] = orderbook.OrderRequest{ItemID: fmt.Sprintf("%d", i+1), PriceAmount: big.NewInt(int64(1000 + i))}
	}
	return reqs
}

func fastOptions() Options {
	return Options{
		PrepareBatchSize:  10,
		CreateBatchSize:   5,
		CreateMaxAttempts: 3,
		ContractAddress:   "0x06d92b637dfcdf95a2faba04ef22b2a096029b69",
		DefaultCurrency:   "0x52a6c53869ce09a731cd772f245b97a4401d3348",
	}
}

// waitLog 记录流水线的每次等待，不实际休眠。
type waitLog struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (l *waitLog) wait(ctx context.Context, d time.Duration) bool {
	l.mu.Lock()
	l.waits = append(l.waits, d)
	l.mu.Unlock()
	return ctx.Err() == nil
}

func (l *waitLog) count(d time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, w := range l.waits {
		if w == d {
			n++
		}
	}
	return n
}

func (l *waitLog) all() []time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := append([]time.Duration(nil), l.waits...)
	slices.Sort(out)
	return out
}

type progressLog struct {
	mu     sync.Mutex
	events []Progress
}

func (l *progressLog) record(p Progress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, p)
}

func (l *progressLog) count(status Status, pred func(Progress) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, p := range l.events {
		if p.Status == status && (pred == nil || pred(p)) {
			n++
		}
	}
	return n
}

func (l *progressLog) last() Progress {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}
