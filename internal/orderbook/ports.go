package orderbook

import "context"

// Signer 持有账户签名能力。
type Signer interface {
	Address(ctx context.Context) (string, error)
	SignTypedData(ctx context.Context, msg TypedMessage) (string, error)
	SendTransaction(ctx context.Context, tx Transaction) (PendingTransaction, error)
}

// PendingTransaction 为已广播、待确认的链上交易。
type PendingTransaction interface {
	Hash() string
	Wait(ctx context.Context) error
}

// Marketplace 为远端订单簿接口。
type Marketplace interface {
	PrepareOrder(ctx context.Context, in PrepareOrderInput) (PreparedListing, error)
	CreateOrder(ctx context.Context, in CreateOrderInput) (CreatedOrder, error)
	ListActiveOrders(ctx context.Context, q ActiveOrdersQuery) (ActiveOrdersPage, error)
	PrepareCancellations(ctx context.Context, orderIDs []string) (TypedMessage, error)
	CancelOrders(ctx context.Context, orderIDs []string, maker, signature string) (CancelReport, error)
}
