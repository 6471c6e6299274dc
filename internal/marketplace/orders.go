package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"orderbook-lister/internal/orderbook"
)

const (
	pathPrepareListing = "/v1/orderbook/orders/prepare"
	pathOrders         = "/v1/orderbook/orders"
	pathListings       = "/v1/orderbook/listings"
	pathPrepareCancel  = "/v1/orderbook/orders/cancel/prepare"
	pathCancel         = "/v1/orderbook/orders/cancel"
)

var _ orderbook.Marketplace = (*Client)(nil)

type prepareRequest struct {
	MakerAddress string               `json:"maker_address"`
	Sell         []orderbook.SellItem `json:"sell"`
	Buy          []orderbook.BuyItem  `json:"buy"`
}

type createRequest struct {
	MakerFees       []json.RawMessage `json:"maker_fees"`
	OrderComponents json.RawMessage   `json:"order_components"`
	OrderHash       string            `json:"order_hash"`
	OrderSignature  string            `json:"order_signature"`
}

type createResponse struct {
	Result orderbook.CreatedOrder `json:"result"`
}

type listingItem struct {
	ID        string `json:"id"`
	OrderHash string `json:"order_hash"`
	Sell      []struct {
		TokenID string `json:"token_id"`
	} `json:"sell"`
	Buy []struct {
		Amount          string `json:"amount"`
		ContractAddress string `json:"contract_address"`
	} `json:"buy"`
}

type listingsResponse struct {
	Result []listingItem `json:"result"`
	Page   struct {
		NextCursor *string `json:"next_cursor"`
	} `json:"page"`
}

type prepareCancelRequest struct {
	Orders []string `json:"orders"`
}

type prepareCancelResponse struct {
	SignableAction struct {
		Message *orderbook.TypedMessage `json:"message"`
	} `json:"signable_action"`
}

type cancelRequest struct {
	OrderIDs       []string `json:"order_ids"`
	AccountAddress string   `json:"account_address"`
	Signature      string   `json:"signature"`
}

type cancelResponse struct {
	Result struct {
		SuccessfulCancellations []string `json:"successful_cancellations"`
		PendingCancellations    []string `json:"pending_cancellations"`
		FailedCancellations     []struct {
			Order   string `json:"order"`
			OrderID string `json:"order_id"`
			Reason  string `json:"reason"`
		} `json:"failed_cancellations"`
	} `json:"result"`
}

var errMissingCancelMessage = errors.New("响应缺少 signable_action.message")

// PrepareOrder 请求挂单所需的前置动作与订单结构；该调用幂等，可重试。
func (c *Client) PrepareOrder(ctx context.Context, in orderbook.PrepareOrderInput) (orderbook.PreparedListing, error) {
	var out orderbook.PreparedListing
	body := prepareRequest{
		MakerAddress: in.Maker,
		Sell:         []orderbook.SellItem{in.Sell},
		Buy:          []orderbook.BuyItem{in.Buy},
	}
	err := c.callWithRetry(ctx, "prepare_listing", func() error {
		out = orderbook.PreparedListing{}
		return c.do(ctx, "prepare_listing", http.MethodPost, pathPrepareListing, nil, body, &out)
	})
	return out, err
}

// CreateOrder 提交已签名订单。该调用不在客户端重试，由流水线决定重试策略。
func (c *Client) CreateOrder(ctx context.Context, in orderbook.CreateOrderInput) (orderbook.CreatedOrder, error) {
	var out createResponse
	body := createRequest{
		MakerFees:       []json.RawMessage{},
		OrderComponents: in.OrderComponents,
		OrderHash:       in.OrderHash,
		OrderSignature:  in.Signature,
	}
	if err := c.do(ctx, "create_listing", http.MethodPost, pathOrders, nil, body, &out); err != nil {
		return orderbook.CreatedOrder{}, err
	}
	if out.Result.ID == "" {
		return orderbook.CreatedOrder{}, &orderbook.PortError{Op: "create_listing", StatusCode: http.StatusOK, Message: "响应缺少挂单 id"}
	}
	return out.Result, nil
}

// ListActiveOrders 查询一页挂单。
func (c *Client) ListActiveOrders(ctx context.Context, q orderbook.ActiveOrdersQuery) (orderbook.ActiveOrdersPage, error) {
	query := url.Values{}
	if q.Contract != "" {
		query.Set("sell_item_contract_address", q.Contract)
	}
	if q.Maker != "" {
		query.Set("account_address", q.Maker)
	}
	status := q.Status
	if status == "" {
		status = orderbook.StatusActive
	}
	query.Set("status", status)
	if q.PageSize > 0 {
		query.Set("page_size", strconv.Itoa(q.PageSize))
	}
	if q.Cursor != "" {
		query.Set("page_cursor", q.Cursor)
	}

	var out listingsResponse
	err := c.callWithRetry(ctx, "list_listings", func() error {
		out = listingsResponse{}
		return c.do(ctx, "list_listings", http.MethodGet, pathListings, query, nil, &out)
	})
	if err != nil {
		return orderbook.ActiveOrdersPage{}, err
	}

	page := orderbook.ActiveOrdersPage{Orders: make([]orderbook.ActiveOrder, 0, len(out.Result))}
	for _, item := range out.Result {
		order := orderbook.ActiveOrder{ID: item.ID, OrderHash: item.OrderHash}
		if len(item.Sell) > 0 {
			order.ItemID = item.Sell[0].TokenID
		}
		if len(item.Buy) > 0 {
			order.PriceAmount = item.Buy[0].Amount
			order.CurrencyAddress = item.Buy[0].ContractAddress
		}
		page.Orders = append(page.Orders, order)
	}
	if out.Page.NextCursor != nil {
		page.NextCursor = *out.Page.NextCursor
	}
	return page, nil
}

// PrepareCancellations 获取批量撤单需要签名的消息。
func (c *Client) PrepareCancellations(ctx context.Context, orderIDs []string) (orderbook.TypedMessage, error) {
	var out prepareCancelResponse
	body := prepareCancelRequest{Orders: orderIDs}
	err := c.callWithRetry(ctx, "prepare_cancellations", func() error {
		out = prepareCancelResponse{}
		return c.do(ctx, "prepare_cancellations", http.MethodPost, pathPrepareCancel, nil, body, &out)
	})
	if err != nil {
		return orderbook.TypedMessage{}, err
	}
	if out.SignableAction.Message == nil {
		return orderbook.TypedMessage{}, &orderbook.PortError{Op: "prepare_cancellations", StatusCode: http.StatusOK, Err: errMissingCancelMessage}
	}
	return *out.SignableAction.Message, nil
}

// CancelOrders 提交撤单签名并返回逐项分类结果。
func (c *Client) CancelOrders(ctx context.Context, orderIDs []string, maker, signature string) (orderbook.CancelReport, error) {
	var out cancelResponse
	body := cancelRequest{OrderIDs: orderIDs, AccountAddress: maker, Signature: signature}
	if err := c.do(ctx, "cancel_orders", http.MethodPost, pathCancel, nil, body, &out); err != nil {
		return orderbook.CancelReport{}, err
	}

	report := orderbook.CancelReport{
		Successful: out.Result.SuccessfulCancellations,
		Pending:    out.Result.PendingCancellations,
		Failed:     make([]orderbook.CancelFailure, 0, len(out.Result.FailedCancellations)),
	}
	for _, f := range out.Result.FailedCancellations {
		// 两种字段名都出现过
		id := f.OrderID
		if id == "" {
			id = f.Order
		}
		report.Failed = append(report.Failed, orderbook.CancelFailure{OrderID: id, Reason: f.Reason})
	}
	return report, nil
}
