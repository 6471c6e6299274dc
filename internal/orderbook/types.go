package orderbook

import (
	"encoding/json"
	"math/big"
)

// ActionType 表示 prepare 返回的前置动作类别。
type ActionType string

const (
	ActionTransaction ActionType = "TRANSACTION"
	ActionSignable    ActionType = "SIGNABLE"
)

// OrderRequest 为调用方提交的单个挂单请求，入队后不可修改。
type OrderRequest struct {
	ItemID          string
	PriceAmount     *big.Int // 最小货币单位
	CurrencyAddress string   // 为空时使用配置的默认币种
}

// Transaction 为待发送的链上交易。
type Transaction struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

// TypedMessage 为待签名的 EIP-712 结构化消息，内容不做解释，原样透传。
type TypedMessage struct {
	Domain      json.RawMessage `json:"domain"`
	Types       json.RawMessage `json:"types"`
	Value       json.RawMessage `json:"value"`
	PrimaryType string          `json:"primaryType,omitempty"`
}

// Action 描述 prepare 返回的一个前置动作。
type Action struct {
	Type        ActionType    `json:"type"`
	Purpose     string        `json:"purpose,omitempty"`
	Transaction *Transaction  `json:"build_transaction,omitempty"`
	Message     *TypedMessage `json:"message,omitempty"`
}

// SellItem 为卖出侧描述。
type SellItem struct {
	Type            string `json:"type"`
	ContractAddress string `json:"contract_address"`
	TokenID         string `json:"token_id"`
}

// BuyItem 为买入侧描述。
type BuyItem struct {
	Type            string `json:"type"`
	ContractAddress string `json:"contract_address"`
	Amount          string `json:"amount"`
}

// PrepareOrderInput 为 prepare 调用参数。
type PrepareOrderInput struct {
	Maker string
	Sell  SellItem
	Buy   BuyItem
}

// PreparedListing 为 prepare 调用的原始返回。
type PreparedListing struct {
	OrderComponents json.RawMessage `json:"order_components"`
	OrderHash       string          `json:"order_hash"`
	Actions         []Action        `json:"actions"`
}

// PendingTransaction 返回第一个需要执行的链上交易动作。
func (p PreparedListing) PendingTransaction() (Transaction, bool) {
	for _, action := range p.Actions {
		if action.Type == ActionTransaction && action.Transaction != nil {
			return *action.Transaction, true
		}
	}
	return Transaction{}, false
}

// SignableMessage 返回需要签名的消息。
func (p PreparedListing) SignableMessage() (TypedMessage, bool) {
	for _, action := range p.Actions {
		if action.Type == ActionSignable && action.Message != nil {
			return *action.Message, true
		}
	}
	return TypedMessage{}, false
}

// PreparedOrder 为已准备、未签名的订单，由签名阶段消费一次。
type PreparedOrder struct {
	ItemID          string
	OrderComponents json.RawMessage
	OrderHash       string
	Signable        TypedMessage
}

// SignedOrder 为已签名订单，由创建阶段消费一次。
type SignedOrder struct {
	PreparedOrder
	Signature string
}

// CreateOrderInput 为 create 调用参数。
type CreateOrderInput struct {
	OrderComponents json.RawMessage
	OrderHash       string
	Signature       string
}

// CreatedOrder 为 create 调用的返回。
type CreatedOrder struct {
	ID string `json:"id"`
}

// ActiveOrdersQuery 为活跃挂单查询条件。
type ActiveOrdersQuery struct {
	Contract string
	Maker    string
	Status   string
	PageSize int
	Cursor   string
}

// ActiveOrder 为订单簿上的一条挂单。
type ActiveOrder struct {
	ID              string
	OrderHash       string
	ItemID          string
	PriceAmount     string
	CurrencyAddress string
}

// ActiveOrdersPage 为一页活跃挂单。
type ActiveOrdersPage struct {
	Orders     []ActiveOrder
	NextCursor string
}

// CancelFailure 为单个撤单失败明细。
type CancelFailure struct {
	OrderID string
	Reason  string
}

// CancelReport 为撤单接口对一组订单的分类结果。
type CancelReport struct {
	Successful []string
	Pending    []string
	Failed     []CancelFailure
}

// StatusActive 为活跃挂单状态。
const StatusActive = "ACTIVE"
