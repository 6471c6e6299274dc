package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"orderbook-lister/internal/orderbook"
)

const defaultActivePageSize = 200

// maxActivePages 防止游标异常时无限翻页。
const maxActivePages = 500

// ActiveListing 为某个物品当前的活跃挂单。
type ActiveListing struct {
	ListingID       string `json:"listing_id"`
	OrderHash       string `json:"order_hash"`
	PriceAmount     string `json:"price_amount"`
	Price           string `json:"price"`
	CurrencyAddress string `json:"currency_address"`
}

// FetchActiveListings 翻页查询当前账户在配置合约下的活跃挂单，按 itemIDs 过滤；itemIDs 为空时返回全部。
func (a *App) FetchActiveListings(ctx context.Context, itemIDs []string) (map[string]ActiveListing, error) {
	a.mu.Lock()
	initialized := a.initialized
	market := a.marketplace
	maker := a.account.Address
	a.mu.Unlock()
	if !initialized {
		return nil, &orderbook.StateError{Op: "FetchActiveListings", Err: orderbook.ErrNotInitialized}
	}

	wanted := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		if id = strings.TrimSpace(id); id != "" {
			wanted[id] = struct{}{}
		}
	}

	pageSize := a.cfg.Marketplace.ActivePageSize
	if pageSize <= 0 {
		pageSize = defaultActivePageSize
	}

	listings := make(map[string]ActiveListing)
	seenCursors := make(map[string]struct{})
	cursor := ""
	pages := 0
	for {
		page, err := market.ListActiveOrders(ctx, orderbook.ActiveOrdersQuery{
			Contract: a.cfg.Marketplace.ContractAddress,
			Maker:    maker,
			Status:   orderbook.StatusActive,
			PageSize: pageSize,
			Cursor:   cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("查询活跃挂单失败: %w", err)
		}
		pages++

		for _, order := range page.Orders {
			if len(wanted) > 0 {
				if _, ok := wanted[order.ItemID]; !ok {
					continue
				}
			}
			if _, dup := listings[order.ItemID]; dup {
				continue
			}
			listings[order.ItemID] = ActiveListing{
				ListingID:       order.ID,
				OrderHash:       order.OrderHash,
				PriceAmount:     order.PriceAmount,
				Price:           a.displayPrice(order.PriceAmount),
				CurrencyAddress: order.CurrencyAddress,
			}
		}

		if page.NextCursor == "" || pages >= maxActivePages {
			break
		}
		if _, loop := seenCursors[page.NextCursor]; loop {
			a.logger.Warn("活跃挂单游标重复，停止翻页", zap.String("cursor", page.NextCursor))
			break
		}
		seenCursors[page.NextCursor] = struct{}{}
		cursor = page.NextCursor
	}

	a.logger.Info("活跃挂单查询完成",
		zap.Int("pages", pages),
		zap.Int("requested", len(wanted)),
		zap.Int("found", len(listings)),
	)
	return listings, nil
}

// displayPrice 将最小单位金额按币种精度换算为可读价格。
func (a *App) displayPrice(amount string) string {
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return ""
	}
	return value.Shift(-a.cfg.Marketplace.CurrencyDecimals).String()
}
