package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"orderbook-lister/internal/cancellation"
	"orderbook-lister/internal/orderbook"
)

// listEntry 为挂单文件中的一行，价格为可读单位（如 1.5 IMX）。
type listEntry struct {
	ItemID   string `json:"item_id"`
	Price    string `json:"price"`
	Currency string `json:"currency,omitempty"`
}

// parseListFile 解析挂单文件并把价格换算为最小单位。
func parseListFile(r io.Reader, decimals int32) ([]orderbook.OrderRequest, error) {
	var entries []listEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("解析挂单文件失败: %w", err)
	}

	reqs := make([]orderbook.OrderRequest, 0, len(entries))
	for i, e := range entries {
		itemID := strings.TrimSpace(e.ItemID)
		if itemID == "" {
			return nil, fmt.Errorf("第 %d 行缺少 item_id", i+1)
		}
		amount, err := toBaseUnits(e.Price, decimals)
		if err != nil {
			return nil, fmt.Errorf("第 %d 行 (%s): %w", i+1, itemID, err)
		}
		reqs = append(reqs, orderbook.OrderRequest{
			ItemID:          itemID,
			PriceAmount:     amount.BigInt(),
			CurrencyAddress: strings.TrimSpace(e.Currency),
		})
	}
	return reqs, nil
}

func toBaseUnits(price string, decimals int32) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(price))
	if err != nil {
		return decimal.Zero, fmt.Errorf("非法价格 %q", price)
	}
	if !value.IsPositive() {
		return decimal.Zero, fmt.Errorf("价格必须大于 0: %s", price)
	}
	amount := value.Shift(decimals)
	if !amount.Equal(amount.Truncate(0)) {
		return decimal.Zero, fmt.Errorf("价格 %s 超出 %d 位精度", price, decimals)
	}
	return amount, nil
}

// parseCancelFile 解析撤单文件，每项可给出 listing_id / order_id / order_hash。
func parseCancelFile(r io.Reader) ([]cancellation.Target, error) {
	var targets []cancellation.Target
	if err := json.NewDecoder(r).Decode(&targets); err != nil {
		return nil, fmt.Errorf("解析撤单文件失败: %w", err)
	}
	return targets, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
