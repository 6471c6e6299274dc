package orderbook

import "strings"

// DefaultIDPrefix 为订单簿在部分接口中附加的订单号前缀。
const DefaultIDPrefix = "zkevm-"

// NormalizeOrderID 去除订单号前缀与首尾空白，重复调用结果不变。
func NormalizeOrderID(id, prefix string) string {
	for {
		id = strings.TrimSpace(id)
		if prefix == "" || !strings.HasPrefix(id, prefix) {
			return id
		}
		id = strings.TrimPrefix(id, prefix)
	}
}
