package main

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"orderbook-lister/internal/cancellation"
)

func TestParseListFile(t *testing.T) {
	in := `[
		{"item_id": " 7 ", "price": "1.5"},
		{"item_id": "8", "price": "0.000000000000000001", "currency": "0xabc"}
	]`
	reqs, err := parseListFile(strings.NewReader(in), 18)
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	want, _ := new(big.Int).SetString("1500000000000000000", 10)
	require.Equal(t, "7", reqs[0].ItemID)
	require.Zero(t, want.Cmp(reqs[0].PriceAmount))
	require.Equal(t, "", reqs[0].CurrencyAddress)

	require.Zero(t, big.NewInt(1).Cmp(reqs[1].PriceAmount))
	require.Equal(t, "0xabc", reqs[1].CurrencyAddress)
}

func TestParseListFileRejectsBadRows(t *testing.T) {
	cases := map[string]string{
		"missing_item": `[{"price": "1"}]`,
		"bad_price":    `[{"item_id": "1", "price": "abc"}]`,
		"zero_price":   `[{"item_id": "1", "price": "0"}]`,
		"too_precise":  `[{"item_id": "1", "price": "0.0000000000000000001"}]`,
		"not_json":     `not json`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseListFile(strings.NewReader(in), 18)
			require.Error(t, err)
		})
	}
}

func TestParseCancelFile(t *testing.T) {
	in := `[{"listing_id": "zkevm-1"}, {"order_hash": "0xh"}]`
	targets, err := parseCancelFile(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, []cancellation.Target{{ListingID: "zkevm-1"}, {OrderHash: "0xh"}}, targets)
}

func TestSplitList(t *testing.T) {
	require.Equal(t, []string{"1", "2", "3"}, splitList(" 1, 2,,3 ,"))
	require.Empty(t, splitList(""))
}
