package orderbook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeOrderID_Idempotent(t *testing.T) {
	cases := []string{
		"",
		"abc",
		"zkevm-abc",
		"zkevm-zkevm-abc",
		"  zkevm- abc ",
		"0x5f3a",
		"zkevm-",
	}
	for _, in := range cases {
		once := NormalizeOrderID(in, DefaultIDPrefix)
		require.Equal(t, once, NormalizeOrderID(once, DefaultIDPrefix), "input %q", in)
	}
	require.Equal(t, "abc", NormalizeOrderID("zkevm-abc", DefaultIDPrefix))
	require.Equal(t, "abc", NormalizeOrderID("abc", DefaultIDPrefix))
	require.Equal(t, "zkevm-abc", NormalizeOrderID("zkevm-abc", ""))
}

func TestPreparedListing_Actions(t *testing.T) {
	msg := TypedMessage{Domain: []byte(`{}`), Types: []byte(`{}`), Value: []byte(`{}`)}
	p := PreparedListing{Actions: []Action{
		{Type: ActionSignable, Message: &msg},
		{Type: ActionTransaction, Transaction: &Transaction{To: "0x1", Data: "0x"}},
	}}

	tx, ok := p.PendingTransaction()
	require.True(t, ok)
	require.Equal(t, "0x1", tx.To)

	got, ok := p.SignableMessage()
	require.True(t, ok)
	require.Equal(t, msg, got)

	_, ok = PreparedListing{}.PendingTransaction()
	require.False(t, ok)
	_, ok = PreparedListing{}.SignableMessage()
	require.False(t, ok)
}

func TestPortError_Retryable(t *testing.T) {
	require.True(t, (&PortError{Op: "x", Err: errors.New("dial")}).Retryable())
	require.True(t, (&PortError{Op: "x", StatusCode: http.StatusTooManyRequests}).Retryable())
	require.True(t, (&PortError{Op: "x", StatusCode: http.StatusBadGateway}).Retryable())
	require.False(t, (&PortError{Op: "x", StatusCode: http.StatusBadRequest}).Retryable())
}

func TestIsRetryable(t *testing.T) {
	require.False(t, IsRetryable(nil))
	require.True(t, IsRetryable(errors.New("unknown")))
	require.False(t, IsRetryable(fmt.Errorf("wrap: %w", &PortError{Op: "create", StatusCode: 400})))
	require.False(t, IsRetryable(&StateError{Op: "BulkList", Err: ErrRunActive}))
}

func TestErrorsUnwrap(t *testing.T) {
	base := context.DeadlineExceeded
	require.ErrorIs(t, &ApprovalError{TxHash: "0xabc", Err: base}, base)
	require.ErrorIs(t, &SigningError{ItemID: "1", Err: base}, base)
	require.ErrorIs(t, &ChunkError{Index: 1, Size: 20, Err: base}, base)
	require.ErrorIs(t, &StateError{Op: "BulkList", Err: ErrNotInitialized}, ErrNotInitialized)
	require.Contains(t, (&ChunkError{Index: 1, Size: 20, Err: base}).Error(), "撤单分片 2")
}
