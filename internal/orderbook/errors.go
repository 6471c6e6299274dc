package orderbook

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotInitialized 表示在 Initialize 之前调用。
	ErrNotInitialized = errors.New("orderbook: 尚未初始化")
	// ErrRunActive 表示已有批量任务在运行。
	ErrRunActive = errors.New("orderbook: 已有任务在运行")
)

// PortError 表示一次远端调用失败（网络、校验、限流）。
type PortError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *PortError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": " + e.Message
	}
}

func (e *PortError) Unwrap() error { return e.Err }

// Retryable 判断该失败是否值得重试：传输层错误、超时、限流与服务端错误。
func (e *PortError) Retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	switch {
	case e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// ApprovalError 表示一次性授权交易失败或未确认。
type ApprovalError struct {
	TxHash string
	Err    error
}

func (e *ApprovalError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("授权交易 %s 失败: %v", e.TxHash, e.Err)
	}
	return fmt.Sprintf("授权交易失败: %v", e.Err)
}

func (e *ApprovalError) Unwrap() error { return e.Err }

// SigningError 表示签名请求被拒绝或失败。
type SigningError struct {
	ItemID string
	Err    error
}

func (e *SigningError) Error() string {
	if e.ItemID == "" {
		return fmt.Sprintf("签名失败: %v", e.Err)
	}
	return fmt.Sprintf("签名 %s 失败: %v", e.ItemID, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// ChunkError 表示整个撤单分片在得到逐项结果之前失败。
type ChunkError struct {
	Index int
	Size  int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("撤单分片 %d (%d 笔) 失败: %v", e.Index+1, e.Size, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// StateError 表示调用时机不合法，属于致命错误，不重试。
type StateError struct {
	Op  string
	Err error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }

// IsRetryable 判断错误是否可重试，未知错误按可重试处理。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var portErr *PortError
	if errors.As(err, &portErr) {
		return portErr.Retryable()
	}
	var stateErr *StateError
	return !errors.As(err, &stateErr)
}
