package journal

import (
	"time"

	"orderbook-lister/internal/cancellation"
	"orderbook-lister/internal/listing"
)

// EventType 表示日志事件类型。
type EventType string

const (
	EventListRun   EventType = "list_run"
	EventCancelRun EventType = "cancel_run"
	EventError     EventType = "error"
)

// Event 封装通用事件。
type Event struct {
	Type      EventType   `json:"type"`
	RunID     string      `json:"run_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// ListRunPayload 为批量挂单汇总，不含逐项明细（明细见 journal_items）。
type ListRunPayload struct {
	Total          int       `json:"total"`
	Successful     int       `json:"successful"`
	Failed         int       `json:"failed"`
	CancelledCount int       `json:"cancelled"`
	Cancelled      bool      `json:"was_cancelled"`
	ApprovalTx     string    `json:"approval_tx,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

func listRunPayload(res listing.Result) ListRunPayload {
	return ListRunPayload{
		Total:          res.Total,
		Successful:     res.Successful,
		Failed:         res.Failed,
		CancelledCount: res.CancelledCount,
		Cancelled:      res.Cancelled,
		ApprovalTx:     res.ApprovalTx,
		StartedAt:      res.StartedAt,
		FinishedAt:     res.FinishedAt,
	}
}

// CancelRunPayload 为批量撤单汇总。
type CancelRunPayload struct {
	Total      int       `json:"total"`
	Chunks     int       `json:"chunks"`
	Successful int       `json:"successful"`
	Pending    int       `json:"pending"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Stopped    bool      `json:"was_cancelled"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func cancelRunPayload(res cancellation.Result) CancelRunPayload {
	return CancelRunPayload{
		Total:      res.Total,
		Chunks:     res.Chunks,
		Successful: res.Successful,
		Pending:    res.Pending,
		Failed:     res.Failed,
		Skipped:    res.Skipped,
		Stopped:    res.Stopped,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Item 为单次运行中某个订单的最终状态。
type Item struct {
	RunID     string    `json:"run_id"`
	Kind      EventType `json:"kind"`
	ItemID    string    `json:"item_id"`
	Status    string    `json:"status"`
	Stage     string    `json:"stage,omitempty"`
	ListingID string    `json:"listing_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}
