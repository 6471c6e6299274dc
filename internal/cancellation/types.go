package cancellation

import (
	"errors"
	"strings"
	"time"

	"orderbook-lister/internal/config"
	"orderbook-lister/internal/orderbook"
)

// ErrNoOrderIDs 表示归一化后没有可撤销的订单。
var ErrNoOrderIDs = errors.New("cancellation: 没有可撤销的订单 id")

// MaxChunkSize 为撤单接口单次请求允许的订单数上限。
const MaxChunkSize = 20

// Target 为一个待撤销的挂单，三个标识任选其一，优先级 OrderHash > ListingID > OrderID。
type Target struct {
	ListingID string `json:"listing_id,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
	OrderHash string `json:"order_hash,omitempty"`
}

func (t Target) rawID() string {
	for _, id := range []string{t.OrderHash, t.ListingID, t.OrderID} {
		if strings.TrimSpace(id) != "" {
			return id
		}
	}
	return ""
}

// Status 为撤单进度状态。
type Status string

const (
	StatusPreparing  Status = "preparing"
	StatusSigning    Status = "signing"
	StatusSubmitting Status = "submitting"
	StatusComplete   Status = "complete"
	StatusCancelled  Status = "cancelled"
)

// OutcomeStatus 为单个订单的撤销结果。
type OutcomeStatus string

const (
	OutcomeCancelled OutcomeStatus = "cancelled"
	OutcomePending   OutcomeStatus = "pending"
	OutcomeFailed    OutcomeStatus = "failed"
	// OutcomeSkipped 表示任务被停止时该订单尚未提交。
	OutcomeSkipped   OutcomeStatus = "skipped_cancelled"
)

// reasonNotReported 用于接口响应中未出现的订单。
const reasonNotReported = "not reported by marketplace"

// Outcome 为单个订单的撤销结果。
type Outcome struct {
	OrderID string        `json:"order_id"`
	Status  OutcomeStatus `json:"status"`
	Reason  string        `json:"reason,omitempty"`
}

// Progress 为撤单进度回调载荷。
type Progress struct {
	Status     Status `json:"status"`
	Total      int    `json:"total"`
	Processed  int    `json:"processed"`
	Message    string `json:"message"`
	Chunk      int    `json:"chunk,omitempty"`
	Chunks     int    `json:"chunks,omitempty"`
	Successful int    `json:"successful,omitempty"`
	Pending    int    `json:"pending,omitempty"`
	Failed     int    `json:"failed,omitempty"`
	Skipped    int    `json:"skipped,omitempty"`
}

// ProgressFunc 接收撤单进度。
type ProgressFunc func(Progress)

// Result 为一次批量撤单的汇总；Stopped 时 Successful+Pending+Failed+Skipped == Total。
type Result struct {
	RunID      string    `json:"run_id"`
	Total      int       `json:"total"`
	Chunks     int       `json:"chunks"`
	Successful int       `json:"successful"`
	Pending    int       `json:"pending"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Stopped    bool      `json:"was_cancelled"`
	Outcomes   []Outcome `json:"outcomes"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Options 控制分片大小、节奏与 id 前缀。
type Options struct {
	ChunkSize  int
	ChunkDelay time.Duration
	IDPrefix   string
}

// DefaultOptions 返回默认撤单参数。
func DefaultOptions() Options {
	return Options{
		ChunkSize:  MaxChunkSize,
		ChunkDelay: 500 * time.Millisecond,
		IDPrefix:   orderbook.DefaultIDPrefix,
	}
}

// OptionsFromConfig 由配置构造 Options。
func OptionsFromConfig(cfg config.CancellationConfig) Options {
	return Options{ChunkSize: cfg.ChunkSize, ChunkDelay: cfg.ChunkDelay, IDPrefix: cfg.IDPrefix}
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 || o.ChunkSize > MaxChunkSize {
		o.ChunkSize = MaxChunkSize
	}
	if o.ChunkDelay < 0 {
		o.ChunkDelay = 0
	}
	if o.IDPrefix == "" {
		o.IDPrefix = orderbook.DefaultIDPrefix
	}
	return o
}

// Observer 接收撤单指标事件。
type Observer interface {
	ChunkFinished(size int, err error)
	CancellationFinished(res Result)
}

type nopObserver struct{}

func (nopObserver) ChunkFinished(int, error) {}
func (nopObserver) CancellationFinished(Result) {}
