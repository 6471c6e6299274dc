package listing

import (
	"time"

	"orderbook-lister/internal/config"
)

// Stage 标识失败发生的流水线阶段。
type Stage string

const (
	StagePreparation Stage = "preparation"
	StageSigning     Stage = "signing"
	StageCreation    Stage = "creation"
)

// Status 为进度回调中的流水线状态。
type Status string

const (
	StatusPreparing Status = "preparing"
	StatusSigning   Status = "signing"
	StatusCreating  Status = "creating"
	StatusComplete  Status = "complete"
	StatusCancelled Status = "cancelled"
)

// OutcomeType 为创建阶段的单项结果。
type OutcomeType string

const (
	OutcomeSuccess          OutcomeType = "success"
	OutcomeFailed           OutcomeType = "failed"
	OutcomeSkippedCancelled OutcomeType = "skipped_cancelled"
)

// Progress 为进度回调载荷。
type Progress struct {
	Status     Status `json:"status"`
	Total      int    `json:"total"`
	Processed  int    `json:"processed"`
	Message    string `json:"message"`
	ShowCancel bool   `json:"show_cancel"`
	Successful int    `json:"successful,omitempty"`
	Failed     int    `json:"failed,omitempty"`
	Cancelled  int    `json:"cancelled,omitempty"`
}

// ProgressFunc 接收进度，调用是串行的。
type ProgressFunc func(Progress)

// CreateOutcome 为单个订单在创建阶段的结果。
type CreateOutcome struct {
	ItemID    string      `json:"item_id"`
	Outcome   OutcomeType `json:"outcome"`
	ListingID string      `json:"listing_id,omitempty"`
	Error     string      `json:"error,omitempty"`
	Attempts  int         `json:"attempts,omitempty"`
}

// Failure 记录某个订单在某阶段的失败。
type Failure struct {
	ItemID string `json:"item_id"`
	Error  string `json:"error"`
	Stage  Stage  `json:"stage"`
}

// Result 为一次批量挂单的汇总。
type Result struct {
	RunID          string          `json:"run_id"`
	Total          int             `json:"total"`
	Successful     int             `json:"successful"`
	Failed         int             `json:"failed"`
	CancelledCount int             `json:"cancelled"`
	Cancelled      bool            `json:"was_cancelled"`
	ApprovalTx     string          `json:"approval_tx,omitempty"`
	Outcomes       []CreateOutcome `json:"outcomes"`
	Errors         []Failure       `json:"errors"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
}

// Listings 返回创建成功的结果。
func (r Result) Listings() []CreateOutcome {
	listings := make([]CreateOutcome, 0, r.Successful)
	for _, o := range r.Outcomes {
		if o.Outcome == OutcomeSuccess {
			listings = append(listings, o)
		}
	}
	return listings
}

// Options 控制流水线批次、节奏与挂单默认值。
type Options struct {
	PrepareBatchSize  int
	PrepareDelay      time.Duration
	CreateBatchSize   int
	CreateDelay       time.Duration
	CreateMaxAttempts int
	CreateBackoffStep time.Duration

	ContractAddress string
	ItemType        string
	CurrencyType    string
	DefaultCurrency string
}

// DefaultOptions 返回与线上一致的默认节奏。
func DefaultOptions() Options {
	return Options{
		PrepareBatchSize:  10,
		PrepareDelay:      500 * time.Millisecond,
		CreateBatchSize:   5,
		CreateDelay:       800 * time.Millisecond,
		CreateMaxAttempts: 3,
		CreateBackoffStep: time.Second,
		ItemType:          "ERC721",
		CurrencyType:      "ERC20",
	}
}

// OptionsFromConfig 由配置构造 Options。
func OptionsFromConfig(pipeline config.PipelineConfig, market config.MarketplaceConfig) Options {
	return Options{
		PrepareBatchSize:  pipeline.PrepareBatchSize,
		PrepareDelay:      pipeline.PrepareDelay,
		CreateBatchSize:   pipeline.CreateBatchSize,
		CreateDelay:       pipeline.CreateDelay,
		CreateMaxAttempts: pipeline.CreateMaxAttempts,
		CreateBackoffStep: pipeline.CreateBackoffStep,
		ContractAddress:   market.ContractAddress,
		ItemType:          market.ItemType,
		CurrencyType:      market.CurrencyType,
		DefaultCurrency:   market.DefaultCurrency,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.PrepareBatchSize <= 0 {
		o.PrepareBatchSize = def.PrepareBatchSize
	}
	if o.CreateBatchSize <= 0 {
		o.CreateBatchSize = def.CreateBatchSize
	}
	if o.CreateMaxAttempts <= 0 {
		o.CreateMaxAttempts = def.CreateMaxAttempts
	}
	if o.PrepareDelay < 0 {
		o.PrepareDelay = 0
	}
	if o.CreateDelay < 0 {
		o.CreateDelay = 0
	}
	if o.CreateBackoffStep < 0 {
		o.CreateBackoffStep = 0
	}
	if o.ItemType == "" {
		o.ItemType = def.ItemType
	}
	if o.CurrencyType == "" {
		o.CurrencyType = def.CurrencyType
	}
	return o
}

// Observer 接收流水线指标事件。
type Observer interface {
	ItemFailed(stage Stage)
	ItemListed()
	CreateRetried()
	ApprovalSent(err error)
	RunFinished(res Result)
}

type nopObserver struct{}

func (nopObserver) ItemFailed(Stage) {}
func (nopObserver) ItemListed() {}
func (nopObserver) CreateRetried() {}
func (nopObserver) ApprovalSent(error) {}
func (nopObserver) RunFinished(Result) {}
