package listing

import (
	"sync"

	"go.uber.org/zap"
)

// recorder 汇总各阶段并发写入的逐项结果。
type recorder struct {
	logger   *zap.Logger
	observer Observer

	mu     sync.Mutex
	result Result
}

func newRecorder(total int, logger *zap.Logger, observer Observer) *recorder {
	return &recorder{
		logger:   logger,
		observer: observer,
		result: Result{
			Total:    total,
			Outcomes: make([]CreateOutcome, 0, total),
			Errors:   make([]Failure, 0),
		},
	}
}

func (r *recorder) fail(itemID string, stage Stage, err error) {
	r.mu.Lock()
	r.result.Failed++
	r.result.Errors = append(r.result.Errors, Failure{ItemID: itemID, Error: err.Error(), Stage: stage})
	r.mu.Unlock()

	r.observer.ItemFailed(stage)
	r.logger.Warn("订单处理失败",
		zap.String("item_id", itemID),
		zap.String("stage", string(stage)),
		zap.Error(err),
	)
}

func (r *recorder) outcome(o CreateOutcome) {
	r.mu.Lock()
	r.result.Outcomes = append(r.result.Outcomes, o)
	switch o.Outcome {
	case OutcomeSuccess:
		r.result.Successful++
	case OutcomeFailed:
		r.result.Failed++
		r.result.Errors = append(r.result.Errors, Failure{ItemID: o.ItemID, Error: o.Error, Stage: StageCreation})
	}
	r.mu.Unlock()

	switch o.Outcome {
	case OutcomeSuccess:
		r.observer.ItemListed()
		r.logger.Debug("挂单创建成功", zap.String("item_id", o.ItemID), zap.String("listing_id", o.ListingID))
	case OutcomeFailed:
		r.observer.ItemFailed(StageCreation)
		r.logger.Warn("挂单创建失败",
			zap.String("item_id", o.ItemID),
			zap.Int("attempts", o.Attempts),
			zap.String("error", o.Error),
		)
	case OutcomeSkippedCancelled:
		r.logger.Info("已取消，跳过创建", zap.String("item_id", o.ItemID))
	}
}

func (r *recorder) counts() (successful, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result.Successful, r.result.Failed
}

func (r *recorder) snapshot() Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := r.result
	res.Outcomes = append(make([]CreateOutcome, 0, len(r.result.Outcomes)), r.result.Outcomes...)
	res.Errors = append(make([]Failure, 0, len(r.result.Errors)), r.result.Errors...)
	return res
}
