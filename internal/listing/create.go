package listing

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"orderbook-lister/internal/orderbook"
)

func (r *run) createStage() error {
	created := 0
	for {
		if r.stopped() {
			r.logger.Info("创建阶段已取消", zap.Int("created", created))
			break
		}

		batch, err := r.signed.PopBatch(r.stopCtx, r.opts.CreateBatchSize)
		if err != nil {
			if isStop(err) {
				break
			}
			return fmt.Errorf("listing: 读取已签名队列失败: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		outcomes := make([]CreateOutcome, len(batch))
		var group errgroup.Group
		for i, order := range batch {
			i, order := i, order
			group.Go(func() error {
				outcomes[i] = r.createItem(order)
				return nil
			})
		}
		_ = group.Wait()

		for _, o := range outcomes {
			r.rec.outcome(o)
		}
		created += len(batch)

		r.emit(Progress{
			Status:     StatusCreating,
			Total:      r.total,
			Processed:  created,
			Message:    fmt.Sprintf("正在创建 %d/%d", created, r.total),
			ShowCancel: true,
		})

		if !r.stopped() && !r.signed.Drained() {
			r.wait(r.stopCtx, r.opts.CreateDelay)
		}
	}

	successful, _ := r.rec.counts()
	r.logger.Info("创建阶段结束", zap.Int("successful", successful))
	return nil
}

// createItem 提交单个已签名订单，失败时按 attempt×step 线性退避重试。
func (r *run) createItem(order orderbook.SignedOrder) CreateOutcome {
	if r.stopped() {
		return CreateOutcome{ItemID: order.ItemID, Outcome: OutcomeSkippedCancelled}
	}

	input := orderbook.CreateOrderInput{
		OrderComponents: order.OrderComponents,
		OrderHash:       order.OrderHash,
		Signature:       order.Signature,
	}

	var (
		err     error
		attempt int
	)
	for attempt = 1; attempt <= r.opts.CreateMaxAttempts; attempt++ {
		created, callErr := r.marketplace.CreateOrder(r.ctx, input)
		if callErr == nil {
			return CreateOutcome{
				ItemID:    order.ItemID,
				Outcome:   OutcomeSuccess,
				ListingID: created.ID,
				Attempts:  attempt,
			}
		}
		err = callErr

		if attempt == r.opts.CreateMaxAttempts || !orderbook.IsRetryable(err) {
			break
		}

		backoff := time.Duration(attempt) * r.opts.CreateBackoffStep
		r.logger.Warn("创建挂单失败，准备重试",
			zap.String("item_id", order.ItemID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		r.observer.CreateRetried()

		if !r.wait(r.ctx, backoff) {
			err = r.ctx.Err()
			break
		}
	}

	if attempt > r.opts.CreateMaxAttempts {
		attempt = r.opts.CreateMaxAttempts
	}
	return CreateOutcome{
		ItemID:   order.ItemID,
		Outcome:  OutcomeFailed,
		Error:    fmt.Sprintf("create: %v", err),
		Attempts: attempt,
	}
}
