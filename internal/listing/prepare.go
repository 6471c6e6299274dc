package listing

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"orderbook-lister/internal/orderbook"
)

var (
	errNoSignable   = errors.New("listing: prepare 响应缺少 SIGNABLE 动作")
	errInvalidPrice = errors.New("listing: 挂单价格缺失")
)

func (r *run) prepareStage(requests []orderbook.OrderRequest) error {
	defer r.prepared.MarkDone()

	size := r.opts.PrepareBatchSize
	total := len(requests)
	batches := (total + size - 1) / size

	r.emit(Progress{Status: StatusPreparing, Total: total, Message: "正在准备挂单...", ShowCancel: true})

	for batch := 0; batch < batches; batch++ {
		if r.stopped() {
			r.logger.Info("准备阶段已取消", zap.Int("batch", batch+1))
			break
		}

		start := batch * size
		end := min(start+size, total)

		r.approval.beginBatch()
		var group errgroup.Group
		for _, req := range requests[start:end] {
			req := req
			group.Go(func() error {
				r.prepareItem(req)
				return nil
			})
		}
		_ = group.Wait()

		r.emit(Progress{
			Status:     StatusPreparing,
			Total:      total,
			Processed:  end,
			Message:    fmt.Sprintf("已准备 %d/%d", end, total),
			ShowCancel: true,
		})

		if batch < batches-1 && !r.stopped() {
			r.wait(r.stopCtx, r.opts.PrepareDelay)
		}
	}

	r.logger.Info("准备阶段结束", zap.Int("queued", r.prepared.Len()))
	return nil
}

func (r *run) prepareItem(req orderbook.OrderRequest) {
	if r.stopped() {
		return
	}
	if req.PriceAmount == nil || req.PriceAmount.Sign() <= 0 {
		r.rec.fail(req.ItemID, StagePreparation, errInvalidPrice)
		return
	}

	currency := req.CurrencyAddress
	if currency == "" {
		currency = r.opts.DefaultCurrency
	}

	prepared, err := r.marketplace.PrepareOrder(r.ctx, orderbook.PrepareOrderInput{
		Maker: r.maker,
		Sell: orderbook.SellItem{
			Type:            r.opts.ItemType,
			ContractAddress: r.opts.ContractAddress,
			TokenID:         req.ItemID,
		},
		Buy: orderbook.BuyItem{
			Type:            r.opts.CurrencyType,
			ContractAddress: currency,
			Amount:          req.PriceAmount.String(),
		},
	})
	if err != nil {
		r.rec.fail(req.ItemID, StagePreparation, err)
		return
	}

	if tx, ok := prepared.PendingTransaction(); ok {
		if err := r.approval.ensure(r.ctx, tx); err != nil {
			r.rec.fail(req.ItemID, StagePreparation, err)
			return
		}
	}

	msg, ok := prepared.SignableMessage()
	if !ok {
		r.rec.fail(req.ItemID, StagePreparation, errNoSignable)
		return
	}

	r.prepared.Push(orderbook.PreparedOrder{
		ItemID:          req.ItemID,
		OrderComponents: prepared.OrderComponents,
		OrderHash:       prepared.OrderHash,
		Signable:        msg,
	})
}
