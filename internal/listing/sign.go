package listing

import (
	"fmt"

	"go.uber.org/zap"

	"orderbook-lister/internal/orderbook"
)

func (r *run) signStage() error {
	defer r.signed.MarkDone()

	signedCount, processed := 0, 0
	for {
		if r.stopped() {
			r.logger.Info("签名阶段已取消", zap.Int("signed", signedCount))
			break
		}

		order, ok, err := r.prepared.Pop(r.stopCtx)
		if err != nil {
			if isStop(err) {
				break
			}
			return fmt.Errorf("listing: 读取待签名队列失败: %w", err)
		}
		if !ok {
			break
		}

		signature, err := r.signer.SignTypedData(r.ctx, order.Signable)
		processed++
		if err != nil {
			r.rec.fail(order.ItemID, StageSigning, &orderbook.SigningError{ItemID: order.ItemID, Err: err})
		} else {
			r.signed.Push(orderbook.SignedOrder{PreparedOrder: order, Signature: signature})
			signedCount++
		}

		r.emit(Progress{
			Status:     StatusSigning,
			Total:      r.total,
			Processed:  processed,
			Message:    fmt.Sprintf("已签名 %d/%d", processed, processed+r.prepared.Len()),
			ShowCancel: true,
		})
	}

	r.logger.Info("签名阶段结束", zap.Int("signed", signedCount), zap.Int("failed", processed-signedCount))
	return nil
}
