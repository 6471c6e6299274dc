package listing

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"orderbook-lister/internal/orderbook"
)

// approvalGate 保证每次运行最多发送并确认一笔授权交易。
// 首个调用者持锁执行，其余并发调用者等待其结果；失败后本批次其余需要授权的订单同样失败，下一批次重新尝试。
type approvalGate struct {
	signer   orderbook.Signer
	logger   *zap.Logger
	observer Observer

	mu       sync.Mutex
	done     bool
	txHash   string
	batchErr error
}

func newApprovalGate(signer orderbook.Signer, logger *zap.Logger, observer Observer) *approvalGate {
	return &approvalGate{signer: signer, logger: logger, observer: observer}
}

func (g *approvalGate) beginBatch() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.batchErr = nil
}

func (g *approvalGate) ensure(ctx context.Context, tx orderbook.Transaction) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.done {
		return nil
	}
	if g.batchErr != nil {
		return g.batchErr
	}

	g.logger.Info("发送授权交易", zap.String("to", tx.To))
	pending, err := g.signer.SendTransaction(ctx, tx)
	if err != nil {
		g.batchErr = &orderbook.ApprovalError{Err: err}
		g.observer.ApprovalSent(g.batchErr)
		g.logger.Error("授权交易发送失败", zap.Error(err))
		return g.batchErr
	}

	hash := pending.Hash()
	if err := pending.Wait(ctx); err != nil {
		g.batchErr = &orderbook.ApprovalError{TxHash: hash, Err: err}
		g.observer.ApprovalSent(g.batchErr)
		g.logger.Error("授权交易未确认", zap.String("tx_hash", hash), zap.Error(err))
		return g.batchErr
	}

	g.done = true
	g.txHash = hash
	g.observer.ApprovalSent(nil)
	g.logger.Info("授权交易已确认", zap.String("tx_hash", hash))
	return nil
}

func (g *approvalGate) confirmedTx() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.txHash
}
