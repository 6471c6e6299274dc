package listing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"orderbook-lister/internal/orderbook"
)

// Pipeline 协调准备、签名、创建三个阶段并发执行批量挂单。
type Pipeline struct {
	marketplace orderbook.Marketplace
	signer      orderbook.Signer
	opts        Options
	logger      *zap.Logger
	observer    Observer
	wait        func(ctx context.Context, d time.Duration) bool

	mu     sync.Mutex
	active *run
}

// NewPipeline 创建流水线。
func NewPipeline(marketplace orderbook.Marketplace, signer orderbook.Signer, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		marketplace: marketplace,
		signer:      signer,
		opts:        opts.withDefaults(),
		logger:      logger,
		observer:    nopObserver{},
		wait:        sleep,
	}
}

// SetObserver 设置指标观察者。
func (p *Pipeline) SetObserver(observer Observer) {
	if observer == nil {
		observer = nopObserver{}
	}
	p.observer = observer
}

// Cancel 请求取消当前运行；各阶段只在批次边界或出队前响应，返回是否存在运行中的任务。
func (p *Pipeline) Cancel() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return false
	}
	p.active.logger.Info("收到取消请求")
	p.active.stop()
	return true
}

// Active 表示是否有运行中的任务。
func (p *Pipeline) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil
}

// Run 执行一次批量挂单。部分成功是合法的终态；取消以 Result.Cancelled 表示而非错误。
// ctx 结束等同于 Cancel：已发出的远端调用继续完成，未开始的订单计入取消。
func (p *Pipeline) Run(ctx context.Context, requests []orderbook.OrderRequest, onProgress ProgressFunc) (Result, error) {
	r, err := p.begin(ctx, len(requests), onProgress)
	if err != nil {
		return Result{}, err
	}
	defer p.finish(r)

	r.rec.result.RunID = r.id
	r.rec.result.StartedAt = time.Now().UTC()

	maker, err := p.signer.Address(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("listing: 获取钱包地址失败: %w", err)
	}
	r.maker = maker

	r.logger.Info("开始批量挂单",
		zap.Int("total", len(requests)),
		zap.String("maker", maker),
		zap.Int("prepare_batch", p.opts.PrepareBatchSize),
		zap.Int("create_batch", p.opts.CreateBatchSize),
	)

	var group errgroup.Group
	group.Go(func() error { return r.prepareStage(requests) })
	group.Go(r.signStage)
	group.Go(r.createStage)
	stageErr := group.Wait()

	result := r.rec.snapshot()
	result.ApprovalTx = r.approval.confirmedTx()
	result.FinishedAt = time.Now().UTC()

	status := StatusComplete
	if r.stopped() {
		status = StatusCancelled
		result.Cancelled = true
		result.CancelledCount = result.Total - result.Successful - result.Failed
	}

	r.emit(Progress{
		Status:     status,
		Total:      result.Total,
		Processed:  result.Total,
		Message:    summaryMessage(result),
		Successful: result.Successful,
		Failed:     result.Failed,
		Cancelled:  result.CancelledCount,
	})

	r.logger.Info("批量挂单结束",
		zap.String("status", string(status)),
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed),
		zap.Int("cancelled", result.CancelledCount),
		zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
	)
	p.observer.RunFinished(result)

	if stageErr != nil {
		return result, stageErr
	}
	return result, nil
}

func (p *Pipeline) begin(ctx context.Context, total int, onProgress ProgressFunc) (*run, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != nil {
		return nil, &orderbook.StateError{Op: "listing.Run", Err: orderbook.ErrRunActive}
	}

	id := uuid.NewString()
	logger := p.logger.With(zap.String("run_id", id))
	stopCtx, stop := context.WithCancel(ctx)

	r := &run{
		id:          id,
		ctx:         context.WithoutCancel(ctx),
		stopCtx:     stopCtx,
		stop:        stop,
		opts:        p.opts,
		marketplace: p.marketplace,
		signer:      p.signer,
		logger:      logger,
		observer:    p.observer,
		wait:        p.wait,
		total:       total,
		onProgress:  onProgress,
		prepared:    NewQueue[orderbook.PreparedOrder](),
		signed:      NewQueue[orderbook.SignedOrder](),
		approval:    newApprovalGate(p.signer, logger, p.observer),
		rec:         newRecorder(total, logger, p.observer),
	}
	p.active = r
	return r, nil
}

func (p *Pipeline) finish(r *run) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r.stop()
	if p.active == r {
		p.active = nil
	}
}

// run 持有单次运行的全部可变状态：取消信号、授权闸门、阶段队列与结果。
type run struct {
	id          string
	ctx         context.Context
	stopCtx     context.Context
	stop        context.CancelFunc
	opts        Options
	marketplace orderbook.Marketplace
	signer      orderbook.Signer
	logger      *zap.Logger
	observer    Observer
	wait        func(ctx context.Context, d time.Duration) bool
	maker       string
	total       int

	progressMu sync.Mutex
	onProgress ProgressFunc

	prepared *Queue[orderbook.PreparedOrder]
	signed   *Queue[orderbook.SignedOrder]
	approval *approvalGate
	rec      *recorder
}

func (r *run) stopped() bool {
	return r.stopCtx.Err() != nil
}

func (r *run) emit(p Progress) {
	if r.onProgress == nil {
		return
	}
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	r.onProgress(p)
}

// sleep 等待 d，被取消时提前返回 false。
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func isStop(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func summaryMessage(res Result) string {
	if res.Cancelled {
		return fmt.Sprintf("已取消: 成功 %d, 取消 %d, 失败 %d", res.Successful, res.CancelledCount, res.Failed)
	}
	return fmt.Sprintf("完成: 成功 %d, 失败 %d", res.Successful, res.Failed)
}
