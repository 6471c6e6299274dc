package cancellation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"orderbook-lister/internal/orderbook"
)

// Canceller 按分片顺序执行 prepare → 签名 → 提交 的批量撤单。
type Canceller struct {
	marketplace orderbook.Marketplace
	signer      orderbook.Signer
	opts        Options
	logger      *zap.Logger
	observer    Observer
}

// NewCanceller 创建撤单编排器。
func NewCanceller(marketplace orderbook.Marketplace, signer orderbook.Signer, opts Options, logger *zap.Logger) *Canceller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Canceller{
		marketplace: marketplace,
		signer:      signer,
		opts:        opts.withDefaults(),
		logger:      logger,
		observer:    nopObserver{},
	}
}

// SetObserver 设置指标观察者。
func (c *Canceller) SetObserver(observer Observer) {
	if observer == nil {
		observer = nopObserver{}
	}
	c.observer = observer
}

// NormalizeTargets 取每个目标的首选标识并归一化，去除空值与重复值，保持输入顺序。
func NormalizeTargets(targets []Target, prefix string) []string {
	seen := make(map[string]struct{}, len(targets))
	ids := make([]string, 0, len(targets))
	for _, t := range targets {
		id := orderbook.NormalizeOrderID(t.rawID(), prefix)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// Run 执行批量撤单。单个分片失败只影响该分片，其余分片继续处理。
// ctx 结束视为停止请求：进行中的分片照常提交，其余分片记为跳过，不返回错误。
func (c *Canceller) Run(ctx context.Context, targets []Target, onProgress ProgressFunc) (Result, error) {
	ids := NormalizeTargets(targets, c.opts.IDPrefix)
	if len(ids) == 0 {
		return Result{}, ErrNoOrderIDs
	}

	maker, err := c.signer.Address(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("cancellation: 获取钱包地址失败: %w", err)
	}

	chunks := split(ids, c.opts.ChunkSize)
	res := Result{
		RunID:     uuid.NewString(),
		Total:     len(ids),
		Chunks:    len(chunks),
		Outcomes:  make([]Outcome, 0, len(ids)),
		StartedAt: time.Now().UTC(),
	}
	logger := c.logger.With(zap.String("run_id", res.RunID))
	emit := func(p Progress) {
		if onProgress != nil {
			onProgress(p)
		}
	}

	logger.Info("开始批量撤单", zap.Int("total", len(ids)), zap.Int("chunks", len(chunks)), zap.String("maker", maker))

	callCtx := context.WithoutCancel(ctx)

	processed := 0
	for i, chunk := range chunks {
		progress := func(status Status, format string) {
			emit(Progress{
				Status:    status,
				Total:     res.Total,
				Processed: processed,
				Message:   fmt.Sprintf(format, i+1, len(chunks)),
				Chunk:     i + 1,
				Chunks:    len(chunks),
			})
		}

		var outcomes []Outcome
		if ctx.Err() != nil {
			res.Stopped = true
			outcomes = markAll(chunk, OutcomeSkipped, "")
		} else {
			report, chunkErr := c.runChunk(callCtx, maker, chunk, progress)
			if chunkErr != nil {
				chunkErr = &orderbook.ChunkError{Index: i, Size: len(chunk), Err: chunkErr}
				logger.Error("撤单分片失败", zap.Int("chunk", i+1), zap.Int("size", len(chunk)), zap.Error(chunkErr))
				outcomes = markAll(chunk, OutcomeFailed, chunkErr.Error())
			} else {
				outcomes = classify(chunk, report, logger)
			}
			c.observer.ChunkFinished(len(chunk), chunkErr)
		}

		res.merge(outcomes)
		processed += len(chunk)

		logger.Info("撤单分片完成",
			zap.Int("chunk", i+1),
			zap.Int("size", len(chunk)),
			zap.Int("successful", res.Successful),
			zap.Int("pending", res.Pending),
			zap.Int("failed", res.Failed),
		)

		if i < len(chunks)-1 && ctx.Err() == nil {
			sleep(ctx, c.opts.ChunkDelay)
		}
	}

	res.FinishedAt = time.Now().UTC()
	status := StatusComplete
	message := fmt.Sprintf("撤单完成: 成功 %d, 处理中 %d, 失败 %d", res.Successful, res.Pending, res.Failed)
	if res.Stopped {
		status = StatusCancelled
		message = fmt.Sprintf("撤单已停止: 成功 %d, 处理中 %d, 失败 %d, 跳过 %d", res.Successful, res.Pending, res.Failed, res.Skipped)
	}
	emit(Progress{
		Status:     status,
		Total:      res.Total,
		Processed:  res.Total,
		Message:    message,
		Successful: res.Successful,
		Pending:    res.Pending,
		Failed:     res.Failed,
		Skipped:    res.Skipped,
	})
	logger.Info("批量撤单结束",
		zap.String("status", string(status)),
		zap.Int("successful", res.Successful),
		zap.Int("pending", res.Pending),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
		zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	)
	c.observer.CancellationFinished(res)
	return res, nil
}

func (c *Canceller) runChunk(ctx context.Context, maker string, ids []string, progress func(Status, string)) (orderbook.CancelReport, error) {
	progress(StatusPreparing, "正在准备撤单分片 %d/%d")
	msg, err := c.marketplace.PrepareCancellations(ctx, ids)
	if err != nil {
		return orderbook.CancelReport{}, err
	}

	progress(StatusSigning, "正在签名撤单分片 %d/%d")
	signature, err := c.signer.SignTypedData(ctx, msg)
	if err != nil {
		return orderbook.CancelReport{}, &orderbook.SigningError{Err: err}
	}

	progress(StatusSubmitting, "正在提交撤单分片 %d/%d")
	return c.marketplace.CancelOrders(ctx, ids, maker, signature)
}

// classify 将接口结果映射到分片内的每个 id；响应中缺失的 id 记为失败。
func classify(chunk []string, report orderbook.CancelReport, logger *zap.Logger) []Outcome {
	index := make(map[string]int, len(chunk))
	outcomes := make([]Outcome, len(chunk))
	for i, id := range chunk {
		index[id] = i
		outcomes[i] = Outcome{OrderID: id, Status: OutcomeFailed, Reason: reasonNotReported}
	}

	set := func(id string, status OutcomeStatus, reason string) {
		i, ok := index[id]
		if !ok {
			logger.Warn("撤单响应包含未请求的订单", zap.String("order_id", id))
			return
		}
		outcomes[i] = Outcome{OrderID: id, Status: status, Reason: reason}
	}
	for _, id := range report.Successful {
		set(id, OutcomeCancelled, "")
	}
	for _, id := range report.Pending {
		set(id, OutcomePending, "")
	}
	for _, f := range report.Failed {
		reason := f.Reason
		if reason == "" {
			reason = "unknown"
		}
		set(f.OrderID, OutcomeFailed, reason)
	}
	return outcomes
}

func markAll(chunk []string, status OutcomeStatus, reason string) []Outcome {
	outcomes := make([]Outcome, len(chunk))
	for i, id := range chunk {
		outcomes[i] = Outcome{OrderID: id, Status: status, Reason: reason}
	}
	return outcomes
}

func (r *Result) merge(outcomes []Outcome) {
	for _, o := range outcomes {
		switch o.Status {
		case OutcomeCancelled:
			r.Successful++
		case OutcomePending:
			r.Pending++
		case OutcomeSkipped:
			r.Skipped++
		default:
			r.Failed++
		}
		r.Outcomes = append(r.Outcomes, o)
	}
}

func split(ids []string, size int) [][]string {
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		chunks = append(chunks, ids[start:min(start+size, len(ids))])
	}
	return chunks
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
