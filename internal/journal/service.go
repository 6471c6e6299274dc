package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"orderbook-lister/internal/cancellation"
	"orderbook-lister/internal/listing"
	"orderbook-lister/internal/store"
)

// Service 将运行结果写入 sqlite，仅作审计，不用于重放。
type Service struct {
	store  *store.Store
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化日志服务，创建所需表结构。
func NewService(ctx context.Context, st *store.Store, logger *zap.Logger) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("journal: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{store: st, db: st.DB(), logger: logger}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) initSchema(ctx context.Context) error {
	err := s.store.Migrate(ctx,
		`CREATE TABLE IF NOT EXISTS journal_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	run_id TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_journal_events_type ON journal_events(event_type);`,
		`CREATE TABLE IF NOT EXISTS journal_items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	item_id TEXT NOT NULL,
	status TEXT NOT NULL,
	stage TEXT NOT NULL DEFAULT '',
	listing_id TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT ''
);`,
		`CREATE INDEX IF NOT EXISTS idx_journal_items_run ON journal_items(run_id);`,
	)
	if err != nil {
		return fmt.Errorf("journal: 初始化表失败: %w", err)
	}
	return nil
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	return s.store.WithTx(ctx, func(tx *sql.Tx) error {
		return insertEvent(ctx, tx, event)
	})
}

func insertEvent(ctx context.Context, tx *sql.Tx, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("journal: 序列化事件失败: %w", err)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO journal_events (event_type, run_id, payload, created_at) VALUES (?, ?, ?, ?)`,
		string(event.Type), event.RunID, string(payload), event.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal: 写入事件失败: %w", err)
	}
	return nil
}

func insertItems(ctx context.Context, tx *sql.Tx, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO journal_items (run_id, kind, item_id, status, stage, listing_id, detail) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("journal: 准备写入明细失败: %w", err)
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, it.RunID, string(it.Kind), it.ItemID, it.Status, it.Stage, it.ListingID, it.Detail); err != nil {
			return fmt.Errorf("journal: 写入明细失败: %w", err)
		}
	}
	return nil
}

// RecordListRun 在同一事务中写入挂单汇总与逐项结果。
func (s *Service) RecordListRun(ctx context.Context, res listing.Result) {
	items := make([]Item, 0, len(res.Outcomes)+len(res.Errors))
	for _, o := range res.Outcomes {
		if o.Outcome == listing.OutcomeFailed {
			continue
		}
		items = append(items, Item{
			RunID:     res.RunID,
			Kind:      EventListRun,
			ItemID:    o.ItemID,
			Status:    string(o.Outcome),
			Stage:     string(listing.StageCreation),
			ListingID: o.ListingID,
		})
	}
	for _, f := range res.Errors {
		items = append(items, Item{
			RunID:  res.RunID,
			Kind:   EventListRun,
			ItemID: f.ItemID,
			Status: string(listing.OutcomeFailed),
			Stage:  string(f.Stage),
			Detail: f.Error,
		})
	}

	s.recordRun(ctx, Event{
		Type:      EventListRun,
		RunID:     res.RunID,
		Timestamp: res.FinishedAt,
		Payload:   listRunPayload(res),
	}, items)
}

// RecordCancelRun 在同一事务中写入撤单汇总与逐项结果。
func (s *Service) RecordCancelRun(ctx context.Context, res cancellation.Result) {
	items := make([]Item, 0, len(res.Outcomes))
	for _, o := range res.Outcomes {
		items = append(items, Item{
			RunID:  res.RunID,
			Kind:   EventCancelRun,
			ItemID: o.OrderID,
			Status: string(o.Status),
			Detail: o.Reason,
		})
	}

	s.recordRun(ctx, Event{
		Type:      EventCancelRun,
		RunID:     res.RunID,
		Timestamp: res.FinishedAt,
		Payload:   cancelRunPayload(res),
	}, items)
}

func (s *Service) recordRun(ctx context.Context, event Event, items []Item) {
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := insertEvent(ctx, tx, event); err != nil {
			return err
		}
		return insertItems(ctx, tx, items)
	})
	if err != nil {
		s.logger.Warn("记录运行结果失败",
			zap.String("run_id", event.RunID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}

// RecordError 记录异常。
func (s *Service) RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{}) {
	payload := ErrorPayload{
		Message: msg,
		Error:   err.Error(),
		Context: ctxMap,
	}
	if recErr := s.Record(ctx, Event{
		Type:      EventError,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}); recErr != nil {
		s.logger.Warn("记录异常事件失败", zap.Error(recErr))
	}
}

// ListEvents 按类型检索最近事件。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT event_type, run_id, payload, created_at FROM journal_events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			typ     string
			runID   string
			payload string
			created string
		)
		if scanErr := rows.Scan(&typ, &runID, &payload, &created); scanErr != nil {
			return nil, fmt.Errorf("journal: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339Nano, created)
		if parseErr != nil {
			ts = time.Time{}
		}

		events = append(events, Event{
			Type:      EventType(typ),
			RunID:     runID,
			Timestamp: ts,
			Payload:   json.RawMessage(payload),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: 读取事件失败: %w", err)
	}
	return events, nil
}

// RunItems 返回某次运行的逐项结果。
func (s *Service) RunItems(ctx context.Context, runID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, kind, item_id, status, stage, listing_id, detail FROM journal_items WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("journal: 查询明细失败: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var (
			it   Item
			kind string
		)
		if err := rows.Scan(&it.RunID, &kind, &it.ItemID, &it.Status, &it.Stage, &it.ListingID, &it.Detail); err != nil {
			return nil, fmt.Errorf("journal: 解析明细失败: %w", err)
		}
		it.Kind = EventType(kind)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: 读取明细失败: %w", err)
	}
	return items, nil
}
