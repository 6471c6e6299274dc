package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"orderbook-lister/internal/journal"
)

// Handler 返回 /events、/runs 与 /metrics 接口。
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		svc := a.Journal()
		if svc == nil {
			http.Error(w, "journal unavailable", http.StatusServiceUnavailable)
			return
		}

		q := r.URL.Query()
		limit := 200
		if qs := q.Get("limit"); qs != "" {
			if v, err := strconv.Atoi(qs); err == nil && v > 0 {
				if v > 1000 {
					v = 1000
				}
				limit = v
			}
		}

		eventType := journal.EventType("")
		if typ := strings.TrimSpace(q.Get("type")); typ != "" {
			eventType = journal.EventType(strings.ToLower(typ))
		}

		events, err := svc.ListEvents(r.Context(), eventType, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		a.writeJSON(w, events)
	})

	mux.HandleFunc("/runs", func(w http.ResponseWriter, r *http.Request) {
		svc := a.Journal()
		if svc == nil {
			http.Error(w, "journal unavailable", http.StatusServiceUnavailable)
			return
		}
		runID := strings.TrimSpace(r.URL.Query().Get("id"))
		if runID == "" {
			http.Error(w, "missing id", http.StatusBadRequest)
			return
		}
		items, err := svc.RunItems(r.Context(), runID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		a.writeJSON(w, items)
	})

	return mux
}

func (a *App) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("写入监控响应失败", zap.Error(err))
	}
}

// Serve 在后台启动监控接口，ctx 结束时关闭；port 为 0 时不启动。
func (a *App) Serve(ctx context.Context, port int) error {
	if port <= 0 {
		return nil
	}

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: a.Handler(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("关闭监控服务失败", zap.Error(err))
		}
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("监控服务异常", zap.Error(err))
		}
	}()

	a.logger.Info("监控接口已启动", zap.String("addr", addr))
	return nil
}
